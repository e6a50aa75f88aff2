package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	apperrors "github.com/mlee/checkline-backend/internal/errors"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/mlee/checkline-backend/pkg/util"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartNotActive    = errors.New("cart is not active")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrCartScopeMissing = errors.New("neither customer nor device key supplied")
	ErrProductNotFound  = errors.New("product not found")
	ErrTierNotFound     = errors.New("price tier not found")
	ErrTierMismatch     = errors.New("price tier does not belong to product")
	ErrOutOfStock       = errors.New("no stock available for the requested quantity")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

// CartScope identifies whose cart an operation targets. CustomerID wins when
// set; otherwise DeviceKey scopes an anonymous cart to one physical device.
type CartScope struct {
	StoreID    uint
	LocationID uint
	CustomerID *uint
	DeviceKey  string
}

type CartService interface {
	GetOrCreateCart(scope CartScope, freshStart bool) (*model.Cart, error)
	GetCart(cartID uint) (*model.Cart, error)
	AddItem(cartID, productID, tierID uint, quantity int) (*model.Cart, error)
	UpdateItemQuantity(cartID, itemID uint, quantity int) (*model.Cart, error)
	RemoveItem(cartID, itemID uint) (*model.Cart, error)
	ClearCart(cartID uint) (*model.Cart, error)
	AbandonCart(cartID uint) error
}

type cartService struct {
	cartRepo   repository.CartRepository
	publisher  feed.Publisher
	cartExpiry time.Duration
	db         *gorm.DB
}

func NewCartService(
	cartRepo repository.CartRepository,
	publisher feed.Publisher,
	cartExpiry time.Duration,
	db *gorm.DB,
) CartService {
	return &cartService{
		cartRepo:   cartRepo,
		publisher:  publisher,
		cartExpiry: cartExpiry,
		db:         db,
	}
}

// GetOrCreateCart returns the caller's single active cart at the location,
// creating one when none exists. The insert runs first and a uniqueness
// failure means a concurrent call won the race, so the loser re-reads the
// winner's row. Concurrent calls with the same scope always converge on one
// cart id. With freshStart the resolved cart's items are cleared; the cart
// itself, and its queue position, survive.
func (s *cartService) GetOrCreateCart(scope CartScope, freshStart bool) (*model.Cart, error) {
	if scope.CustomerID == nil && scope.DeviceKey == "" {
		return nil, ErrCartScopeMissing
	}

	logger.Info("Resolving active cart", map[string]interface{}{
		"store_id":    scope.StoreID,
		"location_id": scope.LocationID,
		"customer_id": scope.CustomerID,
		"fresh_start": freshStart,
	})

	cart := &model.Cart{
		StoreID:    scope.StoreID,
		LocationID: scope.LocationID,
		CustomerID: scope.CustomerID,
		DeviceKey:  scope.DeviceKey,
		Status:     model.CartStatusActive,
		ExpiresAt:  time.Now().Add(s.cartExpiry),
	}

	if err := s.db.Create(cart).Error; err != nil {
		if !apperrors.IsUniqueViolation(err) {
			logger.Error("Failed to create cart", err, map[string]interface{}{
				"store_id":    scope.StoreID,
				"location_id": scope.LocationID,
			})
			return nil, err
		}

		// Lost the insert race or an active cart already existed. Either way
		// the surviving row is the caller's cart.
		if freshStart {
			return s.clearResolved(scope)
		}
		existing, ferr := s.findActive(scope)
		if ferr != nil {
			logger.Error("Failed to fetch existing active cart after conflict", ferr, map[string]interface{}{
				"store_id":    scope.StoreID,
				"location_id": scope.LocationID,
			})
			return nil, ferr
		}
		// Touching the expiry keeps a live session from being swept.
		if err := s.touch(existing.ID); err != nil {
			return nil, err
		}
		return existing, nil
	}

	s.publishCart(feed.OpInsert, cart)
	return cart, nil
}

func (s *cartService) GetCart(cartID uint) (*model.Cart, error) {
	cart, err := s.cartRepo.FindByID(cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return cart, nil
}

// AddItem appends a priced line to an active cart, merging with an existing
// line for the same product and tier. The stock record is resolved here, at
// add time, preferring the cart's own location and falling back to the
// nearest location with enough available quantity.
func (s *cartService) AddItem(cartID, productID, tierID uint, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	logger.Info("Adding item to cart", map[string]interface{}{
		"cart_id":       cartID,
		"product_id":    productID,
		"price_tier_id": tierID,
		"quantity":      quantity,
	})

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart item add, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	cart, err := s.lockActiveCart(tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var tier model.PriceTier
	if err := tx.First(&tier, tierID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	if tier.ProductID != productID {
		tx.Rollback()
		return nil, ErrTierMismatch
	}

	var existing model.CartItem
	merge := true
	err = tx.Where("cart_id = ? AND product_id = ? AND price_tier_id = ?",
		cartID, productID, tierID).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tx.Rollback()
			return nil, err
		}
		merge = false
	}

	var changed *model.CartItem
	op := feed.OpInsert

	if merge {
		newQuantity := existing.Quantity + quantity
		needed := float64(newQuantity) * tier.UnitAmount

		available, err := repository.Availability(tx, existing.InventoryRecordID, existing.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if available < needed {
			tx.Rollback()
			logger.Warn("Insufficient stock for merged cart line", map[string]interface{}{
				"cart_id":             cartID,
				"inventory_record_id": existing.InventoryRecordID,
				"needed":              needed,
				"available":           available,
			})
			return nil, ErrOutOfStock
		}

		existing.Quantity = newQuantity
		existing.TierQuantity = needed
		existing.LineTotal = round2(float64(newQuantity) * tier.Price)
		if err := tx.Save(&existing).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		changed = &existing
		op = feed.OpUpdate
	} else {
		needed := float64(quantity) * tier.UnitAmount
		recordID, err := s.resolveStock(tx, cart, productID, needed)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		item := model.CartItem{
			CartID:            cartID,
			ProductID:         productID,
			PriceTierID:       tierID,
			InventoryRecordID: recordID,
			Quantity:          quantity,
			TierQuantity:      needed,
			UnitPrice:         tier.Price,
			LineTotal:         round2(float64(quantity) * tier.Price),
		}
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		changed = &item
	}

	if err := s.recomputeTotals(tx, cart); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit cart item add", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}

	s.publishItem(op, cart, changed)
	s.publishCart(feed.OpUpdate, cart)

	return s.cartRepo.FindByID(cartID)
}

// UpdateItemQuantity sets a line's tier count. Zero removes the line.
func (s *cartService) UpdateItemQuantity(cartID, itemID uint, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(cartID, itemID)
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart item update, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	cart, err := s.lockActiveCart(tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var item model.CartItem
	if err := tx.Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}

	var tier model.PriceTier
	if err := tx.First(&tier, item.PriceTierID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	needed := float64(quantity) * tier.UnitAmount
	available, err := repository.Availability(tx, item.InventoryRecordID, item.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if available < needed {
		tx.Rollback()
		logger.Warn("Insufficient stock for requested quantity", map[string]interface{}{
			"cart_id":             cartID,
			"cart_item_id":        itemID,
			"inventory_record_id": item.InventoryRecordID,
			"needed":              needed,
			"available":           available,
		})
		return nil, ErrOutOfStock
	}

	item.Quantity = quantity
	item.TierQuantity = needed
	item.LineTotal = round2(float64(quantity) * tier.Price)
	if err := tx.Save(&item).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.recomputeTotals(tx, cart); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.publishItem(feed.OpUpdate, cart, &item)
	s.publishCart(feed.OpUpdate, cart)

	return s.cartRepo.FindByID(cartID)
}

func (s *cartService) RemoveItem(cartID, itemID uint) (*model.Cart, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart item removal, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	cart, err := s.lockActiveCart(tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var item model.CartItem
	if err := tx.Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}

	if err := tx.Delete(&model.CartItem{}, itemID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.recomputeTotals(tx, cart); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.publishItem(feed.OpDelete, cart, &item)
	s.publishCart(feed.OpUpdate, cart)

	return s.cartRepo.FindByID(cartID)
}

func (s *cartService) ClearCart(cartID uint) (*model.Cart, error) {
	logger.Info("Clearing cart", map[string]interface{}{
		"cart_id": cartID,
	})

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart clear, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	cart, err := s.lockActiveCart(tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.recomputeTotals(tx, cart); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.publishCart(feed.OpUpdate, cart)

	return s.cartRepo.FindByID(cartID)
}

// AbandonCart retires an active cart and removes it from the queue. The
// expiry sweep and the explicit abandon endpoint both funnel through here so
// the queue compaction and the fan-out stay in one place. Abandoning a
// non-active cart is a no-op.
func (s *cartService) AbandonCart(cartID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart abandonment, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	var cart model.Cart
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cart, cartID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCartNotFound
		}
		return err
	}
	if cart.Status != model.CartStatusActive {
		tx.Rollback()
		return nil
	}

	if err := tx.Model(&cart).Update("status", model.CartStatusAbandoned).Error; err != nil {
		tx.Rollback()
		return err
	}
	cart.Status = model.CartStatusAbandoned

	removed, err := removeFromQueue(tx, cartID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit cart abandonment", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return err
	}

	logger.Info("Cart abandoned", map[string]interface{}{
		"cart_id":     cartID,
		"location_id": cart.LocationID,
		"dequeued":    removed != nil,
	})

	s.publishCart(feed.OpUpdate, &cart)
	if removed != nil {
		s.publishQueueEntry(feed.OpDelete, &cart, removed)
	}
	return nil
}

// clearResolved empties the scope's surviving active cart for a fresh
// start. The row lock, the item delete and the totals rewrite share one
// transaction, so the resolution and the clear are atomic.
func (s *cartService) clearResolved(scope CartScope) (*model.Cart, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during fresh-start clear, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"store_id":    scope.StoreID,
				"location_id": scope.LocationID,
			})
		}
	}()

	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", model.CartStatusActive)
	if scope.CustomerID != nil {
		query = query.Where("store_id = ? AND location_id = ? AND customer_id = ?",
			scope.StoreID, scope.LocationID, *scope.CustomerID)
	} else {
		query = query.Where("location_id = ? AND device_key = ? AND customer_id IS NULL",
			scope.LocationID, scope.DeviceKey)
	}

	var cart model.Cart
	if err := query.First(&cart).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The surviving cart went terminal between the insert attempt and
			// the lock. Resolve again from the top.
			return s.GetOrCreateCart(scope, true)
		}
		return nil, err
	}

	if err := tx.Where("cart_id = ?", cart.ID).Delete(&model.CartItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.recomputeTotals(tx, &cart); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.publishCart(feed.OpUpdate, &cart)
	return s.cartRepo.FindByID(cart.ID)
}

func (s *cartService) findActive(scope CartScope) (*model.Cart, error) {
	if scope.CustomerID != nil {
		return s.cartRepo.FindActiveByCustomer(scope.StoreID, scope.LocationID, *scope.CustomerID)
	}
	return s.cartRepo.FindActiveByDevice(scope.LocationID, scope.DeviceKey)
}

func (s *cartService) touch(cartID uint) error {
	return s.db.Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("expires_at", time.Now().Add(s.cartExpiry)).Error
}

// lockActiveCart loads the cart under a row lock so concurrent item
// mutations on the same cart serialize.
func (s *cartService) lockActiveCart(tx *gorm.DB, cartID uint) (*model.Cart, error) {
	var cart model.Cart
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cart, cartID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if cart.Status != model.CartStatusActive {
		return nil, ErrCartNotActive
	}
	return &cart, nil
}

// resolveStock picks the inventory record to pin a new cart line to: the
// cart's own location first, then other locations of the store ordered by
// distance. Only records whose available quantity covers the request count.
// Every read runs on the caller's transaction handle.
func (s *cartService) resolveStock(tx *gorm.DB, cart *model.Cart, productID uint, needed float64) (uint, error) {
	candidates, err := repository.AvailabilityByProduct(tx, productID, cart.StoreID)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, ErrOutOfStock
	}

	var location model.Location
	if err := tx.First(&location, cart.LocationID).Error; err != nil {
		return 0, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if (candidates[i].LocationID == cart.LocationID) != (candidates[j].LocationID == cart.LocationID) {
			return candidates[i].LocationID == cart.LocationID
		}
		di := util.CalculateDistance(location.Latitude, location.Longitude, candidates[i].Latitude, candidates[i].Longitude)
		dj := util.CalculateDistance(location.Latitude, location.Longitude, candidates[j].Latitude, candidates[j].Longitude)
		return di < dj
	})

	for _, candidate := range candidates {
		if candidate.Available >= needed {
			return candidate.InventoryRecordID, nil
		}
	}

	logger.Warn("No inventory record can cover the requested quantity", map[string]interface{}{
		"product_id": productID,
		"store_id":   cart.StoreID,
		"needed":     needed,
	})
	return 0, ErrOutOfStock
}

// recomputeTotals rewrites the cart's server-computed totals from its lines
// and refreshes the expiry clock. Runs inside the caller's transaction.
func (s *cartService) recomputeTotals(tx *gorm.DB, cart *model.Cart) error {
	var subtotal float64
	err := tx.Raw(`
		SELECT COALESCE(SUM(line_total), 0)
		FROM cart_items
		WHERE cart_id = ?`, cart.ID).Row().Scan(&subtotal)
	if err != nil {
		return err
	}

	var store model.Store
	if err := tx.First(&store, cart.StoreID).Error; err != nil {
		return err
	}

	tax := round2((subtotal - cart.Discount) * store.TaxRate)
	total := round2(subtotal - cart.Discount + tax)

	updates := map[string]interface{}{
		"subtotal":   subtotal,
		"tax":        tax,
		"total":      total,
		"expires_at": time.Now().Add(s.cartExpiry),
	}
	if err := tx.Model(&model.Cart{}).Where("id = ?", cart.ID).Updates(updates).Error; err != nil {
		return err
	}

	cart.Subtotal = subtotal
	cart.Tax = tax
	cart.Total = total
	return nil
}

func (s *cartService) publishCart(op feed.Operation, cart *model.Cart) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(feed.Event{
		Entity:    feed.EntityCart,
		Op:        op,
		EntityID:  cart.ID,
		Meta:      authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID},
		Row:       cart,
		Timestamp: time.Now(),
	})
}

func (s *cartService) publishItem(op feed.Operation, cart *model.Cart, item *model.CartItem) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(feed.Event{
		Entity:    feed.EntityCartItem,
		Op:        op,
		EntityID:  item.ID,
		Meta:      authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID},
		Row:       item,
		Timestamp: time.Now(),
	})
}

func (s *cartService) publishQueueEntry(op feed.Operation, cart *model.Cart, entry *model.QueueEntry) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(feed.Event{
		Entity:    feed.EntityQueueEntry,
		Op:        op,
		EntityID:  entry.ID,
		Meta:      authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID},
		Row:       entry,
		Timestamp: time.Now(),
	})
}

// removeFromQueue deletes a cart's queue entry and closes the position gap
// in the same transaction. Returns the removed entry, or nil when the cart
// was not enqueued.
func removeFromQueue(tx *gorm.DB, cartID uint) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cart_id = ?", cartID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := tx.Delete(&model.QueueEntry{}, entry.ID).Error; err != nil {
		return nil, err
	}

	err = tx.Model(&model.QueueEntry{}).
		Where("location_id = ? AND position > ?", entry.LocationID, entry.Position).
		Update("position", gorm.Expr("position - 1")).Error
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
