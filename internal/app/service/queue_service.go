package service

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/mlee/checkline-backend/internal/errors"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrQueueEntryNotFound = errors.New("queue entry not found")
)

type QueueService interface {
	Enqueue(scope CartScope) (*model.QueueEntry, error)
	Dequeue(cartID uint) error
	ListQueue(locationID uint) ([]model.QueueEntry, error)
	GetEntryByCart(cartID uint) (*model.QueueEntry, error)
}

type queueService struct {
	queueRepo repository.QueueRepository
	cartSvc   CartService
	publisher feed.Publisher
	db        *gorm.DB
}

func NewQueueService(
	queueRepo repository.QueueRepository,
	cartSvc CartService,
	publisher feed.Publisher,
	db *gorm.DB,
) QueueService {
	return &queueService{
		queueRepo: queueRepo,
		cartSvc:   cartSvc,
		publisher: publisher,
		db:        db,
	}
}

// Enqueue places the caller's active cart at the tail of the location's
// queue, resolving the cart first so a device can join the line before
// adding a single item. Positions are dense per location; the unique index
// on cart_id makes a repeated call return the existing entry instead of a
// second one.
func (s *queueService) Enqueue(scope CartScope) (*model.QueueEntry, error) {
	cart, err := s.cartSvc.GetOrCreateCart(scope, false)
	if err != nil {
		return nil, err
	}

	logger.Info("Enqueueing cart", map[string]interface{}{
		"cart_id":     cart.ID,
		"location_id": cart.LocationID,
	})

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during enqueue, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cart.ID,
			})
		}
	}()

	var locked model.Cart
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, cart.ID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if locked.Status != model.CartStatusActive {
		tx.Rollback()
		return nil, ErrCartNotActive
	}

	position, err := repository.NextPosition(tx, cart.LocationID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := model.QueueEntry{
		LocationID: cart.LocationID,
		CartID:     cart.ID,
		Position:   position,
	}
	if err := tx.Create(&entry).Error; err != nil {
		tx.Rollback()
		if apperrors.IsUniqueViolation(err) {
			existing, ferr := s.queueRepo.FindByCartID(cart.ID)
			if ferr != nil {
				return nil, ferr
			}
			logger.Debug("Cart already enqueued, returning existing entry", map[string]interface{}{
				"cart_id":  cart.ID,
				"position": existing.Position,
			})
			return existing, nil
		}
		logger.Error("Failed to create queue entry", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit enqueue", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(feed.Event{
			Entity:    feed.EntityQueueEntry,
			Op:        feed.OpInsert,
			EntityID:  entry.ID,
			Meta:      authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID},
			Row:       entry,
			Timestamp: time.Now(),
		})
	}

	return &entry, nil
}

// Dequeue removes a cart from the line and closes the position gap in the
// same transaction, so positions stay dense. The cart itself stays active;
// checkout decides its fate.
func (s *queueService) Dequeue(cartID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during dequeue, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	var cart model.Cart
	if err := tx.First(&cart, cartID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCartNotFound
		}
		return err
	}

	removed, err := removeFromQueue(tx, cartID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if removed == nil {
		tx.Rollback()
		return ErrQueueEntryNotFound
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit dequeue", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return err
	}

	logger.Info("Cart dequeued", map[string]interface{}{
		"cart_id":     cartID,
		"location_id": removed.LocationID,
		"position":    removed.Position,
	})

	if s.publisher != nil {
		s.publisher.Publish(feed.Event{
			Entity:    feed.EntityQueueEntry,
			Op:        feed.OpDelete,
			EntityID:  removed.ID,
			Meta:      authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID},
			Row:       removed,
			Timestamp: time.Now(),
		})
	}
	return nil
}

func (s *queueService) ListQueue(locationID uint) ([]model.QueueEntry, error) {
	return s.queueRepo.ListByLocation(locationID)
}

func (s *queueService) GetEntryByCart(cartID uint) (*model.QueueEntry, error) {
	entry, err := s.queueRepo.FindByCartID(cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}
