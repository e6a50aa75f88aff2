package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/mlee/checkline-backend/internal/errors"

	"github.com/google/uuid"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/mlee/checkline-backend/pkg/payment/terminalpay"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrIntentNotFound         = errors.New("payment intent not found")
	ErrIntentAlreadyTerminal  = errors.New("payment intent is already in a terminal state")
	ErrIntentNotProcessing    = errors.New("payment intent is not processing")
	ErrIntentNotCancelable    = errors.New("payment intent can only be canceled while pending")
	ErrCartEmpty              = errors.New("cart has no items")
	ErrPaymentDeclined        = errors.New("payment was declined")
	ErrReconciliationRequired = errors.New("settlement inconsistency, reconciliation required")
)

// PaymentProvider is the card terminal client surface the payment flow
// needs. terminalpay.Client satisfies it; tests substitute their own.
type PaymentProvider interface {
	Authorize(ctx context.Context, req terminalpay.AuthorizeRequest) (*terminalpay.AuthorizeResponse, error)
	Capture(ctx context.Context, req terminalpay.CaptureRequest) (*terminalpay.CaptureResponse, error)
	Status(ctx context.Context, transactionID string) (*terminalpay.StatusResponse, error)
	Void(ctx context.Context, req terminalpay.VoidRequest) (*terminalpay.VoidResponse, error)
}

type PaymentService interface {
	CreateIntent(cartID uint, method model.PaymentMethod) (*model.PaymentIntent, error)
	GetIntent(intentID string) (*model.PaymentIntent, error)
	BeginProcessing(ctx context.Context, intentID string) (*model.PaymentIntent, error)
	CompleteIntent(ctx context.Context, intentID string) (*model.Order, error)
	FailIntent(intentID, reason string) error
	CancelIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error)
	ReconcileStuckIntents(ctx context.Context, olderThan time.Duration) error
}

type paymentService struct {
	intentRepo repository.PaymentIntentRepository
	orderRepo  repository.OrderRepository
	storeRepo  repository.StoreRepository
	settlement SettlementService
	provider   PaymentProvider
	publisher  feed.Publisher
	db         *gorm.DB
}

func NewPaymentService(
	intentRepo repository.PaymentIntentRepository,
	orderRepo repository.OrderRepository,
	storeRepo repository.StoreRepository,
	settlement SettlementService,
	provider PaymentProvider,
	publisher feed.Publisher,
	db *gorm.DB,
) PaymentService {
	return &paymentService{
		intentRepo: intentRepo,
		orderRepo:  orderRepo,
		storeRepo:  storeRepo,
		settlement: settlement,
		provider:   provider,
		publisher:  publisher,
		db:         db,
	}
}

// CreateIntent opens a checkout attempt against an active, non-empty cart.
// The intent id is a fresh UUID; possession of the id is the only thing a
// status poll requires.
func (s *paymentService) CreateIntent(cartID uint, method model.PaymentMethod) (*model.PaymentIntent, error) {
	logger.Info("Creating payment intent", map[string]interface{}{
		"cart_id": cartID,
		"method":  method,
	})

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during intent creation, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cartID,
			})
		}
	}()

	var cart model.Cart
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cart, cartID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if cart.Status != model.CartStatusActive {
		tx.Rollback()
		return nil, ErrCartNotActive
	}

	var itemCount int64
	if err := tx.Model(&model.CartItem{}).Where("cart_id = ?", cartID).Count(&itemCount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if itemCount == 0 {
		tx.Rollback()
		return nil, ErrCartEmpty
	}

	intent := &model.PaymentIntent{
		ID:         uuid.NewString(),
		StoreID:    cart.StoreID,
		LocationID: cart.LocationID,
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		DeviceKey:  cart.DeviceKey,
		Amount:     cart.Total,
		Method:     method,
		State:      model.IntentStatePending,
	}
	if err := tx.Create(intent).Error; err != nil {
		tx.Rollback()
		logger.Error("Failed to create payment intent", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info("Payment intent created", map[string]interface{}{
		"intent_id": intent.ID,
		"cart_id":   cartID,
		"amount":    intent.Amount,
	})
	return intent, nil
}

func (s *paymentService) GetIntent(intentID string) (*model.PaymentIntent, error) {
	intent, err := s.intentRepo.FindByID(intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// BeginProcessing moves a pending intent to processing and, for card
// payments, opens the terminal transaction. Calling it on an intent that is
// already processing returns the intent unchanged.
func (s *paymentService) BeginProcessing(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	intent, err := s.GetIntent(intentID)
	if err != nil {
		return nil, err
	}
	if intent.State == model.IntentStateProcessing {
		return intent, nil
	}
	if intent.State.Terminal() {
		return nil, ErrIntentAlreadyTerminal
	}

	// Guarded update: only one of N concurrent calls flips pending to
	// processing; the rest observe zero affected rows and re-read.
	res := s.db.Model(&model.PaymentIntent{}).
		Where("id = ? AND state = ?", intentID, model.IntentStatePending).
		Update("state", model.IntentStateProcessing)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return s.BeginProcessing(ctx, intentID)
	}
	intent.State = model.IntentStateProcessing

	logger.Info("Payment intent processing", map[string]interface{}{
		"intent_id": intentID,
		"method":    intent.Method,
	})

	if intent.Method != model.PaymentMethodCard {
		return intent, nil
	}

	store, err := s.storeRepo.FindByID(intent.StoreID)
	if err != nil {
		return nil, err
	}

	authResp, err := s.provider.Authorize(ctx, terminalpay.AuthorizeRequest{
		ReferenceID: intent.ID,
		Amount:      intent.Amount,
		Currency:    store.Currency,
	})
	if err != nil {
		logger.Error("Terminal authorization failed", err, map[string]interface{}{
			"intent_id": intentID,
		})
		if errors.Is(err, terminalpay.ErrDeclined) {
			if ferr := s.FailIntent(intentID, "card declined at authorization"); ferr != nil {
				return nil, ferr
			}
			return nil, ErrPaymentDeclined
		}
		// Network or provider failure leaves the intent processing; the
		// reconciliation pass resolves it against provider state.
		return nil, err
	}

	err = s.db.Model(&model.PaymentIntent{}).
		Where("id = ?", intentID).
		Update("provider_ref", authResp.TransactionID).Error
	if err != nil {
		return nil, err
	}
	intent.ProviderRef = authResp.TransactionID
	return intent, nil
}

// CompleteIntent captures the terminal transaction and records the whole
// settlement in one transaction: the order snapshot, the sale deltas, the
// loyalty award, the cart completion and the dequeue. Replaying a succeeded
// intent returns the stored order instead of settling twice.
func (s *paymentService) CompleteIntent(ctx context.Context, intentID string) (*model.Order, error) {
	intent, err := s.GetIntent(intentID)
	if err != nil {
		return nil, err
	}

	if intent.State == model.IntentStateSucceeded {
		logger.Debug("Completion replayed on succeeded intent", map[string]interface{}{
			"intent_id": intentID,
		})
		return s.orderRepo.FindByIntentID(intentID)
	}
	if intent.State.Terminal() {
		return nil, ErrIntentAlreadyTerminal
	}
	if intent.State != model.IntentStateProcessing {
		return nil, ErrIntentNotProcessing
	}

	if intent.Method == model.PaymentMethodCard {
		if err := s.capture(ctx, intent); err != nil {
			return nil, err
		}
	}

	return s.settle(intent)
}

// capture settles the terminal transaction. A transaction the provider
// already reports captured is fine; a reconciliation retry lands here.
func (s *paymentService) capture(ctx context.Context, intent *model.PaymentIntent) error {
	status, err := s.provider.Status(ctx, intent.ProviderRef)
	if err == nil && status.Status == terminalpay.StatusCaptured {
		return nil
	}

	_, err = s.provider.Capture(ctx, terminalpay.CaptureRequest{
		TransactionID: intent.ProviderRef,
	})
	if err != nil {
		logger.Error("Terminal capture failed", err, map[string]interface{}{
			"intent_id":    intent.ID,
			"provider_ref": intent.ProviderRef,
		})
		if errors.Is(err, terminalpay.ErrDeclined) {
			if ferr := s.FailIntent(intent.ID, "card declined at capture"); ferr != nil {
				return ferr
			}
			return ErrPaymentDeclined
		}
		return err
	}
	return nil
}

// settle runs the all-or-nothing settlement transaction. On a uniqueness
// conflict from the settlement guards the intent stays processing and the
// caller gets ErrReconciliationRequired; the money moved but the records
// disagree, and only the reconciliation pass may decide what is missing.
func (s *paymentService) settle(intent *model.PaymentIntent) (*model.Order, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during settlement, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"intent_id": intent.ID,
			})
		}
	}()

	var cart model.Cart
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&cart, intent.CartID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// An abandoned cart can still settle: an abandonment may have raced the
	// capture, and the captured money must end up in an order. Only a
	// completed cart refuses, because completion means another settlement won.
	if cart.Status == model.CartStatusCompleted {
		tx.Rollback()
		logger.Warn("Settlement refused: cart already completed", map[string]interface{}{
			"intent_id": intent.ID,
			"cart_id":   cart.ID,
		})
		return nil, ErrCartNotActive
	}
	if len(cart.Items) == 0 {
		tx.Rollback()
		return nil, ErrCartEmpty
	}

	order := model.Order{
		StoreID:         cart.StoreID,
		LocationID:      cart.LocationID,
		CustomerID:      cart.CustomerID,
		DeviceKey:       cart.DeviceKey,
		CartID:          cart.ID,
		PaymentIntentID: intent.ID,
		Subtotal:        cart.Subtotal,
		Discount:        cart.Discount,
		Tax:             cart.Tax,
		Total:           cart.Total,
	}
	for _, item := range cart.Items {
		order.Items = append(order.Items, model.OrderItem{
			ProductID:         item.ProductID,
			PriceTierID:       item.PriceTierID,
			InventoryRecordID: item.InventoryRecordID,
			Quantity:          item.Quantity,
			TierQuantity:      item.TierQuantity,
			UnitPrice:         item.UnitPrice,
			LineTotal:         item.LineTotal,
		})
	}

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		if apperrors.IsUniqueViolation(err) {
			return nil, s.markInconsistent(intent.ID, err)
		}
		return nil, err
	}

	award, err := s.settlement.Settle(tx, &order)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrSettlementConflict) {
			return nil, s.markInconsistent(intent.ID, err)
		}
		return nil, err
	}

	if err := tx.Model(&model.Cart{}).
		Where("id = ?", cart.ID).
		Update("status", model.CartStatusCompleted).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	cart.Status = model.CartStatusCompleted

	removed, err := removeFromQueue(tx, cart.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.Model(&model.PaymentIntent{}).
		Where("id = ?", intent.ID).
		Updates(map[string]interface{}{
			"state":    model.IntentStateSucceeded,
			"order_id": order.ID,
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit settlement", err, map[string]interface{}{
			"intent_id": intent.ID,
		})
		return nil, err
	}

	logger.Info("Payment intent succeeded", map[string]interface{}{
		"intent_id": intent.ID,
		"order_id":  order.ID,
		"total":     order.Total,
	})

	s.publishSettlement(&cart, &order, removed, award)
	return &order, nil
}

// markInconsistent leaves the intent processing and flags it for the
// reconciliation pass. Guessing at a repair here could double an effect the
// guard just refused.
func (s *paymentService) markInconsistent(intentID string, cause error) error {
	logger.Error("Settlement inconsistency detected, reconciliation required", cause, map[string]interface{}{
		"intent_id":               intentID,
		"reconciliation_required": true,
	})
	return ErrReconciliationRequired
}

func (s *paymentService) FailIntent(intentID, reason string) error {
	intent, err := s.GetIntent(intentID)
	if err != nil {
		return err
	}
	if intent.State == model.IntentStateFailed {
		return nil
	}
	if intent.State.Terminal() {
		return ErrIntentAlreadyTerminal
	}

	err = s.db.Model(&model.PaymentIntent{}).
		Where("id = ? AND state IN ?", intentID,
			[]model.IntentState{model.IntentStatePending, model.IntentStateProcessing}).
		Updates(map[string]interface{}{
			"state":          model.IntentStateFailed,
			"failure_reason": reason,
		}).Error
	if err != nil {
		return err
	}

	logger.Info("Payment intent failed", map[string]interface{}{
		"intent_id": intentID,
		"reason":    reason,
	})
	return nil
}

// CancelIntent abandons a checkout attempt. Only pending intents cancel;
// once processing starts the terminal may hold money, and only completion
// or reconciliation decides.
func (s *paymentService) CancelIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	intent, err := s.GetIntent(intentID)
	if err != nil {
		return nil, err
	}
	if intent.State == model.IntentStateCanceled {
		return intent, nil
	}
	if intent.State != model.IntentStatePending {
		return nil, ErrIntentNotCancelable
	}

	res := s.db.Model(&model.PaymentIntent{}).
		Where("id = ? AND state = ?", intentID, model.IntentStatePending).
		Update("state", model.IntentStateCanceled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrIntentNotCancelable
	}
	intent.State = model.IntentStateCanceled

	logger.Info("Payment intent canceled", map[string]interface{}{
		"intent_id": intentID,
	})
	return intent, nil
}

// ReconcileStuckIntents resolves intents that sat in processing longer than
// olderThan by asking the provider what actually happened to the money.
func (s *paymentService) ReconcileStuckIntents(ctx context.Context, olderThan time.Duration) error {
	stuck, err := s.intentRepo.FindStuckProcessing(time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	logger.Info("Reconciling stuck payment intents", map[string]interface{}{
		"count": len(stuck),
	})

	for i := range stuck {
		intent := &stuck[i]
		if err := s.reconcileIntent(ctx, intent); err != nil {
			logger.Error("Failed to reconcile payment intent", err, map[string]interface{}{
				"intent_id": intent.ID,
			})
		}
	}
	return nil
}

func (s *paymentService) reconcileIntent(ctx context.Context, intent *model.PaymentIntent) error {
	// An order row means the settlement transaction committed but the state
	// flip was lost, or the guards tripped mid-way. Repair effect by effect.
	if order, err := s.orderRepo.FindByIntentID(intent.ID); err == nil {
		if err := s.settlement.ReconcileOrder(order.ID); err != nil {
			return err
		}
		return s.db.Model(&model.PaymentIntent{}).
			Where("id = ? AND state = ?", intent.ID, model.IntentStateProcessing).
			Updates(map[string]interface{}{
				"state":    model.IntentStateSucceeded,
				"order_id": order.ID,
			}).Error
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if intent.Method != model.PaymentMethodCard || intent.ProviderRef == "" {
		return s.FailIntent(intent.ID, "processing expired without settlement")
	}

	status, err := s.provider.Status(ctx, intent.ProviderRef)
	if err != nil {
		return err
	}

	switch status.Status {
	case terminalpay.StatusCaptured:
		_, err := s.settle(intent)
		return err
	case terminalpay.StatusAuthorized:
		// Money is held but never captured. Release it and fail the intent.
		if _, err := s.provider.Void(ctx, terminalpay.VoidRequest{TransactionID: intent.ProviderRef}); err != nil {
			return err
		}
		return s.FailIntent(intent.ID, "authorization voided by reconciliation")
	case terminalpay.StatusDeclined, terminalpay.StatusVoided:
		return s.FailIntent(intent.ID, "provider reports "+status.Status)
	default:
		logger.Warn("Unknown provider status during reconciliation", map[string]interface{}{
			"intent_id": intent.ID,
			"status":    status.Status,
		})
		return nil
	}
}

func (s *paymentService) publishSettlement(cart *model.Cart, order *model.Order, removed *model.QueueEntry, award *model.LoyaltyTransaction) {
	if s.publisher == nil {
		return
	}
	meta := authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID}
	now := time.Now()

	s.publisher.Publish(feed.Event{
		Entity: feed.EntityOrder, Op: feed.OpInsert, EntityID: order.ID,
		Meta: meta, Row: order, Timestamp: now,
	})
	s.publisher.Publish(feed.Event{
		Entity: feed.EntityCart, Op: feed.OpUpdate, EntityID: cart.ID,
		Meta: meta, Row: cart, Timestamp: now,
	})
	if removed != nil {
		s.publisher.Publish(feed.Event{
			Entity: feed.EntityQueueEntry, Op: feed.OpDelete, EntityID: removed.ID,
			Meta: meta, Row: removed, Timestamp: now,
		})
	}
	if award != nil {
		s.publisher.Publish(feed.Event{
			Entity: feed.EntityLoyalty, Op: feed.OpInsert, EntityID: award.ID,
			Meta: meta, Row: award, Timestamp: now,
		})
	}
}
