package scheduler

import (
	"context"
	"time"

	"github.com/mlee/checkline-backend/config"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/app/service"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// expiredBatchSize bounds one sweep pass; leftovers wait for the next tick.
const expiredBatchSize = 200

// SweepScheduler runs the background maintenance jobs: abandoning expired
// carts, reconciling stuck payment intents, and archiving the daily audit
// export.
type SweepScheduler struct {
	cron           *cron.Cron
	cartService    service.CartService
	paymentService service.PaymentService
	auditService   service.AuditService
	cartRepo       repository.CartRepository
	storeRepo      repository.StoreRepository
	sweepConfig    config.SweepConfig
}

func NewSweepScheduler(
	cartService service.CartService,
	paymentService service.PaymentService,
	auditService service.AuditService,
	cartRepo repository.CartRepository,
	storeRepo repository.StoreRepository,
	sweepConfig config.SweepConfig,
) *SweepScheduler {
	return &SweepScheduler{
		cron:           cron.New(),
		cartService:    cartService,
		paymentService: paymentService,
		auditService:   auditService,
		cartRepo:       cartRepo,
		storeRepo:      storeRepo,
		sweepConfig:    sweepConfig,
	}
}

// Start registers the cron jobs and starts the scheduler.
func (s *SweepScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepConfig.ExpirySchedule, s.sweepExpiredCarts); err != nil {
		logger.Error("Failed to add cart expiry sweep job", err)
		return err
	}

	if _, err := s.cron.AddFunc(s.sweepConfig.ReconcileSchedule, s.reconcileStuckIntents); err != nil {
		logger.Error("Failed to add intent reconciliation job", err)
		return err
	}

	if _, err := s.cron.AddFunc(s.sweepConfig.AuditSchedule, s.archiveDailyAudit); err != nil {
		logger.Error("Failed to add audit archive job", err)
		return err
	}

	s.cron.Start()
	logger.Info("Sweep scheduler started", map[string]interface{}{
		"expiry_schedule":    s.sweepConfig.ExpirySchedule,
		"reconcile_schedule": s.sweepConfig.ReconcileSchedule,
		"audit_schedule":     s.sweepConfig.AuditSchedule,
	})
	return nil
}

// Stop stops the scheduler.
func (s *SweepScheduler) Stop() {
	logger.Info("Stopping sweep scheduler...", nil)
	s.cron.Stop()
	logger.Info("Sweep scheduler stopped", nil)
}

// sweepExpiredCarts abandons active carts whose expiry clock ran out. Each
// abandonment removes the cart from the queue and fans the change out, the
// same path an explicit abandon takes.
func (s *SweepScheduler) sweepExpiredCarts() {
	carts, err := s.cartRepo.FindExpired(time.Now(), expiredBatchSize)
	if err != nil {
		logger.Error("Failed to list expired carts", err)
		return
	}
	if len(carts) == 0 {
		return
	}

	logger.Info("Sweeping expired carts", map[string]interface{}{
		"count": len(carts),
	})

	swept := 0
	for _, cart := range carts {
		if err := s.cartService.AbandonCart(cart.ID); err != nil {
			logger.Error("Failed to abandon expired cart", err, map[string]interface{}{
				"cart_id": cart.ID,
			})
			continue
		}
		swept++
	}

	logger.Info("Expired cart sweep finished", map[string]interface{}{
		"swept": swept,
	})
}

// reconcileStuckIntents resolves payment intents that sat in processing
// longer than the sweep interval allows.
func (s *SweepScheduler) reconcileStuckIntents() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.paymentService.ReconcileStuckIntents(ctx, s.sweepConfig.CartExpiry); err != nil {
		logger.Error("Intent reconciliation pass failed", err)
	}
}

// archiveDailyAudit uploads yesterday's ledger workbook for every store.
func (s *SweepScheduler) archiveDailyAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stores, err := s.storeRepo.List()
	if err != nil {
		logger.Error("Failed to list stores for audit archive", err)
		return
	}

	to := time.Now().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -1)

	for _, store := range stores {
		url, err := s.auditService.ArchiveLedger(ctx, store.ID, from, to)
		if err != nil {
			if err == service.ErrArchiveUnavailable {
				logger.Warn("Audit archive skipped: storage not configured", nil)
				return
			}
			logger.Error("Failed to archive daily audit", err, map[string]interface{}{
				"store_id": store.ID,
			})
			continue
		}
		logger.Info("Daily audit archived", map[string]interface{}{
			"store_id": store.ID,
			"url":      url,
		})
	}
}
