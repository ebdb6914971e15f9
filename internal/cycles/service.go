package cycles

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/internal/eligibility"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/internal/orders"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	"github.com/cratebox/cratebox-backend/internal/subscriptions"
	dbpkg "github.com/cratebox/cratebox-backend/pkg/db"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/logger"
	"github.com/cratebox/cratebox-backend/pkg/metrics"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
)

const (
	defaultPageSize = 200

	uniqueOrderConstraint = "ux_orders_subscription_cycle"

	reasonCycleProcessed = "cycle already processed"
)

// systemActorID attributes batch-generated history entries. The batch
// has no human caller.
var systemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter queues side-effect intents inside the caller's transaction.
type OutboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns delivery cycles and the batch order generator.
type Service interface {
	Create(ctx context.Context, input CreateCycleInput) (*models.DeliveryCycle, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DeliveryCycle, error)
	ListUpcoming(ctx context.Context, limit int) ([]models.DeliveryCycle, error)
	// Run generates orders for one delivery cycle. Safe to re-run: the
	// unique (subscription_id, cycle_id) index makes repeats no-ops.
	Run(ctx context.Context, cycleID uuid.UUID) (*Report, error)
}

type service struct {
	cycleRepo   Repository
	subRepo     subscriptions.Repository
	orderRepo   orders.Repository
	historyRepo history.Repository
	historySvc  history.Service
	pricingSvc  pricing.Service
	outboxSvc   OutboxEmitter
	tx          TxRunner
	logg        *logger.Logger
	runMetrics  *metrics.CycleRunMetrics
	pageSize    int
	now         func() time.Time
}

// Config tunes the generator.
type Config struct {
	PageSize int
}

// NewService wires the cycle service. Metrics and logger may be nil.
func NewService(
	cycleRepo Repository,
	subRepo subscriptions.Repository,
	orderRepo orders.Repository,
	historyRepo history.Repository,
	historySvc history.Service,
	pricingSvc pricing.Service,
	outboxSvc OutboxEmitter,
	tx TxRunner,
	logg *logger.Logger,
	runMetrics *metrics.CycleRunMetrics,
	cfg Config,
) (Service, error) {
	if cycleRepo == nil || subRepo == nil || orderRepo == nil {
		return nil, fmt.Errorf("cycle, subscription, and order repositories required")
	}
	if historyRepo == nil || historySvc == nil {
		return nil, fmt.Errorf("history recorder required")
	}
	if pricingSvc == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &service{
		cycleRepo:   cycleRepo,
		subRepo:     subRepo,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		historySvc:  historySvc,
		pricingSvc:  pricingSvc,
		outboxSvc:   outboxSvc,
		tx:          tx,
		logg:        logg,
		runMetrics:  runMetrics,
		pageSize:    pageSize,
		now:         time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateCycleInput) (*models.DeliveryCycle, error) {
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "cycle name is required")
	}
	if input.DeliveryDate.IsZero() {
		return nil, apperrors.New(apperrors.CodeValidation, "delivery date is required")
	}
	cycle := &models.DeliveryCycle{
		Name:               input.Name,
		DeliveryDate:       input.DeliveryDate,
		SeasonalQualifying: input.SeasonalQualifying,
		Status:             enums.CycleStatusScheduled,
	}
	if err := s.cycleRepo.Create(ctx, cycle); err != nil {
		return nil, err
	}
	return cycle, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DeliveryCycle, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "cycle id is required")
	}
	return s.cycleRepo.GetByID(ctx, id)
}

func (s *service) ListUpcoming(ctx context.Context, limit int) ([]models.DeliveryCycle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.cycleRepo.ListUpcoming(ctx, s.now(), limit)
}

// Run iterates every subscription once and settles what the cycle owes
// it. Each generated order commits atomically with the subscription
// pointer update, its history entry, and its outbox intent; one
// subscription's failure never aborts the run.
func (s *service) Run(ctx context.Context, cycleID uuid.UUID) (*Report, error) {
	if cycleID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "cycle id is required")
	}
	cycle, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		s.observeRun("failed")
		return nil, err
	}
	if cycle.Status == enums.CycleStatusClosed {
		s.observeRun("failed")
		return nil, apperrors.New(apperrors.CodeStateConflict, "cycle is closed")
	}

	// A processed cycle accepts no new work. Subscriptions resumed
	// after the cycle ran stay excluded instead of receiving a
	// retroactive order; existing orders still count as skipped.
	alreadyProcessed := cycle.Status == enums.CycleStatusProcessed

	report := &Report{CycleID: cycleID, Errors: []SubscriptionError{}}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithCycleID(ctx, cycleID.String())
		s.logg.Info(logCtx, "cycle order generation started")
	}

	for offset := 0; ; offset += s.pageSize {
		page, err := s.subRepo.ListPage(ctx, offset, s.pageSize)
		if err != nil {
			s.observeRun("failed")
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			s.processSubscription(logCtx, cycle, &page[i], alreadyProcessed, report)
		}
		if len(page) < s.pageSize {
			break
		}
	}

	if len(report.Errors) == 0 && cycle.Status == enums.CycleStatusScheduled {
		if _, err := s.cycleRepo.UpdateStatusGuarded(ctx, cycleID, enums.CycleStatusScheduled, enums.CycleStatusProcessed); err != nil {
			report.Errors = append(report.Errors, SubscriptionError{Message: fmt.Sprintf("marking cycle processed: %v", err)})
		}
	}

	s.recordRunMetrics(report)
	if s.logg != nil {
		summary := s.logg.WithFields(logCtx, map[string]any{
			"generated": report.Generated,
			"skipped":   report.Skipped,
			"excluded":  report.Excluded,
			"errors":    len(report.Errors),
		})
		s.logg.Info(summary, "cycle order generation finished")
	}
	return report, nil
}

func (s *service) processSubscription(ctx context.Context, cycle *models.DeliveryCycle, sub *models.Subscription, alreadyProcessed bool, report *Report) {
	exists, err := s.orderRepo.ExistsForSubscriptionCycle(ctx, sub.ID, cycle.ID)
	if err != nil {
		s.recordError(ctx, report, sub.ID, err)
		return
	}

	decision := eligibility.Resolve(eligibility.Input{
		Status:             sub.Status,
		Frequency:          sub.Frequency,
		HasExistingOrder:   exists,
		SeasonalQualifying: cycle.SeasonalQualifying,
		BoxSellable:        sub.BoxType != nil && sub.BoxType.Sellable,
	})

	switch decision.Outcome {
	case eligibility.OutcomeSkipped:
		report.Skipped++
		return
	case eligibility.OutcomeExcluded:
		report.Excluded++
		return
	}

	if alreadyProcessed {
		report.Excluded++
		return
	}

	if err := s.generateOrder(ctx, cycle, sub); err != nil {
		if dbpkg.IsUniqueViolation(err, uniqueOrderConstraint) {
			// A concurrent run got there first; the work is done.
			report.Skipped++
			return
		}
		s.recordError(ctx, report, sub.ID, err)
		return
	}
	report.Generated++
}

// generateOrder is the per-subscription atomic unit: order row,
// last-delivered pointer, history entry, and outbox intent commit or
// roll back together.
func (s *service) generateOrder(ctx context.Context, cycle *models.DeliveryCycle, sub *models.Subscription) error {
	finalPrice := sub.CurrentPrice
	var resolvedCode *string
	if sub.PromoCode != nil && *sub.PromoCode != "" {
		quote, err := s.pricingSvc.ComputePriceForBox(ctx, sub.BoxType, *sub.PromoCode, &sub.UserID)
		if err != nil {
			return err
		}
		if quote.ResolvedCode != nil {
			// Stored promo still applies: honor the freshly computed price.
			finalPrice = quote.FinalPrice
			resolvedCode = quote.ResolvedCode
		}
		// Otherwise the stored code has expired or been disabled since
		// checkout; fall back to the subscription's current price.
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subID := sub.ID
		order := &models.Order{
			SubscriptionID: &subID,
			CycleID:        cycle.ID,
			BoxTypeID:      sub.BoxTypeID,
			FinalPrice:     finalPrice,
			PromoCode:      resolvedCode,
			Status:         enums.OrderStatusPending,
		}
		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.subRepo.WithTx(tx).SetLastDeliveredCycle(ctx, sub.ID, cycle.ID); err != nil {
			return err
		}

		details, err := history.MarshalChange(nil, map[string]any{
			"order_id":    order.ID,
			"cycle_id":    cycle.ID,
			"final_price": finalPrice,
		})
		if err != nil {
			return err
		}
		if _, err := s.historySvc.WithRepo(s.historyRepo.WithTx(tx)).Record(ctx, history.RecordEntryInput{
			SubscriptionID: sub.ID,
			Action:         enums.HistoryActionOrderGenerated,
			PerformedBy:    systemActorID,
			ActorRole:      enums.ActorRoleSystem,
			Details:        details,
		}); err != nil {
			return err
		}

		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderGenerated,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"order_id":        order.ID,
				"subscription_id": sub.ID,
				"cycle_id":        cycle.ID,
				"user_id":         sub.UserID,
			},
			Version: 1,
		})
	})
}

func (s *service) recordError(ctx context.Context, report *Report, subscriptionID uuid.UUID, err error) {
	report.Errors = append(report.Errors, SubscriptionError{
		SubscriptionID: subscriptionID,
		Message:        err.Error(),
	})
	if s.logg != nil {
		errCtx := s.logg.WithSubscriptionID(ctx, subscriptionID.String())
		s.logg.Error(errCtx, "cycle order generation failed for subscription", err)
	}
}

func (s *service) observeRun(status string) {
	if s.runMetrics != nil {
		s.runMetrics.IncRun(status)
	}
}

func (s *service) recordRunMetrics(report *Report) {
	if s.runMetrics == nil {
		return
	}
	s.runMetrics.AddOutcome("generated", report.Generated)
	s.runMetrics.AddOutcome("skipped", report.Skipped)
	s.runMetrics.AddOutcome("excluded", report.Excluded)
	s.runMetrics.AddOutcome("error", len(report.Errors))
	if len(report.Errors) == 0 {
		s.runMetrics.IncRun("ok")
	} else {
		s.runMetrics.IncRun("failed")
	}
}
