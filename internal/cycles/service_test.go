package cycles

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/internal/orders"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	"github.com/cratebox/cratebox-backend/internal/subscriptions"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
)

const sqliteUUIDDefault = `(lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-4' || substr(lower(hex(randomblob(2))),2) || '-' || substr('89ab', abs(random()) % 4 + 1, 1) || substr(lower(hex(randomblob(2))),2) || '-' || lower(hex(randomblob(6))))`

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r *sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCyclesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS box_types (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  base_price NUMERIC NOT NULL,
  sellable INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  box_type_id TEXT NOT NULL,
  frequency TEXT NOT NULL DEFAULT 'monthly',
  status TEXT NOT NULL DEFAULT 'active',
  base_price NUMERIC NOT NULL,
  discount_percent INTEGER NOT NULL DEFAULT 0,
  current_price NUMERIC NOT NULL,
  promo_code TEXT,
  address_id TEXT NOT NULL,
  size_preference TEXT,
  favorite_colors TEXT,
  exclusions TEXT,
  gift_note TEXT,
  started_at DATETIME NOT NULL,
  paused_at DATETIME,
  cancelled_at DATETIME,
  cancellation_reason TEXT,
  last_delivered_cycle_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS delivery_cycles (
  id TEXT PRIMARY KEY DEFAULT ` + sqliteUUIDDefault + `,
  name TEXT NOT NULL,
  delivery_date DATETIME NOT NULL,
  seasonal_qualifying INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'scheduled',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY DEFAULT ` + sqliteUUIDDefault + `,
  subscription_id TEXT,
  cycle_id TEXT NOT NULL,
  box_type_id TEXT NOT NULL,
  final_price NUMERIC NOT NULL,
  promo_code TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_subscription_cycle
  ON orders (subscription_id, cycle_id)
  WHERE subscription_id IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS subscription_history (
  id TEXT PRIMARY KEY DEFAULT ` + sqliteUUIDDefault + `,
  subscription_id TEXT NOT NULL,
  action TEXT NOT NULL,
  performed_by TEXT NOT NULL,
  actor_role TEXT NOT NULL,
  details TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY DEFAULT ` + sqliteUUIDDefault + `,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
		`CREATE TABLE IF NOT EXISTS promo_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL,
  discount_percent INTEGER NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  starts_at DATETIME,
  ends_at DATETIME,
  max_uses INTEGER,
  current_uses INTEGER NOT NULL DEFAULT 0,
  max_uses_per_user INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS promo_redemptions (
  id TEXT PRIMARY KEY DEFAULT ` + sqliteUUIDDefault + `,
  promo_code_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  subscription_id TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type harness struct {
	db        *gorm.DB
	svc       Service
	cycleRepo Repository
	subRepo   subscriptions.Repository
	orderRepo orders.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupCyclesTestDB(t)

	cycleRepo := NewRepository(db)
	subRepo := subscriptions.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	historyRepo := history.NewRepository(db)
	historySvc, err := history.NewService(historyRepo)
	require.NoError(t, err)

	boxRepo := boxes.NewRepository(db)
	promoRepo := pricing.NewRepository(db)
	txRunner := &sqliteTxRunner{db: db}
	pricingSvc, err := pricing.NewService(boxRepo, promoRepo, txRunner)
	require.NoError(t, err)

	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)

	svc, err := NewService(
		cycleRepo, subRepo, orderRepo,
		historyRepo, historySvc, pricingSvc, outboxSvc,
		txRunner, nil, nil,
		Config{PageSize: 25},
	)
	require.NoError(t, err)

	return &harness{db: db, svc: svc, cycleRepo: cycleRepo, subRepo: subRepo, orderRepo: orderRepo}
}

func (h *harness) seedBox(t *testing.T, sellable bool) *models.BoxType {
	t.Helper()
	box := &models.BoxType{
		ID:        uuid.New(),
		Code:      fmt.Sprintf("box-%s", uuid.NewString()[:8]),
		Name:      "Classic Box",
		BasePrice: decimal.RequireFromString("29.99"),
		Sellable:  sellable,
	}
	require.NoError(t, h.db.Create(box).Error)
	if !sellable {
		// gorm omits zero-valued fields that carry a default tag.
		require.NoError(t, h.db.Model(box).UpdateColumn("sellable", false).Error)
	}
	return box
}

func (h *harness) seedCycle(t *testing.T, seasonal bool) *models.DeliveryCycle {
	t.Helper()
	cycle := &models.DeliveryCycle{
		ID:                 uuid.New(),
		Name:               "March Drop",
		DeliveryDate:       time.Now().Add(7 * 24 * time.Hour),
		SeasonalQualifying: seasonal,
		Status:             enums.CycleStatusScheduled,
	}
	require.NoError(t, h.db.Create(cycle).Error)
	return cycle
}

type subOpts struct {
	status    enums.SubscriptionStatus
	frequency enums.SubscriptionFrequency
	promoCode *string
}

func (h *harness) seedSub(t *testing.T, box *models.BoxType, opts subOpts) *models.Subscription {
	t.Helper()
	if opts.status == "" {
		opts.status = enums.SubscriptionStatusActive
	}
	if opts.frequency == "" {
		opts.frequency = enums.SubscriptionFrequencyMonthly
	}
	sub := &models.Subscription{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		BoxTypeID:    box.ID,
		Frequency:    opts.frequency,
		Status:       opts.status,
		BasePrice:    box.BasePrice,
		CurrentPrice: box.BasePrice,
		PromoCode:    opts.promoCode,
		AddressID:    uuid.New(),
		StartedAt:    time.Now().Add(-60 * 24 * time.Hour),
	}
	if opts.status == enums.SubscriptionStatusCancelled {
		now := time.Now()
		reason := "test cancellation"
		sub.CancelledAt = &now
		sub.CancellationReason = &reason
	}
	require.NoError(t, h.db.Create(sub).Error)
	return sub
}

func (h *harness) orderCount(t *testing.T, cycleID uuid.UUID) int64 {
	t.Helper()
	count, err := h.orderRepo.CountByCycleID(context.Background(), cycleID)
	require.NoError(t, err)
	return count
}

func TestRun_MixedPopulation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, true)
	cycle := h.seedCycle(t, false)

	// 93 active (3 with pre-existing orders), 10 paused, 5 cancelled.
	var preOrdered []*models.Subscription
	for i := 0; i < 93; i++ {
		sub := h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusActive})
		if i < 3 {
			preOrdered = append(preOrdered, sub)
		}
	}
	for i := 0; i < 10; i++ {
		h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusPaused})
	}
	for i := 0; i < 5; i++ {
		h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusCancelled})
	}
	for _, sub := range preOrdered {
		subID := sub.ID
		require.NoError(t, h.orderRepo.Create(ctx, &models.Order{
			SubscriptionID: &subID,
			CycleID:        cycle.ID,
			BoxTypeID:      box.ID,
			FinalPrice:     sub.CurrentPrice,
			Status:         enums.OrderStatusPending,
		}))
	}

	report, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)

	assert.Equal(t, 90, report.Generated)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 15, report.Excluded)
	assert.Empty(t, report.Errors)
	assert.Equal(t, int64(93), h.orderCount(t, cycle.ID))

	// One order_generated history row per generated order.
	var historyCount int64
	require.NoError(t, h.db.Model(&models.SubscriptionHistory{}).
		Where("action = ?", enums.HistoryActionOrderGenerated).
		Count(&historyCount).Error)
	assert.Equal(t, int64(90), historyCount)

	// One outbox intent per generated order.
	var outboxCount int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.OutboxEventOrderGenerated).
		Count(&outboxCount).Error)
	assert.Equal(t, int64(90), outboxCount)

	// A clean run marks the cycle processed.
	reloaded, err := h.cycleRepo.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CycleStatusProcessed, reloaded.Status)
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, true)
	cycle := h.seedCycle(t, false)
	for i := 0; i < 8; i++ {
		h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusActive})
	}

	first, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, first.Generated)
	assert.Equal(t, int64(8), h.orderCount(t, cycle.ID))

	second, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Generated)
	assert.Equal(t, 8, second.Skipped)
	assert.Empty(t, second.Errors)
	assert.Equal(t, int64(8), h.orderCount(t, cycle.ID), "re-running must never duplicate orders")
}

func TestRun_NoRetroactiveOrderAfterResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, true)
	cycle := h.seedCycle(t, false)

	paused := h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusPaused})

	report, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 1, report.Excluded)

	// Resume after the cycle has been processed.
	require.NoError(t, h.db.Model(&models.Subscription{}).
		Where("id = ?", paused.ID).
		Updates(map[string]any{"status": enums.SubscriptionStatusActive, "paused_at": nil}).Error)

	report, err = h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Generated, "resume must not backfill a processed cycle")
	assert.Equal(t, int64(0), h.orderCount(t, cycle.ID))
}

func TestRun_SeasonalOnlyOnQualifyingCycles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, true)
	plain := h.seedCycle(t, false)
	qualifying := h.seedCycle(t, true)

	h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusActive, frequency: enums.SubscriptionFrequencySeasonal})

	report, err := h.svc.Run(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 1, report.Excluded)

	report, err = h.svc.Run(ctx, qualifying.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Generated)
}

func TestRun_UnsellableBoxExcluded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, false)
	cycle := h.seedCycle(t, false)
	h.seedSub(t, box, subOpts{status: enums.SubscriptionStatusActive})

	report, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 1, report.Excluded)
}

func TestRun_PromoFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	box := h.seedBox(t, true)
	cycle := h.seedCycle(t, false)

	// Disabled stored code: fall back to current_price.
	deadCode := "DEADCODE"
	dead := &models.PromoCode{ID: uuid.New(), Code: deadCode, DiscountPercent: 50}
	require.NoError(t, h.db.Create(dead).Error)
	require.NoError(t, h.db.Model(dead).UpdateColumn("enabled", false).Error)
	fallbackSub := h.seedSub(t, box, subOpts{promoCode: &deadCode})

	// Live stored code: price recomputed with the discount.
	liveCode := "LIVE10"
	require.NoError(t, h.db.Create(&models.PromoCode{
		ID: uuid.New(), Code: liveCode, DiscountPercent: 10, Enabled: true,
	}).Error)
	discountedSub := h.seedSub(t, box, subOpts{promoCode: &liveCode})

	report, err := h.svc.Run(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Generated)
	assert.Empty(t, report.Errors)

	rows, err := h.orderRepo.ListBySubscriptionID(ctx, fallbackSub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].FinalPrice.Equal(decimal.RequireFromString("29.99")), "dead promo falls back to current price, got %s", rows[0].FinalPrice)
	assert.Nil(t, rows[0].PromoCode)

	rows, err = h.orderRepo.ListBySubscriptionID(ctx, discountedSub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// 29.99 * 0.90 = 26.991 -> 26.99
	assert.True(t, rows[0].FinalPrice.Equal(decimal.RequireFromString("26.99")), "live promo reprices the order, got %s", rows[0].FinalPrice)
	require.NotNil(t, rows[0].PromoCode)
	assert.Equal(t, liveCode, *rows[0].PromoCode)
}

func TestRun_ClosedCycleRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cycle := h.seedCycle(t, false)
	require.NoError(t, h.db.Model(&models.DeliveryCycle{}).
		Where("id = ?", cycle.ID).
		UpdateColumn("status", enums.CycleStatusClosed).Error)

	_, err := h.svc.Run(ctx, cycle.ID)
	require.Error(t, err)
}

func TestRun_MissingCycle(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Run(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestCreateAndListCycles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, CreateCycleInput{
		Name:               "April Drop",
		DeliveryDate:       time.Now().Add(30 * 24 * time.Hour),
		SeasonalQualifying: true,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, enums.CycleStatusScheduled, created.Status)

	upcoming, err := h.svc.ListUpcoming(ctx, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "April Drop", upcoming[0].Name)
}
