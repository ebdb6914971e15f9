package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
)

func setupPromoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	promoCodes := `
CREATE TABLE IF NOT EXISTS promo_codes (
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
);`
	redemptions := `
CREATE TABLE IF NOT EXISTS promo_redemptions (
  id TEXT PRIMARY KEY DEFAULT ` + sqlitePromoUUIDDefault + `,
  promo_code_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  subscription_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(promoCodes).Error)
	require.NoError(t, db.Exec(redemptions).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_promo_codes_code_lower ON promo_codes (lower(code));`).Error)
	return db
}

const sqlitePromoUUIDDefault = `(lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-4' || substr(lower(hex(randomblob(2))),2) || '-' || substr('89ab', abs(random()) % 4 + 1, 1) || substr(lower(hex(randomblob(2))),2) || '-' || lower(hex(randomblob(6))))`

func seedPromo(t *testing.T, db *gorm.DB, promo *models.PromoCode) *models.PromoCode {
	t.Helper()
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	require.NoError(t, db.Create(promo).Error)
	return promo
}

func TestRepository_GetByCodeCaseInsensitive(t *testing.T) {
	db := setupPromoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedPromo(t, db, &models.PromoCode{Code: "Spring15", DiscountPercent: 15, Enabled: true})

	for _, code := range []string{"Spring15", "spring15", "SPRING15"} {
		promo, err := repo.GetByCode(ctx, code)
		require.NoError(t, err)
		require.NotNil(t, promo, "lookup for %s", code)
		assert.Equal(t, "Spring15", promo.Code)
	}

	promo, err := repo.GetByCode(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, promo)
}

func TestRepository_IncrementUsageGuard(t *testing.T) {
	db := setupPromoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	maxUses := 5
	promo := seedPromo(t, db, &models.PromoCode{Code: "CAPPED", DiscountPercent: 10, Enabled: true, MaxUses: &maxUses})

	succeeded := 0
	for i := 0; i < 10; i++ {
		ok, err := repo.IncrementUsage(ctx, promo.ID)
		require.NoError(t, err)
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 5, succeeded)

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, "id = ?", promo.ID).Error)
	assert.Equal(t, 5, reloaded.CurrentUses, "current_uses must never exceed max_uses")
}

func TestRepository_IncrementUsageGuardConcurrent(t *testing.T) {
	db := setupPromoTestDB(t)

	// every pool connection would otherwise see its own :memory: database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	ctx := context.Background()

	maxUses := 5
	promo := seedPromo(t, db, &models.PromoCode{Code: "RACED", DiscountPercent: 10, Enabled: true, MaxUses: &maxUses})

	var succeeded int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.IncrementUsage(ctx, promo.ID)
			if err != nil {
				t.Errorf("IncrementUsage error: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), atomic.LoadInt64(&succeeded))

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, "id = ?", promo.ID).Error)
	assert.Equal(t, 5, reloaded.CurrentUses, "concurrent increments must never push current_uses past max_uses")
}

func TestRepository_IncrementUsageUncapped(t *testing.T) {
	db := setupPromoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	promo := seedPromo(t, db, &models.PromoCode{Code: "OPEN", DiscountPercent: 5, Enabled: true})

	for i := 0; i < 3; i++ {
		ok, err := repo.IncrementUsage(ctx, promo.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, "id = ?", promo.ID).Error)
	assert.Equal(t, 3, reloaded.CurrentUses)
}

func TestRepository_Redemptions(t *testing.T) {
	db := setupPromoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	promo := seedPromo(t, db, &models.PromoCode{Code: "ONCE", DiscountPercent: 10, Enabled: true})
	userID := uuid.New()
	otherUser := uuid.New()

	count, err := repo.CountRedemptionsByUser(ctx, promo.ID, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.CreateRedemption(ctx, &models.PromoRedemption{PromoCodeID: promo.ID, UserID: userID}))
	require.NoError(t, repo.CreateRedemption(ctx, &models.PromoRedemption{PromoCodeID: promo.ID, UserID: userID}))
	require.NoError(t, repo.CreateRedemption(ctx, &models.PromoRedemption{PromoCodeID: promo.ID, UserID: otherUser}))

	count, err = repo.CountRedemptionsByUser(ctx, promo.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
