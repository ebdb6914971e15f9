package subscriptions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/internal/addresses"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
)

type fakeSubRepo struct {
	subs         map[uuid.UUID]*models.Subscription
	updateCalls  []map[string]any
	updateResult *bool
}

func (f *fakeSubRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSubRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	if sub, ok := f.subs[id]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "subscription not found")
}

func (f *fakeSubRepo) ListPage(ctx context.Context, offset, limit int) ([]models.Subscription, error) {
	return nil, nil
}

func (f *fakeSubRepo) UpdateGuarded(ctx context.Context, id uuid.UUID, allowed []enums.SubscriptionStatus, updates map[string]any) (bool, error) {
	f.updateCalls = append(f.updateCalls, updates)
	if f.updateResult != nil {
		return *f.updateResult, nil
	}
	sub, ok := f.subs[id]
	if !ok {
		return false, nil
	}
	for _, status := range allowed {
		if sub.Status == status {
			if next, ok := updates["status"].(enums.SubscriptionStatus); ok {
				sub.Status = next
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSubRepo) SetLastDeliveredCycle(ctx context.Context, id, cycleID uuid.UUID) error {
	return nil
}

type fakeAddressRepo struct {
	addressesByID map[uuid.UUID]*models.Address
}

func (f *fakeAddressRepo) WithTx(tx *gorm.DB) addresses.Repository { return f }

func (f *fakeAddressRepo) Create(ctx context.Context, address *models.Address) error { return nil }

func (f *fakeAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	if address, ok := f.addressesByID[id]; ok {
		return address, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "address not found")
}

func (f *fakeAddressRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	return nil, nil
}

type fakeHistoryRepo struct {
	entries []*models.SubscriptionHistory
}

func (f *fakeHistoryRepo) WithTx(tx *gorm.DB) history.Repository { return f }

func (f *fakeHistoryRepo) Create(ctx context.Context, entry *models.SubscriptionHistory) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryRepo) ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionHistory, error) {
	var rows []models.SubscriptionHistory
	for _, entry := range f.entries {
		if entry.SubscriptionID == subscriptionID {
			rows = append(rows, *entry)
		}
	}
	return rows, nil
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc         Service
	subRepo     *fakeSubRepo
	addressRepo *fakeAddressRepo
	historyRepo *fakeHistoryRepo
	outbox      *fakeOutbox
}

func newFixture(t *testing.T, subs ...*models.Subscription) *fixture {
	t.Helper()

	subRepo := &fakeSubRepo{subs: map[uuid.UUID]*models.Subscription{}}
	for _, sub := range subs {
		subRepo.subs[sub.ID] = sub
	}
	addressRepo := &fakeAddressRepo{addressesByID: map[uuid.UUID]*models.Address{}}
	historyRepo := &fakeHistoryRepo{}
	historySvc, err := history.NewService(historyRepo)
	if err != nil {
		t.Fatalf("history service error: %v", err)
	}
	ob := &fakeOutbox{}

	svc, err := NewService(subRepo, addressRepo, historyRepo, historySvc, ob, &fakeTxRunner{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &fixture{svc: svc, subRepo: subRepo, addressRepo: addressRepo, historyRepo: historyRepo, outbox: ob}
}

func activeSubscription(userID uuid.UUID) *models.Subscription {
	return &models.Subscription{
		ID:           uuid.New(),
		UserID:       userID,
		BoxTypeID:    uuid.New(),
		Frequency:    enums.SubscriptionFrequencyMonthly,
		Status:       enums.SubscriptionStatusActive,
		BasePrice:    decimal.RequireFromString("29.99"),
		CurrentPrice: decimal.RequireFromString("29.99"),
		AddressID:    uuid.New(),
		StartedAt:    time.Now().Add(-30 * 24 * time.Hour),
	}
}

func ownerActor(sub *models.Subscription) Actor {
	return Actor{UserID: sub.UserID, Role: enums.ActorRoleCustomer}
}

func TestPause(t *testing.T) {
	sub := activeSubscription(uuid.New())
	fx := newFixture(t, sub)

	got, err := fx.svc.Pause(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if err != nil {
		t.Fatalf("Pause error: %v", err)
	}
	if got.Status != enums.SubscriptionStatusPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}
	if got.PausedAt == nil {
		t.Fatal("paused_at must be set")
	}
	if len(fx.historyRepo.entries) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(fx.historyRepo.entries))
	}
	entry := fx.historyRepo.entries[0]
	if entry.Action != enums.HistoryActionPaused || entry.PerformedBy != sub.UserID {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if len(fx.outbox.events) != 1 || fx.outbox.events[0].EventType != enums.OutboxEventSubscriptionPaused {
		t.Fatalf("expected one paused outbox event, got %+v", fx.outbox.events)
	}
}

func TestPauseAlreadyPaused(t *testing.T) {
	sub := activeSubscription(uuid.New())
	sub.Status = enums.SubscriptionStatusPaused
	fx := newFixture(t, sub)

	_, err := fx.svc.Pause(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if !apperrors.IsCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(fx.historyRepo.entries) != 0 {
		t.Fatal("no history may be written for a rejected transition")
	}
	if len(fx.outbox.events) != 0 {
		t.Fatal("no outbox event may be queued for a rejected transition")
	}
}

func TestResumeCancelledFails(t *testing.T) {
	sub := activeSubscription(uuid.New())
	sub.Status = enums.SubscriptionStatusCancelled
	fx := newFixture(t, sub)

	_, err := fx.svc.Resume(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if !apperrors.IsCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if fx.subRepo.subs[sub.ID].Status != enums.SubscriptionStatusCancelled {
		t.Fatal("status must be unchanged")
	}
}

func TestResumeClearsPausedAt(t *testing.T) {
	sub := activeSubscription(uuid.New())
	sub.Status = enums.SubscriptionStatusPaused
	pausedAt := time.Now().Add(-time.Hour)
	sub.PausedAt = &pausedAt
	fx := newFixture(t, sub)

	got, err := fx.svc.Resume(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if got.Status != enums.SubscriptionStatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.PausedAt != nil {
		t.Fatal("paused_at must be cleared")
	}
}

func TestCancelReasonBounds(t *testing.T) {
	tests := []struct {
		name    string
		reason  string
		wantErr bool
	}{
		{"one char", "x", false},
		{"max length", strings.Repeat("r", 1000), false},
		{"empty", "", true},
		{"too long", strings.Repeat("r", 1001), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := activeSubscription(uuid.New())
			fx := newFixture(t, sub)

			got, err := fx.svc.Cancel(context.Background(), CancelInput{
				SubscriptionID: sub.ID,
				Actor:          ownerActor(sub),
				Reason:         tc.reason,
			})
			if tc.wantErr {
				if !apperrors.IsCode(err, apperrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if len(fx.historyRepo.entries) != 0 {
					t.Fatal("rejected cancel must not write history")
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel error: %v", err)
			}
			if got.Status != enums.SubscriptionStatusCancelled {
				t.Fatalf("status = %s, want cancelled", got.Status)
			}
			if got.CancellationReason == nil || *got.CancellationReason != tc.reason {
				t.Fatal("cancellation reason must be stored")
			}
		})
	}
}

func TestCancelFromPaused(t *testing.T) {
	sub := activeSubscription(uuid.New())
	sub.Status = enums.SubscriptionStatusPaused
	fx := newFixture(t, sub)

	got, err := fx.svc.Cancel(context.Background(), CancelInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Reason:         "moving abroad",
	})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestExpire(t *testing.T) {
	sub := activeSubscription(uuid.New())
	fx := newFixture(t, sub)

	_, err := fx.svc.Expire(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}

	got, err := fx.svc.Expire(context.Background(), TransitionInput{
		SubscriptionID: sub.ID,
		Actor:          Actor{UserID: uuid.New(), Role: enums.ActorRoleSystem},
	})
	if err != nil {
		t.Fatalf("Expire error: %v", err)
	}
	if got.Status != enums.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestOwnershipHidden(t *testing.T) {
	sub := activeSubscription(uuid.New())
	fx := newFixture(t, sub)

	stranger := Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer}
	_, err := fx.svc.Pause(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: stranger})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}

	// Admins operate on any subscription.
	admin := Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	if _, err := fx.svc.Pause(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: admin}); err != nil {
		t.Fatalf("admin pause error: %v", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	sub := activeSubscription(uuid.New())
	size := "medium"
	sub.SizePreference = &size
	fx := newFixture(t, sub)

	newSize := "large"
	got, err := fx.svc.UpdatePreferences(context.Background(), UpdatePreferencesInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Preferences: Preferences{
			SizePreference: &newSize,
			FavoriteColors: []string{"teal", "mustard"},
		},
	})
	if err != nil {
		t.Fatalf("UpdatePreferences error: %v", err)
	}
	if got.SizePreference == nil || *got.SizePreference != "large" {
		t.Fatalf("size preference not replaced: %+v", got.SizePreference)
	}
	if len(got.FavoriteColors) != 2 {
		t.Fatalf("favorite colors not replaced: %v", got.FavoriteColors)
	}
	if got.GiftNote != nil {
		t.Fatal("absent gift note must clear the field")
	}

	if len(fx.historyRepo.entries) != 1 {
		t.Fatalf("expected one history row, got %d", len(fx.historyRepo.entries))
	}
	entry := fx.historyRepo.entries[0]
	if entry.Action != enums.HistoryActionPreferencesUpdated {
		t.Fatalf("action = %s", entry.Action)
	}
	if !strings.Contains(string(entry.Details), "before") || !strings.Contains(string(entry.Details), "after") {
		t.Fatalf("details must carry before/after snapshot: %s", entry.Details)
	}
}

func TestUpdatePreferencesTerminalStates(t *testing.T) {
	for _, status := range []enums.SubscriptionStatus{enums.SubscriptionStatusCancelled, enums.SubscriptionStatusExpired} {
		sub := activeSubscription(uuid.New())
		sub.Status = status
		fx := newFixture(t, sub)

		_, err := fx.svc.UpdatePreferences(context.Background(), UpdatePreferencesInput{
			SubscriptionID: sub.ID,
			Actor:          ownerActor(sub),
		})
		if !apperrors.IsCode(err, apperrors.CodeStateConflict) {
			t.Fatalf("expected state conflict in %s, got %v", status, err)
		}
	}
}

func TestUpdateAddress(t *testing.T) {
	userID := uuid.New()
	sub := activeSubscription(userID)
	fx := newFixture(t, sub)

	owned := &models.Address{ID: uuid.New(), UserID: userID, Line1: "Hauptstr. 1", City: "Berlin", PostalCode: "10115", Country: "DE"}
	foreign := &models.Address{ID: uuid.New(), UserID: uuid.New(), Line1: "Rue de x", City: "Paris", PostalCode: "75001", Country: "FR"}
	fx.addressRepo.addressesByID[owned.ID] = owned
	fx.addressRepo.addressesByID[foreign.ID] = foreign

	_, err := fx.svc.UpdateAddress(context.Background(), UpdateAddressInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		AddressID:      foreign.ID,
	})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign address, got %v", err)
	}
	if len(fx.historyRepo.entries) != 0 {
		t.Fatal("rejected address change must not write history")
	}

	got, err := fx.svc.UpdateAddress(context.Background(), UpdateAddressInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		AddressID:      owned.ID,
	})
	if err != nil {
		t.Fatalf("UpdateAddress error: %v", err)
	}
	if got.AddressID != owned.ID {
		t.Fatalf("address not updated: %s", got.AddressID)
	}
	if len(fx.historyRepo.entries) != 1 || fx.historyRepo.entries[0].Action != enums.HistoryActionAddressChanged {
		t.Fatalf("expected one address_changed history row")
	}
}

func TestUpdateFrequency(t *testing.T) {
	sub := activeSubscription(uuid.New())
	fx := newFixture(t, sub)

	// no-op rejected
	_, err := fx.svc.UpdateFrequency(context.Background(), UpdateFrequencyInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Frequency:      enums.SubscriptionFrequencyMonthly,
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error for no-op, got %v", err)
	}

	// unsupported cadence rejected
	_, err = fx.svc.UpdateFrequency(context.Background(), UpdateFrequencyInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Frequency:      enums.SubscriptionFrequency("weekly"),
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error for unsupported cadence, got %v", err)
	}

	got, err := fx.svc.UpdateFrequency(context.Background(), UpdateFrequencyInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Frequency:      enums.SubscriptionFrequencySeasonal,
	})
	if err != nil {
		t.Fatalf("UpdateFrequency error: %v", err)
	}
	if got.Frequency != enums.SubscriptionFrequencySeasonal {
		t.Fatalf("frequency = %s", got.Frequency)
	}
}

func TestUpdateFrequencyRequiresActive(t *testing.T) {
	sub := activeSubscription(uuid.New())
	sub.Status = enums.SubscriptionStatusPaused
	fx := newFixture(t, sub)

	_, err := fx.svc.UpdateFrequency(context.Background(), UpdateFrequencyInput{
		SubscriptionID: sub.ID,
		Actor:          ownerActor(sub),
		Frequency:      enums.SubscriptionFrequencySeasonal,
	})
	if !apperrors.IsCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for paused subscription, got %v", err)
	}
}

func TestTransitionRaceLost(t *testing.T) {
	sub := activeSubscription(uuid.New())
	fx := newFixture(t, sub)

	// Guarded update reports no rows affected: a concurrent transition won.
	lost := false
	fx.subRepo.updateResult = &lost

	_, err := fx.svc.Pause(context.Background(), TransitionInput{SubscriptionID: sub.ID, Actor: ownerActor(sub)})
	if !apperrors.IsCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict when race lost, got %v", err)
	}
	if len(fx.historyRepo.entries) != 0 {
		t.Fatal("no history may be written when the guarded update misses")
	}
}
