package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/internal/addresses"
	"github.com/cratebox/cratebox-backend/internal/history"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/outbox"
)

const (
	actionPause             = "pause"
	actionResume            = "resume"
	actionCancel            = "cancel"
	actionExpire            = "expire"
	actionUpdatePreferences = "update_preferences"
	actionUpdateAddress     = "update_address"
	actionUpdateFrequency   = "update_frequency"
)

const maxCancellationReasonLen = 1000

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter queues side-effect intents inside the caller's transaction.
type OutboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the subscription lifecycle state machine. Every mutation
// applies its precondition check and write atomically (a guarded
// conditional update), records exactly one history entry, and queues
// its side-effect intent in the outbox, all in one transaction.
type Service interface {
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Subscription, error)
	History(ctx context.Context, id uuid.UUID, actor Actor) ([]models.SubscriptionHistory, error)
	Pause(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	Resume(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Subscription, error)
	Expire(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	UpdatePreferences(ctx context.Context, input UpdatePreferencesInput) (*models.Subscription, error)
	UpdateAddress(ctx context.Context, input UpdateAddressInput) (*models.Subscription, error)
	UpdateFrequency(ctx context.Context, input UpdateFrequencyInput) (*models.Subscription, error)
}

type service struct {
	repo        Repository
	addressRepo addresses.Repository
	historyRepo history.Repository
	historySvc  history.Service
	outboxSvc   OutboxEmitter
	tx          TxRunner
	now         func() time.Time
}

// NewService wires the state machine with its collaborators.
func NewService(
	repo Repository,
	addressRepo addresses.Repository,
	historyRepo history.Repository,
	historySvc history.Service,
	outboxSvc OutboxEmitter,
	tx TxRunner,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if addressRepo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if historyRepo == nil || historySvc == nil {
		return nil, fmt.Errorf("history recorder required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		addressRepo: addressRepo,
		historyRepo: historyRepo,
		historySvc:  historySvc,
		outboxSvc:   outboxSvc,
		tx:          tx,
		now:         time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(sub, actor); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID, actor Actor) ([]models.SubscriptionHistory, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.historySvc.List(ctx, id)
}

func (s *service) Pause(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	now := s.now()
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action:  actionPause,
		allowed: []enums.SubscriptionStatus{enums.SubscriptionStatusActive},
		updates: map[string]any{
			"status":    enums.SubscriptionStatusPaused,
			"paused_at": now,
		},
		historyAction: enums.HistoryActionPaused,
		eventType:     enums.OutboxEventSubscriptionPaused,
		apply: func(sub *models.Subscription) {
			sub.Status = enums.SubscriptionStatusPaused
			sub.PausedAt = &now
		},
	})
}

func (s *service) Resume(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action:  actionResume,
		allowed: []enums.SubscriptionStatus{enums.SubscriptionStatusPaused},
		updates: map[string]any{
			"status":    enums.SubscriptionStatusActive,
			"paused_at": nil,
		},
		historyAction: enums.HistoryActionResumed,
		eventType:     enums.OutboxEventSubscriptionResumed,
		apply: func(sub *models.Subscription) {
			sub.Status = enums.SubscriptionStatusActive
			sub.PausedAt = nil
		},
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Subscription, error) {
	if length := len([]rune(input.Reason)); length < 1 || length > maxCancellationReasonLen {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("cancellation reason must be between 1 and %d characters", maxCancellationReasonLen))
	}
	now := s.now()
	reason := input.Reason
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action: actionCancel,
		allowed: []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusPaused,
		},
		updates: map[string]any{
			"status":              enums.SubscriptionStatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
		},
		historyAction: enums.HistoryActionCancelled,
		eventType:     enums.OutboxEventSubscriptionCancelled,
		extraDetails:  map[string]any{"reason": reason},
		apply: func(sub *models.Subscription) {
			sub.Status = enums.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			sub.CancellationReason = &reason
		},
	})
}

// Expire is reserved for system and admin actors; customers never
// expire their own subscriptions.
func (s *service) Expire(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	if input.Actor.Role == enums.ActorRoleCustomer {
		return nil, apperrors.New(apperrors.CodeForbidden, "customers cannot expire subscriptions")
	}
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action:  actionExpire,
		allowed: []enums.SubscriptionStatus{enums.SubscriptionStatusActive},
		updates: map[string]any{
			"status": enums.SubscriptionStatusExpired,
		},
		historyAction: enums.HistoryActionExpired,
		eventType:     enums.OutboxEventSubscriptionExpired,
		apply: func(sub *models.Subscription) {
			sub.Status = enums.SubscriptionStatusExpired
		},
	})
}

func (s *service) UpdatePreferences(ctx context.Context, input UpdatePreferencesInput) (*models.Subscription, error) {
	prefs := input.Preferences
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action: actionUpdatePreferences,
		allowed: []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusPaused,
		},
		updates: map[string]any{
			"size_preference": prefs.SizePreference,
			"favorite_colors": pq.StringArray(prefs.FavoriteColors),
			"exclusions":      pq.StringArray(prefs.Exclusions),
			"gift_note":       prefs.GiftNote,
		},
		historyAction: enums.HistoryActionPreferencesUpdated,
		eventType:     enums.OutboxEventSubscriptionPreferencesUpdated,
		detailsFn: func(before *models.Subscription) (map[string]any, map[string]any) {
			return preferencesSnapshot(before), map[string]any{
				"size_preference": prefs.SizePreference,
				"favorite_colors": prefs.FavoriteColors,
				"exclusions":      prefs.Exclusions,
				"gift_note":       prefs.GiftNote,
			}
		},
		apply: func(sub *models.Subscription) {
			sub.SizePreference = prefs.SizePreference
			sub.FavoriteColors = pq.StringArray(prefs.FavoriteColors)
			sub.Exclusions = pq.StringArray(prefs.Exclusions)
			sub.GiftNote = prefs.GiftNote
		},
	})
}

func (s *service) UpdateAddress(ctx context.Context, input UpdateAddressInput) (*models.Subscription, error) {
	if input.AddressID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "address id is required")
	}
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action: actionUpdateAddress,
		allowed: []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusPaused,
		},
		updates: map[string]any{
			"address_id": input.AddressID,
		},
		historyAction: enums.HistoryActionAddressChanged,
		eventType:     enums.OutboxEventSubscriptionAddressChanged,
		preCheck: func(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
			address, err := s.addressRepo.WithTx(tx).GetByID(ctx, input.AddressID)
			if err != nil {
				return err
			}
			if address.UserID != sub.UserID {
				return apperrors.New(apperrors.CodeNotFound, "address not found")
			}
			return nil
		},
		detailsFn: func(before *models.Subscription) (map[string]any, map[string]any) {
			return map[string]any{"address_id": before.AddressID},
				map[string]any{"address_id": input.AddressID}
		},
		apply: func(sub *models.Subscription) {
			sub.AddressID = input.AddressID
		},
	})
}

func (s *service) UpdateFrequency(ctx context.Context, input UpdateFrequencyInput) (*models.Subscription, error) {
	if !input.Frequency.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("unsupported frequency %q", input.Frequency))
	}
	return s.transition(ctx, input.SubscriptionID, input.Actor, transitionSpec{
		action:  actionUpdateFrequency,
		allowed: []enums.SubscriptionStatus{enums.SubscriptionStatusActive},
		updates: map[string]any{
			"frequency": input.Frequency,
		},
		historyAction: enums.HistoryActionFrequencyChanged,
		eventType:     enums.OutboxEventSubscriptionFrequencyChanged,
		preCheck: func(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
			if sub.Frequency == input.Frequency {
				return apperrors.New(apperrors.CodeValidation,
					fmt.Sprintf("subscription already has frequency %q", input.Frequency))
			}
			return nil
		},
		detailsFn: func(before *models.Subscription) (map[string]any, map[string]any) {
			return map[string]any{"frequency": before.Frequency},
				map[string]any{"frequency": input.Frequency}
		},
		apply: func(sub *models.Subscription) {
			sub.Frequency = input.Frequency
		},
	})
}

// transitionSpec bundles everything one guarded transition needs.
type transitionSpec struct {
	action        string
	allowed       []enums.SubscriptionStatus
	updates       map[string]any
	historyAction enums.HistoryAction
	eventType     enums.OutboxEventType
	// preCheck runs after ownership and state validation, before the
	// guarded write. Errors abort the transaction.
	preCheck func(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	// detailsFn builds the before/after history snapshot. Defaults to
	// a status snapshot when nil.
	detailsFn func(before *models.Subscription) (map[string]any, map[string]any)
	// extraDetails is merged into the after snapshot.
	extraDetails map[string]any
	// apply mirrors the column updates onto the in-memory model so the
	// caller gets the post-transition view without a reload.
	apply func(sub *models.Subscription)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, actor Actor, spec transitionSpec) (*models.Subscription, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "subscription id is required")
	}
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "actor is required")
	}

	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkOwnership(sub, actor); err != nil {
			return err
		}
		if !statusAllowed(sub.Status, spec.allowed) {
			return invalidTransition(spec.action, sub.Status)
		}
		if spec.preCheck != nil {
			if err := spec.preCheck(ctx, tx, sub); err != nil {
				return err
			}
		}

		ok, err := repo.UpdateGuarded(ctx, id, spec.allowed, spec.updates)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with a concurrent transition.
			current, reloadErr := repo.GetByID(ctx, id)
			if reloadErr != nil {
				return reloadErr
			}
			return invalidTransition(spec.action, current.Status)
		}

		before, after := s.snapshots(sub, spec)
		details, err := history.MarshalChange(before, after)
		if err != nil {
			return err
		}
		if _, err := s.historySvc.WithRepo(s.historyRepo.WithTx(tx)).Record(ctx, history.RecordEntryInput{
			SubscriptionID: id,
			Action:         spec.historyAction,
			PerformedBy:    actor.UserID,
			ActorRole:      actor.Role,
			Details:        details,
		}); err != nil {
			return err
		}

		if err := s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     spec.eventType,
			AggregateType: enums.OutboxAggregateSubscription,
			AggregateID:   id,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: map[string]any{
				"subscription_id": id,
				"user_id":         sub.UserID,
				"action":          spec.action,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		if spec.apply != nil {
			spec.apply(sub)
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) snapshots(before *models.Subscription, spec transitionSpec) (map[string]any, map[string]any) {
	if spec.detailsFn != nil {
		b, a := spec.detailsFn(before)
		for k, v := range spec.extraDetails {
			a[k] = v
		}
		return b, a
	}
	beforeSnap := map[string]any{"status": before.Status}
	afterSnap := map[string]any{}
	if status, ok := spec.updates["status"]; ok {
		afterSnap["status"] = status
	}
	for k, v := range spec.extraDetails {
		afterSnap[k] = v
	}
	return beforeSnap, afterSnap
}

func checkOwnership(sub *models.Subscription, actor Actor) error {
	if actor.Role == enums.ActorRoleCustomer && sub.UserID != actor.UserID {
		// Hide existence from non-owners.
		return apperrors.New(apperrors.CodeNotFound, "subscription not found")
	}
	return nil
}

func statusAllowed(status enums.SubscriptionStatus, allowed []enums.SubscriptionStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func invalidTransition(action string, current enums.SubscriptionStatus) error {
	return apperrors.New(apperrors.CodeStateConflict,
		fmt.Sprintf("cannot %s subscription in state %q", action, current)).
		WithDetails(map[string]string{
			"action":         action,
			"current_status": current.String(),
		})
}

func preferencesSnapshot(sub *models.Subscription) map[string]any {
	return map[string]any{
		"size_preference": sub.SizePreference,
		"favorite_colors": []string(sub.FavoriteColors),
		"exclusions":      []string(sub.Exclusions),
		"gift_note":       sub.GiftNote,
	}
}
