package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// Service defines operations that record subscription history.
type Service interface {
	Record(ctx context.Context, input RecordEntryInput) (*models.SubscriptionHistory, error)
	List(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionHistory, error)
	WithRepo(repo Repository) Service
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a history entry requires.
type RecordEntryInput struct {
	SubscriptionID uuid.UUID           `json:"subscription_id"`
	Action         enums.HistoryAction `json:"action"`
	PerformedBy    uuid.UUID           `json:"performed_by"`
	ActorRole      enums.ActorRole     `json:"actor_role"`
	Details        json.RawMessage     `json:"details"`
}

// ChangeDetails is the before/after snapshot stored with mutation entries.
type ChangeDetails struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// MarshalChange serializes a before/after snapshot for the details column.
func MarshalChange(before, after map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(ChangeDetails{Before: before, After: after})
	if err != nil {
		return nil, fmt.Errorf("marshaling history details: %w", err)
	}
	return payload, nil
}

// NewService wires a history service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	return &service{repo: repo}, nil
}

// WithRepo returns a service bound to the provided repository, used to
// record entries inside a caller-managed transaction.
func (s *service) WithRepo(repo Repository) Service {
	if repo == nil {
		return s
	}
	return &service{repo: repo}
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.SubscriptionHistory, error) {
	if input.SubscriptionID == uuid.Nil {
		return nil, fmt.Errorf("subscription id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid history action %q", input.Action)
	}
	if input.PerformedBy == uuid.Nil {
		return nil, fmt.Errorf("performed by is required")
	}
	if !input.ActorRole.IsValid() {
		return nil, fmt.Errorf("invalid actor role %q", input.ActorRole)
	}

	entry := &models.SubscriptionHistory{
		SubscriptionID: input.SubscriptionID,
		Action:         input.Action,
		PerformedBy:    input.PerformedBy,
		ActorRole:      input.ActorRole,
		Details:        input.Details,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) List(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionHistory, error) {
	if subscriptionID == uuid.Nil {
		return nil, fmt.Errorf("subscription id is required")
	}
	return s.repo.ListBySubscriptionID(ctx, subscriptionID)
}
