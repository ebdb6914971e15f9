package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cratebox/cratebox-backend/api/middleware"
	"github.com/cratebox/cratebox-backend/api/responses"
	"github.com/cratebox/cratebox-backend/api/validators"
	subsvc "github.com/cratebox/cratebox-backend/internal/subscriptions"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	pkgerrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

type subscriptionResponse struct {
	ID                   uuid.UUID                   `json:"id"`
	UserID               uuid.UUID                   `json:"user_id"`
	BoxTypeID            uuid.UUID                   `json:"box_type_id"`
	Frequency            enums.SubscriptionFrequency `json:"frequency"`
	Status               enums.SubscriptionStatus    `json:"status"`
	BasePrice            decimal.Decimal             `json:"base_price"`
	DiscountPercent      int                         `json:"discount_percent"`
	CurrentPrice         decimal.Decimal             `json:"current_price"`
	PromoCode            *string                     `json:"promo_code,omitempty"`
	AddressID            uuid.UUID                   `json:"address_id"`
	SizePreference       *string                     `json:"size_preference,omitempty"`
	FavoriteColors       []string                    `json:"favorite_colors,omitempty"`
	Exclusions           []string                    `json:"exclusions,omitempty"`
	GiftNote             *string                     `json:"gift_note,omitempty"`
	StartedAt            time.Time                   `json:"started_at"`
	PausedAt             *time.Time                  `json:"paused_at,omitempty"`
	CancelledAt          *time.Time                  `json:"cancelled_at,omitempty"`
	CancellationReason   *string                     `json:"cancellation_reason,omitempty"`
	LastDeliveredCycleID *uuid.UUID                  `json:"last_delivered_cycle_id,omitempty"`
}

type historyEntryResponse struct {
	ID          uuid.UUID           `json:"id"`
	Action      enums.HistoryAction `json:"action"`
	PerformedBy uuid.UUID           `json:"performed_by"`
	ActorRole   enums.ActorRole     `json:"actor_role"`
	Details     json.RawMessage     `json:"details,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=1000"`
}

type updateAddressRequest struct {
	AddressID uuid.UUID `json:"address_id" validate:"required"`
}

type updateFrequencyRequest struct {
	Frequency string `json:"frequency" validate:"required"`
}

func toSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                   sub.ID,
		UserID:               sub.UserID,
		BoxTypeID:            sub.BoxTypeID,
		Frequency:            sub.Frequency,
		Status:               sub.Status,
		BasePrice:            sub.BasePrice,
		DiscountPercent:      sub.DiscountPercent,
		CurrentPrice:         sub.CurrentPrice,
		PromoCode:            sub.PromoCode,
		AddressID:            sub.AddressID,
		SizePreference:       sub.SizePreference,
		FavoriteColors:       sub.FavoriteColors,
		Exclusions:           sub.Exclusions,
		GiftNote:             sub.GiftNote,
		StartedAt:            sub.StartedAt,
		PausedAt:             sub.PausedAt,
		CancelledAt:          sub.CancelledAt,
		CancellationReason:   sub.CancellationReason,
		LastDeliveredCycleID: sub.LastDeliveredCycleID,
	}
}

func actorFromRequest(r *http.Request) (subsvc.Actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	role := middleware.RoleFromContext(r.Context())
	if userID == uuid.Nil || !role.IsValid() {
		return subsvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity")
	}
	return subsvc.Actor{UserID: userID, Role: role}, nil
}

func subscriptionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "subscriptionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id must be a uuid")
	}
	return id, nil
}

func SubscriptionDetail(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Get(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}

func SubscriptionHistory(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.History(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries := make([]historyEntryResponse, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, historyEntryResponse{
				ID:          row.ID,
				Action:      row.Action,
				PerformedBy: row.PerformedBy,
				ActorRole:   row.ActorRole,
				Details:     row.Details,
				CreatedAt:   row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, entries)
	}
}

func SubscriptionPause(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Pause, logg)
}

func SubscriptionResume(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Resume, logg)
}

func SubscriptionExpire(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Expire, logg)
}

func transitionHandler(
	fn func(ctx context.Context, input subsvc.TransitionInput) (*models.Subscription, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := fn(r.Context(), subsvc.TransitionInput{SubscriptionID: id, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}

func SubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Cancel(r.Context(), subsvc.CancelInput{
			SubscriptionID: id,
			Actor:          actor,
			Reason:         payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}

func SubscriptionUpdatePreferences(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload subsvc.Preferences
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.UpdatePreferences(r.Context(), subsvc.UpdatePreferencesInput{
			SubscriptionID: id,
			Actor:          actor,
			Preferences:    payload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}

func SubscriptionUpdateAddress(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.UpdateAddress(r.Context(), subsvc.UpdateAddressInput{
			SubscriptionID: id,
			Actor:          actor,
			AddressID:      payload.AddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}

func SubscriptionUpdateFrequency(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateFrequencyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.UpdateFrequency(r.Context(), subsvc.UpdateFrequencyInput{
			SubscriptionID: id,
			Actor:          actor,
			Frequency:      enums.SubscriptionFrequency(payload.Frequency),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub))
	}
}
