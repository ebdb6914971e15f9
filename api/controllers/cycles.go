package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/api/responses"
	"github.com/cratebox/cratebox-backend/api/validators"
	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	pkgerrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

type cycleResponse struct {
	ID                 uuid.UUID         `json:"id"`
	Name               string            `json:"name"`
	DeliveryDate       time.Time         `json:"delivery_date"`
	SeasonalQualifying bool              `json:"seasonal_qualifying"`
	Status             enums.CycleStatus `json:"status"`
}

func toCycleResponse(cycle *models.DeliveryCycle) cycleResponse {
	return cycleResponse{
		ID:                 cycle.ID,
		Name:               cycle.Name,
		DeliveryDate:       cycle.DeliveryDate,
		SeasonalQualifying: cycle.SeasonalQualifying,
		Status:             cycle.Status,
	}
}

func cycleIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "cycleId"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cycle id must be a uuid")
	}
	return id, nil
}

func CycleCreate(svc cycles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cycles.CreateCycleInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cycle, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCycleResponse(cycle))
	}
}

func CycleList(svc cycles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListUpcoming(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list := make([]cycleResponse, 0, len(rows))
		for i := range rows {
			list = append(list, toCycleResponse(&rows[i]))
		}
		responses.WriteSuccess(w, list)
	}
}

func CycleDetail(svc cycles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := cycleIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cycle, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCycleResponse(cycle))
	}
}

// CycleRun triggers the batch order generator for one cycle and
// returns its report. Safe to call repeatedly.
func CycleRun(svc cycles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := cycleIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Run(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
