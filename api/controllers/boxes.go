package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cratebox/cratebox-backend/api/responses"
	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

type boxTypeResponse struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Sellable    bool            `json:"sellable"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BoxList returns the sellable catalog.
func BoxList(repo boxes.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := repo.List(r.Context(), true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list := make([]boxTypeResponse, 0, len(rows))
		for _, box := range rows {
			list = append(list, boxTypeResponse{
				ID:          box.ID,
				Code:        box.Code,
				Name:        box.Name,
				Description: box.Description,
				BasePrice:   box.BasePrice,
				Sellable:    box.Sellable,
				CreatedAt:   box.CreatedAt,
			})
		}
		responses.WriteSuccess(w, list)
	}
}
