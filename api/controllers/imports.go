package controllers

import (
	"net/http"

	"github.com/maplecart/inventory-backend/api/responses"
	"github.com/maplecart/inventory-backend/api/validators"
	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

type importLineRequest struct {
	ExternalSKU string `json:"external_sku" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
}

type importOrderRequest struct {
	Channel         string              `json:"channel" validate:"required"`
	ExternalOrderID string              `json:"external_order_id" validate:"required"`
	Lines           []importLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ImportExternalOrder ingests one already-placed external order and returns
// the per-line report. Redelivered batches are safe; processed lines skip.
func ImportExternalOrder(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload importOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]allocation.ImportLine, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, allocation.ImportLine{
				ExternalSKU: line.ExternalSKU,
				Quantity:    line.Quantity,
			})
		}

		report, err := svc.ImportExternalOrder(r.Context(), allocation.ImportRequest{
			Channel:         payload.Channel,
			ExternalOrderID: payload.ExternalOrderID,
			Actor:           actor,
			Lines:           lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
