package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/api/responses"
	"github.com/maplecart/inventory-backend/api/validators"
	"github.com/maplecart/inventory-backend/internal/allocation"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

type reserveRequest struct {
	VariantID string `json:"variant_id" validate:"required,uuid"`
	OrderRef  string `json:"order_ref" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// ReserveStock holds units for an order. Retrying the same order_ref is safe.
func ReserveStock(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		counter, err := svc.ReserveForOrder(r.Context(), allocation.ReservationInput{
			VariantID: variantID,
			OrderRef:  payload.OrderRef,
			Quantity:  payload.Quantity,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCounterResponse(counter))
	}
}

type closeReservationRequest struct {
	VariantID string `json:"variant_id" validate:"required,uuid"`
	OrderRef  string `json:"order_ref" validate:"required"`
}

// ReleaseReservation returns held units to availability.
func ReleaseReservation(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return closeReservation(logg, func(r *http.Request, variantID uuid.UUID, orderRef, actor string) (any, error) {
		counter, err := svc.ReleaseReservation(r.Context(), variantID, orderRef, actor)
		if err != nil {
			return nil, err
		}
		return toCounterResponse(counter), nil
	})
}

// FulfillOrder ships held units, consuming them from on_hand.
func FulfillOrder(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return closeReservation(logg, func(r *http.Request, variantID uuid.UUID, orderRef, actor string) (any, error) {
		counter, err := svc.FulfillOrder(r.Context(), variantID, orderRef, actor)
		if err != nil {
			return nil, err
		}
		return toCounterResponse(counter), nil
	})
}

func closeReservation(
	logg *logger.Logger,
	apply func(r *http.Request, variantID uuid.UUID, orderRef, actor string) (any, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload closeReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		result, err := apply(r, variantID, payload.OrderRef, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
