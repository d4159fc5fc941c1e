package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/api/responses"
	"github.com/maplecart/inventory-backend/api/validators"
	"github.com/maplecart/inventory-backend/internal/channelmap"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

type channelMappingResponse struct {
	ID          uuid.UUID `json:"id"`
	Channel     string    `json:"channel"`
	ExternalSKU string    `json:"external_sku"`
	VariantID   uuid.UUID `json:"variant_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func toChannelMappingResponse(mapping models.ChannelMapping) channelMappingResponse {
	return channelMappingResponse{
		ID:          mapping.ID,
		Channel:     mapping.Channel,
		ExternalSKU: mapping.ExternalSKU,
		VariantID:   mapping.VariantID,
		CreatedAt:   mapping.CreatedAt,
	}
}

type createChannelMappingRequest struct {
	Channel     string `json:"channel" validate:"required"`
	ExternalSKU string `json:"external_sku" validate:"required"`
	VariantID   string `json:"variant_id" validate:"required,uuid"`
}

// CreateChannelMapping binds an external marketplace sku to a variant.
func CreateChannelMapping(svc channelmap.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createChannelMappingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		mapping, err := svc.CreateMapping(r.Context(), channelmap.CreateMappingInput{
			Channel:     payload.Channel,
			ExternalSKU: payload.ExternalSKU,
			VariantID:   variantID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toChannelMappingResponse(*mapping))
	}
}

// ListChannelMappings lists mappings for one channel or one variant.
func ListChannelMappings(svc channelmap.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		variantRaw := r.URL.Query().Get("variant_id")

		var (
			mappings []models.ChannelMapping
			err      error
		)
		switch {
		case variantRaw != "":
			var variantID uuid.UUID
			variantID, err = validators.ParsePathUUID(variantRaw, "variant_id")
			if err == nil {
				mappings, err = svc.ListByVariant(r.Context(), variantID)
			}
		case channel != "":
			mappings, err = svc.ListByChannel(r.Context(), channel)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "channel or variant_id is required")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]channelMappingResponse, 0, len(mappings))
		for _, mapping := range mappings {
			out = append(out, toChannelMappingResponse(mapping))
		}
		responses.WriteSuccess(w, out)
	}
}

// DeleteChannelMapping removes a mapping so the pair can be bound elsewhere.
func DeleteChannelMapping(svc channelmap.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappingID, err := validators.ParsePathUUID(chi.URLParam(r, "mappingID"), "mappingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteMapping(r.Context(), mappingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
