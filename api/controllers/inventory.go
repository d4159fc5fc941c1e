package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/api/middleware"
	"github.com/maplecart/inventory-backend/api/responses"
	"github.com/maplecart/inventory-backend/api/validators"
	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/internal/query"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/enums"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/pagination"
)

// ListInventory serves the paginated variant status listing.
func ListInventory(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowStock, err := validators.ParseQueryBool(r, "low_stock")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statuses, err := svc.ListVariantStatuses(r.Context(), query.ListFilter{
			LowStockOnly: lowStock,
			Page:         pagination.Params{Skip: skip, Limit: limit},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statuses)
	}
}

// GetVariantInventory serves one variant's derived status, always fresh.
func GetVariantInventory(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParsePathUUID(chi.URLParam(r, "variantID"), "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.GetVariantStatus(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

type ledgerEntryResponse struct {
	ID                   uuid.UUID `json:"id"`
	VariantID            uuid.UUID `json:"variant_id"`
	DeltaOnHand          int       `json:"delta_on_hand"`
	DeltaAllocated       int       `json:"delta_allocated"`
	DeltaSafetyStock     int       `json:"delta_safety_stock"`
	ResultingOnHand      int       `json:"resulting_on_hand"`
	ResultingAllocated   int       `json:"resulting_allocated"`
	ResultingSafetyStock int       `json:"resulting_safety_stock"`
	Reason               string    `json:"reason"`
	Actor                string    `json:"actor"`
	Channel              *string   `json:"channel,omitempty"`
	ExternalReference    *string   `json:"external_reference,omitempty"`
	Notes                *string   `json:"notes,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func toLedgerEntryResponse(entry models.StockLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:                   entry.ID,
		VariantID:            entry.VariantID,
		DeltaOnHand:          entry.DeltaOnHand,
		DeltaAllocated:       entry.DeltaAllocated,
		DeltaSafetyStock:     entry.DeltaSafetyStock,
		ResultingOnHand:      entry.ResultingOnHand,
		ResultingAllocated:   entry.ResultingAllocated,
		ResultingSafetyStock: entry.ResultingSafetyStock,
		Reason:               string(entry.Reason),
		Actor:                entry.Actor,
		Channel:              entry.Channel,
		ExternalReference:    entry.ExternalReference,
		Notes:                entry.Notes,
		CreatedAt:            entry.CreatedAt,
	}
}

// GetVariantLedger serves the variant's audit history, newest first.
func GetVariantLedger(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParsePathUUID(chi.URLParam(r, "variantID"), "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.GetLedgerHistory(r.Context(), variantID, pagination.Params{Skip: skip, Limit: limit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]ledgerEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, toLedgerEntryResponse(entry))
		}
		responses.WriteSuccess(w, out)
	}
}

type counterResponse struct {
	VariantID         uuid.UUID      `json:"variant_id"`
	SKU               string         `json:"sku"`
	ProductName       string         `json:"product_name"`
	OnHand            int            `json:"on_hand"`
	Allocated         int            `json:"allocated"`
	SafetyStock       int            `json:"safety_stock"`
	LowStockThreshold int            `json:"low_stock_threshold"`
	ChannelBuffers    map[string]int `json:"channel_buffers"`
	Available         int            `json:"available"`
	IsLowStock        bool           `json:"is_low_stock"`
}

func toCounterResponse(counter *models.StockCounter) counterResponse {
	return counterResponse{
		VariantID:         counter.VariantID,
		SKU:               counter.SKU,
		ProductName:       counter.ProductName,
		OnHand:            counter.OnHand,
		Allocated:         counter.Allocated,
		SafetyStock:       counter.SafetyStock,
		LowStockThreshold: counter.LowStockThreshold,
		ChannelBuffers:    counter.ChannelBuffers.Clone(),
		Available:         counter.Available(),
		IsLowStock:        counter.IsLowStock(),
	}
}

func actorFromRequest(r *http.Request) (string, error) {
	actor := strings.TrimSpace(middleware.ActorIDFromContext(r.Context()))
	if actor == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	return actor, nil
}

type initializeVariantRequest struct {
	VariantID         string `json:"variant_id" validate:"required,uuid"`
	SKU               string `json:"sku" validate:"required"`
	ProductName       string `json:"product_name,omitempty"`
	LowStockThreshold int    `json:"low_stock_threshold" validate:"omitempty,min=0"`
}

// InitializeVariant creates the zero-initialized counter row for a variant.
func InitializeVariant(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initializeVariantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		counter, err := svc.InitializeVariant(r.Context(), allocation.InitializeVariantInput{
			VariantID:         variantID,
			SKU:               payload.SKU,
			ProductName:       payload.ProductName,
			LowStockThreshold: payload.LowStockThreshold,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCounterResponse(counter))
	}
}

// ArchiveVariant soft-deletes the variant's counter row.
func ArchiveVariant(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := validators.ParsePathUUID(chi.URLParam(r, "variantID"), "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ArchiveVariant(r.Context(), variantID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "archived"})
	}
}

type adjustStockRequest struct {
	AdjustmentType    string `json:"adjustment_type" validate:"required,oneof=set change"`
	OnHandValue       *int   `json:"on_hand_value,omitempty"`
	OnHandChange      *int   `json:"on_hand_change,omitempty"`
	SafetyStockValue  *int   `json:"safety_stock_value,omitempty"`
	SafetyStockChange *int   `json:"safety_stock_change,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// target picks the one counter field the request mutates. The value/change
// suffix must agree with adjustment_type.
func (p adjustStockRequest) target(adjustType enums.AdjustmentType) (allocation.AdjustField, int, error) {
	type candidate struct {
		field allocation.AdjustField
		kind  enums.AdjustmentType
		value *int
	}
	candidates := []candidate{
		{allocation.AdjustFieldOnHand, enums.AdjustmentTypeSet, p.OnHandValue},
		{allocation.AdjustFieldOnHand, enums.AdjustmentTypeChange, p.OnHandChange},
		{allocation.AdjustFieldSafetyStock, enums.AdjustmentTypeSet, p.SafetyStockValue},
		{allocation.AdjustFieldSafetyStock, enums.AdjustmentTypeChange, p.SafetyStockChange},
	}

	var picked *candidate
	for i := range candidates {
		if candidates[i].value == nil {
			continue
		}
		if picked != nil {
			return "", 0, pkgerrors.New(pkgerrors.CodeValidation, "provide exactly one adjustment field")
		}
		picked = &candidates[i]
	}
	if picked == nil {
		return "", 0, pkgerrors.New(pkgerrors.CodeValidation,
			"one of on_hand_value, on_hand_change, safety_stock_value, safety_stock_change is required")
	}
	if picked.kind != adjustType {
		return "", 0, pkgerrors.New(pkgerrors.CodeValidation,
			"adjustment field does not match adjustment_type")
	}
	return picked.field, *picked.value, nil
}

// ledgerNotes folds the request's reason and notes into the entry's notes
// column; the entry's reason column is always manual_adjustment.
func (p adjustStockRequest) ledgerNotes() string {
	reason := strings.TrimSpace(p.Reason)
	notes := strings.TrimSpace(p.Notes)
	switch {
	case reason != "" && notes != "":
		return reason + ": " + notes
	case reason != "":
		return reason
	default:
		return notes
	}
}

// AdjustStock applies a manual counter adjustment.
func AdjustStock(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := validators.ParsePathUUID(chi.URLParam(r, "variantID"), "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adjustType, err := enums.ParseAdjustmentType(payload.AdjustmentType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment type"))
			return
		}

		field, value, err := payload.target(adjustType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counter, err := svc.AdjustStock(r.Context(), allocation.AdjustStockInput{
			VariantID: variantID,
			Field:     field,
			Type:      adjustType,
			Value:     value,
			Actor:     actor,
			Notes:     payload.ledgerNotes(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCounterResponse(counter))
	}
}

type channelBufferRequest struct {
	Channel string `json:"channel" validate:"required"`
	Units   int    `json:"units"`
}

// SetChannelBuffer sets a per-channel withholding on the variant.
func SetChannelBuffer(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := validators.ParsePathUUID(chi.URLParam(r, "variantID"), "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload channelBufferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counter, err := svc.SetChannelBuffer(r.Context(), allocation.SetChannelBufferInput{
			VariantID: variantID,
			Channel:   payload.Channel,
			Units:     payload.Units,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCounterResponse(counter))
	}
}
