// Package allocation is the single write path for stock counters. Every
// mutation runs under the variant's lock, inside one transaction that updates
// the counter row and appends the matching ledger entry. Nothing else in the
// codebase writes stock.
package allocation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/internal/ledger"
	"github.com/maplecart/inventory-backend/pkg/db"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/enums"
	"github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/metrics"
	"github.com/maplecart/inventory-backend/pkg/outbox"
	"github.com/maplecart/inventory-backend/pkg/pagination"
)

// MappingResolver resolves external channel identifiers to variant ids.
type MappingResolver interface {
	Resolve(ctx context.Context, channel, externalSKU string) (*models.ChannelMapping, error)
}

// Service defines the allocation engine's operations.
type Service interface {
	InitializeVariant(ctx context.Context, input InitializeVariantInput) (*models.StockCounter, error)
	ArchiveVariant(ctx context.Context, variantID uuid.UUID, actor string) error
	ReserveForOrder(ctx context.Context, input ReservationInput) (*models.StockCounter, error)
	ReleaseReservation(ctx context.Context, variantID uuid.UUID, orderRef, actor string) (*models.StockCounter, error)
	FulfillOrder(ctx context.Context, variantID uuid.UUID, orderRef, actor string) (*models.StockCounter, error)
	AdjustStock(ctx context.Context, input AdjustStockInput) (*models.StockCounter, error)
	SetChannelBuffer(ctx context.Context, input SetChannelBufferInput) (*models.StockCounter, error)
	ImportExternalOrder(ctx context.Context, input ImportRequest) (*ImportReport, error)
	GetVariantInventory(ctx context.Context, variantID uuid.UUID) (*models.StockCounter, error)
	GetLedgerHistory(ctx context.Context, variantID uuid.UUID, page pagination.Params) ([]models.StockLedgerEntry, error)
}

type service struct {
	client   *db.Client
	counters Repository
	ledger   ledger.Repository
	mappings MappingResolver
	events   *outbox.Service
	metrics  *metrics.AllocationMetrics
	log      *logger.Logger
	locks    *variantLocks
}

// NewService wires the allocation engine. Metrics and events may be nil in
// contexts that do not collect them.
func NewService(
	client *db.Client,
	counters Repository,
	ledgerRepo ledger.Repository,
	mappings MappingResolver,
	events *outbox.Service,
	m *metrics.AllocationMetrics,
	log *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if counters == nil {
		return nil, fmt.Errorf("stock counter repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if mappings == nil {
		return nil, fmt.Errorf("mapping resolver required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		client:   client,
		counters: counters,
		ledger:   ledgerRepo,
		mappings: mappings,
		events:   events,
		metrics:  m,
		log:      log,
		locks:    newVariantLocks(),
	}, nil
}

func (s *service) InitializeVariant(ctx context.Context, input InitializeVariantInput) (*models.StockCounter, error) {
	if input.VariantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	if strings.TrimSpace(input.SKU) == "" {
		return nil, errors.New(errors.CodeValidation, "sku is required")
	}
	if input.LowStockThreshold < 0 {
		return nil, errors.New(errors.CodeValidation, "low stock threshold cannot be negative")
	}

	counter := &models.StockCounter{
		VariantID:         input.VariantID,
		SKU:               strings.TrimSpace(input.SKU),
		ProductName:       strings.TrimSpace(input.ProductName),
		LowStockThreshold: input.LowStockThreshold,
		ChannelBuffers:    map[string]int{},
	}
	if err := s.counters.Create(ctx, counter); err != nil {
		if db.IsUniqueViolation(err, "stock_counters_pkey") {
			return nil, errors.New(errors.CodeConflict, "variant already initialized")
		}
		return nil, errors.Wrap(errors.CodeStorageTransaction, err, "initialize variant")
	}

	s.log.Info(s.log.WithVariantID(ctx, input.VariantID.String()), "variant counters initialized")
	return counter, nil
}

func (s *service) ArchiveVariant(ctx context.Context, variantID uuid.UUID, actor string) error {
	if variantID == uuid.Nil {
		return errors.New(errors.CodeValidation, "variant id is required")
	}

	unlock := s.locks.acquire(variantID)
	defer unlock()

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		counters := s.counters.WithTx(tx)
		counter, err := counters.Get(ctx, variantID)
		if err != nil {
			return err
		}
		if counter == nil {
			return errors.New(errors.CodeNotFound, "variant not found")
		}

		archived, err := counters.Archive(ctx, variantID)
		if err != nil {
			return err
		}
		if !archived {
			return errors.New(errors.CodeNotFound, "variant not found")
		}

		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVariantArchived,
			AggregateType: enums.AggregateVariant,
			AggregateID:   variantID,
			Actor:         &outbox.ActorRef{ActorID: actor},
			Data: map[string]any{
				"variant_id": variantID,
				"sku":        counter.SKU,
			},
		})
	})
	if err != nil {
		return s.storageErr(err, "archive variant")
	}

	s.log.Info(s.log.WithVariantID(ctx, variantID.String()), "variant counters archived")
	return nil
}

func (s *service) ReserveForOrder(ctx context.Context, input ReservationInput) (*models.StockCounter, error) {
	orderRef := strings.TrimSpace(input.OrderRef)
	if input.VariantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	if orderRef == "" {
		return nil, errors.New(errors.CodeValidation, "order ref is required")
	}
	if input.Quantity <= 0 {
		return nil, errors.New(errors.CodeValidation, "quantity must be positive")
	}

	var out *models.StockCounter
	err := s.withVariantTx(ctx, input.VariantID, func(tx *gorm.DB, counter *models.StockCounter) error {
		ledgerRepo := s.ledger.WithTx(tx)

		replayed, err := ledgerRepo.HasReservationEntry(ctx, input.VariantID, orderRef)
		if err != nil {
			return err
		}
		if replayed {
			// The order already holds its reservation; repeating the call
			// must not allocate twice.
			s.metrics.IncReservation("replayed")
			out = counter
			return nil
		}

		available := counter.Available()
		if input.Quantity > available {
			s.metrics.IncReservation("insufficient")
			return errors.New(errors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"variant_id": input.VariantID,
					"requested":  input.Quantity,
					"available":  available,
				})
		}

		wasLow := counter.IsLowStock()
		counter.Allocated += input.Quantity
		if err := s.counters.WithTx(tx).Save(ctx, counter); err != nil {
			return err
		}

		if err := s.appendLedger(ctx, ledgerRepo, counter, ledgerDeltas{allocated: input.Quantity},
			enums.LedgerReasonOrderReserved, input.Actor, nil, &orderRef, nil); err != nil {
			return err
		}
		if err := s.emitLowStockIfCrossed(ctx, tx, wasLow, counter, input.Actor); err != nil {
			return err
		}

		s.metrics.IncReservation("reserved")
		out = counter
		return nil
	})
	if err != nil {
		return nil, s.storageErr(err, "reserve for order")
	}
	return out, nil
}

func (s *service) ReleaseReservation(ctx context.Context, variantID uuid.UUID, orderRef, actor string) (*models.StockCounter, error) {
	return s.closeReservation(ctx, variantID, orderRef, actor, enums.LedgerReasonOrderReleased)
}

func (s *service) FulfillOrder(ctx context.Context, variantID uuid.UUID, orderRef, actor string) (*models.StockCounter, error) {
	return s.closeReservation(ctx, variantID, orderRef, actor, enums.LedgerReasonOrderFulfilled)
}

// closeReservation moves an order_ref from reserved to its terminal state.
// Release hands the units back to availability; fulfill consumes them from
// on_hand. A second close for the same order_ref is a no-op regardless of
// which terminal state came first.
func (s *service) closeReservation(ctx context.Context, variantID uuid.UUID, orderRef, actor string, reason enums.LedgerReason) (*models.StockCounter, error) {
	orderRef = strings.TrimSpace(orderRef)
	if variantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	if orderRef == "" {
		return nil, errors.New(errors.CodeValidation, "order ref is required")
	}

	var out *models.StockCounter
	err := s.withVariantTx(ctx, variantID, func(tx *gorm.DB, counter *models.StockCounter) error {
		ledgerRepo := s.ledger.WithTx(tx)

		terminal, err := ledgerRepo.HasTerminalOrderEntry(ctx, variantID, orderRef)
		if err != nil {
			return err
		}
		if terminal {
			out = counter
			return nil
		}

		qty, err := reservedQuantity(ctx, ledgerRepo, variantID, orderRef)
		if err != nil {
			return err
		}
		if qty == 0 {
			return errors.New(errors.CodeNotFound, "no reservation for order ref").
				WithDetails(map[string]any{
					"variant_id": variantID,
					"order_ref":  orderRef,
				})
		}

		deltas := ledgerDeltas{allocated: -minInt(qty, counter.Allocated)}
		if reason == enums.LedgerReasonOrderFulfilled {
			deltas.onHand = -minInt(qty, counter.OnHand)
		}
		counter.Allocated += deltas.allocated
		counter.OnHand += deltas.onHand
		if err := s.counters.WithTx(tx).Save(ctx, counter); err != nil {
			return err
		}

		if err := s.appendLedger(ctx, ledgerRepo, counter, deltas, reason, actor, nil, &orderRef, nil); err != nil {
			return err
		}

		out = counter
		return nil
	})
	if err != nil {
		return nil, s.storageErr(err, "close reservation")
	}
	return out, nil
}

func (s *service) AdjustStock(ctx context.Context, input AdjustStockInput) (*models.StockCounter, error) {
	if input.VariantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	if !input.Field.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown adjustment field %q", input.Field))
	}
	if !input.Type.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown adjustment type %q", input.Type))
	}

	var out *models.StockCounter
	err := s.withVariantTx(ctx, input.VariantID, func(tx *gorm.DB, counter *models.StockCounter) error {
		current := counter.OnHand
		if input.Field == AdjustFieldSafetyStock {
			current = counter.SafetyStock
		}

		target := input.Value
		if input.Type == enums.AdjustmentTypeChange {
			target = current + input.Value
		}
		if target < 0 {
			return errors.New(errors.CodeInvalidAdjustment, "adjustment would drive counter negative").
				WithDetails(map[string]any{
					"field":   string(input.Field),
					"current": current,
					"target":  target,
				})
		}

		// A zero-delta set still writes its ledger entry so the audit
		// trail records every adjustment call that succeeded.
		delta := target - current
		wasLow := counter.IsLowStock()
		deltas := ledgerDeltas{}
		if input.Field == AdjustFieldOnHand {
			counter.OnHand = target
			deltas.onHand = delta
		} else {
			counter.SafetyStock = target
			deltas.safetyStock = delta
		}
		if err := s.counters.WithTx(tx).Save(ctx, counter); err != nil {
			return err
		}

		var notes *string
		if trimmed := strings.TrimSpace(input.Notes); trimmed != "" {
			notes = &trimmed
		}
		if err := s.appendLedger(ctx, s.ledger.WithTx(tx), counter, deltas,
			enums.LedgerReasonManualAdjustment, input.Actor, nil, nil, notes); err != nil {
			return err
		}
		if err := s.emitLowStockIfCrossed(ctx, tx, wasLow, counter, input.Actor); err != nil {
			return err
		}

		out = counter
		return nil
	})
	if err != nil {
		return nil, s.storageErr(err, "adjust stock")
	}
	return out, nil
}

func (s *service) SetChannelBuffer(ctx context.Context, input SetChannelBufferInput) (*models.StockCounter, error) {
	channel := strings.TrimSpace(input.Channel)
	if input.VariantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	if channel == "" {
		return nil, errors.New(errors.CodeValidation, "channel is required")
	}
	if input.Units < 0 {
		return nil, errors.New(errors.CodeInvalidAdjustment, "channel buffer cannot be negative").
			WithDetails(map[string]any{"channel": channel, "units": input.Units})
	}

	var out *models.StockCounter
	err := s.withVariantTx(ctx, input.VariantID, func(tx *gorm.DB, counter *models.StockCounter) error {
		previous := counter.ChannelBuffers[channel]
		if previous == input.Units {
			out = counter
			return nil
		}

		wasLow := counter.IsLowStock()
		buffers := counter.ChannelBuffers.Clone()
		if input.Units == 0 {
			delete(buffers, channel)
		} else {
			buffers[channel] = input.Units
		}
		counter.ChannelBuffers = buffers
		if err := s.counters.WithTx(tx).Save(ctx, counter); err != nil {
			return err
		}

		notes := fmt.Sprintf("buffer %d -> %d", previous, input.Units)
		if err := s.appendLedger(ctx, s.ledger.WithTx(tx), counter, ledgerDeltas{},
			enums.LedgerReasonChannelBufferChange, input.Actor, &channel, nil, &notes); err != nil {
			return err
		}
		if err := s.emitLowStockIfCrossed(ctx, tx, wasLow, counter, input.Actor); err != nil {
			return err
		}

		out = counter
		return nil
	})
	if err != nil {
		return nil, s.storageErr(err, "set channel buffer")
	}
	return out, nil
}

func (s *service) ImportExternalOrder(ctx context.Context, input ImportRequest) (*ImportReport, error) {
	channel := strings.TrimSpace(input.Channel)
	externalOrderID := strings.TrimSpace(input.ExternalOrderID)
	if channel == "" {
		return nil, errors.New(errors.CodeValidation, "channel is required")
	}
	if externalOrderID == "" {
		return nil, errors.New(errors.CodeValidation, "external order id is required")
	}
	if len(input.Lines) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one line is required")
	}
	for i, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, errors.New(errors.CodeValidation,
				fmt.Sprintf("line %d: quantity must be positive", i))
		}
	}

	report := &ImportReport{Channel: channel, ExternalOrderID: externalOrderID}
	for i, line := range input.Lines {
		result := ImportLineResult{LineIndex: i, ExternalSKU: line.ExternalSKU}

		mapping, err := s.mappings.Resolve(ctx, channel, line.ExternalSKU)
		if err != nil {
			if typed := errors.As(err); typed != nil && typed.Code() == errors.CodeUnresolvedMapping {
				result.Status = enums.ImportLineUnresolved
				result.Message = "no mapping for channel sku"
				report.Unresolved++
				report.Lines = append(report.Lines, result)
				s.metrics.IncImportLine(string(result.Status))
				continue
			}
			return nil, err
		}

		variantID := mapping.VariantID
		result.VariantID = &variantID

		lineRef := fmt.Sprintf("%s:%d", externalOrderID, i)
		status, anomaly, err := s.applyImportLine(ctx, variantID, channel, lineRef, line.Quantity, input.Actor)
		if err != nil {
			// A mapping can outlive its variant: ArchiveVariant leaves
			// mappings in place. That line fails, the batch continues.
			if typed := errors.As(err); typed != nil && typed.Code() == errors.CodeNotFound {
				result.Status = enums.ImportLineFailed
				result.Message = "variant archived or missing"
				report.Failed++
				report.Lines = append(report.Lines, result)
				s.metrics.IncImportLine(string(result.Status))
				continue
			}
			return nil, err
		}
		result.Status = status
		result.Anomaly = anomaly
		switch status {
		case enums.ImportLineApplied:
			report.Applied++
		case enums.ImportLineAlreadyProcessed:
			report.AlreadyApplied++
		}
		if anomaly {
			result.Message = "on_hand exhausted before full quantity"
		}
		report.Lines = append(report.Lines, result)
		s.metrics.IncImportLine(string(status))
	}

	s.log.Info(s.log.WithChannel(ctx, channel), "external order imported")
	return report, nil
}

// applyImportLine decrements on_hand for one resolved line. The line ref
// (external order id plus line index) keys replay detection: a ref already in
// the ledger is skipped silently without a second entry.
func (s *service) applyImportLine(ctx context.Context, variantID uuid.UUID, channel, lineRef string, quantity int, actor string) (enums.ImportLineStatus, bool, error) {
	var status enums.ImportLineStatus
	var anomaly bool

	err := s.withVariantTx(ctx, variantID, func(tx *gorm.DB, counter *models.StockCounter) error {
		ledgerRepo := s.ledger.WithTx(tx)

		existing, err := ledgerRepo.FindByExternalReference(ctx, variantID, lineRef)
		if err != nil {
			return err
		}
		for _, entry := range existing {
			if entry.Reason == enums.LedgerReasonExternalImport {
				status = enums.ImportLineAlreadyProcessed
				return nil
			}
		}

		wasLow := counter.IsLowStock()
		applied := minInt(quantity, counter.OnHand)
		anomaly = applied < quantity
		counter.OnHand -= applied
		if err := s.counters.WithTx(tx).Save(ctx, counter); err != nil {
			return err
		}

		var notes *string
		if anomaly {
			text := fmt.Sprintf("requested %d, applied %d", quantity, applied)
			notes = &text
		}
		if err := s.appendLedger(ctx, ledgerRepo, counter, ledgerDeltas{onHand: -applied},
			enums.LedgerReasonExternalImport, actor, &channel, &lineRef, notes); err != nil {
			return err
		}

		if anomaly {
			if err := s.emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventImportAnomaly,
				AggregateType: enums.AggregateVariant,
				AggregateID:   variantID,
				Actor:         &outbox.ActorRef{ActorID: actor},
				Data: map[string]any{
					"variant_id": variantID,
					"channel":    channel,
					"line_ref":   lineRef,
					"requested":  quantity,
					"applied":    applied,
				},
			}); err != nil {
				return err
			}
		}
		if err := s.emitLowStockIfCrossed(ctx, tx, wasLow, counter, actor); err != nil {
			return err
		}

		status = enums.ImportLineApplied
		return nil
	})
	if err != nil {
		return "", false, s.storageErr(err, "apply import line")
	}
	return status, anomaly, nil
}

func (s *service) GetVariantInventory(ctx context.Context, variantID uuid.UUID) (*models.StockCounter, error) {
	if variantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	counter, err := s.counters.Get(ctx, variantID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load variant inventory")
	}
	if counter == nil {
		return nil, errors.New(errors.CodeNotFound, "variant not found")
	}
	return counter, nil
}

func (s *service) GetLedgerHistory(ctx context.Context, variantID uuid.UUID, page pagination.Params) ([]models.StockLedgerEntry, error) {
	if variantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	counter, err := s.counters.Get(ctx, variantID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load variant inventory")
	}
	if counter == nil {
		return nil, errors.New(errors.CodeNotFound, "variant not found")
	}

	entries, err := s.ledger.ListByVariant(ctx, variantID, page)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list ledger history")
	}
	return entries, nil
}

// withVariantTx runs fn with the variant's lock held and a transaction open,
// after loading the counter row. Missing variants surface as not found.
func (s *service) withVariantTx(ctx context.Context, variantID uuid.UUID, fn func(tx *gorm.DB, counter *models.StockCounter) error) error {
	unlock := s.locks.acquire(variantID)
	defer unlock()

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		counter, err := s.counters.WithTx(tx).Get(ctx, variantID)
		if err != nil {
			return err
		}
		if counter == nil {
			return errors.New(errors.CodeNotFound, "variant not found")
		}
		return fn(tx, counter)
	})
}

type ledgerDeltas struct {
	onHand      int
	allocated   int
	safetyStock int
}

func (s *service) appendLedger(
	ctx context.Context,
	repo ledger.Repository,
	counter *models.StockCounter,
	deltas ledgerDeltas,
	reason enums.LedgerReason,
	actor string,
	channel *string,
	externalRef *string,
	notes *string,
) error {
	entry := &models.StockLedgerEntry{
		VariantID:            counter.VariantID,
		DeltaOnHand:          deltas.onHand,
		DeltaAllocated:       deltas.allocated,
		DeltaSafetyStock:     deltas.safetyStock,
		ResultingOnHand:      counter.OnHand,
		ResultingAllocated:   counter.Allocated,
		ResultingSafetyStock: counter.SafetyStock,
		Reason:               reason,
		Actor:                actor,
		Channel:              channel,
		ExternalReference:    externalRef,
		Notes:                notes,
	}
	if err := repo.Create(ctx, entry); err != nil {
		return err
	}
	s.metrics.IncLedgerAppend(string(reason))
	return nil
}

func (s *service) emitLowStockIfCrossed(ctx context.Context, tx *gorm.DB, wasLow bool, counter *models.StockCounter, actor string) error {
	if wasLow || !counter.IsLowStock() {
		return nil
	}
	return s.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLowStock,
		AggregateType: enums.AggregateVariant,
		AggregateID:   counter.VariantID,
		Actor:         &outbox.ActorRef{ActorID: actor},
		Data: map[string]any{
			"variant_id":          counter.VariantID,
			"sku":                 counter.SKU,
			"available":           counter.Available(),
			"low_stock_threshold": counter.LowStockThreshold,
		},
	})
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, event)
}

// storageErr passes typed domain errors through and wraps everything else as
// a storage transaction failure, which callers may retry.
func (s *service) storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := errors.As(err); typed != nil {
		return err
	}
	return errors.Wrap(errors.CodeStorageTransaction, err, op)
}

func reservedQuantity(ctx context.Context, repo ledger.Repository, variantID uuid.UUID, orderRef string) (int, error) {
	entries, err := repo.FindByExternalReference(ctx, variantID, orderRef)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.Reason == enums.LedgerReasonOrderReserved {
			return entry.DeltaAllocated, nil
		}
	}
	return 0, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
