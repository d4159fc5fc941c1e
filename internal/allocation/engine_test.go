package allocation

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/internal/channelmap"
	"github.com/maplecart/inventory-backend/internal/ledger"
	"github.com/maplecart/inventory-backend/pkg/db"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/enums"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/outbox"
	"github.com/maplecart/inventory-backend/pkg/pagination"
)

type testEngine struct {
	svc      Service
	conn     *gorm.DB
	ledger   ledger.Repository
	mappings channelmap.Service
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	dsn := "file:allocation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.StockCounter{},
		&models.StockLedgerEntry{},
		&models.ChannelMapping{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	mappings, err := channelmap.NewService(channelmap.NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("channelmap service: %v", err)
	}

	ledgerRepo := ledger.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	svc, err := NewService(db.NewFromGorm(conn), NewRepository(conn), ledgerRepo, mappings, events, nil, logg)
	if err != nil {
		t.Fatalf("allocation service: %v", err)
	}

	return &testEngine{svc: svc, conn: conn, ledger: ledgerRepo, mappings: mappings}
}

func (e *testEngine) seedVariant(t *testing.T, sku string, onHand, safetyStock, threshold int) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	counter, err := e.svc.InitializeVariant(ctx, InitializeVariantInput{
		VariantID:         uuid.New(),
		SKU:               sku,
		ProductName:       "Test " + sku,
		LowStockThreshold: threshold,
		Actor:             "ops@maplecart.io",
	})
	if err != nil {
		t.Fatalf("initialize variant: %v", err)
	}
	if onHand > 0 {
		if _, err := e.svc.AdjustStock(ctx, AdjustStockInput{
			VariantID: counter.VariantID,
			Field:     AdjustFieldOnHand,
			Type:      enums.AdjustmentTypeSet,
			Value:     onHand,
			Actor:     "ops@maplecart.io",
		}); err != nil {
			t.Fatalf("seed on_hand: %v", err)
		}
	}
	if safetyStock > 0 {
		if _, err := e.svc.AdjustStock(ctx, AdjustStockInput{
			VariantID: counter.VariantID,
			Field:     AdjustFieldSafetyStock,
			Type:      enums.AdjustmentTypeSet,
			Value:     safetyStock,
			Actor:     "ops@maplecart.io",
		}); err != nil {
			t.Fatalf("seed safety_stock: %v", err)
		}
	}
	return counter.VariantID
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestReserveReleaseLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "SHIRT-RED-M", 10, 2, 0)

	if _, err := e.svc.SetChannelBuffer(ctx, SetChannelBufferInput{
		VariantID: variantID,
		Channel:   "shopfront",
		Units:     1,
		Actor:     "ops@maplecart.io",
	}); err != nil {
		t.Fatalf("set channel buffer: %v", err)
	}

	// on_hand 10, safety 2, buffer 1 leaves 7 sellable.
	counter, err := e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.Available() != 7 {
		t.Fatalf("expected available 7, got %d", counter.Available())
	}

	counter, err = e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID,
		OrderRef:  "order-1",
		Quantity:  5,
		Actor:     "order-service",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if counter.Allocated != 5 || counter.Available() != 2 {
		t.Fatalf("unexpected counters after reserve: %+v", counter)
	}

	_, err = e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID,
		OrderRef:  "order-2",
		Quantity:  3,
		Actor:     "order-service",
	})
	assertCode(t, err, pkgerrors.CodeInsufficientStock)

	counter, err = e.svc.ReleaseReservation(ctx, variantID, "order-1", "order-service")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if counter.Allocated != 0 || counter.OnHand != 10 {
		t.Fatalf("unexpected counters after release: %+v", counter)
	}
	if counter.Available() != 7 {
		t.Fatalf("expected available 7 after release, got %d", counter.Available())
	}
}

func TestReserveReplaySameOrderRef(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "SHIRT-BLUE-M", 10, 0, 0)

	input := ReservationInput{
		VariantID: variantID,
		OrderRef:  "order-7",
		Quantity:  4,
		Actor:     "order-service",
	}
	if _, err := e.svc.ReserveForOrder(ctx, input); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Retried delivery of the same request must not allocate twice.
	counter, err := e.svc.ReserveForOrder(ctx, input)
	if err != nil {
		t.Fatalf("replayed reserve: %v", err)
	}
	if counter.Allocated != 4 {
		t.Fatalf("expected allocated 4 after replay, got %d", counter.Allocated)
	}

	entries, err := e.ledger.ListByVariantAsc(ctx, variantID)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	reserveEntries := 0
	for _, entry := range entries {
		if entry.Reason == enums.LedgerReasonOrderReserved {
			reserveEntries++
		}
	}
	if reserveEntries != 1 {
		t.Fatalf("expected 1 reserve entry, got %d", reserveEntries)
	}
}

func TestFulfillOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "SHIRT-GRN-L", 10, 0, 0)

	if _, err := e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID,
		OrderRef:  "order-9",
		Quantity:  4,
		Actor:     "order-service",
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	counter, err := e.svc.FulfillOrder(ctx, variantID, "order-9", "order-service")
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if counter.OnHand != 6 || counter.Allocated != 0 {
		t.Fatalf("unexpected counters after fulfill: %+v", counter)
	}

	// The order_ref is terminal; both re-entries are no-ops.
	counter, err = e.svc.FulfillOrder(ctx, variantID, "order-9", "order-service")
	if err != nil {
		t.Fatalf("second fulfill: %v", err)
	}
	if counter.OnHand != 6 || counter.Allocated != 0 {
		t.Fatalf("second fulfill mutated counters: %+v", counter)
	}
	counter, err = e.svc.ReleaseReservation(ctx, variantID, "order-9", "order-service")
	if err != nil {
		t.Fatalf("release after fulfill: %v", err)
	}
	if counter.OnHand != 6 || counter.Allocated != 0 {
		t.Fatalf("release after fulfill mutated counters: %+v", counter)
	}
}

func TestReleaseUnknownOrderRef(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	variantID := e.seedVariant(t, "SHIRT-BLK-S", 5, 0, 0)

	_, err := e.svc.ReleaseReservation(context.Background(), variantID, "order-missing", "order-service")
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestAdjustStockValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "MUG-WHT", 3, 0, 0)

	_, err := e.svc.AdjustStock(ctx, AdjustStockInput{
		VariantID: variantID,
		Field:     AdjustFieldOnHand,
		Type:      enums.AdjustmentTypeChange,
		Value:     -5,
		Actor:     "ops@maplecart.io",
	})
	assertCode(t, err, pkgerrors.CodeInvalidAdjustment)

	_, err = e.svc.AdjustStock(ctx, AdjustStockInput{
		VariantID: variantID,
		Field:     AdjustFieldSafetyStock,
		Type:      enums.AdjustmentTypeSet,
		Value:     -1,
		Actor:     "ops@maplecart.io",
	})
	assertCode(t, err, pkgerrors.CodeInvalidAdjustment)

	// A rejected adjustment must leave no trace in the ledger.
	entries, err := e.ledger.ListByVariantAsc(ctx, variantID)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the seed entry, got %d", len(entries))
	}

	counter, err := e.svc.AdjustStock(ctx, AdjustStockInput{
		VariantID: variantID,
		Field:     AdjustFieldOnHand,
		Type:      enums.AdjustmentTypeChange,
		Value:     -3,
		Actor:     "ops@maplecart.io",
		Notes:     "damaged in warehouse",
	})
	if err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}
	if counter.OnHand != 0 {
		t.Fatalf("expected on_hand 0, got %d", counter.OnHand)
	}
}

func TestAdjustStockNoopSetStillWritesLedgerEntry(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "MUG-BLK", 7, 0, 0)

	counter, err := e.svc.AdjustStock(ctx, AdjustStockInput{
		VariantID: variantID,
		Field:     AdjustFieldOnHand,
		Type:      enums.AdjustmentTypeSet,
		Value:     7,
		Actor:     "ops@maplecart.io",
		Notes:     "cycle count confirmed",
	})
	if err != nil {
		t.Fatalf("set to current value: %v", err)
	}
	if counter.OnHand != 7 {
		t.Fatalf("expected on_hand 7, got %d", counter.OnHand)
	}

	// Seed entry plus the confirming zero-delta entry.
	entries, err := e.ledger.ListByVariantAsc(ctx, variantID)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Reason != enums.LedgerReasonManualAdjustment {
		t.Fatalf("unexpected reason %s", last.Reason)
	}
	if last.DeltaOnHand != 0 || last.ResultingOnHand != 7 {
		t.Fatalf("unexpected deltas: %+v", last)
	}
	if last.Notes == nil || *last.Notes != "cycle count confirmed" {
		t.Fatalf("notes not carried: %+v", last.Notes)
	}

	replayed, err := ledger.ReplayCounters(ctx, e.ledger, variantID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.OnHand != 7 {
		t.Fatalf("replay disagrees: %+v", replayed)
	}
}

func TestImportExternalOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "HAT-NVY", 10, 0, 0)

	if _, err := e.mappings.CreateMapping(ctx, channelmap.CreateMappingInput{
		Channel:     "bidbay",
		ExternalSKU: "BB-HAT-NVY",
		VariantID:   variantID,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	request := ImportRequest{
		Channel:         "bidbay",
		ExternalOrderID: "bb-5001",
		Actor:           "import-worker",
		Lines: []ImportLine{
			{ExternalSKU: "BB-HAT-NVY", Quantity: 3},
			{ExternalSKU: "BB-UNKNOWN", Quantity: 1},
		},
	}

	report, err := e.svc.ImportExternalOrder(ctx, request)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Applied != 1 || report.Unresolved != 1 || report.AlreadyApplied != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Lines[0].Status != enums.ImportLineApplied {
		t.Fatalf("expected line 0 applied, got %s", report.Lines[0].Status)
	}
	if report.Lines[1].Status != enums.ImportLineUnresolved {
		t.Fatalf("expected line 1 unresolved, got %s", report.Lines[1].Status)
	}

	counter, err := e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.OnHand != 7 {
		t.Fatalf("expected on_hand 7, got %d", counter.OnHand)
	}

	// Redelivered batch: the processed line skips silently, counters hold.
	report, err = e.svc.ImportExternalOrder(ctx, request)
	if err != nil {
		t.Fatalf("replayed import: %v", err)
	}
	if report.Applied != 0 || report.AlreadyApplied != 1 || report.Unresolved != 1 {
		t.Fatalf("unexpected replay report: %+v", report)
	}
	counter, err = e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.OnHand != 7 {
		t.Fatalf("replay changed on_hand to %d", counter.OnHand)
	}
}

func TestImportContinuesPastArchivedVariant(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	archivedID := e.seedVariant(t, "CAP-GRN", 5, 0, 0)
	liveID := e.seedVariant(t, "CAP-BLK", 5, 0, 0)

	for sku, variantID := range map[string]uuid.UUID{
		"BB-CAP-GRN": archivedID,
		"BB-CAP-BLK": liveID,
	} {
		if _, err := e.mappings.CreateMapping(ctx, channelmap.CreateMappingInput{
			Channel:     "bidbay",
			ExternalSKU: sku,
			VariantID:   variantID,
		}); err != nil {
			t.Fatalf("create mapping %s: %v", sku, err)
		}
	}

	// Archiving leaves the mapping behind, so the import still resolves it.
	if err := e.svc.ArchiveVariant(ctx, archivedID, "ops@maplecart.io"); err != nil {
		t.Fatalf("archive variant: %v", err)
	}

	report, err := e.svc.ImportExternalOrder(ctx, ImportRequest{
		Channel:         "bidbay",
		ExternalOrderID: "bb-6001",
		Actor:           "import-worker",
		Lines: []ImportLine{
			{ExternalSKU: "BB-CAP-GRN", Quantity: 2},
			{ExternalSKU: "BB-CAP-BLK", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Failed != 1 || report.Applied != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Lines[0].Status != enums.ImportLineFailed {
		t.Fatalf("expected line 0 failed, got %s", report.Lines[0].Status)
	}
	if report.Lines[1].Status != enums.ImportLineApplied {
		t.Fatalf("expected line 1 applied, got %s", report.Lines[1].Status)
	}

	counter, err := e.svc.GetVariantInventory(ctx, liveID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.OnHand != 3 {
		t.Fatalf("expected live variant on_hand 3, got %d", counter.OnHand)
	}
}

func TestImportClampsAtZeroWithAnomaly(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "HAT-RED", 2, 0, 0)

	if _, err := e.mappings.CreateMapping(ctx, channelmap.CreateMappingInput{
		Channel:     "bidbay",
		ExternalSKU: "BB-HAT-RED",
		VariantID:   variantID,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	report, err := e.svc.ImportExternalOrder(ctx, ImportRequest{
		Channel:         "bidbay",
		ExternalOrderID: "bb-5002",
		Actor:           "import-worker",
		Lines:           []ImportLine{{ExternalSKU: "BB-HAT-RED", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !report.Lines[0].Anomaly {
		t.Fatal("expected anomaly flag on oversold line")
	}

	counter, err := e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.OnHand != 0 {
		t.Fatalf("expected on_hand clamped to 0, got %d", counter.OnHand)
	}

	replayed, err := ledger.ReplayCounters(ctx, e.ledger, variantID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.OnHand != 0 {
		t.Fatalf("ledger disagrees with counters: %+v", replayed)
	}
}

func TestConcurrentReservationsSingleWinner(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "TEE-LTD", 1, 0, 0)

	const attempts = 8
	var wg sync.WaitGroup
	outcomes := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.svc.ReserveForOrder(ctx, ReservationInput{
				VariantID: variantID,
				OrderRef:  uuid.NewString(),
				Quantity:  1,
				Actor:     "order-service",
			})
			outcomes <- err
		}(i)
	}
	wg.Wait()
	close(outcomes)

	succeeded, insufficient := 0, 0
	for err := range outcomes {
		if err == nil {
			succeeded++
			continue
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			insufficient++
			continue
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if succeeded != 1 || insufficient != attempts-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d and %d", attempts-1, succeeded, insufficient)
	}

	counter, err := e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.Allocated != 1 || counter.Available() != 0 {
		t.Fatalf("unexpected counters after race: %+v", counter)
	}

	replayed, err := ledger.ReplayCounters(ctx, e.ledger, variantID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.OnHand != counter.OnHand || replayed.Allocated != counter.Allocated {
		t.Fatalf("ledger disagrees with counters: replayed %+v, live %+v", replayed, counter)
	}
}

func TestLedgerReplayRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "BAG-TAN", 50, 5, 10)

	if _, err := e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID, OrderRef: "order-a", Quantity: 12, Actor: "order-service",
	}); err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	if _, err := e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID, OrderRef: "order-b", Quantity: 8, Actor: "order-service",
	}); err != nil {
		t.Fatalf("reserve b: %v", err)
	}
	if _, err := e.svc.FulfillOrder(ctx, variantID, "order-a", "order-service"); err != nil {
		t.Fatalf("fulfill a: %v", err)
	}
	if _, err := e.svc.ReleaseReservation(ctx, variantID, "order-b", "order-service"); err != nil {
		t.Fatalf("release b: %v", err)
	}
	if _, err := e.svc.AdjustStock(ctx, AdjustStockInput{
		VariantID: variantID,
		Field:     AdjustFieldOnHand,
		Type:      enums.AdjustmentTypeChange,
		Value:     -3,
		Actor:     "ops@maplecart.io",
		Notes:     "shrinkage count",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	counter, err := e.svc.GetVariantInventory(ctx, variantID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if counter.OnHand != 35 || counter.Allocated != 0 || counter.SafetyStock != 5 {
		t.Fatalf("unexpected counters: %+v", counter)
	}

	replayed, err := ledger.ReplayCounters(ctx, e.ledger, variantID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.OnHand != counter.OnHand ||
		replayed.Allocated != counter.Allocated ||
		replayed.SafetyStock != counter.SafetyStock {
		t.Fatalf("ledger disagrees with counters: replayed %+v, live %+v", replayed, counter)
	}
}

func TestGetLedgerHistoryPaginated(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "CAP-GRY", 20, 0, 0)

	for _, ref := range []string{"order-1", "order-2", "order-3"} {
		if _, err := e.svc.ReserveForOrder(ctx, ReservationInput{
			VariantID: variantID, OrderRef: ref, Quantity: 1, Actor: "order-service",
		}); err != nil {
			t.Fatalf("reserve %s: %v", ref, err)
		}
	}

	page, err := e.svc.GetLedgerHistory(ctx, variantID, pagination.Params{Skip: 0, Limit: 2})
	if err != nil {
		t.Fatalf("ledger history: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page))
	}

	_, err = e.svc.GetLedgerHistory(ctx, uuid.New(), pagination.Params{})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestArchiveVariantHidesCounters(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	variantID := e.seedVariant(t, "OLD-SKU", 4, 0, 0)

	if err := e.svc.ArchiveVariant(ctx, variantID, "ops@maplecart.io"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := e.svc.GetVariantInventory(ctx, variantID)
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = e.svc.ReserveForOrder(ctx, ReservationInput{
		VariantID: variantID, OrderRef: "order-late", Quantity: 1, Actor: "order-service",
	})
	assertCode(t, err, pkgerrors.CodeNotFound)
}
