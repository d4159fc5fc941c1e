package query

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/pagination"
	"github.com/maplecart/inventory-backend/pkg/redis"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	sets    int
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	value, ok := c.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value.(string)
	return nil
}

func (c *fakeCache) CacheKey(parts ...string) string {
	key := "test"
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:query_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.StockCounter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedCounter(t *testing.T, conn *gorm.DB, counter models.StockCounter) models.StockCounter {
	t.Helper()
	if counter.ChannelBuffers == nil {
		counter.ChannelBuffers = map[string]int{}
	}
	if err := conn.Create(&counter).Error; err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	return counter
}

func TestGetVariantStatusDerivesAvailability(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, err := NewService(allocation.NewRepository(conn), nil, 0,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	counter := seedCounter(t, conn, models.StockCounter{
		VariantID:         uuid.New(),
		SKU:               "SHIRT-RED-M",
		ProductName:       "Red Shirt",
		OnHand:            20,
		Allocated:         6,
		SafetyStock:       3,
		LowStockThreshold: 5,
		ChannelBuffers:    map[string]int{"shopfront": 2, "bidbay": 1},
	})

	status, err := svc.GetVariantStatus(context.Background(), counter.VariantID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	// 20 - 6 - 3 - 3 buffered leaves 8.
	if status.Available != 8 {
		t.Fatalf("expected available 8, got %d", status.Available)
	}
	if status.IsLowStock {
		t.Fatal("8 available against threshold 5 is not low stock")
	}
	if status.ChannelBuffers["shopfront"] != 2 {
		t.Fatalf("unexpected buffers: %v", status.ChannelBuffers)
	}
}

func TestGetVariantStatusClampsNegativeAvailability(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, err := NewService(allocation.NewRepository(conn), nil, 0,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	counter := seedCounter(t, conn, models.StockCounter{
		VariantID:         uuid.New(),
		SKU:               "MUG-WHT",
		OnHand:            2,
		Allocated:         1,
		SafetyStock:       5,
		LowStockThreshold: 1,
	})

	status, err := svc.GetVariantStatus(context.Background(), counter.VariantID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Available != 0 {
		t.Fatalf("expected available clamped to 0, got %d", status.Available)
	}
	if !status.IsLowStock {
		t.Fatal("0 available against threshold 1 must be low stock")
	}
}

func TestGetVariantStatusNotFound(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, err := NewService(allocation.NewRepository(conn), nil, 0,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.GetVariantStatus(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListVariantStatusesLowStockFilter(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, err := NewService(allocation.NewRepository(conn), nil, 0,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	seedCounter(t, conn, models.StockCounter{
		VariantID: uuid.New(), SKU: "A-PLENTY", OnHand: 50, LowStockThreshold: 5,
	})
	low := seedCounter(t, conn, models.StockCounter{
		VariantID: uuid.New(), SKU: "B-SCARCE", OnHand: 2, LowStockThreshold: 5,
	})

	all, err := svc.ListVariantStatuses(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(all))
	}

	lowOnly, err := svc.ListVariantStatuses(context.Background(), ListFilter{LowStockOnly: true})
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(lowOnly) != 1 || lowOnly[0].VariantID != low.VariantID {
		t.Fatalf("unexpected low stock listing: %+v", lowOnly)
	}
}

func TestListVariantStatusesLowStockFilterBeforePaging(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, err := NewService(allocation.NewRepository(conn), nil, 0,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	// Alternating stocked and scarce rows, ordered by sku. Skip and limit
	// must count filtered rows, not raw table rows.
	for i, sku := range []string{"A-FULL", "B-LOW", "C-FULL", "D-LOW", "E-FULL", "F-LOW"} {
		onHand := 50
		if i%2 == 1 {
			onHand = 1
		}
		seedCounter(t, conn, models.StockCounter{
			VariantID: uuid.New(), SKU: sku, OnHand: onHand, LowStockThreshold: 5,
		})
	}

	page, err := svc.ListVariantStatuses(context.Background(), ListFilter{
		LowStockOnly: true,
		Page:         pagination.Params{Limit: 2},
	})
	if err != nil {
		t.Fatalf("list low stock page: %v", err)
	}
	if len(page) != 2 || page[0].SKU != "B-LOW" || page[1].SKU != "D-LOW" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = svc.ListVariantStatuses(context.Background(), ListFilter{
		LowStockOnly: true,
		Page:         pagination.Params{Skip: 2, Limit: 2},
	})
	if err != nil {
		t.Fatalf("list low stock second page: %v", err)
	}
	if len(page) != 1 || page[0].SKU != "F-LOW" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestListVariantStatusesUsesCache(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	cache := newFakeCache()
	svc, err := NewService(allocation.NewRepository(conn), cache, 30*time.Second,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	seedCounter(t, conn, models.StockCounter{
		VariantID: uuid.New(), SKU: "CACHED-SKU", OnHand: 9,
	})

	first, err := svc.ListVariantStatuses(context.Background(), ListFilter{Page: pagination.Params{Limit: 10}})
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected 1 cache write, got %d", cache.sets)
	}

	// Second read is served from the cache even though the row changed.
	if err := conn.Model(&models.StockCounter{}).
		Where("sku = ?", "CACHED-SKU").
		Update("on_hand", 1).Error; err != nil {
		t.Fatalf("mutate counter: %v", err)
	}

	second, err := svc.ListVariantStatuses(context.Background(), ListFilter{Page: pagination.Params{Limit: 10}})
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected no second cache write, got %d", cache.sets)
	}
	if second[0].OnHand != first[0].OnHand {
		t.Fatalf("expected cached on_hand %d, got %d", first[0].OnHand, second[0].OnHand)
	}
}
