// Package query is the read-only inventory surface. Availability and the
// low-stock flag are derived from the counters at read time, never stored, so
// a stale cache entry is the only staleness a reader can observe.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/pagination"
	"github.com/maplecart/inventory-backend/pkg/redis"
)

// Cache is the slice of the redis client the facade needs. List responses are
// cached for the configured TTL; single-variant reads always hit the
// database because checkout decisions depend on them.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// VariantStatus is the wire shape for one variant's inventory view.
type VariantStatus struct {
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

// ListFilter narrows and pages the variant listing.
type ListFilter struct {
	LowStockOnly bool
	Page         pagination.Params
}

// Service defines the read-side operations.
type Service interface {
	GetVariantStatus(ctx context.Context, variantID uuid.UUID) (*VariantStatus, error)
	ListVariantStatuses(ctx context.Context, filter ListFilter) ([]VariantStatus, error)
}

type service struct {
	counters allocation.Repository
	cache    Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewService wires the query facade. Cache may be nil; listing then always
// reads through to the database.
func NewService(counters allocation.Repository, cache Cache, cacheTTL time.Duration, log *logger.Logger) (Service, error) {
	if counters == nil {
		return nil, fmt.Errorf("stock counter repository required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		counters: counters,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}, nil
}

func (s *service) GetVariantStatus(ctx context.Context, variantID uuid.UUID) (*VariantStatus, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	counter, err := s.counters.Get(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant status")
	}
	if counter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	status := toStatus(*counter)
	return &status, nil
}

func (s *service) ListVariantStatuses(ctx context.Context, filter ListFilter) ([]VariantStatus, error) {
	filter.Page = pagination.Normalize(filter.Page)

	cacheKey := s.listCacheKey(filter)
	if cached, ok := s.readCachedList(ctx, cacheKey); ok {
		return cached, nil
	}

	var statuses []VariantStatus
	var err error
	if filter.LowStockOnly {
		statuses, err = s.listLowStock(ctx, filter.Page)
	} else {
		statuses, err = s.listPage(ctx, filter.Page)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list variant statuses")
	}

	s.writeCachedList(ctx, cacheKey, statuses)
	return statuses, nil
}

func (s *service) listPage(ctx context.Context, page pagination.Params) ([]VariantStatus, error) {
	counters, err := s.counters.List(ctx, page)
	if err != nil {
		return nil, err
	}

	statuses := make([]VariantStatus, 0, len(counters))
	for _, counter := range counters {
		statuses = append(statuses, toStatus(counter))
	}
	return statuses, nil
}

// listLowStock pages across the whole table and applies skip/limit to the
// filtered rows. is_low_stock is derived, not stored, so the filter cannot
// run in SQL; filtering a pre-paged slice would undersize pages and make
// offsets skip matching rows.
func (s *service) listLowStock(ctx context.Context, page pagination.Params) ([]VariantStatus, error) {
	statuses := make([]VariantStatus, 0, page.Limit)
	matched := 0
	for offset := 0; ; offset += pagination.MaxLimit {
		counters, err := s.counters.List(ctx, pagination.Params{Skip: offset, Limit: pagination.MaxLimit})
		if err != nil {
			return nil, err
		}
		for _, counter := range counters {
			status := toStatus(counter)
			if !status.IsLowStock {
				continue
			}
			if matched >= page.Skip && len(statuses) < page.Limit {
				statuses = append(statuses, status)
			}
			matched++
		}
		if len(counters) < pagination.MaxLimit || len(statuses) == page.Limit {
			return statuses, nil
		}
	}
}

func (s *service) listCacheKey(filter ListFilter) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.CacheKey("inventory", "list",
		fmt.Sprintf("low=%t", filter.LowStockOnly),
		fmt.Sprintf("skip=%d", filter.Page.Skip),
		fmt.Sprintf("limit=%d", filter.Page.Limit),
	)
}

func (s *service) readCachedList(ctx context.Context, key string) ([]VariantStatus, bool) {
	if s.cache == nil || s.cacheTTL <= 0 || key == "" {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn(ctx, "inventory list cache read failed")
		}
		return nil, false
	}

	var statuses []VariantStatus
	if err := json.Unmarshal([]byte(raw), &statuses); err != nil {
		s.log.Warn(ctx, "inventory list cache entry corrupt")
		return nil, false
	}
	return statuses, true
}

func (s *service) writeCachedList(ctx context.Context, key string, statuses []VariantStatus) {
	if s.cache == nil || s.cacheTTL <= 0 || key == "" {
		return
	}

	raw, err := json.Marshal(statuses)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.log.Warn(ctx, "inventory list cache write failed")
	}
}

func toStatus(counter models.StockCounter) VariantStatus {
	buffers := map[string]int(counter.ChannelBuffers.Clone())
	return VariantStatus{
		VariantID:         counter.VariantID,
		SKU:               counter.SKU,
		ProductName:       counter.ProductName,
		OnHand:            counter.OnHand,
		Allocated:         counter.Allocated,
		SafetyStock:       counter.SafetyStock,
		LowStockThreshold: counter.LowStockThreshold,
		ChannelBuffers:    buffers,
		Available:         counter.Available(),
		IsLowStock:        counter.IsLowStock(),
	}
}
