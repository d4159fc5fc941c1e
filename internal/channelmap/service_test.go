package channelmap

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/pkg/db/models"
	pkgerrors "github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	dsn := "file:channelmap_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ChannelMapping{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateMappingAndResolve(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	variantID := uuid.New()

	mapping, err := svc.CreateMapping(ctx, CreateMappingInput{
		Channel:     "shopfront",
		ExternalSKU: "SF-RED-M",
		VariantID:   variantID,
	})
	if err != nil {
		t.Fatalf("create mapping: %v", err)
	}
	if mapping.ID == uuid.Nil {
		t.Fatal("expected mapping id to be assigned")
	}

	resolved, err := svc.Resolve(ctx, "shopfront", "SF-RED-M")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.VariantID != variantID {
		t.Fatalf("expected variant %s, got %s", variantID, resolved.VariantID)
	}
}

func TestCreateMappingDuplicate(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	input := CreateMappingInput{
		Channel:     "shopfront",
		ExternalSKU: "SF-RED-M",
		VariantID:   uuid.New(),
	}
	if _, err := svc.CreateMapping(ctx, input); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	// Same pair pointing at a different variant must be rejected, not remapped.
	input.VariantID = uuid.New()
	_, err := svc.CreateMapping(ctx, input)
	if err == nil {
		t.Fatal("expected duplicate mapping error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDuplicateMapping {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateMappingSameSKUOnOtherChannel(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	variantID := uuid.New()

	for _, channel := range []string{"shopfront", "bidbay"} {
		if _, err := svc.CreateMapping(ctx, CreateMappingInput{
			Channel:     channel,
			ExternalSKU: "RED-M",
			VariantID:   variantID,
		}); err != nil {
			t.Fatalf("create mapping on %s: %v", channel, err)
		}
	}

	mappings, err := svc.ListByVariant(ctx, variantID)
	if err != nil {
		t.Fatalf("list by variant: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(mappings))
	}
}

func TestResolveUnknownSKU(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	_, err := svc.Resolve(context.Background(), "shopfront", "UNKNOWN")
	if err == nil {
		t.Fatal("expected unresolved mapping error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnresolvedMapping {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteMapping(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	mapping, err := svc.CreateMapping(ctx, CreateMappingInput{
		Channel:     "bidbay",
		ExternalSKU: "BB-123",
		VariantID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	if err := svc.DeleteMapping(ctx, mapping.ID); err != nil {
		t.Fatalf("delete mapping: %v", err)
	}

	if err := svc.DeleteMapping(ctx, mapping.ID); err == nil {
		t.Fatal("expected not found on second delete")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}

	// The freed pair can be mapped again.
	if _, err := svc.CreateMapping(ctx, CreateMappingInput{
		Channel:     "bidbay",
		ExternalSKU: "BB-123",
		VariantID:   uuid.New(),
	}); err != nil {
		t.Fatalf("remap freed pair: %v", err)
	}
}
