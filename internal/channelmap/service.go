// Package channelmap owns the translation table between external marketplace
// identifiers and internal variant ids. Each (channel, external_sku) pair maps
// to exactly one variant; a variant may be listed on many channels.
package channelmap

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/pkg/db"
	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

// Service defines operations over the channel mapping table.
type Service interface {
	CreateMapping(ctx context.Context, input CreateMappingInput) (*models.ChannelMapping, error)
	Resolve(ctx context.Context, channel, externalSKU string) (*models.ChannelMapping, error)
	ListByChannel(ctx context.Context, channel string) ([]models.ChannelMapping, error)
	ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.ChannelMapping, error)
	DeleteMapping(ctx context.Context, id uuid.UUID) error
}

// CreateMappingInput captures the fields a new mapping requires.
type CreateMappingInput struct {
	Channel     string
	ExternalSKU string
	VariantID   uuid.UUID
}

type service struct {
	repo Repository
	log  *logger.Logger
}

// NewService wires a channel mapping service with the provided repository.
func NewService(repo Repository, log *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("channel mapping repository required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, log: log}, nil
}

func (s *service) CreateMapping(ctx context.Context, input CreateMappingInput) (*models.ChannelMapping, error) {
	channel := strings.TrimSpace(input.Channel)
	externalSKU := strings.TrimSpace(input.ExternalSKU)
	if channel == "" {
		return nil, errors.New(errors.CodeValidation, "channel is required")
	}
	if externalSKU == "" {
		return nil, errors.New(errors.CodeValidation, "external sku is required")
	}
	if input.VariantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}

	mapping := &models.ChannelMapping{
		Channel:     channel,
		ExternalSKU: externalSKU,
		VariantID:   input.VariantID,
	}
	if err := s.repo.Create(ctx, mapping); err != nil {
		if db.IsUniqueViolation(err, "idx_channel_external_sku") {
			existing, lookupErr := s.repo.FindByChannelSKU(ctx, channel, externalSKU)
			details := map[string]any{
				"channel":      channel,
				"external_sku": externalSKU,
			}
			if lookupErr == nil && existing != nil {
				details["mapped_variant_id"] = existing.VariantID
			}
			return nil, errors.New(errors.CodeDuplicateMapping, "mapping already exists").
				WithDetails(details)
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "create channel mapping")
	}

	s.log.Info(s.log.WithChannel(ctx, channel), "channel mapping created")
	return mapping, nil
}

// Resolve looks up the variant behind a (channel, external_sku) pair. A miss
// returns CodeUnresolvedMapping so import flows can report per line.
func (s *service) Resolve(ctx context.Context, channel, externalSKU string) (*models.ChannelMapping, error) {
	channel = strings.TrimSpace(channel)
	externalSKU = strings.TrimSpace(externalSKU)
	if channel == "" || externalSKU == "" {
		return nil, errors.New(errors.CodeValidation, "channel and external sku are required")
	}

	mapping, err := s.repo.FindByChannelSKU(ctx, channel, externalSKU)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "resolve channel mapping")
	}
	if mapping == nil {
		return nil, errors.New(errors.CodeUnresolvedMapping, "no mapping for channel sku").
			WithDetails(map[string]any{
				"channel":      channel,
				"external_sku": externalSKU,
			})
	}
	return mapping, nil
}

func (s *service) ListByChannel(ctx context.Context, channel string) ([]models.ChannelMapping, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New(errors.CodeValidation, "channel is required")
	}
	mappings, err := s.repo.ListByChannel(ctx, channel)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list channel mappings")
	}
	return mappings, nil
}

func (s *service) ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.ChannelMapping, error) {
	if variantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	mappings, err := s.repo.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list variant mappings")
	}
	return mappings, nil
}

func (s *service) DeleteMapping(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New(errors.CodeValidation, "mapping id is required")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "delete channel mapping")
	}
	if !deleted {
		return errors.New(errors.CodeNotFound, "channel mapping not found")
	}
	return nil
}
