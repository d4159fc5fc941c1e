// Package outbox queues domain events in the same transaction as the state
// change that caused them. A separate publisher process drains the table to
// Pub/Sub, so consumers never observe an event for a write that rolled back.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/enums"
	"github.com/maplecart/inventory-backend/pkg/errors"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit. The service wraps Data in a
// versioned PayloadEnvelope before persisting.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	log  *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Emit persists the event inside the caller's transaction.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	row, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "queue outbox event")
	}

	ctx = s.log.WithFields(ctx, map[string]any{
		"event_id":       row.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
	})
	s.log.Info(ctx, "outbox event queued")
	return nil
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, error) {
	if event.Version == 0 {
		event.Version = 1
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, errors.Wrap(errors.CodeInternal, err, "marshal outbox payload")
	}

	eventID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, errors.Wrap(errors.CodeInternal, err, "marshal outbox envelope")
	}

	return models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, nil
}
