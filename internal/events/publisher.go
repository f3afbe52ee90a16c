package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EventTypeStockChanged = "StockChanged"

type StockChangedEvent struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	Payload   StockChangedPayload `json:"payload"`
	Timestamp time.Time           `json:"timestamp"`
}

type StockChangedPayload struct {
	OrganizationID    string  `json:"organization_id"`
	ProductID         string  `json:"product_id"`
	VariantID         *string `json:"variant_id"`
	LocationID        string  `json:"location_id"`
	AvailableQuantity int64   `json:"available_quantity"`
	TransactionID     string  `json:"transaction_id"`
	MovementType      string  `json:"movement_type"`
	ActorID           *string `json:"actor_id"`
}

// Publisher emits stock-changed events after a mutation commits. Emission is
// best effort: a publish failure is logged and swallowed, never surfaced as a
// mutation failure.
type Publisher struct {
	producer *broker.KafkaProducer
	logger   logger.ZapLogger
}

func NewPublisher(producer *broker.KafkaProducer, log logger.ZapLogger) *Publisher {
	return &Publisher{producer: producer, logger: log}
}

func (p *Publisher) StockChanged(ctx context.Context, payload StockChangedPayload) {
	event := StockChangedEvent{
		EventID:   uuid.New().String(),
		EventType: EventTypeStockChanged,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal stock-changed event", zap.Error(err))
		return
	}

	if err := p.producer.WriteMessage(ctx, []byte(payload.ProductID), value); err != nil {
		p.logger.Error("Failed to publish stock-changed event",
			zap.String("product_id", payload.ProductID),
			zap.String("transaction_id", payload.TransactionID),
			zap.Error(err),
		)
	}
}
