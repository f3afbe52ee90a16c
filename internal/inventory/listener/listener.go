package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	resdto "github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
)

// OrderListener consumes order-lifecycle events and turns them into stock
// mutations: completed orders deduct stock (releasing any hold first),
// received purchases add it.
type OrderListener struct {
	consumer     *broker.KafkaConsumer
	inventoryUC  inventory.UseCase
	reservations reservation.UseCase
	logger       logger.ZapLogger
}

func NewOrderListener(consumer *broker.KafkaConsumer, invUC inventory.UseCase, resUC reservation.UseCase, log logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer:     consumer,
		inventoryUC:  invUC,
		reservations: resUC,
		logger:       log,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting order Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping order Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

const (
	eventOrderCompleted   = "OrderCompleted"
	eventPurchaseReceived = "PurchaseReceived"
)

type orderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   orderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type orderPayload struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	LocationID     string          `json:"location_id"`
	Items          []orderItemData `json:"items"`
}

type orderItemData struct {
	ItemID    string  `json:"item_id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Quantity  int64   `json:"quantity"`
}

func (l *OrderListener) processMessage(ctx context.Context, value []byte) {
	var event orderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case eventOrderCompleted:
		l.handleOrderCompleted(ctx, &event.Payload)
	case eventPurchaseReceived:
		l.handlePurchaseReceived(ctx, &event.Payload)
	}
}

func (l *OrderListener) handleOrderCompleted(ctx context.Context, order *orderPayload) {
	l.logger.Info("Processing OrderCompleted event", zap.String("order_id", order.ID))
	caller := scope.System(order.OrganizationID)

	for _, item := range order.Items {
		// Any hold taken at checkout time goes back to the pool first; the
		// sale mutation below is the ledger-visible consumption.
		if _, err := l.reservations.Release(ctx, caller, &resdto.ReleaseInput{
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			LocationID:      order.LocationID,
			ReservedForType: model.ReservedForOrder,
			ReservedForID:   order.ID,
		}); err != nil {
			l.logger.Error("Failed to release order reservation",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			continue
		}

		ref := orderItemRef(order.ID, item.ItemID)
		if _, err := l.inventoryUC.MutateStock(ctx, caller, &invdto.MutationRequest{
			ProductID:            item.ProductID,
			VariantID:            item.VariantID,
			LocationID:           order.LocationID,
			QuantityChange:       -item.Quantity,
			MovementType:         model.MovementSale,
			Reason:               "order sale",
			OrderItemRef:         &ref,
			ValidateAvailability: true,
		}); err != nil {
			l.logger.Error("Failed to deduct stock for order item",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			// No retry here; order service owns reconciliation.
		}
	}
}

func (l *OrderListener) handlePurchaseReceived(ctx context.Context, purchase *orderPayload) {
	l.logger.Info("Processing PurchaseReceived event", zap.String("purchase_id", purchase.ID))
	caller := scope.System(purchase.OrganizationID)

	for _, item := range purchase.Items {
		ref := orderItemRef(purchase.ID, item.ItemID)
		if _, err := l.inventoryUC.MutateStock(ctx, caller, &invdto.MutationRequest{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			LocationID:     purchase.LocationID,
			QuantityChange: item.Quantity,
			MovementType:   model.MovementStockIn,
			Reason:         "purchase received",
			OrderItemRef:   &ref,
		}); err != nil {
			l.logger.Error("Failed to receive stock for purchase item",
				zap.String("purchase_id", purchase.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}
}

func orderItemRef(orderID, itemID string) string {
	if itemID == "" {
		return orderID
	}
	return fmt.Sprintf("%s/%s", orderID, itemID)
}
