package batch

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
)

// UseCase tracks expiring lots. Batches never mutate stock levels themselves;
// every quantity effect is posted through the stock mutation engine so the
// ledger stays complete.
type UseCase interface {
	CreateBatch(ctx context.Context, caller scope.CallerScope, in *dto.CreateBatchInput) (*model.InventoryBatch, error)
	UpdateBatchQuantity(ctx context.Context, caller scope.CallerScope, batchID string, quantityUsed int64) (*model.InventoryBatch, error)
	// TransferBatch moves quantity to a new lot at the destination location
	// and returns the created destination batch.
	TransferBatch(ctx context.Context, caller scope.CallerScope, batchID, toLocationID string, quantity int64) (*model.InventoryBatch, error)
	DeleteBatch(ctx context.Context, caller scope.CallerScope, batchID string) error

	// AddSerialNumbers attaches per-unit serials to a lot. A lot can never
	// carry more serials than its quantity.
	AddSerialNumbers(ctx context.Context, caller scope.CallerScope, batchID string, serials []string) ([]model.SerialNumber, error)

	GetExpiringBatches(ctx context.Context, caller scope.CallerScope, daysAhead int) ([]model.InventoryBatch, error)
	GetExpiredBatches(ctx context.Context, caller scope.CallerScope) ([]model.InventoryBatch, error)
}
