package batch

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	GetLocation(ctx context.Context, locationID string) (*model.Location, error)

	GetBatch(ctx context.Context, batchID string) (*model.InventoryBatch, error)
	GetBatchForUpdate(ctx context.Context, batchID string) (*model.InventoryBatch, error)
	BatchNumberExists(ctx context.Context, productID, batchNumber string) (bool, error)
	InsertBatch(ctx context.Context, b *model.InventoryBatch) error
	UpdateBatch(ctx context.Context, b *model.InventoryBatch) error
	DeleteBatch(ctx context.Context, batchID string) error

	CountSerials(ctx context.Context, batchID string) (int, error)
	InsertSerials(ctx context.Context, serials []model.SerialNumber) error

	ListExpiring(ctx context.Context, organizationID string, from, to time.Time) ([]model.InventoryBatch, error)
	ListExpired(ctx context.Context, organizationID string, now time.Time) ([]model.InventoryBatch, error)
}
