package reservation

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
)

// Repository is the reservation manager's slice of the store. Stock level
// access mirrors the inventory repository because holds adjust
// reserved/available directly, without going through the mutation engine.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	GetLocation(ctx context.Context, locationID string) (*model.Location, error)

	GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error)
	UpsertStockLevel(ctx context.Context, lvl *model.StockLevel) error

	InsertReservation(ctx context.Context, res *model.StockReservation) error
	ListActiveForUpdate(ctx context.Context, f *dto.ReleaseInput) ([]model.StockReservation, error)
	ListExpiredForUpdate(ctx context.Context, now time.Time) ([]model.StockReservation, error)
	UpdateStatus(ctx context.Context, ids []string, status string) error
}
