package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// Repository is the transactional store behind the stock mutation engine.
// InTx hands the callback a repository bound to one database transaction;
// every write step of a mutation runs through that bound copy so the whole
// sequence commits or rolls back as a unit.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	// Scope resolution
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	GetLocation(ctx context.Context, locationID string) (*model.Location, error)

	// Stock levels
	GetStockLevel(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error)
	GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error)
	UpsertStockLevel(ctx context.Context, lvl *model.StockLevel) error
	ListStockLevels(ctx context.Context, productID string, variantID *string) ([]model.StockLevel, error)
	ListBelowReorderPoint(ctx context.Context, productID string) ([]model.StockLevel, error)

	// Ledger
	InsertTransaction(ctx context.Context, txn *model.InventoryTransaction) error
	ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.InventoryTransaction, int, error)
	SummarizeTransactions(ctx context.Context, f *dto.SummaryFilters) ([]dto.TransactionSummaryRow, error)
	DeleteTransactionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Physical trace
	InsertMovement(ctx context.Context, m *model.InventoryMovement) error

	// Product rollup
	SumAvailableByProduct(ctx context.Context, productID string) (int64, error)
	SetProductTotalStock(ctx context.Context, productID string, total int64) error
}
