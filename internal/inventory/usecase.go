package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
)

// UseCase is the stock mutation engine plus the ledger query surface.
// MutateStock is the only write path into stock levels apart from the
// reservation manager's two bookkeeping operations.
type UseCase interface {
	MutateStock(ctx context.Context, caller scope.CallerScope, req *dto.MutationRequest) (*dto.MutationResult, error)

	GetStockLevels(ctx context.Context, caller scope.CallerScope, productID string, variantID *string) ([]model.StockLevel, error)
	CheckReorderPoints(ctx context.Context, caller scope.CallerScope, productID string) ([]model.StockLevel, error)

	GetTransactionHistory(ctx context.Context, caller scope.CallerScope, f *dto.TransactionFilters) ([]model.InventoryTransaction, int, error)
	GetTransactionSummary(ctx context.Context, caller scope.CallerScope, f *dto.SummaryFilters) ([]dto.TransactionSummaryRow, error)
	PurgeTransactions(ctx context.Context, caller scope.CallerScope, olderThan time.Duration) (int64, error)
}

// Locker is the distributed per-key lock held around a mutation
// (redis SET NX in production).
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) (bool, error)
}

// EventSink receives stock-changed notifications after commit. Implementations
// must never fail the mutation; delivery is best effort.
type EventSink interface {
	StockChanged(ctx context.Context, payload events.StockChangedPayload)
}
