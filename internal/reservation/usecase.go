package reservation

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
)

// UseCase manages soft holds against available stock. Holds are deliberately
// off the ledger: the StockReservation row itself is the audit record, and the
// eventual consumption posts through the mutation engine.
type UseCase interface {
	Reserve(ctx context.Context, caller scope.CallerScope, in *dto.ReserveInput) (*model.StockReservation, error)
	// Release consumes every active hold matching the filter and returns the
	// total quantity given back to the available pool. No match is a no-op.
	Release(ctx context.Context, caller scope.CallerScope, in *dto.ReleaseInput) (int64, error)
	// ExpireStale sweeps holds past their expiry, restoring their quantity.
	ExpireStale(ctx context.Context) (int, error)
}
