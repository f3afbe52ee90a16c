package dto

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// MutationResult is what the engine hands back after a committed mutation.
type MutationResult struct {
	StockLevel        *model.StockLevel
	Transaction       *model.InventoryTransaction
	PreviousAvailable int64
}

type TransactionFilters struct {
	OrganizationID string
	ProductID      string
	VariantID      *string
	Type           string
	ActorID        string
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	PageSize       int
}

type SummaryFilters struct {
	OrganizationID string
	ProductID      string
	VariantID      *string
	StartDate      *time.Time
	EndDate        *time.Time
}

// TransactionSummaryRow is one grouped total from the ledger.
type TransactionSummaryRow struct {
	Type        string `db:"type"`
	TotalChange int64  `db:"total_change"`
	Count       int64  `db:"count"`
}
