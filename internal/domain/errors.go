package domain

import (
	"errors"
	"fmt"
)

// Domain errors (no external dependencies). Matched with errors.Is at the
// calling layer to decide the response shape.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrScopeViolation       = errors.New("resource outside caller organization")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateBatchNumber = errors.New("batch number already exists for product")
	ErrInvalidDateRange     = errors.New("expiration date must be after manufacturing date")
	ErrDeleteBlocked        = errors.New("batch still has stock or serial numbers")
)

// StockError carries the offending key and quantities for insufficient-stock
// conflicts so callers can render an actionable message.
type StockError struct {
	ProductID  string
	VariantID  *string
	LocationID string
	Requested  int64
	Available  int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at location %s: requested %d, available %d",
		e.ProductID, e.LocationID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// ScopeError identifies which resource failed the organization ownership check.
type ScopeError struct {
	OrganizationID string
	ProductID      string
	LocationID     string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("organization %s does not own product %q / location %q",
		e.OrganizationID, e.ProductID, e.LocationID)
}

func (e *ScopeError) Unwrap() error { return ErrScopeViolation }
