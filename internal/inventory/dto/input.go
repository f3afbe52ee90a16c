package dto

import "github.com/fekuna/omnipos-inventory-service/internal/model"

// MutationRequest is the single typed entry into the stock mutation engine.
// The sign of QuantityChange follows the movement type: receipts are positive,
// deductions negative.
type MutationRequest struct {
	ProductID      string
	VariantID      *string
	LocationID     string
	QuantityChange int64
	MovementType   model.MovementType
	Reason         string
	ActorID        *string
	OrderItemRef   *string

	// CreateMovementRecord also writes a physical from/to trace row.
	// ToLocationID defaults to LocationID when unset.
	CreateMovementRecord bool
	FromLocationID       *string
	ToLocationID         *string

	// ValidateAvailability rejects reductions that exceed the available
	// quantity instead of clamping at zero.
	ValidateAvailability bool
}
