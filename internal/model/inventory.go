package model

import "time"

// MovementType is the caller-facing mutation vocabulary. The ledger stores a
// slightly narrower canonical set, see LedgerType.
type MovementType string

const (
	MovementStockIn    MovementType = "stock_in"
	MovementStockOut   MovementType = "stock_out"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementDamage     MovementType = "damage"
	MovementExpiration MovementType = "expiration"
	MovementInitial    MovementType = "initial"
)

// TxTypeAdjustmentDamage is a ledger-only type; callers never send it.
const TxTypeAdjustmentDamage = "adjustment_damage"

func (m MovementType) Valid() bool {
	switch m {
	case MovementStockIn, MovementStockOut, MovementTransfer, MovementAdjustment,
		MovementSale, MovementReturn, MovementDamage, MovementExpiration, MovementInitial:
		return true
	}
	return false
}

// LedgerType maps the caller-facing type onto the canonical ledger vocabulary:
// initial is stored as stock_in, adjustment as adjustment_damage. Everything
// else passes through unchanged.
func (m MovementType) LedgerType() string {
	switch m {
	case MovementInitial:
		return string(MovementStockIn)
	case MovementAdjustment:
		return TxTypeAdjustmentDamage
	default:
		return string(m)
	}
}

// StockLevel is the current quantity snapshot for one
// (product, variant, location) key. Created lazily on first touch, never
// deleted. All quantities are clamped at zero by the mutation engine.
type StockLevel struct {
	ID                string    `db:"id"`
	OrganizationID    string    `db:"organization_id"`
	ProductID         string    `db:"product_id"`
	VariantID         *string   `db:"variant_id"`
	LocationID        string    `db:"location_id"`
	QuantityOnHand    int64     `db:"quantity_on_hand"`
	QuantityReserved  int64     `db:"quantity_reserved"`
	QuantityAvailable int64     `db:"quantity_available"`
	ReorderPoint      *int64    `db:"reorder_point"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// InventoryTransaction is one immutable ledger entry. Rows are only ever
// appended; the sole delete path is the age-based retention purge.
type InventoryTransaction struct {
	ID              string    `db:"id"`
	OrganizationID  string    `db:"organization_id"`
	ProductID       string    `db:"product_id"`
	VariantID       *string   `db:"variant_id"`
	LocationID      string    `db:"location_id"`
	Type            string    `db:"type"` // canonical ledger type
	QuantityChange  int64     `db:"quantity_change"`
	Reason          string    `db:"reason"`
	ActorID         *string   `db:"actor_id"`
	OrderItemRef    *string   `db:"order_item_ref"`
	TransactionDate time.Time `db:"transaction_date"`
	CreatedAt       time.Time `db:"created_at"`
}

// InventoryMovement is the optional physical from/to trace attached to a
// transaction when the mutation asks for one (transfers always do).
type InventoryMovement struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	TransactionID  string    `db:"transaction_id"`
	ProductID      string    `db:"product_id"`
	VariantID      *string   `db:"variant_id"`
	FromLocationID *string   `db:"from_location_id"`
	ToLocationID   string    `db:"to_location_id"`
	Quantity       int64     `db:"quantity"` // always positive
	MovementType   string    `db:"movement_type"`
	CreatedAt      time.Time `db:"created_at"`
}
