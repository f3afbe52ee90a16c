package model

import "time"

// InventoryBatch is a dated, quantity-bounded lot of a product's stock.
// BatchNumber is unique per product. quantity_used never exceeds quantity.
type InventoryBatch struct {
	BaseModel
	OrganizationID    string     `db:"organization_id"`
	ProductID         string     `db:"product_id"`
	BatchNumber       string     `db:"batch_number"`
	Quantity          int64      `db:"quantity"`
	QuantityUsed      int64      `db:"quantity_used"`
	ManufacturingDate *time.Time `db:"manufacturing_date"`
	ExpirationDate    *time.Time `db:"expiration_date"`
	LocationID        string     `db:"location_id"`
}

// Remaining is the still-consumable portion of the lot.
func (b *InventoryBatch) Remaining() int64 {
	return b.Quantity - b.QuantityUsed
}

const (
	SerialStatusInStock  = "in_stock"
	SerialStatusSold     = "sold"
	SerialStatusReturned = "returned"
)

// SerialNumber tracks a unique unit, optionally pinned to a batch.
type SerialNumber struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	ProductID      string    `db:"product_id"`
	BatchID        *string   `db:"batch_id"`
	Serial         string    `db:"serial"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}
