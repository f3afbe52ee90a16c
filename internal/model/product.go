package model

// Product is the slice of the product catalog the stock core needs:
// organization ownership for scope checks and the denormalized total-stock
// rollup the mutation engine maintains.
type Product struct {
	BaseModel
	OrganizationID string  `db:"organization_id"`
	SKU            string  `db:"sku"`
	Name           string  `db:"name"`
	TotalStock     int64   `db:"total_stock"` // sum of quantity_available across all stock levels
	TrackInventory bool    `db:"track_inventory"`
	IsActive       bool    `db:"is_active"`
	Barcode        *string `db:"barcode"`
}

// Location is a physical stock-holding site (store, warehouse) owned by one
// organization.
type Location struct {
	BaseModel
	OrganizationID string `db:"organization_id"`
	Name           string `db:"name"`
	IsActive       bool   `db:"is_active"`
}
