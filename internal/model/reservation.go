package model

import "time"

const (
	ReservationStatusActive   = "active"
	ReservationStatusConsumed = "consumed"
	ReservationStatusExpired  = "expired"
)

const (
	ReservedForOrder      = "order"
	ReservedForTransfer   = "transfer"
	ReservedForAdjustment = "adjustment"
)

// StockReservation is a soft hold against available quantity. It is the sole
// audit record for the hold: reservations never write ledger entries, the
// eventual consumption (sale, transfer) does.
type StockReservation struct {
	ID              string    `db:"id"`
	OrganizationID  string    `db:"organization_id"`
	ProductID       string    `db:"product_id"`
	VariantID       *string   `db:"variant_id"`
	LocationID      string    `db:"location_id"`
	Quantity        int64     `db:"quantity"`
	ReservedForType string    `db:"reserved_for_type"`
	ReservedForID   string    `db:"reserved_for_id"`
	Status          string    `db:"status"`
	ExpiresAt       time.Time `db:"expires_at"`
	CreatedAt       time.Time `db:"created_at"`
}

func ValidReservedForType(t string) bool {
	switch t {
	case ReservedForOrder, ReservedForTransfer, ReservedForAdjustment:
		return true
	}
	return false
}
