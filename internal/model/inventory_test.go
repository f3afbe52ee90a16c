package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovementTypeLedgerType(t *testing.T) {
	cases := []struct {
		in   MovementType
		want string
	}{
		{MovementStockIn, "stock_in"},
		{MovementStockOut, "stock_out"},
		{MovementTransfer, "transfer"},
		{MovementAdjustment, "adjustment_damage"},
		{MovementSale, "sale"},
		{MovementReturn, "return"},
		{MovementDamage, "damage"},
		{MovementExpiration, "expiration"},
		{MovementInitial, "stock_in"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.in.LedgerType(), "type %s", c.in)
	}
}

func TestMovementTypeValid(t *testing.T) {
	assert.True(t, MovementSale.Valid())
	assert.True(t, MovementInitial.Valid())
	assert.False(t, MovementType("adjustment_damage").Valid(), "ledger-only type is not a caller type")
	assert.False(t, MovementType("").Valid())
}

func TestBatchRemaining(t *testing.T) {
	b := &InventoryBatch{Quantity: 100, QuantityUsed: 30}
	assert.Equal(t, int64(70), b.Remaining())
}
