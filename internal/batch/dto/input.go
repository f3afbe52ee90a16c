package dto

import "time"

type CreateBatchInput struct {
	ProductID         string
	LocationID        string
	BatchNumber       string
	Quantity          int64
	ManufacturingDate *time.Time
	ExpirationDate    *time.Time
}
