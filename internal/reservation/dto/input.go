package dto

type ReserveInput struct {
	ProductID       string
	VariantID       *string
	LocationID      string
	Quantity        int64
	ReservedForType string // order | transfer | adjustment
	ReservedForID   string
}

// ReleaseInput selects the active reservations to consume. All matching
// active holds are released together.
type ReleaseInput struct {
	ProductID       string
	VariantID       *string
	LocationID      string
	ReservedForType string
	ReservedForID   string
}
