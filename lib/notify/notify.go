package notify

import "context"

type Kind string

const (
	PriceIncreased   Kind = "price_increased"
	PriceDecreased   Kind = "price_decreased"
	WentSoldOut      Kind = "went_sold_out"
	BackInStock      Kind = "back_in_stock"
	OperationalAlert Kind = "operational_alert"
)

// Event is the structured payload handed to a Sink, kind determines which
// fields are meaningful.
type Event struct {
	Kind Kind

	ItemName string
	Url      string
	// last known price before the change, 0 after a sold out period
	OldPrice float64
	NewPrice float64
	// NewPrice - OldPrice for the price change kinds
	Delta float64
	// percentage delta relative to OldPrice, only set when OldPrice
	// was nonzero
	Percent float64

	// human readable description for OperationalAlert
	Reason string
}

// Sink delivers a composed notification to a destination. Implementations
// must not retry, a failed delivery is counted by the caller and the next
// cycle tries again naturally.
type Sink interface {
	Notify(ctx context.Context, destination string, event Event) error
}
