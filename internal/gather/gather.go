// Package gather defines the contract shared by the market-data gatherers.
package gather

import (
	"context"
	"time"
)

// Gatherer is a batch process that pulls price data into the local store.
type Gatherer interface {
	// Name identifies the gatherer in logs.
	Name() string
	// Run performs the fetch. It returns once the run completes or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange bounds a bar fetch, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}
