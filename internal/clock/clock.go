package clock

import (
	"context"

	"github.com/benbjohnson/clock"
)

type Clock = clock.Clock
type Mock = clock.Mock
type Timer = clock.Timer
type Ticker = clock.Ticker

type clockKeyType struct{}

var clockKey = clockKeyType{}

var realClock = clock.New()

// NewMock returns a mock clock whose current time on initialization is the
// Unix epoch.
func NewMock() *Mock {
	return clock.NewMock()
}

// WithMockClock embeds a mock clock in the context and returns it along with
// the mock for manual time control in tests.
func WithMockClock(ctx context.Context) (context.Context, *Mock) {
	clk := clock.NewMock()
	return context.WithValue(ctx, clockKey, (Clock)(clk)), clk
}

// GetClock either retrieves a mock clock from the context or returns a
// realtime clock.
func GetClock(ctx context.Context) Clock {
	clk := ctx.Value(clockKey)
	if clk == nil {
		return realClock
	}
	return clk.(Clock)
}
