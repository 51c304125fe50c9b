package pbft

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const minTimeoutMultiplier = 0.1

// TimeoutController adapts the per-instance consensus timeout to observed
// conditions. The multiplier widens on timeouts and narrows on successful
// commits, bounded to [0.1, maxMultiplier]. Recent round-trip times are kept
// in a sliding window for a median estimate.
type TimeoutController struct {
	base          time.Duration
	maxMultiplier float64
	rate          float64

	// multiplier holds the current multiplier as float64 bits so that
	// Current can be read without taking the lock.
	multiplier atomic.Uint64

	mu     sync.Mutex
	rtts   []time.Duration
	window int
	next   int
	filled bool
}

// NewTimeoutController creates a controller with the given base timeout,
// multiplier ceiling, adaptation rate, and round-trip window size.
func NewTimeoutController(base time.Duration, maxMultiplier, rate float64, window int) *TimeoutController {
	c := &TimeoutController{
		base:          base,
		maxMultiplier: maxMultiplier,
		rate:          rate,
		rtts:          make([]time.Duration, window),
		window:        window,
	}
	c.multiplier.Store(math.Float64bits(1.0))
	return c
}

// Current returns the effective timeout: base scaled by the multiplier.
func (c *TimeoutController) Current() time.Duration {
	m := math.Float64frombits(c.multiplier.Load())
	return time.Duration(float64(c.base) * m)
}

// Multiplier returns the current multiplier.
func (c *TimeoutController) Multiplier() float64 {
	return math.Float64frombits(c.multiplier.Load())
}

// OnTimeout widens the timeout after a consensus instance expired.
func (c *TimeoutController) OnTimeout() {
	c.adapt(1 + c.rate)
}

// OnSuccess narrows the timeout after a commit and records its round-trip
// time in the window.
func (c *TimeoutController) OnSuccess(rtt time.Duration) {
	c.adapt(1 - c.rate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rtts[c.next] = rtt
	c.next++
	if c.next == c.window {
		c.next = 0
		c.filled = true
	}
}

func (c *TimeoutController) adapt(factor float64) {
	for {
		old := c.multiplier.Load()
		m := math.Float64frombits(old) * factor
		m = math.Min(m, c.maxMultiplier)
		m = math.Max(m, minTimeoutMultiplier)
		if c.multiplier.CompareAndSwap(old, math.Float64bits(m)) {
			return
		}
	}
}

// MedianRTT reports the median of the recorded round-trip times, or zero when
// none have been recorded.
func (c *TimeoutController) MedianRTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	if c.filled {
		n = c.window
	}
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, c.rtts[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[n/2]
}
