package pbft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutWidensOnTimeoutAndNarrowsOnSuccess(t *testing.T) {
	t.Parallel()

	c := NewTimeoutController(time.Second, 8, 0.1, 10)
	require.Equal(t, time.Second, c.Current())

	c.OnTimeout()
	widened := c.Current()
	assert.Greater(t, widened, time.Second)
	assert.InDelta(t, 1.1, c.Multiplier(), 1e-9)

	c.OnSuccess(50 * time.Millisecond)
	assert.Less(t, c.Current(), widened)
	assert.InDelta(t, 0.99, c.Multiplier(), 1e-9)
}

func TestTimeoutMultiplierIsBounded(t *testing.T) {
	t.Parallel()

	c := NewTimeoutController(time.Second, 4, 0.5, 10)
	for i := 0; i < 50; i++ {
		c.OnTimeout()
	}
	assert.InDelta(t, 4.0, c.Multiplier(), 1e-9)
	assert.Equal(t, 4*time.Second, c.Current())

	for i := 0; i < 50; i++ {
		c.OnSuccess(time.Millisecond)
	}
	assert.InDelta(t, 0.1, c.Multiplier(), 1e-9)
}

func TestTimeoutMedianRTT(t *testing.T) {
	t.Parallel()

	c := NewTimeoutController(time.Second, 8, 0.1, 5)
	require.Equal(t, time.Duration(0), c.MedianRTT())

	for _, rtt := range []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		20 * time.Millisecond,
	} {
		c.OnSuccess(rtt)
	}
	require.Equal(t, 20*time.Millisecond, c.MedianRTT())
}

func TestTimeoutRTTWindowSlides(t *testing.T) {
	t.Parallel()

	c := NewTimeoutController(time.Second, 8, 0.1, 3)
	for i := 1; i <= 3; i++ {
		c.OnSuccess(time.Duration(i) * time.Millisecond)
	}
	require.Equal(t, 2*time.Millisecond, c.MedianRTT())

	// Three more samples displace the original window entirely.
	for i := 0; i < 3; i++ {
		c.OnSuccess(100 * time.Millisecond)
	}
	require.Equal(t, 100*time.Millisecond, c.MedianRTT())
}
