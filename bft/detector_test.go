package bft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorMarksAreSticky(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	require.False(t, d.IsByzantine(peer(1)))

	d.MarkEquivocator(peer(1))
	require.True(t, d.IsByzantine(peer(1)))
	require.False(t, d.IsByzantine(peer(2)))

	d.MarkInvalidSigner(peer(2))
	require.True(t, d.IsByzantine(peer(2)))
}

func TestDetectorInactivityStrikes(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	require.Equal(t, uint32(1), d.MarkInactive(peer(3)))
	require.Equal(t, uint32(2), d.MarkInactive(peer(3)))

	// Activity resets the strike counter. Inactivity alone never flags a
	// peer as Byzantine; that decision belongs to the caller's policy.
	d.MarkActive(peer(3))
	require.Equal(t, uint32(1), d.MarkInactive(peer(3)))
	require.False(t, d.IsByzantine(peer(3)))
}

func TestDetectorEventLogIsAppendOnlyCopy(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	d.Record(SlashingEvent{
		Node:      peer(1),
		Reason:    ReasonEquivocation,
		Penalty:   100,
		Evidence:  []byte("evidence"),
		Timestamp: time.Unix(1, 0),
	})
	d.Record(SlashingEvent{
		Node:      peer(2),
		Reason:    ReasonInvalidVote,
		Penalty:   100,
		Timestamp: time.Unix(2, 0),
	})

	events := d.Events()
	require.Len(t, events, 2)
	assert.Equal(t, peer(1), events[0].Node)
	assert.Equal(t, peer(2), events[1].Node)

	// Mutating the returned slice must not affect the log.
	events[0].Node = peer(9)
	require.Equal(t, peer(1), d.Events()[0].Node)
}

func TestSlashingReasonStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "equivocation", ReasonEquivocation.String())
	assert.Equal(t, "invalid-proposal", ReasonInvalidProposal.String())
	assert.Equal(t, "invalid-vote", ReasonInvalidVote.String())
	assert.Equal(t, "inactivity", ReasonInactivity.String())
}
