package bft

import (
	"sync"
	"time"
)

// SlashingReason classifies the misbehavior evidenced by a slashing event.
type SlashingReason uint8

const (
	ReasonEquivocation SlashingReason = iota + 1
	ReasonInvalidProposal
	ReasonInvalidVote
	ReasonInactivity
)

func (r SlashingReason) String() string {
	switch r {
	case ReasonEquivocation:
		return "equivocation"
	case ReasonInvalidProposal:
		return "invalid-proposal"
	case ReasonInvalidVote:
		return "invalid-vote"
	case ReasonInactivity:
		return "inactivity"
	default:
		return "unknown"
	}
}

// SlashingEvent is the append-only record of one slashing decision.
type SlashingEvent struct {
	Node      PeerID
	Reason    SlashingReason
	Penalty   uint64
	Evidence  []byte
	Timestamp time.Time
}

// Detector tracks Byzantine behavior observed across rounds: equivocators,
// peers that submitted invalid signatures, and per-peer inactivity counts.
// The slashing log is append-only.
type Detector struct {
	mu             sync.Mutex
	equivocators   map[PeerID]struct{}
	invalidSigners map[PeerID]struct{}
	inactivity     map[PeerID]uint32
	events         []SlashingEvent
}

func NewDetector() *Detector {
	return &Detector{
		equivocators:   make(map[PeerID]struct{}),
		invalidSigners: make(map[PeerID]struct{}),
		inactivity:     make(map[PeerID]uint32),
	}
}

// MarkEquivocator flags a peer as having sent conflicting messages.
func (d *Detector) MarkEquivocator(peer PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.equivocators[peer] = struct{}{}
}

// MarkInvalidSigner flags a peer as having submitted an invalid signature.
func (d *Detector) MarkInvalidSigner(peer PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidSigners[peer] = struct{}{}
}

// MarkInactive increments and returns the missed-round count for a peer.
func (d *Detector) MarkInactive(peer PeerID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inactivity[peer]++
	return d.inactivity[peer]
}

// MarkActive resets the missed-round count for a peer.
func (d *Detector) MarkActive(peer PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inactivity, peer)
}

// IsByzantine reports whether the peer has been flagged for equivocation or
// invalid signatures.
func (d *Detector) IsByzantine(peer PeerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.equivocators[peer]; ok {
		return true
	}
	_, ok := d.invalidSigners[peer]
	return ok
}

// Record appends a slashing event to the log.
func (d *Detector) Record(event SlashingEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// Events returns a copy of the slashing log.
func (d *Detector) Events() []SlashingEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SlashingEvent(nil), d.events...)
}
