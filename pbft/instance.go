package pbft

import (
	"time"

	"github.com/dicemesh/go-dicebft/bft"
)

type instancePhase uint8

const (
	phasePrePrepared instancePhase = iota
	phasePrepared
	phaseCommitted
	phaseExecuted
)

func (p instancePhase) String() string {
	switch p {
	case phasePrePrepared:
		return "pre-prepared"
	case phasePrepared:
		return "prepared"
	case phaseCommitted:
		return "committed"
	case phaseExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// consensusInstance tracks one pipelined slot from pre-prepare to execution.
// Access is guarded by the engine mutex.
type consensusInstance struct {
	view     uint64
	sequence uint64
	batch    *OperationBatch
	phase    instancePhase

	prePrepare *Message
	prepares   map[bft.PeerID]*Message
	commits    map[bft.PeerID]*Message

	startedAt time.Time
	qc        *QuorumCertificate
}

func newConsensusInstance(msg *Message, now time.Time) *consensusInstance {
	return &consensusInstance{
		view:       msg.View,
		sequence:   msg.Sequence,
		batch:      msg.Batch,
		phase:      phasePrePrepared,
		prePrepare: msg,
		prepares:   make(map[bft.PeerID]*Message),
		commits:    make(map[bft.PeerID]*Message),
		startedAt:  now,
	}
}

// addPrepare records a prepare vote and reports whether this vote crossed the
// quorum threshold.
func (ci *consensusInstance) addPrepare(msg *Message, quorum int) bool {
	if _, ok := ci.prepares[msg.Sender]; ok {
		return false
	}
	ci.prepares[msg.Sender] = msg
	return len(ci.prepares) == quorum
}

// addCommit records a commit vote and reports whether this vote crossed the
// quorum threshold.
func (ci *consensusInstance) addCommit(msg *Message, quorum int) bool {
	if _, ok := ci.commits[msg.Sender]; ok {
		return false
	}
	ci.commits[msg.Sender] = msg
	return len(ci.commits) == quorum
}
