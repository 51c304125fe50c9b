// Package bft implements the single-round Byzantine fault tolerant consensus
// engine used to agree on dice rolls and state transitions across a mesh of
// mutually distrusting peers. Participants propose, vote, and finalize a
// decision digest; misbehaving peers are slashed and excluded on detection.
package bft

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/dicemesh/go-dicebft/merkle"
)

// DomainSeparationTag prefixes every signed payload so signatures can never
// be replayed across protocols sharing the same keys.
const DomainSeparationTag = "DICEBFT"

// PeerID is the 32-byte identity of a mesh participant.
type PeerID [32]byte

func (p PeerID) String() string {
	return hex.EncodeToString(p[:8])
}

// Compare orders peer IDs lexicographically. Used as the deterministic
// tie-break when proposals share a timestamp.
func (p PeerID) Compare(other PeerID) int {
	return bytes.Compare(p[:], other[:])
}

// PayloadKind tags the closed set of proposal payload variants.
type PayloadKind uint8

const (
	PayloadDiceRoll PayloadKind = iota + 1
	PayloadStateTransition
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadDiceRoll:
		return "dice-roll"
	case PayloadStateTransition:
		return "state-transition"
	case PayloadRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ProposalPayload is the closed set of values a proposal may carry. The
// unexported marshal method keeps the set enumerable within this package.
type ProposalPayload interface {
	Kind() PayloadKind
	marshalForSigning(buf *bytes.Buffer)
}

// DiceRollPayload proposes the outcome of a dice roll.
type DiceRollPayload struct {
	Die1 uint8
	Die2 uint8
}

func (DiceRollPayload) Kind() PayloadKind { return PayloadDiceRoll }

func (p DiceRollPayload) marshalForSigning(buf *bytes.Buffer) {
	buf.WriteByte(byte(PayloadDiceRoll))
	buf.WriteByte(p.Die1)
	buf.WriteByte(p.Die2)
}

// StateTransitionPayload proposes moving the shared game state from one
// digest to another.
type StateTransitionPayload struct {
	From merkle.Digest
	To   merkle.Digest
}

func (StateTransitionPayload) Kind() PayloadKind { return PayloadStateTransition }

func (p StateTransitionPayload) marshalForSigning(buf *bytes.Buffer) {
	buf.WriteByte(byte(PayloadStateTransition))
	buf.Write(p.From[:])
	buf.Write(p.To[:])
}

// RawPayload carries opaque application bytes.
type RawPayload []byte

func (RawPayload) Kind() PayloadKind { return PayloadRaw }

func (p RawPayload) marshalForSigning(buf *bytes.Buffer) {
	buf.WriteByte(byte(PayloadRaw))
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(p)))
	buf.Write(length[:])
	buf.Write(p)
}

// Proposal is a signed, immutable candidate decision for a round. Its
// identity is the digest of its canonical signing bytes, deterministic over
// proposer, round, payload, and timestamp.
type Proposal struct {
	Proposer PeerID
	Round    uint64
	Payload  ProposalPayload
	// Timestamp is the proposer's clock in Unix milliseconds. Proposal
	// selection picks the earliest timestamp, so all honest nodes converge
	// without further coordination.
	Timestamp uint64
	Signature []byte
}

// MarshalForSigning returns the canonical byte representation covered by the
// proposal signature.
func (p *Proposal) MarshalForSigning() []byte {
	const separator = ":"
	var buf bytes.Buffer
	buf.WriteString(DomainSeparationTag)
	buf.WriteString(separator)
	buf.WriteString("PROPOSAL")
	buf.WriteString(separator)
	buf.Write(p.Proposer[:])
	_ = binary.Write(&buf, binary.BigEndian, p.Round)
	p.Payload.marshalForSigning(&buf)
	_ = binary.Write(&buf, binary.BigEndian, p.Timestamp)
	return buf.Bytes()
}

// Digest returns the content hash identifying this proposal.
func (p *Proposal) Digest() merkle.Digest {
	return merkle.Hash(p.MarshalForSigning())
}

// Vote is a signed endorsement of a proposal digest for a round. A
// participant must cast at most one vote per round.
type Vote struct {
	Voter          PeerID
	Round          uint64
	ProposalDigest merkle.Digest
	Timestamp      uint64
	Signature      []byte
}

// MarshalForSigning returns the canonical byte representation covered by the
// vote signature.
func (v *Vote) MarshalForSigning() []byte {
	const separator = ":"
	var buf bytes.Buffer
	buf.WriteString(DomainSeparationTag)
	buf.WriteString(separator)
	buf.WriteString("VOTE")
	buf.WriteString(separator)
	buf.Write(v.Voter[:])
	_ = binary.Write(&buf, binary.BigEndian, v.Round)
	buf.Write(v.ProposalDigest[:])
	_ = binary.Write(&buf, binary.BigEndian, v.Timestamp)
	return buf.Bytes()
}

// StateKind enumerates the phases of a consensus round.
type StateKind uint8

const (
	StateIdle StateKind = iota
	StateProposing
	StateVoting
	StateCommitting
	StateFinalized
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "IDLE"
	case StateProposing:
		return "PROPOSING"
	case StateVoting:
		return "VOTING"
	case StateCommitting:
		return "COMMITTING"
	case StateFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// State is the engine's current position in a round. Within a round the kind
// only advances; no backward transition occurs.
type State struct {
	Kind  StateKind
	Round uint64
	// Deadline bounds the Proposing and Voting phases.
	Deadline time.Time
	// ProposalDigest is the digest under vote while in StateVoting.
	ProposalDigest merkle.Digest
	// Decision is set from StateCommitting onward and never overwritten.
	Decision merkle.Digest
	// Signatures are the votes backing the decision once finalized.
	Signatures [][]byte
}

// FinalizedRound records the outcome of a finalized round: the decision
// digest and the votes that carried it past quorum.
type FinalizedRound struct {
	Round      uint64
	Decision   merkle.Digest
	Signatures [][]byte
	Voters     []PeerID
	Timestamp  time.Time
}
