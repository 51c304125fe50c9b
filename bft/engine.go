package bft

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dicemesh/go-dicebft/internal/caching"
	"github.com/dicemesh/go-dicebft/internal/clock"
	"github.com/dicemesh/go-dicebft/merkle"
	logging "github.com/ipfs/go-log/v2"
)

const (
	// seenRounds bounds the number of rounds with live de-duplication sets.
	seenRounds = 8
	// seenPerRound bounds the number of distinct messages remembered per round.
	seenPerRound = 1024
)

var log = logging.Logger("dicebft/bft")

// Engine drives one consensus round at a time through the
// Proposing -> Voting -> Committing -> Finalized state machine. All state is
// owned by the engine and mutated behind method calls under a single lock, so
// the quorum check is always atomic with the vote insertion that may trigger
// finalization.
//
// Equivocation and invalid signatures are not fatal: the offender is slashed
// and excluded, and the round continues with the remaining participants. A
// round that cannot reach quorum by its deadline has no automatic recovery
// here; the pbft package layers timeout-driven view changes on top.
type Engine struct {
	o        *options
	local    PeerID
	signer   Signer
	verifier Verifier
	clk      clock.Clock
	detector *Detector
	// seen de-duplicates delivered messages per round so that redeliveries
	// are dropped before the signature check.
	seen *caching.GroupedSet

	mu           sync.Mutex
	state        State
	currentRound uint64
	participants map[PeerID]struct{}
	proposals    map[uint64][]*Proposal
	votes        map[uint64]map[PeerID]*Vote
	finalized    map[uint64]*FinalizedRound
}

// New creates an engine for the given local participant. The clock is taken
// from the context so tests can inject a mock.
func New(ctx context.Context, local PeerID, signer Signer, verifier Verifier, o ...Option) (*Engine, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		o:            opts,
		local:        local,
		signer:       signer,
		verifier:     verifier,
		clk:          clock.GetClock(ctx),
		detector:     NewDetector(),
		seen:         caching.NewGroupedSet(seenRounds, seenPerRound),
		state:        State{Kind: StateIdle},
		participants: make(map[PeerID]struct{}),
		proposals:    make(map[uint64][]*Proposal),
		votes:        make(map[uint64]map[PeerID]*Vote),
		finalized:    make(map[uint64]*FinalizedRound),
	}
	return e, nil
}

// AddParticipant adds a peer to the active participant set. Idempotent.
func (e *Engine) AddParticipant(peer PeerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.participants[peer] = struct{}{}
}

// Participants returns the size of the active participant set.
func (e *Engine) Participants() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.participants)
}

// StartRound advances the round counter and enters the proposing phase. It
// fails if fewer than the configured minimum of participants are active.
func (e *Engine) StartRound() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.participants) < e.o.minParticipants {
		return 0, fmt.Errorf("%w: %d < %d",
			ErrInsufficientParticipants, len(e.participants), e.o.minParticipants)
	}

	e.currentRound++
	// Old rounds no longer accept messages; drop their dedup sets and the
	// raw proposals and votes held for them. Finalized records stay, they
	// are the durable decision log behind VerifyRoundIntegrity.
	if e.currentRound > 1 {
		horizon := e.currentRound - 1
		e.seen.RemoveGroupsLessThan(horizon)
		for r := range e.proposals {
			if r < horizon {
				delete(e.proposals, r)
			}
		}
		for r := range e.votes {
			if r < horizon {
				delete(e.votes, r)
			}
		}
	}
	e.state = State{
		Kind:     StateProposing,
		Round:    e.currentRound,
		Deadline: e.clk.Now().Add(e.o.roundTimeout),
	}
	log.Debugw("round started", "round", e.currentRound, "participants", len(e.participants))
	return e.currentRound, nil
}

// SubmitProposal signs and stores a proposal from the local participant.
// Valid only during the proposing phase and before its deadline. Once the
// minimum number of proposals has accumulated the engine deterministically
// selects the earliest-timestamped one and transitions to voting.
func (e *Engine) SubmitProposal(payload ProposalPayload) (merkle.Digest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Kind != StateProposing {
		return merkle.ZeroDigest, ErrNotInProposingPhase
	}
	if e.clk.Now().After(e.state.Deadline) {
		return merkle.ZeroDigest, fmt.Errorf("proposing: %w", ErrDeadlinePassed)
	}

	proposal := &Proposal{
		Proposer:  e.local,
		Round:     e.state.Round,
		Payload:   payload,
		Timestamp: uint64(e.clk.Now().UnixMilli()),
	}
	sig, err := e.signer.Sign(proposal.MarshalForSigning())
	if err != nil {
		return merkle.ZeroDigest, fmt.Errorf("signing proposal: %w", err)
	}
	proposal.Signature = sig

	digest := proposal.Digest()
	if err := e.insertProposal(proposal, digest); err != nil {
		return merkle.ZeroDigest, err
	}
	return digest, nil
}

// ReceiveProposal validates and stores a proposal from another participant.
// A second, conflicting proposal from the same proposer in one round is
// equivocation: the proposer is slashed and the proposal rejected.
func (e *Engine) ReceiveProposal(proposal *Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[proposal.Proposer]; !ok {
		return fmt.Errorf("proposer %s: %w", proposal.Proposer, ErrNotParticipant)
	}
	if !e.seen.Add(proposal.Round, append(proposal.MarshalForSigning(), proposal.Signature...)) {
		// Exact redelivery, already fully validated.
		return nil
	}
	if err := e.verifier.Verify(proposal.Proposer, proposal.MarshalForSigning(), proposal.Signature); err != nil {
		e.detector.MarkInvalidSigner(proposal.Proposer)
		e.slash(proposal.Proposer, ReasonInvalidProposal, proposal.Signature)
		return fmt.Errorf("proposal from %s: %w", proposal.Proposer, ErrInvalidSignature)
	}
	return e.insertProposal(proposal, proposal.Digest())
}

// insertProposal stores the proposal, detecting equivocation, and triggers
// the transition to voting when enough proposals are present.
func (e *Engine) insertProposal(proposal *Proposal, digest merkle.Digest) error {
	for _, existing := range e.proposals[proposal.Round] {
		if existing.Proposer != proposal.Proposer {
			continue
		}
		if existing.Digest() == digest {
			// Redelivery of the same proposal is harmless.
			return nil
		}
		e.detector.MarkEquivocator(proposal.Proposer)
		existingDigest := existing.Digest()
		e.slash(proposal.Proposer, ReasonEquivocation, append(existingDigest[:], digest[:]...))
		return fmt.Errorf("proposer %s sent conflicting proposals for round %d: %w",
			proposal.Proposer, proposal.Round, ErrEquivocation)
	}

	e.proposals[proposal.Round] = append(e.proposals[proposal.Round], proposal)

	if e.state.Kind == StateProposing && e.state.Round == proposal.Round &&
		len(e.proposals[proposal.Round]) >= e.o.minParticipants {
		e.transitionToVoting(proposal.Round)
	}
	return nil
}

// transitionToVoting selects the proposal with the earliest timestamp,
// breaking ties by lowest proposer ID, and enters the voting phase on its
// digest.
func (e *Engine) transitionToVoting(round uint64) {
	var selected *Proposal
	for _, p := range e.proposals[round] {
		switch {
		case selected == nil,
			p.Timestamp < selected.Timestamp,
			p.Timestamp == selected.Timestamp && p.Proposer.Compare(selected.Proposer) < 0:
			selected = p
		}
	}
	if selected == nil {
		return
	}

	e.state = State{
		Kind:           StateVoting,
		Round:          round,
		ProposalDigest: selected.Digest(),
		Deadline:       e.clk.Now().Add(e.o.roundTimeout),
	}
	log.Debugw("entered voting phase", "round", round,
		"proposal", selected.Digest(), "proposer", selected.Proposer)
}

// SubmitVote signs and casts the local participant's vote for the selected
// proposal digest. Valid only during the voting phase, for the expected
// digest, before the deadline.
func (e *Engine) SubmitVote(digest merkle.Digest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Kind != StateVoting {
		return ErrNotInVotingPhase
	}
	if e.clk.Now().After(e.state.Deadline) {
		return fmt.Errorf("voting: %w", ErrDeadlinePassed)
	}
	if digest != e.state.ProposalDigest {
		return ErrWrongProposal
	}

	vote := &Vote{
		Voter:          e.local,
		Round:          e.state.Round,
		ProposalDigest: digest,
		Timestamp:      uint64(e.clk.Now().UnixMilli()),
	}
	sig, err := e.signer.Sign(vote.MarshalForSigning())
	if err != nil {
		return fmt.Errorf("signing vote: %w", err)
	}
	vote.Signature = sig
	return e.insertVote(vote)
}

// ReceiveVote validates and stores a vote from another participant. A second
// vote from the same voter in one round is equivocation.
func (e *Engine) ReceiveVote(vote *Vote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[vote.Voter]; !ok {
		return fmt.Errorf("voter %s: %w", vote.Voter, ErrNotParticipant)
	}
	if !e.seen.Add(vote.Round, append(vote.MarshalForSigning(), vote.Signature...)) {
		return nil
	}
	if err := e.verifier.Verify(vote.Voter, vote.MarshalForSigning(), vote.Signature); err != nil {
		e.detector.MarkInvalidSigner(vote.Voter)
		e.slash(vote.Voter, ReasonInvalidVote, vote.Signature)
		return fmt.Errorf("vote from %s: %w", vote.Voter, ErrInvalidSignature)
	}
	return e.insertVote(vote)
}

// insertVote stores the vote, detecting double votes, and finalizes the round
// once quorum-many votes back the selected digest. The quorum check happens
// under the same lock as the insertion, so exactly one vote observes the
// crossing.
func (e *Engine) insertVote(vote *Vote) error {
	roundVotes, ok := e.votes[vote.Round]
	if !ok {
		roundVotes = make(map[PeerID]*Vote)
		e.votes[vote.Round] = roundVotes
	}

	if existing, voted := roundVotes[vote.Voter]; voted {
		if existing.ProposalDigest == vote.ProposalDigest {
			return nil
		}
		e.detector.MarkEquivocator(vote.Voter)
		e.slash(vote.Voter, ReasonEquivocation,
			append(existing.ProposalDigest[:], vote.ProposalDigest[:]...))
		return fmt.Errorf("voter %s double-voted in round %d: %w",
			vote.Voter, vote.Round, ErrEquivocation)
	}
	roundVotes[vote.Voter] = vote

	if e.state.Kind != StateVoting || e.state.Round != vote.Round ||
		vote.ProposalDigest != e.state.ProposalDigest {
		return nil
	}

	matching := 0
	for _, v := range roundVotes {
		if v.ProposalDigest == e.state.ProposalDigest {
			matching++
		}
	}
	if matching >= e.quorumLocked() {
		e.finalizeRound(vote.Round, e.state.ProposalDigest)
	}
	return nil
}

// Quorum returns the number of matching votes required to finalize a round:
// n - floor(n * byzantineThreshold) over the active participant set.
func (e *Engine) Quorum() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quorumLocked()
}

func (e *Engine) quorumLocked() int {
	total := len(e.participants)
	faulty := int(math.Floor(float64(total) * e.o.byzantineThreshold))
	return total - faulty
}

// finalizeRound records the round's decision. Decisions are write-once: a
// round already finalized is never overwritten.
func (e *Engine) finalizeRound(round uint64, decision merkle.Digest) {
	if _, done := e.finalized[round]; done {
		return
	}

	e.state = State{Kind: StateCommitting, Round: round, Decision: decision}

	var signatures [][]byte
	var voters []PeerID
	for _, v := range e.votes[round] {
		if v.ProposalDigest == decision {
			signatures = append(signatures, v.Signature)
			voters = append(voters, v.Voter)
		}
	}

	e.finalized[round] = &FinalizedRound{
		Round:      round,
		Decision:   decision,
		Signatures: signatures,
		Voters:     voters,
		Timestamp:  e.clk.Now(),
	}
	e.state = State{
		Kind:       StateFinalized,
		Round:      round,
		Decision:   decision,
		Signatures: signatures,
	}
	log.Infow("round finalized", "round", round, "decision", decision, "votes", len(signatures))
}

// slash logs a slashing event and removes the peer from the active set.
// Removal is immediate: the peer is excluded from all subsequent quorum
// counts. Re-admission is an external policy decision.
func (e *Engine) slash(peer PeerID, reason SlashingReason, evidence []byte) {
	e.detector.Record(SlashingEvent{
		Node:      peer,
		Reason:    reason,
		Penalty:   e.o.slashingPenalty,
		Evidence:  append([]byte(nil), evidence...),
		Timestamp: e.clk.Now(),
	})
	delete(e.participants, peer)
	log.Warnw("peer slashed", "peer", peer, "reason", reason)
}

// IsByzantine reports whether the peer has been flagged as Byzantine.
func (e *Engine) IsByzantine(peer PeerID) bool {
	return e.detector.IsByzantine(peer)
}

// SlashingEvents returns a copy of the slashing log.
func (e *Engine) SlashingEvents() []SlashingEvent {
	return e.detector.Events()
}

// State returns the engine's current consensus state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.Signatures = append([][]byte(nil), s.Signatures...)
	return s
}

// Finalized returns the record for a finalized round, if any.
func (e *Engine) Finalized(round uint64) (*FinalizedRound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.finalized[round]
	return f, ok
}

// VerifyRoundIntegrity recomputes whether a finalized round carries at least
// quorum-many signatures, all from peers not flagged as Byzantine. A false
// return indicates a potentially forged finalization.
func (e *Engine) VerifyRoundIntegrity(round uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.finalized[round]
	if !ok {
		return false, fmt.Errorf("round %d: %w", round, ErrRoundNotFinalized)
	}
	if len(record.Signatures) < e.quorumLocked() {
		return false, nil
	}
	for _, voter := range record.Voters {
		if e.detector.IsByzantine(voter) {
			return false, nil
		}
	}
	return true, nil
}
