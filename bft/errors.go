package bft

import "errors"

var (
	// ErrInsufficientParticipants signals that a round cannot start because
	// fewer than the configured minimum of participants are active.
	ErrInsufficientParticipants = errors.New("not enough active participants")
	// ErrNotParticipant signals a message from a peer outside the active set.
	ErrNotParticipant = errors.New("peer is not an active participant")
	// ErrInvalidSignature signals a message whose signature failed
	// verification. The sender is slashed.
	ErrInvalidSignature = errors.New("invalid message signature")
	// ErrEquivocation signals a second conflicting proposal or vote from the
	// same peer in one round. The sender is slashed.
	ErrEquivocation = errors.New("equivocation detected")
	// ErrDeadlinePassed signals an operation attempted after the phase
	// deadline.
	ErrDeadlinePassed = errors.New("phase deadline passed")
	// ErrNotInProposingPhase signals a proposal submitted outside the
	// proposing phase.
	ErrNotInProposingPhase = errors.New("not in proposing phase")
	// ErrNotInVotingPhase signals a vote submitted outside the voting phase.
	ErrNotInVotingPhase = errors.New("not in voting phase")
	// ErrWrongProposal signals a vote for a digest other than the one
	// selected for the round.
	ErrWrongProposal = errors.New("vote is not for the selected proposal")
	// ErrRoundNotFinalized signals an integrity check against a round with no
	// recorded finalization.
	ErrRoundNotFinalized = errors.New("round not finalized")
)
