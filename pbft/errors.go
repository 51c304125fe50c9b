package pbft

import "errors"

var (
	// ErrPendingQueueFull signals that the operation backlog has reached
	// maxPendingOperations and the caller should retry later.
	ErrPendingQueueFull = errors.New("pending operation queue is full")
	// ErrNotParticipant signals a message from a peer outside the replica set.
	ErrNotParticipant = errors.New("sender is not a participant")
	// ErrInvalidSignature signals a message whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid message signature")
	// ErrNotPrimary signals a pre-prepare from a replica that does not lead
	// the message's view.
	ErrNotPrimary = errors.New("pre-prepare sender is not the view primary")
	// ErrWrongView signals a message whose view does not match the replica's.
	ErrWrongView = errors.New("message view does not match current view")
	// ErrBatchHashMismatch signals a pre-prepare whose batch does not hash to
	// the claimed digest.
	ErrBatchHashMismatch = errors.New("batch hash mismatch")
	// ErrUnknownSequence signals a lookup of a sequence with no instance.
	ErrUnknownSequence = errors.New("unknown sequence number")
	// ErrSequenceOutOfWindow signals a pre-prepare beyond the pipeline window.
	ErrSequenceOutOfWindow = errors.New("sequence outside pipeline window")
	// ErrNotRunning signals use of an engine that has not been started or has
	// been stopped.
	ErrNotRunning = errors.New("engine is not running")
	// ErrMessageBufferFull signals that an inbound message was dropped because
	// the replica's buffer is full; the sender should retransmit.
	ErrMessageBufferFull = errors.New("inbound message buffer is full")
	// ErrNoQuorumCertificate signals that the sequence has not committed yet.
	ErrNoQuorumCertificate = errors.New("no quorum certificate for sequence")
)
