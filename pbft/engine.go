// Package pbft implements a pipelined, batched Byzantine consensus engine.
// Client operations are accumulated into compressed batches, ordered through
// the classic three-phase exchange, and executed strictly in sequence order.
// Up to pipelineDepth instances run concurrently.
package pbft

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-bitfield"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/internal/circuitbreaker"
	internalclock "github.com/dicemesh/go-dicebft/internal/clock"
	"github.com/dicemesh/go-dicebft/merkle"
)

var log = logging.Logger("dicebft/pbft")

// Executor applies a committed batch of operations. Batches are delivered
// exactly once and strictly in sequence order.
type Executor interface {
	Execute(ctx context.Context, sequence uint64, ops []*Operation) error
}

// Broadcaster disseminates a signed message to all replicas, including the
// sender.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg *Message) error
}

// CertificateSink receives quorum certificates as they are built.
type CertificateSink interface {
	Put(ctx context.Context, qc *QuorumCertificate) error
}

type replicaState uint8

const (
	stateNormal replicaState = iota
	stateViewChange
)

const (
	batchCreatorInterval   = 10 * time.Millisecond
	timeoutMonitorInterval = 100 * time.Millisecond
	messageBufferSize      = 256
)

// Engine is a single replica of the pipelined consensus protocol.
type Engine struct {
	self     bft.PeerID
	signer   bft.Signer
	verifier bft.Verifier
	executor Executor
	opts     *options
	clk      clock.Clock

	// participants is sorted by PeerID and immutable after construction.
	// Bitfield signer indexes refer to positions in this slice.
	participants []bft.PeerID
	memberIndex  map[bft.PeerID]int

	sigCache *lru.Cache[merkle.Digest, struct{}]
	timeout  *TimeoutController

	// sinkBreaker stops hammering a failing certificate sink. Certificates
	// remain available in memory via QuorumCertificate regardless.
	sinkBreaker *circuitbreaker.CircuitBreaker

	messages    chan *Message
	batchSignal chan struct{}

	mu            sync.Mutex
	running       bool
	view          uint64
	state         replicaState
	stateSince    time.Time
	viewChanges   map[uint64]map[bft.PeerID]*Message
	pending       []*Operation
	pendingSince  time.Time
	nextSequence  uint64
	nextToExecute uint64
	instances     map[uint64]*consensusInstance
	certificates  map[uint64]*QuorumCertificate

	runGroup *errgroup.Group
	cancel   context.CancelFunc
}

// New creates a replica. The participant set is fixed for the lifetime of the
// engine and must include the replica's own identity. The clock is taken from
// ctx.
func New(ctx context.Context, self bft.PeerID, participants []bft.PeerID,
	signer bft.Signer, verifier bft.Verifier, executor Executor, o ...Option) (*Engine, error) {

	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	if len(participants) < 4 {
		return nil, fmt.Errorf("need at least 4 participants to tolerate a fault, got %d", len(participants))
	}

	sorted := make([]bft.PeerID, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	index := make(map[bft.PeerID]int, len(sorted))
	for i, id := range sorted {
		if _, ok := index[id]; ok {
			return nil, fmt.Errorf("duplicate participant %s", id)
		}
		index[id] = i
	}
	if _, ok := index[self]; !ok {
		return nil, fmt.Errorf("own identity %s is not in the participant set", self)
	}

	sigCache, err := lru.New[merkle.Digest, struct{}](opts.signatureCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating signature cache: %w", err)
	}

	e := &Engine{
		self:         self,
		signer:       signer,
		verifier:     verifier,
		executor:     executor,
		opts:         opts,
		clk:          internalclock.GetClock(ctx),
		participants: sorted,
		memberIndex:  index,
		sigCache:     sigCache,
		timeout: NewTimeoutController(opts.baseTimeout, opts.maxTimeoutMultiplier,
			opts.adaptationRate, opts.rttWindow),
		sinkBreaker:  circuitbreaker.New(5, 10*time.Second),
		messages:     make(chan *Message, messageBufferSize),
		batchSignal:  make(chan struct{}, 1),
		viewChanges:  make(map[uint64]map[bft.PeerID]*Message),
		instances:    make(map[uint64]*consensusInstance),
		certificates: make(map[uint64]*QuorumCertificate),
	}
	if e.opts.broadcaster == nil {
		e.opts.broadcaster = loopback{e}
	}
	return e, nil
}

// Participants returns the sorted replica set.
func (e *Engine) Participants() []bft.PeerID {
	out := make([]bft.PeerID, len(e.participants))
	copy(out, e.participants)
	return out
}

// Quorum returns the number of matching replicas required for agreement.
func (e *Engine) Quorum() int {
	return QuorumSize(len(e.participants))
}

// Primary returns the replica that leads the given view.
func (e *Engine) Primary(view uint64) bft.PeerID {
	return e.participants[view%uint64(len(e.participants))]
}

// Timeout exposes the adaptive timeout controller.
func (e *Engine) Timeout() *TimeoutController {
	return e.timeout
}

// Start launches the background tasks. The engine stops when ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.running = true
	e.stateSince = e.clk.Now()
	e.pendingSince = e.clk.Now()
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	e.runGroup, e.cancel = group, cancel

	group.Go(func() error { return e.runBatchCreator(ctx) })
	group.Go(func() error { return e.runMessageProcessor(ctx) })
	group.Go(func() error { return e.runTimeoutMonitor(ctx) })
	return nil
}

// Stop cancels the background tasks and waits for them to drain.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()
	return e.runGroup.Wait()
}

// SubmitOperation queues a client operation for batching. The operation's
// client signature is verified before it is accepted.
func (e *Engine) SubmitOperation(ctx context.Context, op *Operation) error {
	if err := e.verifier.Verify(op.Client, op.MarshalForSigning(), op.Signature); err != nil {
		metrics.operationsRejected.Add(ctx, 1)
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	if len(e.pending) >= e.opts.maxPendingOperations {
		metrics.operationsRejected.Add(ctx, 1)
		return ErrPendingQueueFull
	}
	if len(e.pending) == 0 {
		e.pendingSince = e.clk.Now()
	}
	e.pending = append(e.pending, op)
	metrics.operationsSubmitted.Add(ctx, 1)

	if len(e.pending) >= e.opts.batchSize {
		select {
		case e.batchSignal <- struct{}{}:
		default:
		}
	}
	return nil
}

// PendingOperations reports the current backlog size.
func (e *Engine) PendingOperations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// ReceiveMessage hands a message from the transport to the engine. It never
// blocks: when the inbound buffer is full the message is dropped with
// ErrMessageBufferFull. Broadcasters may deliver from inside the message
// processor goroutine, so a blocking enqueue here could wedge the processor
// on its own backlog; lost messages are recovered by retransmission and
// timeout-driven view changes.
func (e *Engine) ReceiveMessage(ctx context.Context, msg *Message) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case e.messages <- msg:
		return nil
	default:
		return ErrMessageBufferFull
	}
}

// View returns the current view number.
func (e *Engine) View() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// InViewChange reports whether the replica is between views.
func (e *Engine) InViewChange() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateViewChange
}

// NextToExecute returns the lowest sequence number that has not been
// executed yet.
func (e *Engine) NextToExecute() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextToExecute
}

// QuorumCertificate returns the certificate built when the given sequence
// reached commit quorum.
func (e *Engine) QuorumCertificate(sequence uint64) (*QuorumCertificate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	qc, ok := e.certificates[sequence]
	if !ok {
		return nil, ErrNoQuorumCertificate
	}
	return qc, nil
}

// loopback delivers broadcast messages straight back to the local engine.
type loopback struct{ e *Engine }

func (l loopback) Broadcast(ctx context.Context, msg *Message) error {
	err := l.e.ReceiveMessage(ctx, msg)
	if errors.Is(err, ErrMessageBufferFull) {
		log.Warnw("dropping self-delivery, message buffer full", "kind", msg.Kind)
		return nil
	}
	return err
}

func (e *Engine) runBatchCreator(ctx context.Context) error {
	ticker := e.clk.Ticker(batchCreatorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.batchSignal:
		}
		if err := e.maybeCutBatch(ctx); err != nil {
			log.Errorw("cutting batch", "err", err)
		}
	}
}

// maybeCutBatch cuts a batch when this replica leads the current view and
// the backlog is full enough or old enough.
func (e *Engine) maybeCutBatch(ctx context.Context) error {
	e.mu.Lock()
	if e.state != stateNormal || e.Primary(e.view) != e.self || len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	now := e.clk.Now()
	if len(e.pending) < e.opts.batchSize && now.Sub(e.pendingSince) < e.opts.maxBatchAge {
		e.mu.Unlock()
		return nil
	}
	if uint64(len(e.instances)) >= uint64(e.opts.pipelineDepth) {
		// Pipeline is saturated; leave the backlog for the next pass.
		e.mu.Unlock()
		return nil
	}

	n := len(e.pending)
	if n > e.opts.batchSize {
		n = e.opts.batchSize
	}
	ops := e.pending[:n:n]
	e.pending = append([]*Operation(nil), e.pending[n:]...)
	e.pendingSince = now
	sequence := e.nextSequence
	e.nextSequence++
	view := e.view
	e.mu.Unlock()

	batch, err := NewBatch(sequence, ops, e.opts.compression, now)
	if err != nil {
		return fmt.Errorf("building batch %d: %w", sequence, err)
	}
	metrics.batchesCut.Add(ctx, 1)
	metrics.batchSize.Record(ctx, int64(n))
	log.Debugw("cut batch", "sequence", sequence, "operations", n, "compressed_bytes", len(batch.Payload))

	return e.broadcast(ctx, &Message{
		Kind:      KindPrePrepare,
		View:      view,
		Sequence:  sequence,
		BatchHash: batch.Hash,
		Sender:    e.self,
		Batch:     batch,
	})
}

func (e *Engine) broadcast(ctx context.Context, msg *Message) error {
	sig, err := e.signer.Sign(msg.MarshalForSigning())
	if err != nil {
		return fmt.Errorf("signing %s message: %w", msg.Kind, err)
	}
	msg.Signature = sig
	return e.opts.broadcaster.Broadcast(ctx, msg)
}

func (e *Engine) runMessageProcessor(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued before shutting down.
			for {
				select {
				case msg := <-e.messages:
					e.handleMessage(context.Background(), msg)
				default:
					return nil
				}
			}
		case msg := <-e.messages:
			e.handleMessage(ctx, msg)
		}
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg *Message) {
	if err := e.processMessage(ctx, msg); err != nil {
		log.Debugw("dropping message", "kind", msg.Kind, "sender", msg.Sender,
			"view", msg.View, "sequence", msg.Sequence, "err", err)
	}
}

func (e *Engine) processMessage(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	// Membership is checked on every message, even when the signature is
	// served from the cache.
	if _, ok := e.memberIndex[msg.Sender]; !ok {
		return ErrNotParticipant
	}
	if err := e.verifySignature(ctx, msg); err != nil {
		return err
	}

	switch msg.Kind {
	case KindPrePrepare:
		return e.handlePrePrepare(ctx, msg)
	case KindPrepare, KindCommit:
		return e.handleVote(ctx, msg)
	case KindViewChange:
		return e.handleViewChange(ctx, msg)
	case KindNewView, KindCheckpoint:
		// Accepted but unused: full new-view installation is not implemented.
		return nil
	default:
		return fmt.Errorf("unknown message kind %d", msg.Kind)
	}
}

func (e *Engine) verifySignature(ctx context.Context, msg *Message) error {
	payload := msg.MarshalForSigning()
	key := merkle.Hash(msg.Sender[:], payload, msg.Signature)
	if _, ok := e.sigCache.Get(key); ok {
		metrics.sigCacheHits.Add(ctx, 1)
		return nil
	}
	metrics.sigCacheMisses.Add(ctx, 1)
	if err := e.verifier.Verify(msg.Sender, payload, msg.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	e.sigCache.Add(key, struct{}{})
	return nil
}

func (e *Engine) handlePrePrepare(ctx context.Context, msg *Message) error {
	if err := msg.Batch.VerifyHash(); err != nil {
		return err
	}
	if msg.Batch.Hash != msg.BatchHash || msg.Batch.Sequence != msg.Sequence {
		return ErrBatchHashMismatch
	}

	e.mu.Lock()
	if e.state != stateNormal || msg.View != e.view {
		e.mu.Unlock()
		return ErrWrongView
	}
	if msg.Sender != e.Primary(msg.View) {
		e.mu.Unlock()
		return ErrNotPrimary
	}
	if msg.Sequence < e.nextToExecute {
		e.mu.Unlock()
		return ErrSequenceOutOfWindow
	}
	if existing, ok := e.instances[msg.Sequence]; ok {
		e.mu.Unlock()
		if existing.batch.Hash != msg.BatchHash {
			log.Warnw("conflicting pre-prepare from primary", "sequence", msg.Sequence,
				"have", existing.batch.Hash, "got", msg.BatchHash)
		}
		return nil
	}
	if len(e.instances) >= e.opts.pipelineDepth {
		if !e.evictOldestLocked(ctx) {
			e.mu.Unlock()
			return ErrSequenceOutOfWindow
		}
	}
	// Keep leader sequence allocation ahead of replayed proposals.
	if msg.Sequence >= e.nextSequence {
		e.nextSequence = msg.Sequence + 1
	}
	e.instances[msg.Sequence] = newConsensusInstance(msg, e.clk.Now())
	view := e.view
	e.mu.Unlock()

	return e.broadcast(ctx, &Message{
		Kind:      KindPrepare,
		View:      view,
		Sequence:  msg.Sequence,
		BatchHash: msg.BatchHash,
		Sender:    e.self,
	})
}

// evictOldestLocked drops the lowest-sequence instance that has not reached
// commit quorum, making room in the pipeline. Reports false when every
// instance is committed and awaiting execution.
func (e *Engine) evictOldestLocked(ctx context.Context) bool {
	victim := uint64(0)
	found := false
	for seq, ci := range e.instances {
		if ci.phase >= phaseCommitted {
			continue
		}
		if !found || seq < victim {
			victim, found = seq, true
		}
	}
	if !found {
		return false
	}
	delete(e.instances, victim)
	metrics.instanceEvictions.Add(ctx, 1)
	log.Debugw("evicted in-flight instance", "sequence", victim)
	return true
}

func (e *Engine) handleVote(ctx context.Context, msg *Message) error {
	e.mu.Lock()
	ci, ok := e.instances[msg.Sequence]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownSequence
	}
	if msg.View != ci.view || msg.BatchHash != ci.batch.Hash {
		e.mu.Unlock()
		return ErrBatchHashMismatch
	}

	quorum := e.Quorum()
	switch msg.Kind {
	case KindPrepare:
		if !ci.addPrepare(msg, quorum) {
			e.mu.Unlock()
			return nil
		}
		ci.phase = phasePrepared
		view := ci.view
		e.mu.Unlock()
		return e.broadcast(ctx, &Message{
			Kind:      KindCommit,
			View:      view,
			Sequence:  msg.Sequence,
			BatchHash: msg.BatchHash,
			Sender:    e.self,
		})

	case KindCommit:
		if !ci.addCommit(msg, quorum) {
			e.mu.Unlock()
			return nil
		}
		return e.commitLocked(ctx, ci)
	}
	e.mu.Unlock()
	return nil
}

// commitLocked finishes the commit of an instance that just crossed quorum.
// Called with the engine lock held; releases it.
func (e *Engine) commitLocked(ctx context.Context, ci *consensusInstance) error {
	ci.phase = phaseCommitted
	qc, err := e.buildCertificateLocked(ci)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("building certificate for sequence %d: %w", ci.sequence, err)
	}
	ci.qc = qc
	e.certificates[ci.sequence] = qc

	elapsed := e.clk.Now().Sub(ci.startedAt)
	metrics.commits.Add(ctx, 1)
	metrics.commitLatency.Record(ctx, elapsed.Seconds())
	e.timeout.OnSuccess(elapsed)

	executable := e.collectExecutableLocked()
	e.mu.Unlock()

	log.Debugw("committed", "sequence", ci.sequence, "view", ci.view, "elapsed", elapsed)

	if e.opts.certificates != nil {
		err := e.sinkBreaker.Run(func() error {
			return e.opts.certificates.Put(ctx, qc)
		})
		if err != nil {
			log.Errorw("storing quorum certificate", "sequence", ci.sequence, "err", err)
		}
	}
	return e.execute(ctx, executable)
}

// collectExecutableLocked advances the execution barrier over every
// contiguous committed instance and returns them in sequence order.
func (e *Engine) collectExecutableLocked() []*consensusInstance {
	var out []*consensusInstance
	for {
		ci, ok := e.instances[e.nextToExecute]
		if !ok || ci.phase != phaseCommitted {
			return out
		}
		ci.phase = phaseExecuted
		delete(e.instances, e.nextToExecute)
		e.nextToExecute++
		out = append(out, ci)
	}
}

func (e *Engine) execute(ctx context.Context, instances []*consensusInstance) error {
	for _, ci := range instances {
		ops, err := ci.batch.Operations()
		if err != nil {
			return fmt.Errorf("decoding batch %d for execution: %w", ci.sequence, err)
		}
		if e.executor != nil {
			if err := e.executor.Execute(ctx, ci.sequence, ops); err != nil {
				return fmt.Errorf("executing batch %d: %w", ci.sequence, err)
			}
		}
		metrics.executions.Add(ctx, 1)
	}
	return nil
}

func (e *Engine) buildCertificateLocked(ci *consensusInstance) (*QuorumCertificate, error) {
	indices := make([]int, 0, len(ci.commits))
	for sender := range ci.commits {
		indices = append(indices, e.memberIndex[sender])
	}
	sort.Ints(indices)

	signers := bitfield.New()
	sigs := make([][]byte, 0, len(indices))
	for _, i := range indices {
		signers.Set(uint64(i))
		sigs = append(sigs, ci.commits[e.participants[i]].Signature)
	}
	return &QuorumCertificate{
		View:             ci.view,
		Sequence:         ci.sequence,
		BatchHash:        ci.batch.Hash,
		Signers:          signers,
		CommitSignatures: sigs,
	}, nil
}

func (e *Engine) runTimeoutMonitor(ctx context.Context) error {
	ticker := e.clk.Ticker(timeoutMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.checkTimeouts(ctx); err != nil {
				log.Errorw("checking timeouts", "err", err)
			}
		}
	}
}

func (e *Engine) checkTimeouts(ctx context.Context) error {
	now := e.clk.Now()

	e.mu.Lock()
	if e.state == stateViewChange {
		// Escalate when the view change itself stalls.
		if now.Sub(e.stateSince) < e.opts.viewChangeTimeout {
			e.mu.Unlock()
			return nil
		}
		return e.startViewChangeLocked(ctx, e.view+1)
	}

	limit := e.timeout.Current()
	for _, ci := range e.instances {
		if ci.phase < phaseCommitted && now.Sub(ci.startedAt) > limit {
			e.timeout.OnTimeout()
			return e.startViewChangeLocked(ctx, e.view+1)
		}
	}
	e.mu.Unlock()
	return nil
}

// startViewChangeLocked moves the replica into view change for the target
// view. Called with the engine lock held; releases it.
func (e *Engine) startViewChangeLocked(ctx context.Context, target uint64) error {
	e.state = stateViewChange
	e.view = target
	e.stateSince = e.clk.Now()
	e.mu.Unlock()

	metrics.viewChanges.Add(ctx, 1)
	log.Warnw("starting view change", "target_view", target)

	return e.broadcast(ctx, &Message{
		Kind:   KindViewChange,
		View:   target,
		Sender: e.self,
	})
}

func (e *Engine) handleViewChange(ctx context.Context, msg *Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.View < e.view {
		// Stale view change for a view we have already moved past. The view
		// only ever moves forward, so replayed votes for an older view must
		// never re-accumulate quorum.
		return nil
	}
	if msg.View == e.view && e.state == stateNormal {
		// Already operating in this view.
		return nil
	}
	votes, ok := e.viewChanges[msg.View]
	if !ok {
		votes = make(map[bft.PeerID]*Message)
		e.viewChanges[msg.View] = votes
	}
	if _, ok := votes[msg.Sender]; ok {
		return nil
	}
	votes[msg.Sender] = msg

	if len(votes) < e.Quorum() {
		return nil
	}
	// Quorum agrees to move: install the view. In-flight instances from the
	// old view are abandoned; their batches are re-proposed by the new
	// primary from its own backlog.
	for seq, ci := range e.instances {
		if ci.phase < phaseCommitted {
			delete(e.instances, seq)
		}
	}
	e.view = msg.View
	e.state = stateNormal
	e.stateSince = e.clk.Now()
	for v := range e.viewChanges {
		if v <= msg.View {
			delete(e.viewChanges, v)
		}
	}
	log.Infow("installed view", "view", msg.View)
	return nil
}
