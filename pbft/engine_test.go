package pbft

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/internal/clock"
	"github.com/dicemesh/go-dicebft/merkle"
)

func testPeer(i int) bft.PeerID {
	var p bft.PeerID
	p[0] = byte(i) + 1
	return p
}

func testPeers(n int) []bft.PeerID {
	out := make([]bft.PeerID, n)
	for i := range out {
		out[i] = testPeer(i)
	}
	return out
}

func sigFor(p bft.PeerID, msg []byte) []byte {
	d := merkle.Hash([]byte("pbft-test-sig"), p[:], msg)
	return d[:]
}

type testSigner struct{ id bft.PeerID }

func (s testSigner) Sign(msg []byte) ([]byte, error) {
	return sigFor(s.id, msg), nil
}

type testVerifier struct{ verifications atomic.Int64 }

func (v *testVerifier) Verify(p bft.PeerID, msg, sig []byte) error {
	v.verifications.Add(1)
	expect := sigFor(p, msg)
	for i := range expect {
		if i >= len(sig) || sig[i] != expect[i] {
			return errors.New("signature mismatch")
		}
	}
	return nil
}

// recorder captures broadcast messages instead of delivering them.
type recorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *recorder) Broadcast(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) byKind(k MessageKind) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Message
	for _, m := range r.msgs {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// newReplica builds an unstarted replica with a mock clock and a recording
// broadcaster, for white-box message handling tests.
func newReplica(t *testing.T, self, n int, o ...Option) (*Engine, *clock.Mock, *testVerifier, *recorder) {
	t.Helper()
	ctx, clk := clock.WithMockClock(context.Background())
	rec := &recorder{}
	verifier := &testVerifier{}
	e, err := New(ctx, testPeer(self), testPeers(n),
		testSigner{testPeer(self)}, verifier, nil,
		append([]Option{WithBroadcaster(rec)}, o...)...)
	require.NoError(t, err)
	return e, clk, verifier, rec
}

func signMessage(msg *Message) *Message {
	msg.Signature = sigFor(msg.Sender, msg.MarshalForSigning())
	return msg
}

func makePrePrepare(t *testing.T, sender bft.PeerID, view, seq uint64, clk *clock.Mock) *Message {
	t.Helper()
	batch, err := NewBatch(seq, testOps(3), CompressionZstd, clk.Now())
	require.NoError(t, err)
	return signMessage(&Message{
		Kind:      KindPrePrepare,
		View:      view,
		Sequence:  seq,
		BatchHash: batch.Hash,
		Sender:    sender,
		Batch:     batch,
	})
}

func TestNewRequiresFourParticipantsIncludingSelf(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := New(ctx, testPeer(0), testPeers(3), testSigner{testPeer(0)}, &testVerifier{}, nil)
	require.Error(t, err)

	_, err = New(ctx, testPeer(9), testPeers(4), testSigner{testPeer(9)}, &testVerifier{}, nil)
	require.Error(t, err)
}

func TestPrimaryRotatesWithView(t *testing.T) {
	t.Parallel()

	e, _, _, _ := newReplica(t, 0, 4)
	require.Equal(t, testPeer(0), e.Primary(0))
	require.Equal(t, testPeer(1), e.Primary(1))
	require.Equal(t, testPeer(0), e.Primary(4))
}

func TestPrePrepareAcceptedAndPrepareBroadcast(t *testing.T) {
	t.Parallel()

	e, clk, _, rec := newReplica(t, 1, 4)
	msg := makePrePrepare(t, testPeer(0), 0, 0, clk)
	require.NoError(t, e.processMessage(context.Background(), msg))

	prepares := rec.byKind(KindPrepare)
	require.Len(t, prepares, 1)
	assert.Equal(t, msg.BatchHash, prepares[0].BatchHash)
	assert.Equal(t, testPeer(1), prepares[0].Sender)
}

func TestPrePrepareFromNonPrimaryRejected(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 0, 4)
	msg := makePrePrepare(t, testPeer(2), 0, 0, clk)
	require.ErrorIs(t, e.processMessage(context.Background(), msg), ErrNotPrimary)
}

func TestNonParticipantMessageRejected(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 0, 4)
	msg := makePrePrepare(t, testPeer(9), 0, 0, clk)
	require.ErrorIs(t, e.processMessage(context.Background(), msg), ErrNotParticipant)
}

func TestTamperedBatchRejected(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 1, 4)
	msg := makePrePrepare(t, testPeer(0), 0, 0, clk)
	msg.Batch.Payload[0] ^= 0xff
	require.ErrorIs(t, e.processMessage(context.Background(), msg), ErrBatchHashMismatch)
}

func TestSignatureCacheSkipsReverification(t *testing.T) {
	t.Parallel()

	e, clk, verifier, _ := newReplica(t, 1, 4)
	msg := makePrePrepare(t, testPeer(0), 0, 0, clk)

	require.NoError(t, e.processMessage(context.Background(), msg))
	first := verifier.verifications.Load()
	// Redelivery: the signature comes from the cache, no new verification.
	require.NoError(t, e.processMessage(context.Background(), msg))
	require.Equal(t, first, verifier.verifications.Load())
}

func TestCommitQuorumBuildsCertificateOnce(t *testing.T) {
	t.Parallel()

	e, clk, _, rec := newReplica(t, 1, 4)
	ctx := context.Background()
	msg := makePrePrepare(t, testPeer(0), 0, 0, clk)
	require.NoError(t, e.processMessage(ctx, msg))

	// Prepare quorum (3 of 4) moves the instance to prepared and triggers a
	// commit broadcast.
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, e.processMessage(ctx, signMessage(&Message{
			Kind: KindPrepare, View: 0, Sequence: 0, BatchHash: msg.BatchHash, Sender: testPeer(i),
		})))
	}
	require.Len(t, rec.byKind(KindCommit), 1)

	for _, i := range []int{0, 1, 2} {
		require.NoError(t, e.processMessage(ctx, signMessage(&Message{
			Kind: KindCommit, View: 0, Sequence: 0, BatchHash: msg.BatchHash, Sender: testPeer(i),
		})))
	}

	qc, err := e.QuorumCertificate(0)
	require.NoError(t, err)
	require.NoError(t, qc.Validate(4))
	require.Equal(t, msg.BatchHash, qc.BatchHash)

	ids, err := qc.SignerIDs(e.Participants())
	require.NoError(t, err)
	require.Equal(t, []bft.PeerID{testPeer(0), testPeer(1), testPeer(2)}, ids)

	// A late commit must not grow or replace the certificate.
	require.NoError(t, e.processMessage(ctx, signMessage(&Message{
		Kind: KindCommit, View: 0, Sequence: 0, BatchHash: msg.BatchHash, Sender: testPeer(3),
	})))
	again, err := e.QuorumCertificate(0)
	require.NoError(t, err)
	require.Equal(t, qc, again)

	require.Equal(t, uint64(1), e.NextToExecute())

	_, err = e.QuorumCertificate(7)
	require.ErrorIs(t, err, ErrNoQuorumCertificate)
}

func TestExecutionWaitsForSequenceOrder(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 1, 4)
	ctx := context.Background()

	commit := func(seq uint64) {
		msg := makePrePrepare(t, testPeer(0), 0, seq, clk)
		require.NoError(t, e.processMessage(ctx, msg))
		for _, i := range []int{0, 2, 3} {
			require.NoError(t, e.processMessage(ctx, signMessage(&Message{
				Kind: KindPrepare, View: 0, Sequence: seq, BatchHash: msg.BatchHash, Sender: testPeer(i),
			})))
		}
		for _, i := range []int{0, 2, 3} {
			require.NoError(t, e.processMessage(ctx, signMessage(&Message{
				Kind: KindCommit, View: 0, Sequence: seq, BatchHash: msg.BatchHash, Sender: testPeer(i),
			})))
		}
	}

	// Sequence 1 commits before sequence 0: execution must hold.
	commit(1)
	require.Equal(t, uint64(0), e.NextToExecute())

	// Sequence 0 commits: both execute, in order.
	commit(0)
	require.Equal(t, uint64(2), e.NextToExecute())
}

func TestPipelineEvictsOldestUncommitted(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 1, 4, WithPipelineDepth(2))
	ctx := context.Background()

	require.NoError(t, e.processMessage(ctx, makePrePrepare(t, testPeer(0), 0, 0, clk)))
	require.NoError(t, e.processMessage(ctx, makePrePrepare(t, testPeer(0), 0, 1, clk)))

	// A third in-flight instance exceeds the depth: sequence 0 is evicted.
	require.NoError(t, e.processMessage(ctx, makePrePrepare(t, testPeer(0), 0, 2, clk)))

	e.mu.Lock()
	_, has0 := e.instances[0]
	_, has1 := e.instances[1]
	_, has2 := e.instances[2]
	e.mu.Unlock()
	assert.False(t, has0)
	assert.True(t, has1)
	assert.True(t, has2)
}

func TestViewChangeOnInstanceTimeout(t *testing.T) {
	t.Parallel()

	e, clk, _, rec := newReplica(t, 1, 4, WithBaseTimeout(500*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, e.processMessage(ctx, makePrePrepare(t, testPeer(0), 0, 0, clk)))

	// Within the timeout nothing happens.
	clk.Add(400 * time.Millisecond)
	require.NoError(t, e.checkTimeouts(ctx))
	require.False(t, e.InViewChange())

	clk.Add(200 * time.Millisecond)
	require.NoError(t, e.checkTimeouts(ctx))
	require.True(t, e.InViewChange())
	require.Equal(t, uint64(1), e.View())
	require.Len(t, rec.byKind(KindViewChange), 1)

	// The timeout multiplier widened.
	require.Greater(t, e.Timeout().Multiplier(), 1.0)

	// A quorum of view-change votes installs the new view.
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, e.processMessage(ctx, signMessage(&Message{
			Kind: KindViewChange, View: 1, Sender: testPeer(i),
		})))
	}
	require.False(t, e.InViewChange())
	require.Equal(t, uint64(1), e.View())

	// The new primary is replica 1.
	require.Equal(t, testPeer(1), e.Primary(e.View()))
}

func TestReplayedViewChangeVotesCannotRollViewBack(t *testing.T) {
	t.Parallel()

	e, clk, _, _ := newReplica(t, 1, 4, WithBaseTimeout(500*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, e.processMessage(ctx, makePrePrepare(t, testPeer(0), 0, 0, clk)))

	// Instance timeout moves the replica into view change targeting view 1,
	// and a stalled view change escalates to view 2.
	clk.Add(600 * time.Millisecond)
	require.NoError(t, e.checkTimeouts(ctx))
	require.Equal(t, uint64(1), e.View())
	clk.Add(3 * time.Second)
	require.NoError(t, e.checkTimeouts(ctx))
	require.True(t, e.InViewChange())
	require.Equal(t, uint64(2), e.View())

	// A quorum of replayed votes for the abandoned view 1 must not install
	// it: the view only moves forward.
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, e.processMessage(ctx, signMessage(&Message{
			Kind: KindViewChange, View: 1, Sender: testPeer(i),
		})))
	}
	require.True(t, e.InViewChange())
	require.Equal(t, uint64(2), e.View())

	// Votes for the current target still complete the view change.
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, e.processMessage(ctx, signMessage(&Message{
			Kind: KindViewChange, View: 2, Sender: testPeer(i),
		})))
	}
	require.False(t, e.InViewChange())
	require.Equal(t, uint64(2), e.View())
}

func TestSubmitOperationRejectsBadClientSignature(t *testing.T) {
	t.Parallel()

	e, _, _, _ := newReplica(t, 0, 4)
	op := testOps(1)[0]
	op.Signature = []byte("forged")
	require.ErrorIs(t, e.SubmitOperation(context.Background(), op), ErrInvalidSignature)
}

func signOp(op *Operation) *Operation {
	op.Signature = sigFor(op.Client, op.MarshalForSigning())
	return op
}

func clientOp(id uint64, client bft.PeerID, data []byte) *Operation {
	return signOp(&Operation{ID: id, Client: client, Data: data, Timestamp: int64(id)})
}

// bus is a synchronous broadcast fabric connecting a set of replicas.
type bus struct {
	mu      sync.Mutex
	engines []*Engine
}

func (b *bus) attach(e *Engine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engines = append(b.engines, e)
}

func (b *bus) Broadcast(ctx context.Context, msg *Message) error {
	b.mu.Lock()
	engines := append([]*Engine(nil), b.engines...)
	b.mu.Unlock()
	for _, e := range engines {
		if err := e.ReceiveMessage(ctx, msg); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	return nil
}

type recordingExecutor struct {
	mu       sync.Mutex
	sequence []uint64
	batches  [][]*Operation
}

func (x *recordingExecutor) Execute(_ context.Context, seq uint64, ops []*Operation) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.sequence = append(x.sequence, seq)
	x.batches = append(x.batches, ops)
	return nil
}

func (x *recordingExecutor) executed() []uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]uint64(nil), x.sequence...)
}

func TestFourReplicasCommitAndExecute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fabric := &bus{}
	participants := testPeers(4)

	engines := make([]*Engine, 4)
	executors := make([]*recordingExecutor, 4)
	for i := range engines {
		executors[i] = &recordingExecutor{}
		e, err := New(ctx, testPeer(i), participants,
			testSigner{testPeer(i)}, &testVerifier{}, executors[i],
			WithBroadcaster(fabric), WithBatchSize(2))
		require.NoError(t, err)
		engines[i] = e
		fabric.attach(e)
	}
	for _, e := range engines {
		require.NoError(t, e.Start(ctx))
	}
	defer func() {
		for _, e := range engines {
			require.NoError(t, e.Stop())
		}
	}()

	// Two operations fill a batch on the view-0 primary, replica 0.
	client := testPeer(2)
	require.NoError(t, engines[0].SubmitOperation(ctx, clientOp(1, client, []byte("roll-1"))))
	require.NoError(t, engines[0].SubmitOperation(ctx, clientOp(2, client, []byte("roll-2"))))

	require.Eventually(t, func() bool {
		for _, e := range engines {
			if e.NextToExecute() != 1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "all replicas must commit and execute the batch")

	for i, x := range executors {
		require.Equal(t, []uint64{0}, x.executed(), "replica %d", i)
		x.mu.Lock()
		require.Len(t, x.batches[0], 2)
		assert.Equal(t, uint64(1), x.batches[0][0].ID)
		assert.Equal(t, uint64(2), x.batches[0][1].ID)
		x.mu.Unlock()
	}

	for i, e := range engines {
		qc, err := e.QuorumCertificate(0)
		require.NoError(t, err, "replica %d", i)
		require.NoError(t, qc.Validate(4))
	}
}

func TestPendingQueueBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// Replica 3 is not the view-0 primary, so submitted operations stay
	// queued instead of being cut into batches.
	e, err := New(ctx, testPeer(3), testPeers(4),
		testSigner{testPeer(3)}, &testVerifier{}, nil,
		WithBroadcaster(&recorder{}), WithMaxPendingOperations(2))
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx))
	defer func() { require.NoError(t, e.Stop()) }()

	client := testPeer(0)
	require.NoError(t, e.SubmitOperation(ctx, clientOp(1, client, []byte("a"))))
	require.NoError(t, e.SubmitOperation(ctx, clientOp(2, client, []byte("b"))))
	require.ErrorIs(t, e.SubmitOperation(ctx, clientOp(3, client, []byte("c"))), ErrPendingQueueFull)
	require.Equal(t, 2, e.PendingOperations())
}

func TestSubmitBeforeStartFails(t *testing.T) {
	t.Parallel()

	e, _, _, _ := newReplica(t, 0, 4)
	op := clientOp(1, testPeer(0), []byte("x"))
	require.ErrorIs(t, e.SubmitOperation(context.Background(), op), ErrNotRunning)
	require.ErrorIs(t, e.ReceiveMessage(context.Background(), &Message{}), ErrNotRunning)
}

func TestReceiveMessageNeverBlocksOnFullBuffer(t *testing.T) {
	t.Parallel()

	// No processor goroutine drains the buffer here, so filling it must
	// surface a typed drop instead of blocking the caller.
	e, _, _, _ := newReplica(t, 1, 4)
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	ctx := context.Background()
	msg := signMessage(&Message{Kind: KindPrepare, Sender: testPeer(0)})
	for i := 0; i < messageBufferSize; i++ {
		require.NoError(t, e.ReceiveMessage(ctx, msg))
	}
	require.ErrorIs(t, e.ReceiveMessage(ctx, msg), ErrMessageBufferFull)
}
