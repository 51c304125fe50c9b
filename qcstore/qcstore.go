// Package qcstore persists quorum certificates so that auditors and bridges
// can recover the committed history after a restart.
package qcstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Kubuxu/go-broadcast"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/dicemesh/go-dicebft/pbft"
)

var ErrCertNotFound = errors.New("quorum certificate not found")

// Store is responsible for storing and relaying information about new quorum
// certificates.
type Store struct {
	writeLk sync.Mutex
	ds      datastore.Datastore
	busQCs  broadcast.Channel[*pbft.QuorumCertificate]
}

var _ pbft.CertificateSink = (*Store)(nil)

// NewStore creates a quorum certificate store.
// The passed Datastore has to be thread safe.
func NewStore(ctx context.Context, ds datastore.Datastore) (*Store, error) {
	s := &Store{
		ds: namespace.Wrap(ds, datastore.NewKey("/qcstore")),
	}
	latest, err := s.loadLatest(ctx)
	if err != nil {
		return nil, xerrors.Errorf("loading latest quorum certificate: %w", err)
	}
	if latest != nil {
		s.busQCs.Publish(latest)
	}

	return s, nil
}

func (s *Store) loadLatest(ctx context.Context) (*pbft.QuorumCertificate, error) {
	// This will optimize well on badger and leveldb.
	res, err := s.ds.Query(ctx, query.Query{
		Prefix: "/qcs",
		Orders: []query.Order{query.OrderByKeyDescending{}},
		Limit:  1,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to query for the latest quorum certificate: %w", err)
	}
	defer res.Close()
	val, ok := res.NextSync()
	if !ok {
		return nil, nil
	}
	var qc pbft.QuorumCertificate
	if err := qc.UnmarshalCBOR(bytes.NewReader(val.Value)); err != nil {
		return nil, xerrors.Errorf("unmarshalling latest quorum certificate: %w", err)
	}
	return &qc, nil
}

// Latest returns the newest available certificate.
func (s *Store) Latest() *pbft.QuorumCertificate {
	return s.busQCs.Last()
}

// Get returns the certificate for the given sequence number.
func (s *Store) Get(ctx context.Context, sequence uint64) (*pbft.QuorumCertificate, error) {
	b, err := s.ds.Get(ctx, s.keyForSequence(sequence))

	if errors.Is(err, datastore.ErrNotFound) {
		return nil, xerrors.Errorf("certificate at %d: %w", sequence, ErrCertNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("accessing certificate in datastore: %w", err)
	}

	var qc pbft.QuorumCertificate
	if err := qc.UnmarshalCBOR(bytes.NewReader(b)); err != nil {
		return nil, xerrors.Errorf("unmarshalling certificate: %w", err)
	}
	return &qc, nil
}

// GetRange returns certificates from start to end inclusive by sequence
// number in increasing order. Only this order of traversal is supported.
// If it encounters a missing certificate, it returns a wrapped
// ErrCertNotFound and the available certificates.
func (s *Store) GetRange(ctx context.Context, start uint64, end uint64) ([]pbft.QuorumCertificate, error) {
	if start > end {
		return nil, xerrors.Errorf("start is larger than end: %d > %d", start, end)
	}
	if end-start > uint64(math.MaxInt)-1 {
		return nil, xerrors.Errorf("range %d to %d is too large", start, end)
	}

	bQCs := make([][]byte, 0, end-start+1)

	for i := start; i <= end; i++ {
		b, err := s.ds.Get(ctx, s.keyForSequence(i))
		if errors.Is(err, datastore.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("accessing certificate at %d for range request: %w", i, err)
		}

		bQCs = append(bQCs, b)
	}

	qcs := make([]pbft.QuorumCertificate, len(bQCs))
	for j, bQC := range bQCs {
		err := qcs[j].UnmarshalCBOR(bytes.NewReader(bQC))
		if err != nil {
			return nil, xerrors.Errorf("unmarshalling a certificate at j=%d, sequence %d: %w", j, start+uint64(j), err)
		}
	}

	if len(qcs) < cap(bQCs) {
		return qcs, xerrors.Errorf("certificate at %d: %w", start+uint64(len(bQCs)), ErrCertNotFound)
	}
	return qcs, nil
}

func (_ *Store) keyForSequence(i uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/qcs/%016X", i))
}

// Put saves a certificate in the store and notifies listeners.
// It errors if adding a certificate would create a gap.
func (s *Store) Put(ctx context.Context, qc *pbft.QuorumCertificate) error {
	key := s.keyForSequence(qc.Sequence)

	exists, err := s.ds.Has(ctx, key)
	if err != nil {
		return xerrors.Errorf("checking existence of certificate: %w", err)
	}
	if exists {
		return nil
	}

	var buf bytes.Buffer
	if err := qc.MarshalCBOR(&buf); err != nil {
		return xerrors.Errorf("marshalling certificate for sequence %d: %w", qc.Sequence, err)
	}

	s.writeLk.Lock()
	defer s.writeLk.Unlock()

	if s.Latest() != nil && qc.Sequence > s.Latest().Sequence &&
		qc.Sequence != s.Latest().Sequence+1 {
		return xerrors.Errorf("attempted to add certificate at %d but the previous one is %d",
			qc.Sequence, s.Latest().Sequence)
	}

	if err := s.ds.Put(ctx, key, buf.Bytes()); err != nil {
		return xerrors.Errorf("putting the certificate: %w", err)
	}
	s.busQCs.Publish(qc) // Publish within the lock to ensure ordering

	return nil
}

// SubscribeForNewCerts is used to subscribe to the broadcast channel.
// If the passed channel is full at any point, it will be dropped from
// subscription and closed.
// To stop subscribing, either the closer function can be used or the channel
// can be abandoned.
// Passing a channel multiple times to the Subscribe function will result in a
// panic.
// The channel will receive new certificates sequentially.
func (s *Store) SubscribeForNewCerts(ch chan<- *pbft.QuorumCertificate) (last *pbft.QuorumCertificate, closer func()) {
	return s.busQCs.Subscribe(ch)
}
