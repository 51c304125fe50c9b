package blssig

import (
	"context"
	"fmt"
	"sync"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/sign/bdn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/internal/measurements"
)

var _ bft.Verifier = (*Directory)(nil)

var meter = otel.Meter("dicebft/blssig")

var metrics = struct {
	verifications metric.Int64Counter
}{
	verifications: measurements.Must(meter.Int64Counter("dicebft_blssig_verifications",
		metric.WithDescription("Number of single signature verifications."))),
}

// Directory resolves peer identities to BLS public keys and verifies
// signatures against them. Public keys are unmarshaled and sanity checked
// once, at registration.
type Directory struct {
	suite   pairing.Suite
	keysG2  kyber.Group
	scheme  *bdn.Scheme
	mu      sync.RWMutex
	keys    map[bft.PeerID]kyber.Point
	rawKeys map[bft.PeerID][]byte
}

// NewDirectory creates an empty key directory.
func NewDirectory() *Directory {
	suite := bls12381.NewBLS12381Suite()
	return &Directory{
		suite:   suite,
		keysG2:  suite.G2(),
		scheme:  bdn.NewSchemeOnG1(suite),
		keys:    make(map[bft.PeerID]kyber.Point),
		rawKeys: make(map[bft.PeerID][]byte),
	}
}

// Register adds a public key to the directory and returns the derived peer
// identity. The key is rejected if it does not decode to a valid, non-null
// G2 point.
func (d *Directory) Register(pubKey []byte) (bft.PeerID, error) {
	point := d.keysG2.Point()
	if err := point.UnmarshalBinary(pubKey); err != nil {
		return bft.PeerID{}, fmt.Errorf("unmarshalling public key: %w", err)
	}
	if point.Equal(d.keysG2.Point().Null()) {
		return bft.PeerID{}, fmt.Errorf("public key is a null point")
	}

	id := PeerIDFromPublicKey(pubKey)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[id] = point
	d.rawKeys[id] = append([]byte(nil), pubKey...)
	return id, nil
}

// PublicKey returns the registered key bytes for a peer.
func (d *Directory) PublicKey(id bft.PeerID) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	raw, ok := d.rawKeys[id]
	return raw, ok
}

func (d *Directory) point(id bft.PeerID) (kyber.Point, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	point, ok := d.keys[id]
	if !ok {
		return nil, fmt.Errorf("unknown peer %s", id)
	}
	return point, nil
}

// Verify checks a single signature from the given peer over msg.
func (d *Directory) Verify(id bft.PeerID, msg, sig []byte) error {
	metrics.verifications.Add(context.Background(), 1)
	point, err := d.point(id)
	if err != nil {
		return err
	}
	return bdn.Verify(d.suite, point, msg, sig)
}
