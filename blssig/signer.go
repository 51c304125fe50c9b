// Package blssig provides a BLS12-381 implementation of the consensus
// signing interfaces, with keys on G2 and signatures on G1. It backs both
// the single-round and the pipelined engines.
package blssig

import (
	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign"

	// we use it only for signing, verification is rogue key safe
	"github.com/drand/kyber/sign/bls" //nolint:staticcheck

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/merkle"
)

var _ bft.Signer = (*Signer)(nil)

// Signer signs messages with a BLS private key.
type Signer struct {
	scheme  sign.AggregatableScheme
	pubKey  []byte
	privKey kyber.Scalar
}

// NewSigner wraps an existing private key.
func NewSigner(privKey kyber.Scalar) (*Signer, error) {
	suite := bls12381.NewBLS12381Suite()
	pubPoint := suite.G2().Point().Mul(privKey, nil)
	pub, err := pubPoint.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Signer{
		scheme:  bls.NewSchemeOnG1(suite),
		pubKey:  pub,
		privKey: privKey,
	}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	suite := bls12381.NewBLS12381Suite()
	privKey := suite.G2().Scalar().Pick(suite.RandomStream())
	return NewSigner(privKey)
}

func (s *Signer) Sign(msg []byte) ([]byte, error) {
	return s.scheme.Sign(s.privKey, msg)
}

// PublicKey returns the marshaled public key.
func (s *Signer) PublicKey() []byte {
	return append([]byte(nil), s.pubKey...)
}

// PeerID returns the mesh identity derived from the public key.
func (s *Signer) PeerID() bft.PeerID {
	return PeerIDFromPublicKey(s.pubKey)
}

// PeerIDFromPublicKey derives a peer identity as the digest of the marshaled
// public key.
func PeerIDFromPublicKey(pub []byte) bft.PeerID {
	return bft.PeerID(merkle.Hash(pub))
}
