package blssig

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/sign"

	"github.com/dicemesh/go-dicebft/bft"
)

// Aggregate combines signatures from the given peers into a single compact
// signature. The peers must all be registered and the slices must line up
// element for element.
func (d *Directory) Aggregate(signers []bft.PeerID, signatures [][]byte) ([]byte, error) {
	if len(signers) != len(signatures) {
		return nil, fmt.Errorf("lengths of signers and sigs does not match %d != %d",
			len(signers), len(signatures))
	}

	mask, err := d.signersToMask(signers)
	if err != nil {
		return nil, fmt.Errorf("converting signers to mask: %w", err)
	}

	aggSigPoint, err := d.scheme.AggregateSignatures(signatures, mask)
	if err != nil {
		return nil, fmt.Errorf("computing aggregate signature: %w", err)
	}
	aggSig, err := aggSigPoint.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling signature data: %w", err)
	}

	return aggSig, nil
}

// VerifyAggregate checks an aggregate signature over msg against the set of
// signing peers.
func (d *Directory) VerifyAggregate(msg []byte, signature []byte, signers []bft.PeerID) error {
	mask, err := d.signersToMask(signers)
	if err != nil {
		return fmt.Errorf("converting signers to mask: %w", err)
	}

	aggPubKey, err := d.scheme.AggregatePublicKeys(mask)
	if err != nil {
		return fmt.Errorf("aggregating public keys: %w", err)
	}

	return d.scheme.Verify(aggPubKey, msg, signature)
}

func (d *Directory) signersToMask(signers []bft.PeerID) (*sign.Mask, error) {
	points := make([]kyber.Point, 0, len(signers))
	for i, id := range signers {
		point, err := d.point(id)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
		points = append(points, point.Clone())
	}

	mask, err := sign.NewMask(d.suite, points, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key mask: %w", err)
	}
	for i := range points {
		if err := mask.SetBit(i, true); err != nil {
			return nil, fmt.Errorf("setting mask bit %d: %w", i, err)
		}
	}
	return mask, nil
}
