package pbft

import (
	"fmt"

	"github.com/filecoin-project/go-bitfield"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/merkle"
)

// QuorumCertificate proves that a quorum of replicas committed the batch with
// BatchHash at (View, Sequence). Signers indexes into the sorted participant
// set; CommitSignatures line up with the set bits in ascending index order.
type QuorumCertificate struct {
	View             uint64
	Sequence         uint64
	BatchHash        merkle.Digest
	Signers          bitfield.BitField
	CommitSignatures [][]byte
}

// SignerIDs resolves the certificate's signer bitfield against the sorted
// participant set it was built from.
func (qc *QuorumCertificate) SignerIDs(participants []bft.PeerID) ([]bft.PeerID, error) {
	var ids []bft.PeerID
	if err := qc.Signers.ForEach(func(i uint64) error {
		if i >= uint64(len(participants)) {
			return fmt.Errorf("signer index %d out of range for %d participants", i, len(participants))
		}
		ids = append(ids, participants[i])
		return nil
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

// Validate performs stateless consistency checks against the given replica
// count and its quorum.
func (qc *QuorumCertificate) Validate(total int) error {
	count, err := qc.Signers.Count()
	if err != nil {
		return fmt.Errorf("counting signers: %w", err)
	}
	if count != uint64(len(qc.CommitSignatures)) {
		return fmt.Errorf("certificate has %d signers but %d signatures", count, len(qc.CommitSignatures))
	}
	if count < uint64(QuorumSize(total)) {
		return fmt.Errorf("certificate has %d signers, quorum is %d", count, QuorumSize(total))
	}
	return nil
}

// QuorumSize returns the number of matching replicas required for agreement
// among total replicas, tolerating up to floor((total-1)/3) faults.
func QuorumSize(total int) int {
	return (2*total + 2) / 3
}
