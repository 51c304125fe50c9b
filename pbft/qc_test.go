package pbft

import (
	"bytes"
	"testing"

	"github.com/filecoin-project/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/merkle"
)

func TestQuorumSize(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		total  int
		quorum int
	}{
		{4, 3},
		{5, 4},
		{6, 4},
		{7, 5},
		{10, 7},
		{13, 9},
	} {
		require.Equal(t, tc.quorum, QuorumSize(tc.total), "for %d replicas", tc.total)
	}
}

func testQC(t *testing.T, signerIdx []uint64) *QuorumCertificate {
	t.Helper()
	signers := bitfield.New()
	sigs := make([][]byte, 0, len(signerIdx))
	for _, i := range signerIdx {
		signers.Set(i)
		sigs = append(sigs, []byte{byte(i)})
	}
	return &QuorumCertificate{
		View:             1,
		Sequence:         5,
		BatchHash:        merkle.Hash([]byte("batch")),
		Signers:          signers,
		CommitSignatures: sigs,
	}
}

func TestQuorumCertificateValidate(t *testing.T) {
	t.Parallel()

	qc := testQC(t, []uint64{0, 1, 2})
	require.NoError(t, qc.Validate(4))

	// Two signers is below the quorum of three.
	require.Error(t, testQC(t, []uint64{0, 1}).Validate(4))

	// Signer count and signature count must line up.
	qc = testQC(t, []uint64{0, 1, 2})
	qc.CommitSignatures = qc.CommitSignatures[:2]
	require.Error(t, qc.Validate(4))
}

func TestQuorumCertificateSignerIDs(t *testing.T) {
	t.Parallel()

	participants := make([]bft.PeerID, 4)
	for i := range participants {
		participants[i][0] = byte(i) + 1
	}

	qc := testQC(t, []uint64{0, 2, 3})
	ids, err := qc.SignerIDs(participants)
	require.NoError(t, err)
	require.Equal(t, []bft.PeerID{participants[0], participants[2], participants[3]}, ids)

	// An index beyond the participant set is rejected.
	_, err = testQC(t, []uint64{0, 1, 7}).SignerIDs(participants)
	require.Error(t, err)
}

func TestQuorumCertificateCBORRoundTrip(t *testing.T) {
	t.Parallel()

	qc := testQC(t, []uint64{0, 1, 3})
	var buf bytes.Buffer
	require.NoError(t, qc.MarshalCBOR(&buf))

	var decoded QuorumCertificate
	require.NoError(t, decoded.UnmarshalCBOR(&buf))
	require.Equal(t, qc.View, decoded.View)
	require.Equal(t, qc.Sequence, decoded.Sequence)
	require.Equal(t, qc.BatchHash, decoded.BatchHash)
	require.Equal(t, qc.CommitSignatures, decoded.CommitSignatures)

	got, err := decoded.Signers.All(8)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 3}, got)
}
