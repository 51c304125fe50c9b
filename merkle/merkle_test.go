package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(i int) Digest {
	return LeafDigest([]byte(fmt.Sprintf("leaf-%d", i)))
}

func leaves(n int) []Digest {
	out := make([]Digest, n)
	for i := range out {
		out[i] = leaf(i)
	}
	return out
}

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, Hash([]byte("a"), []byte("b")), Hash([]byte("a"), []byte("b")))
	require.NotEqual(t, Hash([]byte("a"), []byte("b")), Hash([]byte("b"), []byte("a")))
	require.NotEqual(t, Hash([]byte("ab")), Hash([]byte("a"), []byte("b")))
}

func TestLeafAndInternalDomainsDiffer(t *testing.T) {
	t.Parallel()

	// A leaf digest of the concatenated pair must not collide with the
	// internal hash of the pair.
	l, r := leaf(0), leaf(1)
	internal := HashPair(l, r)
	var concat []byte
	concat = append(concat, l[:]...)
	concat = append(concat, r[:]...)
	require.NotEqual(t, internal, LeafDigest(concat))
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 15, 16, 33} {
		n := n
		t.Run(fmt.Sprintf("Length/%d", n), func(t *testing.T) {
			t.Parallel()

			tree, err := NewCachedTree(leaves(n))
			require.NoError(t, err)
			root := tree.Root()

			for i := 0; i < n; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				assert.True(t, VerifyProof(leaf(i), proof, root, i), "proof invalid for index %d", i)

				// A proof must not verify for a different leaf or index.
				assert.False(t, VerifyProof(leaf(i+1), proof, root, i))
				if n > 1 {
					assert.False(t, VerifyProof(leaf(i), proof, root, (i+1)%n))
				}

				// Mutating any path element breaks verification.
				for j := range proof {
					proof[j][5]++
					assert.False(t, VerifyProof(leaf(i), proof, root, i))
					proof[j][5]--
				}

				// Truncated and extended paths are rejected.
				if len(proof) > 0 {
					assert.False(t, VerifyProof(leaf(i), proof[:len(proof)-1], root, i))
				}
				assert.False(t, VerifyProof(leaf(i), append(append([]Digest(nil), proof...), ZeroDigest), root, i))
			}
		})
	}
}

func TestProofAgainstWrongRootFails(t *testing.T) {
	t.Parallel()

	tree, err := NewCachedTree(leaves(8))
	require.NoError(t, err)
	proof, err := tree.GenerateProof(3)
	require.NoError(t, err)

	other, err := NewCachedTree(leaves(9))
	require.NoError(t, err)
	require.False(t, VerifyProof(leaf(3), proof, other.Root(), 3))
}
