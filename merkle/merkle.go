// Package merkle provides the hash-tree primitives used to anchor committed
// consensus state: plain digest helpers, a caching tree with incremental leaf
// updates, and a sparse variant for very large index spaces.
package merkle

import (
	"io"

	"golang.org/x/crypto/sha3"
)

// DigestLength is the length of a Digest in number of bytes.
const DigestLength = 32

// Digest is a 32-byte hash digest.
type Digest = [DigestLength]byte

var ZeroDigest Digest

// Domain separation markers so a leaf digest can never collide with an
// internal node digest.
var internalMarker = []byte{0}
var leafMarker = []byte{1}

// Hash returns the keccak256 hash of the given values concatenated.
func Hash(values ...[]byte) (out Digest) {
	hash := sha3.NewLegacyKeccak256()
	for _, value := range values {
		_, _ = hash.Write(value)
	}
	// Call `Read` instead of `Sum` to avoid some copying and allocations. Idea borrowed from
	// go-ethereum.
	_, _ = hash.(io.Reader).Read(out[:])
	return out
}

// LeafDigest hashes a raw value into a leaf digest.
func LeafDigest(value []byte) Digest {
	return Hash(leafMarker, value)
}

// HashPair combines two sibling digests into their parent digest.
func HashPair(left, right Digest) Digest {
	return Hash(internalMarker, left[:], right[:])
}

// VerifyProof recomputes the root from a leaf digest and its sibling path and
// compares it to the expected root. The index parity at each level decides
// whether the sibling hashes on the left or the right. The function is pure:
// it needs no access to the tree that produced the proof.
func VerifyProof(leaf Digest, proof []Digest, root Digest, index int) bool {
	if index < 0 || len(proof) >= 64 {
		return false
	}
	// The index must be addressable within the proof's depth.
	if uint64(index) > (uint64(1)<<len(proof))-1 {
		return false
	}

	current := leaf
	for _, sibling := range proof {
		if index%2 == 0 {
			current = HashPair(current, sibling)
		} else {
			current = HashPair(sibling, current)
		}
		index /= 2
	}
	return current == root
}
