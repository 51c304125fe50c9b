package merkle

import (
	"fmt"
	"sync"
)

// sparseKey addresses an internal node of a SparseTree by its depth and index
// within that depth.
type sparseKey struct {
	depth int
	index uint64
}

// SparseTree is a fixed-depth Merkle tree over an index space of 2^depth
// leaves where only non-empty leaves are materialized. Internal node values
// are computed on demand and cached; setting a leaf back to the empty value
// removes it from storage.
type SparseTree struct {
	mu sync.Mutex
	// empty is the digest of an unset leaf.
	empty  Digest
	leaves map[uint64]Digest
	cache  map[sparseKey]Digest
	depth  int
}

// NewSparseTree creates a sparse tree of the given depth, with capacity for
// 2^depth leaves. Depth must be between 1 and 63.
func NewSparseTree(depth int) (*SparseTree, error) {
	if depth < 1 || depth > 63 {
		return nil, fmt.Errorf("sparse tree depth must be in [1, 63], got %d", depth)
	}
	return &SparseTree{
		leaves: make(map[uint64]Digest),
		cache:  make(map[sparseKey]Digest),
		depth:  depth,
	}, nil
}

// Capacity returns the number of addressable leaves, 2^depth.
func (t *SparseTree) Capacity() uint64 {
	return uint64(1) << t.depth
}

// SetLeaf stores the digest for the given leaf index. Storing the empty value
// deletes the leaf. The cached nodes along the leaf's path are invalidated.
func (t *SparseTree) SetLeaf(index uint64, value Digest) error {
	if index >= t.Capacity() {
		return fmt.Errorf("%w: %d exceeds capacity %d", ErrIndexOutOfBounds, index, t.Capacity())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if value == t.empty {
		delete(t.leaves, index)
	} else {
		t.leaves[index] = value
	}
	t.invalidatePath(index)
	return nil
}

// Leaf returns the digest stored at the given index, or the empty digest if
// the leaf is unset.
func (t *SparseTree) Leaf(index uint64) (Digest, error) {
	if index >= t.Capacity() {
		return ZeroDigest, fmt.Errorf("%w: %d exceeds capacity %d", ErrIndexOutOfBounds, index, t.Capacity())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.leaves[index]; ok {
		return v, nil
	}
	return t.empty, nil
}

// Root computes the root digest of the tree.
func (t *SparseTree) Root() Digest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.computeNode(0, 0)
}

// computeNode computes the digest of the node at (depth, index), caching the
// result. Subtrees containing no leaves collapse to the empty digest without
// hashing.
func (t *SparseTree) computeNode(depth int, index uint64) Digest {
	key := sparseKey{depth: depth, index: index}
	if cached, ok := t.cache[key]; ok {
		return cached
	}

	var digest Digest
	if depth == t.depth {
		if v, ok := t.leaves[index]; ok {
			digest = v
		} else {
			digest = t.empty
		}
	} else {
		left := t.computeNode(depth+1, index*2)
		right := t.computeNode(depth+1, index*2+1)
		if left == t.empty && right == t.empty {
			digest = t.empty
		} else {
			digest = HashPair(left, right)
		}
	}

	t.cache[key] = digest
	return digest
}

// invalidatePath removes cached node values on the path from the given leaf
// to the root.
func (t *SparseTree) invalidatePath(index uint64) {
	for depth := t.depth; depth >= 0; depth-- {
		delete(t.cache, sparseKey{depth: depth, index: index})
		index /= 2
	}
}
