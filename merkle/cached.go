package merkle

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// ErrIndexOutOfBounds signals a leaf index beyond the bounds of the tree.
var ErrIndexOutOfBounds = errors.New("leaf index out of bounds")

// smallTreeRebuildThreshold is the leaf count below which a full rebuild is
// cheaper than recomputing the leaf-to-root path.
const smallTreeRebuildThreshold = 100

var defaultMaxCacheSize = 10_000

// Stats captures cache effectiveness counters for a CachedTree.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Updates      uint64
	FullRebuilds uint64
}

// node is an internal or leaf node of a CachedTree. Nodes are shared
// read-only once constructed; an update allocates replacement nodes along the
// changed path rather than mutating in place.
type node struct {
	hash   Digest
	left   *node
	right  *node
	height int
	leaf   bool
}

// LeafUpdate pairs a leaf index with its replacement digest for BatchUpdate.
type LeafUpdate struct {
	Index  int
	Digest Digest
}

// CachedTree is a leaf-indexed binary hash tree that memoizes internal nodes
// by content and caches generated proofs per leaf index. Odd levels duplicate
// their last node, so the tree is defined for any leaf count.
type CachedTree struct {
	mu     sync.Mutex
	leaves []Digest
	// levels[0] holds the leaf nodes, the last level holds the root.
	levels [][]*node

	// nodeCache is content-addressed: no two distinct inputs share a slot.
	nodeCache  map[Digest]*node
	nodeOrder  *list.List
	proofCache map[int][]Digest
	proofOrder *list.List

	stats        Stats
	maxCacheSize int
}

// CachedTreeOption configures a CachedTree.
type CachedTreeOption func(*CachedTree) error

// WithMaxCacheSize bounds the node cache. The proof cache is bounded to a
// tenth of the same value. Defaults to 10000 if unset.
func WithMaxCacheSize(size int) CachedTreeOption {
	return func(t *CachedTree) error {
		if size < 1 {
			return fmt.Errorf("max cache size must be at least 1, got %d", size)
		}
		t.maxCacheSize = size
		return nil
	}
}

// NewCachedTree builds a balanced tree bottom-up from the given leaf digests.
func NewCachedTree(leaves []Digest, opts ...CachedTreeOption) (*CachedTree, error) {
	t := &CachedTree{
		leaves:       append([]Digest(nil), leaves...),
		nodeCache:    make(map[Digest]*node),
		nodeOrder:    list.New(),
		proofCache:   make(map[int][]Digest),
		proofOrder:   list.New(),
		maxCacheSize: defaultMaxCacheSize,
	}
	for _, apply := range opts {
		if err := apply(t); err != nil {
			return nil, err
		}
	}
	if len(t.leaves) > 0 {
		t.rebuild()
	}
	return t, nil
}

// Root returns the current root digest, or ZeroDigest for an empty tree.
func (t *CachedTree) Root() Digest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootLocked()
}

func (t *CachedTree) rootLocked() Digest {
	if len(t.levels) == 0 {
		return ZeroDigest
	}
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return ZeroDigest
	}
	return top[0].hash
}

// Len returns the number of leaves in the tree.
func (t *CachedTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leaves)
}

// Leaf returns the digest currently stored at the given index.
func (t *CachedTree) Leaf(index int) (Digest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.leaves) {
		return ZeroDigest, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(t.leaves))
	}
	return t.leaves[index], nil
}

// UpdateLeaf replaces the digest at the given index. Small trees are rebuilt
// outright; larger trees recompute only the leaf-to-root path. Either way the
// resulting root is identical to a full rebuild over the same leaf set, and
// all cached proofs are dropped since every proof shares a node with the
// changed path.
func (t *CachedTree) UpdateLeaf(index int, digest Digest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.leaves) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(t.leaves))
	}

	t.leaves[index] = digest
	if len(t.leaves) <= smallTreeRebuildThreshold {
		t.rebuild()
	} else {
		t.updatePath(index, digest)
	}
	t.stats.Updates++
	t.clearProofCacheLocked()
	return nil
}

// BatchUpdate applies multiple leaf changes with exactly one rebuild, then
// clears the proof cache.
func (t *CachedTree) BatchUpdate(updates []LeafUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Validate all indices before mutating anything.
	for _, u := range updates {
		if u.Index < 0 || u.Index >= len(t.leaves) {
			return fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, u.Index, len(t.leaves))
		}
	}
	for _, u := range updates {
		t.leaves[u.Index] = u.Digest
	}
	t.rebuild()
	t.stats.Updates += uint64(len(updates))
	t.clearProofCacheLocked()
	return nil
}

// GenerateProof returns the sibling digest at each level from the leaf at the
// given index up to the root. Proofs are cached per index until the next
// update.
func (t *CachedTree) GenerateProof(index int) ([]Digest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(t.leaves))
	}

	if cached, ok := t.proofCache[index]; ok {
		t.stats.Hits++
		return append([]Digest(nil), cached...), nil
	}
	t.stats.Misses++

	proof := make([]Digest, 0, len(t.levels)-1)
	i := index
	for l := 0; l < len(t.levels)-1; l++ {
		level := t.levels[l]
		sibling := i ^ 1
		if sibling >= len(level) {
			// Odd level: the last node is its own sibling.
			sibling = i
		}
		proof = append(proof, level[sibling].hash)
		i /= 2
	}

	t.cacheProof(index, proof)
	return append([]Digest(nil), proof...), nil
}

// Stats returns a snapshot of the cache counters.
func (t *CachedTree) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// ClearCache drops all memoized nodes and cached proofs. The tree structure
// itself is unaffected.
func (t *CachedTree) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeCache = make(map[Digest]*node)
	t.nodeOrder.Init()
	t.clearProofCacheLocked()
}

// CachedProof reports whether a proof for the given index is currently
// cached.
func (t *CachedTree) CachedProof(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.proofCache[index]
	return ok
}

// rebuild reconstructs every level from the current leaf set.
func (t *CachedTree) rebuild() {
	if len(t.leaves) == 0 {
		t.levels = nil
		return
	}

	t.stats.FullRebuilds++
	level := make([]*node, len(t.leaves))
	for i, h := range t.leaves {
		level[i] = t.internNode(&node{hash: h, height: 0, leaf: true})
	}
	t.levels = t.levels[:0]
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		next := make([]*node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, t.combine(left, right))
		}
		t.levels = append(t.levels, next)
		level = next
	}
}

// updatePath recomputes the nodes on the path from the changed leaf to the
// root, leaving all other nodes shared with the previous version.
func (t *CachedTree) updatePath(index int, digest Digest) {
	t.levels[0][index] = t.internNode(&node{hash: digest, height: 0, leaf: true})

	i := index
	for l := 0; l < len(t.levels)-1; l++ {
		parent := i / 2
		level := t.levels[l]
		left := level[parent*2]
		right := left
		if parent*2+1 < len(level) {
			right = level[parent*2+1]
		}
		t.levels[l+1][parent] = t.combine(left, right)
		i = parent
	}
}

// combine returns the parent of two siblings, reusing a content-addressed
// cached node when one exists.
func (t *CachedTree) combine(left, right *node) *node {
	combined := HashPair(left.hash, right.hash)
	if cached, ok := t.nodeCache[combined]; ok {
		t.stats.Hits++
		return cached
	}
	t.stats.Misses++
	return t.internNode(&node{
		hash:   combined,
		left:   left,
		right:  right,
		height: left.height + 1,
	})
}

// internNode caches a freshly built node, evicting the oldest entry once the
// cache is full.
func (t *CachedTree) internNode(n *node) *node {
	if cached, ok := t.nodeCache[n.hash]; ok {
		return cached
	}
	if t.nodeOrder.Len() >= t.maxCacheSize {
		oldest := t.nodeOrder.Front()
		t.nodeOrder.Remove(oldest)
		delete(t.nodeCache, oldest.Value.(Digest))
	}
	t.nodeCache[n.hash] = n
	t.nodeOrder.PushBack(n.hash)
	return n
}

func (t *CachedTree) cacheProof(index int, proof []Digest) {
	if t.proofOrder.Len() >= max(1, t.maxCacheSize/10) {
		oldest := t.proofOrder.Front()
		t.proofOrder.Remove(oldest)
		delete(t.proofCache, oldest.Value.(int))
	}
	t.proofCache[index] = append([]Digest(nil), proof...)
	t.proofOrder.PushBack(index)
}

func (t *CachedTree) clearProofCacheLocked() {
	t.proofCache = make(map[int][]Digest)
	t.proofOrder.Init()
}
