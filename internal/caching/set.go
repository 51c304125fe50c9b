package caching

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Set is a bounded de-duplication set over arbitrary byte samples, keyed by
// the blake2b digest of each sample. It retains at most 2*maxSize samples by
// rotating two generations of entries, dropping the older generation whenever
// the newer one fills up.
type Set struct {
	// maxSize defines the maximum number of samples per generation.
	maxSize int
	// mu protects access to flip and flop.
	mu sync.Mutex
	// flip stores the newer generation of samples until it reaches maxSize.
	flip map[[32]byte]struct{}
	// flop stores the older generation of samples.
	flop map[[32]byte]struct{}
}

// NewSet creates a new Set with a specified max size per generation. The max
// size cannot be less than 1; if it is the set is silently instantiated with
// max size of 1.
func NewSet(maxSize int) *Set {
	maxSize = max(1, maxSize)
	return &Set{
		maxSize: maxSize,
		flip:    make(map[[32]byte]struct{}, maxSize),
		flop:    make(map[[32]byte]struct{}, maxSize),
	}
}

// Contains checks if the given sample v is contained within the set.
func (ss *Set) Contains(v []byte) bool {
	key := blake2b.Sum256(v)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.containsKey(key)
}

// ContainsOrAdd checks if the given sample v is contained within the set, and
// if not adds it. Returns true if the sample was already present.
func (ss *Set) ContainsOrAdd(v []byte) bool {
	key := blake2b.Sum256(v)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.containsKey(key) {
		return true
	}
	ss.flip[key] = struct{}{}

	// Rotate generations once the newer one is full.
	if len(ss.flip) >= ss.maxSize {
		clear(ss.flop)
		ss.flop, ss.flip = ss.flip, ss.flop
	}
	return false
}

// Clear removes all elements in the set.
func (ss *Set) Clear() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	clear(ss.flip)
	clear(ss.flop)
}

func (ss *Set) containsKey(key [32]byte) bool {
	if _, exists := ss.flip[key]; exists {
		return true
	}
	_, exists := ss.flop[key]
	return exists
}
