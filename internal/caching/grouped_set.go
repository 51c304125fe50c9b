package caching

import (
	"container/list"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("dicebft/internal/caching")

// GroupedSet groups de-duplication sets by a uint64 key, e.g. a consensus
// sequence number, evicting the least recently used group once maxGroups is
// exceeded. Evicted sets are pooled and reused.
type GroupedSet struct {
	maxGroups int
	setPool   sync.Pool

	mu      sync.Mutex
	groups  map[uint64]*orderedSet
	recency *list.List
}

// orderedSet couples a Set with its position in the recency list.
type orderedSet struct {
	order *list.Element
	*Set
}

func (os *orderedSet) clearForReuse() {
	os.order = nil
	os.Set.Clear()
}

// NewGroupedSet creates a GroupedSet holding at most maxGroups groups of at
// most 2*maxSetSize values each. See Set for the per-group retention rule.
func NewGroupedSet(maxGroups, maxSetSize int) *GroupedSet {
	return &GroupedSet{
		maxGroups: maxGroups,
		groups:    make(map[uint64]*orderedSet, maxGroups),
		setPool: sync.Pool{
			New: func() any {
				return &orderedSet{
					Set: NewSet(maxSetSize),
				}
			},
		},
		recency: list.New(),
	}
}

// Contains checks if the given value is present in the given group, and if so
// updates the group's recency.
func (gs *GroupedSet) Contains(g uint64, v []byte) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if set, exists := gs.groups[g]; exists {
		gs.recency.MoveToFront(set.order)
		return set.Contains(v)
	}
	return false
}

// Add attempts to add the given value to the given group. Returns true if the
// value was newly added, false if it was already present.
func (gs *GroupedSet) Add(g uint64, v []byte) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	set, exists := gs.groups[g]
	if !exists {
		if len(gs.groups) >= gs.maxGroups {
			if evictee := gs.recency.Back(); evictee != nil {
				gs.evict(evictee.Value.(uint64))
			}
		}
		set = gs.setPool.Get().(*orderedSet)
		set.order = gs.recency.PushFront(g)
		gs.groups[g] = set
	}
	return !set.ContainsOrAdd(v)
}

// RemoveGroupsLessThan drops all groups with key strictly less than the given
// group, returning true if at least one group was removed.
func (gs *GroupedSet) RemoveGroupsLessThan(group uint64) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	var evictedAtLeastOne bool
	for g := range gs.groups {
		if g < group {
			evictedAtLeastOne = gs.evict(g) || evictedAtLeastOne
		}
	}
	return evictedAtLeastOne
}

func (gs *GroupedSet) evict(group uint64) bool {
	set, exists := gs.groups[group]
	if !exists {
		return false
	}
	gs.recency.Remove(set.order)
	delete(gs.groups, group)

	set.clearForReuse()
	gs.setPool.Put(set)
	log.Debugw("evicted grouped set from cache", "group", group)
	return true
}
