package caching_test

import (
	"testing"

	"github.com/dicemesh/go-dicebft/internal/caching"
	"github.com/stretchr/testify/require"
)

func TestGroupedSet(t *testing.T) {

	subject := caching.NewGroupedSet(3, 2)

	g1v1 := func() (uint64, []byte) { return 1, []byte("one") }
	g1v2 := func() (uint64, []byte) { return 1, []byte("two") }
	g1v3 := func() (uint64, []byte) { return 1, []byte("three") }
	g1v4 := func() (uint64, []byte) { return 1, []byte("four") }
	g2v1 := func() (uint64, []byte) { return 2, []byte("one") }
	g3v1 := func() (uint64, []byte) { return 3, []byte("one") }
	g4v1 := func() (uint64, []byte) { return 4, []byte("one") }

	t.Run("does not contain unseen values", func(t *testing.T) {
		require.False(t, subject.Contains(g1v1()))
		require.False(t, subject.Contains(g1v2()))
	})
	t.Run("contains seen values", func(t *testing.T) {
		require.True(t, subject.Add(g1v1()))
		require.True(t, subject.Contains(g1v1()))

		require.True(t, subject.Add(g1v2()))
		require.True(t, subject.Contains(g1v2()))
	})
	t.Run("re-adding a seen value reports a duplicate", func(t *testing.T) {
		require.False(t, subject.Add(g1v1()))
	})
	t.Run("evicts least recent group", func(t *testing.T) {
		// Three more distinct groups push group 1 out.
		require.True(t, subject.Add(g2v1()))
		require.True(t, subject.Add(g3v1()))
		require.True(t, subject.Add(g4v1()))

		require.False(t, subject.Contains(g1v1()))
		require.False(t, subject.Contains(g1v2()))
	})
	t.Run("evicts first half of set on 2X max", func(t *testing.T) {
		require.True(t, subject.Add(g1v1()))
		require.True(t, subject.Add(g1v2()))

		require.True(t, subject.Add(g1v3()))
		require.True(t, subject.Add(g1v4()))

		require.False(t, subject.Contains(g1v1()))
		require.False(t, subject.Contains(g1v2()))
	})
	t.Run("explicit group removal is removed", func(t *testing.T) {
		require.True(t, subject.RemoveGroupsLessThan(2))
		require.False(t, subject.RemoveGroupsLessThan(2))

		require.False(t, subject.Contains(g1v3()))
		require.False(t, subject.Contains(g1v4()))
	})
}
