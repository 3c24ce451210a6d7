package random

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffle_KeepsElements(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, Shuffle(items))

	sorted := append([]int(nil), items...)
	sort.Ints(sorted)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, sorted)
}

func TestShuffle_CoversAllPositions(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		items := []string{"a", "b", "c"}
		require.NoError(t, Shuffle(items))
		seen[items[0]] = true
	}
	assert.Len(t, seen, 3)
}

func TestPick(t *testing.T) {
	_, ok, err := Pick([]string{})
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := Pick([]string{"only"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "only", got)
}
