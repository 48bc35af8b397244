package shuffle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShuffleKeepsAllItems(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	Shuffle(rnd, items)

	require.Len(t, items, 10)
	seen := map[int]bool{}
	for _, v := range items {
		seen[v] = true
	}
	for v := 1; v <= 10; v++ {
		require.True(t, seen[v], "item %d lost in shuffle", v)
	}
}

func TestShuffleIsDeterministicPerSeed(t *testing.T) {
	a := []int{1, 2, 3, 4, 5, 6, 7, 8}
	b := []int{1, 2, 3, 4, 5, 6, 7, 8}

	Shuffle(rand.New(rand.NewSource(7)), a)
	Shuffle(rand.New(rand.NewSource(7)), b)

	require.Equal(t, a, b)
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name  string
		start int
		size  int
		want  []string
	}{
		{name: "full window", start: 0, size: 3, want: []string{"a", "b", "c"}},
		{name: "middle window", start: 2, size: 2, want: []string{"c", "d"}},
		{name: "clamped tail", start: 3, size: 10, want: []string{"d", "e"}},
		{name: "start past end", start: 5, size: 2, want: nil},
		{name: "negative start", start: -1, size: 2, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slice(items, tt.start, tt.size)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPartition(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	chunks := Partition(items, 3)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{1, 2, 3}, chunks[0])
	require.Equal(t, []int{4, 5, 6}, chunks[1])
	require.Equal(t, []int{7}, chunks[2])

	require.Nil(t, Partition(items, 0))
}
