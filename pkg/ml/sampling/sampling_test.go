package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsWith(pos, neg int) []int {
	out := make([]int, 0, pos+neg)
	for i := 0; i < pos; i++ {
		out = append(out, 1)
	}
	for i := 0; i < neg; i++ {
		out = append(out, 0)
	}
	return out
}

func count(labels []int, idx []int, y int) int {
	c := 0
	for _, i := range idx {
		if labels[i] == y {
			c++
		}
	}
	return c
}

func TestStratifiedSplitPreservesClasses(t *testing.T) {
	labels := labelsWith(50, 250)
	train, test := StratifiedSplit(labels, 0.2, 42)
	assert.Len(t, test, 60)
	assert.Len(t, train, 240)
	assert.Equal(t, 10, count(labels, test, 1))
	assert.Equal(t, 50, count(labels, test, 0))
	assert.ElementsMatch(t, Complement(300, test), train)
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	labels := labelsWith(30, 300)
	_, a := StratifiedSplit(labels, 0.2, 7)
	_, b := StratifiedSplit(labels, 0.2, 7)
	_, c := StratifiedSplit(labels, 0.2, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestStratifiedKFold(t *testing.T) {
	labels := labelsWith(25, 475)
	folds := StratifiedKFold(labels, 5, 42)
	require.Len(t, folds, 5)
	seen := map[int]bool{}
	for _, f := range folds {
		assert.Equal(t, 5, count(labels, f, 1))
		assert.Equal(t, 95, count(labels, f, 0))
		for _, i := range f {
			assert.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.Len(t, seen, 500)
}

func TestSample(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Sample(3, 8, 1))
	s := Sample(100, 8, 1)
	assert.Len(t, s, 8)
	assert.Equal(t, s, Sample(100, 8, 1))
	assert.IsIncreasing(t, s)
}
