// Package sampling provides seeded, reproducible index sampling.
package sampling

import (
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit holds out testFraction of each class. Every class with at
// least two members contributes at least one index to each side.
func StratifiedSplit(labels []int, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	for _, idx := range byClass(labels) {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		k := int(math.Round(testFraction * float64(len(idx))))
		if len(idx) >= 2 {
			k = max(1, min(k, len(idx)-1))
		} else {
			k = 0
		}
		test = append(test, idx[:k]...)
		train = append(train, idx[k:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// StratifiedKFold partitions indices into k folds with class proportions
// preserved. It returns the held-out indices of each fold.
func StratifiedKFold(labels []int, k int, seed int64) [][]int {
	if k < 2 {
		k = 2
	}
	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	offset := 0
	for _, idx := range byClass(labels) {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for i, v := range idx {
			f := (i + offset) % k
			folds[f] = append(folds[f], v)
		}
		offset += len(idx)
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// Complement returns the indices in [0,n) not present in held.
func Complement(n int, held []int) []int {
	skip := make(map[int]struct{}, len(held))
	for _, h := range held {
		skip[h] = struct{}{}
	}
	out := make([]int, 0, n-len(held))
	for i := 0; i < n; i++ {
		if _, ok := skip[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Sample draws k distinct indices from [0,n) in ascending order. When k >= n
// all indices are returned.
func Sample(n, k int, seed int64) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	rng := rand.New(rand.NewSource(seed))
	out := append([]int(nil), rng.Perm(n)[:k]...)
	sort.Ints(out)
	return out
}

// byClass groups indices by label in ascending label order.
func byClass(labels []int) [][]int {
	groups := map[int][]int{}
	for i, y := range labels {
		groups[y] = append(groups[y], i)
	}
	keys := make([]int, 0, len(groups))
	for y := range groups {
		keys = append(keys, y)
	}
	sort.Ints(keys)
	out := make([][]int, 0, len(keys))
	for _, y := range keys {
		out = append(out, groups[y])
	}
	return out
}
