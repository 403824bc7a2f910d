package vectorindex

import (
	"container/heap"
	"math"
)

// Normalize returns v scaled to unit length, or nil for an empty or zero
// vector.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil
	}
	mag := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// Dot is the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// SquaredL2 is the squared Euclidean distance of two equal-length vectors.
func SquaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

type scored struct {
	pos   int
	score float64
}

// worstFirst is a heap whose root is the entry that ranks last under
// better, so the k best entries can be kept in O(n log k).
type worstFirst struct {
	items  []scored
	better func(a, b scored) bool
}

func (h worstFirst) Len() int           { return len(h.items) }
func (h worstFirst) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h worstFirst) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *worstFirst) Push(x any)        { h.items = append(h.items, x.(scored)) }
func (h *worstFirst) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// topK scores positions [0, n) and returns the k best in rank order. Equal
// scores rank by ascending position, which makes the order deterministic.
func topK(n, k int, score func(pos int) float64, ascending bool) []scored {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	better := func(a, b scored) bool {
		if a.score != b.score {
			if ascending {
				return a.score < b.score
			}
			return a.score > b.score
		}
		return a.pos < b.pos
	}

	h := &worstFirst{items: make([]scored, 0, k), better: better}
	for pos := 0; pos < n; pos++ {
		s := scored{pos: pos, score: score(pos)}
		if h.Len() < k {
			heap.Push(h, s)
			continue
		}
		if better(s, h.items[0]) {
			h.items[0] = s
			heap.Fix(h, 0)
		}
	}

	out := make([]scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scored)
	}
	return out
}
