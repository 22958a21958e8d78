package ranker

import "container/heap"

// selectTop returns the best k candidates ordered by descending score, with
// equal scores kept in first-encounter order. It keeps a bounded min-heap
// whose root is the current worst survivor.
func selectTop(cands []candidate, k int) []candidate {
	if k > len(cands) {
		k = len(cands)
	}
	h := make(candidateHeap, 0, k+1)
	for _, c := range cands {
		if h.Len() < k {
			heap.Push(&h, c)
			continue
		}
		if k > 0 && better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	result := make([]candidate, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(candidate)
	}
	return result
}

// better is the result order: higher score first, then earlier ordinal.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.ordinal < b.ordinal
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
