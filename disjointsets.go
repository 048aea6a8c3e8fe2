package contourtree

import "golang.org/x/exp/constraints"

// DisjointSets implements a union-find forest over the elements 0..n-1 in a
// single slice. A negative entry marks a root and encodes its rank
// (-1 is rank 0, -2 is rank 1, ...); a non-negative entry is a parent index.
type DisjointSets[T constraints.Signed] struct {
	set []T
}

// NewDisjointSets creates n singleton sets.
func NewDisjointSets[T constraints.Signed](n int) *DisjointSets[T] {
	set := make([]T, n)
	for i := range set {
		set[i] = -1
	}
	return &DisjointSets[T]{set: set}
}

// Len returns the number of elements.
func (ds *DisjointSets[T]) Len() int { return len(ds.set) }

// Find returns the root of the set containing x, compressing the path so
// every visited element points directly at the root.
func (ds *DisjointSets[T]) Find(x T) T {
	root := x
	for ds.set[root] >= 0 {
		root = ds.set[root]
	}
	for ds.set[x] >= 0 {
		x, ds.set[x] = ds.set[x], root
	}
	return root
}

// Merge joins the sets containing a and b using union by rank and returns
// the surviving root. On a rank tie the root of a survives and its rank
// grows by one.
func (ds *DisjointSets[T]) Merge(a, b T) T {
	ra := ds.Find(a)
	rb := ds.Find(b)
	if ra == rb {
		return ra
	}

	switch rankA, rankB := ds.rank(ra), ds.rank(rb); {
	case rankA > rankB:
		ds.set[rb] = ra
		return ra
	case rankA < rankB:
		ds.set[ra] = rb
		return rb
	default:
		ds.set[ra]--
		ds.set[rb] = ra
		return ra
	}
}

// rank returns the rank stored at root r. Only meaningful for roots.
func (ds *DisjointSets[T]) rank(r T) int {
	return int(-ds.set[r]) - 1
}
