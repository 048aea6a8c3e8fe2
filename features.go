package contourtree

import (
	"cmp"
	"fmt"
	"slices"
)

// Feature is one branch surviving a simplification level, together with
// every contour tree arc it absorbed directly or through pruned children.
type Feature struct {
	// Branch is the id of the surviving branch.
	Branch int

	// From and To are the lower and higher node of the branch.
	From, To int

	// Weight is the normalised weight recorded for the branch in the order.
	Weight float32

	// Arcs lists the covered contour tree arcs in ascending order.
	Arcs []int
}

// Features answers feature queries against a precomputed branch
// decomposition. It replays the simplification for every query and keeps no
// state between queries.
type Features struct {
	data    *TreeData
	order   []uint32
	weights []float32

	// rank[id] is the position of branch id in order; a higher rank is more
	// significant.
	rank []int
}

// NewFeatures wraps data with an order and weights as produced by
// Simplification.Order and ComputeWeights, or read back with ReadOrder.
// order must list every branch exactly once.
func NewFeatures(data *TreeData, order []uint32, weights []float32) (*Features, error) {
	arcs := data.ArcCount()
	if len(order) != arcs || len(weights) != len(order) {
		return nil, fmt.Errorf("contourtree: features: order of %d entries and %d weights for %d arcs: %w",
			len(order), len(weights), arcs, ErrPrecondition)
	}
	rank := newParentArray(arcs)
	for i, id := range order {
		if int(id) >= arcs {
			return nil, fmt.Errorf("contourtree: features: branch %d out of range [0,%d): %w", id, arcs, ErrPrecondition)
		}
		if rank[id] >= 0 {
			return nil, fmt.Errorf("contourtree: features: branch %d listed twice: %w", id, ErrPrecondition)
		}
		rank[id] = i
	}
	return &Features{data: data, order: order, weights: weights, rank: rank}, nil
}

// ArcFeatures replays the simplification up to topk removals (topk <= 0 for
// no limit) or the first weight above threshold, and returns one Feature per
// surviving branch, most significant first. A pruned branch still waiting
// at a saddle is covered by the most significant surviving branch at that
// saddle. The returned features partition all arcs.
func (f *Features) ArcFeatures(topk int, threshold float32) ([]Feature, error) {
	return f.features(topk, threshold, false)
}

// PartitionedExtremaFeatures is ArcFeatures with every pruned branch kept on
// the side of its extremum: a pruned branch still waiting at a saddle joins
// the most significant surviving branch meeting that saddle from the same
// side, and only falls back to the other side when none does. The returned
// features partition all arcs.
func (f *Features) PartitionedExtremaFeatures(topk int, threshold float32) ([]Feature, error) {
	return f.features(topk, threshold, true)
}

func (f *Features) features(topk int, threshold float32, sameSide bool) ([]Feature, error) {
	s, err := f.level(topk, threshold)
	if err != nil {
		return nil, err
	}
	attached, err := f.attach(s, sameSide)
	if err != nil {
		return nil, err
	}
	return f.collect(s, attached), nil
}

// attach assigns every pruned branch waiting at a node of s to a surviving
// branch at that node.
func (f *Features) attach(s *Simplification, sameSide bool) (map[int][]int, error) {
	attached := make(map[int][]int)
	for node := range f.data.NodeCount() {
		for _, c := range s.Pending(node) {
			var host int
			var ok bool
			if sameSide {
				same, other := s.prev[node], s.next[node]
				if s.branches[c].From == node {
					same, other = other, same
				}
				if host, ok = f.strongest(same); !ok {
					host, ok = f.strongest(other)
				}
			} else {
				host, ok = f.strongest(slices.Concat(s.prev[node], s.next[node]))
			}
			if !ok {
				return nil, fmt.Errorf("contourtree: features: pruned branch %d waits at node %d with no surviving branch: %w",
					c, node, ErrPrecondition)
			}
			attached[host] = append(attached[host], c)
		}
	}
	return attached, nil
}

// Segmentation labels every vertex with the index into features of the
// feature covering its arc, or -1 if no feature covers it.
func (f *Features) Segmentation(features []Feature, arcMap []uint32) ([]int, error) {
	arcs := f.data.ArcCount()
	label := newParentArray(arcs)
	for i, ft := range features {
		for _, a := range ft.Arcs {
			if a < 0 || a >= arcs {
				return nil, fmt.Errorf("contourtree: segmentation: feature %d has arc %d outside [0,%d): %w",
					i, a, arcs, ErrPrecondition)
			}
			label[a] = i
		}
	}

	seg := make([]int, len(arcMap))
	for v, a := range arcMap {
		if int(a) >= arcs {
			return nil, fmt.Errorf("contourtree: segmentation: vertex %d mapped to arc %d of %d: %w",
				v, a, arcs, ErrPrecondition)
		}
		seg[v] = label[a]
	}
	return seg, nil
}

func (f *Features) level(topk int, threshold float32) (*Simplification, error) {
	s := NewSimplification(f.data)
	if err := s.Replay(f.order, f.weights, topk, threshold); err != nil {
		return nil, fmt.Errorf("contourtree: features: %w", err)
	}
	return s, nil
}

// strongest returns the most significant branch in ids.
func (f *Features) strongest(ids []int) (int, bool) {
	if len(ids) == 0 {
		return -1, false
	}
	return slices.MaxFunc(ids, func(a, b int) int { return cmp.Compare(f.rank[a], f.rank[b]) }), true
}

// collect builds one Feature per live branch of s, most significant first.
// attached lists extra pruned branches whose subtrees a live branch covers.
func (f *Features) collect(s *Simplification, attached map[int][]int) []Feature {
	var live []int
	for id := range s.branches {
		if !s.Removed(id) {
			live = append(live, id)
		}
	}
	slices.SortFunc(live, func(a, b int) int { return cmp.Compare(f.rank[b], f.rank[a]) })

	features := make([]Feature, 0, len(live))
	for _, id := range live {
		br := s.branches[id]
		roots := append([]int{id}, attached[id]...)
		features = append(features, Feature{
			Branch: id,
			From:   br.From,
			To:     br.To,
			Weight: f.weights[f.rank[id]],
			Arcs:   branchArcs(s.branches, roots),
		})
	}
	return features
}

// branchArcs walks the pruned-children hierarchy breadth first from roots
// and returns every arc covered along the way, sorted.
func branchArcs(branches []Branch, roots []int) []int {
	var arcs []int
	toProcess := roots
	for len(toProcess) > 0 {
		var next []int
		for _, id := range toProcess {
			arcs = append(arcs, branches[id].Arcs...)
			next = append(next, branches[id].Children...)
		}
		toProcess = next
	}
	slices.Sort(arcs)
	return arcs
}
