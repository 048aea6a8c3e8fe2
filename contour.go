package contourtree

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// reductionGraph is one of the two working trees consumed while merging the
// join and split trees. parent points toward the tree's root; children is
// the inverse relation.
type reductionGraph struct {
	parent   []int
	children [][]int
}

func newReductionGraph(parent []int, vertices []int) *reductionGraph {
	g := &reductionGraph{
		parent:   slices.Clone(parent),
		children: make([][]int, len(parent)),
	}
	for _, v := range vertices {
		if p := g.parent[v]; p >= 0 {
			g.children[p] = append(g.children[p], v)
		}
	}
	return g
}

// detach removes x, reconnecting its children to its parent.
func (g *reductionGraph) detach(x int) {
	p := g.parent[x]
	for _, c := range g.children[x] {
		g.parent[c] = p
		if p >= 0 {
			g.children[p] = append(g.children[p], c)
		}
	}
	if p >= 0 {
		i := slices.Index(g.children[p], x)
		g.children[p] = slices.Delete(g.children[p], i, i+1)
	}
	g.children[x] = nil
	g.parent[x] = -1
}

// ComputeContourTree runs every stage up to and including the merge.
func (mt *MergeTree) ComputeContourTree(ctx context.Context) error {
	return mt.Compute(ctx, ContourTree)
}

// MergeIntoContourTree combines the join and split trees into the contour
// tree by repeatedly peeling leaves. A vertex is an upper leaf when it has
// no children in the join tree and one in the split tree, and a lower leaf
// in the mirrored case; peeling it emits the arc to its remaining neighbour
// on the reducing side. The join and split working state is released
// afterwards.
func (mt *MergeTree) MergeIntoContourTree(ctx context.Context) error {
	if !mt.joinDone || !mt.splitDone || mt.merged {
		return fmt.Errorf("contourtree: merge: join and split trees required: %w", ErrPrecondition)
	}
	start := time.Now()

	// Graft each virtual extremum into the tree that did not create it so
	// both trees span the same vertices.
	if mt.hasVirtualMin {
		mt.next[mt.virtualMin()] = mt.sv[0]
	}
	if mt.hasVirtualMax {
		mt.prev[mt.virtualMax()] = mt.sv[mt.n-1]
	}
	vertices := mt.extendedOrder(mt.hasVirtualMin, mt.hasVirtualMax)

	// upperReducer holds join-tree arcs and peels upper leaves; lowerReducer
	// holds split-tree arcs and peels lower leaves.
	upperReducer := newReductionGraph(mt.prev, vertices)
	lowerReducer := newReductionGraph(mt.next, vertices)
	isLeaf := func(v int) bool {
		return len(upperReducer.children[v])+len(lowerReducer.children[v]) == 1
	}

	mt.ctUp = make([][]int, mt.n+2)
	mt.ctDown = make([][]int, mt.n+2)

	queue := make([]int, 0, len(vertices))
	for _, v := range vertices {
		if isLeaf(v) {
			queue = append(queue, v)
		}
	}

	arcs := 0
	for head := 0; head < len(queue); head++ {
		if head&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("contourtree: merge: %w", err)
			}
		}
		xi := queue[head]
		upChildren := len(upperReducer.children[xi])
		downChildren := len(lowerReducer.children[xi])

		var xj int
		switch {
		case upChildren == 0 && downChildren == 1:
			xj = upperReducer.parent[xi]
			if xj < 0 {
				return fmt.Errorf("contourtree: merge: upper leaf %d has no join neighbour: %w", xi, ErrPrecondition)
			}
			mt.addContourArc(xj, xi)
		case downChildren == 0 && upChildren == 1:
			xj = lowerReducer.parent[xi]
			if xj < 0 {
				return fmt.Errorf("contourtree: merge: lower leaf %d has no split neighbour: %w", xi, ErrPrecondition)
			}
			mt.addContourArc(xi, xj)
		default:
			// Already isolated in both trees.
			continue
		}

		upperReducer.detach(xi)
		lowerReducer.detach(xi)
		arcs++
		if isLeaf(xj) {
			queue = append(queue, xj)
		}
	}

	if arcs != len(vertices)-1 {
		return fmt.Errorf("contourtree: merge: emitted %d arcs for %d vertices: %w", arcs, len(vertices), ErrPrecondition)
	}

	// The join and split trees are no longer needed.
	mt.prev, mt.next = nil, nil
	mt.joinCrit, mt.splitCrit = nil, nil
	mt.merged = true
	mt.logger.Debug("contour tree merged", "vertices", len(vertices), "elapsed", time.Since(start))
	return nil
}

// addContourArc records an arc from lower vertex lo to higher vertex hi.
func (mt *MergeTree) addContourArc(lo, hi int) {
	mt.ctUp[lo] = append(mt.ctUp[lo], hi)
	mt.ctDown[hi] = append(mt.ctDown[hi], lo)
}

// contourCrit classifies a vertex of the merged contour tree by degree.
func (mt *MergeTree) contourCrit(v int) CriticalType {
	up, down := len(mt.ctUp[v]), len(mt.ctDown[v])
	switch {
	case up == 1 && down == 1:
		return Regular
	case down == 0:
		return Minimum
	case up == 0:
		return Maximum
	default:
		return Saddle
	}
}

// generateContour contracts the merged contour tree, walking every arc
// upward from its lower critical vertex.
func (mt *MergeTree) generateContour() (*Tree, error) {
	order := mt.extendedOrder(mt.hasVirtualMin, mt.hasVirtualMax)
	step := func(v int) int { return mt.ctUp[v][0] }

	b := mt.newTreeBuilder(order, mt.contourCrit, mt.hasVirtualMin, mt.hasVirtualMax)
	for _, v := range order {
		if mt.contourCrit(v) == Regular {
			continue
		}
		for _, u := range mt.ctUp[v] {
			end, err := b.walk(v, u, step, mt.contourCrit)
			if err != nil {
				return nil, err
			}
			b.tree.Arcs = append(b.tree.Arcs, [2]int64{int64(b.nodeIndex[v]), int64(b.nodeIndex[end])})
		}
	}
	return b.finish()
}
