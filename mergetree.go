package contourtree

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// MergeTree computes join and split trees of a ScalarFunction with
// union-find sweeps and, optionally, merges them into the contour tree.
//
// The stages must run in order: OrderVertices, then ComputeJoinTree and/or
// ComputeSplitTree, then optionally MergeIntoContourTree, then
// GenerateArrays. Compute runs every stage a tree kind needs. Calls out of
// order return ErrPrecondition. A MergeTree is not safe for concurrent use.
type MergeTree struct {
	fn     ScalarFunction
	n      int
	logger *slog.Logger

	workers          int
	validateTopology bool

	// sv is every real vertex, ascending by LessThan.
	sv []int

	// prev[v] is the next vertex below v in the join tree, next[v] the next
	// vertex above v in the split tree; -1 for none. Both have room for the
	// two virtual vertices.
	prev []int
	next []int

	joinCrit  []CriticalType
	splitCrit []CriticalType

	// Virtual extrema use the fixed internal ids n (minimum) and n+1
	// (maximum); the flags record whether a sweep synthesised them.
	hasVirtualMin bool
	hasVirtualMax bool

	// ctUp and ctDown are the contour tree adjacency produced by
	// MergeIntoContourTree.
	ctUp   [][]int
	ctDown [][]int

	ordered, joinDone, splitDone, merged bool
}

// NewMergeTree prepares a MergeTree over fn. The field must have at least
// two vertices.
func NewMergeTree(fn ScalarFunction, cfg Config) (*MergeTree, error) {
	applyDefaults(&cfg)
	n := fn.VertexCount()
	if n < 2 {
		return nil, fmt.Errorf("contourtree: setup: scalar field needs at least 2 vertices, got %d: %w", n, ErrPrecondition)
	}
	return &MergeTree{
		fn:               fn,
		n:                n,
		logger:           cfg.Logger,
		workers:          cfg.Workers,
		validateTopology: cfg.ValidateTopology,
	}, nil
}

func (mt *MergeTree) virtualMin() int { return mt.n }
func (mt *MergeTree) virtualMax() int { return mt.n + 1 }

// Compute runs every stage needed to generate a tree of the given kind.
// Stages already completed are not repeated.
func (mt *MergeTree) Compute(ctx context.Context, kind TreeKind) error {
	if !mt.ordered {
		if err := mt.OrderVertices(ctx); err != nil {
			return err
		}
	}
	switch kind {
	case JoinTree:
		if mt.joinDone {
			return nil
		}
		return mt.ComputeJoinTree(ctx)
	case SplitTree:
		if mt.splitDone {
			return nil
		}
		return mt.ComputeSplitTree(ctx)
	case ContourTree:
		if mt.merged {
			return nil
		}
		if !mt.joinDone {
			if err := mt.ComputeJoinTree(ctx); err != nil {
				return err
			}
		}
		if !mt.splitDone {
			if err := mt.ComputeSplitTree(ctx); err != nil {
				return err
			}
		}
		return mt.MergeIntoContourTree(ctx)
	default:
		return fmt.Errorf("contourtree: unknown tree kind %d: %w", int(kind), ErrPrecondition)
	}
}

// OrderVertices sorts all vertices ascending by the field's total order.
func (mt *MergeTree) OrderVertices(ctx context.Context) error {
	start := time.Now()
	sv, err := orderVertices(ctx, mt.fn, mt.workers)
	if err != nil {
		return fmt.Errorf("contourtree: order vertices: %w", err)
	}
	mt.sv = sv
	mt.ordered = true
	mt.logger.Debug("vertices ordered", "vertices", mt.n, "workers", mt.workers, "elapsed", time.Since(start))
	return nil
}

// ComputeJoinTree sweeps vertices from highest to lowest, merging the
// components of each vertex's upper link.
func (mt *MergeTree) ComputeJoinTree(ctx context.Context) error {
	if !mt.ordered || mt.merged {
		return fmt.Errorf("contourtree: join tree: vertices not ordered or trees already merged: %w", ErrPrecondition)
	}
	start := time.Now()
	mt.prev = newParentArray(mt.n + 2)
	mt.joinCrit = make([]CriticalType, mt.n+2)

	if err := mt.sweep(ctx, mt.prev, mt.joinCrit, true); err != nil {
		return fmt.Errorf("contourtree: join tree: %w", err)
	}

	lowest := mt.sv[0]
	if mt.joinCrit[lowest] == Saddle {
		vm := mt.virtualMin()
		mt.prev[lowest] = vm
		mt.joinCrit[vm] = Minimum
		mt.hasVirtualMin = true
		mt.logger.Warn("lowest vertex is a join saddle, synthesised a virtual minimum", "vertex", lowest)
	} else {
		mt.joinCrit[lowest] = Minimum
	}
	mt.joinDone = true
	mt.logger.Debug("join tree computed", "elapsed", time.Since(start))
	return nil
}

// ComputeSplitTree sweeps vertices from lowest to highest, merging the
// components of each vertex's lower link.
func (mt *MergeTree) ComputeSplitTree(ctx context.Context) error {
	if !mt.ordered || mt.merged {
		return fmt.Errorf("contourtree: split tree: vertices not ordered or trees already merged: %w", ErrPrecondition)
	}
	start := time.Now()
	mt.next = newParentArray(mt.n + 2)
	mt.splitCrit = make([]CriticalType, mt.n+2)

	if err := mt.sweep(ctx, mt.next, mt.splitCrit, false); err != nil {
		return fmt.Errorf("contourtree: split tree: %w", err)
	}

	highest := mt.sv[mt.n-1]
	if mt.splitCrit[highest] == Saddle {
		vm := mt.virtualMax()
		mt.next[highest] = vm
		mt.splitCrit[vm] = Maximum
		mt.hasVirtualMax = true
		mt.logger.Warn("highest vertex is a split saddle, synthesised a virtual maximum", "vertex", highest)
	} else {
		mt.splitCrit[highest] = Maximum
	}
	mt.splitDone = true
	mt.logger.Debug("split tree computed", "elapsed", time.Since(start))
	return nil
}

// sweep is the union-find pass shared by the join (down) and split (up)
// sweeps. For each vertex it collects the distinct components among the
// already-swept neighbours, links each component's current owner to the
// vertex through parent, merges them, and makes the vertex the owner of the
// merged component. The extreme vertex at the end of the sweep is left for
// the caller to classify.
func (mt *MergeTree) sweep(ctx context.Context, parent []int, crit []CriticalType, down bool) error {
	n := mt.n
	ds := NewDisjointSets[int](n)
	// owner maps a set root to the most recently swept vertex of the set.
	owner := make([]int, n)
	star := make([]int, mt.fn.MaxDegree())
	comps := make([]int, 0, len(star))

	for step := 0; step < n; step++ {
		if step&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var v int
		if down {
			v = mt.sv[n-1-step]
		} else {
			v = mt.sv[step]
		}

		ct := mt.fn.Star(v, star)
		comps = comps[:0]
		for _, w := range star[:ct] {
			if w < 0 || w >= n {
				return fmt.Errorf("vertex %d reports neighbour %d outside [0,%d): %w", v, w, n, ErrPrecondition)
			}
			swept := mt.fn.LessThan(v, w)
			if !down {
				swept = mt.fn.LessThan(w, v)
			}
			if !swept {
				continue
			}
			if c := ds.Find(w); !slices.Contains(comps, c) {
				comps = append(comps, c)
			}
		}

		switch len(comps) {
		case 0:
			if down {
				crit[v] = Maximum
			} else {
				crit[v] = Minimum
			}
		case 1:
			crit[v] = Regular
		default:
			crit[v] = Saddle
		}

		for _, c := range comps {
			parent[owner[c]] = v
			ds.Merge(c, v)
		}
		owner[ds.Find(v)] = v
	}

	// Every vertex but the last one swept must have been linked to a later
	// one, otherwise the domain is not connected.
	last := mt.sv[0]
	if !down {
		last = mt.sv[n-1]
	}
	for v := 0; v < n; v++ {
		if v != last && parent[v] < 0 {
			return fmt.Errorf("vertex %d never joins the component of vertex %d, domain is not connected: %w",
				v, last, ErrPrecondition)
		}
	}
	return nil
}

// newParentArray returns n entries set to -1.
func newParentArray(n int) []int {
	a := make([]int, n)
	for i := range a {
		a[i] = -1
	}
	return a
}

// extendedOrder returns the vertices of the tree being generated in
// ascending order, with the virtual minimum first and the virtual maximum
// last when present.
func (mt *MergeTree) extendedOrder(withMin, withMax bool) []int {
	order := make([]int, 0, mt.n+2)
	if withMin {
		order = append(order, mt.virtualMin())
	}
	order = append(order, mt.sv...)
	if withMax {
		order = append(order, mt.virtualMax())
	}
	return order
}

// outputIDs maps internal vertex ids to the ids written into a Tree. Real
// vertices keep their id; virtual vertices present in the tree are numbered
// from n, minimum first.
func (mt *MergeTree) outputIDs(withMin, withMax bool) []int {
	ids := make([]int, mt.n+2)
	for v := range ids {
		ids[v] = v
	}
	next := mt.n
	if withMin {
		ids[mt.virtualMin()] = next
		next++
	}
	if withMax {
		ids[mt.virtualMax()] = next
	}
	return ids
}

// vertexValue returns the function value of an internal vertex id. Virtual
// extrema take the value of the extreme real vertex they sit next to.
func (mt *MergeTree) vertexValue(v int) float32 {
	switch v {
	case mt.virtualMin():
		return mt.fn.Value(mt.sv[0])
	case mt.virtualMax():
		return mt.fn.Value(mt.sv[mt.n-1])
	default:
		return mt.fn.Value(v)
	}
}

// GenerateArrays linearises the requested tree: every non-regular vertex
// becomes a node and every maximal chain of regular vertices between two
// critical vertices becomes one arc.
func (mt *MergeTree) GenerateArrays(kind TreeKind) (*Tree, error) {
	var (
		tree *Tree
		err  error
	)
	switch kind {
	case JoinTree:
		if !mt.joinDone || mt.merged {
			return nil, fmt.Errorf("contourtree: generate join tree: join tree not available: %w", ErrPrecondition)
		}
		tree, err = mt.generateFromParents(mt.prev, mt.joinCrit, mt.hasVirtualMin, false, false)
	case SplitTree:
		if !mt.splitDone || mt.merged {
			return nil, fmt.Errorf("contourtree: generate split tree: split tree not available: %w", ErrPrecondition)
		}
		tree, err = mt.generateFromParents(mt.next, mt.splitCrit, false, mt.hasVirtualMax, true)
	case ContourTree:
		if !mt.merged {
			return nil, fmt.Errorf("contourtree: generate contour tree: trees not merged: %w", ErrPrecondition)
		}
		tree, err = mt.generateContour()
	default:
		return nil, fmt.Errorf("contourtree: unknown tree kind %d: %w", int(kind), ErrPrecondition)
	}
	if err != nil {
		return nil, fmt.Errorf("contourtree: generate %s tree: %w", kind, err)
	}
	if err := checkTree(tree, mt.validateTopology); err != nil {
		return nil, fmt.Errorf("contourtree: generate %s tree: %w", kind, err)
	}
	mt.logger.Debug("tree generated", "kind", kind.String(), "nodes", tree.NodeCount(), "arcs", tree.ArcCount())
	return tree, nil
}

// treeBuilder accumulates nodes, arcs and the arc map of a tree being
// generated.
type treeBuilder struct {
	mt        *MergeTree
	tree      *Tree
	nodeIndex []int
	outID     []int
}

func (mt *MergeTree) newTreeBuilder(order []int, crit func(int) CriticalType, withMin, withMax bool) *treeBuilder {
	b := &treeBuilder{
		mt:        mt,
		tree:      &Tree{},
		nodeIndex: newParentArray(mt.n + 2),
		outID:     mt.outputIDs(withMin, withMax),
	}
	vertexCount := mt.n
	if withMin {
		vertexCount++
	}
	if withMax {
		vertexCount++
	}
	b.tree.ArcMap = make([]uint32, vertexCount)
	for i := range b.tree.ArcMap {
		b.tree.ArcMap[i] = noArc
	}
	for _, v := range order {
		c := crit(v)
		if c == Regular {
			continue
		}
		b.nodeIndex[v] = len(b.tree.NodeIDs)
		b.tree.NodeIDs = append(b.tree.NodeIDs, int64(b.outID[v]))
		b.tree.NodeFns = append(b.tree.NodeFns, mt.vertexValue(v))
		b.tree.NodeTypes = append(b.tree.NodeTypes, c)
	}
	return b
}

// walk follows step from the critical vertex start through regular
// vertices until the next critical vertex, recording the arc in ArcMap,
// and returns that vertex. The start vertex is always claimed by the arc;
// the end vertex only when no earlier arc claimed it.
func (b *treeBuilder) walk(start int, first int, step func(int) int, crit func(int) CriticalType) (int, error) {
	arc := uint32(len(b.tree.Arcs))
	arcMap := b.tree.ArcMap
	arcMap[b.outID[start]] = arc

	u := first
	for steps := 0; crit(u) == Regular; steps++ {
		if steps > b.mt.n {
			return -1, fmt.Errorf("regular chain from vertex %d does not terminate: %w", start, ErrPrecondition)
		}
		arcMap[b.outID[u]] = arc
		u = step(u)
		if u < 0 {
			return -1, fmt.Errorf("regular chain from vertex %d ends without a critical vertex: %w", start, ErrPrecondition)
		}
	}
	if arcMap[b.outID[u]] == noArc {
		arcMap[b.outID[u]] = arc
	}
	return u, nil
}

func (b *treeBuilder) finish() (*Tree, error) {
	for v, a := range b.tree.ArcMap {
		if a == noArc {
			return nil, fmt.Errorf("vertex %d not covered by any arc: %w", v, ErrPrecondition)
		}
	}
	return b.tree, nil
}

// generateFromParents contracts a join tree (parent = prev, walking down)
// or split tree (parent = next, walking up).
func (mt *MergeTree) generateFromParents(parent []int, crits []CriticalType, withMin, withMax, up bool) (*Tree, error) {
	order := mt.extendedOrder(withMin, withMax)
	crit := func(v int) CriticalType { return crits[v] }
	step := func(v int) int { return parent[v] }

	b := mt.newTreeBuilder(order, crit, withMin, withMax)
	for _, v := range order {
		if crits[v] == Regular || parent[v] < 0 {
			continue
		}
		end, err := b.walk(v, parent[v], step, crit)
		if err != nil {
			return nil, err
		}
		from, to := int64(b.nodeIndex[end]), int64(b.nodeIndex[v])
		if up {
			from, to = to, from
		}
		b.tree.Arcs = append(b.tree.Arcs, [2]int64{from, to})
	}
	return b.finish()
}
