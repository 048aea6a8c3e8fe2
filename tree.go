package contourtree

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// TreeKind selects which tree a MergeTree generates.
type TreeKind int

const (
	JoinTree TreeKind = iota
	SplitTree
	ContourTree
)

func (k TreeKind) String() string {
	switch k {
	case JoinTree:
		return "join"
	case SplitTree:
		return "split"
	case ContourTree:
		return "contour"
	default:
		return fmt.Sprintf("TreeKind(%d)", int(k))
	}
}

// ParseTreeKind converts "join", "split" or "contour" to a TreeKind.
func ParseTreeKind(s string) (TreeKind, error) {
	switch s {
	case "join":
		return JoinTree, nil
	case "split":
		return SplitTree, nil
	case "contour":
		return ContourTree, nil
	default:
		return 0, fmt.Errorf("contourtree: unknown tree kind %q: %w", s, ErrPrecondition)
	}
}

// CriticalType classifies a vertex. Values are stored as one byte on disk.
type CriticalType uint8

const (
	Regular CriticalType = 0
	Minimum CriticalType = 1
	Maximum CriticalType = 2
	Saddle  CriticalType = 4
)

func (c CriticalType) String() string {
	switch c {
	case Regular:
		return "regular"
	case Minimum:
		return "minimum"
	case Maximum:
		return "maximum"
	case Saddle:
		return "saddle"
	default:
		return fmt.Sprintf("CriticalType(%d)", uint8(c))
	}
}

// noArc marks an ArcMap slot that has not been written yet.
const noArc = ^uint32(0)

// Tree is the generated, linearised form of a join, split or contour tree.
// Nodes are the critical vertices in increasing value order.
type Tree struct {
	// NodeIDs is the vertex id of each node. A synthesised extremum has an
	// id >= the field's vertex count.
	NodeIDs []int64

	// NodeFns is the raw function value of each node, non-decreasing.
	NodeFns []float32

	// NodeTypes is the critical classification of each node.
	NodeTypes []CriticalType

	// Arcs holds (lower node, higher node) pairs of node indices.
	Arcs [][2]int64

	// ArcMap assigns every vertex, including synthesised ones, the arc it
	// lies on. This is the per-vertex segmentation of the field.
	ArcMap []uint32
}

// NodeCount returns the number of nodes.
func (t *Tree) NodeCount() int { return len(t.NodeIDs) }

// ArcCount returns the number of arcs.
func (t *Tree) ArcCount() int { return len(t.Arcs) }

// checkTree verifies the generated arrays describe a tree: consistent
// lengths, arc count = node count - 1, arc endpoints in range and, when
// connectivity is requested, a single connected component.
func checkTree(t *Tree, connectivity bool) error {
	nodes := t.NodeCount()
	if len(t.NodeFns) != nodes || len(t.NodeTypes) != nodes {
		return fmt.Errorf("contourtree: node arrays disagree in length (%d ids, %d values, %d types): %w",
			nodes, len(t.NodeFns), len(t.NodeTypes), ErrPrecondition)
	}
	if nodes == 0 || t.ArcCount() != nodes-1 {
		return fmt.Errorf("contourtree: %d arcs for %d nodes is not a tree: %w", t.ArcCount(), nodes, ErrPrecondition)
	}
	for i, a := range t.Arcs {
		if a[0] < 0 || a[1] < 0 || a[0] >= int64(nodes) || a[1] >= int64(nodes) || a[0] == a[1] {
			return fmt.Errorf("contourtree: arc %d (%d,%d) invalid for %d nodes: %w", i, a[0], a[1], nodes, ErrPrecondition)
		}
	}
	for v, a := range t.ArcMap {
		if a >= uint32(t.ArcCount()) {
			return fmt.Errorf("contourtree: vertex %d mapped to arc %d of %d: %w", v, a, t.ArcCount(), ErrPrecondition)
		}
	}
	if !connectivity {
		return nil
	}

	g := simple.NewUndirectedGraph()
	for i := 0; i < nodes; i++ {
		g.AddNode(simple.Node(i))
	}
	for _, a := range t.Arcs {
		g.SetEdge(simple.Edge{F: simple.Node(a[0]), T: simple.Node(a[1])})
	}
	if cc := topo.ConnectedComponents(g); len(cc) != 1 {
		return fmt.Errorf("contourtree: tree has %d connected components: %w", len(cc), ErrPrecondition)
	}
	return nil
}
