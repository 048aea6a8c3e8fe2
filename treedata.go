package contourtree

import (
	"fmt"

	"github.com/chewxy/math32"
)

// TreeData is the compact, read-only query form of a generated tree used by
// simplification and feature extraction. Build it with NewTreeData.
type TreeData struct {
	// NodeVerts is the vertex id of each node.
	NodeVerts []int64

	// NodeFns is the raw function value of each node.
	NodeFns []float32

	// FnVals is the function value of each node normalised to [0, 1].
	FnVals []float32

	// Types is the critical classification of each node.
	Types []CriticalType

	// Arcs holds (lower node, higher node) pairs.
	Arcs [][2]int

	// Next[node] lists the arcs whose lower endpoint is node; Prev[node]
	// the arcs whose higher endpoint is node.
	Next [][]int
	Prev [][]int

	// NodeMap maps a vertex id to its node index.
	NodeMap map[int64]int
}

// NodeCount returns the number of nodes.
func (d *TreeData) NodeCount() int { return len(d.NodeVerts) }

// ArcCount returns the number of arcs.
func (d *TreeData) ArcCount() int { return len(d.Arcs) }

// NewTreeData builds the query form of t. Function values are normalised
// using the first and last node values as the range; a flat field maps
// every node to 0.
func NewTreeData(t *Tree) (*TreeData, error) {
	if err := checkTree(t, false); err != nil {
		return nil, fmt.Errorf("contourtree: tree data: %w", err)
	}

	nodes := t.NodeCount()
	d := &TreeData{
		NodeVerts: make([]int64, nodes),
		NodeFns:   make([]float32, nodes),
		FnVals:    make([]float32, nodes),
		Types:     make([]CriticalType, nodes),
		Arcs:      make([][2]int, t.ArcCount()),
		Next:      make([][]int, nodes),
		Prev:      make([][]int, nodes),
		NodeMap:   make(map[int64]int, nodes),
	}
	copy(d.NodeVerts, t.NodeIDs)
	copy(d.NodeFns, t.NodeFns)
	copy(d.Types, t.NodeTypes)
	for i, id := range t.NodeIDs {
		d.NodeMap[id] = i
	}

	lo, hi := t.NodeFns[0], t.NodeFns[nodes-1]
	rng := hi - lo
	for i, f := range t.NodeFns {
		if rng > 0 {
			d.FnVals[i] = math32.Min(math32.Max((f-lo)/rng, 0), 1)
		}
	}

	for i, a := range t.Arcs {
		from, to := int(a[0]), int(a[1])
		d.Arcs[i] = [2]int{from, to}
		d.Next[from] = append(d.Next[from], i)
		d.Prev[to] = append(d.Prev[to], i)
	}
	return d, nil
}
