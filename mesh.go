package contourtree

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
)

// Mesh is a ScalarFunction over an irregular mesh with explicit per-vertex
// adjacency.
type Mesh struct {
	values    []float32
	adj       [][]int
	maxDegree int
}

// NewMesh builds a Mesh from a triangle list. Each triangle contributes its
// three edges.
func NewMesh(values []float32, triangles [][3]int) (*Mesh, error) {
	edges := make([][2]int, 0, 3*len(triangles))
	for _, tri := range triangles {
		edges = append(edges,
			[2]int{tri[0], tri[1]},
			[2]int{tri[1], tri[2]},
			[2]int{tri[2], tri[0]},
		)
	}
	return NewMeshFromEdges(values, edges)
}

// NewMeshFromEdges builds a Mesh from an undirected edge list. Duplicate
// edges and self loops are ignored.
func NewMeshFromEdges(values []float32, edges [][2]int) (*Mesh, error) {
	n := len(values)
	for i, v := range values {
		if math32.IsNaN(v) {
			return nil, fmt.Errorf("contourtree: mesh value %d is NaN: %w", i, ErrPrecondition)
		}
	}

	adj := make([][]int, n)
	for _, e := range edges {
		a, b := e[0], e[1]
		if a < 0 || b < 0 || a >= n || b >= n {
			return nil, fmt.Errorf("contourtree: mesh edge (%d,%d) out of range [0,%d): %w", a, b, n, ErrPrecondition)
		}
		if a == b {
			continue
		}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	maxDegree := 0
	for v := range adj {
		slices.Sort(adj[v])
		adj[v] = slices.Compact(adj[v])
		maxDegree = max(maxDegree, len(adj[v]))
	}

	return &Mesh{values: values, adj: adj, maxDegree: maxDegree}, nil
}

func (m *Mesh) VertexCount() int { return len(m.values) }

func (m *Mesh) MaxDegree() int { return m.maxDegree }

func (m *Mesh) Star(v int, out []int) int {
	return copy(out, m.adj[v])
}

func (m *Mesh) LessThan(v1, v2 int) bool { return lessByValue(m.values, v1, v2) }

func (m *Mesh) Value(v int) float32 { return m.values[v] }
