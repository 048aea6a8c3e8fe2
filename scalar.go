package contourtree

// ScalarFunction is the read interface for a scalar field sampled on the
// vertices of a grid or mesh. Vertices are dense indices in
// [0, VertexCount()).
type ScalarFunction interface {
	// VertexCount returns the number of vertices.
	VertexCount() int

	// MaxDegree returns an upper bound on the number of neighbours of any
	// vertex. Star buffers are sized with it.
	MaxDegree() int

	// Star writes the neighbours of v into out and returns how many were
	// written. out has room for at least MaxDegree() entries. Adjacency must
	// be symmetric.
	Star(v int, out []int) int

	// LessThan reports whether v1 precedes v2 in the total order of the
	// field: by value, ties broken by vertex index.
	LessThan(v1, v2 int) bool

	// Value returns the raw function value at v.
	Value(v int) float32
}

// lessByValue is the LessThan shared by the bundled adapters.
func lessByValue(values []float32, v1, v2 int) bool {
	if values[v1] != values[v2] {
		return values[v1] < values[v2]
	}
	return v1 < v2
}
