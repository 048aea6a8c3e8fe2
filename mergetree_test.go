package contourtree

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathMesh returns values on a path graph 0-1-...-n-1.
func pathMesh(t testing.TB, values ...float32) *Mesh {
	t.Helper()
	edges := make([][2]int, 0, len(values))
	for i := 1; i < len(values); i++ {
		edges = append(edges, [2]int{i - 1, i})
	}
	m, err := NewMeshFromEdges(values, edges)
	require.NoError(t, err)
	return m
}

// randomGrid returns a grid of uniform random values quantised to levels
// distinct values, so ties are common when levels is small.
func randomGrid(t testing.TB, rng *rand.Rand, dims [3]int, levels int) *Grid {
	t.Helper()
	values := make([]float32, dims[0]*dims[1]*dims[2])
	for i := range values {
		values[i] = float32(rng.Intn(levels))
	}
	g, err := NewGrid(dims, values)
	require.NoError(t, err)
	return g
}

func TestJoinTree_WorkedPath(t *testing.T) {
	ctx := context.Background()
	mt, err := NewMergeTree(pathMesh(t, 0, 3, 1, 4, 2), Config{})
	require.NoError(t, err)
	require.NoError(t, mt.OrderVertices(ctx))
	require.NoError(t, mt.ComputeJoinTree(ctx))

	assert.Equal(t, Maximum, mt.joinCrit[3])
	assert.Equal(t, Maximum, mt.joinCrit[1])
	assert.Equal(t, Saddle, mt.joinCrit[2])
	assert.Equal(t, Regular, mt.joinCrit[4])
	assert.Equal(t, Minimum, mt.joinCrit[0])
	assert.False(t, mt.hasVirtualMin)

	tree, err := mt.GenerateArrays(JoinTree)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.NodeCount())
	assert.Equal(t, 3, tree.ArcCount())
	assert.Equal(t, []int64{0, 2, 1, 3}, tree.NodeIDs)
	assert.Equal(t, []float32{0, 1, 3, 4}, tree.NodeFns)
	assert.Equal(t, []CriticalType{Minimum, Saddle, Maximum, Maximum}, tree.NodeTypes)
	assert.Equal(t, [][2]int64{{0, 1}, {1, 2}, {1, 3}}, tree.Arcs)
	assert.Equal(t, []uint32{0, 1, 0, 2, 2}, tree.ArcMap)
}

func TestSplitTree_VirtualMaximum(t *testing.T) {
	ctx := context.Background()
	mt, err := NewMergeTree(pathMesh(t, 0, 3, 1, 4, 2), Config{})
	require.NoError(t, err)
	require.NoError(t, mt.Compute(ctx, SplitTree))
	assert.True(t, mt.hasVirtualMax)

	tree, err := mt.GenerateArrays(SplitTree)
	require.NoError(t, err)
	// The virtual maximum gets the first free id and the highest value.
	assert.Equal(t, []int64{0, 2, 4, 1, 3, 5}, tree.NodeIDs)
	assert.Equal(t, float32(4), tree.NodeFns[5])
	assert.Equal(t, Maximum, tree.NodeTypes[5])
	assert.Equal(t, Saddle, tree.NodeTypes[4])
	assert.Equal(t, 5, tree.ArcCount())
	assert.Len(t, tree.ArcMap, 6)
}

func TestJoinTree_VirtualMinimum(t *testing.T) {
	tree, err := BuildTree(context.Background(), pathMesh(t, 1, 0, 2), Config{TreeKind: JoinTree})
	require.NoError(t, err)

	// The lowest vertex joins two maxima, so a virtual minimum sits below it.
	assert.Equal(t, []int64{3, 1, 0, 2}, tree.NodeIDs)
	assert.Equal(t, []float32{0, 0, 1, 2}, tree.NodeFns)
	assert.Equal(t, []CriticalType{Minimum, Saddle, Maximum, Maximum}, tree.NodeTypes)
	assert.Equal(t, 3, tree.ArcCount())
	assert.Len(t, tree.ArcMap, 4)
}

func TestContourTree_BothVirtual(t *testing.T) {
	tree, err := BuildTree(context.Background(), pathMesh(t, 1, 0, 3, 2), Config{ValidateTopology: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{4, 1, 0, 3, 2, 5}, tree.NodeIDs)
	assert.Equal(t, []CriticalType{Minimum, Saddle, Maximum, Minimum, Saddle, Maximum}, tree.NodeTypes)
	assert.Equal(t, [][2]int64{{0, 1}, {1, 2}, {1, 4}, {3, 4}, {4, 5}}, tree.Arcs)
	assert.Len(t, tree.ArcMap, 6)
}

func TestContourTree_WorkedPath(t *testing.T) {
	tree, err := BuildTree(context.Background(), pathMesh(t, 0, 3, 1, 4, 2), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 2, 4, 1, 3, 5}, tree.NodeIDs)
	assert.Equal(t, []CriticalType{Minimum, Minimum, Minimum, Maximum, Saddle, Maximum}, tree.NodeTypes)
	assert.Equal(t, [][2]int64{{0, 3}, {1, 3}, {1, 4}, {2, 4}, {4, 5}}, tree.Arcs)
	for v, a := range tree.ArcMap {
		assert.Less(t, a, uint32(tree.ArcCount()), "vertex %d", v)
	}
}

func TestContourTree_MonotonePath(t *testing.T) {
	tree, err := BuildTree(context.Background(), pathMesh(t, 0, 1, 2, 3), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 3}, tree.NodeIDs)
	assert.Equal(t, [][2]int64{{0, 1}}, tree.Arcs)
	assert.Equal(t, []uint32{0, 0, 0, 0}, tree.ArcMap)
}

func TestTreeProperty_RandomFields(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for trial := 0; trial < 20; trial++ {
		dims := [3]int{2 + rng.Intn(6), 2 + rng.Intn(6), 1 + rng.Intn(3)}
		// Few levels force many ties.
		grid := randomGrid(t, rng, dims, 1+rng.Intn(8))

		for _, kind := range []TreeKind{JoinTree, SplitTree, ContourTree} {
			cfg := DefaultConfig()
			cfg.TreeKind = kind
			cfg.ValidateTopology = true
			tree, err := BuildTree(ctx, grid, cfg)
			require.NoError(t, err, "trial %d %s dims %v", trial, kind, dims)

			assert.Equal(t, tree.NodeCount()-1, tree.ArcCount())
			assert.GreaterOrEqual(t, len(tree.ArcMap), grid.VertexCount())
			assertSegmentation(t, grid, tree)
		}
	}
}

// assertSegmentation checks that every vertex maps to a valid arc and lies
// within the value range of that arc.
func assertSegmentation(t *testing.T, fn ScalarFunction, tree *Tree) {
	t.Helper()
	for v := 0; v < fn.VertexCount(); v++ {
		a := tree.ArcMap[v]
		require.Less(t, a, uint32(tree.ArcCount()), "vertex %d", v)
		arc := tree.Arcs[a]
		lo, hi := tree.NodeFns[arc[0]], tree.NodeFns[arc[1]]
		assert.LessOrEqual(t, lo, fn.Value(v), "vertex %d below arc %d", v, a)
		assert.GreaterOrEqual(t, hi, fn.Value(v), "vertex %d above arc %d", v, a)
	}
	for i := 1; i < tree.NodeCount(); i++ {
		assert.LessOrEqual(t, tree.NodeFns[i-1], tree.NodeFns[i], "node values must not decrease")
	}
}

func TestContourTree_ArcsArePaths(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	ctx := context.Background()
	for trial := 0; trial < 50; trial++ {
		values := make([]float32, 2+rng.Intn(14))
		for i := range values {
			values[i] = float32(rng.Intn(6))
		}
		mesh := pathMesh(t, values...)
		tree, err := BuildTree(ctx, mesh, DefaultConfig())
		require.NoError(t, err, "values %v", values)
		assertArcPaths(t, mesh, tree)
	}
}

// assertArcPaths checks that the vertices of every arc, together with its
// real endpoints, form a path in the mesh that is monotone in value: sorted
// by value, each vertex is adjacent to the next, and the endpoints come
// first and last.
func assertArcPaths(t *testing.T, fn ScalarFunction, tree *Tree) {
	t.Helper()
	n := fn.VertexCount()
	members := make([][]int, tree.ArcCount())
	for v := 0; v < n; v++ {
		a := tree.ArcMap[v]
		members[a] = append(members[a], v)
	}

	star := make([]int, fn.MaxDegree())
	for a, arc := range tree.Arcs {
		lo, hi := tree.NodeIDs[arc[0]], tree.NodeIDs[arc[1]]
		run := members[a]
		for _, id := range []int64{lo, hi} {
			if id < int64(n) && !slices.Contains(run, int(id)) {
				run = append(run, int(id))
			}
		}
		slices.SortFunc(run, func(x, y int) int {
			switch {
			case fn.LessThan(x, y):
				return -1
			case fn.LessThan(y, x):
				return 1
			default:
				return 0
			}
		})
		if len(run) == 0 {
			continue
		}
		if lo < int64(n) {
			assert.Equal(t, int(lo), run[0], "arc %d starts below its lower node", a)
		}
		if hi < int64(n) {
			assert.Equal(t, int(hi), run[len(run)-1], "arc %d ends above its upper node", a)
		}
		for i := 1; i < len(run); i++ {
			k := fn.Star(run[i-1], star)
			assert.True(t, slices.Contains(star[:k], run[i]), "arc %d: %d and %d are not adjacent", a, run[i-1], run[i])
		}
	}
}

func TestMergeTree_StageOrder(t *testing.T) {
	ctx := context.Background()
	mt, err := NewMergeTree(pathMesh(t, 0, 2, 1), Config{})
	require.NoError(t, err)

	err = mt.ComputeJoinTree(ctx)
	assert.True(t, errors.Is(err, ErrPrecondition), "join before ordering")

	require.NoError(t, mt.OrderVertices(ctx))
	err = mt.MergeIntoContourTree(ctx)
	assert.True(t, errors.Is(err, ErrPrecondition), "merge before sweeps")

	_, err = mt.GenerateArrays(ContourTree)
	assert.True(t, errors.Is(err, ErrPrecondition), "contour arrays before merge")

	require.NoError(t, mt.ComputeContourTree(ctx))
	_, err = mt.GenerateArrays(JoinTree)
	assert.True(t, errors.Is(err, ErrPrecondition), "join tree is released after merge")

	tree, err := mt.GenerateArrays(ContourTree)
	require.NoError(t, err)
	assert.Equal(t, tree.NodeCount()-1, tree.ArcCount())
}

func TestMergeTree_Rejects(t *testing.T) {
	_, err := NewMergeTree(pathMesh(t, 1), Config{})
	assert.True(t, errors.Is(err, ErrPrecondition), "single vertex")

	// Two components.
	m, err := NewMeshFromEdges([]float32{0, 1, 2, 3}, [][2]int{{0, 1}, {2, 3}})
	require.NoError(t, err)
	_, err = BuildTree(context.Background(), m, DefaultConfig())
	assert.True(t, errors.Is(err, ErrPrecondition), "disconnected domain")
}

func TestMergeTree_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildTree(ctx, pathMesh(t, 0, 2, 1, 3), DefaultConfig())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMergeTree_TiesAreDeterministic(t *testing.T) {
	ctx := context.Background()
	flat := make([]float32, 27)
	g, err := NewGrid([3]int{3, 3, 3}, flat)
	require.NoError(t, err)

	a, err := BuildTree(ctx, g, DefaultConfig())
	require.NoError(t, err)
	b, err := BuildTree(ctx, g, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	// A constant field orders by index: a single arc from 0 to 26.
	assert.Equal(t, []int64{0, 26}, a.NodeIDs)
}
