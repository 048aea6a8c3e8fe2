package contourtree

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeatures(t *testing.T, fn ScalarFunction) (*Result, *Features) {
	t.Helper()
	res, err := Compute(context.Background(), fn, DefaultConfig())
	require.NoError(t, err)
	f, err := NewFeatures(res.Data, res.Order, res.Weights)
	require.NoError(t, err)
	return res, f
}

// assertPartition checks that features cover every arc exactly once.
func assertPartition(t *testing.T, features []Feature, arcCount int) {
	t.Helper()
	owner := newParentArray(arcCount)
	for i, ft := range features {
		for _, a := range ft.Arcs {
			require.Less(t, a, arcCount)
			assert.Equal(t, -1, owner[a], "arc %d in features %d and %d", a, owner[a], i)
			owner[a] = i
		}
	}
	for a, o := range owner {
		assert.GreaterOrEqual(t, o, 0, "arc %d not covered", a)
	}
}

func TestArcFeatures_Levels(t *testing.T) {
	_, f := newTestFeatures(t, pathMesh(t, 1, 0, 4, 2))

	all, err := f.ArcFeatures(0, 0.2)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assertPartition(t, all, 5)

	one, err := f.ArcFeatures(1, 1)
	require.NoError(t, err)
	require.Len(t, one, 3)
	// Most significant first: branch 0 now spans arcs 0 and 2 plus pruned 1.
	assert.Equal(t, 0, one[0].Branch)
	assert.Equal(t, []int{0, 1, 2}, one[0].Arcs)
	assertPartition(t, one, 5)

	top, err := f.ArcFeatures(0, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, Feature{Branch: 0, From: 0, To: 5, Weight: 1, Arcs: []int{0, 1, 2, 3, 4}}, top[0])
}

func TestFeatures_PendingLeaves(t *testing.T) {
	_, f := newTestFeatures(t, pathMesh(t, 0, 3, 1, 4, 2))

	// Branch 1 stays pending at node 1, carrying branch 0 with it, and the
	// survivor 1 -> 5 is the only branch left there.
	for _, query := range []func(int, float32) ([]Feature, error){f.ArcFeatures, f.PartitionedExtremaFeatures} {
		got, err := query(0, 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Branch)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, got[0].Arcs)
	}

	// After two prunes branch 1 is still live and takes branch 0, which
	// waits at node 3.
	two, err := f.ArcFeatures(2, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, []int{2, 3, 4}, two[0].Arcs)
	assert.Equal(t, []int{0, 1}, two[1].Arcs)
}

func TestFeatures_PartitionRandomFields(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	ctx := context.Background()
	for trial := 0; trial < 15; trial++ {
		grid := randomGrid(t, rng, [3]int{2 + rng.Intn(7), 2 + rng.Intn(7), 1 + rng.Intn(4)}, 3+rng.Intn(40))

		for _, simFn := range []string{SimPersistence, SimHyperVolume} {
			cfg := DefaultConfig()
			cfg.SimFunction = simFn
			res, err := Compute(ctx, grid, cfg)
			require.NoError(t, err)
			f, err := NewFeatures(res.Data, res.Order, res.Weights)
			require.NoError(t, err)

			for _, topk := range []int{0, 1, 2, 3, 5, 10} {
				plain, err := f.ArcFeatures(topk, 2)
				require.NoError(t, err)
				assertPartition(t, plain, res.Data.ArcCount())

				parts, err := f.PartitionedExtremaFeatures(topk, 2)
				require.NoError(t, err)
				assertPartition(t, parts, res.Data.ArcCount())
				require.Len(t, parts, len(plain))

				seg, err := f.Segmentation(parts, res.Tree.ArcMap)
				require.NoError(t, err)
				for v, l := range seg {
					assert.GreaterOrEqual(t, l, 0, "trial %d %s topk %d vertex %d unlabelled", trial, simFn, topk, v)
				}
			}
		}
	}
}

func TestSegmentation(t *testing.T) {
	res, f := newTestFeatures(t, pathMesh(t, 1, 0, 4, 2))
	one, err := f.ArcFeatures(1, 1)
	require.NoError(t, err)

	seg, err := f.Segmentation(one, res.Tree.ArcMap)
	require.NoError(t, err)
	require.Len(t, seg, len(res.Tree.ArcMap))
	for v, a := range res.Tree.ArcMap {
		assert.Contains(t, one[seg[v]].Arcs, int(a), "vertex %d", v)
	}

	_, err = f.Segmentation(one, []uint32{99})
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestNewFeatures_Rejects(t *testing.T) {
	_, data := buildData(t, pathMesh(t, 1, 0, 4, 2), ContourTree)

	_, err := NewFeatures(data, []uint32{0, 1, 2}, []float32{0, 0, 1})
	assert.True(t, errors.Is(err, ErrPrecondition), "short order")

	_, err = NewFeatures(data, []uint32{0, 1, 2, 2, 4}, make([]float32, 5))
	assert.True(t, errors.Is(err, ErrPrecondition), "duplicate branch")

	_, err = NewFeatures(data, []uint32{0, 1, 2, 3, 5}, make([]float32, 5))
	assert.True(t, errors.Is(err, ErrPrecondition), "out of range")
}
