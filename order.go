package contourtree

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// parallelOrderMin is the vertex count below which ordering stays on one
// goroutine.
const parallelOrderMin = 1 << 15

// orderVertices returns all vertices of fn sorted ascending by LessThan.
// With workers > 1 the index range is split into contiguous runs that are
// sorted concurrently and then merged pairwise, also concurrently. The
// result is identical to a sequential sort because LessThan is a strict
// total order.
func orderVertices(ctx context.Context, fn ScalarFunction, workers int) ([]int, error) {
	n := fn.VertexCount()
	sv := make([]int, n)
	for i := range sv {
		sv[i] = i
	}
	cmp := func(a, b int) int {
		switch {
		case fn.LessThan(a, b):
			return -1
		case fn.LessThan(b, a):
			return 1
		default:
			return 0
		}
	}

	if workers <= 1 || n < parallelOrderMin {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slices.SortFunc(sv, cmp)
		return sv, nil
	}

	runLen := (n + workers - 1) / workers
	var runs [][2]int
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += runLen {
		end := min(start+runLen, n)
		runs = append(runs, [2]int{start, end})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slices.SortFunc(sv[start:end], cmp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	buf := make([]int, n)
	for len(runs) > 1 {
		next := make([][2]int, 0, (len(runs)+1)/2)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < len(runs); i += 2 {
			if i+1 == len(runs) {
				r := runs[i]
				copy(buf[r[0]:r[1]], sv[r[0]:r[1]])
				next = append(next, r)
				continue
			}
			a, b := runs[i], runs[i+1]
			next = append(next, [2]int{a[0], b[1]})
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				mergeRuns(buf[a[0]:b[1]], sv[a[0]:a[1]], sv[b[0]:b[1]], fn)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		sv, buf = buf, sv
		runs = next
	}
	return sv, nil
}

// mergeRuns merges two sorted runs into dst, which has room for both.
func mergeRuns(dst, a, b []int, fn ScalarFunction) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if fn.LessThan(b[j], a[i]) {
			dst[k] = b[j]
			j++
		} else {
			dst[k] = a[i]
			i++
		}
		k++
	}
	k += copy(dst[k:], a[i:])
	copy(dst[k:], b[j:])
}
