// Package contourtree computes merge trees, contour trees and branch
// decompositions of scalar fields sampled on the vertices of a grid or mesh.
//
// A scalar field is anything implementing [ScalarFunction]. The join tree
// tracks how super-level sets merge as a threshold sweeps down, the split
// tree tracks sub-level sets sweeping up, and the contour tree combines both.
// The branch decomposition then ranks every feature of the contour tree by a
// pluggable significance measure ([Persistence], [HyperVolume]) so features
// can be extracted at any level of simplification.
//
// Basic usage:
//
//	grid, err := contourtree.NewGrid([3]int{64, 64, 64}, values)
//	cfg := contourtree.DefaultConfig()
//	result, err := contourtree.Compute(ctx, grid, cfg)
//	// result.Tree.ArcMap[v] is the contour-tree arc containing vertex v
//	// result.Order lists branches least significant first
//	// result.Weights[i] is the normalised weight of result.Order[i]
//
// Features at a given simplification level:
//
//	feats, err := contourtree.NewFeatures(result.Data, result.Order, result.Weights)
//	list, err := feats.PartitionedExtremaFeatures(10, 1)
//	labels, err := feats.Segmentation(list, result.Tree.ArcMap)
//
// # Tree kinds
//
// Config.TreeKind selects what Compute builds:
//
//	cfg.TreeKind = contourtree.JoinTree    // super-level set merges only
//	cfg.TreeKind = contourtree.SplitTree   // sub-level set merges only
//	cfg.TreeKind = contourtree.ContourTree // full contour tree (default)
//
// # Storage
//
// WriteTree, WritePartition and WriteOrder store a computed tree in the
// packed binary layout (.rg.dat/.rg.bin, .part.raw, .order.dat/.order.bin)
// read by the visualization processors. All fields use native byte order.
package contourtree
