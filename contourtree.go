package contourtree

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// cancelCheckMask sets how often the O(vertexCount) loops poll their
// context: every cancelCheckMask+1 iterations.
const cancelCheckMask = 1<<12 - 1

// Config controls tree construction and simplification.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// TreeKind selects the tree Compute builds. Default: ContourTree.
	TreeKind TreeKind

	// SimFunction names the branch significance measure used by Compute:
	// "persistence" or "hypervolume". Default: "persistence".
	SimFunction string

	// Workers controls the number of goroutines used to order vertices.
	// Every other stage is sequential. 0 means use runtime.NumCPU().
	// Default: 0 (auto).
	Workers int

	// ValidateTopology additionally checks that every generated tree is
	// connected. The arc count check always runs. Default: false.
	ValidateTopology bool

	// Logger receives stage timings at Debug and degenerate-input notices at
	// Warn. nil discards all output.
	Logger *slog.Logger
}

// Result contains the output of Compute.
type Result struct {
	// Tree is the generated tree with its per-vertex segmentation.
	Tree *Tree

	// Data is the query form of Tree used by simplification and features.
	Data *TreeData

	// Order lists every branch exactly once, least significant first.
	Order []uint32

	// Weights[i] is the weight of Order[i] at removal, normalised so the
	// last entry is 1.
	Weights []float32
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		TreeKind:    ContourTree,
		SimFunction: SimPersistence,
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	switch cfg.TreeKind {
	case JoinTree, SplitTree, ContourTree:
		// valid
	default:
		return fmt.Errorf("contourtree: invalid TreeKind %d: %w", int(cfg.TreeKind), ErrPrecondition)
	}
	switch cfg.SimFunction {
	case SimPersistence, SimHyperVolume:
		// valid
	default:
		return fmt.Errorf("contourtree: SimFunction must be %q or %q, got %q: %w",
			SimPersistence, SimHyperVolume, cfg.SimFunction, ErrPrecondition)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("contourtree: Workers must be >= 0, got %d: %w", cfg.Workers, ErrPrecondition)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.SimFunction == "" {
		cfg.SimFunction = SimPersistence
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
}

// Compute builds the tree selected by cfg.TreeKind over fn, then its branch
// decomposition, and returns both. Cancelling ctx aborts the current stage.
func Compute(ctx context.Context, fn ScalarFunction, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	tree, err := BuildTree(ctx, fn, cfg)
	if err != nil {
		return nil, err
	}

	data, err := NewTreeData(tree)
	if err != nil {
		return nil, err
	}

	simFn, err := NewSimFunction(cfg.SimFunction, data, tree.ArcMap)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sim := NewSimplification(data)
	if err := sim.Simplify(ctx, simFn); err != nil {
		return nil, err
	}
	weights := sim.ComputeWeights()
	cfg.Logger.Debug("branch decomposition done",
		"simfn", cfg.SimFunction,
		"branches", len(sim.Order()),
		"elapsed", time.Since(start))

	return &Result{
		Tree:    tree,
		Data:    data,
		Order:   sim.Order(),
		Weights: weights,
	}, nil
}

// BuildTree runs the merge-tree state machine for cfg.TreeKind and returns
// the generated arrays.
func BuildTree(ctx context.Context, fn ScalarFunction, cfg Config) (*Tree, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	mt, err := NewMergeTree(fn, cfg)
	if err != nil {
		return nil, err
	}
	if err := mt.Compute(ctx, cfg.TreeKind); err != nil {
		return nil, err
	}
	return mt.GenerateArrays(cfg.TreeKind)
}
