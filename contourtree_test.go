package contourtree

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TreeKind != ContourTree {
		t.Errorf("TreeKind: got %s, want contour", cfg.TreeKind)
	}
	if cfg.SimFunction != SimPersistence {
		t.Errorf("SimFunction: got %q, want %q", cfg.SimFunction, SimPersistence)
	}
	if cfg.Workers != 0 {
		t.Errorf("Workers: got %d, want 0", cfg.Workers)
	}
	if cfg.ValidateTopology {
		t.Error("ValidateTopology: got true, want false")
	}
	if cfg.Logger != nil {
		t.Error("Logger: got non-nil, want nil")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown tree kind", func(c *Config) { c.TreeKind = TreeKind(7) }},
		{"unknown sim function", func(c *Config) { c.SimFunction = "volume" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
	}

	fn := pathMesh(t, 0, 2, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := Compute(context.Background(), fn, cfg)
			if !errors.Is(err, ErrPrecondition) {
				t.Errorf("expected ErrPrecondition for %s, got %v", tt.name, err)
			}
		})
	}
}

func TestCompute_ZeroConfig(t *testing.T) {
	// The zero Config is a join tree with persistence and default workers.
	res, err := Compute(context.Background(), pathMesh(t, 0, 3, 1, 4, 2), Config{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := res.Tree.NodeCount(); got != 4 {
		t.Errorf("join tree nodes: got %d, want 4", got)
	}
	if len(res.Order) != res.Tree.ArcCount() || len(res.Weights) != len(res.Order) {
		t.Errorf("order %d, weights %d, arcs %d", len(res.Order), len(res.Weights), res.Tree.ArcCount())
	}
}

func TestCompute_AllKindsAndMeasures(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	grid := randomGrid(t, rng, [3]int{7, 6, 3}, 12)

	for _, kind := range []TreeKind{JoinTree, SplitTree, ContourTree} {
		for _, simFn := range []string{SimPersistence, SimHyperVolume} {
			cfg := DefaultConfig()
			cfg.TreeKind = kind
			cfg.SimFunction = simFn
			cfg.Workers = 2
			res, err := Compute(context.Background(), grid, cfg)
			if err != nil {
				t.Fatalf("%s/%s: %v", kind, simFn, err)
			}
			if res.Data.NodeCount() != res.Tree.NodeCount() {
				t.Errorf("%s/%s: data has %d nodes, tree %d", kind, simFn, res.Data.NodeCount(), res.Tree.NodeCount())
			}
			if w := res.Weights[len(res.Weights)-1]; w != 1 {
				t.Errorf("%s/%s: last weight %v, want 1", kind, simFn, w)
			}
		}
	}
}

func TestCompute_LogsVirtualVertex(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if _, err := Compute(context.Background(), pathMesh(t, 1, 0, 3, 2), cfg); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"virtual minimum", "virtual maximum", "contour tree merged", "branch decomposition done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
