// Command contourtree computes the contour tree and branch decomposition of
// a raw volume and writes them in the packed on-disk layout.
//
// Usage:
//
//	contourtree --input vol.raw --dims 64,64,64 --type uint8 --output out/vol
//
// Every flag can also be set in a config file (--config) or through an
// environment variable prefixed with CONTOURTREE_, e.g. CONTOURTREE_SIMFN.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TrevorS/contourtree"
	"github.com/TrevorS/contourtree/internal/logging"
	"github.com/TrevorS/contourtree/internal/metrics"
)

type options struct {
	Input      string `mapstructure:"input"  validate:"required"`
	Dims       []int  `mapstructure:"dims"   validate:"len=3,dive,gte=1"`
	SampleType string `mapstructure:"type"   validate:"oneof=uint8 uint16 float32 float64"`
	Output     string `mapstructure:"output" validate:"required"`

	Tree             string `mapstructure:"tree"              validate:"oneof=join split contour"`
	SimFn            string `mapstructure:"simfn"             validate:"oneof=persistence hypervolume"`
	Workers          int    `mapstructure:"workers"           validate:"gte=0"`
	ValidateTopology bool   `mapstructure:"validate_topology"`

	// TopK and Threshold select the simplification level reported after
	// the order is written.
	TopK      int     `mapstructure:"topk"      validate:"gte=0"`
	Threshold float64 `mapstructure:"threshold" validate:"gte=0"`

	MetricsFile string         `mapstructure:"metrics_file"`
	Log         logging.Config `mapstructure:"log"`
}

// flagKeys maps command-line flags to their config keys.
var flagKeys = map[string]string{
	"input":             "input",
	"dims":              "dims",
	"type":              "type",
	"output":            "output",
	"tree":              "tree",
	"simfn":             "simfn",
	"workers":           "workers",
	"validate-topology": "validate_topology",
	"topk":              "topk",
	"threshold":         "threshold",
	"metrics-file":      "metrics_file",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-file":          "log.file",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := loadOptions(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "contourtree:", err)
		os.Exit(2)
	}
	if err := run(ctx, opts, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "contourtree:", err)
		os.Exit(1)
	}
}

// loadOptions merges flags, an optional config file and the environment,
// flags taking precedence, and validates the result.
func loadOptions(args []string) (*options, error) {
	fs := pflag.NewFlagSet("contourtree", pflag.ContinueOnError)
	configFile := fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("input", "", "raw volume to read")
	fs.IntSlice("dims", nil, "volume dimensions x,y,z")
	fs.String("type", "float32", "sample type: uint8, uint16, float32 or float64")
	fs.String("output", "", "output base name")
	fs.String("tree", "contour", "tree to compute: join, split or contour")
	fs.String("simfn", contourtree.SimPersistence, "branch significance: persistence or hypervolume")
	fs.Int("workers", 0, "goroutines for vertex ordering (0 = all CPUs)")
	fs.Bool("validate-topology", false, "check that generated trees are connected")
	fs.Int("topk", 0, "branches to prune for the reported feature level (0 = no limit)")
	fs.Float64("threshold", 1, "normalised weight cutoff for the reported feature level")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: json or text")
	fs.String("log-file", "", "log to a rotating file instead of stderr")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetEnvPrefix("CONTOURTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var opts options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return &opts, nil
}

// run executes compute tree, write, load, simplify and write order.
func run(ctx context.Context, opts *options, stderr io.Writer) error {
	logger, closer := logging.New(opts.Log, stderr)
	defer closer.Close()
	m := metrics.New()

	kind, err := contourtree.ParseTreeKind(opts.Tree)
	if err != nil {
		return err
	}
	sampleType, err := contourtree.ParseSampleType(opts.SampleType)
	if err != nil {
		return err
	}

	start := time.Now()
	dims := [3]int{opts.Dims[0], opts.Dims[1], opts.Dims[2]}
	grid, err := contourtree.ReadRawGrid(opts.Input, dims, sampleType)
	if err != nil {
		return err
	}
	m.ObserveStage("load_field", start)
	m.Vertices.Set(float64(grid.VertexCount()))

	cfg := contourtree.DefaultConfig()
	cfg.TreeKind = kind
	cfg.SimFunction = opts.SimFn
	cfg.Workers = opts.Workers
	cfg.ValidateTopology = opts.ValidateTopology
	cfg.Logger = logger

	start = time.Now()
	tree, err := contourtree.BuildTree(ctx, grid, cfg)
	if err != nil {
		return err
	}
	m.ObserveStage("tree", start)
	m.RecordTree(kind.String(), tree.NodeCount(), tree.ArcCount())
	if extra := len(tree.ArcMap) - grid.VertexCount(); extra > 0 {
		m.VirtualVertices.Add(float64(extra))
	}
	logger.Info("tree computed", "kind", kind.String(), "nodes", tree.NodeCount(), "arcs", tree.ArcCount())

	start = time.Now()
	if err := contourtree.WriteTree(opts.Output, tree); err != nil {
		return err
	}
	if err := contourtree.WritePartition(opts.Output, tree.ArcMap); err != nil {
		return err
	}
	m.ObserveStage("write_tree", start)

	start = time.Now()
	loaded, err := contourtree.ReadTree(opts.Output)
	if err != nil {
		return err
	}
	if loaded.ArcMap, err = contourtree.ReadPartition(opts.Output, len(tree.ArcMap)); err != nil {
		return err
	}
	data, err := contourtree.NewTreeData(loaded)
	if err != nil {
		return err
	}
	m.ObserveStage("load_tree", start)

	start = time.Now()
	simFn, err := contourtree.NewSimFunction(opts.SimFn, data, loaded.ArcMap)
	if err != nil {
		return err
	}
	sim := contourtree.NewSimplification(data)
	if err := sim.Simplify(ctx, simFn); err != nil {
		return err
	}
	order, weights := sim.Order(), sim.ComputeWeights()
	m.ObserveStage("simplify", start)
	m.Branches.Set(float64(len(order)))

	start = time.Now()
	if err := contourtree.WriteOrder(opts.Output, order, weights); err != nil {
		return err
	}
	m.ObserveStage("write_order", start)

	feats, err := contourtree.NewFeatures(data, order, weights)
	if err != nil {
		return err
	}
	level, err := feats.PartitionedExtremaFeatures(opts.TopK, float32(opts.Threshold))
	if err != nil {
		return err
	}
	logger.Info("branch decomposition written",
		"output", opts.Output,
		"branches", len(order),
		"features", len(level),
		"topk", opts.TopK,
		"threshold", opts.Threshold)

	if opts.MetricsFile != "" {
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
