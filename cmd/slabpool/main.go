package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slabpool/pkg/config"
	"github.com/ajitpratap0/slabpool/pkg/logger"
	"github.com/ajitpratap0/slabpool/pkg/metrics"
	"github.com/ajitpratap0/slabpool/pkg/observability"
	"github.com/ajitpratap0/slabpool/pkg/performance"
	"github.com/ajitpratap0/slabpool/pkg/slab"
)

var version = "0.1.0"

// BenchReport is the JSON document written at the end of a bench run.
type BenchReport struct {
	Pool      config.PoolConfig          `json:"pool"`
	Waves     int                        `json:"waves"`
	Stats     slab.Stats                 `json:"stats"`
	Metrics   *performance.Metrics       `json:"metrics"`
	Resources *performance.ResourceUsage `json:"resources,omitempty"`
	Wakeups   uint64                     `json:"non_empty_wakeups"`
	Timestamp time.Time                  `json:"timestamp"`
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "slabpool",
		Short: "slabpool - fixed-capacity chunked object pool toolkit",
		Long: `slabpool benchmarks and inspects fixed-capacity chunked object pools.
The bench command drives a pool through exhaustion and recovery waves and
reports throughput, latency percentiles, and resource usage.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slabpool v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newBenchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newBenchCommand() *cobra.Command {
	var configFile, output string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run an exhaustion/recovery benchmark against a pool",
		Long: `Run a pool through repeated waves: fill every slot, observe the
exhaustion failure, release everything, and confirm the non-empty wakeup.
Settings come from flags, SLABPOOL_* environment variables, or a YAML
config file, in that order of precedence.

Example:
  slabpool bench --object-size 4096 --max-objects 65536 --waves 100 -o report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configFile)
			if err != nil {
				return err
			}
			return runBench(cfg, viper.GetInt("waves"), output)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML pool configuration file (optional)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the JSON report to this file instead of stdout")
	cmd.Flags().Int("object-size", 256, "Payload size of each object in bytes")
	cmd.Flags().Uint32("objects-per-chunk", 64, "Slots per bulk allocation (power of two)")
	cmd.Flags().Uint32("max-objects", 4096, "Hard cap on total slots (power of two)")
	cmd.Flags().Bool("align", false, "Align payloads to 64-byte boundaries")
	cmd.Flags().Int("waves", 10, "Number of fill/drain waves to run")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().Bool("trace", false, "Emit phase spans to stderr")

	viper.SetEnvPrefix("SLABPOOL")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

// resolveConfig builds the effective pool configuration: defaults,
// then the YAML file when given, then flag/env overrides via viper.
func resolveConfig(configFile string) (*config.PoolConfig, error) {
	cfg := config.NewPoolConfig("bench")

	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if viper.IsSet("object-size") {
		cfg.Sizing.ObjectSize = viper.GetInt("object-size")
	}
	if viper.IsSet("objects-per-chunk") {
		cfg.Sizing.ObjectsPerChunk = viper.GetUint32("objects-per-chunk")
	}
	if viper.IsSet("max-objects") {
		cfg.Sizing.MaxObjects = viper.GetUint32("max-objects")
	}
	if viper.IsSet("align") {
		cfg.Sizing.Align = viper.GetBool("align")
	}
	if viper.IsSet("log-level") {
		cfg.Observability.LogLevel = viper.GetString("log-level")
	}
	if viper.GetBool("trace") {
		cfg.Observability.EnableTracing = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBench(cfg *config.PoolConfig, waves int, output string) error {
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: "json",
	}); err != nil {
		return err
	}
	log := logger.Get().With(zap.String("component", "slabpool-cli"))

	ctx := context.Background()
	if cfg.Observability.EnableTracing {
		if err := observability.Initialize(observability.TracingConfig{
			ServiceName: "slabpool-bench",
			Writer:      os.Stderr,
			Pretty:      true,
		}); err != nil {
			return err
		}
		defer func() {
			if err := observability.Shutdown(ctx); err != nil {
				log.Warn("trace shutdown failed", zap.Error(err))
			}
		}()
	} else {
		// Spans still flow, they just go nowhere.
		if err := observability.Initialize(observability.TracingConfig{}); err != nil {
			return err
		}
	}

	var inst slab.Instrumentation
	var collector *metrics.PoolCollector
	if cfg.Observability.EnableMetrics {
		collector = metrics.NewPoolCollector(cfg.Name)
		inst = collector
	}

	wakeups := uint64(0)
	pool, err := slab.New(slab.Config{
		ObjectSize:      cfg.Sizing.ObjectSize,
		ObjectsPerChunk: cfg.Sizing.ObjectsPerChunk,
		MaxObjects:      cfg.Sizing.MaxObjects,
		Align:           cfg.Sizing.Align,
		NoGeneration:    cfg.Sizing.NoGeneration,
		Instrument:      inst,
		OnNonEmpty:      func() { wakeups++ },
		Logger:          log,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	log.Info("starting bench",
		zap.String("pool", cfg.Name),
		zap.Int("object_size", cfg.Sizing.ObjectSize),
		zap.Uint32("max_objects", cfg.Sizing.MaxObjects),
		zap.Int("waves", waves))

	profiler := performance.NewProfiler(performance.DefaultProfilerConfig(cfg.Name))
	tracer := observability.NewPhaseTracer(cfg.Name)
	profiler.Start()

	held := make([]*slab.Object, 0, cfg.Sizing.MaxObjects)
	for wave := 0; wave < waves; wave++ {
		err := tracer.TracePhase(ctx, "fill", int(cfg.Sizing.MaxObjects), func(ctx context.Context) error {
			for {
				start := time.Now()
				obj, err := pool.Get()
				if err != nil {
					// The wave is complete once the cap rejects us.
					profiler.IncrementErrors(1)
					return nil
				}
				profiler.RecordLatency(time.Since(start))
				profiler.IncrementOps(1)
				profiler.IncrementBytes(int64(len(obj.Bytes())))
				held = append(held, obj)
			}
		})
		if err != nil {
			return err
		}

		err = tracer.TracePhase(ctx, "drain", len(held), func(ctx context.Context) error {
			for _, obj := range held {
				start := time.Now()
				pool.Put(obj)
				profiler.RecordLatency(time.Since(start))
				profiler.IncrementOps(1)
			}
			held = held[:0]
			return nil
		})
		if err != nil {
			return err
		}
	}

	report := &BenchReport{
		Pool:      *cfg,
		Waves:     waves,
		Stats:     pool.Stats(),
		Metrics:   profiler.Stop(),
		Resources: profiler.ResourceUsage(),
		Wakeups:   wakeups,
		Timestamp: time.Now().UTC(),
	}

	log.Info("bench complete",
		zap.Int64("operations", report.Metrics.Operations),
		zap.Float64("ops_per_second", report.Metrics.OpsPerSecond),
		zap.Uint64("wakeups", wakeups))

	return writeReport(report, output)
}

func writeReport(report *BenchReport, output string) error {
	data, err := gojson.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if output == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
