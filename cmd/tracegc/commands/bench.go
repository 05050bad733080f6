package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/tracegc/internal/cli/output"
	"github.com/marmos91/tracegc/pkg/config"
	"github.com/marmos91/tracegc/pkg/gc/gctest"
)

var (
	benchObjects     int
	benchCycles      int
	benchWorkers     int
	benchClusterSize int
	benchOutput      string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark collection cycles over a synthetic heap",
	Long: `Benchmark full collection cycles over a freshly generated heap.

Each cycle repopulates the garbage partition and runs a collection with a
full purge, reporting per-phase wall times.

Examples:
  # Default benchmark
  tracegc bench

  # A million objects, single-threaded, JSON output
  tracegc bench --objects 1000000 --workers 1 --output json`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchObjects, "objects", 200000, "Heap size in objects")
	benchCmd.Flags().IntVar(&benchCycles, "cycles", 5, "Number of collection cycles")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 0, "Worker count override (0 = from config)")
	benchCmd.Flags().IntVar(&benchClusterSize, "cluster-size", 0, "Cluster size (0 = no clusters)")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// benchResult is one cycle's numbers, shaped for the output package.
type benchResult struct {
	Cycle       int     `json:"cycle" yaml:"cycle"`
	Objects     int     `json:"objects" yaml:"objects"`
	Unreachable int     `json:"unreachable" yaml:"unreachable"`
	Destroyed   int     `json:"destroyed" yaml:"destroyed"`
	MarkMs      float64 `json:"mark_ms" yaml:"mark_ms"`
	GatherMs    float64 `json:"gather_ms" yaml:"gather_ms"`
	PurgeMs     float64 `json:"purge_ms" yaml:"purge_ms"`
}

// benchReport renders the result list as a table.
type benchReport []benchResult

func (r benchReport) Headers() []string {
	return []string{"CYCLE", "OBJECTS", "UNREACHABLE", "DESTROYED", "MARK (ms)", "GATHER (ms)", "PURGE (ms)"}
}

func (r benchReport) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, b := range r {
		rows = append(rows, []string{
			fmt.Sprintf("%d", b.Cycle),
			fmt.Sprintf("%d", b.Objects),
			fmt.Sprintf("%d", b.Unreachable),
			fmt.Sprintf("%d", b.Destroyed),
			fmt.Sprintf("%.3f", b.MarkMs),
			fmt.Sprintf("%.3f", b.GatherMs),
			fmt.Sprintf("%.3f", b.PurgeMs),
		})
	}
	return rows
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	// Benchmarks want quiet logs unless the user asked otherwise.
	if cfg.Logging.Level == "INFO" {
		cfg.Logging.Level = "WARN"
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	format, err := output.ParseFormat(benchOutput)
	if err != nil {
		return err
	}

	gcCfg := CollectorConfig(cfg)
	if benchWorkers > 0 {
		gcCfg.Workers = benchWorkers
	}

	capacity := cfg.Table.Capacity
	if capacity < benchObjects*2 {
		capacity = benchObjects * 2
	}
	heap := gctest.NewHeap(capacity, gcCfg)
	defer heap.Collector.Close()

	nodes := heap.Populate(gctest.GraphSpec{
		Objects:        benchObjects,
		Roots:          64,
		Fanout:         3,
		GarbageRatio:   0.25,
		ClusterSize:    benchClusterSize,
		OffThreadRatio: 0.2,
		Seed:           1,
	})

	ctx := context.Background()
	rng := rand.New(rand.NewSource(2))
	report := make(benchReport, 0, benchCycles)

	for cycle := 1; cycle <= benchCycles; cycle++ {
		heap.Collector.CollectGarbage(ctx, 0, true)

		last := heap.Collector.LastCycle()
		report = append(report, benchResult{
			Cycle:       cycle,
			Objects:     last.Objects,
			Unreachable: last.Unreachable,
			Destroyed:   last.Destroyed,
			MarkMs:      float64(last.MarkDuration.Nanoseconds()) / 1e6,
			GatherMs:    float64(last.GatherDuration.Nanoseconds()) / 1e6,
			PurgeMs:     float64(last.PurgeDuration.Nanoseconds()) / 1e6,
		})

		// Regrow a fresh garbage generation for the next cycle.
		for i := 0; i < benchObjects/4; i++ {
			fresh := gctest.NewNode(fmt.Sprintf("bench-%d-%d", cycle, i))
			rec, err := heap.Table.Allocate(fresh, 0)
			if err != nil {
				break
			}
			if rng.Intn(4) == 0 {
				if owner := nodes[rng.Intn(64)]; heap.Alive(owner) {
					owner.AddLink(rec.Ref())
				}
			}
		}
	}

	return output.Render(os.Stdout, format, report)
}
