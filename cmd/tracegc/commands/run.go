package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/pkg/config"
	"github.com/marmos91/tracegc/pkg/gc/gctest"
	"github.com/marmos91/tracegc/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/tracegc/pkg/metrics/prometheus"
)

var (
	runObjects        int
	runRoots          int
	runFanout         int
	runGarbageRatio   float64
	runClusterSize    int
	runOffThreadRatio float64
	runSeed           int64
	runCycles         int
	runFullPurge      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collector over a churning synthetic heap",
	Long: `Run the collector continuously over a synthetic object graph.

Each interval the heap churns (new allocations, dropped links, fresh
garbage) and an opportunistic collection is attempted; between collections
the purge advances in time-sliced increments, the way a frame loop would
drive it.

The debug HTTP server (when enabled in the config) exposes pprof profiles
and live collector statistics; the metrics server exposes Prometheus
counters for every phase.

Examples:
  # Run with defaults until interrupted
  tracegc run

  # A large heap with clusters, full purge every cycle
  tracegc run --objects 500000 --cluster-size 64 --full-purge

  # Ten cycles, then exit
  tracegc run --cycles 10

  # With environment variable overrides
  TRACEGC_LOGGING_LEVEL=DEBUG tracegc run`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runObjects, "objects", 100000, "Initial heap size in objects")
	runCmd.Flags().IntVar(&runRoots, "roots", 64, "Number of root-set objects")
	runCmd.Flags().IntVar(&runFanout, "fanout", 3, "Outgoing references per object")
	runCmd.Flags().Float64Var(&runGarbageRatio, "garbage-ratio", 0.25, "Fraction of the heap that is garbage each cycle")
	runCmd.Flags().IntVar(&runClusterSize, "cluster-size", 0, "Group live objects into clusters of this size (0 = no clusters)")
	runCmd.Flags().Float64Var(&runOffThreadRatio, "off-thread-ratio", 0.2, "Fraction of objects destroyable off-thread")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Graph generation seed")
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "Stop after this many collection cycles (0 = run until interrupted)")
	runCmd.Flags().BoolVar(&runFullPurge, "full-purge", false, "Purge to completion inside each cycle instead of time-slicing")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := InitTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer telemetryShutdown(context.Background())

	// Metrics before the collector so NewCollectorMetrics sees the registry.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	heap := gctest.NewHeap(cfg.Table.Capacity, CollectorConfig(cfg))
	defer heap.Collector.Close()

	logger.Info("populating synthetic heap",
		logger.KeyObjects, runObjects,
		"roots", runRoots,
		"cluster_size", runClusterSize)
	nodes := heap.Populate(gctest.GraphSpec{
		Objects:        runObjects,
		Roots:          runRoots,
		Fanout:         runFanout,
		GarbageRatio:   runGarbageRatio,
		ClusterSize:    runClusterSize,
		OffThreadRatio: runOffThreadRatio,
		Seed:           runSeed,
	})

	servers := startHTTPServers(cfg, heap)
	defer shutdownHTTPServers(servers, cfg.ShutdownTimeout)

	if watcher := watchConfig(GetConfigFile()); watcher != nil {
		defer watcher.Close()
	}

	rng := rand.New(rand.NewSource(runSeed + 1))
	collectTicker := time.NewTicker(cfg.GC.Interval)
	defer collectTicker.Stop()
	purgeTicker := time.NewTicker(cfg.GC.Interval / 20)
	defer purgeTicker.Stop()

	logger.Info("collector running, press Ctrl+C to stop",
		logger.KeyObjects, heap.Table.LiveCount())

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil

		case <-purgeTicker.C:
			heap.Collector.IncrementalPurgeTick(ctx, true, 0)

		case <-collectTicker.C:
			churn(heap, nodes, rng)
			if !heap.Collector.TryCollectGarbage(ctx, 0, runFullPurge) {
				continue
			}
			cycles++
			last := heap.Collector.LastCycle()
			logger.Info("cycle complete",
				logger.KeyCycleID, last.CycleID,
				logger.KeyObjects, last.Objects,
				logger.KeyUnreachable, last.Unreachable,
				logger.KeyDissolved, last.ClustersDissolved,
				logger.KeyDurationMs, float64(last.MarkDuration+last.GatherDuration)/1e6)
			if runCycles > 0 && cycles >= runCycles {
				logger.Info("cycle budget reached", "cycles", cycles)
				return nil
			}
		}
	}
}

// churn mutates the live graph between collections: a few links are dropped,
// a few fresh objects are allocated, some of them orphaned immediately.
func churn(heap *gctest.Heap, nodes []*gctest.Node, rng *rand.Rand) {
	for i := 0; i < 16; i++ {
		n := nodes[rng.Intn(len(nodes))]
		if !heap.Alive(n) {
			continue
		}
		if len(n.Links) > 0 && rng.Intn(2) == 0 {
			n.Links = n.Links[:len(n.Links)-1]
		}
	}

	for i := 0; i < 64; i++ {
		fresh := gctest.NewNode(fmt.Sprintf("churn-%d", rng.Int63()))
		rec, err := heap.Table.Allocate(fresh, 0)
		if err != nil {
			// Table full: the next collection will make room.
			return
		}
		// Half get linked from a live node; the rest are instant garbage.
		if rng.Intn(2) == 0 {
			if owner := nodes[rng.Intn(len(nodes))]; heap.Alive(owner) {
				owner.AddLink(rec.Ref())
			}
		}
	}
}

// startHTTPServers brings up the metrics and debug servers configured.
func startHTTPServers(cfg *config.Config, heap *gctest.Heap) []*http.Server {
	var servers []*http.Server

	if cfg.Metrics.Enabled {
		if h := metrics.Handler(); h != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", h)
			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
				Handler: mux,
			}
			go serveHTTP("metrics", srv)
			servers = append(servers, srv)
			logger.Info("metrics server enabled", "port", cfg.Metrics.Port)
		}
	}

	if cfg.Debug.Enabled {
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Debug.Port),
			Handler: debugRouter(heap),
		}
		go serveHTTP("debug", srv)
		servers = append(servers, srv)
		logger.Info("debug server enabled", "port", cfg.Debug.Port)
	}

	return servers
}

// debugRouter builds the debug endpoints: pprof plus live collector state.
func debugRouter(heap *gctest.Heap) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/debug/pprof/*", pprof.Index)
	r.Get("/debug/pprof/cmdline", pprof.Cmdline)
	r.Get("/debug/pprof/profile", pprof.Profile)
	r.Get("/debug/pprof/symbol", pprof.Symbol)
	r.Get("/debug/pprof/trace", pprof.Trace)

	r.Get("/gc/stats", func(w http.ResponseWriter, req *http.Request) {
		last := heap.Collector.LastCycle()
		resp := struct {
			CycleID           string `json:"cycle_id"`
			Objects           int    `json:"objects"`
			Kept              int    `json:"kept"`
			Unreachable       int    `json:"unreachable"`
			ClusterMembers    int    `json:"cluster_members"`
			ClustersDissolved int    `json:"clusters_dissolved"`
			RefsEliminated    int    `json:"refs_eliminated"`
			Destroyed         int    `json:"destroyed"`
			PurgePending      bool   `json:"purge_pending"`
			LiveObjects       int    `json:"live_objects"`
			MarkMs            float64 `json:"mark_ms"`
			GatherMs          float64 `json:"gather_ms"`
			PurgeMs           float64 `json:"purge_ms"`
		}{
			CycleID:           last.CycleID,
			Objects:           last.Objects,
			Kept:              last.Kept,
			Unreachable:       last.Unreachable,
			ClusterMembers:    last.ClusterMembers,
			ClustersDissolved: last.ClustersDissolved,
			RefsEliminated:    last.RefsEliminated,
			Destroyed:         last.Destroyed,
			PurgePending:      heap.Collector.IsPurgePending(),
			LiveObjects:       heap.Table.LiveCount(),
			MarkMs:            float64(last.MarkDuration.Nanoseconds()) / 1e6,
			GatherMs:          float64(last.GatherDuration.Nanoseconds()) / 1e6,
			PurgeMs:           float64(last.PurgeDuration.Nanoseconds()) / 1e6,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

func serveHTTP(name string, srv *http.Server) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server error", "server", name, logger.KeyError, err)
	}
}

func shutdownHTTPServers(servers []*http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", logger.KeyError, err)
		}
	}
}

// watchConfig reloads the logging level and format when the config file
// changes on disk, so a long simulation can be re-tuned without restarting.
// Returns nil when no config file is in use.
func watchConfig(path string) *fsnotify.Watcher {
	if path == "" {
		if !config.DefaultConfigExists() {
			return nil
		}
		path = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watch unavailable", logger.KeyError, err)
		return nil
	}
	if err := watcher.Add(path); err != nil {
		logger.Warn("config watch unavailable", logger.KeyError, err)
		watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					logger.Warn("config reload failed", logger.KeyError, err)
					continue
				}
				logger.SetLevel(cfg.Logging.Level)
				logger.SetFormat(cfg.Logging.Format)
				logger.Info("logging configuration reloaded",
					"level", cfg.Logging.Level,
					"format", cfg.Logging.Format)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", logger.KeyError, err)
			}
		}
	}()
	return watcher
}
