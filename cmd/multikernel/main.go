// Command multikernel runs a scripted multikernel-vs-SMP scenario: it
// stands up both systems, drives a fixed sequence of process creation,
// migration, heartbeat, and resource-contention traffic through the
// multikernel (the SMP baseline receives the same process creations
// only), then prints both systems' statistics side by side before
// shutting down cleanly. It reads no stdin and takes no flags. The RNG
// seeds are fixed, but goroutine timing and map iteration order make
// the printed counters vary from run to run.
package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/nmxmxh/multikernel/internal/config"
	"github.com/nmxmxh/multikernel/internal/coordinator"
	"github.com/nmxmxh/multikernel/internal/metrics"
	"github.com/nmxmxh/multikernel/internal/smp"
	"github.com/nmxmxh/multikernel/internal/xlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		return 1
	}

	logger := xlog.New(zapcore.InfoLevel)
	defer logger.Sync()

	registry := metrics.New()

	coord := coordinator.New(cfg, logger, registry)
	coord.Start()

	baseline := smp.New(smp.Config{
		Workers:    cfg.Cores,
		Quantum:    cfg.Quantum,
		CycleSleep: cfg.CycleSleep,
		Seed:       1,
		Logger:     logger,
		Metrics:    registry,
	})
	baseline.Start()

	runScenario(coord, baseline)

	settle := cfg.CycleSleep * 4
	time.Sleep(settle)

	printReport(coord, baseline)

	coord.Shutdown()
	baseline.Stop()
	return 0
}

// runScenario drives a fixed sequence of traffic through both
// systems: initial placement, one migration, a heartbeat fanout, a
// resource-request/release round trip, and one rebalancing pass.
func runScenario(coord *coordinator.Coordinator, baseline *smp.Baseline) {
	var pids []int64
	for i := 0; i < coord.Cores()*4; i++ {
		pids = append(pids, coord.CreateProcess(5))
		baseline.CreateProcess(5)
	}

	if len(pids) > 0 && coord.Cores() > 1 {
		coord.MigrateProcess(pids[0], 0, coord.Cores()-1)
	}

	coord.HeartbeatFanout()
	coord.ResourceDemo()
	coord.BalanceLoad()
}

func printReport(coord *coordinator.Coordinator, baseline *smp.Baseline) {
	stats := coord.GetStatistics()
	fmt.Println("=== multikernel ===")
	for i, s := range stats.PerCore {
		fmt.Printf("core %d: sent=%d received=%d executed=%d load=%d\n",
			i, s.MessagesSent, s.MessagesReceived, s.ProcessesExecuted, s.CurrentLoad)
	}
	fmt.Printf("totals: sent=%d received=%d executed=%d comm_overhead=%.2f%% delivery_rate=%.2f%%\n",
		stats.Totals.MessagesSent, stats.Totals.MessagesReceived, stats.Totals.ProcessesExecuted,
		stats.CommOverheadPct, stats.DeliveryRatePct)

	smpStats := baseline.Statistics()
	fmt.Println("=== smp baseline ===")
	fmt.Printf("lock_contentions=%d cache_invalidations=%d executed=%d load=%d\n",
		smpStats.LockContentions, smpStats.CacheInvalidations, smpStats.ProcessesExecuted, smpStats.CurrentLoad)
}
