// Package coordinator implements the system-wide placement and
// rebalancing authority that sits above the per-core kernel agents. It
// never touches a process table directly; every effect on a core
// happens through that core's own agent API, the same surface a peer
// agent would use.
package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/multikernel/internal/config"
	"github.com/nmxmxh/multikernel/internal/kernel"
	"github.com/nmxmxh/multikernel/internal/metrics"
	"github.com/nmxmxh/multikernel/internal/proc"
	"github.com/nmxmxh/multikernel/internal/xlog"
)

// overloadFactor and underloadFactor set the thresholds BalanceLoad
// uses to decide a core is a migration source or destination,
// expressed relative to the system-wide average load.
const (
	overloadFactor  = 1.5
	underloadFactor = 0.7
)

// Coordinator owns the RoutingTable for the lifetime of a run. It
// builds every agent before starting any of them, so no agent ever
// observes a half-initialized peer.
type Coordinator struct {
	cfg      config.Config
	table    kernel.RoutingTable
	pidGen   atomic.Int64
	registry *metrics.Registry
	logger   *xlog.Logger
	sysLog   *xlog.ScopedLogger
	lbLog    *xlog.ScopedLogger

	selectMu sync.Mutex
	selector *Selector

	running      atomic.Bool
	startOnce    sync.Once
	shutdownOnce sync.Once
}

// New constructs a Coordinator. logger and registry may be nil; both
// are optional ambient wiring.
func New(cfg config.Config, logger *xlog.Logger, registry *metrics.Registry) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		selector: NewSelector(StrategyLeastLoaded),
	}
	if logger != nil {
		c.sysLog = logger.System()
		c.lbLog = logger.LoadBalancer()
	}
	return c
}

// Start performs the two-pass startup: build the full routing table
// first, then start every agent against it. Idempotent.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		table := make(kernel.RoutingTable, c.cfg.Cores)
		for i := 0; i < c.cfg.Cores; i++ {
			table[i] = kernel.New(kernel.Config{
				ID:            i,
				InboxCapacity: c.cfg.InboxCapacity,
				Quantum:       c.cfg.Quantum,
				CycleSleep:    c.cfg.CycleSleep,
				Seed:          int64(i) + 1,
				PIDCounter:    &c.pidGen,
				Logger:        c.logger,
				Metrics:       c.registry,
			})
		}
		c.table = table
		for _, a := range table {
			a.Start(table)
		}
		c.running.Store(true)
		if c.sysLog != nil {
			c.sysLog.Info("coordinator started", xlog.Int("cores", c.cfg.Cores))
		}
	})
}

// Shutdown broadcasts SHUTDOWN to every core and joins each worker.
// Idempotent; safe to call even if Start was never called.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		for _, a := range c.table {
			a.Deliver(proc.NewMessage(proc.SystemOrigin, a.ID(), proc.Shutdown, proc.NoProcess, ""))
		}
		for _, a := range c.table {
			a.Stop()
		}
		c.running.Store(false)
		if c.sysLog != nil {
			c.sysLog.Info("coordinator shut down")
		}
	})
}

// Running reports whether Start has completed and Shutdown has not.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Cores returns the number of cores this coordinator manages.
func (c *Coordinator) Cores() int { return len(c.table) }

// CreateProcess places a new process on the least-loaded core and
// returns its pid, or -1 if the coordinator is not running.
func (c *Coordinator) CreateProcess(priority int) int64 {
	if !c.running.Load() {
		if c.sysLog != nil {
			c.sysLog.Warn("create refused", xlog.Err(kernel.ErrNotRunning))
		}
		return -1
	}
	if total := c.totalLoad(); total >= c.cfg.MaxProcesses {
		if c.sysLog != nil {
			c.sysLog.Warn("create refused, system at max process capacity",
				xlog.Int("max_processes", c.cfg.MaxProcesses))
		}
		return -1
	}
	idx := c.leastLoadedCore()
	return c.table[idx].CreateLocalProcess(priority)
}

// MigrateProcess asks the source core to hand pid off to target.
// Returns false if the coordinator is not running, on an out-of-range
// core index, or on an unowned pid.
func (c *Coordinator) MigrateProcess(pid int64, source, target int) bool {
	if !c.running.Load() {
		if c.sysLog != nil {
			c.sysLog.Warn("migrate refused", xlog.Err(kernel.ErrNotRunning))
		}
		return false
	}
	if source < 0 || source >= len(c.table) || target < 0 || target >= len(c.table) {
		if c.sysLog != nil {
			c.sysLog.Warn("migrate refused, core index out of range", xlog.Err(kernel.ErrUnknownCore))
		}
		return false
	}
	return c.table[source].MigrateProcess(pid, target)
}

// totalLoad sums every core's current load, used to enforce the
// system-wide process cap before a new process is placed.
func (c *Coordinator) totalLoad() int {
	total := 0
	for _, a := range c.table {
		total += a.Load()
	}
	return total
}

// leastLoadedCore scans every core's current load and returns the
// index of the lightest one, ties broken by lowest index. The loads
// are read before the selection mutex is taken, so the mutex is held
// only while the selector picks over them, never while calling into an
// agent.
func (c *Coordinator) leastLoadedCore() int {
	loads := make([]int, len(c.table))
	for i, a := range c.table {
		loads[i] = a.Load()
	}

	c.selectMu.Lock()
	idx := c.selector.Select(loads)
	c.selectMu.Unlock()
	return idx
}

// BalanceLoad inspects every core's load, and for each core running
// hotter than overloadFactor times the system average, migrates one
// process to the coolest core running colder than underloadFactor
// times the average. It never holds a lock while calling into an
// agent, so concurrent callers never block each other across a
// migration round-trip.
func (c *Coordinator) BalanceLoad() {
	n := len(c.table)
	if n == 0 {
		return
	}

	loads := make([]int, n)
	total := 0
	for i, a := range c.table {
		loads[i] = a.Load()
		total += loads[i]
	}
	avg := float64(total) / float64(n)

	for i, l := range loads {
		if float64(l) <= overloadFactor*avg {
			continue
		}
		target := coolestUnder(loads, underloadFactor*avg, i)
		if target == -1 {
			continue
		}
		pid, ok := c.table[i].AnyPID()
		if !ok {
			continue
		}
		if c.table[i].MigrateProcess(pid, target) {
			if c.lbLog != nil {
				c.lbLog.Info("migrated process to relieve overloaded core",
					xlog.Int64("pid", pid), xlog.Int("from", i), xlog.Int("to", target))
			}
		}
	}
}

// coolestUnder returns the lowest-loaded index whose load is strictly
// below threshold, excluding exclude. Returns -1 if none qualifies.
func coolestUnder(loads []int, threshold float64, exclude int) int {
	best := -1
	for i, l := range loads {
		if i == exclude || float64(l) >= threshold {
			continue
		}
		if best == -1 || l < loads[best] {
			best = i
		}
	}
	return best
}

// HeartbeatFanout has core 0 broadcast a HEARTBEAT to every other
// core, the system's periodic liveness signal.
func (c *Coordinator) HeartbeatFanout() {
	if len(c.table) == 0 {
		return
	}
	c.table[0].Broadcast(proc.Heartbeat, proc.NoProcess, "")
}

// ResourceDemo drives a minimal two-message round trip: core 0 sends a
// RESOURCE_REQUEST to core 1, and core 1 sends a RESOURCE_RELEASE back
// in the same call, without waiting for the request to arrive. Both
// legs are fire-and-forget sends; this models the handshake shape
// without blocking either core on a reply.
func (c *Coordinator) ResourceDemo() {
	if len(c.table) < 2 {
		return
	}
	source, target := c.table[0], c.table[1]
	source.Send(proc.NewMessage(source.ID(), target.ID(), proc.ResourceRequest, proc.NoProcess, ""))
	target.Send(proc.NewMessage(target.ID(), source.ID(), proc.ResourceRelease, proc.NoProcess, ""))
}

// AggregateStatistics bundles a per-core snapshot with system-wide
// totals and the derived overhead/delivery metrics.
type AggregateStatistics struct {
	PerCore         []kernel.Statistics
	Totals          kernel.Statistics
	CommOverheadPct float64
	DeliveryRatePct float64
}

// GetStatistics snapshots every core and computes the system-wide
// derived counters.
func (c *Coordinator) GetStatistics() AggregateStatistics {
	per := make([]kernel.Statistics, len(c.table))
	var totals kernel.Statistics
	for i, a := range c.table {
		s := a.Statistics()
		per[i] = s
		totals.MessagesSent += s.MessagesSent
		totals.MessagesReceived += s.MessagesReceived
		totals.ProcessesExecuted += s.ProcessesExecuted
		totals.ContextSwitches += s.ContextSwitches
		totals.CurrentLoad += s.CurrentLoad
	}

	agg := AggregateStatistics{
		PerCore:         per,
		Totals:          totals,
		CommOverheadPct: commOverheadPct(totals),
		DeliveryRatePct: deliveryRatePct(totals),
	}
	if c.registry != nil {
		c.registry.CommOverheadPct.Set(agg.CommOverheadPct)
		c.registry.DeliveryRatePct.Set(agg.DeliveryRatePct)
	}
	return agg
}

// commOverheadPct is the share of total scheduler+message work spent
// on messaging: messages / (messages + processes_executed) * 100.
func commOverheadPct(t kernel.Statistics) float64 {
	messages := t.MessagesSent + t.MessagesReceived
	denom := messages + t.ProcessesExecuted
	if denom == 0 {
		return 0
	}
	return float64(messages) / float64(denom) * 100
}

// deliveryRatePct is the share of sent messages that were received:
// messages_received / messages_sent * 100. A sender counts a message
// just after pushing it and the per-core snapshots are not taken
// atomically, so a reading taken while messages are in flight can
// briefly exceed 100.
func deliveryRatePct(t kernel.Statistics) float64 {
	if t.MessagesSent == 0 {
		return 100
	}
	return float64(t.MessagesReceived) / float64(t.MessagesSent) * 100
}
