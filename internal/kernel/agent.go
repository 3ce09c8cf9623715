// Package kernel implements the core kernel agent: the sole mutator of
// its process table, the sole consumer of its inbox, and the unit that
// runs one scheduler pass per cycle.
package kernel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmxmxh/multikernel/internal/inbox"
	"github.com/nmxmxh/multikernel/internal/metrics"
	"github.com/nmxmxh/multikernel/internal/proc"
	"github.com/nmxmxh/multikernel/internal/xlog"
)

// RoutingTable is the coordinator-owned, stable-for-the-system's-life
// map from core id to agent handle. Every agent holds a read-only copy
// of the same slice; it is never mutated after Start.
type RoutingTable []*Agent

// Agent is one simulated core: a private inbox, a private PCB table,
// and one dedicated worker goroutine. No two Agents ever share a lock.
type Agent struct {
	id int

	inbox    *inbox.Inbox
	table    RoutingTable // set once by Start, read-only thereafter
	pidGen   *atomic.Int64
	quantum  time.Duration
	cycle    time.Duration
	rng      *rand.Rand
	stats    coreStats
	logger   *xlog.ScopedLogger
	msgLog   func(src, dst int, typ fmt.Stringer, fields ...xlog.Field)
	registry *metrics.Registry

	mu        sync.Mutex
	processes map[int64]*proc.PCB

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// Config bundles an Agent's fixed parameters.
type Config struct {
	ID            int
	InboxCapacity int
	Quantum       time.Duration
	CycleSleep    time.Duration
	Seed          int64
	PIDCounter    *atomic.Int64
	Logger        *xlog.Logger
	Metrics       *metrics.Registry
}

// New constructs an Agent in the stopped state; call Start once the
// full RoutingTable is built (two-pass startup keeps every agent from
// ever observing a half-initialized peer).
func New(cfg Config) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		id:        cfg.ID,
		inbox:     inbox.New(cfg.InboxCapacity),
		pidGen:    cfg.PIDCounter,
		quantum:   cfg.Quantum,
		cycle:     cfg.CycleSleep,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		processes: make(map[int64]*proc.PCB),
		registry:  cfg.Metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.Logger != nil {
		a.logger = cfg.Logger.Core(cfg.ID)
		a.msgLog = cfg.Logger.Msg
	}
	return a
}

// ID returns the core id.
func (a *Agent) ID() int { return a.id }

// Inbox exposes the mailbox for test drivers that want to exercise
// PopBlocking directly.
func (a *Agent) Inbox() *inbox.Inbox { return a.inbox }

// Start is idempotent: it records the routing table, marks the agent
// running, and spawns exactly one worker goroutine.
func (a *Agent) Start(table RoutingTable) {
	a.startOnce.Do(func() {
		a.table = table
		a.running.Store(true)
		a.wg.Add(1)
		go a.run()
	})
}

// Stop is idempotent: it stops accepting scheduler cycles, wakes any
// blocked consumer, and joins the worker.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.running.Store(false)
		a.cancel()
		a.inbox.WakeAll()
		a.wg.Wait()
	})
}

// Running reports whether the agent is currently accepting operations.
func (a *Agent) Running() bool { return a.running.Load() }

func (a *Agent) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}

		a.drainInbox()

		if !a.running.Load() {
			return
		}

		a.schedulerPass()

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(a.cycle):
		}
	}
}

func (a *Agent) drainInbox() {
	for {
		msg, ok := a.inbox.PopNonBlocking()
		if !ok {
			return
		}
		a.dispatch(msg)
		if !a.running.Load() {
			return
		}
	}
}

func (a *Agent) dispatch(msg proc.Message) {
	latencyUs := time.Since(msg.Timestamp).Microseconds()
	a.stats.avgLatencyUs.Store(latencyUs)
	a.stats.messagesReceived.Add(1)
	if a.registry != nil {
		a.registry.MessagesReceived.WithLabelValues(fmt.Sprint(a.id)).Inc()
		a.registry.AvgLatencyMicros.WithLabelValues(fmt.Sprint(a.id)).Set(float64(latencyUs))
	}

	switch msg.Type {
	case proc.Create:
		priority := proc.ParsePriority(msg.PayloadString())
		a.createLocalProcess(priority, msg.TraceID)
	case proc.Migrate:
		a.acceptMigration(msg)
	case proc.Terminate:
		a.TerminateProcess(msg.ProcessID)
	case proc.Heartbeat:
		if a.logger != nil {
			a.logger.Debug("heartbeat received", xlog.Int("from", msg.SourceCore))
		}
	case proc.ResourceRequest, proc.ResourceRelease, proc.SyncBarrier:
		if a.logger != nil {
			a.logger.Info("transport message accepted", xlog.String("type", msg.Type.String()))
		}
	case proc.Shutdown:
		a.running.Store(false)
		if a.logger != nil {
			a.logger.Info("shutdown received")
		}
	default:
		if a.logger != nil {
			a.logger.Warn("unknown message type discarded", xlog.Int("type", int(msg.Type)))
		}
	}
}

// acceptMigration applies an inbound MIGRATE. A pid that already
// exists locally is accepted and overwritten, but logged as a warning
// since it is a sign of malformed traffic rather than a normal
// handoff.
func (a *Agent) acceptMigration(msg proc.Message) {
	priority := proc.ParsePriority(msg.PayloadString())

	a.mu.Lock()
	if _, exists := a.processes[msg.ProcessID]; exists && a.logger != nil {
		a.logger.Warn("MIGRATE arrived for a pid already present on this core",
			xlog.Int64("pid", msg.ProcessID))
	}
	a.processes[msg.ProcessID] = &proc.PCB{
		PID:          msg.ProcessID,
		CoreID:       a.id,
		State:        proc.Ready,
		Priority:     priority,
		CreationTime: time.Now(),
		TraceID:      msg.TraceID,
	}
	load := len(a.processes)
	a.mu.Unlock()

	a.stats.currentLoad.Store(int64(load))
	a.observeLoad(load)
}

// CreateLocalProcess allocates a new pid from the process-wide counter
// and appends a READY PCB, originating a fresh trace id for it. The
// coordinator calls it directly for initial placement; the CREATE
// dispatch handler uses createLocalProcess instead. Returns -1 if the
// agent is not running.
func (a *Agent) CreateLocalProcess(priority int) int64 {
	return a.createLocalProcess(priority, proc.NewTraceID())
}

// createLocalProcess is CreateLocalProcess with an explicit trace id,
// so the CREATE dispatch handler can carry forward the trace id of the
// message that triggered it instead of minting a new one.
func (a *Agent) createLocalProcess(priority int, traceID string) int64 {
	if !a.running.Load() {
		if a.logger != nil {
			a.logger.Warn("create refused", xlog.Err(ErrNotRunning))
		}
		return -1
	}
	if priority < 0 || priority > 10 {
		priority = proc.DefaultPriority
	}

	pid := a.pidGen.Add(1)

	a.mu.Lock()
	a.processes[pid] = &proc.PCB{
		PID:          pid,
		CoreID:       a.id,
		State:        proc.Ready,
		Priority:     priority,
		CreationTime: time.Now(),
		TraceID:      traceID,
	}
	load := len(a.processes)
	a.mu.Unlock()

	a.stats.currentLoad.Store(int64(load))
	a.observeLoad(load)
	return pid
}

// MigrateProcess emits a MIGRATE message carrying pid to target, then
// removes the local PCB — enqueue-then-remove, so the target can never
// observe the pid on both cores at once. The outbound message carries
// the pid's own trace id forward unchanged, so a process's relocation
// history stays correlated across hops. Returns false if the agent is
// not running or pid is not owned locally.
func (a *Agent) MigrateProcess(pid int64, target int) bool {
	if !a.running.Load() {
		if a.logger != nil {
			a.logger.Warn("migrate refused", xlog.Err(ErrNotRunning))
		}
		return false
	}

	a.mu.Lock()
	pcb, ok := a.processes[pid]
	if !ok {
		a.mu.Unlock()
		return false
	}
	payload := fmt.Sprintf("priority=%d", pcb.Priority)
	trace := pcb.TraceID
	a.mu.Unlock()

	msg := proc.NewMessageWithTrace(a.id, target, proc.Migrate, pid, payload, trace)
	a.Send(msg)

	a.mu.Lock()
	delete(a.processes, pid)
	load := len(a.processes)
	a.mu.Unlock()

	a.stats.currentLoad.Store(int64(load))
	a.observeLoad(load)
	return true
}

// TerminateProcess removes the PCB if present; unknown pids are
// silently ignored.
func (a *Agent) TerminateProcess(pid int64) {
	a.mu.Lock()
	_, ok := a.processes[pid]
	if ok {
		delete(a.processes, pid)
	}
	load := len(a.processes)
	a.mu.Unlock()

	if ok {
		a.stats.currentLoad.Store(int64(load))
		a.observeLoad(load)
	}
}

// Send validates dest_core, routes through the table, and pushes into
// the peer's inbox. It never blocks and never panics on a full queue.
func (a *Agent) Send(msg proc.Message) {
	if msg.DestCore < 0 || msg.DestCore >= len(a.table) {
		if a.logger != nil {
			a.logger.Error("dropping message to invalid dest_core",
				xlog.Int("dest", msg.DestCore), xlog.Err(ErrUnknownCore))
		}
		return
	}

	peer := a.table[msg.DestCore]
	result := peer.Deliver(msg)
	switch result {
	case inbox.Accepted:
		a.stats.messagesSent.Add(1)
		if a.registry != nil {
			a.registry.MessagesSent.WithLabelValues(fmt.Sprint(a.id)).Inc()
		}
		if a.msgLog != nil {
			a.msgLog(msg.SourceCore, msg.DestCore, msg.Type, xlog.String("trace", msg.TraceID))
		}
	case inbox.RejectedFull:
		if a.logger != nil {
			a.logger.Warn("peer inbox full, message dropped",
				xlog.Int("dest", msg.DestCore), xlog.String("type", msg.Type.String()))
		}
	}
}

// Broadcast emits one addressed copy of typ to every other core. A
// broadcast to N cores is modeled as N-1 individual sends, each
// stamped with its own enqueue-time timestamp.
func (a *Agent) Broadcast(typ proc.MessageType, pid int64, payload string) {
	for dest := 0; dest < len(a.table); dest++ {
		if dest == a.id {
			continue
		}
		a.Send(proc.NewMessage(a.id, dest, typ, pid, payload))
	}
}

// Deliver is the only way another agent (or the coordinator, for
// control traffic like SHUTDOWN) pushes a message into this agent's
// inbox.
func (a *Agent) Deliver(msg proc.Message) inbox.PushResult {
	return a.inbox.Push(msg)
}

// Statistics returns a snapshot of this core's counters.
func (a *Agent) Statistics() Statistics {
	return a.stats.snapshot()
}

// Load returns the current process-table size without taking a
// counters snapshot.
func (a *Agent) Load() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.processes)
}

// AnyPID returns an arbitrary locally owned pid, used by the
// coordinator's load balancer to pick a migration candidate. Map
// iteration order is unspecified; balance_load only needs *a*
// migratable process on an overloaded core, not a particular one.
func (a *Agent) AnyPID() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for pid := range a.processes {
		return pid, true
	}
	return 0, false
}

// terminationProbability implements the stochastic termination policy:
// terminating probability grows monotonically with accumulated
// cpu_time.
func terminationProbability(cpuTime time.Duration) float64 {
	switch {
	case cpuTime > 600*time.Millisecond:
		return 0.8
	case cpuTime > 300*time.Millisecond:
		return 0.5
	case cpuTime > 150*time.Millisecond:
		return 0.3
	default:
		return 0.2
	}
}

// schedulerPass runs one cycle's worth of execution over every locally
// owned PCB: promote to RUNNING, charge one quantum, roll the
// termination policy, then sweep TERMINATED entries.
func (a *Agent) schedulerPass() {
	a.mu.Lock()
	executed := 0
	for _, pcb := range a.processes {
		if pcb.State == proc.Ready || pcb.State == proc.Running {
			pcb.State = proc.Running
		}
		pcb.CPUTime += a.quantum
		executed++

		if a.rng.Float64() < terminationProbability(pcb.CPUTime) {
			pcb.State = proc.Terminated
		}
	}

	for pid, pcb := range a.processes {
		if pcb.State == proc.Terminated {
			delete(a.processes, pid)
		}
	}
	load := len(a.processes)
	a.mu.Unlock()

	if executed > 0 {
		a.stats.processesExecuted.Add(int64(executed))
		a.stats.contextSwitches.Add(int64(executed))
		if a.registry != nil {
			a.registry.ProcessesExecuted.WithLabelValues(fmt.Sprint(a.id)).Add(float64(executed))
			a.registry.ContextSwitches.WithLabelValues(fmt.Sprint(a.id)).Add(float64(executed))
		}
	}
	a.stats.currentLoad.Store(int64(load))
	a.observeLoad(load)
}

func (a *Agent) observeLoad(load int) {
	if a.registry == nil {
		return
	}
	a.registry.CurrentLoad.WithLabelValues(fmt.Sprint(a.id)).Set(float64(load))
}
