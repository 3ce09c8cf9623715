// Package smp implements the deliberately pessimistic baseline the
// multikernel design is contrasted against: N worker goroutines
// sharing one process table behind a single global mutex. It exists
// to be worse, not to be tuned — every access pays for the lock even
// where a reader or a sharded table would avoid it, so the system's
// lock_contentions and cache_invalidations counters accumulate the
// way a textbook SMP kernel's would.
package smp

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmxmxh/multikernel/internal/metrics"
	"github.com/nmxmxh/multikernel/internal/proc"
	"github.com/nmxmxh/multikernel/internal/xlog"
)

// Config bundles a Baseline's fixed parameters.
type Config struct {
	Workers    int
	Quantum    time.Duration
	CycleSleep time.Duration
	Seed       int64
	Logger     *xlog.Logger
	Metrics    *metrics.Registry
}

// Baseline is the single-lock SMP kernel: one mutex, one process map,
// N worker goroutines each running their own scheduler pass against
// the shared table. Every acquire of mu bumps lockContentions; every
// structural mutation of the shared table bumps cacheInvalidations,
// standing in for the cache-line bouncing a real SMP box would suffer
// under this contention pattern.
type Baseline struct {
	mu        sync.Mutex
	processes map[int64]*proc.PCB
	nextPID   int64

	workers  int
	quantum  time.Duration
	cycle    time.Duration
	rng      *rand.Rand
	rngMu    sync.Mutex // guards the shared RNG; only taken while mu is held
	logger   *xlog.ScopedLogger
	registry *metrics.Registry

	lockContentions    atomic.Int64
	cacheInvalidations atomic.Int64
	processesExecuted  atomic.Int64
	contextSwitches    atomic.Int64

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Baseline in the stopped state.
func New(cfg Config) *Baseline {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Baseline{
		processes: make(map[int64]*proc.PCB),
		workers:   cfg.Workers,
		quantum:   cfg.Quantum,
		cycle:     cfg.CycleSleep,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		registry:  cfg.Metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.Logger != nil {
		b.logger = cfg.Logger.SMP()
	}
	return b
}

// Start launches the worker pool. Idempotent.
func (b *Baseline) Start() {
	b.startOnce.Do(func() {
		b.running.Store(true)
		for i := 0; i < b.workers; i++ {
			b.wg.Add(1)
			go b.worker(i)
		}
	})
}

// Stop halts every worker and joins them. Idempotent.
func (b *Baseline) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		b.cancel()
		b.wg.Wait()
	})
}

// Running reports whether the worker pool is active.
func (b *Baseline) Running() bool { return b.running.Load() }

func (b *Baseline) worker(id int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}
		b.schedulerPass(id)
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.cycle):
		}
	}
}

// CreateProcess appends a READY PCB under the global lock. Unlike the
// multikernel agent's per-core table, every worker contends for the
// same mutex here regardless of which worker happens to run the new
// process first.
func (b *Baseline) CreateProcess(priority int) int64 {
	if !b.running.Load() {
		return -1
	}
	if priority < 0 || priority > 10 {
		priority = proc.DefaultPriority
	}

	b.mu.Lock()
	b.lockContentions.Add(1)
	b.nextPID++
	pid := b.nextPID
	b.processes[pid] = &proc.PCB{
		PID:          pid,
		State:        proc.Ready,
		Priority:     priority,
		CreationTime: time.Now(),
	}
	b.cacheInvalidations.Add(1)
	b.mu.Unlock()
	return pid
}

// TerminateProcess removes a PCB under the global lock; unknown pids
// are silently ignored.
func (b *Baseline) TerminateProcess(pid int64) {
	b.mu.Lock()
	b.lockContentions.Add(1)
	if _, ok := b.processes[pid]; ok {
		delete(b.processes, pid)
		b.cacheInvalidations.Add(1)
	}
	b.mu.Unlock()
}

// Load reports the shared table's current size, taking the same lock
// every mutator does — a deliberate contrast with the multikernel
// agent's Load, which never contends with a peer core.
func (b *Baseline) Load() int {
	b.mu.Lock()
	b.lockContentions.Add(1)
	n := len(b.processes)
	b.mu.Unlock()
	return n
}

// schedulerPass runs one tick of every PCB currently in the shared
// table, holding the global mutex for the entire pass: no other
// worker can create, terminate, or even read Load while this runs.
func (b *Baseline) schedulerPass(workerID int) {
	b.mu.Lock()
	b.lockContentions.Add(1)

	executed := 0
	for _, pcb := range b.processes {
		if pcb.State == proc.Ready || pcb.State == proc.Running {
			pcb.State = proc.Running
		}
		pcb.CPUTime += b.quantum
		executed++

		if b.roll() < terminationProbability(pcb.CPUTime) {
			pcb.State = proc.Terminated
		}
	}
	invalidated := 0
	for pid, pcb := range b.processes {
		if pcb.State == proc.Terminated {
			delete(b.processes, pid)
			b.cacheInvalidations.Add(1)
			invalidated++
		}
	}
	b.mu.Unlock()

	if executed > 0 {
		b.processesExecuted.Add(int64(executed))
		b.contextSwitches.Add(int64(executed))
		if b.registry != nil {
			b.registry.SMPLockContentions.Add(float64(executed))
			if invalidated > 0 {
				b.registry.SMPCacheInvalidation.Add(float64(invalidated))
			}
		}
	}
	if b.logger != nil {
		b.logger.Debug("scheduler pass complete", xlog.Int("worker", workerID), xlog.Int64("executed", int64(executed)))
	}
}

// roll draws from the shared RNG under its own lock. It is only called
// from schedulerPass while mu is held, so workers wait for the RNG
// behind the global lock: a single-lock baseline doesn't get to hand
// each worker its own private generator the way a multikernel agent
// does.
func (b *Baseline) roll() float64 {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64()
}

// terminationProbability mirrors the multikernel agent's stochastic
// termination policy so the two designs are comparable under
// identical workloads.
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

// Statistics is a point-in-time read of the baseline's counters.
type Statistics struct {
	LockContentions    int64
	CacheInvalidations int64
	ProcessesExecuted  int64
	ContextSwitches    int64
	CurrentLoad        int64
}

// Statistics snapshots the baseline's counters, taking the global
// lock one more time to read CurrentLoad consistently with the rest.
func (b *Baseline) Statistics() Statistics {
	return Statistics{
		LockContentions:    b.lockContentions.Load(),
		CacheInvalidations: b.cacheInvalidations.Load(),
		ProcessesExecuted:  b.processesExecuted.Load(),
		ContextSwitches:    b.contextSwitches.Load(),
		CurrentLoad:        int64(b.Load()),
	}
}
