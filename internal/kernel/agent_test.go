package kernel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/multikernel/internal/inbox"
	"github.com/nmxmxh/multikernel/internal/proc"
)

func newTestTable(n int, pidGen *atomic.Int64) RoutingTable {
	table := make(RoutingTable, n)
	for i := 0; i < n; i++ {
		table[i] = New(Config{
			ID:            i,
			InboxCapacity: inbox.DefaultCapacity,
			Quantum:       50 * time.Millisecond,
			CycleSleep:    5 * time.Millisecond,
			Seed:          int64(i) + 1,
			PIDCounter:    pidGen,
		})
	}
	return table
}

func startAll(table RoutingTable) {
	for _, a := range table {
		a.Start(table)
	}
}

func stopAll(table RoutingTable) {
	for _, a := range table {
		a.Stop()
	}
}

func TestAgent_CreateLocalProcess_PlacesReadyPCB(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	defer stopAll(table)

	pid := table[0].CreateLocalProcess(5)
	assert.GreaterOrEqual(t, pid, int64(1))
	assert.Equal(t, 1, table[0].Load())
	assert.Equal(t, 0, table[1].Load())
}

func TestAgent_CreateLocalProcess_RefusedWhenStopped(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(1, &pidGen)
	// Never started: running is false.
	pid := table[0].CreateLocalProcess(5)
	assert.Equal(t, int64(-1), pid)
}

func TestAgent_MigrateProcess_MovesOwnershipWithinOneCycle(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	defer stopAll(table)

	pid := table[0].CreateLocalProcess(5)
	require.True(t, table[0].MigrateProcess(pid, 1))
	assert.Equal(t, 0, table[0].Load())

	require.Eventually(t, func() bool {
		return table[1].Load() == 1
	}, time.Second, 5*time.Millisecond)

	stats0 := table[0].Statistics()
	assert.EqualValues(t, 1, stats0.MessagesSent)
}

func TestAgent_MigrateProcess_RefusedWhenStopped(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	pid := table[0].CreateLocalProcess(5)
	require.GreaterOrEqual(t, pid, int64(1))
	stopAll(table)

	assert.False(t, table[0].MigrateProcess(pid, 1))
	assert.Equal(t, 1, table[0].Load(), "refused migration must leave the PCB in place")
}

func TestAgent_MigrateProcess_CarriesTraceIDForward(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	defer stopAll(table)

	pid := table[0].CreateLocalProcess(5)

	table[0].mu.Lock()
	originalTrace := table[0].processes[pid].TraceID
	table[0].mu.Unlock()
	require.NotEmpty(t, originalTrace)

	require.True(t, table[0].MigrateProcess(pid, 1))

	require.Eventually(t, func() bool {
		return table[1].Load() == 1
	}, time.Second, 5*time.Millisecond)

	table[1].mu.Lock()
	migratedTrace := table[1].processes[pid].TraceID
	table[1].mu.Unlock()
	assert.Equal(t, originalTrace, migratedTrace, "trace id must survive a migration unchanged")
}

func TestAgent_MigrateProcess_UnknownPidReturnsFalse(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	defer stopAll(table)

	assert.False(t, table[0].MigrateProcess(999, 1))
}

func TestAgent_TerminateProcess_UnknownPidIsIgnored(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(1, &pidGen)
	startAll(table)
	defer stopAll(table)

	table[0].TerminateProcess(12345) // must not panic
	assert.Equal(t, 0, table[0].Load())
}

func TestAgent_Broadcast_SendsToEveryOtherCore(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(8, &pidGen)
	startAll(table)
	defer stopAll(table)

	table[0].Broadcast(proc.Heartbeat, proc.NoProcess, "")

	require.Eventually(t, func() bool {
		for i := 1; i < 8; i++ {
			if table[i].Statistics().MessagesReceived < 1 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 7, table[0].Statistics().MessagesSent)
}

func TestAgent_Send_InvalidDestIsDroppedNotPanicked(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(2, &pidGen)
	startAll(table)
	defer stopAll(table)

	table[0].Send(proc.NewMessage(0, 99, proc.Heartbeat, proc.NoProcess, ""))
	assert.EqualValues(t, 0, table[0].Statistics().MessagesSent)
}

func TestAgent_Send_BackpressureDropsWithoutBlocking(t *testing.T) {
	var pidGen atomic.Int64
	table := make(RoutingTable, 2)
	table[0] = New(Config{ID: 0, InboxCapacity: 4, Quantum: time.Hour, CycleSleep: time.Hour, PIDCounter: &pidGen, Seed: 1})
	table[1] = New(Config{ID: 1, InboxCapacity: 4, Quantum: time.Hour, CycleSleep: time.Hour, PIDCounter: &pidGen, Seed: 2})
	table[0].table = table
	table[1].table = table // wire manually; workers never started, so inbox never drains

	for i := 0; i < 4; i++ {
		table[0].Send(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, ""))
	}
	assert.EqualValues(t, 4, table[0].Statistics().MessagesSent)

	table[0].Send(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, ""))
	assert.EqualValues(t, 4, table[0].Statistics().MessagesSent, "5th send must be rejected, not counted")
	assert.Equal(t, 4, table[1].Inbox().Len())
}

func TestAgent_StochasticTermination_HighCPUTimeMostlyTerminates(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(1, &pidGen)
	a := table[0]
	a.running.Store(true)

	const trials = 500
	terminated := 0
	for i := 0; i < trials; i++ {
		a.mu.Lock()
		a.processes = map[int64]*proc.PCB{
			1: {PID: 1, CoreID: 0, State: proc.Running, CPUTime: 700 * time.Millisecond},
		}
		a.mu.Unlock()
		a.schedulerPass()
		if a.Load() == 0 {
			terminated++
		}
	}
	// Expect ~80% termination; allow statistical slack.
	assert.Greater(t, terminated, trials*6/10)
}

func TestAgent_Stop_IsIdempotentAndJoinsWorker(t *testing.T) {
	var pidGen atomic.Int64
	table := newTestTable(1, &pidGen)
	startAll(table)
	table[0].Stop()
	table[0].Stop() // must not panic or block
	assert.False(t, table[0].Running())
}
