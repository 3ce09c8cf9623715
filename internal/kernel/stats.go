package kernel

import "sync/atomic"

// Statistics is a point-in-time, snapshot-style read of a core's
// counters. Fields may be slightly inconsistent with one another under
// concurrent mutation; that's acceptable for reporting purposes.
type Statistics struct {
	MessagesSent        int64
	MessagesReceived    int64
	ProcessesExecuted   int64
	ContextSwitches     int64
	AvgMessageLatencyUs int64
	CurrentLoad         int64
}

// coreStats holds the live atomic counters backing a Statistics
// snapshot. avgLatencyUs is a last-sample gauge, not a running mean.
type coreStats struct {
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	processesExecuted atomic.Int64
	contextSwitches   atomic.Int64
	avgLatencyUs      atomic.Int64
	currentLoad       atomic.Int64
}

func (s *coreStats) snapshot() Statistics {
	return Statistics{
		MessagesSent:        s.messagesSent.Load(),
		MessagesReceived:    s.messagesReceived.Load(),
		ProcessesExecuted:   s.processesExecuted.Load(),
		ContextSwitches:     s.contextSwitches.Load(),
		AvgMessageLatencyUs: s.avgLatencyUs.Load(),
		CurrentLoad:         s.currentLoad.Load(),
	}
}
