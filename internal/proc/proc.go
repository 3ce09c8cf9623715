// Package proc defines the immutable message envelope and the mutable
// per-process record that every core kernel agent owns.
package proc

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of inter-core traffic carried by a Message.
type MessageType uint8

const (
	Create MessageType = iota
	Migrate
	Terminate
	ResourceRequest
	ResourceRelease
	SyncBarrier
	Heartbeat
	Shutdown
)

var messageTypeNames = map[MessageType]string{
	Create:          "CREATE",
	Migrate:         "MIGRATE",
	Terminate:       "TERMINATE",
	ResourceRequest: "RESOURCE_REQUEST",
	ResourceRelease: "RESOURCE_RELEASE",
	SyncBarrier:     "SYNC_BARRIER",
	Heartbeat:       "HEARTBEAT",
	Shutdown:        "SHUTDOWN",
}

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// MaxPayloadBytes is the fixed size of a Message's payload buffer.
const MaxPayloadBytes = 512

// SystemOrigin marks a Message as originating outside any core (e.g. the
// SHUTDOWN messages the coordinator delivers at shutdown).
const SystemOrigin = -1

// NoProcess marks a Message as unrelated to any particular process.
const NoProcess = -1

// Message is a value type: it is copied on send and never mutated after
// it leaves the sender. dest_core must be validated by the sender before
// enqueue; timestamp is always stamped by the sender, never the receiver.
type Message struct {
	SourceCore int
	DestCore   int
	Type       MessageType
	ProcessID  int64
	Payload    [MaxPayloadBytes]byte
	Timestamp  time.Time

	// TraceID correlates a message across logs; it plays no role in
	// routing or dispatch and exists purely for observability.
	TraceID string
}

// NewMessage builds a Message with the timestamp stamped at the moment
// of construction and a freshly minted trace id. Use this for any
// message that originates a trace rather than continuing one (HEARTBEAT,
// RESOURCE_REQUEST/RELEASE, SHUTDOWN, and the like).
func NewMessage(source, dest int, typ MessageType, pid int64, payload string) Message {
	return NewMessageWithTrace(source, dest, typ, pid, payload, NewTraceID())
}

// NewMessageWithTrace builds a Message carrying a caller-supplied trace
// id, so a CREATE/MIGRATE chain can propagate the same trace id across
// every hop instead of minting a new one each time. An empty traceID
// falls back to a freshly minted one.
func NewMessageWithTrace(source, dest int, typ MessageType, pid int64, payload, traceID string) Message {
	var m Message
	m.SourceCore = source
	m.DestCore = dest
	m.Type = typ
	m.ProcessID = pid
	m.Timestamp = time.Now()
	if traceID == "" {
		traceID = NewTraceID()
	}
	m.TraceID = traceID
	copy(m.Payload[:], payload)
	return m
}

// NewTraceID mints a fresh v4 UUID string for use as a Message or PCB
// trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// PayloadString returns the payload as a trimmed string, stopping at the
// first NUL byte the way a fixed-size C-style buffer would.
func (m Message) PayloadString() string {
	n := 0
	for n < len(m.Payload) && m.Payload[n] != 0 {
		n++
	}
	return string(m.Payload[:n])
}

// ProcessState is the lifecycle state of a ProcessControlBlock.
type ProcessState int

const (
	Ready ProcessState = iota
	Running
	Blocked
	Terminated
)

var processStateNames = map[ProcessState]string{
	Ready:      "READY",
	Running:    "RUNNING",
	Blocked:    "BLOCKED",
	Terminated: "TERMINATED",
}

func (s ProcessState) String() string {
	if s, ok := processStateNames[s]; ok {
		return s
	}
	return "UNKNOWN"
}

// PCB (ProcessControlBlock) is owned by exactly one agent's table at any
// instant. Pid is immutable; CoreID changes only through a MIGRATE
// handoff performed by the owning agent.
type PCB struct {
	PID          int64
	CoreID       int
	State        ProcessState
	Priority     int
	CreationTime time.Time
	CPUTime      time.Duration

	// TraceID is stamped once when the process is created and carried
	// forward unchanged by every subsequent MIGRATE of this pid, so a
	// process's full relocation history can be correlated in logs.
	TraceID string
}

// DefaultPriority is substituted whenever a CREATE/MIGRATE payload's
// priority field is missing or malformed.
const DefaultPriority = 5

// ParsePriority extracts "priority=<n>" from a key=value payload string,
// falling back to DefaultPriority on any parse failure.
func ParsePriority(payload string) int {
	const key = "priority="
	idx := strings.Index(payload, key)
	if idx < 0 {
		return DefaultPriority
	}
	rest := payload[idx+len(key):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return DefaultPriority
	}
	if end > 0 {
		rest = rest[:end]
	}
	val, err := strconv.Atoi(rest)
	if err != nil || val < 0 || val > 10 {
		return DefaultPriority
	}
	return val
}
