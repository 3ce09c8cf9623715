package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_StampsTimestampAndTrace(t *testing.T) {
	m := NewMessage(1, 2, Migrate, 42, "priority=7")
	require.NotZero(t, m.Timestamp)
	assert.NotEmpty(t, m.TraceID)
	assert.Equal(t, "priority=7", m.PayloadString())
	assert.Equal(t, "MIGRATE", m.Type.String())
}

func TestNewMessageWithTrace_PropagatesSuppliedTrace(t *testing.T) {
	m := NewMessageWithTrace(1, 2, Migrate, 42, "priority=7", "trace-abc")
	assert.Equal(t, "trace-abc", m.TraceID)
}

func TestNewMessageWithTrace_EmptyTraceFallsBackToFreshOne(t *testing.T) {
	m := NewMessageWithTrace(1, 2, Create, 42, "priority=7", "")
	assert.NotEmpty(t, m.TraceID)
}

func TestNewTraceID_ReturnsNonEmptyUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	assert.NotEqual(t, a, b)
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"well formed", "priority=8", 8},
		{"missing key", "foo=bar", DefaultPriority},
		{"out of range", "priority=42", DefaultPriority},
		{"trailing fields", "priority=3;core=1", 3},
		{"non numeric", "priority=abc", DefaultPriority},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParsePriority(tc.payload))
		})
	}
}

func TestMessageType_String_Unknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", MessageType(99).String())
}

func TestProcessState_String(t *testing.T) {
	assert.Equal(t, "READY", Ready.String())
	assert.Equal(t, "TERMINATED", Terminated.String())
	assert.Equal(t, "UNKNOWN", ProcessState(99).String())
}
