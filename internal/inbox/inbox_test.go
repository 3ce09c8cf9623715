package inbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/multikernel/internal/proc"
)

func TestInbox_FIFOOrder(t *testing.T) {
	ib := New(10)
	for i := 0; i < 5; i++ {
		res := ib.Push(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, string(rune('a'+i))))
		require.Equal(t, Accepted, res)
	}
	var seen []string
	for {
		msg, ok := ib.PopNonBlocking()
		if !ok {
			break
		}
		seen = append(seen, msg.PayloadString())
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestInbox_RejectsWhenFull(t *testing.T) {
	ib := New(2)
	assert.Equal(t, Accepted, ib.Push(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, "")))
	assert.Equal(t, Accepted, ib.Push(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, "")))
	assert.Equal(t, RejectedFull, ib.Push(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, "")))

	stats := ib.Stats()
	assert.EqualValues(t, 2, stats.Enqueued)
	assert.EqualValues(t, 1, stats.Dropped)
}

func TestInbox_PopBlocking_TimesOut(t *testing.T) {
	ib := New(4)
	start := time.Now()
	_, ok := ib.PopBlocking(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestInbox_PopBlocking_WakesOnPush(t *testing.T) {
	ib := New(4)
	var wg sync.WaitGroup
	wg.Add(1)
	var got proc.Message
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = ib.PopBlocking(time.Second)

	}()
	time.Sleep(10 * time.Millisecond)
	ib.Push(proc.NewMessage(0, 1, proc.Heartbeat, proc.NoProcess, "hi"))
	wg.Wait()
	require.True(t, ok)
	assert.Equal(t, "hi", got.PayloadString())
}

func TestInbox_WakeAll_ReleasesBlockedConsumer(t *testing.T) {
	ib := New(4)
	done := make(chan struct{})
	go func() {
		ib.PopBlocking(5 * time.Second)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	ib.WakeAll()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PopBlocking did not wake on WakeAll")
	}
}
