// internal/service/timers_test.go

package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTable_ArmFires(t *testing.T) {
	tt := NewTimerTable()
	var fired atomic.Int32

	tt.Arm("k", 10*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, tt.Pending("k"))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, tt.Pending("k"), "fired timer should leave the table")
}

func TestTimerTable_ArmReplacesPending(t *testing.T) {
	tt := NewTimerTable()
	var first, second atomic.Int32

	tt.Arm("k", 20*time.Millisecond, func() { first.Add(1) })
	tt.Arm("k", 10*time.Millisecond, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced timer must not fire")
}

func TestTimerTable_Cancel(t *testing.T) {
	tt := NewTimerTable()
	var fired atomic.Int32

	tt.Arm("k", 20*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, tt.Cancel("k"))
	assert.False(t, tt.Cancel("k"), "second cancel finds nothing")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerTable_CancelPrefix(t *testing.T) {
	tt := NewTimerTable()
	var fired atomic.Int32

	tt.Arm(graceTimerKey("ABC123", "s1"), 20*time.Millisecond, func() { fired.Add(1) })
	tt.Arm(graceTimerKey("ABC123", "s2"), 20*time.Millisecond, func() { fired.Add(1) })
	tt.Arm(graceTimerKey("XYZ789", "s3"), 20*time.Millisecond, func() { fired.Add(1) })

	n := tt.CancelPrefix(graceTimerPrefix + "ABC123:")
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "only the other room's timer fires")
}

func TestTimerTable_CancelAll(t *testing.T) {
	tt := NewTimerTable()
	var fired atomic.Int32

	tt.Arm("a", 15*time.Millisecond, func() { fired.Add(1) })
	tt.Arm("b", 15*time.Millisecond, func() { fired.Add(1) })
	tt.CancelAll()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, tt.Pending("a"))
	assert.False(t, tt.Pending("b"))
}

func TestTimerKeys(t *testing.T) {
	assert.Equal(t, "round:ABC123", roundTimerKey("ABC123"))
	assert.Equal(t, "grace:ABC123:sess-1", graceTimerKey("ABC123", "sess-1"))
}
