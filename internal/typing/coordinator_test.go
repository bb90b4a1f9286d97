// ABOUTME: Tests for typing debounce and remote indicator expiry.
// ABOUTME: Uses short timers and channels to observe announcements.

package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recorder collects announcements in order.
type recorder struct {
	mu     sync.Mutex
	events []bool
	ch     chan bool
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan bool, 16)}
}

func (r *recorder) record(v bool) {
	r.mu.Lock()
	r.events = append(r.events, v)
	r.mu.Unlock()
	r.ch <- v
}

func (r *recorder) all() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool{}, r.events...)
}

func (r *recorder) wait(t *testing.T, want bool) {
	t.Helper()
	select {
	case got := <-r.ch:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for announcement %v", want)
	}
}

func TestInputChanged_AnnouncesOncePerBurst(t *testing.T) {
	local := newRecorder()
	c := NewCoordinator(50*time.Millisecond, 0, local.record, nil)
	defer c.Stop()

	c.InputChanged("h")
	c.InputChanged("he")
	c.InputChanged("hel")

	local.wait(t, true)
	// Quiet period elapses once; a single stopped follows the single started.
	local.wait(t, false)
	assert.Equal(t, []bool{true, false}, local.all())
}

func TestInputChanged_KeystrokeReArmsTimer(t *testing.T) {
	local := newRecorder()
	c := NewCoordinator(80*time.Millisecond, 0, local.record, nil)
	defer c.Stop()

	c.InputChanged("a")
	local.wait(t, true)

	// Keep typing faster than the idle window; no stopped yet.
	for range 3 {
		time.Sleep(40 * time.Millisecond)
		c.InputChanged("more")
	}
	assert.Equal(t, []bool{true}, local.all())

	local.wait(t, false)
}

func TestInputChanged_ClearedFieldStopsImmediately(t *testing.T) {
	local := newRecorder()
	c := NewCoordinator(time.Minute, 0, local.record, nil)
	defer c.Stop()

	c.InputChanged("draft")
	local.wait(t, true)

	c.InputChanged("")
	local.wait(t, false)
}

// Typing expiry: a remote "typing" with no follow-up clears on its own.
func TestRemoteTyping_ExpiresWithoutStop(t *testing.T) {
	remote := newRecorder()
	c := NewCoordinator(0, 60*time.Millisecond, nil, remote.record)
	defer c.Stop()

	c.RemoteTyping(true)
	remote.wait(t, true)
	assert.True(t, c.RemoteActive())

	remote.wait(t, false)
	assert.False(t, c.RemoteActive())
}

func TestRemoteTyping_ExplicitStopWins(t *testing.T) {
	remote := newRecorder()
	c := NewCoordinator(0, time.Minute, nil, remote.record)
	defer c.Stop()

	c.RemoteTyping(true)
	remote.wait(t, true)
	c.RemoteTyping(false)
	remote.wait(t, false)

	assert.Equal(t, []bool{true, false}, remote.all())
}

func TestRemoteTyping_RepeatedStartsExtendExpiry(t *testing.T) {
	remote := newRecorder()
	c := NewCoordinator(0, 80*time.Millisecond, nil, remote.record)
	defer c.Stop()

	c.RemoteTyping(true)
	remote.wait(t, true)

	// Fresh started frames keep the indicator alive past one window.
	for range 3 {
		time.Sleep(40 * time.Millisecond)
		c.RemoteTyping(true)
	}
	assert.True(t, c.RemoteActive())

	remote.wait(t, false)
}

func TestStop_CancelsTimersAndSilences(t *testing.T) {
	local := newRecorder()
	remote := newRecorder()
	c := NewCoordinator(30*time.Millisecond, 30*time.Millisecond, local.record, remote.record)

	c.InputChanged("typing")
	local.wait(t, true)
	c.RemoteTyping(true)
	remote.wait(t, true)

	c.Stop()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, []bool{true}, local.all(), "no stopped announcement after Stop")
	assert.Equal(t, []bool{true}, remote.all())
	assert.False(t, c.RemoteActive())

	c.InputChanged("after stop")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []bool{true}, local.all(), "input after Stop is ignored")
}
