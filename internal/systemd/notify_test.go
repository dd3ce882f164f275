package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(r *recorder, interval time.Duration, err error) *Notifier {
	n := NewNotifier()
	n.notify = r.notify
	n.watchdogInterval = func(bool) (time.Duration, error) { return interval, err }
	return n
}

func TestNotifierStates(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 0, nil)

	n.Ready()
	n.Status("streaming cam")
	n.Stopping()

	want := []string{daemon.SdNotifyReady, "STATUS=streaming cam", daemon.SdNotifyStopping}
	if len(r.states) != len(want) {
		t.Fatalf("got %v, want %v", r.states, want)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, r.states[i], want[i])
		}
	}
}

func TestRunWatchdogDisabled(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"not configured", nil},
		{"bad settings", errors.New("bad WATCHDOG_USEC")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{}
			n := newTestNotifier(r, 0, tc.err)

			done := make(chan struct{})
			go func() {
				n.RunWatchdog(context.Background())
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("RunWatchdog should return when the watchdog is off")
			}
		})
	}
}

func TestRunWatchdogPings(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.RunWatchdog(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.count(daemon.SdNotifyWatchdog) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog was not pinged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
