//go:build test

package testutils

import (
	"fmt"
	"sync"
	"time"
)

// ListenerEvent is one callback observed by RecordingListener.
type ListenerEvent struct {
	Kind    string // "date", "temperature", "clicks"
	Time    time.Time
	Celsius float64
	Count   int
}

func (e ListenerEvent) String() string {
	switch e.Kind {
	case "date":
		return fmt.Sprintf("date(%s)", e.Time.Format(time.RFC3339))
	case "temperature":
		return fmt.Sprintf("temperature(%.1f)", e.Celsius)
	case "clicks":
		return fmt.Sprintf("clicks(%d)", e.Count)
	default:
		return e.Kind
	}
}

// RecordingListener records domain events in arrival order.
type RecordingListener struct {
	mu     sync.Mutex
	events []ListenerEvent
	notify chan struct{}
}

func NewRecordingListener() *RecordingListener {
	return &RecordingListener{notify: make(chan struct{}, 1)}
}

func (r *RecordingListener) DateUpdate(t time.Time) {
	r.add(ListenerEvent{Kind: "date", Time: t})
}

func (r *RecordingListener) TemperatureUpdate(celsius float64) {
	r.add(ListenerEvent{Kind: "temperature", Celsius: celsius})
}

func (r *RecordingListener) ClickCountUpdate(count int) {
	r.add(ListenerEvent{Kind: "clicks", Count: count})
}

func (r *RecordingListener) add(e ListenerEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *RecordingListener) Events() []ListenerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ListenerEvent(nil), r.events...)
}

// Strings returns the recorded events in their String form.
func (r *RecordingListener) Strings() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// WaitFor blocks until at least n events were recorded or timeout elapses.
func (r *RecordingListener) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		count := len(r.events)
		r.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return false
		}
	}
}
