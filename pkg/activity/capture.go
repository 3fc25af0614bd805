package activity

import (
	"context"
	"sync"
)

// CaptureHook keeps every event it is notified of. Tests and examples use it
// to assert what a service emitted.
type CaptureHook struct {
	// Err is returned from every Notify call when set.
	Err error

	mu     sync.Mutex
	events []Event
}

func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	h.events = append(h.events, NormalizeEvent(event))
	h.mu.Unlock()
	return h.Err
}

// Events returns a copy of what was captured so far.
func (h *CaptureHook) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// Verbs lists the captured verbs in order.
func (h *CaptureHook) Verbs() []string {
	events := h.Events()
	verbs := make([]string, len(events))
	for i, event := range events {
		verbs[i] = event.Verb
	}
	return verbs
}
