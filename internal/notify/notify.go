// Package notify owns leave-by alert delivery: a Notifier abstraction over
// the underlying notification service and a Scheduler that keeps the set of
// registered alerts in sync with the enriched snapshot.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	appLog "leavetimed/internal/log"
)

// Payload is what an alert shows when it fires.
type Payload struct {
	Title   string
	Body    string
	EventID string
}

// Notifier is the notification-service boundary. Identifiers are opaque to
// implementations; the Scheduler guarantees they carry its namespace
// prefix.
type Notifier interface {
	Schedule(identifier string, fireAt time.Time, payload Payload) error
	Cancel(identifier string) error
	CancelAllWithPrefix(prefix string) error
}

// MemoryNotifier records scheduled alerts in memory. Used in tests and as
// the fallback sink when no notify command is configured (alerts then only
// exist as log lines when the engine resyncs).
type MemoryNotifier struct {
	mu      sync.Mutex
	pending map[string]pendingAlert
}

type pendingAlert struct {
	fireAt  time.Time
	payload Payload
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{pending: map[string]pendingAlert{}}
}

func (m *MemoryNotifier) Schedule(identifier string, fireAt time.Time, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[identifier] = pendingAlert{fireAt: fireAt, payload: payload}
	return nil
}

func (m *MemoryNotifier) Cancel(identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, identifier)
	return nil
}

func (m *MemoryNotifier) CancelAllWithPrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.pending {
		if strings.HasPrefix(id, prefix) {
			delete(m.pending, id)
		}
	}
	return nil
}

// Pending returns the identifiers currently scheduled, for inspection.
func (m *MemoryNotifier) Pending() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.pending))
	for id, a := range m.pending {
		out[id] = a.fireAt
	}
	return out
}

// ExecNotifier delivers alerts by running a command (e.g. notify-send) when
// each alert's fire time arrives, using one in-process timer per alert.
type ExecNotifier struct {
	mu      sync.Mutex
	command string
	timers  map[string]*time.Timer
	closed  bool
}

func NewExecNotifier(command string) *ExecNotifier {
	return &ExecNotifier{
		command: command,
		timers:  map[string]*time.Timer{},
	}
}

func (n *ExecNotifier) Schedule(identifier string, fireAt time.Time, payload Payload) error {
	delay := time.Until(fireAt)
	if delay < 0 {
		return fmt.Errorf("notify: fire time %s already passed", fireAt)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("notify: notifier closed")
	}
	if t, ok := n.timers[identifier]; ok {
		t.Stop()
	}
	n.timers[identifier] = time.AfterFunc(delay, func() {
		n.fire(identifier, payload)
	})
	return nil
}

func (n *ExecNotifier) Cancel(identifier string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[identifier]; ok {
		t.Stop()
		delete(n.timers, identifier)
	}
	return nil
}

func (n *ExecNotifier) CancelAllWithPrefix(prefix string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		if strings.HasPrefix(id, prefix) {
			t.Stop()
			delete(n.timers, id)
		}
	}
	return nil
}

// Close stops every outstanding timer. Fired alerts are not recalled.
func (n *ExecNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}

func (n *ExecNotifier) fire(identifier string, payload Payload) {
	n.mu.Lock()
	delete(n.timers, identifier)
	cmd := n.command
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, cmd, payload.Title, payload.Body).Run(); err != nil {
		appLog.Error("alert delivery failed", err, "identifier", identifier, "command", cmd)
		return
	}
	appLog.Info("alert delivered", "identifier", identifier, "event_id", payload.EventID)
}
