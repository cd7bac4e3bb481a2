package display

import "sync"

// Event is a display lifecycle notification.
type Event int

const (
	// EventLost is sent before the display goes away (suspend, mode teardown).
	EventLost Event = iota
	// EventReset is sent once the display is usable again.
	EventReset
	// EventModeChanged is sent after a new mode has been committed.
	EventModeChanged
)

func (e Event) String() string {
	switch e {
	case EventLost:
		return "lost"
	case EventReset:
		return "reset"
	case EventModeChanged:
		return "mode-changed"
	default:
		return "unknown"
	}
}

// Resource is told about display lifecycle events. Implementations must be
// comparable (typically pointers): registration is by identity.
type Resource interface {
	OnDisplayEvent(ev Event)
}

// Notifier keeps the registered resources. A single mutex covers both
// mutation and dispatch, and callbacks run synchronously while it is held.
// A callback must therefore not call Register or Unregister on the same
// Notifier: it would deadlock.
type Notifier struct {
	mu        sync.Mutex
	resources []Resource
}

// Register adds r unless it is already registered.
func (n *Notifier) Register(r Resource) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.resources {
		if existing == r {
			return
		}
	}
	n.resources = append(n.resources, r)
}

// Unregister removes r. Removing an unknown resource is a no-op.
func (n *Notifier) Unregister(r Resource) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.resources {
		if existing == r {
			n.resources = append(n.resources[:i], n.resources[i+1:]...)
			return
		}
	}
}

// Notify calls every registered resource once, in registration order.
func (n *Notifier) Notify(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.resources {
		r.OnDisplayEvent(ev)
	}
}

// Len returns the number of registered resources.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resources)
}
