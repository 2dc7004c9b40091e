package resource

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRemoved
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventRemoved:
		return "removed"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Table  string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
// Observers are called with no table lock held.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer. Function observers cannot be
// unsubscribed.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when the
// table destroys them.
type Dropper interface {
	Drop()
}
