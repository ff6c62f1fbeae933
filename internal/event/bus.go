package event

// Listener receives events from a Bus.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// OnEvent calls f(e).
func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Subscription identifies a registered listener.
type Subscription uint64

type entry struct {
	id Subscription
	l  Listener
}

// Bus fans events out to listeners in registration order. Not safe for
// concurrent use; it belongs to the control loop.
type Bus struct {
	next      Subscription
	listeners []entry
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers l and returns a handle for Unsubscribe.
func (b *Bus) Subscribe(l Listener) Subscription {
	b.next++
	b.listeners = append(b.listeners, entry{id: b.next, l: l})
	return b.next
}

// Unsubscribe removes a listener. Unknown handles are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	for i, e := range b.listeners {
		if e.id == s {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	return len(b.listeners)
}

// Publish delivers e to every listener registered at the time of the call,
// in registration order. Listener panics are not recovered.
func (b *Bus) Publish(e Event) {
	targets := b.listeners
	for _, t := range targets {
		t.l.OnEvent(e)
	}
}
