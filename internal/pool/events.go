package pool

// Event represents a pool lifecycle event.
// Minimal and stable: name + pool ID, the handle involved (or -1) and
// optional fields via key/values.
type Event struct {
	Name   string
	PoolID string
	Handle int
	Fields map[string]any
}

// EventPublisher receives events from the pool. Implementations should be
// lightweight and non-blocking; Publish must not panic. Publish may be called
// with the pool lock held and must not call back into the pool.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func (p *Pool) publish(name string, handle int, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	p.pub.Publish(Event{Name: name, PoolID: p.id, Handle: handle, Fields: fields})
}
