package export

import "time"

// EventType names what an export did on the remote side
type EventType string

const (
	EventCreate  EventType = "CREATE"
	EventWrite   EventType = "WRITE"
	EventDelete  EventType = "DELETE"
	EventExclude EventType = "EXCLUDE"
)

// Event is delivered to listeners after the mapping has been persisted
type Event struct {
	Type     EventType
	Key      Key
	LocalID  int64
	RemoteID int64
	At       time.Time
}

// Listener receives export events synchronously; keep it fast
type Listener func(Event)

// Subscribe registers a listener for all future events
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) emit(t EventType, key Key, localID, remoteID int64) {
	o.mu.RLock()
	listeners := o.listeners
	o.mu.RUnlock()

	ev := Event{Type: t, Key: key, LocalID: localID, RemoteID: remoteID, At: time.Now()}
	for _, l := range listeners {
		l(ev)
	}
}
