package session

import "sync"

// UpdateKind names the part of the session state that changed
type UpdateKind string

const (
	UpdateMessages      UpdateKind = "messages"
	UpdatePresence      UpdateKind = "presence"
	UpdateTyping        UpdateKind = "typing"
	UpdateUnread        UpdateKind = "unread"
	UpdateConnection    UpdateKind = "connection"
	UpdateNotifications UpdateKind = "notifications"
)

// Update tells a listener that state of a room changed. RoomID is empty for
// session-wide changes.
type Update struct {
	Kind   UpdateKind
	RoomID string
}

// guard is the session lock. Updates recorded while it is held are delivered
// to listeners after it is released, so listeners may read the session.
type guard struct {
	mu      sync.Mutex
	pending []Update

	listenersMu sync.RWMutex
	listeners   []func(Update)
}

func (g *guard) Lock() { g.mu.Lock() }

func (g *guard) Unlock() {
	updates := g.pending
	g.pending = nil
	g.mu.Unlock()

	if len(updates) == 0 {
		return
	}
	g.listenersMu.RLock()
	listeners := g.listeners
	g.listenersMu.RUnlock()
	for _, u := range updates {
		for _, l := range listeners {
			l(u)
		}
	}
}

// mark records an update. The caller holds the lock.
func (g *guard) mark(kind UpdateKind, roomID string) {
	u := Update{Kind: kind, RoomID: roomID}
	for _, p := range g.pending {
		if p == u {
			return
		}
	}
	g.pending = append(g.pending, u)
}

func (g *guard) listen(fn func(Update)) {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()
	g.listeners = append(g.listeners, fn)
}
