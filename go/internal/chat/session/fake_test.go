package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/gateway"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

type emitted struct {
	name    events.Name
	payload interface{}
}

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	sent      []emitted
}

func (c *fakeConn) Emit(name events.Name, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return gateway.ErrNotConnected
	}
	c.sent = append(c.sent, emitted{name: name, payload: payload})
	return nil
}

func (c *fakeConn) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

func (c *fakeConn) names() []events.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Name, len(c.sent))
	for i, e := range c.sent {
		out[i] = e.name
	}
	return out
}

func (c *fakeConn) byName(name events.Name) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []interface{}
	for _, e := range c.sent {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

type fakeAPI struct {
	mu          sync.Mutex
	history     map[string][]models.Message
	leagues     map[string]*models.League
	fetches     int
	markReadErr error
	marked      []string
	reported    []string
	unread      map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[string][]models.Message),
		leagues: make(map[string]*models.League),
		unread:  make(map[string]int),
	}
}

func (a *fakeAPI) History(ctx context.Context, roomID string, limit int, before *time.Time) ([]models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches++

	all := append([]models.Message(nil), a.history[roomID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	var eligible []models.Message
	for _, m := range all {
		if before == nil || m.CreatedAt.Before(*before) {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}
	return eligible, nil
}

func (a *fakeAPI) MarkRead(ctx context.Context, roomID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markReadErr != nil {
		return a.markReadErr
	}
	a.marked = append(a.marked, roomID)
	return nil
}

func (a *fakeAPI) UnreadCount(ctx context.Context, roomID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread[roomID], nil
}

func (a *fakeAPI) Report(ctx context.Context, roomID, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reported = append(a.reported, messageID)
	return nil
}

func (a *fakeAPI) Roster(ctx context.Context, roomID string) (*models.League, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	league, ok := a.leagues[roomID]
	if !ok {
		return nil, errors.New("league not found")
	}
	return league, nil
}

func (a *fakeAPI) addHistory(roomID string, msgs ...models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[roomID] = append(a.history[roomID], msgs...)
}

func (a *fakeAPI) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}
