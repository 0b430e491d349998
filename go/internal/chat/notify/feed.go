package notify

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/leaguechat/go/internal/chat/mentions"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// Kind is the reason a notification was raised
type Kind string

const (
	KindMention Kind = "mention"
	KindReply   Kind = "reply"
)

var ErrUnknownNotification = errors.New("unknown notification")

// Notification is one entry of the recipient's feed
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	RoomID    string    `json:"roomId"`
	MessageID string    `json:"messageId"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

func (n Notification) key() string {
	return string(n.Kind) + "|" + n.MessageID
}

// Feed is the flat, newest-first notification feed of the local user. The same
// (kind, message) pair is only ever listed once.
type Feed struct {
	mu    sync.Mutex
	items []Notification
	keys  map[string]string
}

func NewFeed() *Feed {
	return &Feed{keys: make(map[string]string)}
}

// Add inserts n unless a notification of the same kind for the same message
// exists. It reports whether n was added.
func (f *Feed) Add(n Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.keys[n.key()]; dup {
		return false
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	f.keys[n.key()] = n.ID

	i := sort.Search(len(f.items), func(i int) bool {
		return f.items[i].CreatedAt.Before(n.CreatedAt)
	})
	f.items = append(f.items, Notification{})
	copy(f.items[i+1:], f.items[i:])
	f.items[i] = n
	return true
}

func (f *Feed) List() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

func (f *Feed) MarkRead(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return ErrUnknownNotification
	}
	f.items[i].Read = true
	return nil
}

func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		f.items[i].Read = true
	}
}

func (f *Feed) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return ErrUnknownNotification
	}
	delete(f.keys, f.items[i].key())
	f.items = append(f.items[:i], f.items[i+1:]...)
	return nil
}

// resolve finds a notification by id, falling back to its kind and message.
func (f *Feed) resolve(n Notification) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID != "" && f.indexOf(n.ID) >= 0 {
		return n.ID, true
	}
	id, ok := f.keys[n.key()]
	return id, ok
}

func (f *Feed) indexOf(id string) int {
	for i, item := range f.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Detect returns the notifications msg raises for selfID: a mention when the
// body names the local user, a reply when it answers one of their messages.
func Detect(msg models.Message, selfID string, roster []models.Member) []Notification {
	if selfID == "" || msg.AuthorID == selfID || msg.IsDeleted() {
		return nil
	}

	base := Notification{
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		ActorID:   msg.AuthorID,
		ActorName: msg.AuthorName,
		Preview:   models.Preview(msg.Body),
		CreatedAt: msg.CreatedAt,
	}

	var out []Notification
	for _, span := range mentions.DetectMentions(msg.Body, roster) {
		if span.UserID == selfID {
			n := base
			n.Kind = KindMention
			out = append(out, n)
			break
		}
	}
	if msg.ReplyTo != nil && msg.ReplyTo.AuthorID == selfID {
		n := base
		n.Kind = KindReply
		out = append(out, n)
	}
	return out
}
