package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ReadAPI is the part of the chat service the unread counters talk to
type ReadAPI interface {
	MarkRead(ctx context.Context, roomID string) error
	UnreadCount(ctx context.Context, roomID string) (int, error)
}

// Unread holds the per-room unread counters
type Unread struct {
	api ReadAPI

	mu     sync.Mutex
	counts map[string]int
}

func NewUnread(api ReadAPI) *Unread {
	return &Unread{
		api:    api,
		counts: make(map[string]int),
	}
}

// Increment counts one more unread message in roomID.
func (u *Unread) Increment(roomID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[roomID]++
	return u.counts[roomID]
}

func (u *Unread) Count(roomID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[roomID]
}

// Counts returns a copy of every non-zero counter.
func (u *Unread) Counts() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]int, len(u.counts))
	for room, n := range u.counts {
		if n > 0 {
			out[room] = n
		}
	}
	return out
}

// MarkAsRead acknowledges roomID with the service and zeroes its counter once
// the service has accepted it. On failure the counter is left untouched.
func (u *Unread) MarkAsRead(ctx context.Context, roomID string) error {
	if err := u.api.MarkRead(ctx, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to mark room as read")
		return fmt.Errorf("failed to mark %s as read: %w", roomID, err)
	}

	u.mu.Lock()
	u.counts[roomID] = 0
	u.mu.Unlock()
	return nil
}

// Refresh replaces the counter of roomID with the service's count.
func (u *Unread) Refresh(ctx context.Context, roomID string) (int, error) {
	n, err := u.api.UnreadCount(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to fetch unread count")
		return 0, fmt.Errorf("failed to fetch unread count for %s: %w", roomID, err)
	}
	if n < 0 {
		n = 0
	}

	u.mu.Lock()
	u.counts[roomID] = n
	u.mu.Unlock()
	return n, nil
}
