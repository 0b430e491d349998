package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev12/leaguechat/go/internal/chat/metrics"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// DefaultPageSize is the number of messages per history page
const DefaultPageSize = 50

// Fetcher reads message history from the chat service
type Fetcher interface {
	History(ctx context.Context, roomID string, limit int, before *time.Time) ([]models.Message, error)
}

// Sink applies fetched pages to the room logs. It returns false when the room
// was left while the fetch was in flight and the page must be ignored.
type Sink interface {
	ApplyOlder(roomID string, page []models.Message) bool
	ApplyLatest(roomID string, page []models.Message) bool
}

// Page is the result of one LoadOlder call
type Page struct {
	Messages []models.Message
	HasMore  bool
	Ignored  bool
}

type cursor struct {
	oldest  *time.Time
	hasMore bool
}

// Loader backfills room history page by page, newest first. At most one
// LoadOlder per room is in flight; concurrent callers share its result.
type Loader struct {
	fetcher  Fetcher
	sink     Sink
	pageSize int
	clock    clockwork.Clock
	metrics  metrics.Collector

	group singleflight.Group

	mu      sync.Mutex
	cursors map[string]*cursor
}

func NewLoader(fetcher Fetcher, sink Sink, pageSize int, clock clockwork.Clock, collector metrics.Collector) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Loader{
		fetcher:  fetcher,
		sink:     sink,
		pageSize: pageSize,
		clock:    clock,
		metrics:  collector,
		cursors:  make(map[string]*cursor),
	}
}

// Cursor returns the oldest loaded timestamp of roomID and whether older
// history may exist.
func (l *Loader) Cursor(roomID string) (*time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.cursor(roomID)
	return c.oldest, c.hasMore
}

// HasMore reports whether LoadOlder can return anything for roomID.
func (l *Loader) HasMore(roomID string) bool {
	_, more := l.Cursor(roomID)
	return more
}

// LoadOlder fetches the page before the oldest loaded message of roomID; the
// first call fetches the most recent page. A call made while another is in
// flight for the same room issues no request and returns the same result.
func (l *Loader) LoadOlder(ctx context.Context, roomID string) (Page, error) {
	v, err, shared := l.group.Do(roomID, func() (interface{}, error) {
		return l.loadOlder(ctx, roomID)
	})
	if shared {
		log.Debug().Str("room_id", roomID).Msg("joined in-flight history load")
	}
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

func (l *Loader) loadOlder(ctx context.Context, roomID string) (Page, error) {
	l.mu.Lock()
	c := l.cursor(roomID)
	if !c.hasMore {
		l.mu.Unlock()
		return Page{HasMore: false}, nil
	}
	var before *time.Time
	if c.oldest != nil {
		t := *c.oldest
		before = &t
	}
	l.mu.Unlock()

	start := l.clock.Now()
	msgs, err := l.fetcher.History(ctx, roomID, l.pageSize, before)
	l.metrics.RecordHistoryFetch("older", len(msgs), err == nil, l.clock.Since(start))
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to load older messages")
		return Page{}, fmt.Errorf("failed to load history for %s: %w", roomID, err)
	}
	sortByCreatedAt(msgs)

	if !l.sink.ApplyOlder(roomID, msgs) {
		log.Debug().Str("room_id", roomID).Int("count", len(msgs)).Msg("room left during history load, page ignored")
		return Page{HasMore: true, Ignored: true}, nil
	}

	l.mu.Lock()
	if len(msgs) > 0 {
		oldest := msgs[0].CreatedAt
		if c.oldest == nil || oldest.Before(*c.oldest) {
			c.oldest = &oldest
		}
	}
	c.hasMore = len(msgs) >= l.pageSize
	page := Page{Messages: msgs, HasMore: c.hasMore}
	l.mu.Unlock()

	log.Debug().
		Str("room_id", roomID).
		Int("count", len(msgs)).
		Bool("has_more", page.HasMore).
		Msg("loaded older messages")
	return page, nil
}

// CatchUp fetches the most recent page of roomID and merges it, to pick up
// whatever was missed while disconnected. The backfill cursor is untouched.
func (l *Loader) CatchUp(ctx context.Context, roomID string) error {
	_, err, _ := l.group.Do("latest:"+roomID, func() (interface{}, error) {
		start := l.clock.Now()
		msgs, err := l.fetcher.History(ctx, roomID, l.pageSize, nil)
		l.metrics.RecordHistoryFetch("latest", len(msgs), err == nil, l.clock.Since(start))
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to catch up on messages")
			return nil, fmt.Errorf("failed to catch up %s: %w", roomID, err)
		}
		sortByCreatedAt(msgs)
		if !l.sink.ApplyLatest(roomID, msgs) {
			log.Debug().Str("room_id", roomID).Msg("room left during catch-up, page ignored")
		}
		return nil, nil
	})
	return err
}

// cursor must be called with mu held.
func (l *Loader) cursor(roomID string) *cursor {
	c, ok := l.cursors[roomID]
	if !ok {
		c = &cursor{hasMore: true}
		l.cursors[roomID] = c
	}
	return c
}

func sortByCreatedAt(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
