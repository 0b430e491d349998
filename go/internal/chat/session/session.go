package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/gateway"
	"github.com/mcdev12/leaguechat/go/internal/chat/history"
	"github.com/mcdev12/leaguechat/go/internal/chat/membership"
	"github.com/mcdev12/leaguechat/go/internal/chat/metrics"
	"github.com/mcdev12/leaguechat/go/internal/chat/notify"
	"github.com/mcdev12/leaguechat/go/internal/chat/reactions"
	"github.com/mcdev12/leaguechat/go/internal/chat/schedule"
	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

var (
	ErrUnknownRoom  = errors.New("room not opened")
	ErrEmptyMessage = errors.New("message has no body or gif")
)

const (
	pendingSlotPrefix = "pending:"
	typingExpirySlot  = "typing-expiry"
)

// API is the part of the chat REST service a session uses
type API interface {
	history.Fetcher
	notify.ReadAPI
	Report(ctx context.Context, roomID, messageID string) error
	Roster(ctx context.Context, roomID string) (*models.League, error)
}

// Config holds the per-user settings of a session
type Config struct {
	SelfID          string
	SelfName        string
	PageSize        int
	PendingTimeout  time.Duration
	TypingStopDelay time.Duration
	TypingTTL       time.Duration
}

// DefaultConfig returns the default timings for selfID
func DefaultConfig(selfID, selfName string) Config {
	return Config{
		SelfID:          selfID,
		SelfName:        selfName,
		PageSize:        history.DefaultPageSize,
		PendingTimeout:  15 * time.Second,
		TypingStopDelay: membership.DefaultTypingStopDelay,
		TypingTTL:       5 * time.Second,
	}
}

// Session is the chat engine of one signed-in user. Every entry point (socket
// events, user actions, fetch completions and timer callbacks) runs under one
// lock, so each state change is a single synchronous step. Network requests
// are made outside the lock.
type Session struct {
	config  Config
	conn    membership.Emitter
	api     API
	clock   clockwork.Clock
	metrics metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	guard   *guard
	slots   *schedule.Slots
	tracker *membership.Tracker
	typing  *membership.TypingIndicator
	loader  *history.Loader
	unread  *notify.Unread
	feed    *notify.Feed

	state          models.ConnectionState
	viewing        string
	stores         map[string]*store.Store
	leagues        map[string]*models.League
	pendingReacts  map[string]reactions.Optimistic
	pendingRemoval map[string]events.Name
	wg             sync.WaitGroup
}

func New(config Config, conn membership.Emitter, api API, clock clockwork.Clock, collector metrics.Collector) *Session {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if config.PendingTimeout <= 0 {
		config.PendingTimeout = DefaultConfig("", "").PendingTimeout
	}
	if config.TypingTTL <= 0 {
		config.TypingTTL = DefaultConfig("", "").TypingTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &guard{}
	slots := schedule.NewSlots(clock, g)

	s := &Session{
		config:         config,
		conn:           conn,
		api:            api,
		clock:          clock,
		metrics:        collector,
		ctx:            ctx,
		cancel:         cancel,
		guard:          g,
		slots:          slots,
		tracker:        membership.NewTracker(conn, clock, config.SelfID, config.TypingTTL),
		typing:         membership.NewTypingIndicator(conn, slots, config.TypingStopDelay),
		unread:         notify.NewUnread(api),
		feed:           notify.NewFeed(),
		state:          models.ConnectionStateDisconnected,
		stores:         make(map[string]*store.Store),
		leagues:        make(map[string]*models.League),
		pendingReacts:  make(map[string]reactions.Optimistic),
		pendingRemoval: make(map[string]events.Name),
	}
	s.loader = history.NewLoader(api, s, config.PageSize, clock, collector)
	return s
}

// Attach subscribes the session to a connection manager's events and state changes.
func (s *Session) Attach(cm *gateway.ConnectionManager) {
	cm.OnEvent(s.HandleEnvelope)
	cm.OnStateChange(s.HandleStateChange)
}

// OnUpdate registers a listener for state changes. Listeners run after the
// session lock is released, possibly from several goroutines.
func (s *Session) OnUpdate(fn func(Update)) {
	s.guard.listen(fn)
}

// Feed returns the notification feed of the local user.
func (s *Session) Feed() *notify.Feed { return s.feed }

// FeedChanged tells listeners the feed was changed from outside the session,
// such as by a notify.NATSSource.
func (s *Session) FeedChanged() {
	s.guard.Lock()
	s.guard.mark(UpdateNotifications, "")
	s.guard.Unlock()
}

// Close stops every timer and background fetch.
func (s *Session) Close() {
	s.cancel()
	s.slots.Stop()
	s.wg.Wait()
}

// HandleStateChange follows the connection: on connect the requested room is
// rejoined and its recent history merged, on loss presence and typing are cleared.
func (s *Session) HandleStateChange(change gateway.StateChange) {
	s.guard.Lock()
	s.state = change.To
	s.guard.mark(UpdateConnection, "")

	var catchUp string
	switch change.To {
	case models.ConnectionStateConnected:
		if err := s.tracker.OnConnected(); err != nil {
			log.Error().Err(err).Msg("failed to rejoin room")
		}
		catchUp = s.tracker.ActiveRoom()
	case models.ConnectionStateDisconnected, models.ConnectionStateReconnecting:
		room := s.tracker.ActiveRoom()
		s.tracker.OnDisconnected()
		s.typing.Reset()
		if room != "" {
			s.guard.mark(UpdatePresence, room)
			s.guard.mark(UpdateTyping, room)
		}
		if change.Err != nil {
			log.Warn().Err(change.Err).Str("state", string(change.To)).Msg("connection lost")
		}
	}
	s.guard.Unlock()

	if catchUp == "" {
		return
	}
	if !s.hasHistory(catchUp) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.loader.CatchUp(s.ctx, catchUp); err != nil {
			log.Warn().Err(err).Str("room_id", catchUp).Msg("catch-up after reconnect failed")
		}
	}()
}

// ApplyOlder merges a backfill page. Pages for a room that is no longer
// requested are refused.
func (s *Session) ApplyOlder(roomID string, page []models.Message) bool {
	s.guard.Lock()
	defer s.guard.Unlock()

	if s.tracker.DesiredRoom() != roomID {
		return false
	}
	added := s.ensureStore(roomID).Prepend(page)
	for i := 0; i < added; i++ {
		s.metrics.RecordMessageApplied("history")
	}
	s.guard.mark(UpdateMessages, roomID)
	return true
}

// ApplyLatest merges the newest page fetched after a reconnect.
func (s *Session) ApplyLatest(roomID string, page []models.Message) bool {
	s.guard.Lock()
	defer s.guard.Unlock()

	if s.tracker.DesiredRoom() != roomID {
		return false
	}
	st := s.ensureStore(roomID)
	for _, m := range page {
		if m.ClientID != "" {
			s.slots.Cancel(pendingSlotPrefix + m.ClientID)
		}
	}
	added := st.Merge(page)
	for i := 0; i < added; i++ {
		s.metrics.RecordMessageApplied("catch-up")
	}
	log.Debug().Str("room_id", roomID).Int("added", added).Msg("merged catch-up page")
	s.guard.mark(UpdateMessages, roomID)
	return true
}

func (s *Session) hasHistory(roomID string) bool {
	s.guard.Lock()
	defer s.guard.Unlock()
	st, ok := s.stores[roomID]
	return ok && st.Len() > 0
}

// ensureStore must be called with the lock held.
func (s *Session) ensureStore(roomID string) *store.Store {
	st, ok := s.stores[roomID]
	if !ok {
		st = store.New(roomID, s.clock)
		s.stores[roomID] = st
	}
	return st
}

// findMessage locates the store holding messageID, the active room first.
// It must be called with the lock held.
func (s *Session) findMessage(messageID string) (*store.Store, models.Message, bool) {
	if st, ok := s.stores[s.tracker.ActiveRoom()]; ok {
		if msg, ok := st.Get(messageID); ok {
			return st, msg, true
		}
	}
	for _, st := range s.stores {
		if msg, ok := st.Get(messageID); ok {
			return st, msg, true
		}
	}
	return nil, models.Message{}, false
}

func (s *Session) roster(roomID string) []models.Member {
	if league, ok := s.leagues[roomID]; ok {
		return league.Members
	}
	return nil
}

func reactionKey(messageID, emoji string) string {
	return messageID + "|" + emoji
}
