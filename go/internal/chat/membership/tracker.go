package membership

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// Emitter sends an event over the live connection
type Emitter interface {
	Emit(name events.Name, payload interface{}) error
}

type typingEntry struct {
	member  models.Member
	expires time.Time
}

// Tracker keeps the client in at most one room and scopes the presence and
// typing frames, which carry no room id, to the subscription they belong to.
// It is not safe for concurrent use.
type Tracker struct {
	emitter   Emitter
	clock     clockwork.Clock
	selfID    string
	typingTTL time.Duration

	connected bool
	desired   string
	active    string
	confirmed bool

	rosters map[string]map[string]struct{}
	online  map[string][]models.Member
	typing  map[string][]typingEntry
}

func NewTracker(emitter Emitter, clock clockwork.Clock, selfID string, typingTTL time.Duration) *Tracker {
	return &Tracker{
		emitter:   emitter,
		clock:     clock,
		selfID:    selfID,
		typingTTL: typingTTL,
		rosters:   make(map[string]map[string]struct{}),
		online:    make(map[string][]models.Member),
		typing:    make(map[string][]typingEntry),
	}
}

// DesiredRoom is the last room requested by Join, kept across disconnects.
func (t *Tracker) DesiredRoom() string { return t.desired }

// ActiveRoom is the room joined on the current connection.
func (t *Tracker) ActiveRoom() string { return t.active }

// Confirmed reports whether presence for the active room has been received.
func (t *Tracker) Confirmed() bool { return t.active != "" && t.confirmed }

// SetRoster records the members of a room, used to reject presence frames
// that cannot belong to it.
func (t *Tracker) SetRoster(roomID string, roster []models.Member) {
	ids := make(map[string]struct{}, len(roster))
	for _, m := range roster {
		ids[m.UserID] = struct{}{}
	}
	t.rosters[roomID] = ids
}

// Join makes roomID the single active room, leaving the previous one first.
// While disconnected only the intent is recorded.
func (t *Tracker) Join(roomID string) error {
	t.desired = roomID
	if !t.connected {
		log.Debug().Str("room_id", roomID).Msg("not connected, join queued")
		return nil
	}
	if t.active == roomID {
		return nil
	}

	if t.active != "" {
		if err := t.emitLeave(t.active); err != nil {
			return err
		}
	}

	if err := t.emitter.Emit(events.JoinLeague, roomID); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	t.active = roomID
	t.confirmed = false

	log.Info().Str("room_id", roomID).Msg("joined room")
	return nil
}

// Leave leaves roomID if it is the active or requested room.
func (t *Tracker) Leave(roomID string) error {
	if t.desired == roomID {
		t.desired = ""
	}
	if !t.connected || t.active != roomID {
		return nil
	}
	return t.emitLeave(roomID)
}

// OnConnected rejoins the requested room on a fresh connection.
func (t *Tracker) OnConnected() error {
	t.connected = true
	t.active = ""
	t.confirmed = false
	if t.desired == "" {
		return nil
	}
	log.Info().Str("room_id", t.desired).Msg("rejoining room after connect")
	return t.Join(t.desired)
}

// OnDisconnected drops the server-side membership. The intent is kept.
func (t *Tracker) OnDisconnected() {
	t.connected = false
	if t.active != "" {
		t.clearRoom(t.active)
	}
	t.active = ""
	t.confirmed = false
}

// HandleOnlineUsers applies a presence frame to the active subscription and
// returns the room it was applied to. Frames without a live subscription, and
// frames received before the subscription is confirmed that do not list the
// local user among the room's known members, are stale and dropped.
func (t *Tracker) HandleOnlineUsers(users []models.Member) (string, bool) {
	if t.active == "" {
		log.Warn().Int("users", len(users)).Msg("presence without active room dropped")
		return "", false
	}

	if !t.confirmed {
		if !t.belongsToActive(users) {
			log.Warn().
				Str("room_id", t.active).
				Int("users", len(users)).
				Msg("stale presence dropped")
			return "", false
		}
		t.confirmed = true
	}

	t.online[t.active] = append([]models.Member(nil), users...)
	return t.active, true
}

// HandleTypingUpdate replaces the typing set of the active room. Every listed
// user expires typingTTL from now unless a later frame lists them again.
func (t *Tracker) HandleTypingUpdate(users []models.Member) (string, bool) {
	if t.active == "" || !t.confirmed {
		log.Debug().Str("room_id", t.active).Msg("typing update without confirmed subscription dropped")
		return "", false
	}

	expires := t.clock.Now().Add(t.typingTTL)
	entries := make([]typingEntry, 0, len(users))
	for _, u := range users {
		if u.UserID == t.selfID {
			continue
		}
		entries = append(entries, typingEntry{member: u, expires: expires})
	}
	t.typing[t.active] = entries
	return t.active, true
}

// Online returns the presence list of roomID.
func (t *Tracker) Online(roomID string) []models.Member {
	return append([]models.Member(nil), t.online[roomID]...)
}

// Typing returns the users of roomID whose typing entry has not expired.
func (t *Tracker) Typing(roomID string) []models.Member {
	now := t.clock.Now()
	var out []models.Member
	for _, e := range t.typing[roomID] {
		if now.Before(e.expires) {
			out = append(out, e.member)
		}
	}
	return out
}

// PruneTyping removes expired typing entries and reports whether any were removed.
func (t *Tracker) PruneTyping() bool {
	now := t.clock.Now()
	pruned := false
	for room, entries := range t.typing {
		kept := entries[:0]
		for _, e := range entries {
			if now.Before(e.expires) {
				kept = append(kept, e)
			}
		}
		if len(kept) != len(entries) {
			pruned = true
		}
		if len(kept) == 0 {
			delete(t.typing, room)
		} else {
			t.typing[room] = kept
		}
	}
	return pruned
}

func (t *Tracker) emitLeave(roomID string) error {
	err := t.emitter.Emit(events.LeaveLeague, roomID)
	t.clearRoom(roomID)
	t.active = ""
	t.confirmed = false
	if err != nil {
		return fmt.Errorf("failed to leave room %s: %w", roomID, err)
	}
	log.Info().Str("room_id", roomID).Msg("left room")
	return nil
}

func (t *Tracker) clearRoom(roomID string) {
	delete(t.online, roomID)
	delete(t.typing, roomID)
}

// belongsToActive confirms a subscription only against a known roster: a
// frame from the previous room lists the local user too.
func (t *Tracker) belongsToActive(users []models.Member) bool {
	roster, known := t.rosters[t.active]
	if !known {
		return false
	}
	self := t.selfID == ""
	for _, u := range users {
		if u.UserID == t.selfID {
			self = true
		}
		if _, ok := roster[u.UserID]; !ok {
			return false
		}
	}
	return self
}
