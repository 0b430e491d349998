package session

import (
	"sort"

	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// Messages returns the ordered log of roomID.
func (s *Session) Messages(roomID string) []models.Message {
	s.guard.Lock()
	defer s.guard.Unlock()
	if st, ok := s.stores[roomID]; ok {
		return st.Messages()
	}
	return nil
}

// Groups returns the log of roomID grouped for display.
func (s *Session) Groups(roomID string) []store.Group {
	return store.Groups(s.Messages(roomID))
}

// ReplyPreview returns the text to show for a reply reference in roomID.
func (s *Session) ReplyPreview(roomID string, ref *models.ReplyRef) string {
	s.guard.Lock()
	defer s.guard.Unlock()
	if st, ok := s.stores[roomID]; ok {
		return st.ReplyPreview(ref)
	}
	if ref == nil {
		return ""
	}
	return ref.Preview
}

func (s *Session) Online(roomID string) []models.Member {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.tracker.Online(roomID)
}

// Typing returns the other users currently typing in roomID.
func (s *Session) Typing(roomID string) []models.Member {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.tracker.Typing(roomID)
}

func (s *Session) Unread(roomID string) int {
	return s.unread.Count(roomID)
}

func (s *Session) League(roomID string) (*models.League, bool) {
	s.guard.Lock()
	defer s.guard.Unlock()
	league, ok := s.leagues[roomID]
	return league, ok
}

func (s *Session) ConnectionState() models.ConnectionState {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.state
}

// RoomState summarizes one room for diagnostics
type RoomState struct {
	RoomID   string `json:"roomId"`
	Messages int    `json:"messages"`
	Pending  int    `json:"pending"`
	Failed   int    `json:"failed"`
	HasMore  bool   `json:"hasMore"`
	Unread   int    `json:"unread"`
	Online   int    `json:"online"`
	Typing   int    `json:"typing"`
}

// State summarizes the session for diagnostics
type State struct {
	UserID        string                 `json:"userId"`
	Connection    models.ConnectionState `json:"connection"`
	DesiredRoom   string                 `json:"desiredRoom,omitempty"`
	ActiveRoom    string                 `json:"activeRoom,omitempty"`
	Confirmed     bool                   `json:"confirmed"`
	Viewing       string                 `json:"viewing,omitempty"`
	Notifications int                    `json:"unreadNotifications"`
	Rooms         []RoomState            `json:"rooms"`
}

// Snapshot returns a point-in-time summary of the session.
func (s *Session) Snapshot() State {
	s.guard.Lock()
	state := State{
		UserID:      s.config.SelfID,
		Connection:  s.state,
		DesiredRoom: s.tracker.DesiredRoom(),
		ActiveRoom:  s.tracker.ActiveRoom(),
		Confirmed:   s.tracker.Confirmed(),
		Viewing:     s.viewing,
	}
	rooms := make([]RoomState, 0, len(s.stores))
	for id, st := range s.stores {
		rs := RoomState{
			RoomID:   id,
			Messages: st.Len(),
			Online:   len(s.tracker.Online(id)),
			Typing:   len(s.tracker.Typing(id)),
		}
		for _, m := range st.Messages() {
			switch m.ClientState {
			case models.ClientStatePending:
				rs.Pending++
			case models.ClientStateFailed:
				rs.Failed++
			}
		}
		rooms = append(rooms, rs)
	}
	s.guard.Unlock()

	for i := range rooms {
		rooms[i].HasMore = s.loader.HasMore(rooms[i].RoomID)
		rooms[i].Unread = s.unread.Count(rooms[i].RoomID)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	state.Rooms = rooms
	state.Notifications = s.feed.UnreadCount()
	return state
}
