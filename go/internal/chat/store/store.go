package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

// LocalIDPrefix marks ids generated on this client for unconfirmed sends
const LocalIDPrefix = "local-"

// Draft is a message composed locally and not yet sent
type Draft struct {
	AuthorID   string
	AuthorName string
	Body       string
	Gif        *models.Gif
	ReplyTo    *models.ReplyRef
}

// Patch is a partial mutation of a message. Nil fields are left unchanged.
type Patch struct {
	Body      *string
	Gif       *models.Gif
	Reactions *models.Reactions
	DeletedAt *time.Time
	DeletedBy models.DeletedBy
}

// Store is the ordered message log of one room. It is not safe for concurrent
// use: the owning session serializes every call.
type Store struct {
	roomID   string
	clock    clockwork.Clock
	messages []models.Message
}

// New creates an empty log for roomID.
func New(roomID string, clock clockwork.Clock) *Store {
	return &Store{
		roomID: roomID,
		clock:  clock,
	}
}

func (s *Store) RoomID() string { return s.roomID }

func (s *Store) Len() int { return len(s.messages) }

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (models.Message, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return models.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Oldest returns the creation time of the first confirmed entry.
func (s *Store) Oldest() (time.Time, bool) {
	for _, m := range s.messages {
		if m.IsConfirmed() {
			return m.CreatedAt, true
		}
	}
	return time.Time{}, false
}

// Append inserts an authoritative message. It goes to the tail unless its
// timestamp is older than the last entry, in which case it is placed in sorted
// position. A message whose id is already present replaces that entry; one
// whose client id belongs to an already confirmed send is dropped. It reports
// whether a new entry was inserted.
func (s *Store) Append(msg models.Message) bool {
	msg = confirmed(msg)

	if i := s.indexOf(msg.ID); i >= 0 {
		log.Debug().
			Str("room_id", s.roomID).
			Str("message_id", msg.ID).
			Msg("duplicate message delivery, replacing entry")
		s.replaceAt(i, s.preserveDeletion(s.messages[i], msg))
		return false
	}
	if i := s.indexOfClient(msg.ClientID); i >= 0 {
		log.Warn().
			Str("room_id", s.roomID).
			Str("client_id", msg.ClientID).
			Str("message_id", msg.ID).
			Str("kept_id", s.messages[i].ID).
			Msg("second echo of one send dropped")
		return false
	}

	s.insertSorted(msg)
	return true
}

// HasSend reports whether a confirmed entry already carries clientID.
func (s *Store) HasSend(clientID string) bool {
	return s.indexOfClient(clientID) >= 0
}

// SendOptimistic inserts a pending entry for draft at the tail and returns its
// local correlation id.
func (s *Store) SendOptimistic(draft Draft) string {
	localID := LocalIDPrefix + uuid.New().String()

	msg := models.Message{
		ID:          localID,
		ClientID:    localID,
		RoomID:      s.roomID,
		AuthorID:    draft.AuthorID,
		AuthorName:  draft.AuthorName,
		Body:        draft.Body,
		Gif:         draft.Gif,
		ReplyTo:     draft.ReplyTo,
		CreatedAt:   s.tailTime(),
		ClientState: models.ClientStatePending,
	}
	s.messages = append(s.messages, msg)

	log.Debug().
		Str("room_id", s.roomID).
		Str("local_id", localID).
		Msg("optimistic message inserted")
	return localID
}

// Reconcile replaces the unconfirmed entry localID with its server-confirmed
// counterpart, keeping its position unless the server timestamp breaks
// ordering. Without a matching entry it falls back to Append. It reports
// whether a local entry was replaced.
func (s *Store) Reconcile(localID string, server models.Message) bool {
	server = confirmed(server)
	if server.ClientID == "" {
		server.ClientID = localID
	}

	i := s.indexOf(localID)
	if i < 0 || s.messages[i].IsConfirmed() {
		log.Warn().
			Str("room_id", s.roomID).
			Str("local_id", localID).
			Str("message_id", server.ID).
			Msg("reconcile target not found, appending")
		s.Append(server)
		return false
	}

	// The server copy may already be in the log, e.g. delivered by a catch-up
	// fetch before the echo. Keep that entry and drop the local one.
	if j := s.indexOf(server.ID); j >= 0 && j != i {
		merged := s.preserveDeletion(s.messages[j], server)
		s.removeAt(i)
		s.replaceAt(s.indexOf(server.ID), merged)
		return true
	}

	s.replaceAt(i, server)
	return true
}

// Update applies a partial mutation to the message with the given id.
// Deletion is write-once: a deleted message accepts no further patches.
func (s *Store) Update(messageID string, patch Patch) error {
	i := s.indexOf(messageID)
	if i < 0 {
		log.Warn().
			Str("room_id", s.roomID).
			Str("message_id", messageID).
			Msg("update for unknown message ignored")
		return ErrUnknownMessage
	}

	msg := &s.messages[i]
	if msg.IsDeleted() {
		log.Debug().
			Str("room_id", s.roomID).
			Str("message_id", messageID).
			Msg("patch for deleted message ignored")
		return ErrAlreadyDeleted
	}

	if patch.DeletedAt != nil && !patch.DeletedBy.Valid() {
		log.Warn().
			Str("room_id", s.roomID).
			Str("message_id", messageID).
			Str("deleted_by", string(patch.DeletedBy)).
			Msg("deletion without a valid attribution ignored")
		return ErrInvalidPatch
	}

	if patch.Body != nil {
		msg.Body = *patch.Body
	}
	if patch.Gif != nil {
		g := *patch.Gif
		msg.Gif = &g
	}
	if patch.Reactions != nil {
		msg.Reactions = patch.Reactions.Normalize()
	}
	if patch.DeletedAt != nil {
		at := *patch.DeletedAt
		msg.DeletedAt = &at
		msg.DeletedBy = patch.DeletedBy
		msg.Body = ""
		msg.Gif = nil
	}
	return nil
}

// Prepend merges a page of older history into the log. Entries already present
// are skipped; the result stays sorted even if the page overlaps the log.
// It returns the number of entries added.
func (s *Store) Prepend(older []models.Message) int {
	if oldest, ok := s.Oldest(); ok {
		for _, m := range older {
			if !m.CreatedAt.Before(oldest) {
				log.Warn().
					Str("room_id", s.roomID).
					Str("message_id", m.ID).
					Time("created_at", m.CreatedAt).
					Time("oldest", oldest).
					Msg("history page overlaps loaded messages, sort-merging")
				break
			}
		}
	}

	fresh := make([]models.Message, 0, len(older))
	seen := make(map[string]struct{}, len(older))
	for _, m := range older {
		if _, dup := seen[m.ID]; dup || s.indexOf(m.ID) >= 0 {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, confirmed(m))
	}
	s.mergeSorted(fresh)
	return len(fresh)
}

// Merge folds a batch of recent server messages into the log after a
// reconnect: unknown entries are inserted, known ones are refreshed and
// echoes of local sends reconcile their pending entry.
func (s *Store) Merge(batch []models.Message) int {
	var fresh []models.Message
	seen := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		if m.ClientID != "" {
			if i := s.indexOf(m.ClientID); i >= 0 && !s.messages[i].IsConfirmed() {
				s.Reconcile(m.ClientID, m)
				continue
			}
		} else if s.indexOf(m.ID) < 0 {
			if localID, ok := s.FindPendingMatch(m); ok {
				s.Reconcile(localID, m)
				continue
			}
		}
		if i := s.indexOf(m.ID); i >= 0 {
			s.replaceAt(i, s.preserveDeletion(s.messages[i], confirmed(m)))
			continue
		}
		if s.indexOfClient(m.ClientID) >= 0 || pendingClient(fresh, m.ClientID) {
			continue
		}
		fresh = append(fresh, confirmed(m))
	}
	s.mergeSorted(fresh)
	return len(fresh)
}

// MarkFailed moves a pending entry to failed. It reports whether it did.
func (s *Store) MarkFailed(localID string) bool {
	i := s.indexOf(localID)
	if i < 0 || s.messages[i].ClientState != models.ClientStatePending {
		return false
	}
	s.messages[i].ClientState = models.ClientStateFailed
	log.Warn().
		Str("room_id", s.roomID).
		Str("local_id", localID).
		Msg("pending message marked failed")
	return true
}

// Retry moves a failed entry back to pending at the tail with a fresh timestamp.
func (s *Store) Retry(localID string) (models.Message, error) {
	i := s.indexOf(localID)
	if i < 0 {
		return models.Message{}, ErrUnknownMessage
	}
	if s.messages[i].ClientState != models.ClientStateFailed {
		return models.Message{}, ErrNotFailed
	}

	msg := s.messages[i]
	s.removeAt(i)
	msg.ClientState = models.ClientStatePending
	msg.CreatedAt = s.tailTime()
	s.messages = append(s.messages, msg)
	return msg.Clone(), nil
}

// Discard drops a failed entry.
func (s *Store) Discard(localID string) error {
	i := s.indexOf(localID)
	if i < 0 {
		return ErrUnknownMessage
	}
	if s.messages[i].ClientState != models.ClientStateFailed {
		return ErrNotFailed
	}
	s.removeAt(i)
	return nil
}

// FindPendingMatch looks for the unconfirmed local entry a server message
// without a client id most likely echoes: the oldest one by the same author
// with the same content.
func (s *Store) FindPendingMatch(server models.Message) (string, bool) {
	for _, m := range s.messages {
		if m.IsConfirmed() || m.AuthorID != server.AuthorID || m.Body != server.Body {
			continue
		}
		if gifURL(m.Gif) != gifURL(server.Gif) {
			continue
		}
		return m.ID, true
	}
	return "", false
}

// ReplyPreview returns the preview to display for a reply reference, checked
// against the live log so replies to deleted messages do not leak content.
func (s *Store) ReplyPreview(ref *models.ReplyRef) string {
	if ref == nil {
		return ""
	}
	if i := s.indexOf(ref.ID); i >= 0 && s.messages[i].IsDeleted() {
		return models.DeletedReplyPreview
	}
	return ref.Preview
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// indexOfClient finds the confirmed entry produced by the send clientID.
func (s *Store) indexOfClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ClientID == clientID && s.messages[i].IsConfirmed() {
			return i
		}
	}
	return -1
}

func pendingClient(batch []models.Message, clientID string) bool {
	if clientID == "" {
		return false
	}
	for _, m := range batch {
		if m.ClientID == clientID {
			return true
		}
	}
	return false
}

// tailTime is now, clamped so the log stays non-decreasing.
func (s *Store) tailTime() time.Time {
	now := s.clock.Now()
	if n := len(s.messages); n > 0 && now.Before(s.messages[n-1].CreatedAt) {
		return s.messages[n-1].CreatedAt
	}
	return now
}

func (s *Store) insertSorted(msg models.Message) {
	n := len(s.messages)
	if n == 0 || !msg.CreatedAt.Before(s.messages[n-1].CreatedAt) {
		s.messages = append(s.messages, msg)
		return
	}

	i := sort.Search(n, func(i int) bool {
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

// replaceAt swaps the entry at i, re-sorting only if msg breaks ordering there.
func (s *Store) replaceAt(i int, msg models.Message) {
	prevOK := i == 0 || !msg.CreatedAt.Before(s.messages[i-1].CreatedAt)
	nextOK := i == len(s.messages)-1 || !s.messages[i+1].CreatedAt.Before(msg.CreatedAt)
	if prevOK && nextOK {
		s.messages[i] = msg
		return
	}
	s.removeAt(i)
	s.insertSorted(msg)
}

func (s *Store) removeAt(i int) {
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
}

// mergeSorted merges batch into the log. Existing entries go first on equal
// timestamps.
func (s *Store) mergeSorted(batch []models.Message) {
	if len(batch) == 0 {
		return
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].CreatedAt.Before(batch[j].CreatedAt)
	})

	merged := make([]models.Message, 0, len(s.messages)+len(batch))
	i, j := 0, 0
	for i < len(s.messages) && j < len(batch) {
		if batch[j].CreatedAt.Before(s.messages[i].CreatedAt) {
			merged = append(merged, batch[j])
			j++
		} else {
			merged = append(merged, s.messages[i])
			i++
		}
	}
	merged = append(merged, s.messages[i:]...)
	merged = append(merged, batch[j:]...)
	s.messages = merged
}

// preserveDeletion keeps the deletion of existing when an incoming copy of the
// same message does not carry it.
func (s *Store) preserveDeletion(existing, incoming models.Message) models.Message {
	if existing.IsDeleted() {
		incoming.DeletedAt = existing.DeletedAt
		incoming.DeletedBy = existing.DeletedBy
		incoming.Body = ""
		incoming.Gif = nil
	}
	return incoming
}

func confirmed(msg models.Message) models.Message {
	msg.ClientState = models.ClientStateConfirmed
	msg.Reactions = msg.Reactions.Normalize()
	if msg.IsDeleted() {
		msg.Body = ""
		msg.Gif = nil
	}
	return msg
}

func gifURL(g *models.Gif) string {
	if g == nil {
		return ""
	}
	return g.URL
}
