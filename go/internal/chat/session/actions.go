package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/history"
	"github.com/mcdev12/leaguechat/go/internal/chat/mentions"
	"github.com/mcdev12/leaguechat/go/internal/chat/reactions"
	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// OpenRoom makes roomID the joined and viewed room, fetching its roster and
// first history page when they are not loaded yet, and marks it read.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	// The roster goes in before the join so the new subscription can tell
	// its presence frames from the previous room's.
	s.guard.Lock()
	_, haveRoster := s.leagues[roomID]
	s.guard.Unlock()
	if !haveRoster {
		league, err := s.api.Roster(ctx, roomID)
		if err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to load roster, presence stays unconfirmed")
		} else {
			s.SetLeague(league)
		}
	}

	s.guard.Lock()
	s.ensureStore(roomID)
	if active := s.typing.Active(); active != "" && active != roomID {
		if err := s.typing.Stop(); err != nil {
			log.Debug().Err(err).Msg("failed to stop typing on room switch")
		}
	}
	err := s.tracker.Join(roomID)
	s.viewing = roomID
	s.guard.mark(UpdatePresence, roomID)
	s.guard.Unlock()
	if err != nil {
		return err
	}

	if oldest, more := s.loader.Cursor(roomID); oldest == nil && more {
		if _, err := s.loader.LoadOlder(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to load first history page")
		}
	}

	if err := s.MarkAsRead(ctx, roomID); err != nil {
		log.Debug().Err(err).Str("room_id", roomID).Msg("room stays unread")
	}
	return nil
}

// LeaveRoom leaves roomID. Its messages are kept.
func (s *Session) LeaveRoom(roomID string) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	if s.typing.Active() == roomID {
		if err := s.typing.Stop(); err != nil {
			log.Debug().Err(err).Msg("failed to stop typing on leave")
		}
	}
	if s.viewing == roomID {
		s.viewing = ""
	}
	s.guard.mark(UpdatePresence, roomID)
	s.guard.mark(UpdateTyping, roomID)
	return s.tracker.Leave(roomID)
}

// SetLeague records a room's roster and commissioner.
func (s *Session) SetLeague(league *models.League) {
	if league == nil {
		return
	}
	s.guard.Lock()
	defer s.guard.Unlock()
	s.leagues[league.ID] = league
	s.tracker.SetRoster(league.ID, league.Members)
	s.guard.mark(UpdatePresence, league.ID)
}

// SendOptions carries the optional parts of a message
type SendOptions struct {
	ReplyTo string
	Gif     *models.Gif
}

// Send shows text in roomID immediately as a pending message and emits it.
// The pending entry fails if the service does not echo it within the pending
// timeout. It returns the local id of the entry.
func (s *Session) Send(roomID, text string, opts SendOptions) (string, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return "", ErrUnknownRoom
	}
	text = strings.TrimSpace(text)
	if text == "" && opts.Gif == nil {
		return "", ErrEmptyMessage
	}

	var ref *models.ReplyRef
	if opts.ReplyTo != "" {
		original, ok := st.Get(opts.ReplyTo)
		if !ok {
			return "", store.ErrUnknownMessage
		}
		if err := reactions.CheckReplyable(original); err != nil {
			return "", err
		}
		ref = models.NewReplyRef(original)
	}

	if s.typing.Active() != "" {
		if err := s.typing.Stop(); err != nil {
			log.Debug().Err(err).Msg("failed to send typing-stop")
		}
	}

	localID := st.SendOptimistic(store.Draft{
		AuthorID:   s.config.SelfID,
		AuthorName: s.config.SelfName,
		Body:       text,
		Gif:        opts.Gif,
		ReplyTo:    ref,
	})
	s.guard.mark(UpdateMessages, roomID)

	msg, _ := st.Get(localID)
	return localID, s.emitMessage(st, msg)
}

// Retry re-sends a failed message under its original local id.
func (s *Session) Retry(roomID, localID string) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	msg, err := st.Retry(localID)
	if err != nil {
		return err
	}
	s.guard.mark(UpdateMessages, roomID)
	return s.emitMessage(st, msg)
}

// Discard drops a failed message.
func (s *Session) Discard(roomID, localID string) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	if err := st.Discard(localID); err != nil {
		return err
	}
	s.guard.mark(UpdateMessages, roomID)
	return nil
}

// emitMessage sends a pending entry and arms its timeout. It must be called
// with the lock held.
func (s *Session) emitMessage(st *store.Store, msg models.Message) error {
	payload := events.ChatMessagePayload{
		RoomID:   st.RoomID(),
		Message:  msg.Body,
		ReplyTo:  msg.ReplyTo,
		Gif:      msg.Gif,
		ClientID: msg.ClientID,
		Mentions: mentions.MentionedUserIDs(mentions.DetectMentions(msg.Body, s.roster(st.RoomID()))),
	}
	if err := s.conn.Emit(events.ChatMessage, payload); err != nil {
		st.MarkFailed(msg.ID)
		s.metrics.RecordSendFailed()
		return fmt.Errorf("failed to send message: %w", err)
	}

	localID := msg.ID
	s.slots.Schedule(pendingSlotPrefix+localID, s.config.PendingTimeout, func() {
		if st.MarkFailed(localID) {
			s.metrics.RecordSendFailed()
			s.guard.mark(UpdateMessages, st.RoomID())
		}
	})
	return nil
}

// Keystroke reports draft activity in roomID for the typing indicator.
func (s *Session) Keystroke(roomID string) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	if s.state != models.ConnectionStateConnected {
		return nil
	}
	return s.typing.Keystroke(roomID)
}

// React toggles the local user's emoji on a message, showing it immediately.
// A rejection from the service reverts it.
func (s *Session) React(roomID, messageID, emoji string) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	op, err := reactions.React(st, messageID, emoji, s.config.SelfID)
	if err != nil {
		return err
	}
	s.guard.mark(UpdateMessages, roomID)

	payload := events.ReactPayload{RoomID: roomID, MessageID: messageID, Emoji: emoji}
	if err := s.conn.Emit(events.React, payload); err != nil {
		reactions.Revert(st, op)
		return fmt.Errorf("failed to send reaction: %w", err)
	}
	s.pendingReacts[reactionKey(messageID, emoji)] = op
	return nil
}

// Delete asks the service to delete one of the local user's messages. The
// message changes once the service broadcasts the update.
func (s *Session) Delete(roomID, messageID string) error {
	return s.requestRemoval(roomID, messageID, events.DeleteMessage, func(msg models.Message) error {
		return reactions.AuthorizeDelete(msg, s.config.SelfID)
	})
}

// Moderate asks the service to remove a message as the room's commissioner.
func (s *Session) Moderate(roomID, messageID string) error {
	return s.requestRemoval(roomID, messageID, events.ModerateMessage, func(msg models.Message) error {
		return reactions.AuthorizeModerate(msg, s.leagues[roomID], s.config.SelfID)
	})
}

func (s *Session) requestRemoval(roomID, messageID string, name events.Name, authorize func(models.Message) error) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	msg, ok := st.Get(messageID)
	if !ok {
		return store.ErrUnknownMessage
	}
	if err := authorize(msg); err != nil {
		return err
	}
	if pending, ok := s.pendingRemoval[messageID]; ok {
		log.Debug().Str("message_id", messageID).Str("pending", string(pending)).Msg("removal already requested")
		return nil
	}

	if err := s.conn.Emit(name, events.MessageRefPayload{RoomID: roomID, MessageID: messageID}); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	s.pendingRemoval[messageID] = name
	return nil
}

// RemovalPending reports whether a delete or moderate request for messageID
// awaits the service.
func (s *Session) RemovalPending(messageID string) bool {
	s.guard.Lock()
	defer s.guard.Unlock()
	_, ok := s.pendingRemoval[messageID]
	return ok
}

// Report flags a message of another user for the commissioner.
func (s *Session) Report(ctx context.Context, roomID, messageID string) error {
	s.guard.Lock()
	st, ok := s.stores[roomID]
	if !ok {
		s.guard.Unlock()
		return ErrUnknownRoom
	}
	msg, ok := st.Get(messageID)
	s.guard.Unlock()
	if !ok {
		return store.ErrUnknownMessage
	}
	if err := reactions.CheckReportable(msg, s.config.SelfID); err != nil {
		return err
	}

	if err := s.api.Report(ctx, roomID, messageID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("message_id", messageID).Msg("failed to report message")
		return err
	}
	log.Info().Str("room_id", roomID).Str("message_id", messageID).Msg("message reported")
	return nil
}

// LoadOlder backfills the page before the oldest loaded message of roomID.
func (s *Session) LoadOlder(ctx context.Context, roomID string) (history.Page, error) {
	return s.loader.LoadOlder(ctx, roomID)
}

// SetViewing sets the room on screen; messages arriving in any other room
// count as unread. An empty id means no room is on screen.
func (s *Session) SetViewing(roomID string) {
	s.guard.Lock()
	defer s.guard.Unlock()
	s.viewing = roomID
}

// MarkAsRead acknowledges roomID with the service. The counter only resets
// once the service accepted it.
func (s *Session) MarkAsRead(ctx context.Context, roomID string) error {
	if err := s.unread.MarkAsRead(ctx, roomID); err != nil {
		return err
	}
	s.guard.Lock()
	s.guard.mark(UpdateUnread, roomID)
	s.guard.Unlock()
	return nil
}

// RefreshUnread replaces the unread counter of roomID with the service's count.
func (s *Session) RefreshUnread(ctx context.Context, roomID string) (int, error) {
	n, err := s.unread.Refresh(ctx, roomID)
	if err != nil {
		return 0, err
	}
	s.guard.Lock()
	s.guard.mark(UpdateUnread, roomID)
	s.guard.Unlock()
	return n, nil
}

// BeginReply returns the reference a reply to messageID will carry.
func (s *Session) BeginReply(roomID, messageID string) (*models.ReplyRef, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return nil, ErrUnknownRoom
	}
	msg, ok := st.Get(messageID)
	if !ok {
		return nil, store.ErrUnknownMessage
	}
	if err := reactions.CheckReplyable(msg); err != nil {
		return nil, err
	}
	return models.NewReplyRef(msg), nil
}

// Suggestions returns the members matching the mention being typed at the end of draft.
func (s *Session) Suggestions(roomID, draft string) []models.Member {
	s.guard.Lock()
	defer s.guard.Unlock()
	return mentions.ComposeMentionSuggestions(draft, s.roster(roomID))
}

// WhoReacted returns the display names behind one emoji of a message.
func (s *Session) WhoReacted(roomID, messageID, emoji string) []string {
	s.guard.Lock()
	defer s.guard.Unlock()

	st, ok := s.stores[roomID]
	if !ok {
		return nil
	}
	msg, ok := st.Get(messageID)
	if !ok {
		return nil
	}
	return reactions.ResolveReactionUsers(msg, emoji, s.roster(roomID))
}
