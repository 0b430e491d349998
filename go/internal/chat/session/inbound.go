package session

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/notify"
	"github.com/mcdev12/leaguechat/go/internal/chat/reactions"
	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// HandleEnvelope applies one inbound event. Events are applied in the order
// they are handed in.
func (s *Session) HandleEnvelope(env *events.Envelope) {
	payload, err := events.ParsePayload(env)
	if err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("dropping undecodable event")
		return
	}

	s.guard.Lock()
	defer s.guard.Unlock()

	switch p := payload.(type) {
	case models.Message:
		s.handleNewMessage(p)
	case events.ReactionUpdatePayload:
		s.handleReactionUpdate(p)
	case events.MessageUpdatedPayload:
		s.handleMessageUpdated(p)
	case events.OnlineUsersPayload:
		room, ok := s.tracker.HandleOnlineUsers([]models.Member(p))
		if !ok {
			s.metrics.RecordStaleDrop("presence")
			return
		}
		s.guard.mark(UpdatePresence, room)
	case events.TypingUpdatePayload:
		room, ok := s.tracker.HandleTypingUpdate(p.Users)
		if !ok {
			s.metrics.RecordStaleDrop("typing")
			return
		}
		s.guard.mark(UpdateTyping, room)
		s.slots.Schedule(typingExpirySlot, s.config.TypingTTL, s.expireTyping)
	case events.ErrorPayload:
		s.handleRejection(p)
	}
}

func (s *Session) handleNewMessage(msg models.Message) {
	if msg.RoomID == "" {
		msg.RoomID = s.tracker.ActiveRoom()
	}
	if msg.RoomID == "" || msg.ID == "" {
		log.Warn().Str("message_id", msg.ID).Msg("new message without room or id dropped")
		return
	}
	st := s.ensureStore(msg.RoomID)
	_, known := st.Get(msg.ID)

	localID := ""
	if msg.ClientID != "" {
		if local, ok := st.Get(msg.ClientID); ok && !local.IsConfirmed() {
			localID = msg.ClientID
		}
	} else if msg.AuthorID == s.config.SelfID && !known {
		localID, _ = st.FindPendingMatch(msg)
	}

	if localID != "" {
		s.slots.Cancel(pendingSlotPrefix + localID)
		matched := st.Reconcile(localID, msg)
		s.metrics.RecordReconciled(matched)
		log.Debug().
			Str("room_id", msg.RoomID).
			Str("local_id", localID).
			Str("message_id", msg.ID).
			Msg("reconciled own message")
	} else if st.Append(msg) {
		s.metrics.RecordMessageApplied("socket")
	} else if !known {
		known = true
	}
	s.guard.mark(UpdateMessages, msg.RoomID)

	if known || msg.AuthorID == s.config.SelfID {
		return
	}
	if msg.RoomID != s.viewing {
		s.unread.Increment(msg.RoomID)
		s.guard.mark(UpdateUnread, msg.RoomID)
	}
	for _, n := range notify.Detect(msg, s.config.SelfID, s.roster(msg.RoomID)) {
		if s.feed.Add(n) {
			s.guard.mark(UpdateNotifications, "")
		}
	}
}

func (s *Session) handleReactionUpdate(p events.ReactionUpdatePayload) {
	st, _, ok := s.findMessage(p.MessageID)
	if !ok {
		log.Warn().Str("message_id", p.MessageID).Msg("reaction update for unknown message ignored")
		return
	}
	if err := reactions.ApplySnapshot(st, p.MessageID, p.Reactions); err != nil {
		log.Debug().Err(err).Str("message_id", p.MessageID).Msg("reaction snapshot not applied")
		return
	}
	s.dropPendingReacts(p.MessageID)
	s.guard.mark(UpdateMessages, st.RoomID())
}

func (s *Session) handleMessageUpdated(p events.MessageUpdatedPayload) {
	delete(s.pendingRemoval, p.MessageID)

	st, _, ok := s.findMessage(p.MessageID)
	if !ok {
		log.Warn().Str("message_id", p.MessageID).Msg("update for unknown message ignored")
		return
	}
	err := st.Update(p.MessageID, store.Patch{
		Body:      p.Message,
		Gif:       p.Gif,
		DeletedAt: p.DeletedAt,
		DeletedBy: p.DeletedBy,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyDeleted) {
		log.Warn().Err(err).Str("message_id", p.MessageID).Msg("message update rejected")
		return
	}
	if p.DeletedAt != nil {
		s.dropPendingReacts(p.MessageID)
	}
	s.guard.mark(UpdateMessages, st.RoomID())
}

// handleRejection undoes the local effect of an action the service refused.
func (s *Session) handleRejection(p events.ErrorPayload) {
	log.Warn().
		Str("event", string(p.Event)).
		Str("message_id", p.MessageID).
		Str("reason", p.Reason).
		Msg("action rejected by service")

	switch p.Event {
	case events.React:
		key := reactionKey(p.MessageID, p.Emoji)
		op, ok := s.pendingReacts[key]
		if !ok {
			return
		}
		delete(s.pendingReacts, key)
		st, _, found := s.findMessage(op.MessageID)
		if found && reactions.Revert(st, op) {
			s.guard.mark(UpdateMessages, st.RoomID())
		}
	case events.DeleteMessage, events.ModerateMessage:
		delete(s.pendingRemoval, p.MessageID)
	case events.ChatMessage:
		st, _, found := s.findMessage(p.MessageID)
		if !found {
			return
		}
		s.slots.Cancel(pendingSlotPrefix + p.MessageID)
		if st.MarkFailed(p.MessageID) {
			s.metrics.RecordSendFailed()
			s.guard.mark(UpdateMessages, st.RoomID())
		}
	}
}

// expireTyping runs from the typing-expiry slot under the lock.
func (s *Session) expireTyping() {
	room := s.tracker.ActiveRoom()
	if s.tracker.PruneTyping() && room != "" {
		s.guard.mark(UpdateTyping, room)
	}
}

// dropPendingReacts forgets the optimistic toggles of a message once the
// service has sent its canonical state.
func (s *Session) dropPendingReacts(messageID string) {
	for key, op := range s.pendingReacts {
		if op.MessageID == messageID {
			delete(s.pendingReacts, key)
		}
	}
}
