package session

import (
	"github.com/mcdev12/leaguechat/go/internal/chat/gesture"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// GestureOutcome is what a resolved gesture on a message leads to
type GestureOutcome struct {
	Kind     gesture.Kind
	Reply    *models.ReplyRef
	Reactors []string
}

// ResolveGesture maps a gesture on a message to its action: a long press on
// a reaction lists who reacted, a swipe starts a reply.
func (s *Session) ResolveGesture(res gesture.Result) (GestureOutcome, error) {
	out := GestureOutcome{Kind: res.Kind}
	switch res.Kind {
	case gesture.KindLongPress:
		out.Reactors = s.WhoReacted(res.Target.RoomID, res.Target.MessageID, res.Target.Emoji)
	case gesture.KindSwipe:
		ref, err := s.BeginReply(res.Target.RoomID, res.Target.MessageID)
		if err != nil {
			return out, err
		}
		out.Reply = ref
	}
	return out, nil
}
