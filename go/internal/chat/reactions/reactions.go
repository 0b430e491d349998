package reactions

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// UnknownUserName is shown for a reacting user missing from the roster
const UnknownUserName = "Unknown user"

// Toggle returns a copy of r with userID's membership in emoji flipped.
// An emoji whose set becomes empty is removed.
func Toggle(r models.Reactions, emoji, userID string) models.Reactions {
	out := r.Normalize()
	if out == nil {
		out = make(models.Reactions)
	}

	users := out[emoji]
	i := sort.SearchStrings(users, userID)
	if i < len(users) && users[i] == userID {
		users = append(users[:i:i], users[i+1:]...)
	} else {
		users = append(users[:i:i], append([]string{userID}, users[i:]...)...)
	}

	if len(users) == 0 {
		delete(out, emoji)
	} else {
		out[emoji] = users
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Optimistic records a local toggle that the service has not confirmed yet
type Optimistic struct {
	MessageID string
	Emoji     string
	UserID    string
	After     models.Reactions
}

// React applies userID's toggle of emoji on the message in st.
func React(st *store.Store, messageID, emoji, userID string) (Optimistic, error) {
	msg, ok := st.Get(messageID)
	if !ok {
		return Optimistic{}, store.ErrUnknownMessage
	}
	if err := CheckReactable(msg); err != nil {
		return Optimistic{}, err
	}

	after := Toggle(msg.Reactions, emoji, userID)
	if err := st.Update(messageID, store.Patch{Reactions: &after}); err != nil {
		return Optimistic{}, fmt.Errorf("failed to apply reaction: %w", err)
	}
	return Optimistic{MessageID: messageID, Emoji: emoji, UserID: userID, After: after}, nil
}

// Revert undoes an optimistic toggle unless the message changed since, in
// which case the newer state is kept. It reports whether it reverted.
func Revert(st *store.Store, op Optimistic) bool {
	msg, ok := st.Get(op.MessageID)
	if !ok || msg.IsDeleted() {
		return false
	}
	if !msg.Reactions.Equal(op.After) {
		log.Debug().
			Str("message_id", op.MessageID).
			Str("emoji", op.Emoji).
			Msg("reaction superseded, not reverting")
		return false
	}

	before := Toggle(msg.Reactions, op.Emoji, op.UserID)
	return st.Update(op.MessageID, store.Patch{Reactions: &before}) == nil
}

// ApplySnapshot replaces the whole reaction map of a message with the
// authoritative one. It is last-write-wins and does not merge.
func ApplySnapshot(st *store.Store, messageID string, snapshot models.Reactions) error {
	snapshot = snapshot.Normalize()
	if snapshot == nil {
		snapshot = models.Reactions{}
	}
	return st.Update(messageID, store.Patch{Reactions: &snapshot})
}

// ResolveReactionUsers returns the display names of the users who reacted to
// msg with emoji, sorted.
func ResolveReactionUsers(msg models.Message, emoji string, roster []models.Member) []string {
	users := msg.Reactions[emoji]
	if len(users) == 0 {
		return nil
	}

	names := make(map[string]string, len(roster))
	for _, m := range roster {
		names[m.UserID] = m.DisplayName
	}

	out := make([]string, 0, len(users))
	for _, id := range users {
		name, ok := names[id]
		if !ok || name == "" {
			name = UnknownUserName
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
