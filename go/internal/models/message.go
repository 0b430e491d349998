package models

import (
	"sort"
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of characters of the original body a reply embeds
const PreviewLength = 50

// DeletedReplyPreview replaces a reply preview whose original message was deleted
const DeletedReplyPreview = "Message deleted"

// ClientState tracks the local lifecycle of a message
type ClientState string

const (
	ClientStatePending   ClientState = "pending"
	ClientStateConfirmed ClientState = "confirmed"
	ClientStateFailed    ClientState = "failed"
)

// DeletedBy attributes a deletion
type DeletedBy string

const (
	DeletedByAuthor       DeletedBy = "author"
	DeletedByCommissioner DeletedBy = "commissioner"
)

// Valid reports whether d is one of the known attributions.
func (d DeletedBy) Valid() bool {
	return d == DeletedByAuthor || d == DeletedByCommissioner
}

// Gif is an attached animation
type Gif struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ReplyRef is the reference a reply carries to its original message
type ReplyRef struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Preview    string `json:"preview"`
}

// Message is one entry of a room's chat log
type Message struct {
	ID          string      `json:"id"`
	ClientID    string      `json:"clientId,omitempty"`
	RoomID      string      `json:"roomId"`
	AuthorID    string      `json:"authorId"`
	AuthorName  string      `json:"authorName"`
	Body        string      `json:"message"`
	Gif         *Gif        `json:"gif,omitempty"`
	ReplyTo     *ReplyRef   `json:"replyTo,omitempty"`
	Reactions   Reactions   `json:"reactions,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	DeletedAt   *time.Time  `json:"deletedAt,omitempty"`
	DeletedBy   DeletedBy   `json:"deletedBy,omitempty"`
	ClientState ClientState `json:"clientState,omitempty"`
}

// IsDeleted reports whether the message was removed by its author or a commissioner.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// IsConfirmed reports whether the server has acknowledged the message.
func (m *Message) IsConfirmed() bool {
	return m.ClientState == "" || m.ClientState == ClientStateConfirmed
}

// VisibleBody returns the body as it may be displayed. Deleted messages show nothing.
func (m *Message) VisibleBody() string {
	if m.IsDeleted() {
		return ""
	}
	return m.Body
}

// VisibleGif returns the attachment unless the message was deleted.
func (m *Message) VisibleGif() *Gif {
	if m.IsDeleted() {
		return nil
	}
	return m.Gif
}

// Clone returns a deep copy, safe to hand out of the store.
func (m Message) Clone() Message {
	out := m
	if m.Gif != nil {
		g := *m.Gif
		out.Gif = &g
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	out.Reactions = m.Reactions.Clone()
	return out
}

// Preview truncates body to the first PreviewLength characters.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength])
}

// NewReplyRef captures the reply reference for a reply to original.
func NewReplyRef(original Message) *ReplyRef {
	return &ReplyRef{
		ID:         original.ID,
		AuthorID:   original.AuthorID,
		AuthorName: original.AuthorName,
		Preview:    Preview(original.Body),
	}
}

// Reactions maps an emoji to the ids of the users who reacted with it.
// It is kept sparse and every id list is sorted and unique.
type Reactions map[string][]string

// Has reports whether userID reacted with emoji.
func (r Reactions) Has(emoji, userID string) bool {
	users := r[emoji]
	i := sort.SearchStrings(users, userID)
	return i < len(users) && users[i] == userID
}

// Count returns the number of users that reacted with emoji.
func (r Reactions) Count(emoji string) int {
	return len(r[emoji])
}

// Emojis returns the reacted emoji in sorted order.
func (r Reactions) Emojis() []string {
	out := make([]string, 0, len(r))
	for emoji := range r {
		out = append(out, emoji)
	}
	sort.Strings(out)
	return out
}

func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// Normalize returns a canonical copy: empty sets dropped, ids sorted and deduplicated.
func (r Reactions) Normalize() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		set := make([]string, 0, len(users))
		seen := make(map[string]struct{}, len(users))
		for _, u := range users {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			set = append(set, u)
		}
		if len(set) == 0 {
			continue
		}
		sort.Strings(set)
		out[emoji] = set
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Equal reports whether two reaction maps hold the same sets.
func (r Reactions) Equal(other Reactions) bool {
	if len(r) != len(other) {
		return false
	}
	for emoji, users := range r {
		o, ok := other[emoji]
		if !ok || len(o) != len(users) {
			return false
		}
		for i := range users {
			if users[i] != o[i] {
				return false
			}
		}
	}
	return true
}
