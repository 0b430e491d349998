package events

import (
	"time"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

// Outbound payloads. join-league, leave-league, typing-start and typing-stop
// carry the bare room id string.

// ChatMessagePayload is the payload for a chat-message event
type ChatMessagePayload struct {
	RoomID   string           `json:"roomId"`
	Message  string           `json:"message"`
	ReplyTo  *models.ReplyRef `json:"replyTo,omitempty"`
	Gif      *models.Gif      `json:"gif,omitempty"`
	ClientID string           `json:"clientId"`
	Mentions []string         `json:"mentions,omitempty"`
}

// ReactPayload is the payload for a react event
type ReactPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// MessageRefPayload is the payload for delete-message and moderate-message
type MessageRefPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// Inbound payloads.

// ReactionUpdatePayload carries the full reaction map of one message
type ReactionUpdatePayload struct {
	MessageID string           `json:"messageId"`
	Reactions models.Reactions `json:"reactions"`
}

// MessageUpdatedPayload is a partial update of one message. Absent fields are unchanged.
type MessageUpdatedPayload struct {
	MessageID string           `json:"messageId"`
	Message   *string          `json:"message,omitempty"`
	Gif       *models.Gif      `json:"gif,omitempty"`
	DeletedAt *time.Time       `json:"deletedAt,omitempty"`
	DeletedBy models.DeletedBy `json:"deletedBy,omitempty"`
}

// OnlineUsersPayload is the presence list of the room the connection is in
type OnlineUsersPayload []models.Member

// TypingUpdatePayload lists the users currently typing in the room the connection is in
type TypingUpdatePayload struct {
	Users []models.Member `json:"users"`
}

// ErrorPayload reports that the service rejected an action
type ErrorPayload struct {
	Event     Name   `json:"event"`
	MessageID string `json:"messageId,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
