package models

// Member represents a user as seen by the chat: a roster entry, a presence entry
// or a typing entry.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
