package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Name is the name of a socket event
type Name string

// Outbound (client to service)
const (
	JoinLeague      Name = "join-league"
	LeaveLeague     Name = "leave-league"
	ChatMessage     Name = "chat-message"
	TypingStart     Name = "typing-start"
	TypingStop      Name = "typing-stop"
	React           Name = "react"
	DeleteMessage   Name = "delete-message"
	ModerateMessage Name = "moderate-message"
)

// Inbound (service to client)
const (
	NewMessage     Name = "new-message"
	ReactionUpdate Name = "reaction-update"
	MessageUpdated Name = "message-updated"
	OnlineUsers    Name = "online-users"
	TypingUpdate   Name = "typing-update"
	Error          Name = "error"
)

var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the frame every socket message travels in
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for the named event.
func NewEnvelope(name Name, payload interface{}) (*Envelope, error) {
	env := &Envelope{Event: name}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	env.Data = data
	return env, nil
}

// Decode reads an envelope off the wire.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope without event name: %w", ErrUnknownEvent)
	}
	return &env, nil
}
