package events

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

// ParsePayload normalizes an inbound envelope and decodes its data into the
// matching payload type.
func ParsePayload(env *Envelope) (interface{}, error) {
	data, err := Normalize(env.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", env.Event, err)
	}

	switch env.Event {
	case NewMessage:
		var payload models.Message
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		payload.Reactions = payload.Reactions.Normalize()
		return payload, nil

	case ReactionUpdate:
		var payload ReactionUpdatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		payload.Reactions = payload.Reactions.Normalize()
		return payload, nil

	case MessageUpdated:
		var payload MessageUpdatedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case OnlineUsers:
		var payload OnlineUsersPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypingUpdate:
		var payload TypingUpdatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case Error:
		var payload ErrorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%s: %w", env.Event, ErrUnknownEvent)
	}
}
