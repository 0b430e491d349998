package reactions

import "errors"

var (
	// ErrMessageDeleted is returned for actions on a deleted message
	ErrMessageDeleted = errors.New("message deleted")
	// ErrNotAuthorized is returned when the acting user may not perform the action
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotConfirmed is returned for actions on a message the server has not acknowledged
	ErrNotConfirmed = errors.New("message not confirmed")
)
