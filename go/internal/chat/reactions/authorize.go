package reactions

import (
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// CheckReactable rejects reactions on deleted or unconfirmed messages.
func CheckReactable(msg models.Message) error {
	return checkLive(msg)
}

// CheckReplyable rejects replies to deleted or unconfirmed messages.
func CheckReplyable(msg models.Message) error {
	return checkLive(msg)
}

// CheckReportable rejects reports of deleted or unconfirmed messages and of
// the reporter's own messages.
func CheckReportable(msg models.Message, actingUserID string) error {
	if err := checkLive(msg); err != nil {
		return err
	}
	if msg.AuthorID == actingUserID {
		return ErrNotAuthorized
	}
	return nil
}

// AuthorizeDelete allows only the author to delete their own message.
func AuthorizeDelete(msg models.Message, actingUserID string) error {
	if err := checkLive(msg); err != nil {
		return err
	}
	if actingUserID == "" || msg.AuthorID != actingUserID {
		return ErrNotAuthorized
	}
	return nil
}

// AuthorizeModerate allows only the room's commissioner to remove a message.
func AuthorizeModerate(msg models.Message, league *models.League, actingUserID string) error {
	if err := checkLive(msg); err != nil {
		return err
	}
	if !league.IsCommissioner(actingUserID) {
		return ErrNotAuthorized
	}
	return nil
}

func checkLive(msg models.Message) error {
	if msg.IsDeleted() {
		return ErrMessageDeleted
	}
	if !msg.IsConfirmed() {
		return ErrNotConfirmed
	}
	return nil
}
