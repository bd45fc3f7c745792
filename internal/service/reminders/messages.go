package reminders

import (
	"fmt"

	"github.com/jmehdipour/holo/internal/model"
)

// NotificationText renders the message delivered when a reminder fires.
func NotificationText(r model.Reminder, belated bool) string {
	due := r.NextTrigger.Unix()
	msg := r.MessageText()

	switch {
	case r.Message != nil && belated:
		return fmt.Sprintf("<@%d>, sorry for the delay! You wanted me to remind you <t:%d:R>: %s", r.UserID, due, msg)
	case r.Message != nil:
		return fmt.Sprintf("<@%d>, here is your reminder: %s", r.UserID, msg)
	case belated:
		return fmt.Sprintf("<@%d>, sorry for the delay! You wanted me to remind you of something <t:%d:R>.", r.UserID, due)
	default:
		return fmt.Sprintf("<@%d>, you wanted me to remind you of something.", r.UserID)
	}
}
