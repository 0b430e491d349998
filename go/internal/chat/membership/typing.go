package membership

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/schedule"
)

// DefaultTypingStopDelay is how long after the last keystroke typing-stop is sent
const DefaultTypingStopDelay = 2000 * time.Millisecond

const typingStopSlot = "typing-stop"

// TypingIndicator sends typing-start once per burst of keystrokes and a single
// typing-stop after the burst, using one replaceable timer.
// Its methods must be called under the guard of slots.
type TypingIndicator struct {
	emitter Emitter
	slots   *schedule.Slots
	delay   time.Duration
	room    string
}

func NewTypingIndicator(emitter Emitter, slots *schedule.Slots, delay time.Duration) *TypingIndicator {
	if delay <= 0 {
		delay = DefaultTypingStopDelay
	}
	return &TypingIndicator{
		emitter: emitter,
		slots:   slots,
		delay:   delay,
	}
}

// Active returns the room typing-start was sent for, if any.
func (t *TypingIndicator) Active() string { return t.room }

// Keystroke (re)arms the stop timer for roomID.
func (t *TypingIndicator) Keystroke(roomID string) error {
	if t.room != "" && t.room != roomID {
		if err := t.Stop(); err != nil {
			return err
		}
	}

	if t.room == "" {
		if err := t.emitter.Emit(events.TypingStart, roomID); err != nil {
			return fmt.Errorf("failed to send typing-start: %w", err)
		}
		t.room = roomID
	}

	t.slots.Schedule(typingStopSlot, t.delay, func() {
		if t.room != roomID {
			return
		}
		t.room = ""
		if err := t.emitter.Emit(events.TypingStop, roomID); err != nil {
			log.Debug().Err(err).Str("room_id", roomID).Msg("failed to send typing-stop")
		}
	})
	return nil
}

// Stop cancels the timer and sends typing-stop now, as on send or room switch.
func (t *TypingIndicator) Stop() error {
	t.slots.Cancel(typingStopSlot)
	if t.room == "" {
		return nil
	}
	room := t.room
	t.room = ""
	if err := t.emitter.Emit(events.TypingStop, room); err != nil {
		return fmt.Errorf("failed to send typing-stop: %w", err)
	}
	return nil
}

// Reset cancels the timer without sending anything, as on disconnect.
func (t *TypingIndicator) Reset() {
	t.slots.Cancel(typingStopSlot)
	t.room = ""
}
