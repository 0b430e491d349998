package gesture

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/schedule"
)

const (
	// LongPressDelay is how long a press must be held to open who-reacted
	LongPressDelay = 500 * time.Millisecond
	// SwipeThreshold is the horizontal travel that turns a drag into swipe-to-reply
	SwipeThreshold = 60.0
	// TapTolerance is the travel below which a press still counts as stationary
	TapTolerance = 10.0
)

const longPressSlot = "long-press"

// Kind is the gesture a press resolved to
type Kind string

const (
	KindNone      Kind = ""
	KindTap       Kind = "tap"
	KindLongPress Kind = "long-press"
	KindSwipe     Kind = "swipe-reply"
	KindCancel    Kind = "cancel"
)

// Point is a pointer position or displacement, in the same units for mouse and touch
type Point struct {
	X, Y float64
}

// Target is what the pointer went down on
type Target struct {
	RoomID    string
	MessageID string
	Emoji     string
}

// Result is a resolved gesture
type Result struct {
	Kind   Kind
	Target Target
}

// Recognizer turns one pointer's start, move and end into a tap, a long
// press or a horizontal swipe. A press held past the delay without moving
// resolves to a long press as soon as the delay elapses; the release then
// resolves to nothing.
type Recognizer struct {
	mu      sync.Mutex
	slots   *schedule.Slots
	delay   time.Duration
	onPress func(Result)

	active      bool
	target      Target
	delta       Point
	moved       bool
	longPressed bool
}

// NewRecognizer creates a recognizer whose long presses are delivered to
// onLongPress. The callback runs on a timer goroutine and must not call back
// into the recognizer.
func NewRecognizer(clock clockwork.Clock, delay time.Duration, onLongPress func(Result)) *Recognizer {
	if delay <= 0 {
		delay = LongPressDelay
	}
	r := &Recognizer{
		delay:   delay,
		onPress: onLongPress,
	}
	r.slots = schedule.NewSlots(clock, &r.mu)
	return r
}

// Start begins tracking a press on target. A press already in progress is abandoned.
func (r *Recognizer) Start(target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	r.target = target
	r.delta = Point{}
	r.moved = false
	r.longPressed = false

	r.slots.Schedule(longPressSlot, r.delay, r.fireLongPress)
}

// Move reports the pointer's displacement since Start.
func (r *Recognizer) Move(delta Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.longPressed {
		return
	}
	r.delta = delta
	if math.Abs(delta.X) > TapTolerance || math.Abs(delta.Y) > TapTolerance {
		if !r.moved {
			r.slots.Cancel(longPressSlot)
		}
		r.moved = true
	}
}

// SwipeProgress returns how far the current drag is towards a swipe, in [0, 1].
func (r *Recognizer) SwipeProgress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.delta.X <= 0 {
		return 0
	}
	return math.Min(r.delta.X/SwipeThreshold, 1)
}

// End resolves the press on release.
func (r *Recognizer) End() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return Result{Kind: KindNone}
	}
	r.active = false
	r.slots.Cancel(longPressSlot)

	switch {
	case r.longPressed:
		return Result{Kind: KindNone, Target: r.target}
	case !r.moved:
		return Result{Kind: KindTap, Target: r.target}
	case r.delta.X >= SwipeThreshold && math.Abs(r.delta.Y) < r.delta.X:
		log.Debug().Str("message_id", r.target.MessageID).Float64("dx", r.delta.X).Msg("swipe to reply")
		return Result{Kind: KindSwipe, Target: r.target}
	default:
		return Result{Kind: KindCancel, Target: r.target}
	}
}

// Cancel abandons the press, as when the pointer leaves the message.
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.slots.Cancel(longPressSlot)
}

// Close stops the long-press timer for good.
func (r *Recognizer) Close() {
	r.slots.Stop()
}

// fireLongPress runs from the long-press slot with mu held.
func (r *Recognizer) fireLongPress() {
	if !r.active || r.moved {
		return
	}
	r.longPressed = true
	log.Debug().Str("message_id", r.target.MessageID).Str("emoji", r.target.Emoji).Msg("long press")
	if r.onPress != nil {
		r.onPress(Result{Kind: KindLongPress, Target: r.target})
	}
}
