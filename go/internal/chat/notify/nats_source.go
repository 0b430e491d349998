package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
)

// SubjectPrefix is the subject prefix of the recipient-keyed notification stream
const SubjectPrefix = "chat.notifications."

// SubjectFor returns the notification subject of userID.
func SubjectFor(userID string) string {
	return SubjectPrefix + userID
}

// Op is what happened to a notification
type Op string

const (
	OpCreated Op = "created"
	OpRead    Op = "read"
	OpDeleted Op = "deleted"
)

type notificationEvent struct {
	Op           Op           `json:"op"`
	Notification Notification `json:"notification"`
}

// NATSConfig holds configuration for the notification subscription
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default notification subscription configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSSource feeds the local user's notification stream into a Feed
type NATSSource struct {
	nc     *nats.Conn
	owned  bool
	feed   *Feed
	userID string
	sub    *nats.Subscription

	onChange func()
}

// ConnectNATSSource dials NATS and returns a source for userID's notifications.
func ConnectNATSSource(feed *Feed, userID string, config NATSConfig) (*NATSSource, error) {
	opts := []nats.Option{
		nats.Name("leaguechat-" + userID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	src := NewNATSSource(nc, feed, userID)
	src.owned = true
	return src, nil
}

// NewNATSSource uses an existing connection.
func NewNATSSource(nc *nats.Conn, feed *Feed, userID string) *NATSSource {
	return &NATSSource{nc: nc, feed: feed, userID: userID}
}

// OnChange registers fn to run after each message that changed the feed.
// Call it before Start.
func (s *NATSSource) OnChange(fn func()) {
	s.onChange = fn
}

// Start subscribes to the user's notification subject.
func (s *NATSSource) Start() error {
	sub, err := s.nc.Subscribe(SubjectFor(s.userID), s.handle)
	if err != nil {
		return fmt.Errorf("subscribe to notifications: %w", err)
	}
	s.sub = sub
	log.Info().Str("subject", sub.Subject).Msg("subscribed to notifications")
	return nil
}

// Stop unsubscribes, and closes the connection if the source dialed it.
func (s *NATSSource) Stop() error {
	var err error
	if s.sub != nil {
		err = s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.owned {
		s.nc.Close()
	}
	return err
}

func (s *NATSSource) handle(msg *nats.Msg) {
	changed, err := s.apply(msg.Data)
	if err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to process notification")
		return
	}
	if changed && s.onChange != nil {
		s.onChange()
	}
}

// apply reports whether the feed changed.
func (s *NATSSource) apply(data []byte) (bool, error) {
	normalized, err := events.Normalize(data)
	if err != nil {
		return false, fmt.Errorf("normalize notification: %w", err)
	}

	var event notificationEvent
	if err := json.Unmarshal(normalized, &event); err != nil {
		return false, fmt.Errorf("unmarshal notification: %w", err)
	}

	switch event.Op {
	case OpCreated, "":
		if !s.feed.Add(event.Notification) {
			return false, nil
		}
		log.Debug().
			Str("kind", string(event.Notification.Kind)).
			Str("message_id", event.Notification.MessageID).
			Msg("notification received")
		return true, nil
	case OpRead:
		id, ok := s.feed.resolve(event.Notification)
		if !ok {
			return false, ErrUnknownNotification
		}
		if err := s.feed.MarkRead(id); err != nil {
			return false, err
		}
		return true, nil
	case OpDeleted:
		id, ok := s.feed.resolve(event.Notification)
		if !ok {
			return false, ErrUnknownNotification
		}
		if err := s.feed.Delete(id); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown notification op %q", event.Op)
	}
}
