package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
)

// Close codes the service uses to reject a session's credential
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseUnauthorized    = 4401
)

// WebsocketConfig configures the websocket transport
type WebsocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
}

// DefaultWebsocketConfig returns the default transport settings for url
func DefaultWebsocketConfig(url string) WebsocketConfig {
	return WebsocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// WebsocketDialer opens websocket transports authenticated with a bearer token
type WebsocketDialer struct {
	config WebsocketConfig
	dialer *websocket.Dialer
}

func NewWebsocketDialer(config WebsocketConfig) *WebsocketDialer {
	return &WebsocketDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial performs the handshake. A 401 or 403 response is reported as ErrAuthRejected.
func (d *WebsocketDialer) Dial(ctx context.Context, credential string) (Transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, resp, err := d.dialer.DialContext(ctx, d.config.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake returned %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", d.config.URL, err)
	}

	t := &websocketTransport{
		conn:   conn,
		config: d.config,
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(d.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(d.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(d.config.ReadTimeout))
		return nil
	})
	go t.pingLoop()

	log.Debug().Str("url", d.config.URL).Msg("websocket handshake complete")
	return t, nil
}

type websocketTransport struct {
	conn   *websocket.Conn
	config WebsocketConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// ReadEnvelope blocks for the next well-formed frame. Malformed frames are
// logged and skipped.
func (t *websocketTransport) ReadEnvelope() (*events.Envelope, error) {
	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, ClosePolicyViolation, CloseUnauthorized) {
				return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected websocket close error")
			}
			return nil, err
		}
		t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

		env, err := events.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Int("frame_size", len(frame)).Msg("dropping malformed frame")
			continue
		}
		return env, nil
	}
}

func (t *websocketTransport) WriteEnvelope(env *events.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	return t.conn.WriteJSON(env)
}

func (t *websocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := t.conn.WriteMessage(websocket.CloseMessage, msg); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			log.Debug().Err(werr).Msg("failed to send close frame")
		}
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *websocketTransport) pingLoop() {
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}
