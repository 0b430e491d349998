package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

var (
	// ErrAuthRejected is returned when the service refuses the credential. It is never retried.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrNotConnected is returned by Emit when there is no live connection
	ErrNotConnected = errors.New("not connected")
	// ErrReconnectsExhausted is reported when MaxReconnects attempts all failed
	ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")
	// ErrRateLimited is returned by Emit when the outbound event rate is exceeded
	ErrRateLimited = errors.New("outbound rate limit exceeded")
	// ErrCredentialExpired is returned for a JWT whose exp claim has passed
	ErrCredentialExpired = errors.New("credential expired")
)

// Transport is one live bidirectional channel to the chat service
type Transport interface {
	ReadEnvelope() (*events.Envelope, error)
	WriteEnvelope(env *events.Envelope) error
	Close() error
}

// Dialer opens a transport authenticated with credential
type Dialer interface {
	Dial(ctx context.Context, credential string) (Transport, error)
}

// CredentialProvider returns the credential for the next dial attempt
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) {
	return f(ctx)
}

// FileCredentialProvider reads a bearer token from a file on every attempt, so
// a token refreshed on disk is picked up by the next reconnect. With a Clock
// set, a JWT whose exp claim has passed is refused without dialing.
type FileCredentialProvider struct {
	Path  string
	Clock clockwork.Clock
}

func (p FileCredentialProvider) Credential(ctx context.Context) (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", p.Path)
	}
	if p.Clock != nil {
		if err := CheckExpiry(token, p.Clock.Now()); err != nil {
			return "", err
		}
	}
	return token, nil
}

// CheckExpiry refuses a JWT whose exp claim is at or before now. The
// signature is not verified; the service does that. Opaque tokens and
// tokens without exp pass.
func CheckExpiry(token string, now time.Time) error {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w at %s", ErrCredentialExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}

// StateChange describes one connection state transition
type StateChange struct {
	From models.ConnectionState
	To   models.ConnectionState
	Err  error
}

// StateHandler observes connection state transitions
type StateHandler func(StateChange)

// EventHandler receives inbound envelopes in transport order
type EventHandler func(*events.Envelope)
