package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/chat/metrics"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// Config holds the reconnect policy of the connection manager
type Config struct {
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	BackoffMultiplier   float64
	RandomizationFactor float64
	MaxReconnects       int // -1 retries forever

	// EmitRate caps outbound events per second with bursts of EmitBurst. Zero disables the cap.
	EmitRate  float64
	EmitBurst int
}

// DefaultConfig returns the default reconnect policy
func DefaultConfig() Config {
	return Config{
		InitialBackoff:      500 * time.Millisecond,
		MaxBackoff:          30 * time.Second,
		BackoffMultiplier:   2,
		RandomizationFactor: 0.5,
		MaxReconnects:       -1,
	}
}

// ConnectionManager owns the single connection of a user session: the
// authenticated dial, the read loop and the reconnect policy. Transport
// errors are retried with exponential backoff, authentication failures are
// terminal.
type ConnectionManager struct {
	config  Config
	dialer  Dialer
	clock   clockwork.Clock
	metrics metrics.Collector

	// notifyMu is held from a state change until its handlers return, so
	// handlers see transitions in the order they were made.
	notifyMu sync.Mutex

	mu            sync.Mutex
	state         models.ConnectionState
	transport     Transport
	credentials   CredentialProvider
	epoch         uint64
	generation    uint64
	lifecycle     context.Context
	cancel        context.CancelFunc
	stateHandlers []StateHandler
	eventHandlers []EventHandler

	writeMu sync.Mutex
	limiter *rate.Limiter
}

// NewConnectionManager creates a disconnected manager.
func NewConnectionManager(config Config, dialer Dialer, clock clockwork.Clock, collector metrics.Collector) *ConnectionManager {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	cm := &ConnectionManager{
		config:  config,
		dialer:  dialer,
		clock:   clock,
		metrics: collector,
		state:   models.ConnectionStateDisconnected,
	}
	if config.EmitRate > 0 {
		burst := config.EmitBurst
		if burst <= 0 {
			burst = 1
		}
		cm.limiter = rate.NewLimiter(rate.Limit(config.EmitRate), burst)
	}
	return cm
}

// OnStateChange registers a handler for every state transition.
func (cm *ConnectionManager) OnStateChange(handler StateHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.stateHandlers = append(cm.stateHandlers, handler)
}

// OnEvent registers a handler for inbound events.
func (cm *ConnectionManager) OnEvent(handler EventHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.eventHandlers = append(cm.eventHandlers, handler)
}

func (cm *ConnectionManager) State() models.ConnectionState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// Connect dials the service with a credential from provider. An
// authentication failure is returned and leaves the manager disconnected; a
// transport failure moves it to reconnecting and retries in the background.
func (cm *ConnectionManager) Connect(ctx context.Context, provider CredentialProvider) error {
	cm.mu.Lock()
	if cm.state != models.ConnectionStateDisconnected {
		cm.mu.Unlock()
		return nil
	}
	cm.credentials = provider
	cm.epoch++
	epoch := cm.epoch
	lifecycle, cancel := context.WithCancel(context.Background())
	cm.lifecycle = lifecycle
	cm.cancel = cancel
	cm.mu.Unlock()

	cm.transition(epoch, models.ConnectionStateConnecting, nil)

	t, err := cm.dial(ctx, provider)
	switch {
	case err == nil:
		cm.attach(t, epoch)
		return nil
	case errors.Is(err, ErrAuthRejected):
		cm.terminate(epoch, err)
		return err
	default:
		log.Warn().Err(err).Msg("initial connect failed, reconnecting")
		if cm.transition(epoch, models.ConnectionStateReconnecting, err) {
			go cm.reconnectLoop(lifecycle, epoch)
		}
		return nil
	}
}

// Disconnect closes the connection and stops reconnecting.
func (cm *ConnectionManager) Disconnect() {
	cm.notifyMu.Lock()
	defer cm.notifyMu.Unlock()

	cm.mu.Lock()
	if cm.state == models.ConnectionStateDisconnected {
		cm.mu.Unlock()
		return
	}
	cm.epoch++
	if cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
		cm.lifecycle = nil
	}
	t := cm.transport
	cm.transport = nil
	from := cm.state
	cm.state = models.ConnectionStateDisconnected
	handlers := append([]StateHandler(nil), cm.stateHandlers...)
	cm.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing transport")
		}
	}
	log.Info().Msg("disconnected")
	cm.notify(handlers, StateChange{From: from, To: models.ConnectionStateDisconnected})
}

// Emit sends one event over the live connection.
func (cm *ConnectionManager) Emit(name events.Name, payload interface{}) error {
	env, err := events.NewEnvelope(name, payload)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	t := cm.transport
	connected := cm.state == models.ConnectionStateConnected
	cm.mu.Unlock()
	if !connected || t == nil {
		return ErrNotConnected
	}
	if cm.limiter != nil && !cm.limiter.AllowN(cm.clock.Now(), 1) {
		log.Warn().Str("event", string(name)).Msg("outbound event rate limited")
		return ErrRateLimited
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	if err := t.WriteEnvelope(env); err != nil {
		log.Error().Err(err).Str("event", string(name)).Msg("failed to write event")
		return fmt.Errorf("failed to emit %s: %w", name, err)
	}
	log.Debug().Str("event", string(name)).Msg("event sent")
	return nil
}

// dial fetches a fresh credential and opens a transport with it.
func (cm *ConnectionManager) dial(ctx context.Context, provider CredentialProvider) (Transport, error) {
	credential, err := provider.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}
	return cm.dialer.Dial(ctx, credential)
}

// attach installs t as the live transport and starts reading from it. A
// transport from a superseded Connect is closed.
func (cm *ConnectionManager) attach(t Transport, epoch uint64) bool {
	cm.notifyMu.Lock()
	defer cm.notifyMu.Unlock()

	cm.mu.Lock()
	if cm.epoch != epoch {
		cm.mu.Unlock()
		t.Close()
		return false
	}
	cm.transport = t
	cm.generation++
	gen := cm.generation
	from := cm.state
	cm.state = models.ConnectionStateConnected
	handlers := append([]StateHandler(nil), cm.stateHandlers...)
	cm.mu.Unlock()

	log.Info().Uint64("generation", gen).Msg("connected")
	cm.notify(handlers, StateChange{From: from, To: models.ConnectionStateConnected})

	go cm.readPump(t, gen, epoch)
	return true
}

// readPump delivers inbound events until the transport fails, then hands
// over to the reconnect loop.
func (cm *ConnectionManager) readPump(t Transport, gen, epoch uint64) {
	for {
		env, err := t.ReadEnvelope()
		if err != nil {
			cm.handleTransportError(t, gen, epoch, err)
			return
		}

		cm.mu.Lock()
		current := cm.generation == gen && cm.state == models.ConnectionStateConnected
		handlers := append([]EventHandler(nil), cm.eventHandlers...)
		cm.mu.Unlock()
		if !current {
			return
		}
		for _, h := range handlers {
			h(env)
		}
	}
}

func (cm *ConnectionManager) handleTransportError(t Transport, gen, epoch uint64, err error) {
	cm.mu.Lock()
	if cm.generation != gen || cm.epoch != epoch || cm.state != models.ConnectionStateConnected {
		cm.mu.Unlock()
		return
	}
	cm.transport = nil
	ctx := cm.lifecycle
	cm.mu.Unlock()
	t.Close()

	if errors.Is(err, ErrAuthRejected) {
		log.Error().Err(err).Msg("connection closed by authentication failure")
		cm.terminate(epoch, err)
		return
	}

	log.Warn().Err(err).Msg("connection lost, reconnecting")
	if cm.transition(epoch, models.ConnectionStateReconnecting, err) {
		cm.reconnectLoop(ctx, epoch)
	}
}

// reconnectLoop redials with exponential backoff until it connects, hits an
// authentication failure, runs out of attempts, or the manager is closed.
func (cm *ConnectionManager) reconnectLoop(ctx context.Context, epoch uint64) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cm.config.InitialBackoff),
		backoff.WithMaxInterval(cm.config.MaxBackoff),
		backoff.WithMultiplier(cm.config.BackoffMultiplier),
		backoff.WithRandomizationFactor(cm.config.RandomizationFactor),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(cm.clock),
	)

	cm.mu.Lock()
	provider := cm.credentials
	cm.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if cm.config.MaxReconnects >= 0 && attempt > cm.config.MaxReconnects {
			log.Error().Int("attempts", attempt-1).Msg("giving up reconnecting")
			cm.terminate(epoch, ErrReconnectsExhausted)
			return
		}

		wait := b.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-cm.clock.After(wait):
		}

		cm.metrics.RecordReconnectAttempt(attempt)
		log.Info().Int("attempt", attempt).Dur("after", wait).Msg("reconnecting")

		t, err := cm.dial(ctx, provider)
		if err == nil {
			cm.attach(t, epoch)
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			log.Error().Err(err).Msg("reconnect rejected")
			cm.terminate(epoch, err)
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
	}
}

// transition moves to state unless the epoch was superseded.
func (cm *ConnectionManager) transition(epoch uint64, to models.ConnectionState, cause error) bool {
	cm.notifyMu.Lock()
	defer cm.notifyMu.Unlock()

	cm.mu.Lock()
	if cm.epoch != epoch {
		cm.mu.Unlock()
		return false
	}
	from := cm.state
	cm.state = to
	handlers := append([]StateHandler(nil), cm.stateHandlers...)
	cm.mu.Unlock()

	cm.notify(handlers, StateChange{From: from, To: to, Err: cause})
	return true
}

// terminate ends the epoch in the disconnected state with cause.
func (cm *ConnectionManager) terminate(epoch uint64, cause error) {
	cm.notifyMu.Lock()
	defer cm.notifyMu.Unlock()

	cm.mu.Lock()
	if cm.epoch != epoch {
		cm.mu.Unlock()
		return
	}
	cm.epoch++
	if cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
		cm.lifecycle = nil
	}
	t := cm.transport
	cm.transport = nil
	from := cm.state
	cm.state = models.ConnectionStateDisconnected
	handlers := append([]StateHandler(nil), cm.stateHandlers...)
	cm.mu.Unlock()

	if t != nil {
		t.Close()
	}
	cm.notify(handlers, StateChange{From: from, To: models.ConnectionStateDisconnected, Err: cause})
}

// notify runs with notifyMu held. Handlers must not call Connect or Disconnect.
func (cm *ConnectionManager) notify(handlers []StateHandler, change StateChange) {
	cm.metrics.RecordConnectionState(string(change.To))
	for _, h := range handlers {
		h(change)
	}
}
