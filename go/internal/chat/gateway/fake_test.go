package gateway

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
)

type fakeTransport struct {
	inbound chan *events.Envelope
	failure chan error

	mu      sync.Mutex
	written []*events.Envelope
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan *events.Envelope, 16),
		failure: make(chan error, 1),
	}
}

func (t *fakeTransport) ReadEnvelope() (*events.Envelope, error) {
	select {
	case env := <-t.inbound:
		return env, nil
	case err := <-t.failure:
		return nil, err
	}
}

func (t *fakeTransport) WriteEnvelope(env *events.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	t.written = append(t.written, env)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		select {
		case t.failure <- io.EOF:
		default:
		}
	}
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) sent() []*events.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*events.Envelope(nil), t.written...)
}

// dialResult is one scripted outcome of fakeDialer.Dial
type dialResult struct {
	transport *fakeTransport
	err       error
}

type fakeDialer struct {
	mu          sync.Mutex
	results     []dialResult
	credentials []string
}

func (d *fakeDialer) script(results ...dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

func (d *fakeDialer) Dial(ctx context.Context, credential string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials = append(d.credentials, credential)
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.transport, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.credentials...)
}

// sequenceCredentials hands out tok-1, tok-2, ... on successive calls
func sequenceCredentials() CredentialFunc {
	var mu sync.Mutex
	n := 0
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "tok-" + string(rune('0'+n)), nil
	}
}

type stateRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *stateRecorder) record(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *stateRecorder) all() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StateChange(nil), r.changes...)
}
