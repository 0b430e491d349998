package membership

import (
	"errors"
	"sync"

	"github.com/mcdev12/leaguechat/go/internal/chat/events"
)

type emitted struct {
	name    events.Name
	payload interface{}
}

type fakeEmitter struct {
	mu   sync.Mutex
	sent []emitted
	fail bool
}

func (f *fakeEmitter) Emit(name events.Name, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("not connected")
	}
	f.sent = append(f.sent, emitted{name: name, payload: payload})
	return nil
}

func (f *fakeEmitter) names() []events.Name {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Name, len(f.sent))
	for i, e := range f.sent {
		out[i] = e.name
	}
	return out
}

func (f *fakeEmitter) count(name events.Name) int {
	n := 0
	for _, got := range f.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) last() emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}
