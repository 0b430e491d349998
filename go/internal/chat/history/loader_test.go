package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

var base = time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

type fetchCall struct {
	roomID string
	limit  int
	before *time.Time
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	pages   [][]models.Message
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) History(ctx context.Context, roomID string, limit int, before *time.Time) ([]models.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{roomID: roomID, limit: limit, before: before})
	var page []models.Message
	if len(f.pages) > 0 {
		page = f.pages[0]
		f.pages = f.pages[1:]
	}
	err := f.err
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return page, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSink struct {
	mu     sync.Mutex
	left   map[string]bool
	older  [][]models.Message
	latest [][]models.Message
}

func (s *fakeSink) ApplyOlder(roomID string, page []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left[roomID] {
		return false
	}
	s.older = append(s.older, page)
	return true
}

func (s *fakeSink) ApplyLatest(roomID string, page []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left[roomID] {
		return false
	}
	s.latest = append(s.latest, page)
	return true
}

// page returns n messages, newest first, ending just before end.
func page(n int, end time.Time) []models.Message {
	out := make([]models.Message, n)
	for i := 0; i < n; i++ {
		at := end.Add(-time.Duration(i+1) * time.Minute)
		out[i] = models.Message{ID: fmt.Sprintf("m-%d", at.Unix()), RoomID: "room", CreatedAt: at}
	}
	return out
}

func TestLoadOlderWalksBackwards(t *testing.T) {
	first := page(50, base)
	second := page(20, base.Add(-50*time.Minute))
	fetcher := &fakeFetcher{pages: [][]models.Message{first, second}}
	sink := &fakeSink{}
	loader := NewLoader(fetcher, sink, DefaultPageSize, clockwork.NewFakeClock(), nil)

	p, err := loader.LoadOlder(context.Background(), "room")
	require.NoError(t, err)
	assert.True(t, p.HasMore)
	assert.Len(t, p.Messages, 50)
	assert.True(t, p.Messages[0].CreatedAt.Before(p.Messages[49].CreatedAt))

	p, err = loader.LoadOlder(context.Background(), "room")
	require.NoError(t, err)
	assert.False(t, p.HasMore)
	assert.Len(t, p.Messages, 20)

	require.Equal(t, 2, fetcher.callCount())
	assert.Nil(t, fetcher.calls[0].before)
	assert.Equal(t, 50, fetcher.calls[0].limit)
	require.NotNil(t, fetcher.calls[1].before)
	assert.True(t, fetcher.calls[1].before.Equal(base.Add(-50*time.Minute)))

	// no more history: returns immediately without a request
	p, err = loader.LoadOlder(context.Background(), "room")
	require.NoError(t, err)
	assert.False(t, p.HasMore)
	assert.Equal(t, 2, fetcher.callCount())
	assert.Len(t, sink.older, 2)
}

func TestConcurrentLoadOlderIssuesOneFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		pages:   [][]models.Message{page(50, base), page(50, base.Add(-time.Hour))},
		release: make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	sink := &fakeSink{}
	loader := NewLoader(fetcher, sink, DefaultPageSize, clockwork.NewFakeClock(), nil)

	var wg sync.WaitGroup
	results := make([]Page, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = loader.LoadOlder(context.Background(), "room")
	}()
	<-fetcher.started

	var joined atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		joined.Store(true)
		results[1], _ = loader.LoadOlder(context.Background(), "room")
	}()
	require.Eventually(t, joined.Load, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount())
	assert.Len(t, sink.older, 1)
	assert.Equal(t, results[0], results[1])
}

func TestLoadOlderFailureLeavesCursor(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	loader := NewLoader(fetcher, &fakeSink{}, DefaultPageSize, clockwork.NewFakeClock(), nil)

	_, err := loader.LoadOlder(context.Background(), "room")
	assert.Error(t, err)

	oldest, more := loader.Cursor("room")
	assert.Nil(t, oldest)
	assert.True(t, more)
}

func TestLoadOlderAfterLeaveIsIgnored(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]models.Message{page(10, base)}}
	sink := &fakeSink{left: map[string]bool{"room": true}}
	loader := NewLoader(fetcher, sink, DefaultPageSize, clockwork.NewFakeClock(), nil)

	p, err := loader.LoadOlder(context.Background(), "room")
	require.NoError(t, err)
	assert.True(t, p.Ignored)
	assert.Empty(t, p.Messages)

	oldest, more := loader.Cursor("room")
	assert.Nil(t, oldest)
	assert.True(t, more)
	assert.Empty(t, sink.older)
}

func TestCatchUpDoesNotMoveCursor(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]models.Message{page(50, base), page(5, base.Add(time.Hour))}}
	sink := &fakeSink{}
	loader := NewLoader(fetcher, sink, DefaultPageSize, clockwork.NewFakeClock(), nil)

	_, err := loader.LoadOlder(context.Background(), "room")
	require.NoError(t, err)
	before, _ := loader.Cursor("room")

	require.NoError(t, loader.CatchUp(context.Background(), "room"))
	after, more := loader.Cursor("room")

	assert.Equal(t, before, after)
	assert.True(t, more)
	require.Len(t, sink.latest, 1)
	assert.Len(t, sink.latest[0], 5)
	assert.Nil(t, fetcher.calls[1].before)
}
