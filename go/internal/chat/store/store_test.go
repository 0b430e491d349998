package store

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

var base = time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

func newTestStore() (*Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(base)
	return New("league-1", clock), clock
}

func serverMsg(id, author string, at time.Time) models.Message {
	return models.Message{
		ID:         id,
		RoomID:     "league-1",
		AuthorID:   author,
		AuthorName: strings.ToUpper(author),
		Body:       "body " + id,
		CreatedAt:  at,
	}
}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func assertSorted(t *testing.T, messages []models.Message) {
	t.Helper()
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"message %s is older than %s", messages[i].ID, messages[i-1].ID)
	}
}

func TestAppendInsertsInSortedPosition(t *testing.T) {
	s, _ := newTestStore()

	s.Append(serverMsg("m1", "u1", base))
	s.Append(serverMsg("m3", "u1", base.Add(2*time.Second)))
	s.Append(serverMsg("m2", "u2", base.Add(time.Second)))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Messages()))
}

func TestAppendDeduplicatesByID(t *testing.T) {
	s, _ := newTestStore()

	s.Append(serverMsg("m1", "u1", base))
	again := serverMsg("m1", "u1", base)
	again.Reactions = models.Reactions{"👍": {"u2"}}
	s.Append(again)

	require.Equal(t, 1, s.Len())
	got, _ := s.Get("m1")
	assert.Equal(t, models.Reactions{"👍": {"u2"}}, got.Reactions)
	assert.Equal(t, models.ClientStateConfirmed, got.ClientState)
}

func TestSendThenReconcileAddsExactlyOneEntry(t *testing.T) {
	s, clock := newTestStore()
	s.Append(serverMsg("m1", "u2", base))

	for i := 0; i < 20; i++ {
		before := s.Len()
		clock.Advance(time.Second)
		localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: fmt.Sprintf("hi %d", i)})
		assert.Equal(t, before+1, s.Len())

		echo := serverMsg(fmt.Sprintf("srv-%d", i), "u1", clock.Now().Add(-300*time.Millisecond))
		echo.ClientID = localID
		assert.True(t, s.Reconcile(localID, echo))
		assert.Equal(t, before+1, s.Len())

		_, stillLocal := s.Get(localID)
		assert.False(t, stillLocal)
	}
	assertSorted(t, s.Messages())
}

func TestSecondEchoOfOneSendIsDropped(t *testing.T) {
	s, clock := newTestStore()
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "trade?"})

	first := serverMsg("s1", "u1", clock.Now())
	first.ClientID = localID
	require.True(t, s.Reconcile(localID, first))
	assert.True(t, s.HasSend(localID))

	second := serverMsg("s2", "u1", clock.Now().Add(time.Second))
	second.ClientID = localID
	assert.False(t, s.Append(second))
	assert.Equal(t, []string{"s1"}, ids(s.Messages()))

	// the same through a catch-up page
	assert.Equal(t, 0, s.Merge([]models.Message{second}))
	assert.Equal(t, []string{"s1"}, ids(s.Messages()))

	assert.True(t, s.Append(serverMsg("m2", "u2", clock.Now().Add(2*time.Second))))
}

func TestOptimisticEntryIsClampedToTail(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("future", "u2", base.Add(time.Minute)))

	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "hi"})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, localID, msgs[1].ID)
	assert.Equal(t, models.ClientStatePending, msgs[1].ClientState)
	assert.True(t, msgs[1].CreatedAt.Equal(base.Add(time.Minute)))
}

func TestReconcileKeepsPositionUnlessOrderingBreaks(t *testing.T) {
	s, clock := newTestStore()
	s.Append(serverMsg("m1", "u2", base))
	clock.Advance(10 * time.Second)
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "hi"})
	s.Append(serverMsg("m2", "u2", base.Add(20*time.Second)))

	// The server stamped the send after m2.
	echo := serverMsg("srv", "u1", base.Add(30*time.Second))
	s.Reconcile(localID, echo)

	assert.Equal(t, []string{"m1", "m2", "srv"}, ids(s.Messages()))
}

func TestReconcileWithoutTargetFallsBackToAppend(t *testing.T) {
	s, _ := newTestStore()

	assert.False(t, s.Reconcile("local-missing", serverMsg("srv", "u1", base)))
	require.Equal(t, 1, s.Len())

	// A second echo of the same message must not duplicate it.
	s.Reconcile("local-missing", serverMsg("srv", "u1", base))
	assert.Equal(t, 1, s.Len())
}

func TestReconcileDropsLocalWhenServerCopyAlreadyPresent(t *testing.T) {
	s, clock := newTestStore()
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "hi"})
	clock.Advance(time.Second)
	s.Append(serverMsg("srv", "u1", base))

	s.Reconcile(localID, serverMsg("srv", "u1", base))

	assert.Equal(t, []string{"srv"}, ids(s.Messages()))
}

func TestUpdateUnknownMessage(t *testing.T) {
	s, _ := newTestStore()
	body := "edited"
	assert.ErrorIs(t, s.Update("nope", Patch{Body: &body}), ErrUnknownMessage)
}

func TestDeletionIsWriteOnce(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("m1", "u1", base))

	first := base.Add(time.Minute)
	require.NoError(t, s.Update("m1", Patch{DeletedAt: &first, DeletedBy: models.DeletedByCommissioner}))

	second := base.Add(2 * time.Minute)
	err := s.Update("m1", Patch{DeletedAt: &second, DeletedBy: models.DeletedByAuthor})
	assert.ErrorIs(t, err, ErrAlreadyDeleted)

	reactions := models.Reactions{"👍": {"u2"}}
	assert.ErrorIs(t, s.Update("m1", Patch{Reactions: &reactions}), ErrAlreadyDeleted)

	got, _ := s.Get("m1")
	assert.True(t, got.DeletedAt.Equal(first))
	assert.Equal(t, models.DeletedByCommissioner, got.DeletedBy)
	assert.Empty(t, got.Body)
	assert.Empty(t, got.Reactions)
}

func TestRedeliveryDoesNotUndoDeletion(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("m1", "u1", base))
	at := base.Add(time.Minute)
	require.NoError(t, s.Update("m1", Patch{DeletedAt: &at, DeletedBy: models.DeletedByAuthor}))

	s.Append(serverMsg("m1", "u1", base))

	got, _ := s.Get("m1")
	assert.True(t, got.IsDeleted())
	assert.Empty(t, got.Body)
}

func TestDeletionRequiresAttribution(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("m1", "u1", base))
	at := base.Add(time.Minute)

	assert.ErrorIs(t, s.Update("m1", Patch{DeletedAt: &at}), ErrInvalidPatch)
	got, _ := s.Get("m1")
	assert.False(t, got.IsDeleted())
}

func TestPrependSortMergesAndDeduplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 25; round++ {
		s, _ := newTestStore()
		for i := 0; i < 10; i++ {
			s.Append(serverMsg(fmt.Sprintf("live-%d", i), "u1", base.Add(time.Duration(rng.Intn(600))*time.Second)))
		}

		var batch []models.Message
		for i := 0; i < 15; i++ {
			batch = append(batch, serverMsg(fmt.Sprintf("old-%d", i), "u2", base.Add(time.Duration(rng.Intn(900)-300)*time.Second)))
		}
		// overlap with the live tail and a duplicate inside the batch
		batch = append(batch, serverMsg("live-3", "u1", base), batch[0])

		added := s.Prepend(batch)
		assert.Equal(t, 15, added)
		assert.Equal(t, 25, s.Len())
		assertSorted(t, s.Messages())
	}
}

func TestPrependOlderPageGoesFirst(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("m3", "u1", base.Add(3*time.Minute)))

	s.Prepend([]models.Message{
		serverMsg("m2", "u1", base.Add(2*time.Minute)),
		serverMsg("m1", "u1", base.Add(time.Minute)),
	})

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Messages()))
}

func TestFailedPendingCanBeRetriedOrDiscarded(t *testing.T) {
	s, clock := newTestStore()
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "hi"})

	assert.ErrorIs(t, s.Discard(localID), ErrNotFailed)
	assert.True(t, s.MarkFailed(localID))
	assert.False(t, s.MarkFailed(localID))

	got, _ := s.Get(localID)
	assert.Equal(t, models.ClientStateFailed, got.ClientState)

	clock.Advance(time.Minute)
	s.Append(serverMsg("m1", "u2", clock.Now()))

	retried, err := s.Retry(localID)
	require.NoError(t, err)
	assert.Equal(t, models.ClientStatePending, retried.ClientState)
	assert.Equal(t, []string{"m1", localID}, ids(s.Messages()))

	require.True(t, s.MarkFailed(localID))
	require.NoError(t, s.Discard(localID))
	assert.Equal(t, []string{"m1"}, ids(s.Messages()))
	_, err = s.Retry(localID)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestReconcileRescuesFailedEntry(t *testing.T) {
	s, _ := newTestStore()
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "late ack"})
	s.MarkFailed(localID)

	assert.True(t, s.Reconcile(localID, serverMsg("srv", "u1", base)))
	got, ok := s.Get("srv")
	require.True(t, ok)
	assert.Equal(t, models.ClientStateConfirmed, got.ClientState)
	assert.Equal(t, 1, s.Len())
}

func TestFindPendingMatch(t *testing.T) {
	s, _ := newTestStore()
	s.Append(serverMsg("m1", "u1", base))
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "same text"})

	echo := serverMsg("srv", "u1", base)
	echo.Body = "same text"
	got, ok := s.FindPendingMatch(echo)
	require.True(t, ok)
	assert.Equal(t, localID, got)

	echo.AuthorID = "u2"
	_, ok = s.FindPendingMatch(echo)
	assert.False(t, ok)
}

func TestMergeCatchUp(t *testing.T) {
	s, clock := newTestStore()
	s.Append(serverMsg("m1", "u2", base))
	clock.Advance(time.Second)
	localID := s.SendOptimistic(Draft{AuthorID: "u1", Body: "sent while offline"})

	echo := serverMsg("srv", "u1", base.Add(2*time.Second))
	echo.ClientID = localID
	refreshed := serverMsg("m1", "u2", base)
	refreshed.Reactions = models.Reactions{"🔥": {"u1"}}

	added := s.Merge([]models.Message{
		refreshed,
		serverMsg("m2", "u2", base.Add(1500*time.Millisecond)),
		echo,
	})

	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"m1", "m2", "srv"}, ids(s.Messages()))
	got, _ := s.Get("m1")
	assert.Equal(t, models.Reactions{"🔥": {"u1"}}, got.Reactions)
}

func TestReplyPreviewChecksLiveStore(t *testing.T) {
	s, _ := newTestStore()
	original := serverMsg("m1", "u1", base)
	original.Body = strings.Repeat("x", 80)
	s.Append(original)

	ref := models.NewReplyRef(original)
	assert.Equal(t, strings.Repeat("x", 50), s.ReplyPreview(ref))

	at := base.Add(time.Minute)
	require.NoError(t, s.Update("m1", Patch{DeletedAt: &at, DeletedBy: models.DeletedByAuthor}))
	assert.Equal(t, models.DeletedReplyPreview, s.ReplyPreview(ref))
	assert.Empty(t, s.ReplyPreview(nil))
}

func TestGroups(t *testing.T) {
	msgs := []models.Message{
		serverMsg("a1", "alice", base),
		serverMsg("a2", "alice", base.Add(4*time.Minute)),
		serverMsg("a3", "alice", base.Add(10*time.Minute)),
		serverMsg("b1", "bob", base.Add(11*time.Minute)),
		serverMsg("a4", "alice", base.Add(12*time.Minute)),
	}

	groups := Groups(msgs)
	require.Len(t, groups, 4)
	assert.Equal(t, []string{"a1", "a2"}, ids(groups[0].Messages))
	assert.Equal(t, []string{"a3"}, ids(groups[1].Messages))
	assert.Equal(t, "bob", groups[2].AuthorID)
	assert.Equal(t, "ALICE", groups[3].AuthorName)
	assert.Empty(t, Groups(nil))
}
