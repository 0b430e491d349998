package reactions

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguechat/go/internal/chat/store"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

var base = time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

func newStoreWith(msgs ...models.Message) *store.Store {
	st := store.New("league-1", clockwork.NewFakeClockAt(base))
	for _, m := range msgs {
		st.Append(m)
	}
	return st
}

func TestToggleIsAnInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	emojis := []string{"👍", "🔥", "😂", "🏈"}
	users := []string{"u1", "u2", "u3", "u4", "u5"}

	for round := 0; round < 200; round++ {
		start := models.Reactions{}
		for _, e := range emojis {
			for _, u := range users {
				if rng.Intn(3) == 0 {
					start[e] = append(start[e], u)
				}
			}
		}
		start = start.Normalize()

		emoji := emojis[rng.Intn(len(emojis))]
		user := users[rng.Intn(len(users))]
		once := Toggle(start, emoji, user)
		twice := Toggle(once, emoji, user)

		assert.NotEqual(t, start.Has(emoji, user), once.Has(emoji, user))
		assert.True(t, start.Equal(twice), "round %d: %v != %v", round, start, twice)
	}
}

func TestToggleDropsEmptySets(t *testing.T) {
	r := Toggle(models.Reactions{"👍": {"u1"}}, "👍", "u1")
	assert.Nil(t, r)

	r = Toggle(models.Reactions{"👍": {"u1"}, "🔥": {"u2"}}, "👍", "u1")
	assert.Equal(t, models.Reactions{"🔥": {"u2"}}, r)
}

func TestToggleDoesNotMutateInput(t *testing.T) {
	in := models.Reactions{"👍": {"u1", "u3"}}
	_ = Toggle(in, "👍", "u2")
	_ = Toggle(in, "👍", "u1")
	assert.Equal(t, models.Reactions{"👍": {"u1", "u3"}}, in)
}

func TestReactAndRevert(t *testing.T) {
	st := newStoreWith(models.Message{ID: "m1", AuthorID: "u2", CreatedAt: base})

	op, err := React(st, "m1", "👍", "u1")
	require.NoError(t, err)
	got, _ := st.Get("m1")
	assert.True(t, got.Reactions.Has("👍", "u1"))

	assert.True(t, Revert(st, op))
	got, _ = st.Get("m1")
	assert.Empty(t, got.Reactions)
}

func TestRevertKeepsNewerSnapshot(t *testing.T) {
	st := newStoreWith(models.Message{ID: "m1", AuthorID: "u2", CreatedAt: base})

	op, err := React(st, "m1", "👍", "u1")
	require.NoError(t, err)
	require.NoError(t, ApplySnapshot(st, "m1", models.Reactions{"👍": {"u1", "u3"}}))

	assert.False(t, Revert(st, op))
	got, _ := st.Get("m1")
	assert.Equal(t, models.Reactions{"👍": {"u1", "u3"}}, got.Reactions)
}

func TestApplySnapshotReplacesWholesale(t *testing.T) {
	st := newStoreWith(models.Message{
		ID:        "m1",
		CreatedAt: base,
		Reactions: models.Reactions{"👍": {"u1"}, "🔥": {"u2"}},
	})

	require.NoError(t, ApplySnapshot(st, "m1", models.Reactions{"😂": {"u3"}}))
	got, _ := st.Get("m1")
	assert.Equal(t, models.Reactions{"😂": {"u3"}}, got.Reactions)

	require.NoError(t, ApplySnapshot(st, "m1", nil))
	got, _ = st.Get("m1")
	assert.Empty(t, got.Reactions)

	assert.ErrorIs(t, ApplySnapshot(st, "missing", nil), store.ErrUnknownMessage)
}

func TestDeletedMessageRejectsActions(t *testing.T) {
	deletedAt := base.Add(time.Minute)
	msg := models.Message{
		ID:        "m1",
		AuthorID:  "u1",
		CreatedAt: base,
		DeletedAt: &deletedAt,
		DeletedBy: models.DeletedByAuthor,
	}
	league := &models.League{ID: "league-1", CommissionerID: "boss"}
	st := newStoreWith(msg)

	_, err := React(st, "m1", "👍", "u2")
	assert.ErrorIs(t, err, ErrMessageDeleted)
	assert.ErrorIs(t, CheckReplyable(msg), ErrMessageDeleted)
	assert.ErrorIs(t, AuthorizeModerate(msg, league, "boss"), ErrMessageDeleted)
	assert.ErrorIs(t, AuthorizeDelete(msg, "u1"), ErrMessageDeleted)
}

func TestPendingMessageRejectsActions(t *testing.T) {
	msg := models.Message{ID: "local-1", AuthorID: "u1", ClientState: models.ClientStatePending}

	assert.ErrorIs(t, CheckReactable(msg), ErrNotConfirmed)
	assert.ErrorIs(t, CheckReplyable(msg), ErrNotConfirmed)
	assert.ErrorIs(t, AuthorizeDelete(msg, "u1"), ErrNotConfirmed)
}

func TestAuthorization(t *testing.T) {
	msg := models.Message{ID: "m1", AuthorID: "u1", CreatedAt: base}
	league := &models.League{ID: "league-1", CommissionerID: "boss"}

	assert.NoError(t, AuthorizeDelete(msg, "u1"))
	assert.ErrorIs(t, AuthorizeDelete(msg, "u2"), ErrNotAuthorized)
	assert.ErrorIs(t, AuthorizeDelete(msg, "boss"), ErrNotAuthorized)

	assert.NoError(t, AuthorizeModerate(msg, league, "boss"))
	assert.ErrorIs(t, AuthorizeModerate(msg, league, "u1"), ErrNotAuthorized)
	assert.ErrorIs(t, AuthorizeModerate(msg, nil, "boss"), ErrNotAuthorized)

	assert.NoError(t, CheckReportable(msg, "u2"))
	assert.ErrorIs(t, CheckReportable(msg, "u1"), ErrNotAuthorized)
}

func TestResolveReactionUsers(t *testing.T) {
	msg := models.Message{
		ID:        "m1",
		Reactions: models.Reactions{"👍": {"u1", "u2", "u9"}},
	}
	roster := []models.Member{
		{UserID: "u2", DisplayName: "Zed"},
		{UserID: "u1", DisplayName: "Alice"},
	}

	assert.Equal(t, []string{"Alice", UnknownUserName, "Zed"}, ResolveReactionUsers(msg, "👍", roster))
	assert.Empty(t, ResolveReactionUsers(msg, "🔥", roster))
}
