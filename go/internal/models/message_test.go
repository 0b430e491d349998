package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreviewTruncatesToFiftyCharacters(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))

	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50), Preview(long))
}

func TestReactionsNormalize(t *testing.T) {
	r := Reactions{
		"👍": {"u2", "u1", "u2"},
		"🔥": {},
		"😂": {""},
	}

	got := r.Normalize()
	assert.Equal(t, Reactions{"👍": {"u1", "u2"}}, got)
	assert.True(t, got.Has("👍", "u1"))
	assert.False(t, got.Has("🔥", "u1"))
	assert.Nil(t, Reactions{"🔥": nil}.Normalize())
}

func TestVisibleBodyHidesDeletedContent(t *testing.T) {
	now := time.Now()
	msg := Message{ID: "m1", Body: "hello", Gif: &Gif{URL: "https://gif"}}
	assert.Equal(t, "hello", msg.VisibleBody())

	msg.DeletedAt = &now
	msg.DeletedBy = DeletedByCommissioner
	assert.Empty(t, msg.VisibleBody())
	assert.Nil(t, msg.VisibleGif())
}

func TestCloneIsDeep(t *testing.T) {
	msg := Message{ID: "m1", Reactions: Reactions{"👍": {"u1"}}, Gif: &Gif{URL: "a"}}
	cp := msg.Clone()
	cp.Reactions["👍"][0] = "u9"
	cp.Gif.URL = "b"

	assert.Equal(t, "u1", msg.Reactions["👍"][0])
	assert.Equal(t, "a", msg.Gif.URL)
}
