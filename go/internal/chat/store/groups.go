package store

import (
	"time"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

// GroupGap is the longest pause between two messages of one author that still
// renders them as a single group
const GroupGap = 5 * time.Minute

// Group is a run of consecutive messages by one author
type Group struct {
	AuthorID   string
	AuthorName string
	Messages   []models.Message
}

// Groups projects messages into display groups. Consecutive messages by the
// same author no more than GroupGap apart share a group.
func Groups(messages []models.Message) []Group {
	var groups []Group
	for _, m := range messages {
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			last := g.Messages[len(g.Messages)-1]
			if last.AuthorID == m.AuthorID && m.CreatedAt.Sub(last.CreatedAt) <= GroupGap {
				g.Messages = append(g.Messages, m)
				continue
			}
		}
		groups = append(groups, Group{
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Messages:   []models.Message{m},
		})
	}
	return groups
}
