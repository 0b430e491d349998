package mentions

import "github.com/mcdev12/leaguechat/go/internal/models"

// Key is a key press routed to an open suggestion list
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyEnter
	KeyTab
	KeyEscape
)

// Action is what a key press did to the list
type Action int

const (
	ActionNone Action = iota
	ActionMoved
	ActionCommit
	ActionDismiss
)

// Selector tracks the highlighted entry of the mention suggestion list.
// The highlight is clamped to the list, it does not wrap.
type Selector struct {
	matches []models.Member
	index   int
}

func NewSelector(matches []models.Member) *Selector {
	return &Selector{matches: matches}
}

// SetMatches replaces the list as the draft changes, keeping the highlight in range.
func (s *Selector) SetMatches(matches []models.Member) {
	s.matches = matches
	s.index = clamp(s.index, len(matches))
}

func (s *Selector) Open() bool { return len(s.matches) > 0 }

func (s *Selector) Index() int { return s.index }

func (s *Selector) Matches() []models.Member { return s.matches }

// Handle applies a key press. On ActionCommit the highlighted member is returned.
func (s *Selector) Handle(key Key) (models.Member, Action) {
	if len(s.matches) == 0 {
		return models.Member{}, ActionNone
	}

	switch key {
	case KeyUp:
		s.index = clamp(s.index-1, len(s.matches))
		return models.Member{}, ActionMoved
	case KeyDown:
		s.index = clamp(s.index+1, len(s.matches))
		return models.Member{}, ActionMoved
	case KeyEnter, KeyTab:
		picked := s.matches[s.index]
		s.matches = nil
		s.index = 0
		return picked, ActionCommit
	case KeyEscape:
		s.matches = nil
		s.index = 0
		return models.Member{}, ActionDismiss
	}
	return models.Member{}, ActionNone
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
