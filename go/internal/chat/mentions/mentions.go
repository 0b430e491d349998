package mentions

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mcdev12/leaguechat/go/internal/models"
)

// SuggestionLimit is the most members ComposeMentionSuggestions returns
const SuggestionLimit = 5

// Span is one resolved @mention. Start and End are byte offsets into the
// scanned text and include the leading @.
type Span struct {
	Start       int
	End         int
	UserID      string
	DisplayName string
}

// DetectMentions finds every @name in text that names a roster member.
// Names are tried longest first, compared case-insensitively, and must end at
// a word boundary, so "@Alexandra" never resolves to "Al". Anything else
// after an @ is plain text.
func DetectMentions(text string, roster []models.Member) []Span {
	if !strings.Contains(text, "@") || len(roster) == 0 {
		return nil
	}

	candidates := make([]models.Member, 0, len(roster))
	for _, m := range roster {
		if strings.TrimSpace(m.DisplayName) != "" {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return utf8.RuneCountInString(candidates[i].DisplayName) > utf8.RuneCountInString(candidates[j].DisplayName)
	})

	var spans []Span
	for i := 0; i < len(text); {
		if text[i] != '@' || !atWordStart(text, i) {
			i++
			continue
		}

		matched := false
		for _, m := range candidates {
			n, ok := hasPrefixFold(text[i+1:], m.DisplayName)
			if !ok {
				continue
			}
			end := i + 1 + n
			if !atWordEnd(text, end) {
				continue
			}
			spans = append(spans, Span{Start: i, End: end, UserID: m.UserID, DisplayName: m.DisplayName})
			i = end
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return spans
}

// MentionedUserIDs returns the distinct user ids of spans in order of first appearance.
func MentionedUserIDs(spans []Span) []string {
	var out []string
	seen := make(map[string]struct{}, len(spans))
	for _, s := range spans {
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		out = append(out, s.UserID)
	}
	return out
}

// ComposeMentionSuggestions returns up to SuggestionLimit roster members whose
// display name contains the token being typed after the last @, in roster order.
func ComposeMentionSuggestions(partialText string, roster []models.Member) []models.Member {
	_, token, ok := ActiveToken(partialText)
	if !ok {
		return nil
	}
	token = strings.ToLower(token)

	var out []models.Member
	for _, m := range roster {
		if !strings.Contains(strings.ToLower(m.DisplayName), token) {
			continue
		}
		out = append(out, m)
		if len(out) == SuggestionLimit {
			break
		}
	}
	return out
}

// ActiveToken returns the position of the last @ in text and the partial name
// typed after it. It is not ok when that @ is inside a word.
func ActiveToken(text string) (int, string, bool) {
	at := strings.LastIndexByte(text, '@')
	if at < 0 || !atWordStart(text, at) {
		return 0, "", false
	}
	return at, text[at+1:], true
}

// Insert replaces the partial token after the last @ with the member's name.
func Insert(text string, member models.Member) string {
	at, _, ok := ActiveToken(text)
	if !ok {
		return text
	}
	return text[:at] + "@" + member.DisplayName + " "
}

func atWordStart(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func atWordEnd(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hasPrefixFold reports whether s starts with prefix ignoring case, and the
// number of bytes of s the prefix covers.
func hasPrefixFold(s, prefix string) (int, bool) {
	n := 0
	for _, want := range prefix {
		if n >= len(s) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(s[n:])
		if unicode.ToLower(got) != unicode.ToLower(want) {
			return 0, false
		}
		n += size
	}
	return n, true
}
