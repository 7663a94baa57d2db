package enrich

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

// ErrInvalidResponse marks model output that does not have the required shape.
var ErrInvalidResponse = errors.New("invalid model response")

const maxTokenLen = 31

// Tags is a validated keyword set: three keywords and one category.
type Tags struct {
	Keywords []string
	Category contest.Category
}

// KeywordString renders the keywords the way they are stored on a record.
func (t Tags) KeywordString() string {
	return strings.Join(t.Keywords, ",")
}

func (t Tags) String() string {
	return strings.Join(append(append([]string{}, t.Keywords...), string(t.Category)), ", ")
}

// Validate accepts exactly four comma-separated tokens where the last is a known
// category and no token is longer than 31 characters or contains ':' or '.'.
func Validate(raw string) (Tags, error) {
	tokens := splitTokens(raw)
	if len(tokens) != 4 {
		return Tags{}, fmt.Errorf("%w: %d tokens", ErrInvalidResponse, len(tokens))
	}
	category, ok := contest.ParseCategory(tokens[3])
	if !ok {
		return Tags{}, fmt.Errorf("%w: unknown category %q", ErrInvalidResponse, tokens[3])
	}
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) > maxTokenLen || strings.ContainsAny(tok, ":.") {
			return Tags{}, fmt.Errorf("%w: bad token %q", ErrInvalidResponse, tok)
		}
	}
	return Tags{Keywords: tokens[:3], Category: category}, nil
}

// Repair normalizes a response that names a category: keeps the first three other
// tokens, tops them up from the title and generic fillers, removes duplicates and
// strips special characters. Responses without any category are returned unchanged
// so that they fail validation and are retried.
func Repair(raw, title string) string {
	tokens := splitTokens(raw)
	var (
		category contest.Category
		found    bool
		regular  []string
	)
	for _, tok := range tokens {
		if c, ok := contest.ParseCategory(tok); ok {
			category, found = c, true
			continue
		}
		regular = append(regular, tok)
	}
	if !found {
		return raw
	}
	if len(regular) < 3 {
		for _, word := range []string{"해커톤", "AI", "데이터", "프로그래밍"} {
			if strings.Contains(title, word) && !contains(regular, word) {
				regular = append(regular, word)
			}
		}
	}
	regular = normalizeKeywords(regular)
	return strings.Join(append(regular, string(category)), ", ")
}

// ParseResponse repairs and validates a raw model response.
func ParseResponse(raw, title string) (Tags, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tags{}, fmt.Errorf("%w: empty", ErrInvalidResponse)
	}
	return Validate(Repair(raw, title))
}

func splitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
