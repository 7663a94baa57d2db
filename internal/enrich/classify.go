package enrich

import (
	"regexp"
	"strings"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

type categoryRule struct {
	category contest.Category
	words    []string
}

// Rules are checked in order against the lowercased title; the first hit wins.
var titleRules = []categoryRule{
	{contest.CategoryWebApp, []string{"웹", "앱", "프로그래밍", "개발"}},
	{contest.CategoryAIData, []string{"데이터", "분석", "과학", "통계", "ai", "인공지능", "머신러닝", "딥러닝"}},
	{contest.CategorySecurity, []string{"보안", "해킹", "블록체인"}},
	{contest.CategoryIdea, []string{"기획", "계획", "설계", "전략"}},
	{contest.CategoryIoT, []string{"iot", "사물인터넷", "통신", "센서", "임베디드"}},
	{contest.CategoryGame, []string{"게임"}},
}

// ClassifyTitle derives the category from title keywords.
func ClassifyTitle(title string) contest.Category {
	lower := strings.ToLower(title)
	for _, rule := range titleRules {
		if containsAny(lower, rule.words) {
			return rule.category
		}
	}
	return contest.DefaultCategory
}

// Generic words used to pad keyword lists to three entries.
var fillers = []string{"공모전", "대회", "참가"}

// FallbackKeywords derives three keywords from the title alone. The result only
// depends on the title.
func FallbackKeywords(title string) []string {
	var kws []string
	for _, word := range []string{"해커톤", "공모전", "대회"} {
		if strings.Contains(title, word) {
			kws = append(kws, word)
		}
	}
	if containsAny(title, []string{"대학생", "청년", "학생"}) {
		kws = append(kws, "대학생")
	}
	if containsAny(title, []string{"AI", "인공지능", "데이터", "프로그래밍", "기획", "디자인", "논문"}) {
		kws = append(kws, "AI")
	}
	return normalizeKeywords(kws)
}

// normalizeKeywords cleans each keyword, drops empty and repeated ones, keeps the
// first three, and pads the rest with fillers.
func normalizeKeywords(kws []string) []string {
	kws = dedupe(cleanAll(kws))
	if len(kws) > 3 {
		kws = kws[:3]
	}
	return pad(kws)
}

// pad appends fillers not already present until three keywords remain.
func pad(kws []string) []string {
	for len(kws) < 3 {
		next := fillers[len(fillers)-1]
		for _, f := range fillers {
			if !contains(kws, f) {
				next = f
				break
			}
		}
		kws = append(kws, next)
	}
	return kws
}

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spaces     = regexp.MustCompile(`\s+`)
)

// CleanKeyword strips punctuation and symbols and collapses whitespace.
func CleanKeyword(kw string) string {
	kw = disallowed.ReplaceAllString(kw, "")
	return strings.TrimSpace(spaces.ReplaceAllString(kw, " "))
}

func cleanAll(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw = CleanKeyword(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func dedupe(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		if !contains(out, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
