package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tags, err := Validate("춘천시, 데이터, 해커톤, AI/데이터분석")
	require.NoError(t, err)
	assert.Equal(t, []string{"춘천시", "데이터", "해커톤"}, tags.Keywords)
	assert.Equal(t, contest.CategoryAIData, tags.Category)
	assert.Equal(t, "춘천시,데이터,해커톤", tags.KeywordString())

	invalid := []string{
		"",
		"a, b, c",
		"a, b, c, d, 게임",
		"a, b, c, 스포츠",
		"게임, a, b, c",
		"키워드: a, b, c, 게임",
		"a., b, c, 게임",
		strings.Repeat("가", 32) + ", b, c, 게임",
	}
	for _, raw := range invalid {
		_, err := Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidResponse, raw)
	}

	_, err = Validate(strings.Repeat("가", 31) + ", b, c, 게임")
	assert.NoError(t, err)
}

func TestParseResponseRepairs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		title string
		want  []string
		cat   contest.Category
	}{
		{"category first", "게임, 인디, 잼, 개발자", "인디 게임 잼", []string{"인디", "잼", "개발자"}, contest.CategoryGame},
		{"too many keywords", "LG, 프로그래밍, 대학생, 코딩, 웹/앱", "", []string{"LG", "프로그래밍", "대학생"}, contest.CategoryWebApp},
		{"short from title", "춘천시, AI/데이터분석", "데이터 해커톤", []string{"춘천시", "해커톤", "데이터"}, contest.CategoryAIData},
		{"short padded", "IOT/임베디드", "", []string{"공모전", "대회", "참가"}, contest.CategoryIoT},
		{"duplicates after stripping", "AI!, AI, 데이터, 웹/앱", "", []string{"AI", "데이터", "공모전"}, contest.CategoryWebApp},
		{"punctuation stripped", "키워드1: LG., 삼성!, 청년, 게임", "", []string{"키워드1 LG", "삼성", "청년"}, contest.CategoryGame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tags, err := ParseResponse(tt.raw, tt.title)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tags.Keywords)
			assert.Equal(t, tt.cat, tags.Category)
		})
	}
}

func TestParseResponseRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "I cannot see the image.", "AI, 데이터, 해커톤, 스포츠"} {
		_, err := ParseResponse(raw, "AI 해커톤")
		assert.ErrorIs(t, err, ErrInvalidResponse, raw)
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()
	p := BuildPrompt(" LG 프로그래밍 대회 ")
	assert.True(t, strings.HasPrefix(p, "공모전 제목: LG 프로그래밍 대회\n"))
	for _, c := range contest.Categories() {
		assert.Contains(t, p, "- "+string(c)+"\n")
	}
	assert.NotContains(t, BuildPrompt(""), "공모전 제목:")
}
