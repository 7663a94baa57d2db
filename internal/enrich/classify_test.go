package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

func TestClassifyTitle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		title string
		want  contest.Category
	}{
		{"2025 모바일 앱 개발 챌린지", contest.CategoryWebApp},
		{"공공 데이터 활용 공모전", contest.CategoryAIData},
		{"제3회 AI 챔피언십", contest.CategoryAIData},
		{"Ai Hackathon", contest.CategoryAIData},
		{"화이트햇 보안 해킹 대회", contest.CategorySecurity},
		{"관광 전략 아이디어", contest.CategoryIdea},
		{"스마트 센서 IoT 경진대회", contest.CategoryIoT},
		{"인디 게임 잼", contest.CategoryGame},
		{"웹 게임 개발", contest.CategoryWebApp},
		{"환경 사진 공모전", contest.DefaultCategory},
		{"", contest.DefaultCategory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTitle(tt.title), tt.title)
	}
}

func TestFallbackKeywords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		title string
		want  []string
	}{
		{"", []string{"공모전", "대회", "참가"}},
		{"대학생 AI 해커톤 공모전 대회", []string{"해커톤", "공모전", "대회"}},
		{"청년 데이터 해커톤", []string{"해커톤", "대학생", "AI"}},
		{"전국 대회", []string{"대회", "공모전", "참가"}},
		{"디자인 공모전", []string{"공모전", "AI", "대회"}},
	}
	for _, tt := range tests {
		got := FallbackKeywords(tt.title)
		assert.Equal(t, tt.want, got, tt.title)
		assert.Equal(t, got, FallbackKeywords(tt.title), "deterministic")
	}
}

func TestCleanKeyword(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "AI 챌린지", CleanKeyword("  AI!!   챌린지* "))
	assert.Equal(t, "LG전자", CleanKeyword("<LG전자>"))
	assert.Equal(t, "snake_case", CleanKeyword("snake_case"))
	assert.Empty(t, CleanKeyword("..."))
}
