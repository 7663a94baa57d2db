package enrich

import (
	"fmt"
	"strings"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

const promptBody = `당신은 공모전 포스터 분석 전문가입니다. 이 포스터를 정확히 분석해서 3개의 키워드와 1개의 필터링 키워드를 추출해주세요.

**중요한 규칙:**
1. 공모전 제목을 정확히 읽고 이해하세요
2. 포스터에 실제로 나타나는 내용만 키워드로 추출하세요
3. 추측하지 말고 확실한 내용만 답변하세요
4. 키워드는 정확히 3개만 추출하세요
5. 필터링 키워드는 정확히 1개만 추출하세요

**키워드 추출 기준 (3개):**
- 공모전 제목의 핵심 단어
- 주제 분야 (AI, 데이터, 프로그래밍, 디자인, 해커톤, 논문 등)
- 대상 참가자 (대학생, 청년, 개발자, 연구자 등)
- 주최/주관 기관 (LG, 삼성, 정부기관 등)

**필터링 키워드 추출 기준 (1개):**
다음 6개 중에서 포스터 내용과 가장 관련이 깊은 것 1개만 선택:
%s

**답변 형식:** 키워드1, 키워드2, 키워드3, 필터링키워드

예시:
- "2025 춘천시 데이터 활용 해커톤" → "춘천시, 데이터, 해커톤, AI/데이터분석"
- "LG 프로그래밍 대회" → "LG, 프로그래밍, 대학생, 웹/앱"
- "AI 아이디어 공모전" → "AI, 아이디어, 청년, AI/데이터분석"

**주의:**
1. 번호나 설명 없이 키워드만 쉼표로 구분해서 답변해주세요
2. 필터링 키워드는 반드시 마지막에 위치해야 합니다
3. 필터링 키워드는 위의 6개 중에서만 선택하세요
`

// BuildPrompt renders the analysis prompt for one poster.
func BuildPrompt(title string) string {
	var options strings.Builder
	for i, c := range contest.Categories() {
		if i > 0 {
			options.WriteByte('\n')
		}
		options.WriteString("- ")
		options.WriteString(string(c))
	}
	body := fmt.Sprintf(promptBody, options.String())
	if title = strings.TrimSpace(title); title != "" {
		return "공모전 제목: " + title + "\n\n" + body
	}
	return body
}
