package contest

// Category is the single filtering label attached to an enriched record.
type Category string

// The fixed category set.
const (
	CategoryWebApp   Category = "웹/앱"
	CategoryAIData   Category = "AI/데이터분석"
	CategorySecurity Category = "정보보안/블록체인"
	CategoryIdea     Category = "아이디어/기획"
	CategoryIoT      Category = "IOT/임베디드"
	CategoryGame     Category = "게임"
)

// DefaultCategory applies when nothing in a title points elsewhere.
const DefaultCategory = CategoryIdea

var categories = []Category{
	CategoryWebApp,
	CategoryAIData,
	CategorySecurity,
	CategoryIdea,
	CategoryIoT,
	CategoryGame,
}

// Categories returns the category set in prompt order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory returns the category for an exact label match.
func ParseCategory(label string) (Category, bool) {
	for _, c := range categories {
		if string(c) == label {
			return c, true
		}
	}
	return "", false
}
