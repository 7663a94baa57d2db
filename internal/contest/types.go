package contest

import "strings"

// NotAvailable marks a field the source did not provide.
const NotAvailable = "N/A"

// Sentinel tag values written when no poster could be analyzed.
const (
	TagsNoPoster       = "포스터 없음"
	TagsDownloadFailed = "이미지 다운로드 실패"
)

// Record is a single contest announcement.
type Record struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	SiteURL   string `json:"site_url"`
	PosterURL string `json:"poster_url"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Tags      string `json:"tags,omitempty"`
	Filtering string `json:"filtering,omitempty"`
}

// HasPoster reports whether the record points at a fetchable poster image.
func (r Record) HasPoster() bool {
	return present(r.PosterURL)
}

// TagList splits the comma-separated tags into trimmed, non-empty entries.
func (r Record) TagList() []string {
	if r.Tags == "" {
		return nil
	}
	parts := strings.Split(r.Tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasSentinelTags reports whether the tags hold one of the no-poster markers.
func (r Record) HasSentinelTags() bool {
	return r.Tags == TagsNoPoster || r.Tags == TagsDownloadFailed
}

// ExcludedRecord is an item dropped by a source's eligibility rules.
type ExcludedRecord struct {
	Title   string `json:"title"`
	SiteURL string `json:"site_url"`
	Reason  string `json:"reason"`
}

// DuplicateReason classifies a ledger row written by the merge engine.
type DuplicateReason string

// Duplicate reasons recorded in the ledger.
const (
	ReasonExistingDuplicate    DuplicateReason = "existing-duplicate"
	ReasonConflictWithExisting DuplicateReason = "conflict-with-existing"
	ReasonDuplicateInNew       DuplicateReason = "duplicate-in-new"
)

// DuplicateEntry is one row of the duplicate-poster ledger.
type DuplicateEntry struct {
	Reason    DuplicateReason `json:"reason"`
	Hash      string          `json:"hash"`
	Title     string          `json:"title"`
	SiteURL   string          `json:"site_url"`
	PosterURL string          `json:"poster_url"`
}

// SourceResult is what one source adapter produced.
type SourceResult struct {
	Accepted []Record
	Excluded []ExcludedRecord
}

func present(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != NotAvailable
}
