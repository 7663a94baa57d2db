package source

import (
	"strings"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

// Verdict is the outcome of an eligibility check.
type Verdict int

// Eligibility verdicts.
const (
	// Eligible listings become catalog records.
	Eligible Verdict = iota
	// Excluded listings are written to the exclusion ledger.
	Excluded
	// Dropped listings are discarded without a ledger row.
	Dropped
)

// Eligibility decides from a listing's target-audience text whether it belongs in
// the catalog. A target matching any keyword is eligible. Otherwise a target that
// mentions any silent keyword is dropped, and everything else is excluded.
type Eligibility struct {
	Keywords []string
	Silent   []string
}

// Check classifies target.
func (e Eligibility) Check(target string) Verdict {
	if target != contest.NotAvailable {
		for _, k := range e.Keywords {
			if k != "" && strings.Contains(target, k) {
				return Eligible
			}
		}
	}
	for _, k := range e.Silent {
		if k != "" && strings.Contains(target, k) {
			return Dropped
		}
	}
	return Excluded
}
