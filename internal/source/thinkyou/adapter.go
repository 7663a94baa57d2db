// Package thinkyou crawls the thinkyou.co.kr science and engineering listing.
//
// Listing rows are ordered open-first, so the crawl stops at the first closed row.
// Only the first few accepted contests are kept per run.
package thinkyou

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/source"
)

// Name is the adapter's registry key and artifact prefix.
const Name = "thinkyou"

const (
	rowSelector     = "#contestArea > div.board_list.contest > div > div.tr"
	statusSelector  = "div.statNew > p"
	posterSelector  = "#printArea div.contest_view div.thumb > img"
	periodSelector  = "#printArea div.contest_view div.rightArea table tbody tr"
	outlineSelector = "#printArea > div.contest_outline > dl > dt"

	closedStatus  = "마감"
	periodHeading = "접수기간"
	noEligibility = "응모자격 정보를 찾을 수 없음"
	scienceField  = "5"
)

var eligibilityHeadings = []string{"응모자격", "참여대상", "참가대상", "교육대상"}

// SchoolKeywords mark listings for school students. They are dropped without an
// exclusion row because they are never relevant.
var SchoolKeywords = []string{"초등학교", "중학교", "고등학교", "초등부", "중등부", "고등부"}

// Config tunes the adapter.
type Config struct {
	BaseURL  string
	Pages    int
	MaxItems int
	Eligible []string
}

// Adapter implements source.Adapter for thinkyou.
type Adapter struct {
	cfg     Config
	browser contest.Fetcher
	pages   contest.Fetcher
	logger  *zap.Logger
}

// New builds the adapter. browser renders the filtered listing and pages fetches details.
func New(cfg Config, browser, pages contest.Fetcher, logger *zap.Logger) *Adapter {
	if cfg.Pages <= 0 {
		cfg.Pages = 5
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 5
	}
	return &Adapter{
		cfg:     cfg,
		browser: browser,
		pages:   pages,
		logger:  logging.OrNop(logger).With(zap.String("source", Name)),
	}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

type listing struct {
	title string
	url   string
}

// Crawl reads listing pages until a closed contest, an empty page or the page limit.
func (a *Adapter) Crawl(ctx context.Context) (contest.SourceResult, error) {
	result := contest.SourceResult{Accepted: []contest.Record{}, Excluded: []contest.ExcludedRecord{}}
	eligibility := source.Eligibility{Keywords: a.cfg.Eligible, Silent: SchoolKeywords}
	for page := 1; page <= a.cfg.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rows, closed, err := a.listPage(ctx, page)
		if err != nil {
			if page == 1 {
				return result, source.CanceledOr(ctx, fmt.Errorf("listing: %w", err))
			}
			a.logger.Warn("listing page failed", zap.Int("page", page), zap.Error(err))
			break
		}
		for _, row := range rows {
			a.detail(ctx, row, eligibility, &result)
		}
		if closed || len(rows) == 0 {
			break
		}
	}
	if len(result.Accepted) > a.cfg.MaxItems {
		result.Accepted = result.Accepted[:a.cfg.MaxItems]
	}
	return result, nil
}

func (a *Adapter) listURL(page int) string {
	q := url.Values{}
	q.Set("serfield", scienceField)
	q.Set("page", strconv.Itoa(page))
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) listPage(ctx context.Context, page int) ([]listing, bool, error) {
	listURL := a.listURL(page)
	doc, err := source.Document(ctx, a.browser, contest.FetchRequest{URL: listURL, WaitSelector: "#contestArea"})
	if err != nil {
		return nil, false, err
	}
	rows, closed := parseListing(doc, listURL)
	return rows, closed, nil
}

// parseListing returns the open rows before the first closed one. The first row is
// the table header.
func parseListing(doc *goquery.Document, base string) ([]listing, bool) {
	var (
		out    []listing
		closed bool
	)
	rows := doc.Find(rowSelector)
	if rows.Length() < 2 {
		return nil, false
	}
	rows.Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if source.Text(row.Find(statusSelector).First().Text()) == closedStatus {
			closed = true
			return false
		}
		link := row.Find("a[href]").First()
		title := source.Text(link.Text())
		href, _ := link.Attr("href")
		abs := source.Resolve(base, href)
		if title == "" || abs == "" || isDigits(title) {
			return true
		}
		out = append(out, listing{title: title, url: abs})
		return true
	})
	return out, closed
}

func (a *Adapter) detail(ctx context.Context, row listing, eligibility source.Eligibility, result *contest.SourceResult) {
	doc, err := source.Document(ctx, a.pages, contest.FetchRequest{URL: row.url})
	if err != nil {
		a.logger.Warn("detail page failed", zap.String("url", row.url), zap.Error(err))
		return
	}
	rec, target := parseDetail(doc, row)
	switch eligibility.Check(target) {
	case source.Eligible:
		result.Accepted = append(result.Accepted, rec)
	case source.Excluded:
		result.Excluded = append(result.Excluded, contest.ExcludedRecord{Title: rec.Title, SiteURL: rec.SiteURL, Reason: target})
	case source.Dropped:
		a.logger.Debug("school contest dropped", zap.String("title", rec.Title))
	}
}

func parseDetail(doc *goquery.Document, row listing) (contest.Record, string) {
	period := contest.NotAvailable
	doc.Find(periodSelector).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if source.Text(tr.Find("th").First().Text()) != periodHeading {
			return true
		}
		period = source.TextOf(tr.Find("td"))
		return false
	})
	start, end := contest.NotAvailable, contest.NotAvailable
	if period != contest.NotAvailable {
		start, end = contest.SplitDateRange(period)
	}

	target := noEligibility
	doc.Find(outlineSelector).EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !isEligibilityHeading(source.Text(dt.Text())) {
			return true
		}
		if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
			target = source.Text(dd.Text())
		}
		return false
	})

	return contest.Record{
		Title:     row.title,
		SiteURL:   row.url,
		PosterURL: source.PosterURL(row.url, source.Attr(doc.Find(posterSelector), "src")),
		StartDate: start,
		EndDate:   end,
	}, target
}

func isEligibilityHeading(s string) bool {
	for _, h := range eligibilityHeadings {
		if s == h {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) == -1
}
