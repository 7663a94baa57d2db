// Package linkareer crawls the linkareer.com contest listing. The listing is rendered
// client-side, so it is fetched with a browser; detail pages are served as HTML.
package linkareer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/source"
)

// Name is the adapter's registry key and artifact prefix.
const Name = "linkareer"

const (
	cardSelector     = `div[class*="activity-list-card"]`
	activitySelector = `a[href*="/activity/"]`
	titleSelector    = "main section header h1"
	targetSelector   = `div[class*="ActivityInfomationField"] > dl:nth-child(2) > dd`
	startSelector    = `dl[class*="RecruitPeriodField"] dd > div > span:nth-child(2)`
	endSelector      = `dl[class*="RecruitPeriodField"] dd > span:nth-child(3)`
	posterSelector   = "main section figure img"
)

// Config tunes the adapter.
type Config struct {
	BaseURL  string
	Pages    int
	Eligible []string
}

// Adapter implements source.Adapter for linkareer.
type Adapter struct {
	cfg     Config
	browser contest.Fetcher
	pages   contest.Fetcher
	logger  *zap.Logger
}

// New builds the adapter. browser renders listing pages and pages fetches details.
func New(cfg Config, browser, pages contest.Fetcher, logger *zap.Logger) *Adapter {
	if cfg.Pages <= 0 {
		cfg.Pages = 3
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

// Crawl renders listing pages 1..Pages and visits every activity link in order.
func (a *Adapter) Crawl(ctx context.Context) (contest.SourceResult, error) {
	result := contest.SourceResult{Accepted: []contest.Record{}, Excluded: []contest.ExcludedRecord{}}
	eligibility := source.Eligibility{Keywords: a.cfg.Eligible}
	failed := 0
	for page := 1; page <= a.cfg.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		links, err := a.listPage(ctx, page)
		if err != nil {
			failed++
			a.logger.Warn("listing page failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		for _, link := range links {
			a.detail(ctx, link, eligibility, &result)
		}
	}
	if failed == a.cfg.Pages {
		return result, source.CanceledOr(ctx, source.ErrAllPagesFailed)
	}
	return result, nil
}

func (a *Adapter) listURL(page int) string {
	q := url.Values{}
	q.Set("filterBy_categoryIDs", "35")
	q.Set("filterType", "CATEGORY")
	q.Set("orderBy_direction", "DESC")
	q.Set("orderBy_field", "CREATED_AT")
	q.Set("page", strconv.Itoa(page))
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) listPage(ctx context.Context, page int) ([]string, error) {
	listURL := a.listURL(page)
	doc, err := source.Document(ctx, a.browser, contest.FetchRequest{URL: listURL, WaitSelector: cardSelector})
	if err != nil {
		return nil, err
	}
	return activityLinks(doc, listURL), nil
}

// activityLinks collects one detail link per listing card, falling back to every
// activity anchor on the page when no cards rendered. Links are deduplicated in
// listing order.
func activityLinks(doc *goquery.Document, base string) []string {
	var anchors []*goquery.Selection
	cards := doc.Find(cardSelector)
	if cards.Length() > 0 {
		cards.Each(func(_ int, card *goquery.Selection) {
			if a := card.Find(activitySelector).First(); a.Length() > 0 {
				anchors = append(anchors, a)
			}
		})
	} else {
		doc.Find(activitySelector).Each(func(_ int, a *goquery.Selection) {
			anchors = append(anchors, a)
		})
	}

	seen := make(map[string]struct{}, len(anchors))
	links := make([]string, 0, len(anchors))
	for _, anchor := range anchors {
		href, _ := anchor.Attr("href")
		abs := source.Resolve(base, href)
		if abs == "" {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}
	return links
}

func (a *Adapter) detail(ctx context.Context, detailURL string, eligibility source.Eligibility, result *contest.SourceResult) {
	doc, err := source.Document(ctx, a.pages, contest.FetchRequest{URL: detailURL})
	if err != nil {
		a.logger.Warn("detail page failed", zap.String("url", detailURL), zap.Error(err))
		return
	}
	rec, target, err := parseDetail(doc, detailURL)
	if err != nil {
		a.logger.Warn("detail page unparseable", zap.String("url", detailURL), zap.Error(err))
		return
	}
	switch eligibility.Check(target) {
	case source.Eligible:
		result.Accepted = append(result.Accepted, rec)
	case source.Excluded:
		result.Excluded = append(result.Excluded, contest.ExcludedRecord{Title: rec.Title, SiteURL: detailURL, Reason: target})
	case source.Dropped:
	}
}

func parseDetail(doc *goquery.Document, detailURL string) (contest.Record, string, error) {
	title := source.TextOf(doc.Find(titleSelector))
	if title == contest.NotAvailable {
		return contest.Record{}, "", fmt.Errorf("no title")
	}
	return contest.Record{
		Title:     title,
		SiteURL:   detailURL,
		PosterURL: source.PosterURL(detailURL, source.Attr(doc.Find(posterSelector), "src")),
		StartDate: source.TextOf(doc.Find(startSelector)),
		EndDate:   source.TextOf(doc.Find(endSelector)),
	}, source.TextOf(doc.Find(targetSelector)), nil
}
