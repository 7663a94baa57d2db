// Package contestkorea crawls the contestkorea.com science and engineering listing.
package contestkorea

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
const Name = "contestkorea"

const (
	listItemSelector = "div.list_style_2 > ul > li"
	linkSelector     = "div.title > a"
	titleSelector    = "div.view_top_area > h1"
	infoRowSelector  = "div.view_top_area div.txt_area table tbody tr"
	posterSelector   = "div.view_top_area div.img_area img"
)

// Config tunes the adapter.
type Config struct {
	BaseURL  string
	Pages    int
	Eligible []string
}

// Adapter implements source.Adapter for contestkorea.
type Adapter struct {
	cfg     Config
	fetcher contest.Fetcher
	logger  *zap.Logger
}

// New builds the adapter. Pages are plain HTML so fetcher is the static fetcher.
func New(cfg Config, fetcher contest.Fetcher, logger *zap.Logger) *Adapter {
	if cfg.Pages <= 0 {
		cfg.Pages = 4
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, logger: logging.OrNop(logger).With(zap.String("source", Name))}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Crawl walks listing pages 1..Pages and visits every detail link in listing order.
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
	q.Set("displayrow", "12")
	q.Set("int_gbn", "1")
	q.Set("Txt_sGn", "1")
	q.Set("Txt_key", "all")
	q.Set("Txt_bcode", "030310001")
	q.Set("Txt_sortkey", "a.int_sort")
	q.Set("Txt_sortword", "desc")
	q.Set("page", strconv.Itoa(page))
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) listPage(ctx context.Context, page int) ([]string, error) {
	listURL := a.listURL(page)
	doc, err := source.Document(ctx, a.fetcher, contest.FetchRequest{URL: listURL})
	if err != nil {
		return nil, err
	}
	var links []string
	doc.Find(listItemSelector).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(linkSelector).First().Attr("href")
		if !ok {
			return
		}
		if abs := source.Resolve(listURL, href); abs != "" {
			links = append(links, abs)
		}
	})
	return links, nil
}

func (a *Adapter) detail(ctx context.Context, detailURL string, eligibility source.Eligibility, result *contest.SourceResult) {
	doc, err := source.Document(ctx, a.fetcher, contest.FetchRequest{URL: detailURL})
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

// parseDetail extracts the record and its target-audience text. The info table lists
// the audience in its third row and the application period in its fourth.
func parseDetail(doc *goquery.Document, detailURL string) (contest.Record, string, error) {
	title := source.TextOf(doc.Find(titleSelector))
	if title == contest.NotAvailable {
		return contest.Record{}, "", fmt.Errorf("no title")
	}
	rows := doc.Find(infoRowSelector)
	target := source.TextOf(rows.Eq(2).Find("td"))
	period := source.TextOf(rows.Eq(3).Find("td"))
	start, end := contest.NotAvailable, contest.NotAvailable
	if period != contest.NotAvailable {
		start, end = contest.SplitDateRange(period)
	}
	return contest.Record{
		Title:     title,
		SiteURL:   detailURL,
		PosterURL: source.PosterURL(detailURL, source.Attr(doc.Find(posterSelector), "src")),
		StartDate: start,
		EndDate:   end,
	}, target, nil
}
