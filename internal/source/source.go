// Package source defines the contract every listing-site adapter satisfies and the
// scraping helpers they share.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

// Adapter crawls one external listing site.
type Adapter interface {
	Name() string
	Crawl(ctx context.Context) (contest.SourceResult, error)
}

// ErrAllPagesFailed is returned when no listing page of a source could be read.
var ErrAllPagesFailed = errors.New("every listing page failed")

// Document fetches req with f and parses the body as HTML.
func Document(ctx context.Context, f contest.Fetcher, req contest.FetchRequest) (*goquery.Document, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", req.URL, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.URL, err)
	}
	if u, perr := url.Parse(resp.URL); perr == nil && resp.URL != "" {
		doc.Url = u
	}
	return doc, nil
}

// Resolve turns href into an absolute URL against base. Empty input yields "".
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// Attr returns the trimmed attribute of the first node in sel, or N/A.
func Attr(sel *goquery.Selection, name string) string {
	v, ok := sel.First().Attr(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return contest.NotAvailable
	}
	return v
}

// TextOf returns the cleaned text of the first node in sel, or N/A.
func TextOf(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return contest.NotAvailable
	}
	t := Text(sel.First().Text())
	if t == "" {
		return contest.NotAvailable
	}
	return t
}

// PosterURL resolves a poster src against base, keeping N/A.
func PosterURL(base, src string) string {
	if src == contest.NotAvailable {
		return src
	}
	if abs := Resolve(base, src); abs != "" {
		return abs
	}
	return contest.NotAvailable
}

// CanceledOr returns ctx's error if it is done, otherwise err.
func CanceledOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
