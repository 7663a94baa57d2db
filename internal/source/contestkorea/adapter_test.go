package contestkorea

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/contestlab/contest-pipeline/internal/fetcher/colly"
)

const listHTML = `<html><body><div class="list_style_2"><ul>
<li><div class="title"><a href="view.php?str_no=1">one</a></div></li>
<li><div class="title"><a href="/sub/view.php?str_no=2">two</a></div></li>
<li><div class="title"><a href="view.php?str_no=404">broken</a></div></li>
<li><div class="title">no link</div></li>
</ul></div></body></html>`

func detailHTML(title, target, period, poster string) string {
	return fmt.Sprintf(`<html><body><div class="view_top_area clfx">
<h1>%s</h1>
<div class="clfx">
  <div class="img_area"><div><img src="%s"></div></div>
  <div class="txt_area"><table><tbody>
    <tr><th>주최</th><td>host</td></tr>
    <tr><th>분야</th><td>과학/공학</td></tr>
    <tr><th>대상</th><td>	%s	</td></tr>
    <tr><th>접수기간</th><td>%s</td></tr>
  </tbody></table></div>
</div></div></body></html>`, title, poster, target, period)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sub/list.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`<html><body></body></html>`))
			return
		}
		_, _ = w.Write([]byte(listHTML))
	})
	mux.HandleFunc("/sub/view.php", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("str_no") {
		case "1":
			_, _ = w.Write([]byte(detailHTML("AI 해커톤", "대학생, 일반인", "2025.06.01 ~ 2025.07.01", "/img/one.jpg")))
		case "2":
			_, _ = w.Write([]byte(detailHTML("청소년 과학 대회", "중학생", "2025.06.01 ~ 2025.06.30", "/img/two.jpg")))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawl(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	a := New(Config{BaseURL: srv.URL + "/sub/list.php", Pages: 2, Eligible: []string{"대학생", "일반인"}},
		collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}), nil)
	res, err := a.Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	got := res.Accepted[0]
	assert.Equal(t, "AI 해커톤", got.Title)
	assert.Equal(t, srv.URL+"/sub/view.php?str_no=1", got.SiteURL)
	assert.Equal(t, srv.URL+"/img/one.jpg", got.PosterURL)
	assert.Equal(t, "2025.06.01", got.StartDate)
	assert.Equal(t, "2025.07.01", got.EndDate)

	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "청소년 과학 대회", res.Excluded[0].Title)
	assert.Equal(t, "중학생", res.Excluded[0].Reason)
}

func TestCrawlAllPagesFailing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL + "/sub/list.php", Pages: 2},
		collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}), nil)
	res, err := a.Crawl(context.Background())
	require.Error(t, err)
	assert.Empty(t, res.Accepted)
}

func TestListURLCarriesPage(t *testing.T) {
	t.Parallel()
	a := New(Config{BaseURL: "https://www.contestkorea.com/sub/list.php"}, nil, nil)
	assert.Contains(t, a.listURL(3), "page=3")
	assert.Contains(t, a.listURL(3), "Txt_bcode=030310001")
	assert.Equal(t, 4, a.cfg.Pages)
}
