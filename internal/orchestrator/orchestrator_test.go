package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/merge"
	"github.com/contestlab/contest-pipeline/internal/source"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type urlHasher map[string]string

func (h urlHasher) Fingerprint(_ context.Context, posterURL string) (string, error) {
	if v, ok := h[posterURL]; ok {
		return v, nil
	}
	return "", merge.ErrNoPoster
}

type fakeAdapter struct {
	name   string
	result contest.SourceResult
	err    error
	block  bool
	panics bool
}

func (f fakeAdapter) Name() string { return f.name }

func (f fakeAdapter) Crawl(ctx context.Context) (contest.SourceResult, error) {
	if f.panics {
		panic("selector exploded")
	}
	if f.block {
		<-ctx.Done()
		return contest.SourceResult{}, ctx.Err()
	}
	return f.result, f.err
}

type harness struct {
	orch  *Orchestrator
	work  *artifact.Store
	data  *artifact.Store
	slept []time.Duration
}

func newHarness(t *testing.T, adapters ...fakeAdapter) *harness {
	t.Helper()
	work, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	data, err := artifact.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	byName := map[string]source.Adapter{}
	for _, a := range adapters {
		byName[a.name] = a
	}
	runner := InProcessRunner{
		Work: work,
		Build: func(name string) (source.Adapter, error) {
			a, ok := byName[name]
			if !ok {
				return nil, errors.New("unknown source")
			}
			return a, nil
		},
	}
	hasher := urlHasher{"https://img/a.png": "ha", "https://img/a2.png": "ha", "https://img/b.png": "hb"}
	engine := merge.NewEngine(hasher, fixedClock{now: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)}, nil, nil)

	h := &harness{work: work, data: data}
	h.orch = New(Config{Timeout: 200 * time.Millisecond, Delay: 2 * time.Second}, runner, work, data, engine, nil)
	h.orch.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func rec(title, poster string) contest.Record {
	return contest.Record{
		Title:     title,
		SiteURL:   "https://site/" + title,
		PosterURL: poster,
		StartDate: "2025-06-01",
		EndDate:   "2025-07-01",
	}
}

func TestOrder(t *testing.T) {
	t.Parallel()
	got := Order([]string{"thinkyou", "linkareer", "contestkorea"}, []string{"contestkorea", "wevity", "thinkyou", "allcon"})
	assert.Equal(t, []string{"thinkyou", "contestkorea", "wevity", "allcon"}, got)
	assert.Empty(t, Order([]string{"thinkyou"}, nil))
}

func TestRunAllMergesAndAppends(t *testing.T) {
	t.Parallel()
	h := newHarness(t,
		fakeAdapter{name: "thinkyou", result: contest.SourceResult{
			Accepted: []contest.Record{rec("a", "https://img/a.png")},
			Excluded: []contest.ExcludedRecord{{Title: "kids", SiteURL: "https://site/kids", Reason: "초등학생"}},
		}},
		fakeAdapter{name: "linkareer", result: contest.SourceResult{
			Accepted: []contest.Record{rec("a-copy", "https://img/a2.png"), rec("b", "https://img/b.png")},
		}},
	)
	require.NoError(t, h.data.AppendExcluded(context.Background(), "excluded_contests.json",
		[]contest.ExcludedRecord{{Title: "old", SiteURL: "https://site/old", Reason: "직장인"}}))

	res, err := h.orch.RunAll(context.Background(), []string{"thinkyou", "linkareer"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{2 * time.Second}, h.slept, "delay only between sources")
	require.Len(t, res.Sources, 2)
	assert.Equal(t, OutcomeOK, res.Sources[0].Outcome)
	assert.Equal(t, 1, res.Sources[0].Excluded)
	assert.Len(t, res.Accepted, 3)

	catalog, err := h.data.ReadRecords("all_contests.json")
	require.NoError(t, err)
	titles := []string{}
	for _, r := range catalog {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"a", "b"}, titles)

	dups, err := artifact.ReadList[contest.DuplicateEntry](h.data.Path("duplicate_posters.json"))
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, contest.ReasonDuplicateInNew, dups[0].Reason)

	excluded, err := artifact.ReadList[contest.ExcludedRecord](h.data.Path("excluded_contests.json"))
	require.NoError(t, err)
	require.Len(t, excluded, 2)
	assert.Equal(t, "old", excluded[0].Title)
	assert.Equal(t, "kids", excluded[1].Title)

	for _, name := range []string{"thinkyou", "linkareer"} {
		assert.False(t, h.work.Exists(AcceptedArtifact(name)), "transient artifacts are deleted")
		assert.False(t, h.work.Exists(ExcludedArtifact(name)))
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t,
		fakeAdapter{name: "slow", block: true},
		fakeAdapter{name: "broken", err: errors.New("listing moved")},
		fakeAdapter{name: "panicky", panics: true},
		fakeAdapter{name: "good", result: contest.SourceResult{Accepted: []contest.Record{rec("b", "https://img/b.png")}}},
	)

	res, err := h.orch.RunAll(context.Background(), []string{"slow", "broken", "panicky", "missing", "good"})
	require.NoError(t, err)

	outcomes := map[string]string{}
	for _, o := range res.Sources {
		outcomes[o.Source] = o.Outcome
	}
	assert.Equal(t, map[string]string{
		"slow":    OutcomeTimeout,
		"broken":  OutcomeFailed,
		"panicky": OutcomeFailed,
		"missing": OutcomeFailed,
		"good":    OutcomeOK,
	}, outcomes)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "b", res.Accepted[0].Title)
}

func TestRunAllSkipsNoOpWrites(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeAdapter{name: "empty", result: contest.SourceResult{}})

	res, err := h.orch.RunAll(context.Background(), []string{"empty"})
	require.NoError(t, err)
	assert.Nil(t, res.Merge)
	assert.False(t, h.data.Exists("all_contests.json"))
	assert.False(t, h.data.Exists("duplicate_posters.json"))
	assert.False(t, h.data.Exists("excluded_contests.json"))
}

// scriptedRunner writes artifacts directly, standing in for a child process.
type scriptedRunner struct {
	work  *artifact.Store
	files map[string]string
}

func (r scriptedRunner) Run(_ context.Context, _ string) error {
	for name, body := range r.files {
		if err := os.WriteFile(r.work.Path(name), []byte(body), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func TestRunAllTreatsMalformedArtifactAsEmpty(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.orch.runner = scriptedRunner{work: h.work, files: map[string]string{
		AcceptedArtifact("odd"): `{"title": "not a list"}`,
		ExcludedArtifact("odd"): `[{"title": "x", "site_url": "https://site/x", "reason": "직장인"}]`,
	}}

	res, err := h.orch.RunAll(context.Background(), []string{"odd"})
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.Len(t, res.Excluded, 1)
	assert.False(t, h.work.Exists(AcceptedArtifact("odd")), "malformed artifacts are still removed")
}

func TestRunAllDiscardsStaleArtifacts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeAdapter{name: "broken", err: errors.New("down")})
	require.NoError(t, os.WriteFile(h.work.Path(AcceptedArtifact("broken")), []byte(`[{"title":"stale"}]`), 0o600))

	res, err := h.orch.RunAll(context.Background(), []string{"broken"})
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.False(t, h.work.Exists(AcceptedArtifact("broken")))
}

func TestRunAllStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeAdapter{name: "a", result: contest.SourceResult{Accepted: []contest.Record{rec("a", "N/A")}}})
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := h.orch.RunAll(ctx, []string{"a", "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.data.Exists("all_contests.json"))
}

func TestRunSourceSkipsEmptyExclusions(t *testing.T) {
	t.Parallel()
	work, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, RunSource(context.Background(), fakeAdapter{name: "quiet"}, work))
	accepted, err := artifact.ReadList[contest.Record](work.Path(AcceptedArtifact("quiet")))
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.False(t, work.Exists(ExcludedArtifact("quiet")))
}
