package poster

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/poster.png":
			if r.Header.Get("User-Agent") != "poster-agent" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/huge.png":
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPoster(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "poster-agent", Timeout: time.Second})

	resp, err := f.Fetch(context.Background(), contest.FetchRequest{URL: srv.URL + "/poster.png"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", string(resp.Body))
	assert.Equal(t, "image/png", resp.Headers.Get("Content-Type"))
}

func TestFetchPosterStatusError(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "poster-agent"})

	_, err := f.Fetch(context.Background(), contest.FetchRequest{URL: srv.URL + "/gone.png"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchPosterTooLarge(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "poster-agent", MaxBytes: 16})

	_, err := f.Fetch(context.Background(), contest.FetchRequest{URL: srv.URL + "/huge.png"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestGuardedClientRefusesLoopback(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "poster-agent", BlockPrivateNetworks: true, Timeout: time.Second})

	_, err := f.Fetch(context.Background(), contest.FetchRequest{URL: srv.URL + "/poster.png"})
	assert.Error(t, err)
}
