package enrich

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"math"
	"sync"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/contestlab/contest-pipeline/internal/contest"
)

const (
	minSide        = 400
	maxSide        = 1200
	largePixels    = 400000
	qualityLarge   = 85
	qualityDefault = 80
)

// TargetSize returns the normalized dimensions for a w×h poster. Small posters are
// scaled up until both sides reach 400px; large ones are scaled down so the longer
// side is 1200px. Aspect ratio is preserved.
func TargetSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if w < minSide || h < minSide {
		scale := math.Max(float64(minSide)/float64(w), float64(minSide)/float64(h))
		return int(float64(w) * scale), int(float64(h) * scale)
	}
	if w > maxSide || h > maxSide {
		if w > h {
			return maxSide, int(float64(h) * maxSide / float64(w))
		}
		return int(float64(w) * maxSide / float64(h)), maxSide
	}
	return w, h
}

// Normalize decodes a poster, resizes it, flattens transparency onto white, and
// re-encodes it as JPEG.
func Normalize(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode poster: %w", err)
	}
	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy())
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("decode poster: empty image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	quality := qualityDefault
	if w*h > largePixels {
		quality = qualityLarge
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode poster: %w", err)
	}
	return buf.Bytes(), nil
}

// URLHasher derives cache keys from poster URLs.
type URLHasher interface {
	HashString(s string) string
}

// ImageLoader downloads and normalizes posters, caching results for one run.
type ImageLoader struct {
	fetcher contest.Fetcher
	keys    URLHasher
	timeout time.Duration

	mu    sync.Mutex
	cache map[string][]byte
}

// NewImageLoader builds a loader. Each download is bounded by timeout.
func NewImageLoader(fetcher contest.Fetcher, keys URLHasher, timeout time.Duration) *ImageLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageLoader{fetcher: fetcher, keys: keys, timeout: timeout, cache: map[string][]byte{}}
}

// Load returns the normalized JPEG for posterURL, downloading it at most once per
// successful load.
func (l *ImageLoader) Load(ctx context.Context, posterURL string) ([]byte, error) {
	key := l.keys.HashString(posterURL)
	l.mu.Lock()
	cached, ok := l.cache[key]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	resp, err := l.fetcher.Fetch(ctx, contest.FetchRequest{URL: posterURL})
	if err != nil {
		return nil, fmt.Errorf("download poster: %w", err)
	}
	out, err := Normalize(resp.Body)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[key] = out
	l.mu.Unlock()
	return out, nil
}

// Cached reports how many posters are cached.
func (l *ImageLoader) Cached() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}
