// Package registry builds source adapters by name from configuration.
package registry

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/config"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/source"
	"github.com/contestlab/contest-pipeline/internal/source/contestkorea"
	"github.com/contestlab/contest-pipeline/internal/source/linkareer"
	"github.com/contestlab/contest-pipeline/internal/source/thinkyou"
)

// Fetchers are the shared page fetchers handed to adapters.
type Fetchers struct {
	// Pages fetches static HTML.
	Pages contest.Fetcher
	// Browser renders client-side pages.
	Browser contest.Fetcher
}

// Factory builds one adapter.
type Factory func(cfg config.SourceConfig, f Fetchers, logger *zap.Logger) source.Adapter

var factories = map[string]Factory{
	contestkorea.Name: func(cfg config.SourceConfig, f Fetchers, logger *zap.Logger) source.Adapter {
		return contestkorea.New(contestkorea.Config{
			BaseURL:  cfg.BaseURL,
			Pages:    cfg.Pages,
			Eligible: cfg.Eligible,
		}, f.Pages, logger)
	},
	linkareer.Name: func(cfg config.SourceConfig, f Fetchers, logger *zap.Logger) source.Adapter {
		return linkareer.New(linkareer.Config{
			BaseURL:  cfg.BaseURL,
			Pages:    cfg.Pages,
			Eligible: cfg.Eligible,
		}, f.Browser, f.Pages, logger)
	},
	thinkyou.Name: func(cfg config.SourceConfig, f Fetchers, logger *zap.Logger) source.Adapter {
		return thinkyou.New(thinkyou.Config{
			BaseURL:  cfg.BaseURL,
			Pages:    cfg.Pages,
			MaxItems: cfg.MaxItems,
			Eligible: cfg.Eligible,
		}, f.Browser, f.Pages, logger)
	},
}

// Known lists every adapter name in lexical order.
func Known() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named adapter.
func Build(name string, cfg config.SourceConfig, f Fetchers, logger *zap.Logger) (source.Adapter, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	return factory(cfg, f, logger), nil
}

// Enabled returns the names of configured, enabled sources that have an adapter.
// Unknown names are reported in skipped.
func Enabled(sources map[string]config.SourceConfig) (names []string, skipped []string) {
	for name, cfg := range sources {
		if !cfg.Enabled {
			continue
		}
		if _, ok := factories[name]; !ok {
			skipped = append(skipped, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	sort.Strings(skipped)
	return names, skipped
}
