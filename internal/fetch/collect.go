package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Warning is a per-source failure recorded without failing the stage
// (spec.md §4.1: "A per-source failure is reported but never fails the
// stage").
type Warning struct {
	Source string
	Err    error
}

// CollectOptions bounds S1's behavior.
type CollectOptions struct {
	MaxItems int           // cap on the deduplicated RawItem list
	Window   time.Duration // items older than this are dropped; default 24h
}

func DefaultCollectOptions() CollectOptions {
	return CollectOptions{MaxItems: 30, Window: 24 * time.Hour}
}

// CollectAll fetches every source concurrently (one goroutine per
// source, no shared cap per spec.md §5), computes a stable content-hash
// ID per item, drops items outside the configured window, collapses
// duplicate ids to the first-seen record, and caps the result at
// MaxItems. It always returns a result: a source-level failure
// (including one caused by a cancelled ctx) becomes a Warning, never an
// error from CollectAll itself.
func CollectAll(ctx context.Context, sources []Source, opts CollectOptions, logger *slog.Logger) ([]RawItem, []Warning) {
	if logger == nil {
		logger = slog.Default()
	}
	collector := NewCollector(nil)

	type result struct {
		items []RawItem
		warn  *Warning
	}
	results := make([]result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			items, err := collector.Collect(gctx, src)
			if err != nil {
				logger.Warn("fetch: source failed", "source", src.Name, "error", err)
				results[i] = result{warn: &Warning{Source: src.Name, Err: err}}
				return nil
			}
			results[i] = result{items: items}
			return nil
		})
	}
	_ = g.Wait() // errors are captured per-source above; Wait's error is always nil here

	var all []RawItem
	var warnings []Warning
	for _, r := range results {
		if r.warn != nil {
			warnings = append(warnings, *r.warn)
			continue
		}
		all = append(all, r.items...)
	}

	cutoff := time.Now().Add(-opts.Window)
	seen := make(map[string]bool, len(all))
	var deduped []RawItem
	for _, item := range all {
		if item.ID == "" {
			item.ID = stableID(item.SourceName, item.URL)
		}
		if !item.PublishedAt.IsZero() && item.PublishedAt.Before(cutoff) {
			continue
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		deduped = append(deduped, item)
	}

	if opts.MaxItems > 0 && len(deduped) > opts.MaxItems {
		deduped = deduped[:opts.MaxItems]
	}
	return deduped, warnings
}

// stableID is spec.md §3's "content hash of source-id+url".
func stableID(sourceID, url string) string {
	h := sha256.Sum256([]byte(sourceID + "|" + url))
	return hex.EncodeToString(h[:])[:16]
}
