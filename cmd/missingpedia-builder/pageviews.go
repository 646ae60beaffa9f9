// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brawer/missingpedia/internal/pageviews"
)

// PageviewWindow returns the first and last day whose pageviews get
// counted for a dump of the given date: the first day of the month
// before the dump, and 30 days after that.
func pageviewWindow(date time.Time) (time.Time, time.Time) {
	firstOfMonth := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := firstOfMonth.AddDate(0, -1, 0)
	return start, start.AddDate(0, 0, 30)
}

// pageviewRange returns the configured pageview window,
// or the default window for the dump date.
func (b *Builder) pageviewRange() (time.Time, time.Time) {
	if b.PageviewsStart.IsZero() || b.PageviewsEnd.IsZero() {
		return pageviewWindow(b.Date)
	}
	return b.PageviewsStart, b.PageviewsEnd
}

func (b *Builder) buildPageviews(ctx context.Context) error {
	start, end := b.pageviewRange()

	agg := &pageviews.Aggregator{
		Fetcher:   b.Fetcher,
		BaseURL:   b.Config.Pageviews.BaseURL,
		WorkDir:   filepath.Join(b.WorkDir, "pageviews"),
		Workers:   b.Config.Pageviews.Workers,
		Languages: b.Languages,
		Logger:    logger,
	}
	totals, report, err := agg.Run(ctx, start, end)
	if err != nil {
		return err
	}
	b.stats.Pageviews = &PageviewStats{
		Start:     start.Format(time.DateOnly),
		End:       end.Format(time.DateOnly),
		Shards:    report.Shards,
		Succeeded: report.Succeeded,
		Failed:    len(report.Failed),
		Lines:     report.Lines,
		Malformed: report.Malformed,
	}
	b.Metrics.Shards(report)
	for _, f := range report.Failed {
		if logger != nil {
			logger.Printf("missing pageviews for %s: %v", f.Shard.Hour.Format("2006-01-02T15"), f.Err)
		}
	}

	counts := totals.Totals()
	result, err := b.Store.UpdateViewCounts(ctx, counts, b.Config.Loader.BatchSize)
	if err != nil {
		return err
	}
	b.stats.Pageviews.Updated = result.Updated
	b.stats.Pageviews.Unmatched = result.Unmatched

	snapshot, err := b.writeSnapshot(ctx, counts)
	if err != nil {
		return err
	}
	if b.Storage != nil {
		if err := b.upload(ctx, snapshot, "application/zstd"); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot stores the pageview totals in a sorted, compressed
// text file, such as "pageviews-20240501.zst".
func (b *Builder) writeSnapshot(ctx context.Context, counts pageviews.Counts) (string, error) {
	path := filepath.Join(b.WorkDir, fmt.Sprintf("pageviews-%s.zst", b.Date.Format("20060102")))
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := pageviews.WriteSnapshot(ctx, counts, f); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return path, nil
}
