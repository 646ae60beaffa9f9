// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pageviews

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brawer/missingpedia/internal/fetch"
	"github.com/brawer/missingpedia/internal/wikidump"
)

const DefaultBaseURL = "https://dumps.wikimedia.org/other/pageviews/"

// DefaultWorkers is the number of shards processed in parallel.
const DefaultWorkers = 4

var ErrDateRange = errors.New("invalid date range")

// How long we keep trying to delete a shard file after parsing.
var (
	removeTimeout  = 10 * time.Second
	removeInterval = time.Second
)

// Shard is one hourly pageview file.
type Shard struct {
	Hour time.Time
	URL  string
	Path string
}

// FailedShard is a shard whose data is missing from the aggregate.
type FailedShard struct {
	Shard Shard
	Err   error
}

// Report summarizes an aggregation run.
type Report struct {
	Shards    int
	Succeeded int
	Failed    []FailedShard
	ParseStats
}

// Aggregator sums up the hourly pageviews of a range of days.
type Aggregator struct {
	Fetcher   *fetch.Fetcher
	BaseURL   string
	WorkDir   string
	Workers   int
	Languages []string
	Logger    *log.Logger
}

// Shards returns the 24 hourly shards for every day from start
// through end, both inclusive.
func (a *Aggregator) Shards(start, end time.Time) ([]Shard, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	shards := make([]Shard, 0, 24*(int(end.Sub(start).Hours()/24)+1))
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		month := day.Format("2006-01")
		for hour := 0; hour < 24; hour++ {
			t := day.Add(time.Duration(hour) * time.Hour)
			name := fmt.Sprintf("pageviews-%s.gz", t.Format("20060102-150000"))
			shards = append(shards, Shard{
				Hour: t,
				URL:  fmt.Sprintf("%s%04d/%s/%s", baseURL, t.Year(), month, name),
				Path: filepath.Join(a.WorkDir, month, name),
			})
		}
	}
	return shards, nil
}

// Run fetches and parses every shard from start through end,
// and merges the counts into one aggregate. Shards get processed
// by a pool of workers. A shard that cannot be fetched or parsed
// is listed in the report, but does not keep the other shards from
// being processed. Run returns after all shards have been handled;
// the error is only set for an invalid date range or when ctx
// gets canceled.
func (a *Aggregator) Run(ctx context.Context, start, end time.Time) (*Aggregate, *Report, error) {
	shards, err := a.Shards(start, end)
	if err != nil {
		return nil, nil, err
	}

	workers := a.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	agg := NewAggregate()
	results := make([]shardResult, len(shards))

	// Not errgroup.WithContext: one failed shard must not cancel the others.
	var g errgroup.Group
	g.SetLimit(workers)
	for i, shard := range shards {
		g.Go(func() error {
			results[i] = a.process(ctx, shard, agg)
			return nil
		})
	}
	g.Wait()

	report := &Report{Shards: len(shards)}
	for i, r := range results {
		report.ParseStats.Add(r.stats)
		if r.err != nil {
			report.Failed = append(report.Failed, FailedShard{Shard: shards[i], Err: r.err})
			continue
		}
		report.Succeeded++
	}

	if a.Logger != nil {
		a.Logger.Printf("aggregated pageviews of %d/%d shards from %s to %s, %d lines, %d malformed",
			report.Succeeded, report.Shards, start.Format(time.DateOnly), end.Format(time.DateOnly),
			report.Lines, report.Malformed)
	}

	if err := ctx.Err(); err != nil {
		return agg, report, err
	}
	return agg, report, nil
}

type shardResult struct {
	stats ParseStats
	err   error
}

func (a *Aggregator) process(ctx context.Context, shard Shard, agg *Aggregate) shardResult {
	if err := os.MkdirAll(filepath.Dir(shard.Path), 0755); err != nil {
		return shardResult{err: err}
	}

	if err := a.Fetcher.Fetch(ctx, shard.URL, shard.Path); err != nil {
		if a.Logger != nil {
			a.Logger.Printf("giving up on %s: %v", shard.URL, err)
		}
		return shardResult{err: err}
	}

	counts, stats, err := a.parse(shard.Path)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Printf("cannot parse %s: %v", shard.Path, err)
		}
		a.remove(shard.Path)
		return shardResult{stats: stats, err: err}
	}
	if stats.Malformed > 0 && a.Logger != nil {
		a.Logger.Printf("%s: skipped %d malformed lines", shard.Path, stats.Malformed)
	}

	agg.Merge(counts)
	a.remove(shard.Path)
	return shardResult{stats: stats}
}

func (a *Aggregator) parse(path string) (Counts, ParseStats, error) {
	f, err := wikidump.Open(path)
	if err != nil {
		return nil, ParseStats{}, err
	}
	defer f.Close()
	return ParseShard(f, a.Languages)
}

// Remove deletes a file, retrying for a while if the file is busy.
// Failing to remove a file is logged, but not fatal.
func (a *Aggregator) remove(path string) {
	deadline := time.Now().Add(removeTimeout)
	for {
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			if a.Logger != nil {
				a.Logger.Printf("could not delete %s after %v: %v", path, removeTimeout, err)
			}
			return
		}
		time.Sleep(removeInterval)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
