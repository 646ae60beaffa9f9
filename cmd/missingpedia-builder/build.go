// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/brawer/missingpedia/internal/config"
	"github.com/brawer/missingpedia/internal/fetch"
	"github.com/brawer/missingpedia/internal/pageviews"
	"github.com/brawer/missingpedia/internal/store"
	"github.com/brawer/missingpedia/internal/wikidump"
)

// Steps of the pipeline, in the order in which they run.
var allSteps = []string{
	"langlinks",
	"pagecategorylinks",
	"articles",
	"categories",
	"categorylinks",
	"pageviews",
}

// ParseSteps parses a comma-separated list of steps. The result
// is in pipeline order, no matter in which order the steps were given.
func ParseSteps(s string) ([]string, error) {
	if s == "" || s == "all" {
		return allSteps, nil
	}
	want := make(map[string]bool, len(allSteps))
	for _, step := range strings.Split(s, ",") {
		step = strings.TrimSpace(step)
		if !slices.Contains(allSteps, step) {
			return nil, fmt.Errorf("unknown step %q, want one of %s", step, strings.Join(allSteps, ","))
		}
		want[step] = true
	}
	steps := make([]string, 0, len(want))
	for _, step := range allSteps {
		if want[step] {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// Builder runs the ingestion pipeline for a set of language editions.
type Builder struct {
	Config    *config.Config
	Store     *store.Store
	Fetcher   *fetch.Fetcher
	Storage   S3
	Metrics   *Metrics
	WorkDir   string
	Date      time.Time
	Languages []string

	// Pageview window; both inclusive. If zero, the window starts
	// on the first day of the month before Date, and lasts 30 days.
	PageviewsStart time.Time
	PageviewsEnd   time.Time

	stats Stats
}

var (
	ErrMissingDate      = errors.New("missing dump date")
	ErrMissingLanguages = errors.New("missing languages")
)

// Validate checks the arguments of a run. It does no I/O, so callers
// can reject bad arguments before touching logs, storage or the store.
func (b *Builder) Validate() error {
	if b.Date.IsZero() {
		return ErrMissingDate
	}
	if len(b.Languages) == 0 {
		return ErrMissingLanguages
	}
	for _, lang := range b.Languages {
		if err := wikidump.CheckLanguage(lang); err != nil {
			return err
		}
	}
	if b.PageviewsStart.IsZero() != b.PageviewsEnd.IsZero() {
		return fmt.Errorf("%w: need both start and end of pageviews", pageviews.ErrDateRange)
	}
	start, end := b.pageviewRange()
	if end.Before(start) {
		return fmt.Errorf("%w: %s is after %s", pageviews.ErrDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}

// Build runs the given steps of the pipeline.
func (b *Builder) Build(ctx context.Context, steps []string) error {
	if err := b.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(b.dumpsDir(), 0755); err != nil {
		return err
	}

	b.stats = Stats{
		Date:      b.Date.Format(time.DateOnly),
		Languages: b.Languages,
		Ingested:  make(map[string]map[string]IngestStats, len(b.Languages)),
		Loaded:    make(map[string]store.LoadResult, len(allSteps)),
	}

	for _, step := range steps {
		start := time.Now()
		if err := b.runStep(ctx, step); err != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
		elapsed := time.Since(start)
		b.Metrics.StepDuration(step, elapsed)
		if logger != nil {
			logger.Printf("built %s in %.1fs", step, elapsed.Seconds())
		}
	}

	statsPath, err := b.stats.Write(b.Date, b.WorkDir)
	if err != nil {
		return err
	}
	if b.Storage != nil {
		if err := b.upload(ctx, statsPath, "application/json"); err != nil {
			return err
		}
		if err := CleanupStorage(ctx, b.Storage); err != nil {
			return err
		}
	}

	if err := CleanupCache(b.WorkDir); err != nil {
		return err
	}

	b.Metrics.Succeeded(time.Now())
	return b.Metrics.Write(filepath.Join(b.WorkDir, "missingpedia-builder.prom"))
}

func (b *Builder) runStep(ctx context.Context, step string) error {
	if step == "pageviews" {
		return b.buildPageviews(ctx)
	}
	for _, lang := range b.Languages {
		var stats IngestStats
		var err error
		switch step {
		case "langlinks":
			stats, err = b.buildLangLinks(ctx, lang)
		case "pagecategorylinks":
			stats, err = b.buildPageCategoryLinks(ctx, lang)
		case "articles":
			stats, err = b.buildArticles(ctx, lang)
		case "categories":
			stats, err = b.buildCategories(ctx, lang)
		case "categorylinks":
			stats, err = b.buildCategoryLinks(ctx, lang)
		default:
			return fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return fmt.Errorf("%swiki: %w", lang, err)
		}
		if b.stats.Ingested[step] == nil {
			b.stats.Ingested[step] = make(map[string]IngestStats, len(b.Languages))
		}
		b.stats.Ingested[step][lang] = stats
		b.Metrics.Ingested(step, stats)
	}
	return nil
}

func (b *Builder) buildArticles(ctx context.Context, lang string) (IngestStats, error) {
	path, err := b.fetchDump(ctx, lang, "page")
	if err != nil {
		return IngestStats{}, err
	}

	loader := store.NewLoader[wikidump.Article](b.Store.DB(), store.Idempotent, b.Config.Loader.BatchSize)
	exclusions := b.Config.ExclusionsFor(lang)
	newClassifier := func(columns []string) (func([]string) (wikidump.Article, error), error) {
		c, err := wikidump.NewArticleClassifier(lang, columns, exclusions)
		if err != nil {
			return nil, err
		}
		return c.Classify, nil
	}
	sink := func(a wikidump.Article) error { return loader.Add(ctx, a) }

	stats, err := ingest(ctx, path, "page", wikidump.Tokenize, newClassifier, sink)
	if err != nil {
		return stats, err
	}
	result, err := loader.Close(ctx)
	b.loaded("articles", result)
	return stats, err
}

func (b *Builder) buildCategories(ctx context.Context, lang string) (IngestStats, error) {
	path, err := b.fetchDump(ctx, lang, "page")
	if err != nil {
		return IngestStats{}, err
	}

	loader := store.NewLoader[wikidump.Category](b.Store.DB(), store.Idempotent, b.Config.Loader.BatchSize)
	newClassifier := func(columns []string) (func([]string) (wikidump.Category, error), error) {
		c, err := wikidump.NewCategoryClassifier(lang, columns)
		if err != nil {
			return nil, err
		}
		return c.Classify, nil
	}
	sink := func(c wikidump.Category) error { return loader.Add(ctx, c) }

	stats, err := ingest(ctx, path, "page", wikidump.Tokenize, newClassifier, sink)
	if err != nil {
		return stats, err
	}
	result, err := loader.Close(ctx)
	b.loaded("categories", result)
	return stats, err
}

func (b *Builder) buildCategoryLinks(ctx context.Context, lang string) (IngestStats, error) {
	newClassifier := func(columns []string) (func([]string) (wikidump.CategoryLink, error), error) {
		c, err := wikidump.NewCategoryLinkClassifier(lang, columns)
		if err != nil {
			return nil, err
		}
		return c.Classify, nil
	}
	return stageAndLoad(ctx, b, lang, "categorylinks", wikidump.Tokenize, newClassifier, store.CategoryLinkCodec)
}

func (b *Builder) buildPageCategoryLinks(ctx context.Context, lang string) (IngestStats, error) {
	newClassifier := func(columns []string) (func([]string) (wikidump.PageCategoryLink, error), error) {
		c, err := wikidump.NewPageCategoryLinkClassifier(lang, columns)
		if err != nil {
			return nil, err
		}
		return c.Classify, nil
	}
	return stageAndLoad(ctx, b, lang, "categorylinks", wikidump.Tokenize, newClassifier, store.PageCategoryLinkCodec)
}

func (b *Builder) buildLangLinks(ctx context.Context, lang string) (IngestStats, error) {
	c := wikidump.NewLangLinkClassifier(lang)
	newClassifier := func([]string) (func(string) (wikidump.LangLink, error), error) {
		return c.Classify, nil
	}
	return stageAndLoad(ctx, b, lang, "langlinks", wikidump.SplitRows, newClassifier, store.LangLinkCodec)
}

// StageAndLoad ingests a dump into a staging file, and then loads
// the staged records into the store. We use this for the large
// link relations, which get appended without conflict checks.
func stageAndLoad[R, T any](ctx context.Context, b *Builder, lang, table string, split func(string) []R, newClassifier func([]string) (func(R) (T, error), error), codec store.Codec[T]) (IngestStats, error) {
	path, err := b.fetchDump(ctx, lang, table)
	if err != nil {
		return IngestStats{}, err
	}

	stage, err := store.NewStage(b.WorkDir, codec)
	if err != nil {
		return IngestStats{}, err
	}
	stats, err := ingest(ctx, path, table, split, newClassifier, stage.Add)
	if err != nil {
		stage.Discard()
		return stats, err
	}

	result, err := stage.Load(ctx, b.Store, b.Config.Loader.StageChunkSize)
	b.loaded(codec.Table, result)
	return stats, err
}

func (b *Builder) loaded(relation string, result store.LoadResult) {
	r := b.stats.Loaded[relation]
	r.Add(result)
	b.stats.Loaded[relation] = r
	b.Metrics.Loaded(relation, result)
}

func (b *Builder) upload(ctx context.Context, path, contentType string) error {
	dest := "public/" + filepath.Base(path)
	if err := PutInStorage(ctx, path, b.Storage, storageBucket, dest, contentType); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("uploaded to storage: %s/%s", storageBucket, dest)
	}
	return nil
}
