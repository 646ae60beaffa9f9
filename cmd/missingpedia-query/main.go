// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"github.com/brawer/missingpedia/internal/config"
	"github.com/brawer/missingpedia/internal/hierarchy"
	"github.com/brawer/missingpedia/internal/store"
	"github.com/brawer/missingpedia/internal/wikidump"
)

var logger *log.Logger

// Flags holds the command-line arguments that shape a query.
type Flags struct {
	Language  string
	Seeds     string
	Mode      string
	Target    string
	Reference string
	Depth     int
	Limit     int

	// SuggestFrom holds article titles; if set, the command suggests
	// seed categories for them instead of running a query.
	SuggestFrom string
}

func main() {
	ctx := context.Background()
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	var f Flags
	configPath := flag.String("config", "missingpedia.yaml", "path to configuration file")
	flag.StringVar(&f.Language, "lang", "", "language of the seed categories, such as de")
	flag.StringVar(&f.Seeds, "seeds", "", "comma-separated seed category titles")
	flag.StringVar(&f.Mode, "mode", "gap", "gap or expand")
	flag.StringVar(&f.Target, "target", "", "language of the candidates in expand mode; default: -lang")
	flag.StringVar(&f.Reference, "ref", "", "reference language for gap mode; default: from config")
	flag.IntVar(&f.Depth, "depth", -1, "levels of subcategories to search; default: from config")
	flag.IntVar(&f.Limit, "limit", 0, "maximum number of results; default: from config")
	flag.StringVar(&f.SuggestFrom, "suggest-from", "", "comma-separated article titles; print seed categories for them instead of querying")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	var q hierarchy.Query
	var titles []string
	if f.SuggestFrom != "" {
		if err := wikidump.CheckLanguage(f.Language); err != nil {
			log.Fatal(err)
		}
		titles = splitList(f.SuggestFrom)
	} else if q, err = buildQuery(cfg, f); err != nil {
		log.Fatal(err)
	}

	st, err := store.Open(ctx, cfg.Database.DSN, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	resolver := hierarchy.NewResolver(st.DB(), logger)
	if titles != nil {
		err = runSuggest(ctx, resolver, f.Language, titles, f.Limit, os.Stdout)
	} else {
		err = runQuery(ctx, resolver, q, os.Stdout)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func splitList(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// BuildQuery combines command-line flags with the configured defaults.
// It rejects bad languages and missing seeds before the store gets opened.
func buildQuery(cfg *config.Config, f Flags) (hierarchy.Query, error) {
	mode, err := hierarchy.ParseMode(f.Mode)
	if err != nil {
		return hierarchy.Query{}, err
	}

	q := hierarchy.Query{
		Language:          f.Language,
		Mode:              mode,
		TargetLanguage:    f.Target,
		ReferenceLanguage: f.Reference,
		MaxDepth:          f.Depth,
		Limit:             f.Limit,
	}
	q.Seeds = splitList(f.Seeds)
	if q.ReferenceLanguage == "" {
		q.ReferenceLanguage = cfg.Hierarchy.ReferenceLanguage
	}
	if len(q.Seeds) == 0 {
		return hierarchy.Query{}, hierarchy.ErrNoSeeds
	}
	for _, lang := range []string{q.Language, q.ReferenceLanguage} {
		if err := wikidump.CheckLanguage(lang); err != nil {
			return hierarchy.Query{}, err
		}
	}
	if q.TargetLanguage != "" {
		if err := wikidump.CheckLanguage(q.TargetLanguage); err != nil {
			return hierarchy.Query{}, err
		}
	}
	if q.MaxDepth < 0 {
		q.MaxDepth = cfg.Hierarchy.MaxDepth
	}
	if q.Limit <= 0 {
		if mode == hierarchy.Expand {
			q.Limit = cfg.Hierarchy.ExpandRowLimit
		} else {
			q.Limit = cfg.Hierarchy.GapLimit
		}
	}
	return q, nil
}

func runQuery(ctx context.Context, r *hierarchy.Resolver, q hierarchy.Query, w io.Writer) error {
	result, err := r.Resolve(ctx, q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runSuggest(ctx context.Context, r *hierarchy.Resolver, lang string, titles []string, limit int, w io.Writer) error {
	suggestions, err := r.SuggestCategories(ctx, lang, titles, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(suggestions)
}
