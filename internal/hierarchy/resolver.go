// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"sort"

	"gorm.io/gorm"

	"github.com/brawer/missingpedia/internal/wikidump"
)

// Maximum number of values in one SQL IN list.
const chunkSize = 500

// Resolver answers category queries from the store.
type Resolver struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewResolver(db *gorm.DB, logger *log.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// Reachable returns the categories that can be reached from the seeds
// by descending at most maxDepth levels into subcategories, mapped to
// the depth at which they were first reached. Seeds that are not
// a category of the language are ignored. The category graph may
// contain cycles; since every category is expanded at most once,
// and never deeper than maxDepth, the walk always terminates.
func (r *Resolver) Reachable(ctx context.Context, lang string, seeds []string, maxDepth int) (map[string]int, error) {
	if err := wikidump.CheckLanguage(lang); err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrDepth, maxDepth)
	}

	titles := make([]string, 0, len(seeds))
	for _, s := range seeds {
		titles = append(titles, wikidump.PageTitle(s))
	}
	slices.Sort(titles)
	titles = slices.Compact(titles)

	reached := make(map[string]int)
	var frontier []string
	for chunk := range slices.Chunk(titles, chunkSize) {
		var found []string
		err := r.db.WithContext(ctx).
			Model(&wikidump.Category{}).
			Where("language = ? AND title IN ?", lang, chunk).
			Distinct().
			Pluck("title", &found).Error
		if err != nil {
			return nil, err
		}
		for _, title := range found {
			if _, seen := reached[title]; !seen {
				reached[title] = 0
				frontier = append(frontier, title)
			}
		}
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for chunk := range slices.Chunk(frontier, chunkSize) {
			var found []string
			err := r.db.WithContext(ctx).Raw(
				"SELECT DISTINCT c.title FROM category_links l "+
					"JOIN categories c ON c.category_id = l.subcategory AND c.language = l.language "+
					"WHERE l.language = ? AND l.parent_category IN ?", lang, chunk).
				Scan(&found).Error
			if err != nil {
				return nil, err
			}
			for _, title := range found {
				if _, seen := reached[title]; !seen {
					reached[title] = depth
					next = append(next, title)
				}
			}
		}
		slices.Sort(next)
		frontier = next
	}

	return reached, nil
}

type articleRow struct {
	ID        int64  `gorm:"column:page_id"`
	Title     string `gorm:"column:title"`
	Length    int64  `gorm:"column:length"`
	ViewCount int64  `gorm:"column:view_count"`
	Language  string `gorm:"column:language"`
}

// Candidates returns the distinct articles in the given categories
// that have a view count and a positive length, ranked by views per
// byte in descending order. Articles with the same ratio are ordered
// by page identifier.
func (r *Resolver) Candidates(ctx context.Context, lang string, categories []string) ([]Candidate, error) {
	byID := make(map[int64]articleRow)
	for chunk := range slices.Chunk(categories, chunkSize) {
		var rows []articleRow
		err := r.db.WithContext(ctx).Raw(
			"SELECT DISTINCT a.page_id, a.title, a.length, a.view_count, a.language "+
				"FROM page_category_link p "+
				"JOIN articles a ON a.page_id = p.page_id AND a.language = p.language "+
				"WHERE p.language = ? AND p.category IN ? "+
				"AND a.view_count IS NOT NULL AND a.length > 0", lang, chunk).
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			byID[row.ID] = row
		}
	}

	candidates := make([]Candidate, 0, len(byID))
	for _, row := range byID {
		candidates = append(candidates, Candidate{
			ID:       row.ID,
			Title:    row.Title,
			Length:   row.Length,
			Views:    row.ViewCount,
			Ratio:    float64(row.ViewCount) / float64(row.Length),
			Language: row.Language,
		})
	}
	slices.SortFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(a.ID, b.ID)
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Ratio > candidates[j].Ratio
	})
	return candidates, nil
}

// Resolve runs a query.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	lang := q.language()
	if err := wikidump.CheckLanguage(lang); err != nil {
		return nil, err
	}
	if len(q.Seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if q.Mode != Gap && q.Mode != Expand {
		return nil, fmt.Errorf("%w: %v", ErrMode, q.Mode)
	}
	ref := q.referenceLanguage()
	if q.Mode == Gap {
		if err := wikidump.CheckLanguage(ref); err != nil {
			return nil, err
		}
		if ref == lang {
			return nil, fmt.Errorf("%w: %s", ErrSameLanguages, lang)
		}
	}

	reached, err := r.Reachable(ctx, lang, q.Seeds, q.MaxDepth)
	if err != nil {
		return nil, err
	}
	categories := make([]string, 0, len(reached))
	for title := range reached {
		categories = append(categories, title)
	}
	slices.Sort(categories)

	candidates, err := r.Candidates(ctx, lang, categories)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Mode:       q.Mode.String(),
		Language:   lang,
		Categories: len(categories),
		Total:      len(candidates),
	}
	switch q.Mode {
	case Gap:
		result.Candidates, err = r.missingIn(ctx, candidates, lang, ref, q.limit())
	case Expand:
		result.Candidates, err = r.withCounterparts(ctx, candidates, lang, q.limit())
	}
	if err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.Printf("%s query in %s for %d seeds: %d categories, %d candidates, returning %d",
			q.Mode, lang, len(q.Seeds), result.Categories, result.Total, len(result.Candidates))
	}
	return result, nil
}
