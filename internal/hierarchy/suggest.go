// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/brawer/missingpedia/internal/wikidump"
)

const DefaultSuggestionLimit = 10

// Categories whose titles contain one of these words are maintenance
// categories, such as "Articles with short description".
var maintenanceWords = []string{"articles", "wikipedia", "description"}

// Suggestion is a category that holds some of the given articles.
type Suggestion struct {
	Title    string `json:"title"`
	Articles int    `json:"articles"`
}

// SuggestCategories returns the categories that hold most of the
// articles with the given titles, as seeds for a follow-up query.
// Maintenance categories are left out. Categories holding the same
// number of articles are ordered by title.
func (r *Resolver) SuggestCategories(ctx context.Context, lang string, titles []string, limit int) ([]Suggestion, error) {
	if err := wikidump.CheckLanguage(lang); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	pages := make([]string, 0, len(titles))
	for _, t := range titles {
		pages = append(pages, wikidump.PageTitle(t))
	}
	slices.Sort(pages)
	pages = slices.Compact(pages)

	counts := make(map[string]int)
	for chunk := range slices.Chunk(pages, chunkSize) {
		var rows []struct {
			Category string
			N        int
		}
		err := r.db.WithContext(ctx).Raw(
			"SELECT p.category AS category, COUNT(DISTINCT p.page_id) AS n "+
				"FROM page_category_link p "+
				"JOIN articles a ON a.page_id = p.page_id AND a.language = p.language "+
				"WHERE a.language = ? AND a.title IN ? "+
				"GROUP BY p.category", lang, chunk).
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if !isMaintenanceCategory(row.Category) {
				counts[row.Category] += row.N
			}
		}
	}

	result := make([]Suggestion, 0, len(counts))
	for title, n := range counts {
		result = append(result, Suggestion{Title: title, Articles: n})
	}
	slices.SortFunc(result, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Articles, a.Articles); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func isMaintenanceCategory(title string) bool {
	t := strings.ToLower(title)
	for _, w := range maintenanceWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
