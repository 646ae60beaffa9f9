// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type pageviewTotal struct {
	Title    string `gorm:"column:title"`
	Language string `gorm:"column:language"`
	Views    int64  `gorm:"column:views"`
}

func (pageviewTotal) TableName() string { return "pageview_totals" }

// ViewCountResult tells how many articles received a view count,
// and how many pageview totals matched no article.
type ViewCountResult struct {
	Updated   int64
	Unmatched int64
}

// UpdateViewCounts sets the view_count of articles from aggregated
// pageview totals, keyed by language and page title. The totals get
// loaded into a temporary relation, from which a single statement
// updates the articles. Articles without any pageviews keep their
// current view count.
func (s *Store) UpdateViewCounts(ctx context.Context, totals map[string]map[string]int64, batchSize int) (ViewCountResult, error) {
	var result ViewCountResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE TEMPORARY TABLE pageview_totals (title TEXT NOT NULL, language TEXT NOT NULL, views BIGINT NOT NULL)").Error; err != nil {
			return err
		}

		loader := NewLoader[pageviewTotal](tx, AppendOnly, batchSize)
		var total int64
		for lang, titles := range totals {
			for title, views := range titles {
				if err := loader.Add(ctx, pageviewTotal{Title: title, Language: lang, Views: views}); err != nil {
					return err
				}
				total++
			}
		}
		if _, err := loader.Close(ctx); err != nil {
			return err
		}

		res := tx.Exec("UPDATE articles SET view_count = pageview_totals.views " +
			"FROM pageview_totals " +
			"WHERE articles.title = pageview_totals.title " +
			"AND articles.language = pageview_totals.language")
		if res.Error != nil {
			return res.Error
		}
		result.Updated = res.RowsAffected
		result.Unmatched = max(total-res.RowsAffected, 0)

		return tx.Exec("DROP TABLE pageview_totals").Error
	})
	if err != nil {
		return ViewCountResult{}, fmt.Errorf("updating view counts: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("view counts: updated %d articles, %d totals matched no article", result.Updated, result.Unmatched)
	}
	return result, nil
}
