// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"cmp"
	"context"
	"slices"

	"github.com/brawer/missingpedia/internal/wikidump"
)

// MissingIn returns the best-ranked candidates that have no language
// link to the reference language, neither from the candidate to the
// reference language nor the other way round. Candidates get checked
// in rank order, one chunk at a time, until enough have been found.
func (r *Resolver) missingIn(ctx context.Context, candidates []Candidate, lang, ref string, limit int) ([]Candidate, error) {
	result := make([]Candidate, 0, min(limit, len(candidates)))
	for chunk := range slices.Chunk(candidates, chunkSize) {
		ids := make([]int64, 0, len(chunk))
		titles := make([]string, 0, len(chunk))
		for _, c := range chunk {
			ids = append(ids, c.ID)
			titles = append(titles, wikidump.DisplayTitle(c.Title))
		}

		var linkedIDs []int64
		err := r.db.WithContext(ctx).
			Model(&wikidump.LangLink{}).
			Where("from_lang = ? AND to_lang = ? AND from_id IN ?", lang, ref, ids).
			Distinct().
			Pluck("from_id", &linkedIDs).Error
		if err != nil {
			return nil, err
		}

		var linkedTitles []string
		err = r.db.WithContext(ctx).
			Model(&wikidump.LangLink{}).
			Where("from_lang = ? AND to_lang = ? AND to_title IN ?", ref, lang, titles).
			Distinct().
			Pluck("to_title", &linkedTitles).Error
		if err != nil {
			return nil, err
		}

		for _, c := range chunk {
			if slices.Contains(linkedIDs, c.ID) || slices.Contains(linkedTitles, wikidump.DisplayTitle(c.Title)) {
				continue
			}
			c.Counterparts = []Counterpart{}
			result = append(result, c)
			if len(result) >= limit {
				return result, nil
			}
		}
	}
	return result, nil
}

type counterpartRow struct {
	SourceID    int64  `gorm:"column:source_id"`
	SourceTitle string `gorm:"column:source_title"`
	Language    string `gorm:"column:language"`
	ID          int64  `gorm:"column:page_id"`
	Title       string `gorm:"column:title"`
	Length      int64  `gorm:"column:length"`
	ViewCount   *int64 `gorm:"column:view_count"`
}

// WithCounterparts attaches to each candidate its articles in other
// languages, found by following language links in either direction.
// Candidates without any counterpart are left out. The result holds
// at most limit candidate/counterpart pairs; the last candidate may
// therefore come with a truncated list of counterparts.
func (r *Resolver) withCounterparts(ctx context.Context, candidates []Candidate, lang string, limit int) ([]Candidate, error) {
	var result []Candidate
	rows := 0
	for chunk := range slices.Chunk(candidates, chunkSize) {
		counterparts, err := r.counterparts(ctx, chunk, lang)
		if err != nil {
			return nil, err
		}
		for _, c := range chunk {
			cps := counterparts[c.ID]
			if len(cps) == 0 {
				continue
			}
			if rows+len(cps) > limit {
				cps = cps[:limit-rows]
			}
			c.Counterparts = cps
			result = append(result, c)
			rows += len(cps)
			if rows >= limit {
				return result, nil
			}
		}
	}
	if result == nil {
		result = []Candidate{}
	}
	return result, nil
}

func (r *Resolver) counterparts(ctx context.Context, chunk []Candidate, lang string) (map[int64][]Counterpart, error) {
	ids := make([]int64, 0, len(chunk))
	byTitle := make(map[string]int64, len(chunk))
	titles := make([]string, 0, len(chunk))
	for _, c := range chunk {
		ids = append(ids, c.ID)
		t := wikidump.DisplayTitle(c.Title)
		byTitle[t] = c.ID
		titles = append(titles, t)
	}

	var outgoing []counterpartRow
	err := r.db.WithContext(ctx).Raw(
		"SELECT l.from_id AS source_id, a.language, a.page_id, a.title, a.length, a.view_count "+
			"FROM lang_links l "+
			"JOIN articles a ON a.language = l.to_lang AND a.title = REPLACE(l.to_title, ' ', '_') "+
			"WHERE l.from_lang = ? AND l.from_id IN ?", lang, ids).
		Scan(&outgoing).Error
	if err != nil {
		return nil, err
	}

	var incoming []counterpartRow
	err = r.db.WithContext(ctx).Raw(
		"SELECT l.to_title AS source_title, a.language, a.page_id, a.title, a.length, a.view_count "+
			"FROM lang_links l "+
			"JOIN articles a ON a.language = l.from_lang AND a.page_id = l.from_id "+
			"WHERE l.to_lang = ? AND l.to_title IN ?", lang, titles).
		Scan(&incoming).Error
	if err != nil {
		return nil, err
	}

	type key struct {
		lang string
		id   int64
	}
	seen := make(map[int64]map[key]bool)
	result := make(map[int64][]Counterpart)
	add := func(source int64, row counterpartRow) {
		if row.Language == lang {
			return
		}
		k := key{row.Language, row.ID}
		if seen[source] == nil {
			seen[source] = make(map[key]bool)
		}
		if seen[source][k] {
			return
		}
		seen[source][k] = true
		result[source] = append(result[source], Counterpart{
			Language: row.Language,
			ID:       row.ID,
			Title:    row.Title,
			Length:   row.Length,
			Views:    row.ViewCount,
		})
	}
	for _, row := range outgoing {
		add(row.SourceID, row)
	}
	for _, row := range incoming {
		if source, ok := byTitle[row.SourceTitle]; ok {
			add(source, row)
		}
	}

	for _, cps := range result {
		slices.SortFunc(cps, func(a, b Counterpart) int {
			if c := cmp.Compare(a.Language, b.Language); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}
	return result, nil
}
