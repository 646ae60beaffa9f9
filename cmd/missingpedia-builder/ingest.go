// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/brawer/missingpedia/internal/wikidump"
)

// IngestStats counts what happened to the rows of one dump.
type IngestStats struct {
	Rows     int64            `json:"rows"`
	Accepted int64            `json:"accepted"`
	Rejected map[string]int64 `json:"rejected,omitempty"`
}

func (s *IngestStats) reject(err error) {
	if s.Rejected == nil {
		s.Rejected = make(map[string]int64, 4)
	}
	s.Rejected[rejectReason(err)]++
}

func (s *IngestStats) NumRejected() int64 {
	var n int64
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

var rejectReasons = []struct {
	err    error
	reason string
}{
	{wikidump.ErrShape, "shape"},
	{wikidump.ErrNamespace, "namespace"},
	{wikidump.ErrRedirect, "redirect"},
	{wikidump.ErrExcludedTitle, "excluded"},
	{wikidump.ErrLinkType, "link_type"},
}

func rejectReason(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}

// Ingest streams the rows of table from a dump file, classifies them,
// and hands every accepted record to sink. Rejected rows get counted
// by reason; they do not stop ingestion. Split turns the value list
// of one INSERT statement into rows; for most tables, this is
// wikidump.Tokenize. Because the column names of a table are only
// known after reading its CREATE TABLE statement, newClassifier gets
// called once the first INSERT statement has been found. Columns is
// nil if the dump does not tell them.
func ingest[R, T any](ctx context.Context, path, table string, split func(string) []R, newClassifier func(columns []string) (func(R) (T, error), error), sink func(T) error) (IngestStats, error) {
	var stats IngestStats
	start := time.Now()

	f, err := wikidump.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	reader := wikidump.NewReader(f, table, logger)
	var classify func(R) (T, error)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		values, err := reader.ReadValues()
		if err == io.EOF {
			break
		} else if err != nil {
			return stats, fmt.Errorf("%s: %w", path, err)
		}

		// The CREATE TABLE statement precedes the first INSERT,
		// so the columns are known by now.
		if classify == nil {
			classify, err = newClassifier(reader.Columns())
			if err != nil {
				return stats, fmt.Errorf("%s: %w", path, err)
			}
		}

		for _, row := range split(values) {
			stats.Rows++
			rec, err := classify(row)
			if err != nil {
				stats.reject(err)
				if errors.Is(err, wikidump.ErrShape) && logger != nil {
					logger.Printf("%s: skipping malformed row: %v", filepath.Base(path), err)
				}
				continue
			}
			if err := sink(rec); err != nil {
				return stats, err
			}
			stats.Accepted++
		}
	}

	if logger != nil {
		logger.Printf("ingested %s in %.1fs: %d rows, %d accepted, %d rejected",
			filepath.Base(path), time.Since(start).Seconds(),
			stats.Rows, stats.Accepted, stats.NumRejected())
	}
	return stats, nil
}
