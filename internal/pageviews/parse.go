// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pageviews

import (
	"bufio"
	"io"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ParseStats tells how many lines of a shard were read, and how many
// of them had to be skipped because they were malformed.
type ParseStats struct {
	Lines     int64
	Malformed int64
}

func (s *ParseStats) Add(other ParseStats) {
	s.Lines += other.Lines
	s.Malformed += other.Malformed
}

// ParseShard reads an hourly pageview shard, whose lines look like
// "de Zürich 17 0": project, page title, view count, and a byte count
// that we ignore. Only lines for the given languages are counted;
// the project code must be exactly the language code, so "de.m"
// or "de.b" (mobile site, Wikibooks) do not count.
//
// Malformed lines get skipped. The returned error only reports
// trouble with reading the input.
func ParseShard(r io.Reader, languages []string) (Counts, ParseStats, error) {
	wanted := make(map[string]bool, len(languages))
	for _, lang := range languages {
		wanted[lang] = true
	}

	counts := make(Counts, len(languages))
	var stats ParseStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stats.Lines++
		cols := strings.Fields(scanner.Text())
		if len(cols) != 4 {
			stats.Malformed++
			continue
		}
		if !wanted[cols[0]] {
			continue
		}

		views, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil || views < 0 {
			stats.Malformed++
			continue
		}

		title, ok := normalizeTitle(cols[1])
		if !ok {
			stats.Malformed++
			continue
		}
		counts.Add(cols[0], title, views)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	return counts, stats, nil
}

// Some, but not all, titles are percent-escaped. We unescape them
// if the syntax is valid, but fall back to the raw title otherwise.
// Titles in the page table are in Unicode normalization form C.
func normalizeTitle(title string) (string, bool) {
	if strings.IndexByte(title, '%') >= 0 {
		if t, err := url.PathUnescape(title); err == nil {
			title = t
		}
	}
	if !utf8.ValidString(title) {
		return "", false
	}
	return norm.NFC.String(title), true
}
