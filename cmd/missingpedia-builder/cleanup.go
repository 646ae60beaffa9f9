// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

func findLatestStats(path string) (time.Time, error) {
	var t time.Time
	files, err := os.ReadDir(path)
	if err != nil {
		return t, err
	}

	for _, f := range files {
		fn := f.Name()
		if strings.HasPrefix(fn, "stats-") && strings.HasSuffix(fn, ".json") {
			d := fn[6 : len(fn)-5]
			if len(d) == 8 {
				if t2, err := time.Parse("20060102", d); err == nil && t2.After(t) {
					t = t2
				}
			}
		}
	}

	return t, nil
}

var (
	cacheFileRegexp = regexp.MustCompile(`^(pageviews|stats)-(\d{8})\.(zst|json)$`)
	dumpFileRegexp  = regexp.MustCompile(`^[a-z0-9_\-]+wiki-(\d{8})-[a-z]+\.sql\.gz$`)
)

// CleanupCache deletes snapshots, stats and dumps that are older than
// one month before the latest successful run. Hourly pageview files
// get deleted right after parsing, so we do not need to care about them.
func CleanupCache(path string) error {
	latest, err := findLatestStats(path)
	if err != nil {
		return err
	}

	// If we can't find any stats-*.json files, the pipeline has never
	// run successfully. This is not an error, but we'd rather not
	// clean up anything (delete old files) in this case.
	if latest.IsZero() {
		return nil
	}

	ageLimit := latest.AddDate(0, -1, 0)
	if err := cleanupDir(path, cacheFileRegexp, 2, ageLimit, latest); err != nil {
		return err
	}
	dumps := filepath.Join(path, "dumps")
	if _, err := os.Stat(dumps); os.IsNotExist(err) {
		return nil
	}
	return cleanupDir(dumps, dumpFileRegexp, 1, ageLimit, latest)
}

func cleanupDir(path string, re *regexp.Regexp, dateGroup int, ageLimit, latest time.Time) error {
	files, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	for _, f := range files {
		match := re.FindStringSubmatch(f.Name())
		if match == nil {
			continue
		}
		d, err := time.Parse("20060102", match[dateGroup])
		if err != nil {
			continue
		}
		if d.Before(ageLimit) {
			fpath := filepath.Join(path, f.Name())
			if logger != nil {
				logger.Printf("Deleting %s because it is at least 1 month older than the latest successful pipeline run, which was on %s", fpath, latest.Format(time.DateOnly))
			}
			if err := os.Remove(fpath); err != nil {
				return err
			}
		}
	}

	return nil
}
