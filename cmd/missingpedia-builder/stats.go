// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brawer/missingpedia/internal/store"
)

// Stats describes a pipeline run. After a successful run, the builder
// writes them to a file like "stats-20240501.json". The presence of
// this file marks the run as complete, which matters for cache cleanup.
type Stats struct {
	Date      string                            `json:"date"`
	Languages []string                          `json:"languages"`
	Ingested  map[string]map[string]IngestStats `json:"ingested"`
	Loaded    map[string]store.LoadResult       `json:"loaded"`
	Pageviews *PageviewStats                    `json:"pageviews,omitempty"`
}

type PageviewStats struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Shards    int    `json:"shards"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Lines     int64  `json:"lines"`
	Malformed int64  `json:"malformed"`
	Updated   int64  `json:"updated-articles"`
	Unmatched int64  `json:"unmatched-titles"`
}

// Write stores the stats in outDir, and returns the path to the file.
func (s *Stats) Write(date time.Time, outDir string) (string, error) {
	statsPath := filepath.Join(
		outDir,
		fmt.Sprintf("stats-%04d%02d%02d.json", date.Year(), date.Month(), date.Day()))
	tmpStatsPath := statsPath + ".tmp"

	j, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return "", err
	}
	statsFile, err := os.Create(tmpStatsPath)
	if err != nil {
		return "", err
	}
	defer statsFile.Close()
	if _, err := statsFile.Write(j); err != nil {
		return "", err
	}
	if err := statsFile.Sync(); err != nil {
		return "", err
	}
	if err := statsFile.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpStatsPath, statsPath); err != nil {
		return "", err
	}

	return statsPath, nil
}
