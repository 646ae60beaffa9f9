// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

func (b *Builder) dumpsDir() string {
	return filepath.Join(b.WorkDir, "dumps")
}

// DumpName returns the file name of a table dump, such as
// "enwiki-20240501-langlinks.sql.gz".
func dumpName(lang, date, table string) string {
	return fmt.Sprintf("%swiki-%s-%s.sql.gz", lang, date, table)
}

// DumpURL returns where a table dump can be downloaded.
func dumpURL(baseURL, lang, date, table string) string {
	return fmt.Sprintf("%s/%swiki/%s/%s",
		strings.TrimSuffix(baseURL, "/"), lang, date, dumpName(lang, date, table))
}

// FetchDump returns the local path to a table dump, downloading
// the dump unless it is already on disk from an earlier run.
func (b *Builder) fetchDump(ctx context.Context, lang, table string) (string, error) {
	date := b.Date.Format("20060102")
	path := filepath.Join(b.dumpsDir(), dumpName(lang, date, table))
	url := dumpURL(b.Config.Dumps.BaseURL, lang, date, table)
	if _, err := b.Fetcher.FetchOnce(ctx, url, path); err != nil {
		return "", err
	}
	return path, nil
}
