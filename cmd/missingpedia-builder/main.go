// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brawer/missingpedia/internal/config"
	"github.com/brawer/missingpedia/internal/fetch"
	"github.com/brawer/missingpedia/internal/store"
)

var logger *log.Logger

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "missingpedia.yaml", "path to configuration file")
	workdir := flag.String("workdir", "cache/missingpedia-builder", "path to working directory for dumps and outputs")
	dateFlag := flag.String("date", "", "date of the Wikipedia dumps, such as 20240501")
	languages := flag.String("languages", "", "comma-separated Wikipedia languages, such as en,de,fr")
	pageviewsStart := flag.String("pageviews-start", "", "first day of pageviews, such as 2024-04-01; default: derived from -date")
	pageviewsEnd := flag.String("pageviews-end", "", "last day of pageviews, such as 2024-05-01")
	stepsFlag := flag.String("steps", "all", "comma-separated pipeline steps to run")
	storagekey := flag.String("storage-key", "", "path to key with storage access credentials")
	flag.Parse()

	var err error
	b := &Builder{WorkDir: *workdir, Metrics: NewMetrics()}
	if b.Date, err = time.Parse("20060102", *dateFlag); err != nil {
		log.Fatalf("bad -date: %v", err)
	}
	for _, lang := range strings.Split(*languages, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			b.Languages = append(b.Languages, lang)
		}
	}
	if *pageviewsStart != "" || *pageviewsEnd != "" {
		if b.PageviewsStart, err = time.Parse(time.DateOnly, *pageviewsStart); err != nil {
			log.Fatalf("bad -pageviews-start: %v", err)
		}
		if b.PageviewsEnd, err = time.Parse(time.DateOnly, *pageviewsEnd); err != nil {
			log.Fatalf("bad -pageviews-end: %v", err)
		}
	}
	steps, err := ParseSteps(*stepsFlag)
	if err != nil {
		log.Fatal(err)
	}
	if err := b.Validate(); err != nil {
		log.Fatal(err)
	}

	logfile, err := createLogFile()
	if err != nil {
		log.Fatal(err)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	if b.Config, err = config.Load(*configPath); err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(b.WorkDir, 0755); err != nil {
		log.Fatal(err)
	}

	if *storagekey != "" {
		storage, err := NewStorageClient(ctx, *storagekey)
		if err != nil {
			log.Fatal(err)
		}
		b.Storage = storage
	}

	b.Store, err = store.Open(ctx, b.Config.Database.DSN, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Store.Close()
	if err := b.Store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	client := &http.Client{}
	b.Fetcher = fetch.NewFetcher(client, b.Config.Pageviews.Retry.Policy(), logger)

	start := time.Now()
	if err := b.Build(ctx, steps); err != nil {
		logger.Printf("pipeline failed: %v", err)
		log.Fatal(err)
	}
	msg := fmt.Sprintf("pipeline for %s completed in %.1fs", strings.Join(b.Languages, ","), time.Since(start).Seconds())
	fmt.Println(msg)
	logger.Println(msg)
}

// Create a file for keeping logs. If the file already exists, its
// present content is preserved, and new log entries will get appended
// after the existing ones.
func createLogFile() (*os.File, error) {
	logpath := filepath.Join("logs", "missingpedia-builder.log")
	if err := os.MkdirAll("logs", os.ModePerm); err != nil {
		return nil, err
	}

	logfile, err := os.OpenFile(logpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return logfile, nil
}
