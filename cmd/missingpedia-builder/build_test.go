// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brawer/missingpedia/internal/config"
	"github.com/brawer/missingpedia/internal/fetch"
	"github.com/brawer/missingpedia/internal/hierarchy"
	"github.com/brawer/missingpedia/internal/pageviews"
	"github.com/brawer/missingpedia/internal/store"
	"github.com/brawer/missingpedia/internal/wikidump"
)

const enPageDump = "-- MySQL dump 10.19\n" +
	"CREATE TABLE `page` (\n" +
	"  `page_id` int(8) unsigned NOT NULL AUTO_INCREMENT,\n" +
	"  `page_namespace` int(11) NOT NULL DEFAULT 0,\n" +
	"  `page_title` varbinary(255) NOT NULL DEFAULT '',\n" +
	"  `page_is_redirect` tinyint(1) unsigned NOT NULL DEFAULT 0,\n" +
	"  `page_is_new` tinyint(1) unsigned NOT NULL DEFAULT 0,\n" +
	"  `page_random` double unsigned NOT NULL DEFAULT 0,\n" +
	"  `page_touched` binary(14) NOT NULL,\n" +
	"  `page_links_updated` varbinary(14) DEFAULT NULL,\n" +
	"  `page_latest` int(8) unsigned NOT NULL DEFAULT 0,\n" +
	"  `page_len` int(8) unsigned NOT NULL DEFAULT 0,\n" +
	"  `page_content_model` varbinary(32) DEFAULT NULL,\n" +
	"  `page_lang` varbinary(35) DEFAULT NULL,\n" +
	"  PRIMARY KEY (`page_id`),\n" +
	"  KEY `page_len` (`page_len`)\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=binary;\n" +
	"INSERT INTO `page` VALUES " +
	"(10,14,'Physics',0,0,0.1,'20240501000000','20240501000000',21,100,'wikitext',NULL)," +
	"(11,14,'Optics',0,0,0.2,'20240501000000','20240501000000',22,100,'wikitext',NULL)," +
	"(12,14,'Chemistry',0,0,0.3,'20240501000000','20240501000000',23,100,'wikitext',NULL);\n" +
	"INSERT INTO `page` VALUES " +
	"(1,0,'Lens',0,0,0.4,'20240501000000','20240501000000',24,400,'wikitext',NULL)," +
	"(2,0,'Acid',0,0,0.5,'20240501000000','20240501000000',25,200,'wikitext',NULL)," +
	"(3,0,'Gravity',0,0,0.6,'20240501000000','20240501000000',26,100,'wikitext',NULL)," +
	"(4,0,'Light_(disambiguation)',0,0,0.7,'20240501000000','20240501000000',27,80,'wikitext',NULL)," +
	"(5,0,'Old_lens',1,0,0.8,'20240501000000','20240501000000',28,20,'wikitext',NULL)," +
	"(6,1,'Lens',0,0,0.9,'20240501000000','20240501000000',29,50,'wikitext',NULL);\n"

const enCategoryLinksDump = "-- MySQL dump 10.19\n" +
	"INSERT INTO `categorylinks` VALUES " +
	"(11,'Physics','OPTICS','2024-05-01 00:00:00','','uppercase','subcat')," +
	"(1,'Optics','LENS','2024-05-01 00:00:00','','uppercase','page')," +
	"(3,'Physics','GRAVITY','2024-05-01 00:00:00','','uppercase','page')," +
	"(2,'Chemistry','ACID','2024-05-01 00:00:00','','uppercase','page')," +
	"(99,'Physics','PRISM.JPG','2024-05-01 00:00:00','','uppercase','file');\n"

const enLangLinksDump = "INSERT INTO `langlinks` VALUES (1,'de','Linse');\n"

const dePageDump = "INSERT INTO `page` VALUES " +
	"(101,0,'Linse',0,0,0.1,'20240501000000','20240501000000',31,300,'wikitext',NULL)," +
	"(103,0,'Gravitation',0,0,0.2,'20240501000000','20240501000000',32,250,'wikitext',NULL);\n"

const deLangLinksDump = "INSERT INTO `langlinks` VALUES (101,'en','Lens');\n"

const pageviewsShard = "en Lens 100 0\n" +
	"en Gravity 50 0\n" +
	"en Acid 10 0\n" +
	"en Nonexistent 7 0\n" +
	"de Linse 30 0\n" +
	"en.m Lens 5 0\n" +
	"commons.wikimedia Lens 3 0\n" +
	"malformed line\n"

// FakePageviews serves hourly pageview files. All hours except
// midnight are empty.
type FakePageviews struct {
	mu       sync.Mutex
	requests []string
}

func (f *FakePageviews) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req.URL.String())
	f.mu.Unlock()

	if !strings.HasPrefix(req.URL.String(), "https://dumps.wikimedia.org/other/pageviews/") {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	content := ""
	if strings.HasSuffix(req.URL.Path, "-000000.gz") {
		content = pageviewsShard
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(gzipBytes(content))),
	}, nil
}

func newTestBuilder(t *testing.T) (*Builder, *FakeS3) {
	t.Helper()
	ctx := context.Background()
	logger = log.New(&bytes.Buffer{}, "", log.Lshortfile)

	workdir := t.TempDir()
	dumps := filepath.Join(workdir, "dumps")
	if err := os.MkdirAll(dumps, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"enwiki-20240501-page.sql.gz":          enPageDump,
		"enwiki-20240501-categorylinks.sql.gz": enCategoryLinksDump,
		"enwiki-20240501-langlinks.sql.gz":     enLangLinksDump,
		"dewiki-20240501-page.sql.gz":          dePageDump,
		"dewiki-20240501-categorylinks.sql.gz": "-- MySQL dump 10.19\n",
		"dewiki-20240501-langlinks.sql.gz":     deLangLinksDump,
	} {
		writeGzipFile(filepath.Join(dumps, name), content)
	}

	cfg := config.Default()
	cfg.Database.DSN = "sqlite:" + filepath.Join(t.TempDir(), "missingpedia.db")
	cfg.Pageviews.Retry.BaseDelayMs = 1
	cfg.Exclusions["en"] = []string{"(disambiguation)"}

	st, err := store.Open(ctx, cfg.Database.DSN, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Transport: &FakePageviews{}}
	s3 := NewFakeS3()
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return &Builder{
		Config:         cfg,
		Store:          st,
		Fetcher:        fetch.NewFetcher(client, cfg.Pageviews.Retry.Policy(), logger),
		Storage:        s3,
		Metrics:        NewMetrics(),
		WorkDir:        workdir,
		Date:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Languages:      []string{"en", "de"},
		PageviewsStart: day,
		PageviewsEnd:   day,
	}, s3
}

// TestBuild is a large integration test that runs the entire pipeline.
func TestBuild(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	ctx := context.Background()
	b, s3 := newTestBuilder(t)
	if err := b.Build(ctx, allSteps); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		model any
		lang  string
		want  int64
	}{
		{&wikidump.Article{}, "en", 3},
		{&wikidump.Article{}, "de", 2},
		{&wikidump.Category{}, "en", 3},
		{&wikidump.CategoryLink{}, "en", 1},
		{&wikidump.PageCategoryLink{}, "en", 3},
		{&wikidump.LangLink{}, "en", 1},
		{&wikidump.LangLink{}, "de", 1},
	} {
		got, err := b.Store.Count(ctx, tc.model, tc.lang)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("got %d %T records for %s, want %d", got, tc.model, tc.lang, tc.want)
		}
	}

	ingested := b.stats.Ingested["articles"]["en"]
	if ingested.Rows != 9 || ingested.Accepted != 3 {
		t.Errorf("got %+v for articles in en", ingested)
	}
	wantRejected := map[string]int64{"namespace": 4, "excluded": 1, "redirect": 1}
	for reason, n := range wantRejected {
		if ingested.Rejected[reason] != n {
			t.Errorf("got %d rows rejected for %s, want %d", ingested.Rejected[reason], reason, n)
		}
	}

	pv := b.stats.Pageviews
	if pv == nil || pv.Shards != 24 || pv.Succeeded != 24 || pv.Updated != 4 || pv.Unmatched != 1 {
		t.Errorf("got pageview stats %+v", pv)
	}

	snapshot := readZstdFile(filepath.Join(b.WorkDir, "pageviews-20240501.zst"))
	wantSnapshot := "de Linse 30\nen Acid 10\nen Gravity 50\nen Lens 100\nen Nonexistent 7\n"
	if snapshot != wantSnapshot {
		t.Errorf("got snapshot %q, want %q", snapshot, wantSnapshot)
	}

	gotKeys := s3.Keys()
	wantKeys := []string{"public/pageviews-20240501.zst", "public/stats-20240501.json"}
	if !slices.Equal(gotKeys, wantKeys) {
		t.Errorf("got storage keys %v, want %v", gotKeys, wantKeys)
	}

	prom, err := os.ReadFile(filepath.Join(b.WorkDir, "missingpedia-builder.prom"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prom), `missingpedia_builder_pageview_shards_total{outcome="succeeded"} 24`) {
		t.Errorf("metrics lack shard count, got %s", prom)
	}

	resolver := hierarchy.NewResolver(b.Store.DB(), logger)
	gap, err := resolver.Resolve(ctx, hierarchy.Query{
		Language:          "en",
		Seeds:             []string{"Physics"},
		MaxDepth:          2,
		Mode:              hierarchy.Gap,
		ReferenceLanguage: "de",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gap.Total != 2 || len(gap.Candidates) != 1 || gap.Candidates[0].Title != "Gravity" {
		t.Errorf("got gap result %+v", gap)
	}

	expand, err := resolver.Resolve(ctx, hierarchy.Query{
		Language: "en",
		Seeds:    []string{"Physics"},
		MaxDepth: 2,
		Mode:     hierarchy.Expand,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(expand.Candidates) != 1 {
		t.Fatalf("got expand result %+v", expand)
	}
	lens := expand.Candidates[0]
	if lens.Title != "Lens" || lens.Views != 100 || len(lens.Counterparts) != 1 {
		t.Fatalf("got %+v", lens)
	}
	if c := lens.Counterparts[0]; c.Language != "de" || c.ID != 101 || c.Title != "Linse" {
		t.Errorf("got counterpart %+v", c)
	}
}

func TestBuildRerun(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	ctx := context.Background()
	b, _ := newTestBuilder(t)
	steps := []string{"articles", "categories"}
	if err := b.Build(ctx, steps); err != nil {
		t.Fatal(err)
	}
	if got := b.stats.Loaded["articles"]; got != (store.LoadResult{Written: 5}) {
		t.Errorf("first run: got %+v", got)
	}

	if err := b.Build(ctx, steps); err != nil {
		t.Fatal(err)
	}
	if got := b.stats.Loaded["articles"]; got != (store.LoadResult{Skipped: 5}) {
		t.Errorf("second run: got %+v", got)
	}
	if got := b.stats.Loaded["categories"]; got != (store.LoadResult{Skipped: 3}) {
		t.Errorf("second run: got %+v", got)
	}
	n, err := b.Store.Count(ctx, &wikidump.Article{}, "en")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("got %d articles after rerun, want 3", n)
	}
}

func TestBuildBadLanguage(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.Languages = []string{"EN"}
	if err := b.Build(context.Background(), allSteps); err == nil {
		t.Error("expected error for bad language, got nil")
	}
}

func TestBuildReversedPageviewWindow(t *testing.T) {
	ctx := context.Background()
	b, s3 := newTestBuilder(t)
	b.PageviewsStart = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	b.PageviewsEnd = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if err := b.Build(ctx, allSteps); !errors.Is(err, pageviews.ErrDateRange) {
		t.Fatalf("got %v, want ErrDateRange", err)
	}

	// Nothing may have been written before the arguments got rejected.
	for _, lang := range []string{"en", "de"} {
		n, err := b.Store.Count(ctx, &wikidump.Article{}, lang)
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s: got %d articles, want 0", lang, n)
		}
	}
	for _, name := range []string{"stats-20240501.json", "pageviews-20240501.zst", "missingpedia-builder.prom"} {
		if _, err := os.Stat(filepath.Join(b.WorkDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, got err=%v", name, err)
		}
	}
	if keys := s3.Keys(); len(keys) != 0 {
		t.Errorf("got storage keys %v, want none", keys)
	}
}

func TestValidate(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 4, d, 0, 0, 0, 0, time.UTC) }
	for _, tc := range []struct {
		name       string
		languages  []string
		start, end time.Time
		want       error
	}{
		{"ok", []string{"en", "de"}, day(1), day(30), nil},
		{"default window", []string{"en"}, time.Time{}, time.Time{}, nil},
		{"single day", []string{"en"}, day(5), day(5), nil},
		{"reversed", []string{"en"}, day(10), day(1), pageviews.ErrDateRange},
		{"start only", []string{"en"}, day(1), time.Time{}, pageviews.ErrDateRange},
		{"end only", []string{"en"}, time.Time{}, day(1), pageviews.ErrDateRange},
		{"no languages", nil, day(1), day(2), ErrMissingLanguages},
		{"bad language", []string{"en", "EN"}, day(1), day(2), wikidump.ErrInvalidLanguage},
	} {
		b := &Builder{
			Date:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Languages:      tc.languages,
			PageviewsStart: tc.start,
			PageviewsEnd:   tc.end,
		}
		if err := b.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}

	if err := (&Builder{Languages: []string{"en"}}).Validate(); !errors.Is(err, ErrMissingDate) {
		t.Errorf("got %v, want ErrMissingDate", err)
	}
}

func TestParseSteps(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
	}{
		{"", "langlinks,pagecategorylinks,articles,categories,categorylinks,pageviews"},
		{"all", "langlinks,pagecategorylinks,articles,categories,categorylinks,pageviews"},
		{"pageviews,articles", "articles,pageviews"},
		{"categories, articles", "articles,categories"},
	} {
		got, err := ParseSteps(tc.input)
		if err != nil {
			t.Errorf("ParseSteps(%q) failed: %v", tc.input, err)
			continue
		}
		if strings.Join(got, ",") != tc.want {
			t.Errorf("ParseSteps(%q) = %v, want %s", tc.input, got, tc.want)
		}
	}

	if _, err := ParseSteps("articles,redirects"); err == nil {
		t.Error("expected error for unknown step, got nil")
	}
}

func TestPageviewWindow(t *testing.T) {
	for _, tc := range []struct {
		date, start, end string
	}{
		{"2024-05-01", "2024-04-01", "2024-05-01"},
		{"2024-05-20", "2024-04-01", "2024-05-01"},
		{"2024-03-15", "2024-02-01", "2024-03-02"},
		{"2024-01-01", "2023-12-01", "2023-12-31"},
	} {
		date, _ := time.Parse(time.DateOnly, tc.date)
		start, end := pageviewWindow(date)
		if got := start.Format(time.DateOnly); got != tc.start {
			t.Errorf("pageviewWindow(%s): got start %s, want %s", tc.date, got, tc.start)
		}
		if got := end.Format(time.DateOnly); got != tc.end {
			t.Errorf("pageviewWindow(%s): got end %s, want %s", tc.date, got, tc.end)
		}
	}
}

func TestDumpURL(t *testing.T) {
	got := dumpURL("https://dumps.wikimedia.org/", "zh-yue", "20240501", "langlinks")
	want := "https://dumps.wikimedia.org/zh-yuewiki/20240501/zh-yuewiki-20240501-langlinks.sql.gz"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
