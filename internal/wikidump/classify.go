// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Reasons for rejecting a row. Classifiers wrap them, so callers
// can use errors.Is to tell why a row did not make it into the store.
var (
	ErrShape           = errors.New("unexpected row shape")
	ErrNamespace       = errors.New("namespace not wanted")
	ErrRedirect        = errors.New("page is a redirect")
	ErrExcludedTitle   = errors.New("title is excluded")
	ErrLinkType        = errors.New("link type not wanted")
	ErrInvalidLanguage = errors.New("invalid language code")
)

// Default column layouts, used when a dump does not tell
// its columns in a CREATE TABLE statement.
var (
	PageColumns = []string{
		"page_id", "page_namespace", "page_title", "page_is_redirect",
		"page_is_new", "page_random", "page_touched", "page_links_updated",
		"page_latest", "page_len", "page_content_model", "page_lang",
	}
	CategoryLinksColumns = []string{
		"cl_from", "cl_to", "cl_sortkey", "cl_timestamp",
		"cl_sortkey_prefix", "cl_collation", "cl_type",
	}
	LangLinksColumns = []string{"ll_from", "ll_lang", "ll_title"}
)

// Classifier turns a tokenized dump row into a domain record,
// or rejects it with an error that wraps one of the Err* reasons.
type Classifier[T any] interface {
	Classify(row []string) (T, error)
}

// Layout knows at which position a row carries which column.
type layout struct {
	numColumns int
	index      map[string]int
}

func newLayout(columns []string, defaults []string, required ...string) (layout, error) {
	if len(columns) == 0 {
		columns = defaults
	}
	l := layout{numColumns: len(columns), index: make(map[string]int, len(required))}
	for _, col := range required {
		i := slices.Index(columns, col)
		if i < 0 {
			return layout{}, fmt.Errorf("missing column %s in %v", col, columns)
		}
		l.index[col] = i
	}
	return l, nil
}

func (l layout) check(row []string) error {
	if len(row) != l.numColumns {
		return fmt.Errorf("%w: %d fields, want %d", ErrShape, len(row), l.numColumns)
	}
	return nil
}

func (l layout) integer(row []string, col string) (int64, error) {
	s := row[l.index[col]]
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrShape, col, s)
	}
	return n, nil
}

func (l layout) str(row []string, col string) string {
	return row[l.index[col]]
}

// ArticleClassifier accepts rows of the `page` table that are articles:
// namespace 0, not a redirect, and no excluded marker in the title.
type ArticleClassifier struct {
	language   string
	exclusions []string
	layout     layout
}

// NewArticleClassifier returns a classifier for the page table of one
// language edition. Titles containing any of the exclusions, such
// as markers for lists or disambiguation pages, get rejected.
func NewArticleClassifier(language string, columns []string, exclusions []string) (*ArticleClassifier, error) {
	l, err := newLayout(columns, PageColumns, "page_id", "page_namespace", "page_title", "page_is_redirect", "page_len")
	if err != nil {
		return nil, err
	}
	return &ArticleClassifier{language: language, exclusions: exclusions, layout: l}, nil
}

func (c *ArticleClassifier) Classify(row []string) (Article, error) {
	if err := c.layout.check(row); err != nil {
		return Article{}, err
	}
	if ns := c.layout.str(row, "page_namespace"); ns != "0" {
		return Article{}, fmt.Errorf("%w: %s", ErrNamespace, ns)
	}
	if c.layout.str(row, "page_is_redirect") != "0" {
		return Article{}, ErrRedirect
	}

	title := Unescape(c.layout.str(row, "page_title"))
	for _, ex := range c.exclusions {
		if strings.Contains(title, ex) {
			return Article{}, fmt.Errorf("%w: %q contains %q", ErrExcludedTitle, title, ex)
		}
	}

	id, err := c.layout.integer(row, "page_id")
	if err != nil {
		return Article{}, err
	}
	length, err := c.layout.integer(row, "page_len")
	if err != nil {
		return Article{}, err
	}

	return Article{ID: id, Title: title, Length: length, Language: c.language}, nil
}

// CategoryClassifier accepts rows of the `page` table in namespace 14.
type CategoryClassifier struct {
	language string
	layout   layout
}

func NewCategoryClassifier(language string, columns []string) (*CategoryClassifier, error) {
	l, err := newLayout(columns, PageColumns, "page_id", "page_namespace", "page_title")
	if err != nil {
		return nil, err
	}
	return &CategoryClassifier{language: language, layout: l}, nil
}

func (c *CategoryClassifier) Classify(row []string) (Category, error) {
	if err := c.layout.check(row); err != nil {
		return Category{}, err
	}
	if ns := c.layout.str(row, "page_namespace"); ns != "14" {
		return Category{}, fmt.Errorf("%w: %s", ErrNamespace, ns)
	}
	id, err := c.layout.integer(row, "page_id")
	if err != nil {
		return Category{}, err
	}
	title := Unescape(c.layout.str(row, "page_title"))
	return Category{ID: id, Title: title, Language: c.language}, nil
}

// CategoryLinkClassifier accepts rows of the `categorylinks` table
// that link a subcategory to its parent category.
type CategoryLinkClassifier struct {
	language string
	layout   layout
}

func NewCategoryLinkClassifier(language string, columns []string) (*CategoryLinkClassifier, error) {
	l, err := newLayout(columns, CategoryLinksColumns, "cl_from", "cl_to", "cl_type")
	if err != nil {
		return nil, err
	}
	return &CategoryLinkClassifier{language: language, layout: l}, nil
}

func (c *CategoryLinkClassifier) Classify(row []string) (CategoryLink, error) {
	if err := c.layout.check(row); err != nil {
		return CategoryLink{}, err
	}
	if t := c.layout.str(row, "cl_type"); t != "subcat" {
		return CategoryLink{}, fmt.Errorf("%w: %s", ErrLinkType, t)
	}
	from, err := c.layout.integer(row, "cl_from")
	if err != nil {
		return CategoryLink{}, err
	}
	parent := Unescape(c.layout.str(row, "cl_to"))
	return CategoryLink{Subcategory: from, Parent: parent, Language: c.language}, nil
}

// PageCategoryLinkClassifier accepts rows of the `categorylinks` table
// that put an article into a category.
type PageCategoryLinkClassifier struct {
	language string
	layout   layout
}

func NewPageCategoryLinkClassifier(language string, columns []string) (*PageCategoryLinkClassifier, error) {
	l, err := newLayout(columns, CategoryLinksColumns, "cl_from", "cl_to", "cl_type")
	if err != nil {
		return nil, err
	}
	return &PageCategoryLinkClassifier{language: language, layout: l}, nil
}

func (c *PageCategoryLinkClassifier) Classify(row []string) (PageCategoryLink, error) {
	if err := c.layout.check(row); err != nil {
		return PageCategoryLink{}, err
	}
	if t := c.layout.str(row, "cl_type"); t != "page" {
		return PageCategoryLink{}, fmt.Errorf("%w: %s", ErrLinkType, t)
	}
	page, err := c.layout.integer(row, "cl_from")
	if err != nil {
		return PageCategoryLink{}, err
	}
	category := Unescape(c.layout.str(row, "cl_to"))
	return PageCategoryLink{Page: page, Category: category, Language: c.language}, nil
}

var langLinkRegexp = regexp.MustCompile(`^(\d+),'([a-z][a-z0-9\-]*)','((?:[^'\\]|\\.)*)'$`)

// LangLinkClassifier accepts rows of the `langlinks` table.
// Because these rows have a simple and fixed shape, the classifier
// matches the untokenized row text against a pattern.
type LangLinkClassifier struct {
	language string
}

func NewLangLinkClassifier(language string) *LangLinkClassifier {
	return &LangLinkClassifier{language: language}
}

// Classify parses one row as returned by SplitRows, such as `12,'de','Zürich'`.
func (c *LangLinkClassifier) Classify(row string) (LangLink, error) {
	m := langLinkRegexp.FindStringSubmatch(row)
	if m == nil {
		return LangLink{}, fmt.Errorf("%w: %q", ErrShape, row)
	}
	from, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return LangLink{}, fmt.Errorf("%w: %q", ErrShape, row)
	}
	return LangLink{
		FromLang: c.language,
		FromID:   from,
		ToLang:   m[2],
		ToTitle:  Unescape(m[3]),
	}, nil
}

// DisplayTitle turns a page title as stored in the page table,
// such as "Lake_Zurich", into the form used by language links.
func DisplayTitle(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

// PageTitle is the reverse of DisplayTitle.
func PageTitle(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}
