// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"errors"
	"fmt"
)

// Mode selects what a query is looking for.
type Mode int

const (
	// Gap finds popular articles that have no counterpart
	// in the reference language.
	Gap Mode = iota

	// Expand finds popular articles together with their
	// counterparts in other languages.
	Expand
)

const (
	DefaultMaxDepth          = 2
	DefaultReferenceLanguage = "en"
	DefaultGapLimit          = 20
	DefaultRowLimit          = 500
)

var (
	ErrMode          = errors.New("unknown mode")
	ErrDepth         = errors.New("invalid depth")
	ErrNoSeeds       = errors.New("no seed categories")
	ErrSameLanguages = errors.New("language equals reference language")
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "gap", "create":
		return Gap, nil
	case "expand":
		return Expand, nil
	default:
		return Gap, fmt.Errorf("%w: %q", ErrMode, s)
	}
}

func (m Mode) String() string {
	switch m {
	case Gap:
		return "gap"
	case Expand:
		return "expand"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Query asks for the articles in and below some seed categories.
type Query struct {
	// Language of the seed categories and the candidate articles.
	Language string

	// Seeds are category titles, such as "Physics" or "Lakes of Switzerland".
	Seeds []string

	// MaxDepth is how many levels of subcategories get expanded
	// below the seeds. Zero means the seeds only.
	MaxDepth int

	Mode Mode

	// TargetLanguage, if set, replaces Language in Expand mode.
	TargetLanguage string

	// ReferenceLanguage is the language in which Gap mode looks for
	// missing articles. Defaults to DefaultReferenceLanguage.
	ReferenceLanguage string

	// Limit caps the result: the number of candidates in Gap mode,
	// the number of candidate/counterpart pairs in Expand mode.
	// Zero means the default for the mode.
	Limit int
}

func (q *Query) language() string {
	if q.Mode == Expand && q.TargetLanguage != "" {
		return q.TargetLanguage
	}
	return q.Language
}

func (q *Query) referenceLanguage() string {
	if q.ReferenceLanguage != "" {
		return q.ReferenceLanguage
	}
	return DefaultReferenceLanguage
}

func (q *Query) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	if q.Mode == Expand {
		return DefaultRowLimit
	}
	return DefaultGapLimit
}

// Counterpart is an article about the same subject in another language.
// Views is nil if the article has no view count.
type Counterpart struct {
	Language string `json:"language"`
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Length   int64  `json:"length"`
	Views    *int64 `json:"views"`
}

// Candidate is an article found by a query.
type Candidate struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Length       int64         `json:"length"`
	Views        int64         `json:"views"`
	Ratio        float64       `json:"ratio"`
	Language     string        `json:"language"`
	Counterparts []Counterpart `json:"counterparts"`
}

// Result is the answer to a query. Total is the number of distinct
// candidate articles in the reached categories, before filtering
// by mode and limit.
type Result struct {
	Mode       string      `json:"mode"`
	Language   string      `json:"language"`
	Categories int         `json:"categories"`
	Total      int         `json:"total"`
	Candidates []Candidate `json:"candidates"`
}
