// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pageviews

import "sync"

// Counts maps language codes to page titles to view counts.
type Counts map[string]map[string]int64

func (c Counts) Add(lang, title string, views int64) {
	titles, ok := c[lang]
	if !ok {
		titles = make(map[string]int64)
		c[lang] = titles
	}
	titles[title] += views
}

// Merge adds all counts of other to c. Since merging is addition,
// the order in which partial counts get merged does not matter.
func (c Counts) Merge(other Counts) {
	for lang, titles := range other {
		for title, views := range titles {
			c.Add(lang, title, views)
		}
	}
}

// Len returns the number of (language, title) pairs.
func (c Counts) Len() int {
	n := 0
	for _, titles := range c {
		n += len(titles)
	}
	return n
}

// Aggregate collects the partial counts of many shards. It is safe
// for concurrent use. Workers parse their shards on their own and
// only hold the lock while merging the result.
type Aggregate struct {
	mu     sync.Mutex
	counts Counts
}

func NewAggregate() *Aggregate {
	return &Aggregate{counts: make(Counts)}
}

func (a *Aggregate) Merge(part Counts) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts.Merge(part)
}

// Totals returns the merged counts. Callers must not call Merge
// anymore once they have asked for the totals.
func (a *Aggregate) Totals() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts
}
