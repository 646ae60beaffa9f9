// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pageviews

import (
	"maps"
	"sync"
	"testing"
)

func TestCountsMergeCommutative(t *testing.T) {
	a := Counts{"de": {"Zürich": 3, "Bern": 1}, "en": {"Zurich": 5}}
	b := Counts{"de": {"Zürich": 4}, "fr": {"Genève": 2}}

	ab := make(Counts)
	ab.Merge(a)
	ab.Merge(b)

	ba := make(Counts)
	ba.Merge(b)
	ba.Merge(a)

	if !countsEqual(ab, ba) {
		t.Errorf("merge order matters: %v vs %v", ab, ba)
	}
	want := Counts{"de": {"Zürich": 7, "Bern": 1}, "en": {"Zurich": 5}, "fr": {"Genève": 2}}
	if !countsEqual(ab, want) {
		t.Errorf("got %v, want %v", ab, want)
	}
	if ab.Len() != 4 {
		t.Errorf("got Len()=%d, want 4", ab.Len())
	}
}

func TestAggregateConcurrentMerge(t *testing.T) {
	agg := NewAggregate()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Merge(Counts{"en": {"Zurich": 1}, "de": {"Zürich": 2}})
		}()
	}
	wg.Wait()

	want := Counts{"en": {"Zurich": 50}, "de": {"Zürich": 100}}
	if got := agg.Totals(); !countsEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func countsEqual(a, b Counts) bool {
	if len(a) != len(b) {
		return false
	}
	for lang, titles := range a {
		if !maps.Equal(titles, b[lang]) {
			return false
		}
	}
	return true
}
