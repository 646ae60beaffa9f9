// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/brawer/missingpedia/internal/store"
	"github.com/brawer/missingpedia/internal/wikidump"
)

func TestSuggestCategories(t *testing.T) {
	s := openTestStore(t)
	loadFixture(t, s)
	insert(t, s, store.AppendOnly,
		wikidump.PageCategoryLink{Page: 1, Category: "Articles_with_short_description", Language: "en"},
		wikidump.PageCategoryLink{Page: 3, Category: "Wikipedia_level-4_vital_articles", Language: "en"},
		wikidump.PageCategoryLink{Page: 3, Category: "Short_DESCRIPTION_matches_Wikidata", Language: "en"})
	r := newTestResolver(s)
	ctx := context.Background()

	titles := []string{"Lens", "Gravity", "Acid", "Laser pointer", "Lens", "No such article"}
	got, err := r.SuggestCategories(ctx, "en", titles, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []Suggestion{
		{Title: "Physics", Articles: 2},
		{Title: "Chemistry", Articles: 1},
		{Title: "Lasers", Articles: 1},
		{Title: "Optics", Articles: 1},
	}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = r.SuggestCategories(ctx, "en", titles, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want[:2]) {
		t.Errorf("got %v, want %v", got, want[:2])
	}

	got, err = r.SuggestCategories(ctx, "de", titles, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}

	if _, err := r.SuggestCategories(ctx, "EN", titles, 0); !errors.Is(err, wikidump.ErrInvalidLanguage) {
		t.Errorf("got %v, want ErrInvalidLanguage", err)
	}
}

func TestIsMaintenanceCategory(t *testing.T) {
	for _, tc := range []struct {
		title string
		want  bool
	}{
		{"Physics", false},
		{"All_articles_with_unsourced_statements", true},
		{"Wikipedia_categories_named_after_physicists", true},
		{"Short_description_is_different_from_Wikidata", true},
		{"Optics", false},
	} {
		if got := isMaintenanceCategory(tc.title); got != tc.want {
			t.Errorf("isMaintenanceCategory(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}
