// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package hierarchy

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  Mode
	}{
		{"gap", Gap},
		{"create", Gap},
		{"expand", Expand},
	} {
		got, err := ParseMode(tc.input)
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tc.input, err)
		} else if got != tc.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
	if _, err := ParseMode("shrink"); !errors.Is(err, ErrMode) {
		t.Errorf("got %v, want ErrMode", err)
	}
}

func TestQueryDefaults(t *testing.T) {
	q := Query{Language: "en", Mode: Gap}
	if q.limit() != DefaultGapLimit || q.referenceLanguage() != "en" || q.language() != "en" {
		t.Errorf("unexpected defaults for %+v", q)
	}

	q = Query{Language: "en", Mode: Expand, TargetLanguage: "he"}
	if q.limit() != DefaultRowLimit || q.language() != "he" {
		t.Errorf("unexpected defaults for %+v", q)
	}

	q = Query{Language: "en", Mode: Gap, TargetLanguage: "he", Limit: 3}
	if q.limit() != 3 || q.language() != "en" {
		t.Errorf("unexpected defaults for %+v", q)
	}
}
