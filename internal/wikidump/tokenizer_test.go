// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitRows(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"()", nil},
		{"(1,'a')", []string{"1,'a'"}},
		{"(1,'a'),(2,'b');", []string{"1,'a'", "2,'b'"}},
		{" (1,'a'),(2,'b') ", []string{"1,'a'", "2,'b'"}},
	} {
		got := SplitRows(tc.input)
		if !slices.Equal(got, tc.want) {
			t.Errorf("SplitRows(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSplitFields(t *testing.T) {
	for _, tc := range []struct{ input, want string }{
		{"", ""},
		{"1", "1"},
		{"1,2,3", "1|2|3"},
		{"1,'a,b',3", "1|a,b|3"},
		{"1,'',3", "1||3"},
		{"1,2,", "1|2|"},
		{`1,'Rock_\'n\'_Roll',0`, `1|Rock_\'n\'_Roll|0`},
		{`1,'C:\\',0`, `1|C:\\|0`},
		{`1,'C:\\','x'`, `1|C:\\|x`},
		{"1,NULL,'x'", "1|NULL|x"},
	} {
		got := strings.Join(SplitFields(tc.input), "|")
		if got != tc.want {
			t.Errorf("SplitFields(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSplitFieldsCount(t *testing.T) {
	row := "1,0,'A,B',0,1,0.5,'20240101000000','x,y,z',7,42,'wikitext',NULL"
	if got := len(SplitFields(row)); got != 12 {
		t.Errorf("got %d fields, want 12", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("(1,0,'Zürich',0),(2,14,'Lakes_of_Switzerland',0)")
	want := [][]string{
		{"1", "0", "Zürich", "0"},
		{"2", "14", "Lakes_of_Switzerland", "0"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("row %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnescape(t *testing.T) {
	for _, tc := range []struct{ input, want string }{
		{"", ""},
		{"Zürich", "Zürich"},
		{`Rock_\'n\'_Roll`, "Rock_'n'_Roll"},
		{`say_\"hi\"`, `say_"hi"`},
		{`C:\\`, `C:\`},
		{`a\nb\tc\r`, "a\nb\tc\r"},
		{`\0\Z`, "\x00\x1a"},
		{`trailing\`, `trailing\`},
	} {
		if got := Unescape(tc.input); got != tc.want {
			t.Errorf("Unescape(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
