// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"strings"
)

// Tokenize splits the value list of a multi-row INSERT statement,
// such as `(1,'a'),(2,'b')`, into rows of fields.
func Tokenize(values string) [][]string {
	rows := SplitRows(values)
	result := make([][]string, 0, len(rows))
	for _, row := range rows {
		result = append(result, SplitFields(row))
	}
	return result
}

// SplitRows splits the value list of a multi-row INSERT statement
// into the textual representation of its rows.
//
// Rows are separated at every occurrence of `),(`, no matter whether
// it appears inside a quoted string or not. A title containing that
// exact sequence will therefore get split into two broken rows, which
// the classifiers then reject because of their unexpected shape.
func SplitRows(values string) []string {
	values = strings.TrimSpace(values)
	values = strings.TrimSuffix(values, ";")
	values = strings.TrimPrefix(values, "(")
	values = strings.TrimSuffix(values, ")")
	if values == "" {
		return nil
	}
	return strings.Split(values, "),(")
}

// SplitFields splits the textual representation of one row into fields.
// Quote characters that delimit strings are removed, but escape
// sequences such as `\'` are kept verbatim; see Unescape.
// SplitFields never fails; for malformed input, it returns its best guess.
func SplitFields(row string) []string {
	fields := make([]string, 0, 8)
	var buf strings.Builder
	inQuotes := false
	for i := 0; i < len(row); i++ {
		c := row[i]
		switch {
		case c == '\\' && inQuotes:
			buf.WriteByte(c)
			if i+1 < len(row) {
				i++
				buf.WriteByte(row[i])
			}
		case c == '\'':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, buf.String())
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}
	return append(fields, buf.String())
}

// Unescape resolves the backslash escapes that mysqldump writes
// into quoted strings.
func Unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}

	var buf strings.Builder
	buf.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			buf.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		case '0':
			buf.WriteByte(0)
		case 'Z':
			buf.WriteByte(0x1a)
		default:
			buf.WriteByte(s[i])
		}
	}
	return buf.String()
}
