// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

type sqlToken int

const (
	unexpected sqlToken = iota
	word                // CREATE, TABLE, int, unsigned, NOT, NULL
	name                // `page`, `page_namespace`
	number              // 12, 12.3, -4
	text                // 'foo'
	comment             // -- MySQL dump
	leftParen
	rightParen
	comma
	semicolon
	minus
)

// SQLLexer splits the statements of a MySQL dump into tokens.
// It only knows as much SQL as is needed for understanding
// the table definitions in Wikimedia dumps.
type sqlLexer struct {
	reader *bufio.Reader
}

func newSQLLexer(r io.Reader) *sqlLexer {
	return &sqlLexer{reader: bufio.NewReader(r)}
}

func (lex *sqlLexer) read() (sqlToken, string, error) {
	var c rune
	var err error
	for {
		c, _, err = lex.reader.ReadRune()
		if err != nil || !unicode.IsSpace(c) {
			break
		}
	}
	if err != nil {
		return unexpected, "", err
	}

	switch c {
	case '`':
		s, err := lex.readQuoted('`')
		return name, s, err
	case '\'':
		s, err := lex.readQuoted('\'')
		return text, s, err
	case '-':
		next, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			return minus, "", nil
		} else if err != nil {
			return unexpected, "", err
		}
		if next == '-' {
			line, err := lex.reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return unexpected, "", err
			}
			return comment, strings.TrimSpace(line), nil
		}
		if err := lex.reader.UnreadRune(); err != nil {
			return unexpected, "", err
		}
		if isDigit(next) {
			return lex.readNumber(c)
		}
		return minus, "", nil
	case '/':
		next, _, err := lex.reader.ReadRune()
		if err == nil && next == '*' {
			return lex.readBlockComment()
		}
		if err == nil {
			if err := lex.reader.UnreadRune(); err != nil {
				return unexpected, "", err
			}
		}
		return unexpected, "/", nil
	case '(':
		return leftParen, "", nil
	case ')':
		return rightParen, "", nil
	case ',':
		return comma, "", nil
	case ';':
		return semicolon, "", nil
	}

	if isDigit(c) {
		return lex.readNumber(c)
	}
	if isWordChar(c) {
		return lex.readWord(c)
	}
	return unexpected, string(c), nil
}

func (lex *sqlLexer) readWord(start rune) (sqlToken, string, error) {
	var buf strings.Builder
	buf.WriteRune(start)
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if !isWordChar(c) && !isDigit(c) {
			if err := lex.reader.UnreadRune(); err != nil {
				return unexpected, "", err
			}
			break
		}
		buf.WriteRune(c)
	}
	return word, buf.String(), nil
}

func (lex *sqlLexer) readNumber(start rune) (sqlToken, string, error) {
	var buf strings.Builder
	buf.WriteRune(start)
	gotDot := false
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if c == '.' && !gotDot {
			gotDot = true
		} else if !isDigit(c) {
			if err := lex.reader.UnreadRune(); err != nil {
				return unexpected, "", err
			}
			break
		}
		buf.WriteRune(c)
	}
	return number, buf.String(), nil
}

// ReadQuoted reads up to the closing delimiter, honoring backslash escapes.
// Reaching the end of input before the closing delimiter is an error.
func (lex *sqlLexer) readQuoted(delim rune) (string, error) {
	var buf strings.Builder
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		} else if err != nil {
			return "", err
		}
		if c == delim {
			return buf.String(), nil
		}
		if c == '\\' && delim == '\'' {
			next, _, err := lex.reader.ReadRune()
			if err != nil {
				return "", io.ErrUnexpectedEOF
			}
			buf.WriteRune(next)
			continue
		}
		buf.WriteRune(c)
	}
}

func (lex *sqlLexer) readBlockComment() (sqlToken, string, error) {
	var buf strings.Builder
	var last rune
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if c == '/' && last == '*' {
			break
		}
		buf.WriteRune(c)
		last = c
	}
	s := strings.TrimSpace(strings.TrimSuffix(buf.String(), "*"))
	return comment, s, nil
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isWordChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
}

// ParseCreateTable returns the table name and the column names
// of a `CREATE TABLE` statement, as found in MediaWiki dumps.
// Index definitions such as `PRIMARY KEY (...)` are not columns.
func parseCreateTable(stmt string) (string, []string, error) {
	lex := newSQLLexer(strings.NewReader(stmt))
	next := func() (sqlToken, string, error) {
		for {
			tok, s, err := lex.read()
			if err != nil || tok != comment {
				return tok, s, err
			}
		}
	}

	for _, want := range []string{"CREATE", "TABLE"} {
		tok, s, err := next()
		if err != nil {
			return "", nil, err
		}
		if tok != word || !strings.EqualFold(s, want) {
			return "", nil, fmt.Errorf("expected %s, got %q", want, s)
		}
	}

	tok, table, err := next()
	if err != nil {
		return "", nil, err
	}
	if tok != name && tok != word {
		return "", nil, fmt.Errorf("expected table name, got %q", table)
	}
	if tok, _, err := next(); err != nil {
		return "", nil, err
	} else if tok != leftParen {
		return "", nil, fmt.Errorf("table %s: expected (", table)
	}

	columns := make([]string, 0, 16)
	depth := 1
	atStart := true
	for depth > 0 {
		tok, s, err := next()
		if err == io.EOF {
			return "", nil, fmt.Errorf("table %s: %w", table, io.ErrUnexpectedEOF)
		} else if err != nil {
			return "", nil, err
		}
		switch tok {
		case leftParen:
			depth++
		case rightParen:
			depth--
		case comma:
			if depth == 1 {
				atStart = true
				continue
			}
		case name:
			if atStart && depth == 1 {
				columns = append(columns, s)
			}
		}
		atStart = false
	}

	return table, columns, nil
}
