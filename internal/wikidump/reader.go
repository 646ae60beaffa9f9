// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
)

// Reader streams the rows of one table from a MySQL dump, as published
// by Wikimedia. The dump is read line by line; mysqldump puts each
// INSERT statement on a line of its own, so the reader never holds more
// than one statement in memory. Lines that are not an INSERT statement
// for the requested table get skipped.
//
// A Reader cannot be rewound. To read a dump again, open a new one.
type Reader struct {
	reader      *bufio.Reader
	table       string
	insertRegex *regexp.Regexp
	createTable string
	columns     []string
	pending     [][]string
	line        int
	logger      *log.Logger
}

// NewReader returns a Reader for the rows of table, such as "page".
// The logger may be nil.
func NewReader(r io.Reader, table string, logger *log.Logger) *Reader {
	quoted := regexp.QuoteMeta("`" + table + "`")
	return &Reader{
		reader:      bufio.NewReaderSize(r, 1<<20),
		table:       table,
		insertRegex: regexp.MustCompile(`^INSERT INTO ` + quoted + ` VALUES (.*);\s*$`),
		createTable: "CREATE TABLE `" + table + "`",
		logger:      logger,
	}
}

// Columns returns the column names of the table, or nil if the dump
// has not told them (yet). Column names become known when the reader
// has passed the CREATE TABLE statement, which precedes the data.
func (r *Reader) Columns() []string {
	return r.columns
}

// ReadValues returns the value list of the next INSERT statement,
// such as `(1,'a'),(2,'b')`. At the end of input, the error is io.EOF.
func (r *Reader) ReadValues() (string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}

		if strings.HasPrefix(line, r.createTable) {
			if err := r.readCreateTable(line); err != nil {
				return "", err
			}
			continue
		}

		if !strings.HasPrefix(line, "INSERT INTO ") {
			continue
		}
		if m := r.insertRegex.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
}

// Read returns the fields of the next row. At the end of input,
// the error is io.EOF.
func (r *Reader) Read() ([]string, error) {
	for len(r.pending) == 0 {
		values, err := r.ReadValues()
		if err != nil {
			return nil, err
		}
		r.pending = Tokenize(values)
	}
	row := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return row, nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	r.line++
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadCreateTable collects the lines of a CREATE TABLE statement
// and extracts the column names from it. Should the statement be
// incomprehensible, we log the problem and fall back to the default
// column layout of the classifiers.
func (r *Reader) readCreateTable(first string) error {
	var buf strings.Builder
	buf.WriteString(first)
	startLine := r.line
	for {
		line, err := r.readLine()
		if err == io.EOF {
			return fmt.Errorf("line %d: unterminated CREATE TABLE `%s`", startLine, r.table)
		} else if err != nil {
			return err
		}
		buf.WriteByte('\n')
		buf.WriteString(line)
		if strings.HasPrefix(line, ")") {
			break
		}
	}

	_, columns, err := parseCreateTable(buf.String())
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("line %d: cannot parse CREATE TABLE `%s`, err=%v", startLine, r.table, err)
		}
		return nil
	}
	r.columns = columns
	return nil
}
