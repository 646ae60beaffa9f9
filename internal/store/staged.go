// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/klauspost/compress/zstd"

	"github.com/brawer/missingpedia/internal/wikidump"
)

// DefaultChunkSize is the number of staged records per bulk load.
const DefaultChunkSize = 10000

// Codec tells how to stage records of type T as lines of tab-separated
// fields, and how to copy them into their relation.
type Codec[T any] struct {
	Table   string
	Columns []string
	Encode  func(rec T) []string
	Decode  func(fields []string) (T, error)
	Values  func(rec T) []any
}

// Stage buffers the records for a large append-only relation in a
// compressed temporary file. Once parsing is done, Load inserts the
// staged records in fixed-size chunks. This way, the speed of parsing
// a dump does not depend on how fast the database accepts writes.
type Stage[T any] struct {
	codec Codec[T]
	path  string
	file  *os.File
	enc   *zstd.Encoder
	w     *bufio.Writer
	count int64
}

// NewStage creates a staging file in dir.
func NewStage[T any](dir string, codec Codec[T]) (*Stage[T], error) {
	f, err := os.CreateTemp(dir, codec.Table+"-*.tsv.zst")
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &Stage[T]{codec: codec, path: f.Name(), file: f, enc: enc, w: bufio.NewWriter(enc)}, nil
}

// Add appends a record to the staging file.
func (s *Stage[T]) Add(rec T) error {
	for i, field := range s.codec.Encode(rec) {
		if i > 0 {
			if err := s.w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := tsvEscaper.WriteString(s.w, field); err != nil {
			return err
		}
	}
	s.count++
	return s.w.WriteByte('\n')
}

// Len returns the number of staged records.
func (s *Stage[T]) Len() int64 {
	return s.count
}

// Load inserts the staged records into the store, chunkSize records
// at a time, and removes the staging file. On PostgreSQL, chunks get
// sent with the COPY protocol.
func (s *Stage[T]) Load(ctx context.Context, st *Store, chunkSize int) (LoadResult, error) {
	defer s.Discard()

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := s.closeWriter(); err != nil {
		return LoadResult{}, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return LoadResult{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return LoadResult{}, err
	}
	defer dec.Close()

	var insert func([]T) (int64, error)
	if st.Dialect() == "postgres" {
		insert = func(chunk []T) (int64, error) { return s.copyFrom(ctx, st, chunk) }
	} else {
		insert = func(chunk []T) (int64, error) {
			loader := NewLoader[T](st.db, AppendOnly, len(chunk))
			for _, rec := range chunk {
				if err := loader.Add(ctx, rec); err != nil {
					return 0, err
				}
			}
			r, err := loader.Close(ctx)
			return r.Written, err
		}
	}

	var result LoadResult
	chunk := make([]T, 0, chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := insert(chunk)
		if err != nil {
			return fmt.Errorf("loading %s: %w", s.codec.Table, err)
		}
		result.Written += n
		chunk = chunk[:0]
		return nil
	}

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		for i, f := range fields {
			fields[i] = wikidump.Unescape(f)
		}
		rec, err := s.codec.Decode(fields)
		if err != nil {
			return result, fmt.Errorf("staged %s: %w", s.codec.Table, err)
		}
		chunk = append(chunk, rec)
		if len(chunk) >= chunkSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Stage[T]) copyFrom(ctx context.Context, st *Store, chunk []T) (int64, error) {
	sqlDB, err := st.db.DB()
	if err != nil {
		return 0, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	rows := make([][]any, 0, len(chunk))
	for _, rec := range chunk {
		rows = append(rows, s.codec.Values(rec))
	}

	var n int64
	err = conn.Raw(func(driverConn any) error {
		pgConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		n, err = pgConn.Conn().CopyFrom(ctx, pgx.Identifier{s.codec.Table}, s.codec.Columns, pgx.CopyFromRows(rows))
		return err
	})
	return n, err
}

func (s *Stage[T]) closeWriter() error {
	if s.w == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.enc.Close(); err != nil {
		return err
	}
	s.w = nil
	return s.file.Close()
}

// Discard removes the staging file.
func (s *Stage[T]) Discard() error {
	if s.w != nil {
		s.enc.Close()
		s.file.Close()
		s.w = nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var tsvEscaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

var CategoryLinkCodec = Codec[wikidump.CategoryLink]{
	Table:   "category_links",
	Columns: []string{"subcategory", "parent_category", "language"},
	Encode: func(r wikidump.CategoryLink) []string {
		return []string{strconv.FormatInt(r.Subcategory, 10), r.Parent, r.Language}
	},
	Decode: func(f []string) (wikidump.CategoryLink, error) {
		if len(f) != 3 {
			return wikidump.CategoryLink{}, fmt.Errorf("%w: %q", wikidump.ErrShape, f)
		}
		id, err := parseID(f[0])
		return wikidump.CategoryLink{Subcategory: id, Parent: f[1], Language: f[2]}, err
	},
	Values: func(r wikidump.CategoryLink) []any {
		return []any{r.Subcategory, r.Parent, r.Language}
	},
}

var PageCategoryLinkCodec = Codec[wikidump.PageCategoryLink]{
	Table:   "page_category_link",
	Columns: []string{"page_id", "category", "language"},
	Encode: func(r wikidump.PageCategoryLink) []string {
		return []string{strconv.FormatInt(r.Page, 10), r.Category, r.Language}
	},
	Decode: func(f []string) (wikidump.PageCategoryLink, error) {
		if len(f) != 3 {
			return wikidump.PageCategoryLink{}, fmt.Errorf("%w: %q", wikidump.ErrShape, f)
		}
		id, err := parseID(f[0])
		return wikidump.PageCategoryLink{Page: id, Category: f[1], Language: f[2]}, err
	},
	Values: func(r wikidump.PageCategoryLink) []any {
		return []any{r.Page, r.Category, r.Language}
	},
}

var LangLinkCodec = Codec[wikidump.LangLink]{
	Table:   "lang_links",
	Columns: []string{"from_lang", "from_id", "to_lang", "to_title"},
	Encode: func(r wikidump.LangLink) []string {
		return []string{r.FromLang, strconv.FormatInt(r.FromID, 10), r.ToLang, r.ToTitle}
	},
	Decode: func(f []string) (wikidump.LangLink, error) {
		if len(f) != 4 {
			return wikidump.LangLink{}, fmt.Errorf("%w: %q", wikidump.ErrShape, f)
		}
		id, err := parseID(f[1])
		return wikidump.LangLink{FromLang: f[0], FromID: id, ToLang: f[2], ToTitle: f[3]}, err
	},
	Values: func(r wikidump.LangLink) []any {
		return []any{r.FromLang, r.FromID, r.ToLang, r.ToTitle}
	},
}
