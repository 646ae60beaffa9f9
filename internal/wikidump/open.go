// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Open opens a dump file for streaming. The content gets decompressed
// on the fly, depending on the file extension: .gz, .bz2, .xz, .zst and .br
// are supported; any other file is read as plain text.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := NewDecompressor(f, filepath.Ext(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &dumpFile{Reader: r, file: f}, nil
}

// NewDecompressor wraps r into a decompressor for the given file extension.
func NewDecompressor(r io.Reader, ext string) (io.Reader, error) {
	switch ext {
	case ".gz":
		return gzip.NewReader(r)
	case ".bz2":
		return bzip2.NewReader(r, &bzip2.ReaderConfig{})
	case ".xz":
		return xz.NewReader(r)
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case ".br":
		return brotli.NewReader(r), nil
	default:
		return r, nil
	}
}

type dumpFile struct {
	io.Reader
	file *os.File
}

func (d *dumpFile) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		c.Close()
	}
	return d.file.Close()
}
