// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

func gzipBytes(content string) []byte {
	var buf bytes.Buffer
	s, err := gzip.NewWriterLevel(&buf, 1)
	if err != nil {
		panic(err)
	}
	s.Write([]byte(content))
	if err := s.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func writeGzipFile(path string, content string) {
	if err := os.WriteFile(path, gzipBytes(content), 0644); err != nil {
		panic(err)
	}
}

func readZstdFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	reader, err := zstd.NewReader(f)
	if err != nil {
		panic(err)
	}
	defer reader.Close()

	b, err := io.ReadAll(reader)
	if err != nil {
		panic(err)
	}

	return string(b)
}
