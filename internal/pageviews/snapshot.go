// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pageviews

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"
)

// WriteSnapshot writes the counts as zstd-compressed text, one line
// per page in the form "language title views", sorted by language
// and title. The sort happens externally, so the snapshot can be
// larger than memory would allow to sort.
func WriteSnapshot(ctx context.Context, counts Counts, w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	defer enc.Close()

	ch := make(chan string, 10000)
	config := extsort.DefaultConfig()
	config.ChunkSize = 8 * 1024 * 1024 / 64 // 8 MiB, 64 Bytes/line avg
	sorter, outChan, errChan := extsort.Strings(ch, config)

	g, subCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		for lang, titles := range counts {
			for title, views := range titles {
				line := formatLine(lang, title, views)
				select {
				case ch <- line:
				case <-subCtx.Done():
					return subCtx.Err()
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		sorter.Sort(subCtx)
		buf := bufio.NewWriter(enc)
		var err error
		// The sorter blocks until outChan is drained, even after a write error.
		for line := range outChan {
			if err == nil {
				_, err = buf.WriteString(line)
			}
		}
		if err != nil {
			return err
		}
		return buf.Flush()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := <-errChan; err != nil {
		return err
	}
	return enc.Close()
}

func formatLine(lang, title string, views int64) string {
	var buf strings.Builder
	buf.Grow(len(lang) + len(title) + 16)
	buf.WriteString(lang)
	buf.WriteByte(' ')
	buf.WriteString(title)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(views, 10))
	buf.WriteByte('\n')
	return buf.String()
}
