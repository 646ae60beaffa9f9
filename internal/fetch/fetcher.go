// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// StatusError is returned when a server answers with anything but 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch %s, StatusCode=%d", e.URL, e.StatusCode)
}

// Fetcher downloads files over HTTP, retrying failed downloads
// according to its policy.
type Fetcher struct {
	Client *http.Client
	Policy Policy
	Logger *log.Logger
}

func NewFetcher(client *http.Client, policy Policy, logger *log.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Client: client, Policy: policy, Logger: logger}
}

// Fetch downloads url into the file dest. The content first goes
// to a temporary file, which gets renamed to dest once complete.
// When all attempts have failed, no partial content is left behind
// and the returned error is the one of the last attempt.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	tmp := dest + ".tmp"
	notify := func(err error, wait time.Duration) {
		if f.Logger != nil {
			f.Logger.Printf("fetching %s failed, retrying in %v: %v", url, wait, err)
		}
	}
	op := func(ctx context.Context) error {
		return f.download(ctx, url, tmp)
	}
	if err := DoNotify(ctx, f.Policy, op, notify); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// FetchOnce is like Fetch, but does nothing if dest exists already.
// The result tells whether a download took place.
func (f *Fetcher) FetchOnce(ctx context.Context, url, dest string) (bool, error) {
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	start := time.Now()
	if err := f.Fetch(ctx, url, dest); err != nil {
		return false, err
	}
	if f.Logger != nil {
		f.Logger.Printf("fetched %s in %.1fs", url, time.Since(start).Seconds())
	}
	return true, nil
}

func (f *Fetcher) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	Alive(ctx)

	out, err := os.Create(path)
	if err != nil {
		return Permanent(err)
	}
	defer out.Close()

	body := &progressReader{ctx: ctx, r: resp.Body}
	if _, err := io.Copy(out, body); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}

// ProgressReader reports every successful read as progress, so that
// a slow but steady download is not mistaken for a stalled one.
type progressReader struct {
	ctx context.Context
	r   io.Reader
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		Alive(p.ctx)
	}
	return n, err
}

const userAgent = "MissingpediaBot/1.0 (https://github.com/brawer/missingpedia)"
