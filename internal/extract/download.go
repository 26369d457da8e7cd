package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// downloader fetches a URL into a local file, returning its path, whether
// it spilled to a scoped temp file above the memory threshold, and a
// cleanup func that must run on every exit path (success, parse failure,
// or cancellation) — the canonical place spec.md §9 asks to demonstrate
// guaranteed resource release.
type downloader interface {
	fetch(ctx context.Context, url string, memoryThreshold int64) (path string, spilled bool, cleanup func(), err error)
}

type httpDownloader struct {
	timeout  time.Duration
	maxBytes int64
}

// fetch downloads url with a bounded read timeout and maximum response
// size. The response always streams directly into a temp file (pdfcpu's
// API takes file paths only), whatever its size; no download is held in
// memory. memoryThreshold only decides the returned spilled flag, which
// is true when Content-Length or the bytes written exceed it.
func (d httpDownloader) fetch(ctx context.Context, url string, memoryThreshold int64) (string, bool, func(), error) {
	client := &http.Client{Timeout: d.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, func() {}, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", false, func() {}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, func() {}, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	maxBytes := d.maxBytes
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)

	f, err := os.CreateTemp("", "oparl-pdf-*.pdf")
	if err != nil {
		return "", false, func() {}, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := cleanupTempFile(f.Name())

	spilled := resp.ContentLength > memoryThreshold
	written, err := io.Copy(f, limited)
	closeErr := f.Close()
	if err != nil {
		cleanup()
		return "", false, func() {}, fmt.Errorf("download body: %w", err)
	}
	if closeErr != nil {
		cleanup()
		return "", false, func() {}, fmt.Errorf("close temp file: %w", closeErr)
	}
	if written > maxBytes {
		cleanup()
		return "", false, func() {}, fmt.Errorf("response exceeded max size of %d bytes", maxBytes)
	}
	if written > memoryThreshold {
		spilled = true
	}

	return f.Name(), spilled, cleanup, nil
}
