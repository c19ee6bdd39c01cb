package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProgressFunc is called during download to report progress
type ProgressFunc func(downloaded, total int64, speed float64)

const progressInterval = 500 * time.Millisecond

// Downloader fetches model files from the hub into the cache.
type Downloader struct {
	Hub      *Hub
	Cache    *Cache
	Progress ProgressFunc
}

// NewDownloader creates a new downloader
func NewDownloader(hub *Hub, cache *Cache) *Downloader {
	return &Downloader{Hub: hub, Cache: cache}
}

// Download fetches file from repo at revision, resuming a previous partial
// download when one exists, and records it in the cache.
func (d *Downloader) Download(ctx context.Context, repo, revision string, file *RepoFile) (*CachedModel, error) {
	tempPath := d.Cache.PartPath(repo, revision, file.Name)
	finalPath := d.Cache.ModelPath(repo, revision, file.Name)
	expected := file.ExpectedSize()

	var offset int64
	if info, err := os.Stat(tempPath); err == nil {
		offset = info.Size()
	}

	// Without a known size a partial file cannot be trusted; oversized ones never can.
	if offset > 0 && (expected <= 0 || offset > expected) {
		os.Remove(tempPath)
		offset = 0
	}

	// A part file that already has every byte was interrupted before the
	// rename; the digest below decides whether it is kept.
	if expected <= 0 || offset < expected {
		var err error
		offset, err = d.fetch(ctx, d.Hub.FileURL(repo, revision, file.Name), tempPath, offset, expected)
		if err != nil {
			return nil, err
		}
	}

	if expected > 0 && offset != expected {
		return nil, fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", file.Name, expected, offset)
	}

	computed, err := ComputeSHA256(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compute checksum: %w", err)
	}
	if want := file.SHA256(); want != "" && !strings.EqualFold(computed, want) {
		os.Remove(tempPath)
		return nil, fmt.Errorf("checksum mismatch for %s: expected %s, got %s", file.Name, want, computed)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	cached, err := d.Cache.Add(repo, revision, file.Name, finalPath, computed)
	if err != nil {
		return nil, fmt.Errorf("failed to update cache manifest: %w", err)
	}
	return cached, nil
}

// fetch appends the remote body to tempPath starting at offset and returns
// the resulting file size.
func (d *Downloader) fetch(ctx context.Context, url, tempPath string, offset, expected int64) (int64, error) {
	req, err := d.Hub.newRequest(ctx, url)
	if err != nil {
		return 0, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.Hub.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}

	flag := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flag |= os.O_APPEND
	default:
		// Server ignored the range; start over.
		offset = 0
		flag |= os.O_TRUNC
	}

	total := expected
	if total <= 0 && resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	f, err := os.OpenFile(tempPath, flag, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open temp file: %w", err)
	}
	defer f.Close()

	n, err := d.copyWithProgress(f, resp.Body, offset, total)
	if err != nil {
		return 0, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return n, nil
}

// copyWithProgress copies src to dst and reports progress at most every
// progressInterval, plus once at the end.
func (d *Downloader) copyWithProgress(dst io.Writer, src io.Reader, offset, total int64) (int64, error) {
	buf := make([]byte, 32*1024)
	downloaded := offset
	start := time.Now()
	lastUpdate := start

	report := func() {
		if d.Progress == nil {
			return
		}
		elapsed := time.Since(start).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(downloaded-offset) / elapsed
		}
		d.Progress(downloaded, total, speed)
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return downloaded, werr
			}
			downloaded += int64(n)
			if time.Since(lastUpdate) > progressInterval {
				report()
				lastUpdate = time.Now()
			}
		}
		if err == io.EOF {
			report()
			return downloaded, nil
		}
		if err != nil {
			return downloaded, err
		}
	}
}
