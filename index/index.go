package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultURL is where the published jorfile lives.
const DefaultURL = "https://raw.githubusercontent.com/input-output-hk/jorup/master/jorfile.json"

const (
	refreshAttempts = 3
	refreshBackoff  = 500 * time.Millisecond
)

// Index serves the cached release index and refreshes it from the remote
// source. The cache is replaced atomically; readers either see the old
// document or the new one, never a partial write.
type Index struct {
	url       string
	cacheFile string
	etagFile  string
	local     bool
	client    *http.Client

	mu  sync.RWMutex
	doc *Document
}

// Open returns an index caching under cacheDir and fetching from url.
func Open(cacheDir, url string, client *http.Client) *Index {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Index{
		url:       url,
		cacheFile: filepath.Join(cacheDir, "jorfile.json"),
		etagFile:  filepath.Join(cacheDir, "jorfile.etag"),
		client:    client,
	}
}

// OpenLocal returns an index reading a user-provided jorfile verbatim.
// Refresh is a no-op for a local index.
func OpenLocal(path string) *Index {
	return &Index{cacheFile: path, local: true}
}

// Refresh replaces the cached index from the remote source. A stored ETag
// turns an unchanged index into a cheap 304. Transport failures are retried
// a few times; the cache is only touched once a full document validated.
func (x *Index) Refresh(ctx context.Context) error {
	if x.local {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(refreshBackoff):
			}
		}
		if err := x.refreshOnce(ctx); err != nil {
			lastErr = err
			log.Printf("index refresh attempt %d/%d failed: %v", attempt, refreshAttempts, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("refresh index: %w", lastErr)
}

func (x *Index) refreshOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.url, nil)
	if err != nil {
		return err
	}
	if etag, err := os.ReadFile(x.etagFile); err == nil && len(etag) > 0 {
		if _, err := os.Stat(x.cacheFile); err == nil {
			req.Header.Set("If-None-Match", strings.TrimSpace(string(etag)))
		}
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("index fetch failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	if err := doc.validate(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(x.cacheFile), ".jorfile.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), x.cacheFile); err != nil {
		return err
	}
	if etag := resp.Header.Get("Etag"); etag != "" {
		if err := os.WriteFile(x.etagFile, []byte(etag), 0o644); err != nil {
			log.Printf("cannot store index etag: %v", err)
		}
	}

	x.mu.Lock()
	x.doc = &doc
	x.mu.Unlock()
	return nil
}

// Current returns the cached document, loading it from disk on first use.
// It never goes to the network; a stale cache is served as-is.
func (x *Index) Current() (*Document, error) {
	x.mu.RLock()
	doc := x.doc
	x.mu.RUnlock()
	if doc != nil {
		return doc, nil
	}

	data, err := os.ReadFile(x.cacheFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no release index available, run `jorup blockchain update` first")
	}
	if err != nil {
		return nil, fmt.Errorf("read index cache: %w", err)
	}
	var loaded Document
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse index cache %s: %w", x.cacheFile, err)
	}
	if err := loaded.validate(); err != nil {
		return nil, err
	}

	x.mu.Lock()
	x.doc = &loaded
	x.mu.Unlock()
	return &loaded, nil
}
