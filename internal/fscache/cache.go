package fscache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/weatherfusion/internal/metrics"
)

// CachedFile is a cache hit or a freshly written payload.
type CachedFile struct {
	Path  string
	Fresh bool // existed and was within TTL before this request
}

// Downloader produces the bytes for a cache slot on miss.
type Downloader func() ([]byte, error)

// Cache persists downloaded payloads under root/namespace/name and reuses
// them while their mtime is within the TTL. A zero TTL disables reuse.
// Interleaved access across keys is fine; concurrent writes to the same key
// are the caller's problem (each ingestor owns a distinct namespace).
type Cache struct {
	root string
	ttl  time.Duration
}

func New(root string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{root: root, ttl: ttl}, nil
}

func (c *Cache) fresh(path string) bool {
	if c.ttl == 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= c.ttl
}

// Fetch returns the cached file when fresh, otherwise runs the downloader
// and persists its output. Downloader errors propagate unchanged and leave
// no partial file behind.
func (c *Cache) Fetch(namespace, name string, dl Downloader) (CachedFile, error) {
	target := filepath.Join(c.root, namespace, name)
	if c.fresh(target) {
		metrics.CacheFetchesTotal.WithLabelValues(namespace, "hit").Inc()
		return CachedFile{Path: target, Fresh: true}, nil
	}
	metrics.CacheFetchesTotal.WithLabelValues(namespace, "miss").Inc()

	data, err := dl()
	if err != nil {
		return CachedFile{}, err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CachedFile{}, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, name+".tmp*")
	if err != nil {
		return CachedFile{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return CachedFile{}, fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return CachedFile{}, fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return CachedFile{}, fmt.Errorf("finalize cache file: %w", err)
	}
	return CachedFile{Path: target, Fresh: false}, nil
}

// Put replaces a slot's contents unconditionally, resetting its freshness
// window.
func (c *Cache) Put(namespace, name string, data []byte) error {
	target := filepath.Join(c.root, namespace, name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// ReadBytes is Fetch plus reading the slot's contents.
func (c *Cache) ReadBytes(namespace, name string, dl Downloader) ([]byte, error) {
	cached, err := c.Fetch(namespace, name, dl)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(cached.Path)
}

// ReadText is ReadBytes as a string.
func (c *Cache) ReadText(namespace, name string, dl Downloader) (string, error) {
	data, err := c.ReadBytes(namespace, name, dl)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
