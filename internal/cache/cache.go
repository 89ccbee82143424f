// Package cache implements the content-addressed, gzip-compressed blob
// store (C7): put/get/delete/age over cache_key, with atomic writes and
// corrupt-blob quarantine. Grounded on original_source/src/compressed_cache.py
// for the .json.gz naming and quarantine behavior, and on the teacher's
// internal/storage/local/blob_store.go for base-dir validation and the
// path-traversal guard. Compression uses klauspost/compress/gzip, the
// faster drop-in the pack demonstrates for write-heavy compression paths.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/edukz/vagas-scrapy/internal/errkind"
)

// Config controls compression level and expiry.
type Config struct {
	Dir              string
	CompressionLevel int
	MaxAge           time.Duration
}

// DefaultConfig matches spec.md §4.7's defaults.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, CompressionLevel: gzip.DefaultCompression, MaxAge: 0}
}

// Blob describes a stored value's on-disk shape, returned by Put for the
// Cache Index to fold into an IndexEntry.
type Blob struct {
	CacheKey         string
	Path             string
	UncompressedSize int64
	CompressedSize   int64
}

// CompressionRatio is compressed/uncompressed, 0 when uncompressed size is 0.
func (b Blob) CompressionRatio() float64 {
	if b.UncompressedSize == 0 {
		return 0
	}
	return float64(b.CompressedSize) / float64(b.UncompressedSize)
}

// Cache is a content-addressed blob store rooted at Config.Dir.
type Cache struct {
	cfg Config
}

// New validates dir exists (creating it if necessary) and returns a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: dir is required")
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = gzip.DefaultCompression
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{cfg: cfg}, nil
}

func (c *Cache) pathFor(cacheKey string) (string, error) {
	if strings.ContainsAny(cacheKey, "/\\") || cacheKey == "" || cacheKey == "." || cacheKey == ".." {
		return "", fmt.Errorf("cache: invalid cache key %q", cacheKey)
	}
	path := filepath.Join(c.cfg.Dir, cacheKey+".json.gz")
	rel, err := filepath.Rel(c.cfg.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("cache: cache key %q escapes cache dir", cacheKey)
	}
	return path, nil
}

// Put serializes value to JSON, gzip-compresses it, and atomically writes
// it under cache_key. Writing is idempotent: a repeat Put with the same key
// and content simply overwrites via the same atomic rename.
func (c *Cache) Put(cacheKey string, value any) (Blob, error) {
	path, err := c.pathFor(cacheKey)
	if err != nil {
		return Blob{}, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return Blob{}, fmt.Errorf("marshal cache value: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, c.cfg.CompressionLevel)
	if err != nil {
		return Blob{}, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gw.Write(raw); err != nil {
		gw.Close()
		return Blob{}, fmt.Errorf("compress cache value: %w", err)
	}
	if err := gw.Close(); err != nil {
		return Blob{}, fmt.Errorf("flush gzip writer: %w", err)
	}

	tmp, err := os.CreateTemp(c.cfg.Dir, "blob-*.tmp")
	if err != nil {
		return Blob{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		return Blob{}, fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Blob{}, fmt.Errorf("sync temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Blob{}, fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Blob{}, fmt.Errorf("rename blob into place: %w", err)
	}

	return Blob{
		CacheKey:         cacheKey,
		Path:             path,
		UncompressedSize: int64(len(raw)),
		CompressedSize:   int64(compressed.Len()),
	}, nil
}

// Get reads and decompresses cache_key into dest (a pointer, as
// json.Unmarshal expects). A corrupt blob is quarantined with a .corrupt
// suffix and reported as errkind.CorruptBlob; an aged-out blob fails with
// errkind.IOUnavailable carrying "expired" context.
func (c *Cache) Get(cacheKey string, dest any) error {
	path, err := c.pathFor(cacheKey)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errkind.New(errkind.IOUnavailable, "cache.get", fmt.Errorf("miss: %s", cacheKey))
		}
		return fmt.Errorf("stat blob: %w", err)
	}

	if c.cfg.MaxAge > 0 && time.Since(info.ModTime()) > c.cfg.MaxAge {
		return errkind.New(errkind.IOUnavailable, "cache.get", fmt.Errorf("expired: %s", cacheKey))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		c.quarantine(path)
		return errkind.New(errkind.CorruptBlob, "cache.get", err)
	}
	decompressed, err := readAll(gr)
	gr.Close()
	if err != nil {
		c.quarantine(path)
		return errkind.New(errkind.CorruptBlob, "cache.get", err)
	}

	if err := json.Unmarshal(decompressed, dest); err != nil {
		c.quarantine(path)
		return errkind.New(errkind.CorruptBlob, "cache.get", err)
	}
	return nil
}

func readAll(r *gzip.Reader) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	return buf.Bytes(), err
}

func (c *Cache) quarantine(path string) {
	_ = os.Rename(path, path+".corrupt")
}

// Delete removes cache_key's blob. Missing files are not an error.
func (c *Cache) Delete(cacheKey string) error {
	path, err := c.pathFor(cacheKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Age returns how long ago cache_key was written.
func (c *Cache) Age(cacheKey string) (time.Duration, error) {
	path, err := c.pathFor(cacheKey)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return time.Since(info.ModTime()), nil
}

// Keys lists every cache_key currently stored, for index rebuilds.
func (c *Cache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json.gz") {
			keys = append(keys, strings.TrimSuffix(name, ".json.gz"))
		}
	}
	return keys, nil
}
