package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const manifestVersion = "2"

// CachedModel represents a model file stored in the cache
type CachedModel struct {
	Repo         string    `json:"repo"`
	Revision     string    `json:"revision"`
	File         string    `json:"file"`
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	Checksum     string    `json:"checksum"`
	DownloadedAt time.Time `json:"downloaded_at"`
	LastUsed     time.Time `json:"last_used"`
}

// ID identifies the entry as repo@revision/file.
func (m CachedModel) ID() string {
	return Key(m.Repo, m.Revision, m.File)
}

// Key builds a cache key.
func Key(repo, revision, file string) string {
	return repo + "@" + revision + "/" + file
}

type manifest struct {
	Version string        `json:"version"`
	Models  []CachedModel `json:"models"`
}

// Cache manages the on-disk model cache and its manifest.json.
type Cache struct {
	Dir string

	mu           sync.Mutex
	manifest     *manifest
	manifestPath string
}

// NewCache opens (or creates) the cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, ".downloading"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		Dir:          dir,
		manifestPath: filepath.Join(dir, "manifest.json"),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.manifestPath)
	if os.IsNotExist(err) {
		c.manifest = &manifest{Version: manifestVersion}
		return c.save()
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", c.manifestPath, err)
	}
	c.manifest = &m
	return nil
}

// save writes the manifest through a temp file so a crash never leaves it
// half written. Callers hold mu.
func (c *Cache) save() error {
	data, err := json.MarshalIndent(c.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := c.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp, c.manifestPath)
}

func (c *Cache) find(key string) int {
	for i := range c.manifest.Models {
		if c.manifest.Models[i].ID() == key {
			return i
		}
	}
	return -1
}

// List returns all cached models sorted by key.
func (c *Cache) List() []CachedModel {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CachedModel, len(c.manifest.Models))
	copy(out, c.manifest.Models)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key string) (*CachedModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(key)
	if i < 0 {
		return nil, fmt.Errorf("model not found in cache: %s", key)
	}
	m := c.manifest.Models[i]
	return &m, nil
}

// Has checks if a model is cached
func (c *Cache) Has(key string) bool {
	_, err := c.Get(key)
	return err == nil
}

// Add records a downloaded file, replacing any entry with the same key.
func (c *Cache) Add(repo, revision, file, path, checksum string) (*CachedModel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat model file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry := CachedModel{
		Repo:         repo,
		Revision:     revision,
		File:         file,
		Path:         path,
		SizeBytes:    info.Size(),
		Checksum:     checksum,
		DownloadedAt: now,
		LastUsed:     now,
	}

	if i := c.find(entry.ID()); i >= 0 {
		c.manifest.Models[i] = entry
	} else {
		c.manifest.Models = append(c.manifest.Models, entry)
	}
	if err := c.save(); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Remove deletes the file and its manifest entry.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(key)
	if i < 0 {
		return fmt.Errorf("model not found in cache: %s", key)
	}
	if err := os.Remove(c.manifest.Models[i].Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete model file: %w", err)
	}
	c.manifest.Models = append(c.manifest.Models[:i], c.manifest.Models[i+1:]...)
	return c.save()
}

// Touch updates the last used timestamp for a model
func (c *Cache) Touch(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(key)
	if i < 0 {
		return fmt.Errorf("model not found in cache: %s", key)
	}
	c.manifest.Models[i].LastUsed = time.Now()
	return c.save()
}

// TotalSize returns the total size of cached models in bytes
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, m := range c.manifest.Models {
		total += m.SizeBytes
	}
	return total
}

// VerifyChecksum rehashes the cached file. Entries without a recorded
// checksum only need to exist.
func (c *Cache) VerifyChecksum(key string) (bool, error) {
	cached, err := c.Get(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(cached.Path); err != nil {
		return false, nil
	}
	if cached.Checksum == "" {
		return true, nil
	}

	computed, err := ComputeSHA256(cached.Path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(computed, cached.Checksum), nil
}

// Clear removes all cached models and partial downloads.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.manifest.Models {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", m.Path, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(c.Dir, ".downloading")); err != nil {
		return fmt.Errorf("failed to clear partial downloads: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(c.Dir, ".downloading"), 0755); err != nil {
		return err
	}

	c.manifest.Models = nil
	return c.save()
}

// ModelPath returns where a file is stored once complete.
func (c *Cache) ModelPath(repo, revision, file string) string {
	return filepath.Join(c.Dir, "models--"+strings.ReplaceAll(repo, "/", "--"), revision, filepath.FromSlash(file))
}

// PartPath returns the temporary path used while downloading.
func (c *Cache) PartPath(repo, revision, file string) string {
	name := strings.NewReplacer("/", "--", "@", "--").Replace(Key(repo, revision, file))
	return filepath.Join(c.Dir, ".downloading", name+".part")
}

// CleanupPartial removes partial downloads older than maxAge.
func (c *Cache) CleanupPartial(maxAge time.Duration) (int, error) {
	dir := filepath.Join(c.Dir, ".downloading")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ComputeSHA256 computes the SHA256 checksum of a file
func ComputeSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
