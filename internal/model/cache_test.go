package model

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func addFile(t *testing.T, c *Cache, file string, content []byte, checksum string) *CachedModel {
	t.Helper()
	path := c.ModelPath(fakeRepo, "main", file)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	m, err := c.Add(fakeRepo, "main", file, path, checksum)
	if err != nil {
		t.Fatalf("Failed to add model to cache: %v", err)
	}
	return m
}

func TestNewCache(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewCache(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	if c.Dir != tmpDir {
		t.Errorf("Expected cache dir %s, got %s", tmpDir, c.Dir)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "manifest.json")); os.IsNotExist(err) {
		t.Error("Manifest file was not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".downloading")); os.IsNotExist(err) {
		t.Error("Download directory was not created")
	}
}

func TestNewCacheCorruptManifest(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "manifest.json"), []byte("{not json"), 0644)

	if _, err := NewCache(tmpDir); err == nil {
		t.Error("Expected error for corrupt manifest")
	}
}

func TestCacheAddAndGet(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	content := []byte("test model data")
	addFile(t, c, "vsm.gguf", content, "abc123")

	key := Key(fakeRepo, "main", "vsm.gguf")
	if !c.Has(key) {
		t.Error("Model should be in cache")
	}

	cached, err := c.Get(key)
	if err != nil {
		t.Fatalf("Failed to get model from cache: %v", err)
	}
	if cached.ID() != "acme/vsm@main/vsm.gguf" {
		t.Errorf("Unexpected ID %s", cached.ID())
	}
	if cached.Checksum != "abc123" {
		t.Errorf("Expected checksum abc123, got %s", cached.Checksum)
	}
	if cached.SizeBytes != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), cached.SizeBytes)
	}

	// Replacing keeps a single entry
	addFile(t, c, "vsm.gguf", []byte("new"), "def456")
	if len(c.List()) != 1 {
		t.Errorf("Expected 1 entry after re-add, got %d", len(c.List()))
	}
}

func TestCachePersists(t *testing.T) {
	tmpDir := t.TempDir()
	c, _ := NewCache(tmpDir)
	addFile(t, c, "vsm.gguf", []byte("data"), "")

	reopened, err := NewCache(tmpDir)
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	if !reopened.Has(Key(fakeRepo, "main", "vsm.gguf")) {
		t.Error("Entry should survive reopening the cache")
	}
}

func TestCacheRemove(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	m := addFile(t, c, "vsm.gguf", []byte("test"), "")

	if err := c.Remove(m.ID()); err != nil {
		t.Fatalf("Failed to remove model: %v", err)
	}
	if c.Has(m.ID()) {
		t.Error("Model should not be in cache after removal")
	}
	if _, err := os.Stat(m.Path); !os.IsNotExist(err) {
		t.Error("Model file should be deleted")
	}
	if err := c.Remove(m.ID()); err == nil {
		t.Error("Removing a missing entry should fail")
	}
}

func TestCacheListAndTotalSize(t *testing.T) {
	c, _ := NewCache(t.TempDir())

	if len(c.List()) != 0 {
		t.Error("Expected empty cache")
	}

	sizes := []int{300, 100, 200}
	for i, size := range sizes {
		addFile(t, c, fmt.Sprintf("vsm-%d.gguf", i), make([]byte, size), "")
	}

	models := c.List()
	if len(models) != 3 {
		t.Fatalf("Expected 3 models, got %d", len(models))
	}
	if models[0].File != "vsm-0.gguf" || models[2].File != "vsm-2.gguf" {
		t.Errorf("List should be sorted by key: %v", models)
	}
	if total := c.TotalSize(); total != 600 {
		t.Errorf("Expected total size 600, got %d", total)
	}
}

func TestCacheTouch(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	m := addFile(t, c, "vsm.gguf", []byte("test"), "")

	time.Sleep(10 * time.Millisecond)
	if err := c.Touch(m.ID()); err != nil {
		t.Fatalf("Failed to touch: %v", err)
	}

	cached, _ := c.Get(m.ID())
	if !cached.LastUsed.After(m.LastUsed) {
		t.Error("Last used time should be updated")
	}
	if err := c.Touch("acme/other@main/x.gguf"); err == nil {
		t.Error("Touching a missing entry should fail")
	}
}

func TestCacheVerifyChecksum(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	content := []byte("verified content")

	good := addFile(t, c, "good.gguf", content, sha(content))
	if ok, err := c.VerifyChecksum(good.ID()); err != nil || !ok {
		t.Errorf("Expected valid checksum, got %v %v", ok, err)
	}

	bad := addFile(t, c, "bad.gguf", content, sha([]byte("other")))
	if ok, _ := c.VerifyChecksum(bad.ID()); ok {
		t.Error("Expected checksum mismatch")
	}

	none := addFile(t, c, "none.gguf", content, "")
	if ok, _ := c.VerifyChecksum(none.ID()); !ok {
		t.Error("Entries without checksum only need to exist")
	}

	os.Remove(none.Path)
	if ok, _ := c.VerifyChecksum(none.ID()); ok {
		t.Error("Missing file must fail verification")
	}
}

func TestCacheClear(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	m := addFile(t, c, "vsm.gguf", []byte("test"), "")
	part := c.PartPath(fakeRepo, "main", "other.gguf")
	os.WriteFile(part, []byte("partial"), 0644)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if len(c.List()) != 0 {
		t.Error("Cache should be empty")
	}
	if _, err := os.Stat(m.Path); !os.IsNotExist(err) {
		t.Error("Model file should be deleted")
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Error("Partial download should be deleted")
	}
}

func TestCleanupPartial(t *testing.T) {
	c, _ := NewCache(t.TempDir())
	old := c.PartPath(fakeRepo, "main", "old.gguf")
	fresh := c.PartPath(fakeRepo, "main", "fresh.gguf")
	os.WriteFile(old, []byte("x"), 0644)
	os.WriteFile(fresh, []byte("x"), 0644)
	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, past, past)

	removed, err := c.CleanupPartial(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupPartial failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Fresh partial download should be kept")
	}
}

func TestPaths(t *testing.T) {
	c := &Cache{Dir: "/cache"}
	if got := c.ModelPath("acme/vsm", "main", "vsm.gguf"); got != filepath.FromSlash("/cache/models--acme--vsm/main/vsm.gguf") {
		t.Errorf("Unexpected model path %s", got)
	}
	if got := c.PartPath("acme/vsm", "main", "vsm.gguf"); got != filepath.FromSlash("/cache/.downloading/acme--vsm--main--vsm.gguf.part") {
		t.Errorf("Unexpected part path %s", got)
	}
}

func TestComputeSHA256(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	content := []byte("test content")
	os.WriteFile(testFile, content, 0644)

	checksum, err := ComputeSHA256(testFile)
	if err != nil {
		t.Fatalf("Failed to compute checksum: %v", err)
	}
	if checksum != sha(content) {
		t.Errorf("Unexpected checksum %s", checksum)
	}
	if _, err := ComputeSHA256(testFile + ".missing"); err == nil {
		t.Error("Expected error for missing file")
	}
}
