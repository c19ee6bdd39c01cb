package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	fakeRepo  = "acme/vsm"
	fakeToken = "hf_test_token"
)

// fakeHub serves the subset of the hub API the loader uses.
type fakeHub struct {
	*httptest.Server

	mu        sync.Mutex
	files     map[string][]byte
	badSHA    map[string]bool
	private   bool
	downloads int
	ranges    []string
	// cut, when > 0, truncates the next download body after that many bytes
	cut int
}

func newFakeHub(t *testing.T, files map[string][]byte) *fakeHub {
	t.Helper()
	h := &fakeHub{files: files, badSHA: map[string]bool{}}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Close)
	return h
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (h *fakeHub) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+fakeToken
}

func (h *fakeHub) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := r.URL.Path
	switch {
	case p == "/api/whoami-v2":
		if !h.authorized(r) {
			http.Error(w, `{"error":"Invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"name": "tester", "type": "user"})

	case strings.HasPrefix(p, "/api/models/"):
		rest := strings.TrimPrefix(p, "/api/models/")
		repo, _, ok := strings.Cut(rest, "/revision/")
		if !ok || repo != fakeRepo {
			http.Error(w, `{"error":"Repository not found"}`, http.StatusNotFound)
			return
		}
		if h.private && !h.authorized(r) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		info := RepoInfo{ID: fakeRepo, SHA: "abc123"}
		for name, data := range h.files {
			digest := sha(data)
			if h.badSHA[name] {
				digest = strings.Repeat("0", 64)
			}
			info.Siblings = append(info.Siblings, RepoFile{
				Name: name,
				Size: int64(len(data)),
				LFS:  &LFSInfo{SHA256: digest, Size: int64(len(data))},
			})
		}
		info.Siblings = append(info.Siblings, RepoFile{Name: "README.md", Size: 12})
		json.NewEncoder(w).Encode(info)

	case strings.HasPrefix(p, "/"+fakeRepo+"/resolve/"):
		if h.private && !h.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		rest := strings.TrimPrefix(p, "/"+fakeRepo+"/resolve/")
		_, name, _ := strings.Cut(rest, "/")
		data, ok := h.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.downloads++
		h.ranges = append(h.ranges, r.Header.Get("Range"))
		if h.cut > 0 {
			w.WriteHeader(http.StatusOK)
			w.Write(data[:h.cut])
			h.cut = 0
			return
		}
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))

	default:
		http.NotFound(w, r)
	}
}

func (h *fakeHub) stats() (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.downloads, append([]string(nil), h.ranges...)
}
