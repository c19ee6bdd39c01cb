package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhoAmI(t *testing.T) {
	hub := newFakeHub(t, nil)

	user, err := NewHub(hub.URL, fakeToken, nil).WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tester", user.Name)

	_, err = NewHub(hub.URL, "hf_wrong", nil).WhoAmI(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotContains(t, err.Error(), "hf_wrong", "errors must not echo the token")
}

func TestModelInfo(t *testing.T) {
	hub := newFakeHub(t, map[string][]byte{"vsm.Q4_K_M.gguf": []byte("weights")})
	client := NewHub(hub.URL+"/", "", nil)

	info, err := client.ModelInfo(context.Background(), fakeRepo, "main")
	require.NoError(t, err)
	assert.Equal(t, fakeRepo, info.ID)
	assert.Len(t, info.Siblings, 2)

	_, err = client.ModelInfo(context.Background(), "acme/missing", "main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataCallsTimeOut(t *testing.T) {
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer stalled.Close()

	hub := NewHub(stalled.URL, fakeToken, nil)
	assert.Equal(t, DefaultAPITimeout, hub.APITimeout)
	hub.APITimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := hub.WhoAmI(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = hub.ModelInfo(context.Background(), fakeRepo, "main")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestModelInfoPrivate(t *testing.T) {
	hub := newFakeHub(t, map[string][]byte{"vsm.gguf": []byte("weights")})
	hub.private = true

	_, err := NewHub(hub.URL, "", nil).ModelInfo(context.Background(), fakeRepo, "main")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewHub(hub.URL, fakeToken, nil).ModelInfo(context.Background(), fakeRepo, "main")
	assert.NoError(t, err)
}

func TestFileURL(t *testing.T) {
	h := NewHub("https://hub.example/", "", nil)
	assert.Equal(t,
		"https://hub.example/acme/vsm/resolve/main/sub/model.gguf",
		h.FileURL("acme/vsm", "main", "sub/model.gguf"))
}

func TestResolveFile(t *testing.T) {
	one := &RepoInfo{ID: "r", Siblings: []RepoFile{
		{Name: "README.md"}, {Name: "config.json"}, {Name: "vsm.Q8_0.GGUF"},
	}}
	many := &RepoInfo{ID: "r", Siblings: []RepoFile{
		{Name: "b.gguf"}, {Name: "a.gguf"},
	}}
	none := &RepoInfo{ID: "r", Siblings: []RepoFile{{Name: "model.safetensors"}}}

	f, err := ResolveFile(one, "")
	require.NoError(t, err)
	assert.Equal(t, "vsm.Q8_0.GGUF", f.Name)

	f, err = ResolveFile(many, "b.gguf")
	require.NoError(t, err)
	assert.Equal(t, "b.gguf", f.Name)

	_, err = ResolveFile(many, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.gguf, b.gguf")

	_, err = ResolveFile(none, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ResolveFile(one, "missing.gguf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoFileDigest(t *testing.T) {
	plain := RepoFile{Name: "README.md", Size: 10}
	assert.Empty(t, plain.SHA256())
	assert.EqualValues(t, 10, plain.ExpectedSize())

	lfs := RepoFile{Name: "m.gguf", Size: 134, LFS: &LFSInfo{SHA256: "ab", Size: 4096}}
	assert.Equal(t, "ab", lfs.SHA256())
	assert.EqualValues(t, 4096, lfs.ExpectedSize())
}
