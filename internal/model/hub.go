package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// DefaultAPITimeout bounds each metadata call. File downloads are not bounded.
const DefaultAPITimeout = 30 * time.Second

var (
	// ErrUnauthorized is returned when the hub rejects the credential.
	ErrUnauthorized = errors.New("hub rejected credential")
	// ErrNotFound is returned for an unknown repository, revision or file.
	ErrNotFound = errors.New("not found on hub")
)

// Hub is a minimal Hugging Face Hub API client.
type Hub struct {
	endpoint string
	token    string
	client   *http.Client

	// APITimeout bounds WhoAmI and ModelInfo; zero disables it.
	APITimeout time.Duration
}

// User is the identity behind a credential.
type User struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RepoInfo describes one revision of a model repository.
type RepoInfo struct {
	ID       string     `json:"id"`
	SHA      string     `json:"sha"`
	Gated    any        `json:"gated"`
	Private  bool       `json:"private"`
	Siblings []RepoFile `json:"siblings"`
}

// RepoFile is a file in a repository. LFS is set for large files and
// carries the content digest.
type RepoFile struct {
	Name string   `json:"rfilename"`
	Size int64    `json:"size"`
	LFS  *LFSInfo `json:"lfs,omitempty"`
}

type LFSInfo struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// SHA256 returns the advertised digest, or "" for non-LFS files.
func (f RepoFile) SHA256() string {
	if f.LFS == nil {
		return ""
	}
	return f.LFS.SHA256
}

// ExpectedSize prefers the LFS size, which is the real blob size.
func (f RepoFile) ExpectedSize() int64 {
	if f.LFS != nil && f.LFS.Size > 0 {
		return f.LFS.Size
	}
	return f.Size
}

// NewHub creates a hub client. token may be empty for public repositories.
func NewHub(endpoint, token string, client *http.Client) *Hub {
	if client == nil {
		client = &http.Client{}
	}
	return &Hub{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		client:     client,
		APITimeout: DefaultAPITimeout,
	}
}

// HasToken reports whether a credential is configured.
func (h *Hub) HasToken() bool {
	return h.token != ""
}

// WhoAmI validates the credential against the hub.
func (h *Hub) WhoAmI(ctx context.Context) (*User, error) {
	var u User
	if err := h.getJSON(ctx, h.endpoint+"/api/whoami-v2", &u); err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}
	return &u, nil
}

// ModelInfo lists the files of repo at revision, with sizes and digests.
func (h *Hub) ModelInfo(ctx context.Context, repo, revision string) (*RepoInfo, error) {
	u := fmt.Sprintf("%s/api/models/%s/revision/%s?blobs=true",
		h.endpoint, repo, url.PathEscape(revision))

	var info RepoInfo
	if err := h.getJSON(ctx, u, &info); err != nil {
		return nil, fmt.Errorf("model info %s@%s: %w", repo, revision, err)
	}
	return &info, nil
}

// FileURL builds the download URL for a file in repo at revision.
func (h *Hub) FileURL(repo, revision, file string) string {
	return h.endpoint + "/" + path.Join(repo, "resolve", url.PathEscape(revision), file)
}

// newRequest builds an authenticated GET request.
func (h *Hub) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("User-Agent", "vsmserve")
	return req, nil
}

func (h *Hub) getJSON(ctx context.Context, u string, out interface{}) error {
	if h.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.APITimeout)
		defer cancel()
	}
	req, err := h.newRequest(ctx, u)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError maps hub status codes to sentinel errors.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w (status %d)", ErrNotFound, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// ResolveFile picks filename from the repository, or when filename is
// empty the only GGUF file in it.
func ResolveFile(info *RepoInfo, filename string) (*RepoFile, error) {
	if filename != "" {
		for i := range info.Siblings {
			if info.Siblings[i].Name == filename {
				return &info.Siblings[i], nil
			}
		}
		return nil, fmt.Errorf("file %s in %s: %w", filename, info.ID, ErrNotFound)
	}

	var ggufs []*RepoFile
	for i := range info.Siblings {
		if strings.HasSuffix(strings.ToLower(info.Siblings[i].Name), ".gguf") {
			ggufs = append(ggufs, &info.Siblings[i])
		}
	}

	switch len(ggufs) {
	case 0:
		return nil, fmt.Errorf("no .gguf file in %s: %w", info.ID, ErrNotFound)
	case 1:
		return ggufs[0], nil
	default:
		names := make([]string, len(ggufs))
		for i, f := range ggufs {
			names[i] = f.Name
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%s has %d GGUF files, set model.file to one of: %s",
			info.ID, len(ggufs), strings.Join(names, ", "))
	}
}
