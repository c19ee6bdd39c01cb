package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotCached is returned in offline mode when no usable cache entry exists.
var ErrNotCached = errors.New("model not in cache")

// LoaderOptions selects the artifact to make available locally.
type LoaderOptions struct {
	Repo     string
	File     string
	Revision string
	Offline  bool
}

// Loader makes sure the configured model file is present in the cache.
type Loader struct {
	hub        *Hub
	cache      *Cache
	downloader *Downloader
	opts       LoaderOptions
	log        logrus.FieldLogger
}

// NewLoader wires a loader. progress may be nil.
func NewLoader(hub *Hub, cache *Cache, opts LoaderOptions, progress ProgressFunc, log logrus.FieldLogger) *Loader {
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	dl := NewDownloader(hub, cache)
	dl.Progress = progress
	return &Loader{
		hub:        hub,
		cache:      cache,
		downloader: dl,
		opts:       opts,
		log:        log.WithField("repo", opts.Repo),
	}
}

// Ensure authenticates, resolves the artifact and returns a verified local
// copy, downloading it when the cache has none.
func (l *Loader) Ensure(ctx context.Context) (*CachedModel, error) {
	if l.opts.Offline {
		return l.fromCache()
	}

	if l.hub.HasToken() {
		user, err := l.hub.WhoAmI(ctx)
		if err != nil {
			return nil, fmt.Errorf("authenticating to hub: %w", err)
		}
		l.log.WithField("user", user.Name).Info("Authenticated to model hub")
	} else {
		l.log.Warn("No hub token configured, only public models can be fetched")
	}

	info, err := l.hub.ModelInfo(ctx, l.opts.Repo, l.opts.Revision)
	if err != nil {
		return nil, err
	}

	file, err := ResolveFile(info, l.opts.File)
	if err != nil {
		return nil, err
	}
	log := l.log.WithFields(logrus.Fields{"file": file.Name, "revision": l.opts.Revision})

	key := Key(l.opts.Repo, l.opts.Revision, file.Name)
	if cached, ok := l.cacheHit(key, file); ok {
		log.Info("Using cached model")
		return cached, nil
	}

	log.WithField("size", file.ExpectedSize()).Info("Downloading model")
	cached, err := l.downloader.Download(ctx, l.opts.Repo, l.opts.Revision, file)
	if err != nil {
		return nil, err
	}
	log.WithField("path", cached.Path).Info("Model downloaded")
	return cached, nil
}

// cacheHit accepts an entry whose recorded digest matches the hub's and
// whose bytes still hash to it.
func (l *Loader) cacheHit(key string, file *RepoFile) (*CachedModel, bool) {
	cached, err := l.cache.Get(key)
	if err != nil {
		return nil, false
	}
	if want := file.SHA256(); want != "" && !strings.EqualFold(cached.Checksum, want) {
		l.log.WithField("file", file.Name).Info("Cached model is outdated")
		return nil, false
	}
	valid, err := l.cache.VerifyChecksum(key)
	if err != nil || !valid {
		l.log.WithField("file", file.Name).Warn("Cached model failed verification, downloading again")
		if err := l.cache.Remove(key); err != nil {
			l.log.WithError(err).Warn("Failed to remove invalid cache entry")
		}
		return nil, false
	}
	if err := l.cache.Touch(key); err != nil {
		l.log.WithError(err).Debug("Failed to update last used time")
	}
	return cached, true
}

func (l *Loader) fromCache() (*CachedModel, error) {
	var matches []CachedModel
	for _, m := range l.cache.List() {
		if m.Repo != l.opts.Repo || m.Revision != l.opts.Revision {
			continue
		}
		if l.opts.File != "" && m.File != l.opts.File {
			continue
		}
		matches = append(matches, m)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%s@%s: %w (offline mode)", l.opts.Repo, l.opts.Revision, ErrNotCached)
	case 1:
	default:
		return nil, fmt.Errorf("%s@%s has %d cached files, set model.file", l.opts.Repo, l.opts.Revision, len(matches))
	}

	m := matches[0]
	valid, err := l.cache.VerifyChecksum(m.ID())
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("cached %s failed verification: %w", m.ID(), ErrNotCached)
	}
	l.log.WithField("file", m.File).Info("Using cached model (offline)")
	return &m, nil
}
