package loaders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/df07/go-batch-renderer/pkg/scene"
)

// ErrModelNotFound is returned when a model is neither cached nor fetchable
var ErrModelNotFound = errors.New("model not found")

// Fetcher downloads a model file into the cache
type Fetcher interface {
	// Fetch writes the object stored under key to dst. Missing objects
	// must be reported with an error wrapping ErrModelNotFound.
	Fetch(ctx context.Context, key, dst string) error
}

// ModelPath returns <cacheDir>/<id>.fbx after validating the id
func ModelPath(cacheDir, id string) (string, error) {
	if err := validateModelID(id); err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, id+scene.ModelExtension), nil
}

// ModelKey is the object storage key for a model id
func ModelKey(id string) string {
	return "models/" + id + scene.ModelExtension
}

// validateModelID keeps ids from escaping the cache directory
func validateModelID(id string) error {
	if id == "" {
		return fmt.Errorf("model id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid model id %q: path separators not allowed", id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("invalid model id %q: directory traversal not allowed", id)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("invalid model id %q", id)
	}
	return nil
}

// Resolver maps model ids to files in the local cache, filling it from
// object storage when a Fetcher is configured
type Resolver struct {
	CacheDir string
	Fetcher  Fetcher // Optional
}

// NewResolver creates a resolver for cacheDir
func NewResolver(cacheDir string, fetcher Fetcher) *Resolver {
	return &Resolver{CacheDir: cacheDir, Fetcher: fetcher}
}

// Resolve returns the path of a cached model, fetching it first if needed
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	path, err := ModelPath(r.CacheDir, id)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("model path %s is a directory", path)
		}
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking model %s: %w", path, err)
	}

	if r.Fetcher == nil {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err := os.MkdirAll(r.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	if err := r.Fetcher.Fetch(ctx, ModelKey(id), path); err != nil {
		return "", fmt.Errorf("fetching model %s: %w", id, err)
	}
	return path, nil
}

// Locator is implemented by fetchers that can check for a model without downloading it
type Locator interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Location says where a model can be found
type Location string

const (
	LocationCached  Location = "cached"
	LocationRemote  Location = "remote"
	LocationMissing Location = "missing"
)

// Locate reports whether a model is cached, available from object storage
// or missing, without fetching it
func (r *Resolver) Locate(ctx context.Context, id string) (Location, error) {
	path, err := ModelPath(r.CacheDir, id)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return LocationCached, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking model %s: %w", path, err)
	}

	locator, ok := r.Fetcher.(Locator)
	if !ok {
		return LocationMissing, nil
	}
	found, err := locator.Exists(ctx, ModelKey(id))
	if err != nil {
		return "", fmt.Errorf("looking up model %s: %w", id, err)
	}
	if found {
		return LocationRemote, nil
	}
	return LocationMissing, nil
}
