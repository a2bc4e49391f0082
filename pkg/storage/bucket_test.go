package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/loaders"
)

// fakeS3 serves a path-style bucket from memory
type fakeS3 struct {
	bucket  string
	mu      sync.Mutex
	objects map[string]string
	gets    int
	puts    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket+"/")
	if !ok {
		http.Error(w, "wrong bucket", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		f.gets++
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		io.WriteString(w, body)
	case http.MethodPut:
		io.Copy(io.Discard, r.Body)
		f.puts = append(f.puts, key)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeS3) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func newTestBucket(t *testing.T, objects map[string]string) (*Bucket, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "assets", objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewBucket(context.Background(), config.StorageConfig{
		Bucket:          "assets",
		Endpoint:        srv.URL,
		Region:          "auto",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		PathStyle:       true,
	})
	require.NoError(t, err)
	return b, fake
}

func TestBucket_Exists(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBucket(t, map[string]string{"models/chair.fbx": "fbx"})

	found, err := b.Exists(ctx, "models/chair.fbx")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = b.Exists(ctx, "models/ghost.fbx")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBucket_Fetch(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBucket(t, map[string]string{"models/chair.fbx": "fbx-bytes"})
	dir := t.TempDir()

	dst := filepath.Join(dir, "chair.fbx")
	require.NoError(t, b.Fetch(ctx, "models/chair.fbx", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "fbx-bytes", string(data))

	err = b.Fetch(ctx, "models/ghost.fbx", filepath.Join(dir, "ghost.fbx"))
	assert.ErrorIs(t, err, loaders.ErrModelNotFound)
	_, err = os.Stat(filepath.Join(dir, "ghost.fbx"))
	assert.True(t, os.IsNotExist(err), "a failed fetch leaves nothing in the cache")
}

func TestBucket_WithResolver(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBucket(t, map[string]string{"models/chair.fbx": "fbx"})
	models := loaders.NewResolver(t.TempDir(), b)

	loc, err := models.Locate(ctx, "chair")
	require.NoError(t, err)
	assert.Equal(t, loaders.LocationRemote, loc)
	assert.Zero(t, fake.getCount(), "locating does not download")

	loc, err = models.Locate(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, loaders.LocationMissing, loc)

	path, err := models.Resolve(ctx, "chair")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.getCount())

	loc, err = models.Locate(ctx, "chair")
	require.NoError(t, err)
	assert.Equal(t, loaders.LocationCached, loc)
	assert.FileExists(t, path)
}

func TestBucket_UploadDir(t *testing.T) {
	b, fake := newTestBucket(t, map[string]string{})
	dir := t.TempDir()
	for _, name := range []string{"m1_1.png", "m1_2.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("png"), 0644))
	}

	keys, err := b.UploadDir(context.Background(), dir, RenderPrefix("m1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"renders/m1/m1_1.png", "renders/m1/m1_2.png"}, keys)
	assert.Equal(t, keys, fake.putKeys())
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "frames"), 0755))
	for _, name := range []string{"b.png", "a.png", "frames/0001.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	files, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png", "frames/0001.png"}, files)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "renders/abc", RenderPrefix("abc"))
	assert.Equal(t, "renders/abc/abc_1.png", ObjectKey(RenderPrefix("abc"), "abc_1.png"))
	assert.Equal(t, "renders/abc/frames/0001.png", ObjectKey("renders/abc/", "frames/0001.png"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a/b_1.png"))
	assert.Equal(t, "image/jpeg", ContentType("x.jpg"))
	assert.Equal(t, "application/octet-stream", ContentType("x.blend"))
}
