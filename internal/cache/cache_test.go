package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/errkind"
)

type sample struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	blob, err := c.Put("key1", sample{Name: "acme", N: 3})
	require.NoError(t, err)
	assert.Equal(t, "key1", blob.CacheKey)
	assert.Greater(t, blob.UncompressedSize, int64(0))

	var out sample
	require.NoError(t, c.Get("key1", &out))
	assert.Equal(t, "acme", out.Name)
	assert.Equal(t, 3, out.N)
}

func TestGetMissingKeyReturnsIOUnavailable(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	var out sample
	err = c.Get("does-not-exist", &out)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.IOUnavailable))
}

func TestPathForRejectsTraversal(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	_, err = c.Put("../escape", sample{Name: "x"})
	assert.Error(t, err)

	_, err = c.Put("nested/key", sample{Name: "x"})
	assert.Error(t, err)
}

func TestGetExpiredBlobFails(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{Dir: dir, MaxAge: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Put("key1", sample{Name: "x"})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	var out sample
	err = c.Get("key1", &out)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.IOUnavailable))
}

func TestGetCorruptBlobQuarantines(t *testing.T) {
	dir := t.TempDir()
	c, err := New(DefaultConfig(dir))
	require.NoError(t, err)

	_, err = c.Put("key1", sample{Name: "x"})
	require.NoError(t, err)

	path, err := c.pathFor("key1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not gzip data"), 0o644))

	var out sample
	err = c.Get("key1", &out)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.CorruptBlob))

	_, statErr := os.Stat(path + ".corrupt")
	assert.NoError(t, statErr)
}

func TestDeleteRemovesBlobAndIsIdempotent(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	_, err = c.Put("key1", sample{Name: "x"})
	require.NoError(t, err)

	require.NoError(t, c.Delete("key1"))
	require.NoError(t, c.Delete("key1")) // missing file is not an error
}

func TestKeysListsStoredBlobs(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	_, err = c.Put("key1", sample{Name: "x"})
	require.NoError(t, err)
	_, err = c.Put("key2", sample{Name: "y"})
	require.NoError(t, err)

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"key1", "key2"}, keys)
}

func TestAgeReflectsWriteRecency(t *testing.T) {
	c, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	_, err = c.Put("key1", sample{Name: "x"})
	require.NoError(t, err)

	age, err := c.Age("key1")
	require.NoError(t, err)
	assert.Less(t, age, 5*time.Second)
}

func TestCompressionRatioZeroWhenUncompressedEmpty(t *testing.T) {
	b := Blob{}
	assert.Equal(t, 0.0, b.CompressionRatio())
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	_, err := New(DefaultConfig(dir))
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
