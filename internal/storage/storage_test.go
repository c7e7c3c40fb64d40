package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "replenishment/store_a/2024/07/forecast_store_a_20240703.csv",
		ObjectKey("replenishment", "store_a", at, "/tmp/out/forecast_store_a_20240703.csv"))
	assert.Equal(t, "store_a/2024/07/x.csv", ObjectKey("", "store_a", at, "x.csv"))
}

func TestUploadCallback(t *testing.T) {
	assert.Nil(t, UploadCallback(nil, "p", "s"))

	store := NewLocalStorage(t.TempDir())
	csvPath := filepath.Join(t.TempDir(), "forecast_s_20240101.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("location_id\n1\n"), 0o644))

	cb := UploadCallback(store, "prefix", "s")
	require.NoError(t, cb(context.Background(), csvPath))

	objects, err := store.ListObjects(context.Background(), "prefix/s/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(len("location_id\n1\n")), objects[0].Size)

	dest := filepath.Join(t.TempDir(), "copy.csv")
	require.NoError(t, store.DownloadObject(context.Background(), objects[0].Key, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "location_id\n1\n", string(data))

	assert.Error(t, cb(context.Background(), filepath.Join(t.TempDir(), "missing.csv")))
}

func TestLocalStorageKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStorage(root)
	require.NoError(t, store.UploadObject(context.Background(), "../../escape.csv", []byte("x")))
	assert.FileExists(t, filepath.Join(root, "escape.csv"))
}

func TestNewMinioClientValidation(t *testing.T) {
	_, err := NewMinioClient(context.Background(), minioConfig("", "a", "s", "b"))
	assert.ErrorContains(t, err, "endpoint")
	_, err = NewMinioClient(context.Background(), minioConfig("localhost:9000", "", "s", "b"))
	assert.ErrorContains(t, err, "credentials")
	_, err = NewMinioClient(context.Background(), minioConfig("localhost:9000", "a", "s", ""))
	assert.ErrorContains(t, err, "bucket")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a/b.CSV"))
	assert.Equal(t, "application/octet-stream", contentType("a/b.json"))
}
