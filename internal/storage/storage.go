package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the pipeline needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// ObjectKey builds <prefix>/<source>/<YYYY>/<MM>/<file>.
func ObjectKey(prefix, source string, at time.Time, filename string) string {
	return path.Join(prefix, source, at.Format("2006"), at.Format("01"), filepath.Base(filename))
}

// UploadCallback returns a flush callback that copies a finished CSV into the
// store. A nil store yields nil so callers can pass it straight through.
func UploadCallback(store ObjectStorage, prefix, source string) func(ctx context.Context, csvPath string) error {
	if store == nil {
		return nil
	}

	return func(ctx context.Context, csvPath string) error {
		data, err := os.ReadFile(csvPath)
		if err != nil {
			return fmt.Errorf("failed reading %s for upload: %w", csvPath, err)
		}

		key := ObjectKey(prefix, source, time.Now(), csvPath)
		if err := store.UploadObject(ctx, key, data); err != nil {
			return fmt.Errorf("failed uploading %s: %w", key, err)
		}

		log.Info().Str("key", key).Int("bytes", len(data)).Msg("uploaded forecast results")
		return nil
	}
}
