package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DownloadOptions controls how sales exports are pulled from Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
	Pattern     string // Optional filepath.Match pattern on the file name
}

// Downloader fetches CSV and XLSX sales exports into a local directory.
type Downloader struct {
	store FileStore
}

// NewDownloader creates a new Downloader.
func NewDownloader(store FileStore) *Downloader {
	return &Downloader{store: store}
}

// DownloadFolderCSV downloads every CSV and XLSX export in the folder and
// returns local CSV paths. XLSX files are converted (first sheet) and the
// downloaded workbook is removed.
func (d *Downloader) DownloadFolderCSV(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.store.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.MimeType == folderMimeType || !matches(f.Name, opts.Pattern) {
			continue
		}

		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".csv":
			path := filepath.Join(opts.DownloadDir, filepath.Base(f.Name))
			if err := d.fetch(ctx, f, path); err != nil {
				return nil, err
			}
			paths = append(paths, path)

		case ".xlsx":
			xlsxPath := filepath.Join(opts.DownloadDir, filepath.Base(f.Name))
			if err := d.fetch(ctx, f, xlsxPath); err != nil {
				return nil, err
			}
			csvPath := strings.TrimSuffix(xlsxPath, filepath.Ext(xlsxPath)) + ".csv"
			if err := convertXLSXToCSV(xlsxPath, csvPath); err != nil {
				return nil, fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
			}
			if err := os.Remove(xlsxPath); err != nil {
				log.Warn().Err(err).Str("file", xlsxPath).Msg("could not remove downloaded workbook")
			}
			paths = append(paths, csvPath)

		default:
			log.Debug().Str("file", f.Name).Msg("skipping non-sales export")
		}
	}

	log.Info().Str("folder", opts.FolderID).Int("files", len(paths)).Msg("downloaded sales exports")
	return paths, nil
}

func (d *Downloader) fetch(ctx context.Context, f *File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", path, err)
	}
	if err := d.store.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}

func matches(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
