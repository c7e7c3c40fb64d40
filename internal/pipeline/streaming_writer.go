package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// ResultColumns is the stable CSV header for replenishment results.
var ResultColumns = []string{
	"location_id",
	"item_id",
	"variation_id",
	"item_name",
	"variation_name",
	"reorder_level",
	"replenish_level",
	"enough_history",
	"z_score",
	"demand_lt",
	"sigma_lt",
	"method",
}

// StreamingWriter buffers results and flushes them to a CSV file in batches.
// The flush callback runs once, after Finalize closes the file.
type StreamingWriter struct {
	config        PipelineConfig
	path          string
	buffer        []domain.ReplenishmentResult
	written       int
	file          *os.File
	writer        *csv.Writer
	mu            sync.Mutex
	flushCallback func(ctx context.Context, csvPath string) error
	lastFlush     time.Time
}

// NewStreamingWriter creates a writer for forecast_<source>_<date>.csv in config.OutputDir.
func NewStreamingWriter(
	config PipelineConfig,
	source string,
	date time.Time,
	flushCallback func(ctx context.Context, csvPath string) error,
) *StreamingWriter {
	batch := config.BatchSize
	if batch < 1 {
		batch = 1
	}
	return &StreamingWriter{
		config:        config,
		path:          filepath.Join(config.OutputDir, fmt.Sprintf("forecast_%s_%s.csv", source, date.Format("20060102"))),
		buffer:        make([]domain.ReplenishmentResult, 0, batch),
		flushCallback: flushCallback,
		lastFlush:     time.Now(),
	}
}

// Path returns the CSV file the writer produces.
func (sw *StreamingWriter) Path() string {
	return sw.path
}

// Add buffers results, flushing when the batch size or interval is reached.
func (sw *StreamingWriter) Add(results ...domain.ReplenishmentResult) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.buffer = append(sw.buffer, results...)

	shouldFlush := len(sw.buffer) >= sw.config.BatchSize ||
		(sw.config.FlushInterval > 0 && time.Since(sw.lastFlush) >= sw.config.FlushInterval)

	if shouldFlush {
		return sw.flushLocked()
	}

	return nil
}

// Finalize flushes any remaining results, closes the file and triggers the callback.
func (sw *StreamingWriter) Finalize(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.flushLocked(); err != nil {
		return err
	}
	// An empty run still yields a header-only file.
	if sw.file == nil {
		if err := sw.openLocked(); err != nil {
			return err
		}
	}

	sw.writer.Flush()
	if err := sw.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := sw.file.Close(); err != nil {
		return fmt.Errorf("failed to close CSV: %w", err)
	}
	sw.file = nil

	log.Info().Str("path", sw.path).Int("rows", sw.written).Msg("results written")

	if sw.flushCallback != nil {
		if err := sw.flushCallback(ctx, sw.path); err != nil {
			return fmt.Errorf("flush callback failed: %w", err)
		}
	}

	return nil
}

// flushLocked writes the current buffer to CSV
// Must be called with sw.mu locked
func (sw *StreamingWriter) flushLocked() error {
	if len(sw.buffer) == 0 {
		return nil
	}

	if sw.file == nil {
		if err := sw.openLocked(); err != nil {
			return err
		}
	}

	for _, r := range sw.buffer {
		if err := sw.writer.Write(ResultRecord(r)); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	}
	sw.writer.Flush()
	if err := sw.writer.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	sw.written += len(sw.buffer)
	sw.buffer = sw.buffer[:0]
	sw.lastFlush = time.Now()

	return nil
}

func (sw *StreamingWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(sw.path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(sw.path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}

	sw.file = file
	sw.writer = csv.NewWriter(file)
	if err := sw.writer.Write(ResultColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	return nil
}

// GetBufferStats returns the buffered and already written row counts
func (sw *StreamingWriter) GetBufferStats() (buffered int, written int) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.buffer), sw.written
}

// ResultRecord renders a result in ResultColumns order.
func ResultRecord(r domain.ReplenishmentResult) []string {
	return []string{
		strconv.FormatInt(r.LocationID, 10),
		strconv.FormatInt(r.ItemID, 10),
		strconv.FormatInt(r.VariationID, 10),
		r.ItemName,
		r.VariationName,
		strconv.FormatInt(r.ReorderLevel, 10),
		strconv.FormatInt(r.ReplenishLevel, 10),
		strconv.FormatBool(r.EnoughHistory),
		strconv.FormatFloat(r.ZScore, 'f', -1, 64),
		strconv.FormatFloat(r.DemandLT, 'f', 4, 64),
		strconv.FormatFloat(r.SigmaLT, 'f', 4, 64),
		string(r.Method),
	}
}
