package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

func TestProcessBatchVisitsEveryIndex(t *testing.T) {
	w := NewWorker(PipelineConfig{Name: "test", WorkerCount: 4, ProgressEvery: 3})
	seen := make([]int32, 50)

	scheduled := w.ProcessBatch(context.Background(), len(seen), func(ctx context.Context, workerID, i int) {
		atomic.AddInt32(&seen[i], 1)
	})

	for i := range seen {
		assert.Equal(t, int32(1), seen[i], "index %d", i)
		assert.True(t, scheduled[i])
	}
}

func TestProcessBatchStopsSchedulingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(PipelineConfig{Name: "test", WorkerCount: 1})
	var ran atomic.Int32

	scheduled := w.ProcessBatch(ctx, 10, func(ctx context.Context, workerID, i int) {
		ran.Add(1)
		if i == 2 {
			cancel()
		}
	})

	count := 0
	for _, s := range scheduled {
		if s {
			count++
		}
	}
	assert.Equal(t, int(ran.Load()), count)
	assert.Less(t, count, 10)
	assert.True(t, scheduled[0])
}

func TestProcessBatchEmpty(t *testing.T) {
	w := NewWorker(PipelineConfig{})
	assert.Empty(t, w.ProcessBatch(context.Background(), 0, func(context.Context, int, int) {
		t.Fatal("unexpected call")
	}))
}

func TestOrchestratorRunsEverySource(t *testing.T) {
	o := NewOrchestrator(PipelineConfig{SourceParallel: 2})

	var mu sync.Mutex
	var calls []string
	outcomes := o.Run(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, source string) (*domain.RunSummary, error) {
		mu.Lock()
		calls = append(calls, source)
		mu.Unlock()
		if source == "b" {
			return nil, errors.New("down")
		}
		return &domain.RunSummary{Source: source}, nil
	})

	require.Len(t, outcomes, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, "a", outcomes[0].Summary.Source)
	assert.Error(t, outcomes[1].Err)
	assert.Equal(t, "c", outcomes[2].Summary.Source)
}

func TestOrchestratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := NewOrchestrator(PipelineConfig{}).Run(ctx, []string{"a", "b"}, func(context.Context, string) (*domain.RunSummary, error) {
		return &domain.RunSummary{}, nil
	})
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func testResult(loc int64) domain.ReplenishmentResult {
	return domain.ReplenishmentResult{
		LocationID:     loc,
		ItemID:         10,
		VariationID:    100,
		ItemName:       "Tea, green",
		ReorderLevel:   70,
		ReplenishLevel: 140,
		ZScore:         1.65,
		DemandLT:       70,
		SigmaLT:        1,
		Method:         domain.MethodFallbackInsufficient,
	}
}

func TestStreamingWriter(t *testing.T) {
	cfg := PipelineConfig{BatchSize: 2, OutputDir: t.TempDir()}
	var uploaded string
	sw := NewStreamingWriter(cfg, "shop", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), func(ctx context.Context, path string) error {
		uploaded = path
		return nil
	})
	assert.True(t, strings.HasSuffix(sw.Path(), "forecast_shop_20240701.csv"))

	require.NoError(t, sw.Add(testResult(1)))
	buffered, written := sw.GetBufferStats()
	assert.Equal(t, 1, buffered)
	assert.Equal(t, 0, written)

	require.NoError(t, sw.Add(testResult(2), testResult(3)))
	_, written = sw.GetBufferStats()
	assert.Equal(t, 3, written)

	require.NoError(t, sw.Finalize(context.Background()))
	assert.Equal(t, sw.Path(), uploaded)

	data, err := os.ReadFile(sw.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(ResultColumns, ","), lines[0])
	assert.Equal(t, `1,10,100,"Tea, green",,70,140,false,1.65,70.0000,1.0000,fallback_insufficient_history`, lines[1])
}

func TestStreamingWriterEmptyRunWritesHeader(t *testing.T) {
	sw := NewStreamingWriter(PipelineConfig{BatchSize: 10, OutputDir: t.TempDir()}, "empty", time.Now(), nil)
	require.NoError(t, sw.Finalize(context.Background()))

	data, err := os.ReadFile(sw.Path())
	require.NoError(t, err)
	assert.Equal(t, strings.Join(ResultColumns, ",")+"\n", string(data))
}

func TestStreamingWriterCallbackError(t *testing.T) {
	sw := NewStreamingWriter(PipelineConfig{BatchSize: 10, OutputDir: t.TempDir()}, "s", time.Now(), func(context.Context, string) error {
		return errors.New("upload failed")
	})
	require.NoError(t, sw.Add(testResult(1)))
	assert.ErrorContains(t, sw.Finalize(context.Background()), "upload failed")
}
