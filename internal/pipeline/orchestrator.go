package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SourceFunc runs one complete forecast for a named source.
type SourceFunc func(ctx context.Context, source string) (*domain.RunSummary, error)

// SourceOutcome is the result of running one source.
type SourceOutcome struct {
	Source   string
	Summary  *domain.RunSummary
	Err      error
	Duration time.Duration
}

// Orchestrator coordinates running the engine over several sources (databases,
// file sets). A failing source never stops the others.
type Orchestrator struct {
	cfg PipelineConfig
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cfg PipelineConfig) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes fn for every source, at most SourceParallel at a time, and
// returns one outcome per source in input order.
func (o *Orchestrator) Run(ctx context.Context, sources []string, fn SourceFunc) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(sources))
	if len(sources) == 0 {
		return outcomes
	}

	limit := o.cfg.SourceParallel
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, source := range sources {
		i, source := i, source
		if gctx.Err() != nil {
			outcomes[i] = SourceOutcome{Source: source, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			start := time.Now()
			log.Info().Str("source", source).Msg("forecasting source")

			summary, err := fn(gctx, source)
			outcomes[i] = SourceOutcome{
				Source:   source,
				Summary:  summary,
				Err:      err,
				Duration: time.Since(start),
			}

			if err != nil {
				log.Error().Err(err).Str("source", source).Msg("source failed")
			} else {
				log.Info().
					Str("source", source).
					Dur("duration", outcomes[i].Duration).
					Msg("source finished")
			}
			// Failures are reported per source, not propagated to the group.
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}
