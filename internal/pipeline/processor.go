package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/applypilot/apply-cli/internal/dedup"
	"github.com/applypilot/apply-cli/internal/model"
	"github.com/applypilot/apply-cli/internal/store"
)

// Result summarizes a batch run.
type Result struct {
	Tracked    int64 `json:"tracked"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// Processor evaluates leads concurrently against the dedup core. Uniqueness
// under concurrency is the store's job: two workers racing on the same
// identity resolve to exactly one tracked record and one duplicate.
type Processor struct {
	detector    *dedup.Detector
	logger      *zap.Logger
	concurrency int
	limiter     *rate.Limiter
}

// NewProcessor builds a processor. pace <= 0 disables rate limiting.
func NewProcessor(detector *dedup.Detector, logger *zap.Logger, concurrency int, pace float64) *Processor {
	if logger == nil {
		logger = zap.L()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	var limiter *rate.Limiter
	if pace > 0 {
		limiter = rate.NewLimiter(rate.Limit(pace), 1)
	}
	return &Processor{
		detector:    detector,
		logger:      logger,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// Run checks and tracks every lead. Individual lead failures never abort the
// batch; they are counted and logged. Leads already seen are counted as
// duplicates and left untouched.
func (p *Processor) Run(ctx context.Context, leads []model.Lead, limit int) (*Result, error) {
	if len(leads) == 0 {
		p.logger.Info("no leads to process")
		return &Result{}, nil
	}
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}

	p.logger.Info("processing leads",
		zap.Int("leads", len(leads)),
		zap.Int("concurrency", p.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var res Result
	var tracked, duplicates, failed atomic.Int64

	for _, lead := range leads {
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return err // context canceled; stop the batch
				}
			}
			log := p.logger.With(
				zap.String("url", lead.URL),
				zap.String("company", lead.Company),
			)

			existing, err := p.detector.Check(gctx, lead)
			if err != nil {
				failed.Add(1)
				log.Error("duplicate check failed", zap.Error(err))
				return nil
			}
			if existing != nil {
				duplicates.Add(1)
				log.Info("skipping duplicate",
					zap.String("fingerprint", existing.Fingerprint),
					zap.String("status", string(existing.Status)),
				)
				return nil
			}

			rec, err := p.detector.Track(gctx, lead, model.SourceModeAutonomous, dedup.Artifacts{})
			if err != nil {
				// Lost a race with a concurrent worker on the same identity.
				if errors.Is(err, store.ErrDuplicateFingerprint) {
					duplicates.Add(1)
					log.Info("skipping duplicate (concurrent insert)")
					return nil
				}
				failed.Add(1)
				log.Error("tracking failed", zap.Error(err))
				return nil
			}

			tracked.Add(1)
			log.Info("lead tracked", zap.String("fingerprint", rec.Fingerprint))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: batch processing")
	}

	res.Tracked = tracked.Load()
	res.Duplicates = duplicates.Load()
	res.Failed = failed.Load()

	p.logger.Info("batch complete",
		zap.Int64("tracked", res.Tracked),
		zap.Int64("duplicates", res.Duplicates),
		zap.Int64("failed", res.Failed),
	)
	return &res, nil
}
