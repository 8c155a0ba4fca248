// Package pipeline feeds sensor readings from the message bus into the
// hazard event log.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Recorder appends a classified reading to a node's event log.
type Recorder interface {
	Append(ctx context.Context, tenantID, nodeID string, reading domain.SensorReading) (domain.ClassifiedEvent, error)
}

// Pipeline orchestrates the extract-record-commit loop.
type Pipeline struct {
	extractor BatchExtractor
	recorder  Recorder
	logger    *slog.Logger
	metrics   *observability.Metrics
	running   atomic.Bool
	batchSize int
}

// New creates a Pipeline.
func New(e BatchExtractor, r Recorder, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		recorder:  r,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness reports whether the consume loop is running.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("ingest pipeline is not running")
	}
	return nil
}

// Run executes the ingest loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-record cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ReadingsConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	for _, raw := range batch {
		if !p.record(ctx, raw, backoff) {
			return false
		}
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// record appends one reading, retrying store failures in place so offsets
// are only committed once the reading is durable or definitively rejected.
// Returns false if the pipeline should stop.
func (p *Pipeline) record(ctx context.Context, raw domain.RawMessage, backoff *time.Duration) bool {
	reading, err := DecodeReading(raw)
	if err != nil {
		p.skip(ctx, raw, err)
		return true
	}

	for {
		_, err := p.recorder.Append(ctx, reading.TenantID, reading.NodeID, domain.SensorReading{
			NodeType: reading.Type,
			Value:    *reading.Value,
		})
		switch {
		case err == nil:
			*backoff = initialBackoff
			p.commit(ctx, raw)
			return true
		case isRejection(err):
			p.skip(ctx, raw, err)
			return true
		}

		p.logger.Error("append reading failed, retrying",
			"error", err,
			"tenant_id", reading.TenantID,
			"node_id", reading.NodeID,
			"backoff", backoff.String(),
		)
		if !backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

func (p *Pipeline) skip(ctx context.Context, raw domain.RawMessage, err error) {
	p.logger.Warn("reading rejected, skipping message",
		"error", err,
		"topic", raw.Topic,
		"partition", raw.Partition,
		"offset", raw.Offset,
	)
	p.metrics.ReadingsFailed.Inc()
	p.commit(ctx, raw)
}

// commit commits the message offset if a commit function is available.
func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// isRejection reports whether err is a permanent verdict on the reading
// itself, as opposed to a transient store failure.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidReading)
}

func backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff)
	return true
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
