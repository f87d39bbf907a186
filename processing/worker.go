package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging/consumer"
	"tenantlog/internal/models"
	"tenantlog/internal/redact"
	"tenantlog/storage/store"
)

// State is the position of one message in the pipeline.
type State string

const (
	StateReceived  State = "received"
	StateRedacting State = "redacting"
	StateWriting   State = "writing"
	StateAcked     State = "acked"
	StateFailed    State = "failed"
)

// ProcessingFailure is a failure after a message was received. It is never
// returned to an ingestion caller; the message is nacked and redelivered.
type ProcessingFailure struct {
	TenantID string
	LogID    string
	State    State // state in which the failure happened
	Err      error
}

func (e *ProcessingFailure) Error() string {
	return fmt.Sprintf("processing %s failed while %s: %v", models.NamespaceKey(e.TenantID, e.LogID), e.State, e.Err)
}

func (e *ProcessingFailure) Unwrap() error {
	return e.Err
}

// Stats summarizes the messages handled by a worker.
type Stats struct {
	Total                 int64
	Succeeded             int64
	Failed                int64
	AverageProcessingTime time.Duration
}

// Worker consumes records, redacts them and upserts the result.
type Worker struct {
	cfg       config.ProcessingConfig
	logger    *zap.Logger
	store     store.Store
	consumer  consumer.Consumer
	redactor  *redact.Redactor
	simulator WorkSimulator
	now       func() time.Time

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	busyNanos atomic.Int64
}

// Option customizes a Worker.
type Option func(*Worker)

// WithSimulator replaces the configured simulated work step.
func WithSimulator(s WorkSimulator) Option {
	return func(w *Worker) { w.simulator = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New creates a new Worker instance
func New(cfg config.ProcessingConfig, logger *zap.Logger, s store.Store, c consumer.Consumer, opts ...Option) *Worker {
	cfg.SetDefaults()
	w := &Worker{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		consumer:  c,
		redactor:  redact.New(),
		simulator: NewSimulator(cfg.ProcessingTimePerChar),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process runs one record through Received, Redacting and Writing. A nil
// error means the upsert committed and the caller may ack; the returned state
// is then StateWriting. On error the state is StateFailed.
func (w *Worker) Process(ctx context.Context, rec *models.IngestRecord) (state State, err error) {
	start := w.now()
	state = StateReceived

	ctx, cancel := context.WithTimeout(ctx, w.cfg.MaxProcessingTime)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &ProcessingFailure{TenantID: rec.TenantID, LogID: rec.LogID, State: state, Err: err}
			state = StateFailed
		}
	}()

	state = StateRedacting
	if err := w.simulator.Simulate(ctx, rec.Text); err != nil {
		return state, err
	}
	result := redact.Result{Text: rec.Text}
	if w.cfg.RedactionEnabled() {
		result = w.redactor.Apply(rec.Text)
	}

	state = StateWriting
	processedAt := w.now()
	doc := &models.ProcessedLog{
		TenantID:              rec.TenantID,
		LogID:                 rec.LogID,
		Source:                models.UploadSource(rec.Source),
		RedactedText:          result.Text,
		RedactionCount:        result.Count,
		CharacterCount:        len([]rune(rec.Text)),
		RequestID:             rec.RequestID,
		IngestedAt:            rec.ReceivedAt,
		ProcessedAt:           processedAt,
		ProcessingTimeSeconds: processedAt.Sub(start).Seconds(),
	}

	storeCtx, storeCancel := context.WithTimeout(ctx, w.cfg.StoreTimeout)
	defer storeCancel()
	if err := w.store.Upsert(storeCtx, rec.TenantID, rec.LogID, doc); err != nil {
		return state, err
	}
	return state, nil
}

// handle processes one delivery and settles it. Only a committed write is acked.
func (w *Worker) handle(ctx context.Context, rec *models.IngestRecord, ack, nack func()) State {
	start := time.Now()
	logger := w.logger.With(
		zap.String("tenant_id", rec.TenantID),
		zap.String("log_id", rec.LogID),
		zap.String("request_id", rec.RequestID))

	state, err := w.Process(ctx, rec)
	w.total.Add(1)
	w.busyNanos.Add(int64(time.Since(start)))

	if err != nil {
		w.failed.Add(1)
		logger.Error("processing failed, message left for redelivery", zap.String("state", string(state)), zap.Error(err))
		nack()
		return StateFailed
	}

	w.succeeded.Add(1)
	ack()
	logger.Debug("log processed", zap.String("state", string(StateAcked)), zap.Duration("elapsed", time.Since(start)))
	return StateAcked
}

// Run consumes until ctx is cancelled or the consumer reports
// consumer.ErrConsumerClosed, handling up to Concurrency messages at once.
// In-flight messages are allowed to finish afterwards, bounded by
// max_processing_time.
func (w *Worker) Run(ctx context.Context) error {
	pool, err := ants.NewPool(w.cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	w.logger.Info("starting worker pool",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Bool("pii_redaction", w.cfg.RedactionEnabled()))

	// Processing outlives shutdown so a started write can commit and ack.
	workCtx := context.WithoutCancel(ctx)

	handler := func(_ context.Context, rec *models.IngestRecord, ack, nack func()) {
		if err := pool.Submit(func() { w.handle(workCtx, rec, ack, nack) }); err != nil {
			w.logger.Warn("worker pool rejected message", zap.String("log_id", rec.LogID), zap.Error(err))
			nack()
		}
	}

	var runErr error
	for {
		err := consumer.Subscribe(ctx, w.consumer, handler)
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, consumer.ErrConsumerClosed) {
			w.logger.Error("consumer closed, stopping worker", zap.Error(err))
			runErr = err
			break
		}
		w.logger.Error("consumer error, retrying", zap.Error(err), zap.Duration("retry_delay", w.cfg.ConsumerRetryDelay))
		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.ConsumerRetryDelay):
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := pool.ReleaseTimeout(w.cfg.MaxProcessingTime); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		w.logger.Warn("worker pool did not drain in time", zap.Error(err))
	}

	stats := w.Stats()
	w.logger.Info("worker pool stopped",
		zap.Int64("total", stats.Total),
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed),
		zap.Duration("avg_processing_time", stats.AverageProcessingTime))
	return runErr
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	s := Stats{
		Total:     w.total.Load(),
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
	}
	if s.Total > 0 {
		s.AverageProcessingTime = time.Duration(w.busyNanos.Load() / s.Total)
	}
	return s
}
