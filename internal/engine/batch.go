package engine

import (
	"context"
	"time"

	"heart-risk/internal/explain"
	"heart-risk/internal/features"
	"heart-risk/internal/ml"
	"heart-risk/internal/risk"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	StatusReceived   BatchStatus = "RECEIVED"
	StatusProcessing BatchStatus = "PROCESSING"
	StatusComplete   BatchStatus = "COMPLETE"
	StatusFailed     BatchStatus = "FAILED"
)

// RowOutcome is exactly one of Result or Err.
type RowOutcome struct {
	Row    int               `json:"row"`
	Result *PredictionResult `json:"result,omitempty"`
	Err    *RowError         `json:"error,omitempty"`
}

// OK reports whether the row succeeded.
func (o RowOutcome) OK() bool { return o.Err == nil }

// BatchResult is the terminal state of a batch. Rows are in input order.
type BatchResult struct {
	ID            string                `json:"id"`
	Status        BatchStatus           `json:"status"`
	ModelVersion  string                `json:"model_version,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   time.Time             `json:"completed_at"`
	Total         int                   `json:"total"`
	Succeeded     int                   `json:"succeeded"`
	Failed        int                   `json:"failed"`
	Categories    []risk.Category       `json:"categories"`
	RiskHistogram map[risk.Category]int `json:"risk_histogram"`
	// FeatureImportance ranks features by mean absolute contribution over
	// the succeeded rows.
	FeatureImportance []explain.FeatureImportance `json:"feature_importance"`
	Rows              []RowOutcome                `json:"rows"`
	SystemError       *ml.ModelError              `json:"-"`
	SystemMessage     string                      `json:"system_error,omitempty"`
}

// Duration is the wall time the batch took.
func (b *BatchResult) Duration() time.Duration { return b.CompletedAt.Sub(b.StartedAt) }

func (b *BatchResult) transition(to BatchStatus) {
	log.Debug().Str("batch_id", b.ID).Str("from", string(b.Status)).Str("to", string(to)).Msg("batch state change")
	b.Status = to
}

// PredictBatch scores rows in parallel, at most MaxConcurrency at a time. A
// failing or panicking row becomes that row's RowError and never affects its
// neighbours. When ctx ends, rows not yet started fail with the context error.
// A nil or unready engine yields a FAILED batch carrying a system ModelError.
func (e *Engine) PredictBatch(ctx context.Context, rows []map[string]any) *BatchResult {
	b := &BatchResult{
		ID:        uuid.NewString(),
		Status:    StatusReceived,
		StartedAt: time.Now().UTC(),
		Total:     len(rows),
	}

	if !e.Ready() {
		b.SystemError = notReady("batch")
		b.SystemMessage = b.SystemError.Error()
		b.Rows = []RowOutcome{}
		b.RiskHistogram = map[risk.Category]int{}
		b.FeatureImportance = []explain.FeatureImportance{}
		b.transition(StatusFailed)
		b.CompletedAt = time.Now().UTC()
		log.Error().Err(b.SystemError).Str("batch_id", b.ID).Int("rows", b.Total).Msg("batch rejected")
		if e != nil && e.metrics != nil {
			e.metrics.BatchObserve(string(b.Status), 0, 0)
		}
		return b
	}

	b.ModelVersion = e.ModelVersion()
	b.Categories = e.Categories()
	b.RiskHistogram = make(map[risk.Category]int, len(b.Categories))
	for _, c := range b.Categories {
		b.RiskHistogram[c] = 0
	}
	b.Rows = make([]RowOutcome, len(rows))
	b.transition(StatusProcessing)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range rows {
		if err := ctx.Err(); err != nil {
			b.Rows[i] = RowOutcome{Row: i, Err: &RowError{Row: i, Err: err}}
			continue
		}
		g.Go(func() error {
			b.Rows[i] = e.predictRow(ctx, i, rows[i])
			return nil
		})
	}
	_ = g.Wait()

	importance := explain.NewImportanceTracker(features.Names())
	for _, o := range b.Rows {
		if o.OK() {
			b.Succeeded++
			b.RiskHistogram[o.Result.RiskLevel]++
			importance.Add(o.Result.Contributions)
		} else {
			b.Failed++
		}
	}
	b.FeatureImportance = importance.Ranking()

	b.transition(StatusComplete)
	b.CompletedAt = time.Now().UTC()
	e.metrics.BatchObserve(string(b.Status), b.Succeeded, b.Failed)

	log.Info().
		Str("batch_id", b.ID).
		Int("rows", b.Total).
		Int("succeeded", b.Succeeded).
		Int("failed", b.Failed).
		Dur("duration", b.Duration()).
		Msg("batch complete")

	return b
}

// predictRow isolates one row: errors and panics become a RowError.
func (e *Engine) predictRow(ctx context.Context, i int, raw map[string]any) (out RowOutcome) {
	out.Row = i
	defer func() {
		if r := recover(); r != nil {
			err := &panicError{value: r}
			e.metrics.FailuresInc(KindPanic)
			log.Error().Int("row", i).Interface("panic", r).Msg("batch row panicked")
			out = RowOutcome{Row: i, Err: &RowError{Row: i, Err: err}}
		}
	}()

	res, err := e.PredictOne(ctx, raw)
	if err != nil {
		return RowOutcome{Row: i, Err: &RowError{Row: i, Err: err}}
	}
	return RowOutcome{Row: i, Result: res}
}
