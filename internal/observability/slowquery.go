package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

type SlowQueryDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	analyticsWriter   AnalyticsWriter
}

type AnalyticsWriter interface {
	WriteQueryPerformance(ctx context.Context, event *models.AnalyticsEvent) error
}

func NewSlowQueryDetector(warning, critical time.Duration, logger *zap.Logger, aw AnalyticsWriter) *SlowQueryDetector {
	return &SlowQueryDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		analyticsWriter:   aw,
	}
}

// Intercept records searches slower than the warning threshold. Faster
// searches return immediately.
func (sqd *SlowQueryDetector) Intercept(ctx context.Context, query, stage string, useKeywords bool, duration time.Duration, totalHits int64) {
	if duration <= sqd.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := sqd.classifySeverity(duration)

	SlowQueryCounter.WithLabelValues(severity, stage).Inc()

	sqd.logger.Warn("slow search detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", HashQuery(query)),
		zap.String("stage", stage),
		zap.Bool("use_keywords", useKeywords),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int64("total_hits", totalHits),
		zap.String("severity", severity),
	)

	if sqd.analyticsWriter == nil {
		return
	}

	event := &models.AnalyticsEvent{
		EventType:   "query_performance",
		QueryHash:   HashQuery(query),
		Query:       query,
		Stage:       stage,
		UseKeywords: useKeywords,
		DurationMs:  float64(duration.Milliseconds()),
		TotalHits:   totalHits,
		Timestamp:   time.Now().UTC(),
		TraceID:     traceID,
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sqd.analyticsWriter.WriteQueryPerformance(writeCtx, event); err != nil {
			sqd.logger.Error("failed to write query performance",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		}
	}()
}

func (sqd *SlowQueryDetector) classifySeverity(d time.Duration) string {
	if d > sqd.criticalThreshold {
		return "critical"
	}
	if d > sqd.warningThreshold {
		return "warning"
	}
	return "normal"
}

// HashQuery is a stable, non-cryptographic fingerprint for logs and
// analytics rows.
func HashQuery(q string) string {
	return fmt.Sprintf("%016x", hashUint64(q))
}

func hashUint64(s string) uint64 {
	h := uint64(0)
	for _, c := range s {
		h = h*31 + uint64(c)
	}
	return h
}
