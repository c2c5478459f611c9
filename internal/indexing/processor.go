package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

type Mirror interface {
	UpsertProducts(ctx context.Context, recs []models.ProductRecord) (int, error)
	DeleteProducts(ctx context.Context, partNumbers []string) (int, error)
}

// Invalidator drops cached search results once the mirror changes.
type Invalidator interface {
	Purge(ctx context.Context) error
}

type ChangeLog interface {
	RecordChanges(ctx context.Context, events []models.ChangeEvent) error
}

// MirrorProcessor buffers catalog change events and applies them to the
// mirror in batches, flushing when the buffer is full or on a ticker.
type MirrorProcessor struct {
	mirror    Mirror
	cache     Invalidator
	changeLog ChangeLog
	cfg       config.MirrorConfig
	logger    *zap.Logger

	flushMu sync.Mutex
	mu      sync.Mutex
	buffer  []models.ChangeEvent
	ticker *time.Ticker
	done   chan struct{}
}

// NewMirrorProcessor starts the periodic flush loop. cache and changeLog
// may be nil.
func NewMirrorProcessor(
	mirror Mirror,
	cache Invalidator,
	changeLog ChangeLog,
	cfg config.MirrorConfig,
	logger *zap.Logger,
) *MirrorProcessor {
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	mp := &MirrorProcessor{
		mirror:    mirror,
		cache:     cache,
		changeLog: changeLog,
		cfg:       cfg,
		logger:    logger,
		buffer:    make([]models.ChangeEvent, 0, cfg.BulkSize),
		ticker:    time.NewTicker(cfg.FlushInterval),
		done:      make(chan struct{}),
	}

	go mp.flushLoop()

	return mp
}

func (mp *MirrorProcessor) HandleEvent(ctx context.Context, event *models.ChangeEvent) error {
	if event == nil {
		return errors.New("nil change event")
	}
	if event.Type == models.ChangeUpsert && event.Product == nil {
		return fmt.Errorf("upsert for %s without product", event.PartNumber)
	}

	mp.mu.Lock()
	mp.buffer = append(mp.buffer, *event)
	shouldFlush := len(mp.buffer) >= mp.cfg.BulkSize
	mp.mu.Unlock()

	if shouldFlush {
		if err := mp.Flush(ctx); err != nil {
			mp.logger.Error("flush on buffer full failed", zap.Error(err))
		}
	}
	return nil
}

func (mp *MirrorProcessor) flushLoop() {
	for {
		select {
		case <-mp.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mp.Flush(ctx); err != nil {
				mp.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-mp.done:
			return
		}
	}
}

// Flush applies everything buffered so far. Flushes are serialized, so a nil
// return means every event handed to HandleEvent before the call is in the
// mirror, including events requeued by an earlier failed flush.
func (mp *MirrorProcessor) Flush(ctx context.Context) error {
	mp.flushMu.Lock()
	defer mp.flushMu.Unlock()

	mp.mu.Lock()
	if len(mp.buffer) == 0 {
		mp.mu.Unlock()
		return nil
	}
	batch := make([]models.ChangeEvent, len(mp.buffer))
	copy(batch, mp.buffer)
	mp.buffer = mp.buffer[:0]
	mp.mu.Unlock()

	start := time.Now()
	upserts, deletes := collapse(batch)

	if err := mp.apply(ctx, upserts, deletes); err != nil {
		// Put the batch back ahead of anything buffered since.
		mp.mu.Lock()
		mp.buffer = append(batch, mp.buffer...)
		mp.mu.Unlock()
		return err
	}

	if newest := newestTimestamp(batch); !newest.IsZero() {
		observability.MirrorLag.Set(time.Since(newest).Seconds())
	}

	if mp.cache != nil {
		if err := mp.cache.Purge(ctx); err != nil {
			mp.logger.Warn("search cache purge failed", zap.Error(err))
		}
	}

	if mp.changeLog != nil {
		go func() {
			logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mp.changeLog.RecordChanges(logCtx, batch); err != nil {
				mp.logger.Warn("changelog write failed", zap.Int("count", len(batch)), zap.Error(err))
			}
		}()
	}

	mp.logger.Info("mirror flush completed",
		zap.Int("events", len(batch)),
		zap.Int("upserts", len(upserts)),
		zap.Int("deletes", len(deletes)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (mp *MirrorProcessor) apply(ctx context.Context, upserts []models.ProductRecord, deletes []string) error {
	if len(deletes) > 0 {
		if _, err := mp.mirror.DeleteProducts(ctx, deletes); err != nil {
			observability.MirrorEventsTotal.WithLabelValues(string(models.ChangeDelete), "error").Inc()
			return fmt.Errorf("mirror delete flush: %w", err)
		}
		observability.MirrorEventsTotal.WithLabelValues(string(models.ChangeDelete), "success").Add(float64(len(deletes)))
	}
	if len(upserts) > 0 {
		if _, err := mp.mirror.UpsertProducts(ctx, upserts); err != nil {
			observability.MirrorEventsTotal.WithLabelValues(string(models.ChangeUpsert), "error").Inc()
			return fmt.Errorf("mirror upsert flush: %w", err)
		}
		observability.MirrorEventsTotal.WithLabelValues(string(models.ChangeUpsert), "success").Add(float64(len(upserts)))
	}
	return nil
}

func (mp *MirrorProcessor) Stop() error {
	mp.ticker.Stop()
	close(mp.done)

	// Final flush
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return mp.Flush(ctx)
}

// collapse keeps only the last event per part number. Output follows the
// order in which part numbers first appear in the batch.
func collapse(batch []models.ChangeEvent) ([]models.ProductRecord, []string) {
	last := make(map[string]models.ChangeEvent, len(batch))
	var order []string
	for _, e := range batch {
		if _, seen := last[e.PartNumber]; !seen {
			order = append(order, e.PartNumber)
		}
		last[e.PartNumber] = e
	}

	var (
		upserts []models.ProductRecord
		deletes []string
	)
	for _, pn := range order {
		e := last[pn]
		switch e.Type {
		case models.ChangeUpsert:
			rec := *e.Product
			rec.PartNumber = pn
			upserts = append(upserts, rec)
		case models.ChangeDelete:
			deletes = append(deletes, pn)
		}
	}
	return upserts, deletes
}

func newestTimestamp(batch []models.ChangeEvent) time.Time {
	var newest time.Time
	for _, e := range batch {
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	return newest
}
