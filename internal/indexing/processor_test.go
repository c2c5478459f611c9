package indexing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

type fakeMirror struct {
	mu        sync.Mutex
	upserts   [][]models.ProductRecord
	deletes   [][]string
	upsertErr error
}

func (m *fakeMirror) UpsertProducts(_ context.Context, recs []models.ProductRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.upserts = append(m.upserts, recs)
	return len(recs), nil
}

func (m *fakeMirror) DeleteProducts(_ context.Context, pns []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, pns)
	return len(pns), nil
}

type fakeInvalidator struct {
	mu     sync.Mutex
	purges int
}

func (f *fakeInvalidator) Purge(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return nil
}

func upsert(pn, description string) *models.ChangeEvent {
	return &models.ChangeEvent{
		ID:         pn + "-" + description,
		Type:       models.ChangeUpsert,
		PartNumber: pn,
		Product:    &models.ProductRecord{PartNumber: pn, Description: description},
		Timestamp:  time.Now(),
	}
}

func remove(pn string) *models.ChangeEvent {
	return &models.ChangeEvent{ID: pn + "-del", Type: models.ChangeDelete, PartNumber: pn, Timestamp: time.Now()}
}

func newTestProcessor(m Mirror, inv Invalidator, bulk int) *MirrorProcessor {
	return NewMirrorProcessor(m, inv, nil, config.MirrorConfig{BulkSize: bulk, FlushInterval: time.Hour}, zap.NewNop())
}

func TestCollapse_LastEventWins(t *testing.T) {
	batch := []models.ChangeEvent{
		*upsert("A", "first"),
		*upsert("B", "only"),
		*upsert("A", "second"),
		*remove("C"),
		*upsert("C", "revived"),
		*remove("B"),
	}

	upserts, deletes := collapse(batch)

	if len(upserts) != 2 || upserts[0].PartNumber != "A" || upserts[0].Description != "second" {
		t.Errorf("unexpected upserts %+v", upserts)
	}
	if upserts[1].PartNumber != "C" || upserts[1].Description != "revived" {
		t.Errorf("expected C revived, got %+v", upserts[1])
	}
	if len(deletes) != 1 || deletes[0] != "B" {
		t.Errorf("unexpected deletes %v", deletes)
	}
}

func TestHandleEvent_FlushesWhenFull(t *testing.T) {
	m := &fakeMirror{}
	inv := &fakeInvalidator{}
	mp := newTestProcessor(m, inv, 3)
	defer mp.Stop()
	ctx := context.Background()

	mp.HandleEvent(ctx, upsert("A", "a"))
	mp.HandleEvent(ctx, remove("B"))
	if len(m.upserts) != 0 {
		t.Fatal("should not flush before the buffer is full")
	}
	mp.HandleEvent(ctx, upsert("C", "c"))

	if len(m.upserts) != 1 || len(m.upserts[0]) != 2 {
		t.Errorf("expected one upsert batch of 2, got %v", m.upserts)
	}
	if len(m.deletes) != 1 || m.deletes[0][0] != "B" {
		t.Errorf("expected delete of B, got %v", m.deletes)
	}
	if inv.purges != 1 {
		t.Errorf("expected one cache purge, got %d", inv.purges)
	}
}

func TestHandleEvent_RejectsInvalid(t *testing.T) {
	mp := newTestProcessor(&fakeMirror{}, nil, 10)
	defer mp.Stop()

	if err := mp.HandleEvent(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
	if err := mp.HandleEvent(context.Background(), &models.ChangeEvent{Type: models.ChangeUpsert, PartNumber: "X"}); err == nil {
		t.Error("expected error for upsert without product")
	}
}

func TestFlush_RequeuesOnError(t *testing.T) {
	m := &fakeMirror{upsertErr: errors.New("db down")}
	inv := &fakeInvalidator{}
	mp := newTestProcessor(m, inv, 100)
	defer mp.Stop()
	ctx := context.Background()

	mp.HandleEvent(ctx, upsert("A", "a"))
	if err := mp.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if inv.purges != 0 {
		t.Error("cache must not be purged when the mirror write failed")
	}

	mp.mu.Lock()
	buffered := len(mp.buffer)
	mp.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected failed event back in buffer, got %d", buffered)
	}

	m.mu.Lock()
	m.upsertErr = nil
	m.mu.Unlock()
	if err := mp.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if len(m.upserts) != 1 || m.upserts[0][0].PartNumber != "A" {
		t.Errorf("expected A upserted on retry, got %v", m.upserts)
	}
}

func TestStop_FlushesRemaining(t *testing.T) {
	m := &fakeMirror{}
	mp := newTestProcessor(m, nil, 100)

	mp.HandleEvent(context.Background(), upsert("A", "a"))
	if err := mp.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(m.upserts) != 1 {
		t.Errorf("expected final flush on stop, got %v", m.upserts)
	}
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	m := &fakeMirror{}
	inv := &fakeInvalidator{}
	mp := newTestProcessor(m, inv, 10)
	defer mp.Stop()

	if err := mp.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.purges != 0 || len(m.upserts) != 0 {
		t.Error("empty flush should not touch the mirror or cache")
	}
}
