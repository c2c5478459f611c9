package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

type fakeCatalog struct {
	pages map[int][]models.ProductRecord
	total int
	err   error
	calls []int
}

func (f *fakeCatalog) Search(_ context.Context, p distributor.SearchParams) (*distributor.CatalogPage, error) {
	f.calls = append(f.calls, p.Page)
	if f.err != nil {
		return nil, f.err
	}
	recs := f.pages[p.Page]
	return &distributor.CatalogPage{Records: recs, Total: f.total, EmptyPage: len(recs) == 0}, nil
}

type fakeSink struct {
	written []models.ProductRecord
	err     error
}

func (s *fakeSink) write(_ context.Context, recs []models.ProductRecord) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.written = append(s.written, recs...)
	return len(recs), nil
}

func (s *fakeSink) close() error { return nil }

func recs(pns ...string) []models.ProductRecord {
	out := make([]models.ProductRecord, len(pns))
	for i, pn := range pns {
		out[i] = models.ProductRecord{PartNumber: pn}
	}
	return out
}

func TestPullStopsAtTotal(t *testing.T) {
	src := &fakeCatalog{
		pages: map[int][]models.ProductRecord{1: recs("A", "B"), 2: recs("C", "D"), 3: recs("E")},
		total: 4,
	}
	out := &fakeSink{}
	n, err := pull(context.Background(), src, out, &pullOptions{query: "x", pages: 10, pageSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 || len(out.written) != 4 {
		t.Errorf("expected 4 written, got %d", n)
	}
	if len(src.calls) != 2 {
		t.Errorf("expected 2 page fetches, got %v", src.calls)
	}
}

func TestPullStopsAtEmptyPage(t *testing.T) {
	src := &fakeCatalog{pages: map[int][]models.ProductRecord{1: recs("A")}, total: 100}
	out := &fakeSink{}
	n, err := pull(context.Background(), src, out, &pullOptions{query: "x", pages: 5, pageSize: 1}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 written, got %d", n)
	}
	if len(src.calls) != 2 {
		t.Errorf("expected fetch to stop after empty page 2, got %v", src.calls)
	}
}

func TestPullErrors(t *testing.T) {
	src := &fakeCatalog{err: errors.New("boom")}
	if _, err := pull(context.Background(), src, &fakeSink{}, &pullOptions{query: "x", pages: 1, pageSize: 1}, zap.NewNop()); err == nil {
		t.Error("expected fetch error")
	}

	src = &fakeCatalog{pages: map[int][]models.ProductRecord{1: recs("A")}, total: 1}
	if _, err := pull(context.Background(), src, &fakeSink{err: errors.New("disk")}, &pullOptions{query: "x", pages: 1, pageSize: 1}, zap.NewNop()); err == nil {
		t.Error("expected write error")
	}
}

func TestChangeEvents(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := changeEvents(recs("A", "", "B"), now)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, pn := range []string{"A", "B"} {
		ev := events[i]
		if ev.PartNumber != pn || ev.Product == nil || ev.Product.PartNumber != pn {
			t.Errorf("event %d: unexpected part number %+v", i, ev)
		}
		if ev.Type != models.ChangeUpsert || ev.Source != "catalog-sync" || !ev.Timestamp.Equal(now) {
			t.Errorf("event %d: unexpected metadata %+v", i, ev)
		}
		if ev.ID == "" {
			t.Errorf("event %d: missing id", i)
		}
	}
	if events[0].ID == events[1].ID {
		t.Error("expected distinct event ids")
	}
	if events[0].Product == events[1].Product {
		t.Error("events must not share a product pointer")
	}
}
