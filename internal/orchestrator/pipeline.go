package orchestrator

import (
	"sort"

	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

// scoredRecord carries a record's best score through the keyword pipeline.
// Scores never leave this package.
type scoredRecord struct {
	record models.ProductRecord
	score  int
}

type termBatch struct {
	term string
	page *distributor.CatalogPage
	err  error
}

// mergeByPartNumber scores every record against the term that fetched it and
// keeps one entry per part number with its highest score. Output order is
// first-seen order across batches; records without a part number are dropped.
func mergeByPartNumber(batches []termBatch, scorer *Scorer, query string) []scoredRecord {
	index := make(map[string]int)
	var merged []scoredRecord

	for _, b := range batches {
		if b.err != nil || b.page == nil {
			continue
		}
		for _, rec := range b.page.Records {
			if rec.PartNumber == "" {
				continue
			}
			score := scorer.Score(rec, b.term, query)
			if i, ok := index[rec.PartNumber]; ok {
				if score > merged[i].score {
					merged[i] = scoredRecord{record: rec, score: score}
				}
				continue
			}
			index[rec.PartNumber] = len(merged)
			merged = append(merged, scoredRecord{record: rec, score: score})
		}
	}
	return merged
}

func filterRelevant(recs []scoredRecord, minScore int, gate *RelevanceGate, query string) []scoredRecord {
	out := recs[:0:0]
	for _, r := range recs {
		if r.score < minScore {
			continue
		}
		if !gate.Allow(r.record, r.score, query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// sortByScore orders by descending score; equal scores keep merge order.
func sortByScore(recs []scoredRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].score > recs[j].score
	})
}

// paginate returns the 1-based page of items and whether that page is empty.
func paginate[T any](items []T, page, pageSize int) ([]T, bool) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return []T{}, true
	}
	start := (page - 1) * pageSize
	if start < 0 || start >= len(items) {
		return []T{}, true
	}
	end := start + pageSize
	if end > len(items) || end < 0 {
		end = len(items)
	}
	return items[start:end], false
}

func records(recs []scoredRecord) []models.ProductRecord {
	out := make([]models.ProductRecord, len(recs))
	for i, r := range recs {
		out[i] = r.record
	}
	return out
}
