package orchestrator

import (
	"strings"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

type exclusionRule struct {
	term       string
	disqualify []string
}

// RelevanceGate drops scored records that are off-topic for the query even
// though some field matched.
type RelevanceGate struct {
	minScore   int
	exclusions []exclusionRule
}

func NewRelevanceGate(minScore int) *RelevanceGate {
	phones := []string{"monitor", "laptop", "notebook", "impresora", "teclado", "proyector"}
	computers := []string{"telefono", "celular", "smartphone", "impresora", "tablet"}
	return &RelevanceGate{
		minScore: minScore,
		exclusions: []exclusionRule{
			{"telefono", phones},
			{"celular", phones},
			{"smartphone", phones},
			{"laptop", computers},
			{"notebook", computers},
			{"monitor", []string{"telefono", "celular", "smartphone", "impresora"}},
			{"impresora", []string{"laptop", "notebook", "monitor", "telefono", "celular"}},
			{"mouse", []string{"monitor", "laptop", "notebook", "impresora", "telefono"}},
			{"teclado", []string{"monitor", "impresora", "telefono", "celular"}},
			{"tablet", []string{"monitor", "impresora", "laptop"}},
		},
	}
}

// Allow applies three checks in order: the score floor; at least one query
// token longer than two characters must appear in description or category
// (vacuous when the query has no such token); and no disqualifying term for
// a category named in the query may appear in description or category.
func (g *RelevanceGate) Allow(rec models.ProductRecord, score int, query string) bool {
	if score < g.minScore {
		return false
	}

	text := Normalize(rec.Description + " " + rec.Category)
	normalizedQuery := Normalize(query)

	significant := 0
	found := false
	for _, tok := range strings.Fields(normalizedQuery) {
		if len(tok) <= 2 {
			continue
		}
		significant++
		if strings.Contains(text, tok) {
			found = true
			break
		}
	}
	if significant > 0 && !found {
		return false
	}

	for _, rule := range g.exclusions {
		if !containsWord(normalizedQuery, rule.term) {
			continue
		}
		for _, bad := range rule.disqualify {
			if strings.Contains(text, bad) {
				return false
			}
		}
	}
	return true
}
