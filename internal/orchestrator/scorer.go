package orchestrator

import (
	"strings"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

// Scorer assigns an additive relevance score to a record for one search
// term. Per field: exact match scores 3x the field weight, whole-word
// containment 2x and plain substring containment 1x. Every distinct query
// token found in description, vendor or category adds the token bonus.
type Scorer struct {
	weights    config.FieldWeights
	tokenBonus int
}

func NewScorer(cfg config.RelevanceConfig) *Scorer {
	return &Scorer{weights: cfg.Weights, tokenBonus: cfg.TokenBonus}
}

func (s *Scorer) Score(rec models.ProductRecord, term, query string) int {
	score := 0

	if t := Normalize(term); t != "" {
		score += fieldScore(rec.Description, t, s.weights.Description)
		score += fieldScore(rec.VendorName, t, s.weights.VendorName)
		score += fieldScore(rec.PartNumber, t, s.weights.PartNumber)
		score += fieldScore(rec.VendorPartNumber, t, s.weights.VendorPartNumber)
		score += fieldScore(rec.Category, t, s.weights.Category)
		score += fieldScore(rec.Subcategory, t, s.weights.Subcategory)
	}

	haystack := Normalize(rec.Description + " " + rec.VendorName + " " + rec.Category)
	if haystack == "" {
		return score
	}
	seen := make(map[string]bool)
	for _, tok := range tokens(query) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if strings.Contains(haystack, tok) {
			score += s.tokenBonus
		}
	}
	return score
}

func fieldScore(value, term string, weight int) int {
	field := Normalize(value)
	switch {
	case field == "":
		return 0
	case field == term:
		return weight * 3
	case containsWord(field, term):
		return weight * 2
	case strings.Contains(field, term):
		return weight
	default:
		return 0
	}
}
