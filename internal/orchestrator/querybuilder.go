package orchestrator

import (
	"strings"
)

// QueryBuilder plans the remote terms for keyword mode: the query's own
// tokens followed by category expansions, deduplicated and capped.
type QueryBuilder struct {
	mapper   *KeywordMapper
	topN     int
	maxTerms int
}

func NewQueryBuilder(mapper *KeywordMapper, topN, maxTerms int) *QueryBuilder {
	return &QueryBuilder{mapper: mapper, topN: topN, maxTerms: maxTerms}
}

func (qb *QueryBuilder) SearchTerms(query string) []string {
	seen := make(map[string]bool)
	terms := make([]string, 0, qb.maxTerms)

	add := func(term string) bool {
		term = strings.TrimSpace(term)
		if term == "" || seen[term] {
			return true
		}
		if len(terms) == qb.maxTerms {
			return false
		}
		seen[term] = true
		terms = append(terms, term)
		return true
	}

	for _, tok := range strings.Fields(query) {
		if !add(tok) {
			return terms
		}
	}
	for _, term := range qb.mapper.Expand(query, qb.topN) {
		if !add(term) {
			return terms
		}
	}
	return terms
}
