package models

import "time"

// Stage names the step of the hybrid pipeline that produced a result.
type Stage string

const (
	StageLocal         Stage = "local"
	StageCache         Stage = "cache"
	StagePartNumber    Stage = "part_number"
	StageRemote        Stage = "remote"
	StageKeyword       Stage = "keyword"
	StageFallbackLocal Stage = "fallback_local"
	StageEmpty         Stage = "empty"
)

type SearchRequest struct {
	Query       string `json:"query" validate:"required,max=200"`
	Vendor      string `json:"vendor,omitempty" validate:"max=100"`
	Page        int    `json:"page" validate:"gte=0"`
	PageSize    int    `json:"page_size" validate:"gte=0"`
	UseKeywords bool   `json:"use_keywords,omitempty"`
}

// SearchQuery is the resolved, per-invocation form of a SearchRequest.
// Page and PageSize are always >= 1.
type SearchQuery struct {
	Raw         string
	Normalized  string
	Vendor      string
	Page        int
	PageSize    int
	UseKeywords bool
}

// SearchResult is the (records, total, empty page) triple plus the stage
// that answered. It doubles as the cached payload.
type SearchResult struct {
	Records   []ProductRecord `json:"products"`
	Total     int             `json:"total"`
	EmptyPage bool            `json:"empty_page"`
	Source    Stage           `json:"source"`
}

func EmptyResult() *SearchResult {
	return &SearchResult{
		Records:   []ProductRecord{},
		EmptyPage: true,
		Source:    StageEmpty,
	}
}

// Clone returns a copy whose record slice does not alias the receiver's.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Records = make([]ProductRecord, len(r.Records))
	copy(out.Records, r.Records)
	return &out
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type AnalyticsEvent struct {
	EventType   string    `json:"event_type"`
	QueryHash   string    `json:"query_hash"`
	Query       string    `json:"query"`
	Vendor      string    `json:"vendor,omitempty"`
	Stage       string    `json:"stage"`
	UseKeywords bool      `json:"use_keywords"`
	DurationMs  float64   `json:"duration_ms"`
	TotalHits   int64     `json:"total_hits"`
	Timestamp   time.Time `json:"timestamp"`
	TraceID     string    `json:"trace_id"`
}
