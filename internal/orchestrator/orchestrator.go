package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
	"github.com/shubhsaxena/catalog-search/internal/store"
)

var ErrProductNotFound = errors.New("product not found")

type LocalCatalog interface {
	Search(ctx context.Context, f store.Filter) ([]models.ProductRecord, int, error)
	GetByPartNumber(ctx context.Context, partNumber string) (*models.ProductRecord, error)
}

type RemoteCatalog interface {
	Search(ctx context.Context, p distributor.SearchParams) (*distributor.CatalogPage, error)
	PriceAndAvailability(ctx context.Context, partNumbers ...string) ([]distributor.PriceAvailability, error)
	ProductDetails(ctx context.Context, partNumber string) (*distributor.ProductDetail, error)
}

type ResultCache interface {
	Get(ctx context.Context, key string) (*models.SearchResult, bool, error)
	Save(ctx context.Context, key string, result *models.SearchResult) error
}

type QueryTracker interface {
	Track(ctx context.Context, query string) error
}

type AnalyticsWriter interface {
	WriteSearchEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

// Orchestrator answers catalog searches from the local mirror, the result
// cache, a part-number lookup or the remote distributor catalog, in that
// order. Backend failures degrade the answer; they are never returned.
type Orchestrator struct {
	local      LocalCatalog
	remote     RemoteCatalog
	cache      ResultCache
	tracker    QueryTracker
	analytics  AnalyticsWriter
	slowQuery  *observability.SlowQueryDetector
	optimizer  *QueryOptimizer
	mapper     *KeywordMapper
	classifier *PartNumberClassifier
	builder    *QueryBuilder
	scorer     *Scorer
	gate       *RelevanceGate
	cfg        config.SearchConfig
	logger     *zap.Logger
}

// New wires an Orchestrator. tracker, analytics and slowQuery may be nil.
func New(
	local LocalCatalog,
	remote RemoteCatalog,
	resultCache ResultCache,
	tracker QueryTracker,
	analytics AnalyticsWriter,
	slowQuery *observability.SlowQueryDetector,
	cfg config.SearchConfig,
	logger *zap.Logger,
) *Orchestrator {
	mapper := NewKeywordMapper()
	return &Orchestrator{
		local:      local,
		remote:     remote,
		cache:      resultCache,
		tracker:    tracker,
		analytics:  analytics,
		slowQuery:  slowQuery,
		optimizer:  NewQueryOptimizer(),
		mapper:     mapper,
		classifier: NewPartNumberClassifier(cfg.SKU),
		builder:    NewQueryBuilder(mapper, cfg.ExpansionTopN, cfg.MaxSearchTerms),
		scorer:     NewScorer(cfg.Relevance),
		gate:       NewRelevanceGate(cfg.Relevance.GateMinScore),
		cfg:        cfg,
		logger:     logger,
	}
}

func (o *Orchestrator) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator.search",
		attribute.String("query", req.Query),
		attribute.Bool("use_keywords", req.UseKeywords),
	)
	defer span.End()

	q := o.resolve(req)
	if q.Normalized != "" && o.tracker != nil {
		if err := o.tracker.Track(ctx, q.Normalized); err != nil {
			o.logger.Warn("query tracking failed", zap.Error(err))
		}
	}

	res := o.search(ctx, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Total > o.cfg.MaxTotalResults {
		res.Total = o.cfg.MaxTotalResults
	}
	if res.Records == nil {
		res.Records = []models.ProductRecord{}
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.String("stage", string(res.Source)), attribute.Int("total", res.Total))
	observability.SearchRequestsTotal.WithLabelValues(string(res.Source), mode(q)).Inc()
	observability.SearchRequestDuration.WithLabelValues(string(res.Source), mode(q)).Observe(elapsed.Seconds())
	if o.slowQuery != nil {
		o.slowQuery.Intercept(ctx, q.Normalized, string(res.Source), q.UseKeywords, elapsed, int64(res.Total))
	}
	o.emit(ctx, q, res, elapsed)

	return res, nil
}

// Suggest returns related category terms for a partial query.
func (o *Orchestrator) Suggest(query string) []string {
	return o.mapper.Suggest(o.optimizer.Optimize(query), o.cfg.SuggestionTopN, o.cfg.SuggestionLimit)
}

// Product looks a part number up in the mirror, then at the distributor.
func (o *Orchestrator) Product(ctx context.Context, partNumber string) (*models.ProductRecord, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.product",
		attribute.String("part_number", partNumber),
	)
	defer span.End()

	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return nil, ErrProductNotFound
	}

	rec, err := o.local.GetByPartNumber(ctx, partNumber)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("mirror product lookup failed", zap.String("part_number", partNumber), zap.Error(err))
		observability.StageFailures.WithLabelValues("product_local").Inc()
	}

	items, err := o.remote.PriceAndAvailability(ctx, strings.ToUpper(partNumber))
	if err != nil {
		return nil, fmt.Errorf("distributor product lookup: %w", err)
	}
	for _, item := range items {
		if !item.OK() {
			continue
		}
		found := o.enrich(ctx, item.Record)
		return &found, nil
	}
	return nil, ErrProductNotFound
}

func (o *Orchestrator) resolve(req models.SearchRequest) models.SearchQuery {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = o.cfg.DefaultPageSize
	}
	if size > o.cfg.MaxPageSize {
		size = o.cfg.MaxPageSize
	}
	return models.SearchQuery{
		Raw:         req.Query,
		Normalized:  o.optimizer.Optimize(req.Query),
		Vendor:      strings.TrimSpace(req.Vendor),
		Page:        page,
		PageSize:    size,
		UseKeywords: req.UseKeywords,
	}
}

func (o *Orchestrator) search(ctx context.Context, q models.SearchQuery) *models.SearchResult {
	if q.Normalized == "" {
		return models.EmptyResult()
	}

	var lowConfidence *models.SearchResult
	if utf8.RuneCountInString(q.Normalized) >= o.cfg.MinQueryLengthLocal {
		local, err := o.localSearch(ctx, q)
		switch {
		case err != nil:
			o.stageFailed("local", err)
		case len(local.Records) >= o.cfg.LocalMinResults && local.Total > 0:
			return local
		case len(local.Records) > 0:
			lowConfidence = local
		}
	}

	key := CacheKey(q)
	if cached := o.cacheGet(ctx, key); cached != nil {
		return cached
	}

	if o.classifier.IsCandidate(q.Normalized, q.Vendor) {
		if rec, ok := o.lookupPartNumber(ctx, q.Normalized); ok {
			res := &models.SearchResult{
				Records: []models.ProductRecord{rec},
				Total:   1,
				Source:  models.StagePartNumber,
			}
			o.cacheSave(ctx, key, res)
			return res
		}
	}

	var (
		res *models.SearchResult
		err error
	)
	if q.UseKeywords {
		res, err = o.keywordSearch(ctx, q)
	} else {
		res, err = o.remoteSearch(ctx, q)
	}
	if err != nil {
		o.stageFailed(remoteStage(q), err)
		if lowConfidence != nil {
			lowConfidence.Source = models.StageFallbackLocal
			if lowConfidence.Total < len(lowConfidence.Records) {
				lowConfidence.Total = len(lowConfidence.Records)
			}
			return lowConfidence
		}
		return models.EmptyResult()
	}

	o.cacheSave(ctx, key, res)
	return res
}

func (o *Orchestrator) localSearch(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.local")
	defer span.End()

	recs, total, err := o.local.Search(ctx, store.Filter{
		Query:  q.Normalized,
		Vendor: q.Vendor,
		Limit:  q.PageSize,
		Offset: (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		return nil, err
	}
	recs = withPartNumber(recs)
	o.logger.Debug("local mirror answered",
		zap.String("query", q.Normalized),
		zap.Int("records", len(recs)),
		zap.Int("total", total),
	)
	return &models.SearchResult{
		Records:   recs,
		Total:     total,
		EmptyPage: len(recs) == 0,
		Source:    models.StageLocal,
	}, nil
}

func (o *Orchestrator) lookupPartNumber(ctx context.Context, query string) (models.ProductRecord, bool) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.part_number")
	defer span.End()

	for _, variant := range o.classifier.Variants(query) {
		items, err := o.remote.PriceAndAvailability(ctx, variant)
		if err != nil {
			o.logger.Debug("part number variant lookup failed",
				zap.String("variant", variant),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return models.ProductRecord{}, false
			}
			continue
		}
		for _, item := range items {
			if item.OK() {
				return o.enrich(ctx, item.Record), true
			}
		}
	}
	return models.ProductRecord{}, false
}

// enrich fills catalog detail fields that price and availability omits.
// Detail failures leave the record as is.
func (o *Orchestrator) enrich(ctx context.Context, rec models.ProductRecord) models.ProductRecord {
	detail, err := o.remote.ProductDetails(ctx, rec.PartNumber)
	if err != nil {
		o.logger.Debug("product detail unavailable",
			zap.String("part_number", rec.PartNumber),
			zap.Error(err),
		)
		return rec
	}
	detail.ApplyTo(&rec)
	return rec
}

func (o *Orchestrator) remoteSearch(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.remote")
	defer span.End()

	page, err := o.remote.Search(ctx, distributor.SearchParams{
		Query:    q.Normalized,
		Vendor:   q.Vendor,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		return nil, err
	}
	recs := withPartNumber(page.Records)
	return &models.SearchResult{
		Records:   recs,
		Total:     page.Total,
		EmptyPage: page.EmptyPage || len(recs) == 0,
		Source:    models.StageRemote,
	}, nil
}

func (o *Orchestrator) keywordSearch(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.keyword")
	defer span.End()

	terms := o.builder.SearchTerms(q.Normalized)
	span.SetAttributes(attribute.StringSlice("terms", terms))

	batches := make([]termBatch, len(terms))
	var g errgroup.Group
	if o.cfg.KeywordFetchConcurrency > 0 {
		g.SetLimit(o.cfg.KeywordFetchConcurrency)
	}
	for i, term := range terms {
		g.Go(func() error {
			page, err := o.remote.Search(ctx, distributor.SearchParams{
				Query:    term,
				Vendor:   q.Vendor,
				Page:     1,
				PageSize: o.cfg.KeywordPageSize,
			})
			batches[i] = termBatch{term: term, page: page, err: err}
			return nil
		})
	}
	g.Wait()

	var firstErr error
	failed := 0
	for _, b := range batches {
		if b.err != nil {
			failed++
			if firstErr == nil {
				firstErr = b.err
			}
			o.logger.Debug("keyword term fetch failed", zap.String("term", b.term), zap.Error(b.err))
		}
	}
	if len(terms) > 0 && failed == len(terms) {
		return nil, fmt.Errorf("all %d keyword terms failed: %w", failed, firstErr)
	}

	merged := mergeByPartNumber(batches, o.scorer, q.Normalized)
	relevant := filterRelevant(merged, o.cfg.Relevance.MinScore, o.gate, q.Normalized)
	sortByScore(relevant)
	page, empty := paginate(relevant, q.Page, q.PageSize)

	return &models.SearchResult{
		Records:   records(page),
		Total:     len(relevant),
		EmptyPage: empty,
		Source:    models.StageKeyword,
	}, nil
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string) *models.SearchResult {
	cached, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.stageFailed("cache_read", err)
		return nil
	}
	if !ok {
		return nil
	}
	cached.Source = models.StageCache
	return cached
}

func (o *Orchestrator) cacheSave(ctx context.Context, key string, res *models.SearchResult) {
	if err := o.cache.Save(ctx, key, res); err != nil {
		o.stageFailed("cache_write", err)
	}
}

func (o *Orchestrator) stageFailed(stage string, err error) {
	observability.StageFailures.WithLabelValues(stage).Inc()
	o.logger.Warn("search stage failed", zap.String("stage", stage), zap.Error(err))
}

func (o *Orchestrator) emit(ctx context.Context, q models.SearchQuery, res *models.SearchResult, elapsed time.Duration) {
	if o.analytics == nil {
		return
	}
	event := &models.AnalyticsEvent{
		EventType:   "search",
		QueryHash:   observability.HashQuery(q.Normalized),
		Query:       q.Normalized,
		Vendor:      q.Vendor,
		Stage:       string(res.Source),
		UseKeywords: q.UseKeywords,
		DurationMs:  float64(elapsed.Milliseconds()),
		TotalHits:   int64(res.Total),
		Timestamp:   time.Now().UTC(),
		TraceID:     observability.TraceIDFromContext(ctx),
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.analytics.WriteSearchEvent(writeCtx, event); err != nil {
			o.logger.Warn("failed to write search event", zap.Error(err))
		}
	}()
}

// CacheKey identifies a resolved query. It covers everything that changes
// the answer: optimized text, vendor, page, page size and mode.
func CacheKey(q models.SearchQuery) string {
	return fmt.Sprintf("%s|%s|%d|%d|%t",
		q.Normalized, strings.ToLower(q.Vendor), q.Page, q.PageSize, q.UseKeywords)
}

func withPartNumber(recs []models.ProductRecord) []models.ProductRecord {
	out := recs[:0:0]
	for _, r := range recs {
		if r.PartNumber != "" {
			out = append(out, r)
		}
	}
	return out
}

func mode(q models.SearchQuery) string {
	if q.UseKeywords {
		return "keyword"
	}
	return "general"
}

func remoteStage(q models.SearchQuery) string {
	if q.UseKeywords {
		return string(models.StageKeyword)
	}
	return string(models.StageRemote)
}
