package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
	"github.com/shubhsaxena/catalog-search/internal/resilience"
)

const (
	catalogPath      = "resellers/v6/catalog"
	priceAvailPath   = "resellers/v6/catalog/priceandavailability"
	detailPathPrefix = "resellers/v6/catalog/details/"

	maxResponseBytes = 8 << 20
)

var (
	ErrNotFound         = errors.New("distributor: product not found")
	ErrUnexpectedStatus = errors.New("distributor: unexpected status")
)

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("distributor status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client talks to the distributor reseller API. Every call is attempted once;
// transport errors and 5xx responses count against the circuit breaker.
type Client struct {
	cfg        config.DistributorConfig
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient returns a client whose transport attaches a bearer token from a
// cached client-credentials token source, refreshing it before expiry.
func NewClient(cfg config.DistributorConfig, logger *zap.Logger) *Client {
	base := &http.Client{Timeout: cfg.RequestTimeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
	httpClient.Timeout = cfg.RequestTimeout

	return NewClientWithHTTP(cfg, httpClient, logger)
}

func NewClientWithHTTP(cfg config.DistributorConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/",
		httpClient: httpClient,
		cb:         resilience.NewCircuitBreaker("distributor", cfg.CircuitBreaker, logger),
		logger:     logger,
	}
}

type SearchParams struct {
	Query    string
	Vendor   string
	Page     int
	PageSize int
}

type CatalogPage struct {
	Records   []models.ProductRecord
	Total     int
	EmptyPage bool
}

// Search issues one catalog search call.
func (c *Client) Search(ctx context.Context, p SearchParams) (*CatalogPage, error) {
	ctx, span := observability.StartSpan(ctx, "distributor.search",
		attribute.String("query", p.Query),
		attribute.Int("page", p.Page),
	)
	defer span.End()

	page := p.Page
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(p.PageSize))
	q.Set("searchString", p.Query)
	if p.Vendor != "" {
		q.Set("vendor", p.Vendor)
	}

	var resp catalogResponse
	if err := c.do(ctx, "catalog", http.MethodGet, catalogPath, q, nil, &resp); err != nil {
		return nil, err
	}

	out := &CatalogPage{
		Records: make([]models.ProductRecord, 0, len(resp.Catalog)),
		Total:   resp.RecordsFound,
	}
	for _, item := range resp.Catalog {
		rec := item.record()
		if rec.PartNumber == "" {
			continue
		}
		out.Records = append(out.Records, rec)
	}
	out.EmptyPage = len(out.Records) == 0
	return out, nil
}

type PriceAvailability struct {
	Record        models.ProductRecord
	StatusCode    string
	StatusMessage string
}

// OK is false when the distributor flagged the part with an error status.
func (p PriceAvailability) OK() bool {
	return p.Record.PartNumber != "" && !strings.EqualFold(p.StatusCode, "E")
}

func (c *Client) PriceAndAvailability(ctx context.Context, partNumbers ...string) ([]PriceAvailability, error) {
	ctx, span := observability.StartSpan(ctx, "distributor.price_availability",
		attribute.StringSlice("part_numbers", partNumbers),
	)
	defer span.End()

	if len(partNumbers) == 0 {
		return nil, nil
	}
	body := priceAvailRequest{Products: make([]priceAvailProduct, len(partNumbers))}
	for i, pn := range partNumbers {
		body.Products[i] = priceAvailProduct{PartNumber: pn}
	}
	q := url.Values{}
	q.Set("includeAvailability", "true")
	q.Set("includePricing", "true")

	var resp []priceAvailItem
	if err := c.do(ctx, "price_availability", http.MethodPost, priceAvailPath, q, body, &resp); err != nil {
		return nil, err
	}

	out := make([]PriceAvailability, 0, len(resp))
	for _, item := range resp {
		out = append(out, PriceAvailability{
			Record:        item.record(),
			StatusCode:    item.ProductStatusCode,
			StatusMessage: item.ProductStatusMessage,
		})
	}
	return out, nil
}

type ProductDetail struct {
	PartNumber       string
	VendorPartNumber string
	Description      string
	VendorName       string
	Category         string
	Subcategory      string
	UPC              string
	ImageURLs        []string
}

// ApplyTo copies non-empty detail fields onto rec. Price and availability
// are left untouched.
func (d *ProductDetail) ApplyTo(rec *models.ProductRecord) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&rec.VendorPartNumber, d.VendorPartNumber)
	set(&rec.Description, d.Description)
	set(&rec.VendorName, d.VendorName)
	set(&rec.Category, d.Category)
	set(&rec.Subcategory, d.Subcategory)
	set(&rec.UPC, d.UPC)
	if len(d.ImageURLs) > 0 {
		rec.ImageURLs = d.ImageURLs
	}
}

func (c *Client) ProductDetails(ctx context.Context, partNumber string) (*ProductDetail, error) {
	ctx, span := observability.StartSpan(ctx, "distributor.product_details",
		attribute.String("part_number", partNumber),
	)
	defer span.End()

	var resp detailResponse
	if err := c.do(ctx, "details", http.MethodGet, detailPathPrefix+url.PathEscape(partNumber), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.detail(), nil
}

// HealthCheck reports the breaker state; it does not call the API.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("distributor circuit breaker open")
	}
	return nil
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body any, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		observability.DistributorRequestDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
	}

	result, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, payload != nil)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(data)}
		}
		return &rawResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if resilience.IsOpen(err) {
			status = "breaker_open"
		}
		return fmt.Errorf("distributor %s: %w", endpoint, err)
	}

	raw := result.(*rawResponse)
	status = strconv.Itoa(raw.status)
	switch {
	case raw.status == http.StatusNotFound:
		return ErrNotFound
	case raw.status < 200 || raw.status >= 300:
		return fmt.Errorf("distributor %s: %w", endpoint, &StatusError{Code: raw.status, Body: truncate(raw.body)})
	}

	if err := json.Unmarshal(raw.body, out); err != nil {
		c.logger.Warn("malformed distributor response",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("IM-CustomerNumber", c.cfg.CustomerNumber)
	req.Header.Set("IM-CountryCode", c.cfg.CountryCode)
	req.Header.Set("IM-SenderID", c.cfg.SenderID)
	req.Header.Set("IM-CorrelationID", uuid.NewString())
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
