package distributor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testConfig() config.DistributorConfig {
	return config.DistributorConfig{
		BaseURL:        "https://distributor.test/",
		CustomerNumber: "20-222222",
		CountryCode:    "MX",
		SenderID:       "catalog-search",
		RequestTimeout: time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 2,
		},
	}
}

func newTestClient(fn roundTripFunc) *Client {
	return NewClientWithHTTP(testConfig(), &http.Client{Transport: fn}, zap.NewNop())
}

func TestSearch_BuildsRequestAndParsesCatalog(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/resellers/v6/catalog" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("searchString") != "monitor" || q.Get("pageNumber") != "2" || q.Get("pageSize") != "25" || q.Get("vendor") != "Dell" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("IM-CustomerNumber") != "20-222222" {
			t.Errorf("missing customer header")
		}
		if r.Header.Get("IM-CorrelationID") == "" {
			t.Errorf("missing correlation id")
		}
		return jsonResponse(http.StatusOK, `{
			"recordsFound": 57,
			"pageSize": 25,
			"pageNumber": 2,
			"catalog": [
				{"ingramPartNumber": "4NM123", "vendorPartNumber": "P2422H", "description": "Monitor Dell 24", "vendorName": "DELL", "category": "Monitores", "subCategory": "LED"},
				{"ingramPartNumber": "", "description": "sin numero"},
				{"ingramPartNumber": " 4NM124 ", "description": "Monitor Dell 27"}
			]
		}`), nil
	})

	page, err := client.Search(context.Background(), SearchParams{Query: "monitor", Vendor: "Dell", Page: 2, PageSize: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 57 {
		t.Errorf("expected total 57, got %d", page.Total)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records with part numbers, got %d", len(page.Records))
	}
	first := page.Records[0]
	if first.PartNumber != "4NM123" || first.Subcategory != "LED" || first.Origin != models.OriginRemote {
		t.Errorf("unexpected record: %+v", first)
	}
	if first.Availability.Kind != models.AvailabilityUnknown {
		t.Errorf("expected unknown availability for catalog rows, got %v", first.Availability.Kind)
	}
	if page.Records[1].PartNumber != "4NM124" {
		t.Errorf("expected trimmed part number, got %q", page.Records[1].PartNumber)
	}
	if page.EmptyPage {
		t.Error("expected non-empty page")
	}
}

func TestSearch_EmptyCatalogIsEmptyPage(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"recordsFound": 0, "catalog": []}`), nil
	})

	page, err := client.Search(context.Background(), SearchParams{Query: "zzz", Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.EmptyPage || page.Total != 0 {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *http.Response
		err     error
		wantIs  error
		wantNil bool
	}{
		{"transport error", nil, errors.New("connection reset"), nil, false},
		{"server error", jsonResponse(http.StatusBadGateway, "bad gateway"), nil, ErrUnexpectedStatus, false},
		{"client error", jsonResponse(http.StatusBadRequest, `{"errors":[]}`), nil, ErrUnexpectedStatus, false},
		{"not found", jsonResponse(http.StatusNotFound, ""), nil, ErrNotFound, false},
		{"malformed body", jsonResponse(http.StatusOK, `{"catalog": "nope"`), nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(func(r *http.Request) (*http.Response, error) {
				return tt.resp, tt.err
			})
			page, err := client.Search(context.Background(), SearchParams{Query: "x", Page: 1, PageSize: 10})
			if err == nil {
				t.Fatal("expected error")
			}
			if page != nil {
				t.Errorf("expected nil page on error, got %+v", page)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("expected %v, got %v", tt.wantIs, err)
			}
		})
	}
}

func TestPriceAndAvailability(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/resellers/v6/catalog/priceandavailability" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body priceAvailRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if len(body.Products) != 2 || body.Products[0].PartNumber != "ABC123XYZ" {
			t.Errorf("unexpected request body: %+v", body)
		}
		return jsonResponse(http.StatusOK, `[
			{
				"ingramPartNumber": "ABC123XYZ",
				"description": "Laptop HP 14",
				"vendorName": "HP",
				"productStatusCode": "",
				"pricing": {"currencyCode": "MXN", "customerPrice": 15999.5},
				"availability": {"available": true, "totalAvailability": 7, "availabilityByWarehouse": [
					{"warehouseId": "10", "location": "Guadalajara", "quantityAvailable": 5},
					{"warehouseId": "20", "location": "CDMX", "quantityAvailable": 2}
				]}
			},
			{"ingramPartNumber": "ZZZ", "productStatusCode": "E", "productStatusMessage": "Invalid SKU"}
		]`), nil
	})

	items, err := client.PriceAndAvailability(context.Background(), "ABC123XYZ", "ZZZ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	ok := items[0]
	if !ok.OK() {
		t.Error("expected first item OK")
	}
	if ok.Record.Currency != "MXN" || !ok.Record.UnitPrice.Valid || ok.Record.UnitPrice.Decimal.String() != "15999.5" {
		t.Errorf("unexpected pricing: %+v", ok.Record)
	}
	av := ok.Record.Availability
	if av.Kind != models.AvailabilityDetailed || av.TotalUnits != 7 || len(av.Warehouses) != 2 {
		t.Errorf("unexpected availability: %+v", av)
	}
	if ok.Record.Origin != models.OriginRemote {
		t.Errorf("expected remote origin, got %q", ok.Record.Origin)
	}

	if items[1].OK() {
		t.Error("expected error-status item not OK")
	}
	if items[1].StatusMessage != "Invalid SKU" {
		t.Errorf("unexpected status message %q", items[1].StatusMessage)
	}
}

func TestPriceAndAvailability_NoPartNumbers(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	items, err := client.PriceAndAvailability(context.Background())
	if err != nil || items != nil {
		t.Errorf("expected nil, nil; got %v, %v", items, err)
	}
}

func TestAvailabilityResolve(t *testing.T) {
	yes := true
	seven := 7

	tests := []struct {
		name string
		in   *availabilityWire
		kind models.AvailabilityKind
	}{
		{"missing block", nil, models.AvailabilityUnknown},
		{"empty block", &availabilityWire{}, models.AvailabilityUnknown},
		{"flag only", &availabilityWire{Available: &yes}, models.AvailabilitySimple},
		{"total only", &availabilityWire{TotalAvailability: &seven}, models.AvailabilityDetailed},
		{"warehouses", &availabilityWire{AvailabilityByWarehouse: []warehouseWire{{WarehouseID: "1", QuantityAvailable: 3}}}, models.AvailabilityDetailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.resolve(); got.Kind != tt.kind {
				t.Errorf("resolve() kind = %v, want %v", got.Kind, tt.kind)
			}
		})
	}
}

func TestAvailabilityResolve_SumsWarehousesWithoutTotal(t *testing.T) {
	a := &availabilityWire{AvailabilityByWarehouse: []warehouseWire{
		{WarehouseID: "1", QuantityAvailable: 3},
		{WarehouseID: "2", QuantityAvailable: 4},
	}}
	if got := a.resolve(); got.TotalUnits != 7 {
		t.Errorf("expected 7 units, got %d", got.TotalUnits)
	}
}

func TestProductDetails(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/resellers/v6/catalog/details/ABC123XYZ" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{
			"ingramPartNumber": "ABC123XYZ",
			"description": "Laptop HP 14 Ryzen 5",
			"productCategory": "Computadoras",
			"productSubCategory": "Laptops",
			"productImages": [{"url": "https://img.test/1.jpg"}, {"url": " "}]
		}`), nil
	})

	detail, err := client.ProductDetails(context.Background(), "ABC123XYZ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := models.ProductRecord{PartNumber: "ABC123XYZ", Description: "Laptop HP 14", VendorName: "HP"}
	detail.ApplyTo(&rec)

	if rec.Description != "Laptop HP 14 Ryzen 5" || rec.Category != "Computadoras" || rec.Subcategory != "Laptops" {
		t.Errorf("detail not applied: %+v", rec)
	}
	if rec.VendorName != "HP" {
		t.Errorf("empty detail field overwrote vendor: %q", rec.VendorName)
	}
	if len(rec.ImageURLs) != 1 {
		t.Errorf("expected 1 image url, got %v", rec.ImageURLs)
	}
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusServiceUnavailable, "down"), nil
	})

	for i := 0; i < 3; i++ {
		client.Search(context.Background(), SearchParams{Query: "x", Page: 1, PageSize: 10})
	}

	if calls != 2 {
		t.Errorf("expected breaker to stop calls after 2 failures, got %d calls", calls)
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check to report open breaker")
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusNotFound, ""), nil
	})

	for i := 0; i < 4; i++ {
		client.ProductDetails(context.Background(), "NOPE")
	}
	if calls != 4 {
		t.Errorf("expected every 404 to reach the API, got %d calls", calls)
	}
}
