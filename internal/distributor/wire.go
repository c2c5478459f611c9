package distributor

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

type catalogResponse struct {
	RecordsFound int           `json:"recordsFound"`
	PageSize     int           `json:"pageSize"`
	PageNumber   int           `json:"pageNumber"`
	Catalog      []catalogItem `json:"catalog"`
}

type catalogItem struct {
	IngramPartNumber string `json:"ingramPartNumber"`
	VendorPartNumber string `json:"vendorPartNumber"`
	Description      string `json:"description"`
	VendorName       string `json:"vendorName"`
	Category         string `json:"category"`
	SubCategory      string `json:"subCategory"`
	UPCCode          string `json:"upcCode"`
}

func (i catalogItem) record() models.ProductRecord {
	return models.ProductRecord{
		PartNumber:       strings.TrimSpace(i.IngramPartNumber),
		VendorPartNumber: strings.TrimSpace(i.VendorPartNumber),
		Description:      strings.TrimSpace(i.Description),
		VendorName:       strings.TrimSpace(i.VendorName),
		Category:         strings.TrimSpace(i.Category),
		Subcategory:      strings.TrimSpace(i.SubCategory),
		UPC:              strings.TrimSpace(i.UPCCode),
		Availability:     models.UnknownAvailability(),
		Origin:           models.OriginRemote,
	}
}

type priceAvailRequest struct {
	Products []priceAvailProduct `json:"products"`
}

type priceAvailProduct struct {
	PartNumber string `json:"ingramPartNumber"`
}

type priceAvailItem struct {
	IngramPartNumber     string            `json:"ingramPartNumber"`
	VendorPartNumber     string            `json:"vendorPartNumber"`
	Description          string            `json:"description"`
	VendorName           string            `json:"vendorName"`
	UPC                  string            `json:"upc"`
	ProductStatusCode    string            `json:"productStatusCode"`
	ProductStatusMessage string            `json:"productStatusMessage"`
	Pricing              *pricingWire      `json:"pricing"`
	Availability         *availabilityWire `json:"availability"`
}

type pricingWire struct {
	CurrencyCode  string              `json:"currencyCode"`
	CustomerPrice decimal.NullDecimal `json:"customerPrice"`
	RetailPrice   decimal.NullDecimal `json:"retailPrice"`
}

type availabilityWire struct {
	Available               *bool           `json:"available"`
	TotalAvailability       *int            `json:"totalAvailability"`
	AvailabilityByWarehouse []warehouseWire `json:"availabilityByWarehouse"`
}

type warehouseWire struct {
	WarehouseID       string `json:"warehouseId"`
	Location          string `json:"location"`
	QuantityAvailable int    `json:"quantityAvailable"`
}

func (i priceAvailItem) record() models.ProductRecord {
	rec := models.ProductRecord{
		PartNumber:       strings.TrimSpace(i.IngramPartNumber),
		VendorPartNumber: strings.TrimSpace(i.VendorPartNumber),
		Description:      strings.TrimSpace(i.Description),
		VendorName:       strings.TrimSpace(i.VendorName),
		UPC:              strings.TrimSpace(i.UPC),
		Availability:     i.Availability.resolve(),
		Origin:           models.OriginRemote,
	}
	if i.Pricing != nil {
		rec.Currency = i.Pricing.CurrencyCode
		rec.UnitPrice = i.Pricing.CustomerPrice
		if !rec.UnitPrice.Valid {
			rec.UnitPrice = i.Pricing.RetailPrice
		}
	}
	return rec
}

// resolve maps the optional availability block onto the tagged variant:
// no block is Unknown, a warehouse breakdown or unit total is Detailed and a
// bare flag is Simple.
func (a *availabilityWire) resolve() models.Availability {
	if a == nil {
		return models.UnknownAvailability()
	}
	if len(a.AvailabilityByWarehouse) > 0 || a.TotalAvailability != nil {
		warehouses := make([]models.WarehouseStock, 0, len(a.AvailabilityByWarehouse))
		sum := 0
		for _, w := range a.AvailabilityByWarehouse {
			warehouses = append(warehouses, models.WarehouseStock{
				WarehouseID: w.WarehouseID,
				Location:    w.Location,
				Quantity:    w.QuantityAvailable,
			})
			sum += w.QuantityAvailable
		}
		total := sum
		if a.TotalAvailability != nil {
			total = *a.TotalAvailability
		}
		return models.DetailedAvailability(total, warehouses)
	}
	if a.Available != nil {
		return models.SimpleAvailability(*a.Available)
	}
	return models.UnknownAvailability()
}

type detailResponse struct {
	IngramPartNumber   string      `json:"ingramPartNumber"`
	VendorPartNumber   string      `json:"vendorPartNumber"`
	Description        string      `json:"description"`
	VendorName         string      `json:"vendorName"`
	UPC                string      `json:"upc"`
	ProductCategory    string      `json:"productCategory"`
	ProductSubCategory string      `json:"productSubCategory"`
	ProductImages      []imageWire `json:"productImages"`
}

type imageWire struct {
	URL string `json:"url"`
}

func (d detailResponse) detail() *ProductDetail {
	out := &ProductDetail{
		PartNumber:       strings.TrimSpace(d.IngramPartNumber),
		VendorPartNumber: strings.TrimSpace(d.VendorPartNumber),
		Description:      strings.TrimSpace(d.Description),
		VendorName:       strings.TrimSpace(d.VendorName),
		Category:         strings.TrimSpace(d.ProductCategory),
		Subcategory:      strings.TrimSpace(d.ProductSubCategory),
		UPC:              strings.TrimSpace(d.UPC),
	}
	for _, img := range d.ProductImages {
		if u := strings.TrimSpace(img.URL); u != "" {
			out.ImageURLs = append(out.ImageURLs, u)
		}
	}
	return out
}
