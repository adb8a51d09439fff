package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// NewProductEvent announces a product in an upstream catalog.
type NewProductEvent struct {
	TenantID   string `json:"tenantId,omitempty"`
	SupplierID string `json:"supplierId,omitempty"`

	ProductID    string           `json:"productId,omitempty"`
	BasID        string           `json:"basId,omitempty"`
	ProductName  string           `json:"productName"`
	BrandName    string           `json:"brandName,omitempty"`
	CategoryName string           `json:"categoryName,omitempty"`
	SectorName   string           `json:"sectorName,omitempty"`
	PackageName  string           `json:"packageName,omitempty"`
	Business     string           `json:"business,omitempty"`
	Capacity     *float64         `json:"capacity,omitempty"`
	InCase       int              `json:"incase"`
	Barcode      string           `json:"barcode,omitempty"`
	VendorID     string           `json:"vendorId,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
}

func (e NewProductEvent) externalID() string {
	if e.ProductID != "" {
		return e.ProductID
	}
	return e.BasID
}

func (e NewProductEvent) tenant(fallback string) string {
	return firstNonEmpty(e.SupplierID, e.TenantID, fallback)
}

func (e NewProductEvent) metadata() map[string]any {
	md := make(map[string]any)
	for k, v := range map[string]string{
		"sectorName":   e.SectorName,
		"categoryName": e.CategoryName,
		"packageName":  e.PackageName,
		"business":     e.Business,
		"brandName":    e.BrandName,
	} {
		if v != "" {
			md[k] = v
		}
	}
	return md
}

// ProductUpdatedEvent carries a sparse product update.
type ProductUpdatedEvent struct {
	TenantID      string        `json:"tenantId,omitempty"`
	SupplierID    string        `json:"supplierId,omitempty"`
	ProductID     string        `json:"productId"`
	UpdatedFields ProductFields `json:"updatedFields"`
}

// ProductFields are the product fields an upstream may change.
type ProductFields struct {
	ProductName *string  `json:"productName,omitempty"`
	Capacity    *float64 `json:"capacity,omitempty"`
	InCase      *int     `json:"incase,omitempty"`
	Barcode     *string  `json:"barcode,omitempty"`
	BrandName   *string  `json:"brandName,omitempty"`
}

// ProductDeactivatedEvent hides a product. ProductID is the catalog ID;
// ExternalProductID is resolved through the integration's correlation
// records when ProductID is empty.
type ProductDeactivatedEvent struct {
	TenantID          string `json:"tenantId,omitempty"`
	ProductID         string `json:"productId,omitempty"`
	ExternalProductID string `json:"externalProductId,omitempty"`
}

// MerchantProductsUpdatedEvent changes which products merchants may see.
type MerchantProductsUpdatedEvent struct {
	TenantID     string   `json:"tenantId,omitempty"`
	CustomerID   string   `json:"customerId,omitempty"`
	MerchantID   string   `json:"merchantId,omitempty"`
	MerchantIDs  []string `json:"merchantIds,omitempty"`
	ActiveList   []string `json:"activeList"`
	InactiveList []string `json:"inActiveList"`
}

func (e MerchantProductsUpdatedEvent) merchants() []string {
	out := make([]string, 0, len(e.MerchantIDs)+1)
	if e.MerchantID != "" {
		out = append(out, e.MerchantID)
	}
	for _, id := range e.MerchantIDs {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// PromoReceivedEvent announces an upstream promotion.
type PromoReceivedEvent struct {
	TenantID          string          `json:"tenantId,omitempty"`
	CustomerID        string          `json:"customerId,omitempty"`
	Name              string          `json:"name"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	ThresholdQuantity decimal.Decimal `json:"thresholdQuantity"`
	PromoPercent      decimal.Decimal `json:"promoPercent"`
	GiftQuantity      decimal.Decimal `json:"giftQuantity"`
	IsActive          bool            `json:"isActive"`
	Tradeshops        []int64         `json:"tradeshops"`
	Products          []string        `json:"products"`
	GiftProducts      []string        `json:"giftProducts"`
	PromoID           FlexString      `json:"thirdPartyPromoId"`
	PromoTypeCode     string          `json:"thirdPartyPromoTypeCode"`
}

// PromoUpdatedEvent carries a sparse promo update.
type PromoUpdatedEvent struct {
	ID            string      `json:"id"`
	UpdatedFields PromoFields `json:"updatedFields"`
}

// PromoFields are the promo fields an upstream may change.
type PromoFields struct {
	Name              *string          `json:"name,omitempty"`
	StartDate         *time.Time       `json:"startDate,omitempty"`
	EndDate           *time.Time       `json:"endDate,omitempty"`
	ThresholdQuantity *decimal.Decimal `json:"thresholdQuantity,omitempty"`
	PromoPercent      *decimal.Decimal `json:"promoPercent,omitempty"`
	GiftQuantity      *decimal.Decimal `json:"giftQuantity,omitempty"`
	IsActive          *bool            `json:"isActive,omitempty"`
	Tradeshops        []int64          `json:"tradeshops,omitempty"`
	Products          []string         `json:"products,omitempty"`
	GiftProducts      []string         `json:"giftProducts,omitempty"`
}

// InventoryCreatedEvent links a product to its inventory record.
type InventoryCreatedEvent struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
}

// FlexString accepts both JSON strings and numbers. Upstream IDs arrive
// in either form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return errors.Errorf("invalid id %s", raw)
	}
	*s = FlexString(raw)
	return nil
}

func decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Wrap(err, "decode event")
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
