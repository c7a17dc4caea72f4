package basket

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	TypeGoods    ItemType = "goods"
	TypeShipping ItemType = "shipping"
	TypeOther    ItemType = "other"
)

type LineItem struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           ItemType        `json:"item_type"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent int             `json:"tax_rate_percent"`
}

// Snapshot is the immutable view of an order at payment time. Built fresh
// per payment attempt and owned by the adapter call that requested it.
type Snapshot struct {
	Lines       []LineItem      `json:"lines"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CapturedAt  time.Time       `json:"captured_at"`
}

// Build converts a basket into a gateway-agnostic snapshot.
//
// Shipping becomes a synthetic line only when its cost is non-zero: most
// gateways reject zero-priced line items, so the zero-cost line is omitted
// rather than sent. The tax rate is truncated to an integer percentage,
// never rounded, because gateways key tax reporting off this field.
func Build(b Basket) (Snapshot, error) {
	if len(b.Items) == 0 {
		return Snapshot{}, &InvalidBasketError{Reason: "no items"}
	}

	lines := make([]LineItem, 0, len(b.Items)+1)
	total := decimal.Zero

	for _, it := range b.Items {
		if it.Quantity <= 0 {
			return Snapshot{}, &InvalidBasketError{ProductCode: it.ProductCode, Reason: "non-positive quantity"}
		}
		price, err := parseAmount(it.Price)
		if err != nil {
			return Snapshot{}, &InvalidBasketError{ProductCode: it.ProductCode, Reason: "unparseable price"}
		}

		lines = append(lines, LineItem{
			ID:             it.ProductCode,
			Name:           it.Name,
			Type:           TypeGoods,
			Quantity:       it.Quantity,
			UnitPrice:      price,
			TaxRatePercent: truncateTaxRate(it.TaxRate),
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if b.Delivery != nil {
		cost, err := parseAmount(b.Delivery.Cost)
		if err != nil {
			return Snapshot{}, &InvalidBasketError{ProductCode: b.Delivery.ID, Reason: "unparseable shipping cost"}
		}
		if !cost.IsZero() {
			lines = append(lines, LineItem{
				ID:             b.Delivery.ID,
				Name:           b.Delivery.Name,
				Type:           TypeShipping,
				Quantity:       1,
				UnitPrice:      cost,
				TaxRatePercent: truncateTaxRate(b.Delivery.TaxRate),
			})
			total = total.Add(cost)
		}
	}

	return Snapshot{
		Lines:       lines,
		TotalAmount: total,
		Currency:    b.Currency,
		CapturedAt:  time.Now(),
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, &InvalidBasketError{Reason: "negative amount"}
	}
	return d, nil
}

// truncateTaxRate drops the fractional part ("19.9" -> 19). Malformed
// rates count as zero; the basket still pays, tax reporting just omits it.
func truncateTaxRate(s string) int {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0
	}
	return int(d.IntPart())
}
