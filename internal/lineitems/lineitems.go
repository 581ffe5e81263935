// Package lineitems builds the product line snapshot shared by orders,
// transactions and invoices.
package lineitems

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/money"
)

// Line is the transport shape of a document line.
type Line struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SKU          string          `json:"sku"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	LineVAT      decimal.Decimal `json:"line_vat"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// Build snapshots product and prices the line.
func Build(product *catalog.Product, quantity, unitPrice decimal.Decimal) models.LineItem {
	return Price(models.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
		Unit:        product.Unit,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		VATRate:     product.VATRate,
	})
}

// Price recomputes the derived amounts from quantity, price and rate.
func Price(item models.LineItem) models.LineItem {
	totals := money.Line(item.Quantity, item.UnitPrice, item.VATRate)
	item.LineSubtotal = totals.Subtotal
	item.LineVAT = totals.VAT
	item.LineTotal = totals.Total
	return item
}

// Totals sums already priced lines.
func Totals(items []models.LineItem) money.Totals {
	lines := make([]money.LineTotals, 0, len(items))
	for _, item := range items {
		lines = append(lines, money.LineTotals{Subtotal: item.LineSubtotal, VAT: item.LineVAT, Total: item.LineTotal})
	}
	return money.Sum(lines)
}

func View(item models.LineItem) Line {
	return Line{
		ProductID:    item.ProductID,
		ProductName:  item.ProductName,
		SKU:          item.SKU,
		Unit:         item.Unit,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
		VATRate:      item.VATRate,
		LineSubtotal: item.LineSubtotal,
		LineVAT:      item.LineVAT,
		LineTotal:    item.LineTotal,
	}
}
