// Package pricing turns cart or order lines into money. The cart view and
// order placement both go through these functions so the total a shopper
// sees is the total that is charged.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront/internal/model"
)

// TaxRate is the flat sales tax applied to every subtotal.
var TaxRate = decimal.RequireFromString("0.08")

// Shipping is free for every order.
var Shipping = decimal.Zero

// Line is one priced quantity. A line whose product no longer exists has a
// zero unit price.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineFor prices a cart item against the product it references. A nil
// product yields a zero-priced line.
func LineFor(item model.CartItem, product *model.Product) Line {
	if product == nil {
		return Line{UnitPrice: decimal.Zero, Quantity: item.Quantity}
	}
	return Line{UnitPrice: product.Price, Quantity: item.Quantity}
}

func LineSubtotal(l Line) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func CartTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineSubtotal(l))
	}
	return total
}

func Tax(total decimal.Decimal) decimal.Decimal {
	return total.Mul(TaxRate)
}

func GrandTotal(total decimal.Decimal) decimal.Decimal {
	return total.Add(Tax(total)).Add(Shipping)
}

type Summary struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	GrandTotal decimal.Decimal
}

func Summarize(total decimal.Decimal) Summary {
	return Summary{
		Subtotal:   total,
		Tax:        Tax(total),
		Shipping:   Shipping,
		GrandTotal: GrandTotal(total),
	}
}

// OrderLines converts snapshotted order items back into priced lines.
func OrderLines(items []model.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{UnitPrice: it.Price, Quantity: it.Quantity})
	}
	return lines
}
