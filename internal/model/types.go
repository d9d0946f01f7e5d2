// Package model defines domain types shared by the kiosk.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as returned by the vending service.
type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ProductOffering is a Product plus the server-computed purchasable flag.
//
// Purchasable reflects the balance at read time only and must be re-read
// after any balance-affecting action.
type ProductOffering struct {
	Product
	Purchasable bool `json:"purchasable"`
}

// SelectedItem aggregates repeated selections of one product.
type SelectedItem struct {
	ProductID int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice × Quantity.
func (i SelectedItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SessionState is the server's view of the current transaction.
//
// TotalSelectedCost is trusted as sent; the kiosk never recomputes it.
type SessionState struct {
	CurrentBalance    decimal.Decimal `json:"currentBalance"`
	SelectedProducts  []SelectedItem  `json:"selectedProducts"`
	TotalSelectedCost decimal.Decimal `json:"totalSelectedCost"`
}

// HasSelection reports whether at least one item is selected.
func (s SessionState) HasSelection() bool { return len(s.SelectedProducts) > 0 }

// Quantity returns how many units of productID are selected.
func (s SessionState) Quantity(productID int64) int {
	for _, it := range s.SelectedProducts {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

// Message is server feedback that is either a catalog key or literal text.
// IsKey is nil when the server did not say which.
type Message struct {
	Text  string
	IsKey *bool
}

// DispenseOutcome is the transient result of a dispense.
type DispenseOutcome struct {
	DispensedProducts []Product
	ChangeCoins       []decimal.Decimal
	Message           Message
}

// Snapshot is the kiosk's cached projection of the remote session.
// It is only ever replaced wholesale.
type Snapshot struct {
	Products    []ProductOffering
	Session     SessionState
	Loaded      bool
	Sequence    uint64
	RefreshedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate cached slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Products != nil {
		out.Products = append([]ProductOffering(nil), s.Products...)
	}
	if s.Session.SelectedProducts != nil {
		out.Session.SelectedProducts = append([]SelectedItem(nil), s.Session.SelectedProducts...)
	}
	return out
}

// Product looks up a catalog entry by id.
func (s Snapshot) Product(id int64) (ProductOffering, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return ProductOffering{}, false
}
