package session

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

// CoinResponse is the reply to InsertCoin.
type CoinResponse struct {
	CurrentBalance decimal.Decimal `json:"currentBalance"`
}

// SelectionResponse is the reply to SelectProduct and DeselectProduct.
type SelectionResponse struct {
	Message string         `json:"message"`
	IsKey   *bool          `json:"isKey,omitempty"`
	Product *model.Product `json:"product,omitempty"`
}

// Feedback returns the server message.
func (r *SelectionResponse) Feedback() model.Message {
	return model.Message{Text: r.Message, IsKey: r.IsKey}
}

// DispenseResponse is the reply to Dispense.
type DispenseResponse struct {
	DispensedProducts []model.Product   `json:"dispensedProducts"`
	ChangeCoins       []decimal.Decimal `json:"changeCoins"`
	Message           string            `json:"message"`
	IsKey             *bool             `json:"isKey,omitempty"`
}

// Outcome converts the response into a transient DispenseOutcome.
func (r *DispenseResponse) Outcome() model.DispenseOutcome {
	return model.DispenseOutcome{
		DispensedProducts: r.DispensedProducts,
		ChangeCoins:       r.ChangeCoins,
		Message:           model.Message{Text: r.Message, IsKey: r.IsKey},
	}
}

// CancelResponse is the reply to Cancel.
type CancelResponse struct {
	RefundedCoins []decimal.Decimal `json:"refundedCoins"`
	Message       string            `json:"message"`
	IsKey         *bool             `json:"isKey,omitempty"`
}

// Feedback returns the server message.
func (r *CancelResponse) Feedback() model.Message {
	return model.Message{Text: r.Message, IsKey: r.IsKey}
}

// AddProductRequest registers a new catalog entry.
type AddProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type coinRequest struct {
	Value json.Number `json:"value"`
}

type selectionRequest struct {
	ProductID int64 `json:"productId"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	IsKey   *bool  `json:"isKey,omitempty"`
}

type addProductBody struct {
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
}
