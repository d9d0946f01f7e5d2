package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidCoin is returned for values outside the accepted denominations.
var ErrInvalidCoin = errors.New("invalid coin")

// Coin is an accepted denomination expressed in hundredths of the currency unit.
type Coin int64

const (
	CoinHalf Coin = 50
	CoinOne  Coin = 100
	CoinTwo  Coin = 200
	CoinFive Coin = 500
	CoinTen  Coin = 1000
)

var acceptedCoins = []Coin{CoinHalf, CoinOne, CoinTwo, CoinFive, CoinTen}

// Coins returns the accepted denominations in ascending order.
func Coins() []Coin { return append([]Coin(nil), acceptedCoins...) }

// Valid reports whether c is an accepted denomination.
func (c Coin) Valid() bool {
	for _, a := range acceptedCoins {
		if c == a {
			return true
		}
	}
	return false
}

// Decimal returns the coin value in currency units.
func (c Coin) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

func (c Coin) String() string { return FormatAmount(c.Decimal()) }

// ParseCoin parses a currency amount such as "0.5" or "10.00".
func ParseCoin(s string) (Coin, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoin, s)
	}
	return CoinFromDecimal(d)
}

// CoinFromDecimal maps a currency amount to its denomination.
func CoinFromDecimal(d decimal.Decimal) (Coin, error) {
	for _, c := range acceptedCoins {
		if c.Decimal().Equal(d) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidCoin, d.String())
}

// FormatAmount renders an amount with two fraction digits.
func FormatAmount(d decimal.Decimal) string { return d.StringFixed(2) }

// FormatAmounts renders amounts with two fraction digits, comma separated.
func FormatAmounts(ds []decimal.Decimal) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, FormatAmount(d))
	}
	return strings.Join(parts, ", ")
}
