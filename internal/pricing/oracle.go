// Package pricing supplies current prices for trading symbols. The tick
// generator itself is external; this package only exposes lookup at the
// oracle interface boundary.
package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable indicates no current price exists for the symbol.
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle resolves the current quote-per-base price for a symbol.
type Oracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StaticOracle serves prices from an in-memory table. It backs development
// mode, tests, and the fallback path of the Redis oracle.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticOracle builds an oracle over the provided symbol table. The table
// may be nil or empty; prices can be set later.
func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	table := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		table[normalize(symbol)] = price
	}
	return &StaticOracle{prices: table}
}

// CurrentPrice returns the table entry for the symbol.
func (o *StaticOracle) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[normalize(symbol)]
	if !ok {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	return price, nil
}

// SetPrice updates one symbol's price.
func (o *StaticOracle) SetPrice(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[normalize(symbol)] = price
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
