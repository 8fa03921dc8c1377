package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Formatter renders prices and quantities with per-symbol decimal places.
// Prices are rounded half away from zero; quantities are truncated so a
// formatted size never exceeds the requested one.
type Formatter struct {
	PricePlaces    map[string]int32
	QuantityPlaces map[string]int32

	DefaultPricePlaces    int32
	DefaultQuantityPlaces int32
}

// NewFormatter returns a Formatter with two price places and whole-unit
// quantities unless overridden per symbol.
func NewFormatter() *Formatter {
	return &Formatter{
		PricePlaces:           make(map[string]int32),
		QuantityPlaces:        make(map[string]int32),
		DefaultPricePlaces:    2,
		DefaultQuantityPlaces: 0,
	}
}

// FormatPrice renders price with the configured places for symbol.
func (f *Formatter) FormatPrice(symbol string, price float64) string {
	places, ok := f.PricePlaces[strings.ToUpper(symbol)]
	if !ok {
		places = f.DefaultPricePlaces
	}
	return decimal.NewFromFloat(price).StringFixed(places)
}

// FormatQuantity renders quantity truncated to the configured places for
// symbol.
func (f *Formatter) FormatQuantity(symbol string, quantity float64) string {
	places, ok := f.QuantityPlaces[strings.ToUpper(symbol)]
	if !ok {
		places = f.DefaultQuantityPlaces
	}
	return decimal.NewFromFloat(quantity).Truncate(places).StringFixed(places)
}
