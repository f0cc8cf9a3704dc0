// Package fee computes platform commissions from a fixed percentage table.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pocket-settlement/internal"
)

type Direction string

const (
	OutCard Direction = "out_card"
	InCard  Direction = "in_card"
	InSBP   Direction = "in_sbp"
)

const (
	MethodCard = "card"
	MethodSBP  = "sbp"
)

// Rates maps a direction to its commission in percent.
type Rates map[Direction]decimal.Decimal

var hundred = decimal.NewFromInt(100)

func DefaultRates() Rates {
	return Rates{
		OutCard: decimal.RequireFromString("2.0"),
		InCard:  decimal.RequireFromString("3.0"),
		InSBP:   decimal.RequireFromString("2.5"),
	}
}

// RatesFromConfig overlays configured percentages on top of the defaults.
func RatesFromConfig(cfg internal.FeesConfig) (Rates, error) {
	rates := DefaultRates()
	for dir, raw := range map[Direction]string{OutCard: cfg.OutCard, InCard: cfg.InCard, InSBP: cfg.InSBP} {
		if raw == "" {
			continue
		}
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("fees.%s: %w", dir, err)
		}
		if pct.IsNegative() {
			return nil, fmt.Errorf("fees.%s: must not be negative", dir)
		}
		rates[dir] = pct
	}
	return rates, nil
}

type Calculator struct {
	rates Rates
}

func NewCalculator(rates Rates) *Calculator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Fee returns round(amount * rate / 100) in minor units, rounding halves away
// from zero. Unknown directions and non-positive amounts carry no fee.
func (c *Calculator) Fee(amount int64, dir Direction) int64 {
	if amount <= 0 {
		return 0
	}
	rate, ok := c.rates[dir]
	if !ok {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Div(hundred).Round(0).IntPart()
}

func (c *Calculator) Rate(dir Direction) decimal.Decimal {
	return c.rates[dir]
}

// ForPayment maps an incoming payment method to its fee direction.
func ForPayment(method string) (Direction, error) {
	switch method {
	case MethodCard:
		return InCard, nil
	case MethodSBP:
		return InSBP, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", method)
	}
}
