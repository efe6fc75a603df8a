package distribution

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
)

// DefaultCurrency applies when the configuration names none.
const DefaultCurrency = "USD"

var (
	microsPerUnit   = big.NewInt(1_000_000)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	decimalPattern  = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// PriceMicros converts a decimal price in major units into micro-units,
// rounding half away from zero. The arithmetic is exact.
func PriceMicros(price string) (string, error) {
	if !decimalPattern.MatchString(price) {
		return "", fmt.Errorf("price %q must be a non-negative decimal", price)
	}
	r, ok := new(big.Rat).SetString(price)
	if !ok {
		return "", fmt.Errorf("price %q is not a number", price)
	}
	r.Mul(r, new(big.Rat).SetInt(microsPerUnit))
	q, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Lsh(rem, 1).Cmp(r.Denom()) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.String(), nil
}

// Pricing builds the price request. ok is false when the configuration
// sets neither free nor a price, in which case the price is left alone.
func Pricing(p config.Pricing) (pricing playstore.Pricing, ok bool, err error) {
	currency := p.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return playstore.Pricing{}, false, invalidPricing("distribution.pricing.currency", fmt.Errorf("currency %q must be a three-letter code", currency))
	}
	switch {
	case p.Free:
		return playstore.Pricing{PriceMicros: "0", Currency: currency}, true, nil
	case p.Price == "":
		return playstore.Pricing{}, false, nil
	}
	micros, err := PriceMicros(p.Price)
	if err != nil {
		return playstore.Pricing{}, false, invalidPricing("distribution.pricing.price", err)
	}
	return playstore.Pricing{PriceMicros: micros, Currency: currency}, true, nil
}

// CheckPricing validates the pricing block locally.
func CheckPricing(p config.Pricing) error {
	if p.Free && p.Price != "" {
		return invalidPricing("distribution.pricing", errors.New("free and price are mutually exclusive"))
	}
	_, _, err := Pricing(p)
	return err
}

func invalidPricing(field string, err error) error {
	return fault.Wrap(fault.ConfigInvalid, err).InStage(stageID).WithField(field)
}
