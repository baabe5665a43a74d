// Package decimals converts amounts between the local token resolution and the
// shared resolution carried on the wire.
package decimals

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidRate = errors.New("decimals: invalid conversion rate")
	ErrOverflow    = errors.New("decimals: shared amount overflows uint64")
)

// Converter holds the fixed local/shared conversion rate for one asset.
type Converter struct {
	rate *uint256.Int
}

// MaxRateExponent is the largest decimal gap for which every shared amount
// still converts to a local amount without wrapping 256 bits.
const MaxRateExponent = 57

// NewConverter derives rate = 10^(localDecimals-sharedDecimals).
func NewConverter(localDecimals, sharedDecimals uint8) (*Converter, error) {
	if sharedDecimals > localDecimals {
		return nil, fmt.Errorf("%w: shared decimals %d exceed local decimals %d", ErrInvalidRate, sharedDecimals, localDecimals)
	}
	exp := uint64(localDecimals - sharedDecimals)
	if exp > MaxRateExponent {
		return nil, fmt.Errorf("%w: 10^%d exceeds 10^%d", ErrInvalidRate, exp, MaxRateExponent)
	}
	rate := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(exp))
	return NewConverterWithRate(rate)
}

// NewConverterWithRate uses an explicit rate. It must be at least 1 and
// small enough that MaxUint64*rate fits 256 bits.
func NewConverterWithRate(rate *uint256.Int) (*Converter, error) {
	if rate == nil || rate.IsZero() {
		return nil, fmt.Errorf("%w: rate must be >= 1", ErrInvalidRate)
	}
	if _, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(math.MaxUint64), rate); overflow {
		return nil, fmt.Errorf("%w: rate %s overflows local amounts", ErrInvalidRate, rate.Dec())
	}
	return &Converter{rate: new(uint256.Int).Set(rate)}, nil
}

// Rate returns a copy of the conversion rate.
func (c *Converter) Rate() *uint256.Int {
	return new(uint256.Int).Set(c.rate)
}

// ToShared converts a local amount to shared resolution, truncating any dust.
func (c *Converter) ToShared(amount *uint256.Int) (uint64, error) {
	q := new(uint256.Int).Div(amount, c.rate)
	if !q.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, amount.Dec())
	}
	return q.Uint64(), nil
}

// ToLocal converts a shared amount back to local resolution.
func (c *Converter) ToLocal(amountSD uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(amountSD), c.rate)
}

// RemoveDust splits amount into the part representable in shared resolution and
// the remainder that stays with the sender.
func (c *Converter) RemoveDust(amount *uint256.Int) (clean, dust *uint256.Int) {
	dust = new(uint256.Int).Mod(amount, c.rate)
	clean = new(uint256.Int).Sub(amount, dust)
	return clean, dust
}

// MaxLocal is the largest local amount that still fits the wire amount field.
func (c *Converter) MaxLocal() *uint256.Int {
	return c.ToLocal(math.MaxUint64)
}
