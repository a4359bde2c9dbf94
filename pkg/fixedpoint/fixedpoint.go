// Package fixedpoint implements the 10^18 fixed-point arithmetic used
// for every monetary and quantity field in the engine.
//
// An Amount is a non-negative integer interpreted as a real number
// divided by 10^18. Exactly one scale is used throughout; there are no
// mixed scales. Intermediate products are computed at arbitrary
// precision and results are bounded at 256 bits, so nothing ever
// overflows silently. Rounding is always round-half-up at the 10^18
// scale, which determines settlement amounts to the smallest unit.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/velora-fi/poolengine/common/errors"
)

// Scale is the number of decimal digits carried by an Amount.
const Scale = 18

var (
	unit   = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)
	maxVal = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	two    = big.NewInt(2)
)

// Amount is a non-negative 10^18-scaled integer. The zero value is
// usable and equals zero.
type Amount struct {
	n *big.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// One returns the amount representing exactly 1.0 (10^18 scaled units).
func One() Amount { return Amount{n: new(big.Int).Set(unit)} }

// FromUnits builds an Amount from a raw count of 10^-18 units.
func FromUnits(v int64) (Amount, error) {
	if v < 0 {
		return Amount{}, errors.ErrNegativeAmount
	}
	return Amount{n: big.NewInt(v)}, nil
}

// FromInt builds an Amount representing v whole units (v · 10^18).
func FromInt(v int64) (Amount, error) {
	if v < 0 {
		return Amount{}, errors.ErrNegativeAmount
	}
	return Amount{n: new(big.Int).Mul(big.NewInt(v), unit)}, nil
}

// MustInt is FromInt for constants known to be non-negative.
func MustInt(v int64) Amount {
	a, err := FromInt(v)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBig builds an Amount from a raw scaled integer. The value is
// copied.
func FromBig(v *big.Int) (Amount, error) {
	if v == nil {
		return Amount{}, nil
	}
	if v.Sign() < 0 {
		return Amount{}, errors.ErrNegativeAmount
	}
	if v.Cmp(maxVal) > 0 {
		return Amount{}, errors.ErrOverflow
	}
	return Amount{n: new(big.Int).Set(v)}, nil
}

// FromDecimal converts a human-readable decimal into a scaled Amount,
// truncating digits beyond the 10^18 scale.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, errors.ErrNegativeAmount
	}
	scaled := d.Shift(Scale).Truncate(0)
	return FromBig(scaled.BigInt())
}

// MustParse parses a decimal string into an Amount and panics on
// failure. Intended for tests and configuration defaults.
func MustParse(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("fixedpoint: parse %q: %v", s, err))
	}
	a, err := FromDecimal(d)
	if err != nil {
		panic(fmt.Sprintf("fixedpoint: parse %q: %v", s, err))
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.n == nil {
		return new(big.Int)
	}
	return a.n
}

// BigInt returns a copy of the raw scaled integer.
func (a Amount) BigInt() *big.Int { return new(big.Int).Set(a.big()) }

// Decimal converts the Amount back to a human-readable decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.BigInt(), -Scale)
}

// String renders the Amount as a decimal string.
func (a Amount) String() string { return a.Decimal().String() }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// Cmp compares a and b, returning -1, 0, or +1.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// Equal reports whether a and b are bit-exact equal.
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

func checked(n *big.Int) (Amount, error) {
	if n.Cmp(maxVal) > 0 {
		return Amount{}, errors.ErrOverflow
	}
	return Amount{n: n}, nil
}

// Add returns a + b, failing with ErrOverflow past the 256-bit bound.
func Add(a, b Amount) (Amount, error) {
	return checked(new(big.Int).Add(a.big(), b.big()))
}

// Sub returns a - b, failing with ErrUnderflow when the result would
// be negative.
func Sub(a, b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Amount{}, errors.ErrUnderflow
	}
	return Amount{n: new(big.Int).Sub(a.big(), b.big())}, nil
}

// Mul returns the raw product a·b without rescaling, failing with
// ErrOverflow past the 256-bit bound.
func Mul(a, b Amount) (Amount, error) {
	return checked(new(big.Int).Mul(a.big(), b.big()))
}

// roundHalfUpDiv computes num/den rounded half up. den must be > 0 and
// num must be >= 0.
func roundHalfUpDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if new(big.Int).Mul(r, two).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ScaledMul returns round-half-up(a·b / 10^18).
func ScaledMul(a, b Amount) (Amount, error) {
	p := new(big.Int).Mul(a.big(), b.big())
	return checked(roundHalfUpDiv(p, unit))
}

// ScaledDiv returns round-half-up(a·10^18 / b), failing with
// ErrDivisionByZero when b is zero.
func ScaledDiv(a, b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, errors.ErrDivisionByZero
	}
	p := new(big.Int).Mul(a.big(), unit)
	return checked(roundHalfUpDiv(p, b.big()))
}

// MulInt returns a·n for an unscaled non-negative integer n.
func MulInt(a Amount, n int64) (Amount, error) {
	if n < 0 {
		return Amount{}, errors.ErrNegativeAmount
	}
	return checked(new(big.Int).Mul(a.big(), big.NewInt(n)))
}

// DivInt returns round-half-up(a / n) for an unscaled positive
// integer n.
func DivInt(a Amount, n int64) (Amount, error) {
	if n <= 0 {
		return Amount{}, errors.ErrDivisionByZero
	}
	return Amount{n: roundHalfUpDiv(a.big(), big.NewInt(n))}, nil
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
