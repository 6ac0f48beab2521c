package market

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset describes one side of the convertible pair.
type Asset struct {
	Symbol   string
	Decimals int32
}

// Scale returns 10^Decimals, the number of base units in one whole unit.
func (a Asset) Scale() decimal.Decimal {
	return decimal.New(1, a.Decimals)
}

// OneUnit returns one whole unit expressed in base units.
func (a Asset) OneUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Decimals)), nil)
}

// Pair binds asset A and asset B. A is the asset whose USD price is fetched.
type Pair struct {
	A Asset
	B Asset
}

// Source returns the asset spent in direction d.
func (p Pair) Source(d Direction) Asset {
	if d == BtoA {
		return p.B
	}
	return p.A
}

// Target returns the asset received in direction d.
func (p Pair) Target(d Direction) Asset {
	if d == BtoA {
		return p.A
	}
	return p.B
}

// UnitAmount returns the amount quoted for a rate in direction d:
// one whole unit of the source asset.
func (p Pair) UnitAmount(d Direction) *big.Int {
	return p.Source(d).OneUnit()
}

// Label renders a direction using asset symbols, e.g. "QUAI->QI".
func (p Pair) Label(d Direction) string {
	return p.Source(d).Symbol + "->" + p.Target(d).Symbol
}

// ParseDirection resolves either a canonical direction name or a symbol pair
// such as "QUAI->QI" / "qi-quai".
func (p Pair) ParseDirection(raw string) (Direction, error) {
	if d, err := ParseDirection(raw); err == nil {
		return d, nil
	}

	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, sep := range []string{"->", "→", "/", ":", "-", "_", " TO "} {
		parts := strings.SplitN(s, sep, 2)
		if len(parts) != 2 {
			continue
		}
		from, to := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		for _, d := range Directions {
			if strings.EqualFold(p.Source(d).Symbol, from) && strings.EqualFold(p.Target(d).Symbol, to) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
}
