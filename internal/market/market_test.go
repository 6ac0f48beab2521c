package market

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

var quaiQi = Pair{
	A: Asset{Symbol: "QUAI", Decimals: 18},
	B: Asset{Symbol: "QI", Decimals: 3},
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"a-to-b":  AtoB,
		"AtoB":    AtoB,
		"a->b":    AtoB,
		"b_to_a":  BtoA,
		" B-TO-A": BtoA,
	}
	for raw, want := range cases {
		got, err := ParseDirection(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseDirection("sideways")
	require.True(t, errors.Is(err, ErrUnknownDirection))
}

func TestPairParseDirectionBySymbols(t *testing.T) {
	d, err := quaiQi.ParseDirection("QUAI->QI")
	require.NoError(t, err)
	require.Equal(t, AtoB, d)

	d, err = quaiQi.ParseDirection("qi-quai")
	require.NoError(t, err)
	require.Equal(t, BtoA, d)

	_, err = quaiQi.ParseDirection("QI->QI")
	require.ErrorIs(t, err, ErrUnknownDirection)
}

func TestPairUnitAmountIsOneSourceUnit(t *testing.T) {
	require.Equal(t, 0, quaiQi.UnitAmount(AtoB).Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	require.Equal(t, 0, quaiQi.UnitAmount(BtoA).Cmp(big.NewInt(1000)))
	require.Equal(t, "QI->QUAI", quaiQi.Label(BtoA))
	require.Equal(t, "QI", quaiQi.Target(AtoB).Symbol)
}

func TestDirectionOpposite(t *testing.T) {
	require.Equal(t, BtoA, AtoB.Opposite())
	require.Equal(t, AtoB, BtoA.Opposite())
	require.False(t, Direction(0).Valid())
}
