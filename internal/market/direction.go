package market

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDirection is returned when a direction string cannot be parsed.
var ErrUnknownDirection = errors.New("unknown conversion direction")

// Direction identifies the source and target asset of a conversion.
type Direction int

const (
	// AtoB converts asset A into asset B.
	AtoB Direction = iota + 1
	// BtoA converts asset B into asset A.
	BtoA
)

// Directions lists both supported directions in a stable order.
var Directions = []Direction{AtoB, BtoA}

// Valid reports whether d is one of the supported directions.
func (d Direction) Valid() bool {
	return d == AtoB || d == BtoA
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case AtoB:
		return BtoA
	case BtoA:
		return AtoB
	default:
		return d
	}
}

func (d Direction) String() string {
	switch d {
	case AtoB:
		return "a-to-b"
	case BtoA:
		return "b-to-a"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts the canonical names produced by String plus a few
// loose spellings ("atob", "a_to_b", "a->b").
func ParseDirection(raw string) (Direction, error) {
	switch normalise(raw) {
	case "atob":
		return AtoB, nil
	case "btoa":
		return BtoA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
}

func normalise(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("->", "to", "→", "to", "-", "", "_", "", " ", "").Replace(s)
	return s
}
