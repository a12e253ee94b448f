package tictactoe

import (
	"errors"
	"fmt"
)

var ErrUnknownWinLengthRule = errors.New("unknown win length rule")

// WinLengthRule derives how many marks in a row win the game on a rows-by-columns board.
type WinLengthRule func(rows, columns int) int

// BalancedWinLength is the default rule: 3 on 3x3, 4 on 4x4 and 5x5, 5 on 6x6,
// and at most 4 on anything else.
func BalancedWinLength(rows, columns int) int {
	return sizedWinLength(min(rows, columns), 4)
}

// LongWinLength matches BalancedWinLength up to 6x6 and allows up to 5 in a row beyond.
func LongWinLength(rows, columns int) int {
	return sizedWinLength(min(rows, columns), 5)
}

// FixedWinLength always requires n marks in a row.
func FixedWinLength(n int) WinLengthRule {
	return func(int, int) int {
		return n
	}
}

func sizedWinLength(side, limit int) int {
	switch side {
	case 3:
		return 3
	case 4, 5:
		return 4
	case 6:
		return 5
	default:
		return min(side, limit)
	}
}

// RuleByName resolves a rule named in configuration.
func RuleByName(name string) (WinLengthRule, error) {
	switch name {
	case "", "balanced":
		return BalancedWinLength, nil
	case "long":
		return LongWinLength, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWinLengthRule, name)
	}
}
