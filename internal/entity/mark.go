package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
)

// Mark is the content of a board cell.
type Mark uint8

const (
	MarkNone Mark = iota
	MarkX
	MarkO
)

func (m Mark) String() string {
	switch m {
	case MarkX:
		return "X"
	case MarkO:
		return "O"
	default:
		return ""
	}
}

// Opponent returns the other player's mark, or MarkNone for an empty mark.
func (m Mark) Opponent() Mark {
	switch m {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkNone
	}
}

// IsPlayer reports whether m is X or O.
func (m Mark) IsPlayer() bool {
	return m == MarkX || m == MarkO
}

func (m Mark) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mark) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "":
		*m = MarkNone
	case "X":
		*m = MarkX
	case "O":
		*m = MarkO
	default:
		return fmt.Errorf("%w: %q", apperror.ErrInvalidMark, text)
	}

	return nil
}

// Position is a zero-based cell coordinate.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Column)
}
