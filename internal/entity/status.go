package entity

import (
	"errors"
	"fmt"
)

// Status is the state of a single game.
type Status uint8

const (
	StatusInProgress Status = iota
	StatusDraw
	StatusXWon
	StatusOWon
)

var ErrUnknownGameStatus = errors.New("unknown game status")

var statusNames = map[Status]string{
	StatusInProgress: "in_progress",
	StatusDraw:       "draw",
	StatusXWon:       "x_won",
	StatusOWon:       "o_won",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsTerminal reports whether no further moves are accepted until a new game.
func (s Status) IsTerminal() bool {
	return s == StatusDraw || s == StatusXWon || s == StatusOWon
}

// Winner returns the winning mark, or MarkNone for a draw or a game in progress.
func (s Status) Winner() Mark {
	switch s {
	case StatusXWon:
		return MarkX
	case StatusOWon:
		return MarkO
	default:
		return MarkNone
	}
}

// WinnerOf returns the status reported when mark completes a line.
func WinnerOf(mark Mark) Status {
	if mark == MarkO {
		return StatusOWon
	}
	return StatusXWon
}

func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGameStatus, uint8(s))
	}
	return []byte(name), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownGameStatus, text)
}
