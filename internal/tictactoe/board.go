// Package tictactoe implements the board engine: it owns the grid, applies moves and
// detects wins along rows, columns and both diagonals for a configurable run length.
package tictactoe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
)

const (
	MinSize = 3
	MaxSize = 15
)

var ErrCorruptState = errors.New("corrupt board state")

type direction struct {
	dRow, dCol int
}

// Scan order matters: the first direction that completes a run becomes the winning line.
var directions = [...]direction{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down
	{1, -1}, // diagonal up
}

// Board is a rows-by-columns grid of marks. It is not safe for concurrent use.
type Board struct {
	rows      int
	columns   int
	winLength int

	grid        [][]entity.Mark
	winningLine []entity.Position
	status      entity.Status
}

type Option func(*options)

type options struct {
	rule WinLengthRule
}

// WithWinLengthRule overrides the rule that derives the win length from the board size.
func WithWinLengthRule(rule WinLengthRule) Option {
	return func(o *options) {
		if rule != nil {
			o.rule = rule
		}
	}
}

// NewBoard creates an empty board. The win length is derived once from the dimensions.
func NewBoard(rows, columns int, opts ...Option) (*Board, error) {
	o := options{rule: BalancedWinLength}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateSize(rows, columns); err != nil {
		return nil, err
	}

	winLength := o.rule(rows, columns)
	if err := validateWinLength(rows, columns, winLength); err != nil {
		return nil, err
	}

	return &Board{
		rows:      rows,
		columns:   columns,
		winLength: winLength,
		grid:      newGrid(rows, columns),
		status:    entity.StatusInProgress,
	}, nil
}

// Restore rebuilds a board from a snapshot taken with State.
func Restore(state entity.BoardState) (*Board, error) {
	if err := validateSize(state.Rows, state.Columns); err != nil {
		return nil, err
	}

	if err := validateWinLength(state.Rows, state.Columns, state.WinLength); err != nil {
		return nil, err
	}

	if len(state.Cells) != state.Rows {
		return nil, fmt.Errorf("%w: %d rows of cells for a %d-row board", ErrCorruptState, len(state.Cells), state.Rows)
	}

	board := &Board{
		rows:      state.Rows,
		columns:   state.Columns,
		winLength: state.WinLength,
		grid:      newGrid(state.Rows, state.Columns),
		status:    state.Status,
	}

	for row, cells := range state.Cells {
		if len(cells) != state.Columns {
			return nil, fmt.Errorf("%w: row %d has %d cells", ErrCorruptState, row, len(cells))
		}

		for col, mark := range cells {
			if mark != entity.MarkNone && !mark.IsPlayer() {
				return nil, fmt.Errorf("%w: unknown mark at %s", ErrCorruptState, entity.Position{Row: row, Column: col})
			}
			board.grid[row][col] = mark
		}
	}

	for _, pos := range state.WinningLine {
		if !board.inBounds(pos.Row, pos.Column) {
			return nil, fmt.Errorf("%w: winning line leaves the board at %s", ErrCorruptState, pos)
		}
	}
	board.winningLine = append([]entity.Position(nil), state.WinningLine...)

	if err := board.checkStatus(); err != nil {
		return nil, err
	}

	return board, nil
}

// checkStatus rejects a restored status that the cells could not have produced.
func (that *Board) checkStatus() error {
	full := that.drawOrContinue() == entity.StatusDraw

	switch that.status {
	case entity.StatusInProgress:
		if full {
			return fmt.Errorf("%w: game in progress on a full board", ErrCorruptState)
		}
	case entity.StatusDraw:
		if !full {
			return fmt.Errorf("%w: draw with empty cells left", ErrCorruptState)
		}
	case entity.StatusXWon, entity.StatusOWon:
		winner := that.status.Winner()
		if len(that.winningLine) < that.winLength {
			return fmt.Errorf("%w: %s without a winning line", ErrCorruptState, that.status)
		}
		for _, pos := range that.winningLine {
			if that.grid[pos.Row][pos.Column] != winner {
				return fmt.Errorf("%w: winning line of %s crosses %s", ErrCorruptState, winner, pos)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrCorruptState, that.status)
	}

	if len(that.winningLine) > 0 {
		return fmt.Errorf("%w: winning line on a %s board", ErrCorruptState, that.status)
	}

	return nil
}

func newGrid(rows, columns int) [][]entity.Mark {
	grid := make([][]entity.Mark, rows)
	for row := range grid {
		grid[row] = make([]entity.Mark, columns)
	}
	return grid
}

func validateSize(rows, columns int) error {
	if rows < MinSize || rows > MaxSize || columns < MinSize || columns > MaxSize {
		return fmt.Errorf("%w: %dx%d, sides must be between %d and %d", apperror.ErrInvalidBoardSize, rows, columns, MinSize, MaxSize)
	}
	return nil
}

func validateWinLength(rows, columns, winLength int) error {
	if winLength < 1 || winLength > max(rows, columns) {
		return fmt.Errorf("%w: %d on a %dx%d board", apperror.ErrInvalidWinLength, winLength, rows, columns)
	}
	return nil
}

func (that *Board) Rows() int { return that.rows }

func (that *Board) Columns() int { return that.columns }

func (that *Board) WinLength() int { return that.winLength }

// Status returns the status computed by the latest move.
func (that *Board) Status() entity.Status { return that.status }

// Cell returns the mark at pos, or MarkNone when pos is off the board.
func (that *Board) Cell(pos entity.Position) entity.Mark {
	if !that.inBounds(pos.Row, pos.Column) {
		return entity.MarkNone
	}
	return that.grid[pos.Row][pos.Column]
}

// WinningLine returns the run that ended the game. It is empty unless the status is a win.
func (that *Board) WinningLine() []entity.Position {
	return append([]entity.Position(nil), that.winningLine...)
}

// NewGame clears every cell and the winning line. The dimensions are kept.
func (that *Board) NewGame() {
	for _, cells := range that.grid {
		clear(cells)
	}

	that.winningLine = nil
	that.status = entity.StatusInProgress
}

// ApplyMove places mark at pos and returns the resulting status. A rejected move leaves
// the board untouched.
func (that *Board) ApplyMove(mark entity.Mark, pos entity.Position) (entity.Status, error) {
	if that.status.IsTerminal() {
		return that.status, apperror.ErrGameFinished
	}

	if err := that.validateMove(mark, pos); err != nil {
		return that.status, fmt.Errorf("%w: %w", apperror.ErrInvalidMove, err)
	}

	that.grid[pos.Row][pos.Column] = mark

	if line := that.findLine(mark, pos); line != nil {
		that.winningLine = line
		that.status = entity.WinnerOf(mark)

		return that.status, nil
	}

	that.winningLine = nil
	that.status = that.drawOrContinue()

	return that.status, nil
}

func (that *Board) validateMove(mark entity.Mark, pos entity.Position) error {
	if !mark.IsPlayer() {
		return apperror.ErrInvalidMark
	}

	if !that.inBounds(pos.Row, pos.Column) {
		return fmt.Errorf("%w: %s on a %dx%d board", apperror.ErrOutOfBounds, pos, that.rows, that.columns)
	}

	if that.grid[pos.Row][pos.Column] != entity.MarkNone {
		return fmt.Errorf("%w: %s", apperror.ErrCellOccupied, pos)
	}

	return nil
}

// findLine returns the first run through pos of at least winLength marks, listed as
// pos, then the forward extension, then the backward extension.
func (that *Board) findLine(mark entity.Mark, pos entity.Position) []entity.Position {
	for _, dir := range directions {
		line := []entity.Position{pos}
		line = that.extend(line, mark, pos, dir.dRow, dir.dCol)
		line = that.extend(line, mark, pos, -dir.dRow, -dir.dCol)

		if len(line) >= that.winLength {
			return line
		}
	}

	return nil
}

func (that *Board) extend(line []entity.Position, mark entity.Mark, from entity.Position, dRow, dCol int) []entity.Position {
	row, col := from.Row+dRow, from.Column+dCol
	for that.inBounds(row, col) && that.grid[row][col] == mark {
		line = append(line, entity.Position{Row: row, Column: col})
		row += dRow
		col += dCol
	}
	return line
}

func (that *Board) drawOrContinue() entity.Status {
	for _, cells := range that.grid {
		for _, mark := range cells {
			if mark == entity.MarkNone {
				return entity.StatusInProgress
			}
		}
	}
	return entity.StatusDraw
}

func (that *Board) inBounds(row, col int) bool {
	return row >= 0 && row < that.rows && col >= 0 && col < that.columns
}

// State returns a deep copy of the board suitable for storage.
func (that *Board) State() entity.BoardState {
	cells := make([][]entity.Mark, that.rows)
	for row := range cells {
		cells[row] = append([]entity.Mark(nil), that.grid[row]...)
	}

	return entity.BoardState{
		Rows:        that.rows,
		Columns:     that.columns,
		WinLength:   that.winLength,
		Cells:       cells,
		WinningLine: that.WinningLine(),
		Status:      that.status,
	}
}

func (that *Board) String() string {
	var s strings.Builder
	for row, cells := range that.grid {
		if row > 0 {
			s.WriteByte('\n')
		}
		for col, mark := range cells {
			if col > 0 {
				s.WriteByte('|')
			}
			if mark == entity.MarkNone {
				s.WriteByte('.')
				continue
			}
			s.WriteString(mark.String())
		}
	}
	return s.String()
}
