package apperror

import "errors"

var (
	ErrInvalidMove       = errors.New("invalid move")
	ErrOutOfBounds       = errors.New("position is out of bounds")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrInvalidMark       = errors.New("mark must be X or O")
	ErrGameFinished      = errors.New("game is already finished")
	ErrGamePaused        = errors.New("game is paused")
	ErrInvalidBoardSize  = errors.New("invalid board size")
	ErrInvalidWinLength  = errors.New("invalid win length")
	ErrInvalidPlayerName = errors.New("invalid player name")
	ErrSessionNotFound   = errors.New("session not found")
)
