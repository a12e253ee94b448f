package entity

import "time"

// Cue tells a client which feedback to give for the latest change.
type Cue string

const (
	CueNone     Cue = ""
	CueMove     Cue = "move"
	CueGameOver Cue = "game_over"
	CueTimeout  Cue = "timeout"
	CuePause    Cue = "pause"
	CueResume   Cue = "resume"
)

// BoardState is a serializable snapshot of a board.
type BoardState struct {
	Rows        int        `json:"rows"`
	Columns     int        `json:"columns"`
	WinLength   int        `json:"win_length"`
	Cells       [][]Mark   `json:"cells"`
	WinningLine []Position `json:"winning_line,omitempty"`
	Status      Status     `json:"status"`
}

// Session is everything a client needs to play a series of games on one board.
type Session struct {
	ID         string        `json:"id"`
	Board      BoardState    `json:"board"`
	ActiveMark Mark          `json:"active_mark"`
	Players    [2]Player     `json:"players"`
	Score      Score         `json:"score"`
	Paused     bool          `json:"paused"`
	TurnTime   time.Duration `json:"turn_time"`
	Deadline   time.Time     `json:"deadline"`
	Remaining  time.Duration `json:"remaining"`
	Cue        Cue           `json:"cue"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (that *Session) IsFinished() bool {
	return that.Board.Status.IsTerminal()
}

func (that *Session) IsOngoing() bool {
	return that.Board.Status == StatusInProgress
}

// HasTimer reports whether turns are limited in time.
func (that *Session) HasTimer() bool {
	return that.TurnTime > 0
}

// PlayerFor returns the player that places mark.
func (that *Session) PlayerFor(mark Mark) Player {
	for _, player := range that.Players {
		if player.Mark == mark {
			return player
		}
	}
	return Player{Mark: mark}
}

// TimeLeft returns the time left in the current turn at now.
func (that *Session) TimeLeft(now time.Time) time.Duration {
	switch {
	case !that.HasTimer() || that.IsFinished():
		return 0
	case that.Paused:
		return that.Remaining
	}

	if left := that.Deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}
