package entity

// Player is a named participant bound to one mark for the lifetime of a session.
type Player struct {
	Name string `json:"name"`
	Mark Mark   `json:"mark"`
}

// Score is the tally of finished games within one session.
type Score struct {
	X     int `json:"x"`
	O     int `json:"o"`
	Draws int `json:"draws"`
}

// Record adds a finished game to the tally. Non-terminal statuses are ignored.
func (that *Score) Record(status Status) {
	switch status {
	case StatusXWon:
		that.X++
	case StatusOWon:
		that.O++
	case StatusDraw:
		that.Draws++
	case StatusInProgress:
	}
}

// Standing is one leaderboard row, aggregated across sessions by player name.
type Standing struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
	Rank   int    `json:"rank"`
}

// Played returns the number of finished games.
func (that *Standing) Played() int {
	return that.Wins + that.Losses + that.Draws
}
