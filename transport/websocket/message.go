package websocket

import (
	"encoding/json"
	"errors"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
)

const (
	actionSessionNew    = "session:new"
	actionSessionJoin   = "session:join"
	actionGameTurn      = "game:turn"
	actionGameNew       = "game:new"
	actionGamePause     = "game:pause"
	actionGameResize    = "game:resize"
	actionPlayersRename = "players:rename"
	actionScoreReset    = "score:reset"

	actionSessionState = "session:state"
	actionError        = "error"
)

var ErrNotJoined = errors.New("no session joined")

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is the union of all request fields; each action reads the ones it needs.
type Payload struct {
	SessionID string           `json:"session_id,omitempty"`
	Size      int              `json:"size,omitempty"`
	PlayerX   string           `json:"player_x,omitempty"`
	PlayerO   string           `json:"player_o,omitempty"`
	Position  *entity.Position `json:"position,omitempty"`
}

type ResponsePayload struct {
	Action   string          `json:"action,omitempty"`
	Session  *entity.Session `json:"session,omitempty"`
	TimeLeft int64           `json:"time_left_ms,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// clientErrors are reported to clients verbatim; anything else is hidden behind a generic message.
var clientErrors = []error{
	apperror.ErrInvalidMove,
	apperror.ErrGameFinished,
	apperror.ErrGamePaused,
	apperror.ErrInvalidBoardSize,
	apperror.ErrInvalidPlayerName,
	apperror.ErrSessionNotFound,
	ErrNotJoined,
	errBadPayload,
	errUnknownAction,
}

func errorMessage(err error) string {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return err.Error()
		}
	}

	return "internal server error"
}
