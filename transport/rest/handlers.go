package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type sessionResponse struct {
	Session  *entity.Session `json:"session"`
	TimeLeft int64           `json:"time_left_ms"`
}

type leaderboardResponse struct {
	Standings []entity.Standing `json:"standings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "GetSessionHandler")

	session, err := that.manager.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Error("failed to get session", "error", err)
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, sessionResponse{
		Session:  session,
		TimeLeft: session.TimeLeft(that.now()).Milliseconds(),
	})
}

func (that *Server) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "EndSessionHandler")

	if err := that.manager.EndSession(r.Context(), r.PathValue("id")); err != nil {
		log.Error("failed to end session", "error", err)
		that.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Server) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "LeaderboardHandler")

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	standings, err := that.manager.Leaderboard(r.Context(), limit)
	if err != nil {
		log.Error("failed to get leaderboard", "error", err)
		that.writeError(w, err)
		return
	}

	if standings == nil {
		standings = []entity.Standing{}
	}

	that.writeJSON(w, http.StatusOK, leaderboardResponse{Standings: standings})
}

func (that *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperror.ErrSessionNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: apperror.ErrSessionNotFound.Error()})
		return
	}

	that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}
