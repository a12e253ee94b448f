package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	"libdb.so/hserve"
)

type gameManager interface {
	GetSession(ctx context.Context, id string) (*entity.Session, error)
	EndSession(ctx context.Context, id string) error
	Leaderboard(ctx context.Context, limit int) ([]entity.Standing, error)
}

type Server struct {
	logger  *slog.Logger
	manager gameManager
	now     func() time.Time
}

func New(logger *slog.Logger, manager gameManager) *Server {
	return &Server{
		logger:  logger.With("component", "rest"),
		manager: manager,
		now:     time.Now,
	}
}

// Handler - returns the HTTP routes of the REST API.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", that.PingHandler)
	mux.HandleFunc("GET /sessions/{id}", that.GetSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", that.EndSessionHandler)
	mux.HandleFunc("GET /leaderboard", that.LeaderboardHandler)

	return mux
}

// Start - serves the REST API on port until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	if err := hserve.ListenAndServe(ctx, ":"+port, that.Handler()); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
