package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	"github.com/rocketscienceinc/tictactoe-grid/internal/usecase"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
)

var errUnknownAction = errors.New("unknown action")

type gameManager interface {
	CreateSession(ctx context.Context, params usecase.CreateSessionParams) (*entity.Session, error)
	GetSession(ctx context.Context, id string) (*entity.Session, error)
	Tick(ctx context.Context, id string) (*entity.Session, bool, error)

	MakeTurn(ctx context.Context, id string, pos entity.Position) (*entity.Session, error)
	NewGame(ctx context.Context, id string) (*entity.Session, error)
	Resize(ctx context.Context, id string, size int) (*entity.Session, error)
	TogglePause(ctx context.Context, id string) (*entity.Session, error)
	RenamePlayers(ctx context.Context, id, nameX, nameO string) (*entity.Session, error)
	ResetScore(ctx context.Context, id string) (*entity.Session, error)
}

type handlerFunc func(ctx context.Context, c *client, msg *Message) error

type Server struct {
	logger   *slog.Logger
	manager  gameManager
	hub      *hub
	upgrader websocket.Upgrader

	allowedOrigins []string

	handlers map[string]handlerFunc
}

// New - allowedOrigins are accepted in addition to the server's own origin.
func New(logger *slog.Logger, manager gameManager, allowedOrigins []string) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		manager: manager,
		hub:     newHub(logger),

		allowedOrigins: allowedOrigins,

		handlers: make(map[string]handlerFunc),
	}

	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}

	server.handlers[actionSessionNew] = server.handleSessionNew
	server.handlers[actionSessionJoin] = server.handleSessionJoin
	server.handlers[actionGameTurn] = server.handleGameTurn
	server.handlers[actionGameNew] = server.handleGameNew
	server.handlers[actionGamePause] = server.handleGamePause
	server.handlers[actionGameResize] = server.handleGameResize
	server.handlers[actionPlayersRename] = server.handlePlayersRename
	server.handlers[actionScoreReset] = server.handleScoreReset

	return server
}

// Handler - returns the HTTP handler serving /ws.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", that.upgradeToWebSocket)

	return mux
}

// Start - serves WebSocket connections on port and ticks followed sessions until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		return that.hub.run(ctx, that.manager)
	})

	errg.Go(func() error {
		if err := hserve.ListenAndServe(ctx, ":"+port, that.Handler()); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		return nil
	})

	return errg.Wait()
}

// checkOrigin - browsers must come from the server's own host or an allowed origin.
// Requests without an Origin header come from non-browser clients and are accepted.
func (that *Server) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if slices.Contains(that.allowedOrigins, origin) {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if !strings.EqualFold(u.Host, req.Host) {
		that.logger.Warn("rejected cross-origin connection", "origin", origin)
		return false
	}

	return true
}

// upgradeToWebSocket - upgrades the connection to WebSocket and serves it until the client leaves.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(that.logger.With("remote_addr", req.RemoteAddr), conn)
	go c.writePump()

	log.Info("WebSocket connection established", "remote_addr", req.RemoteAddr)

	that.handleMessages(req.Context(), c)
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, c *client) {
	log := that.logger.With("method", "handleMessages")

	defer func() {
		that.hub.leave(c)
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			c.enqueue(errorResponse("", errBadPayload))
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			c.enqueue(errorResponse(message.Action, fmt.Errorf("%w: %q", errUnknownAction, message.Action)))
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			c.enqueue(errorResponse(message.Action, err))
		}
	}
}
