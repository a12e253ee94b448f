package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	"github.com/rocketscienceinc/tictactoe-grid/internal/tictactoe"
)

const (
	DefaultPlayerXName = "Player X"
	DefaultPlayerOName = "Player O"

	maxPlayerNameLength = 32
)

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type scoreRepo interface {
	RecordResult(ctx context.Context, x, o entity.Player, status entity.Status) error
	Standings(ctx context.Context, limit int) ([]entity.Standing, error)
}

// Settings are the defaults applied to new sessions.
type Settings struct {
	BoardSize     int
	TurnTime      time.Duration
	WinLengthRule tictactoe.WinLengthRule
}

// CreateSessionParams - zero values fall back to Settings and the default player names.
type CreateSessionParams struct {
	BoardSize   int
	PlayerXName string
	PlayerOName string
}

type Option func(*GameManager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(that *GameManager) {
		that.now = now
	}
}

// GameManager drives sessions: it owns whose turn it is, the turn timer, pause state,
// player names and the score, and is the only caller of the board engine.
type GameManager struct {
	logger *slog.Logger

	sessionRepo sessionRepo
	scoreRepo   scoreRepo
	settings    Settings

	locks *xsync.MapOf[string, *sessionLock]
	now   func() time.Time
}

// sessionLock serializes work on one session. refs counts holders and waiters and is
// only changed inside locks.Compute; the entry is removed when it drops to zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewGameManager(logger *slog.Logger, sessionRepo sessionRepo, scoreRepo scoreRepo, settings Settings, opts ...Option) *GameManager {
	if settings.WinLengthRule == nil {
		settings.WinLengthRule = tictactoe.BalancedWinLength
	}

	manager := &GameManager{
		logger: logger.With("component", "game_manager"),

		sessionRepo: sessionRepo,
		scoreRepo:   scoreRepo,
		settings:    settings,

		locks: xsync.NewMapOf[string, *sessionLock](),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// game is the working state of one locked session.
type game struct {
	session *entity.Session
	board   *tictactoe.Board
	now     time.Time
}

func (that *GameManager) CreateSession(ctx context.Context, params CreateSessionParams) (*entity.Session, error) {
	size := params.BoardSize
	if size == 0 {
		size = that.settings.BoardSize
	}

	board, err := that.newBoard(size)
	if err != nil {
		return nil, err
	}

	playerX, err := playerName(params.PlayerXName, DefaultPlayerXName)
	if err != nil {
		return nil, err
	}

	playerO, err := playerName(params.PlayerOName, DefaultPlayerOName)
	if err != nil {
		return nil, err
	}

	now := that.now()
	session := &entity.Session{
		ID:         uuid.NewString(),
		Board:      board.State(),
		ActiveMark: entity.MarkX,
		Players: [2]entity.Player{
			{Name: playerX, Mark: entity.MarkX},
			{Name: playerO, Mark: entity.MarkO},
		},
		TurnTime:  that.settings.TurnTime,
		CreatedAt: now,
		UpdatedAt: now,
	}
	resetDeadline(session, now)

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	that.logger.Info("session created", "session_id", session.ID, "rows", board.Rows(), "win_length", board.WinLength())

	return session, nil
}

// GetSession - returns the session with any expired turns applied.
func (that *GameManager) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	session, _, err := that.Tick(ctx, id)
	return session, err
}

// Tick - applies expired turns and reports whether the session changed.
func (that *GameManager) Tick(ctx context.Context, id string) (*entity.Session, bool, error) {
	unlock := that.lock(id)
	defer unlock()

	session, err := that.getSession(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := that.now()
	if !expireTurns(session, now) {
		return session, false, nil
	}

	session.UpdatedAt = now
	if err = that.saveSession(ctx, session); err != nil {
		return nil, false, err
	}

	return session, true, nil
}

// MakeTurn - places the active mark at pos.
func (that *GameManager) MakeTurn(ctx context.Context, id string, pos entity.Position) (*entity.Session, error) {
	log := that.logger.With("method", "MakeTurn", "session_id", id)

	session, err := that.update(ctx, id, func(g *game) error {
		if g.session.Paused {
			return apperror.ErrGamePaused
		}

		mark := g.session.ActiveMark

		status, err := g.board.ApplyMove(mark, pos)
		if err != nil {
			return fmt.Errorf("failed to apply move: %w", err)
		}

		log.Debug("move applied", "mark", mark.String(), "position", pos.String(), "status", status.String())

		if status.IsTerminal() {
			g.session.Score.Record(status)
			g.session.Deadline = time.Time{}
			g.session.Cue = entity.CueGameOver

			return nil
		}

		g.session.ActiveMark = mark.Opponent()
		g.session.Cue = entity.CueMove
		resetDeadline(g.session, g.now)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if session.IsFinished() {
		log.Info("game finished", "status", session.Board.Status.String())
		that.recordResult(ctx, session)
	}

	return session, nil
}

// NewGame - clears the board and gives the first turn to X. Names and score are kept.
func (that *GameManager) NewGame(ctx context.Context, id string) (*entity.Session, error) {
	return that.update(ctx, id, func(g *game) error {
		g.board.NewGame()
		restart(g)

		return nil
	})
}

// Resize - replaces the board with an empty size-by-size one and starts a new game.
func (that *GameManager) Resize(ctx context.Context, id string, size int) (*entity.Session, error) {
	return that.update(ctx, id, func(g *game) error {
		board, err := that.newBoard(size)
		if err != nil {
			return err
		}

		g.board = board
		restart(g)

		return nil
	})
}

// TogglePause - pauses or resumes the turn timer. Only a game in progress can be paused.
func (that *GameManager) TogglePause(ctx context.Context, id string) (*entity.Session, error) {
	return that.update(ctx, id, func(g *game) error {
		if g.board.Status().IsTerminal() {
			return apperror.ErrGameFinished
		}

		if g.session.Paused {
			g.session.Paused = false
			if g.session.HasTimer() {
				g.session.Deadline = g.now.Add(g.session.Remaining)
			}
			g.session.Remaining = 0
			g.session.Cue = entity.CueResume

			return nil
		}

		g.session.Remaining = g.session.TimeLeft(g.now)
		g.session.Paused = true
		g.session.Cue = entity.CuePause

		return nil
	})
}

func (that *GameManager) RenamePlayers(ctx context.Context, id, nameX, nameO string) (*entity.Session, error) {
	nameX, err := playerName(nameX, "")
	if err != nil {
		return nil, err
	}

	nameO, err = playerName(nameO, "")
	if err != nil {
		return nil, err
	}

	return that.update(ctx, id, func(g *game) error {
		g.session.Players[0] = entity.Player{Name: nameX, Mark: entity.MarkX}
		g.session.Players[1] = entity.Player{Name: nameO, Mark: entity.MarkO}

		return nil
	})
}

func (that *GameManager) ResetScore(ctx context.Context, id string) (*entity.Session, error) {
	return that.update(ctx, id, func(g *game) error {
		g.session.Score = entity.Score{}

		return nil
	})
}

func (that *GameManager) EndSession(ctx context.Context, id string) error {
	unlock := that.lock(id)
	defer unlock()

	if err := that.sessionRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (that *GameManager) Leaderboard(ctx context.Context, limit int) ([]entity.Standing, error) {
	standings, err := that.scoreRepo.Standings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get standings: %w", err)
	}

	return standings, nil
}

// update - loads the session under its lock, applies expired turns, runs fn and saves the result.
func (that *GameManager) update(ctx context.Context, id string, fn func(g *game) error) (*entity.Session, error) {
	unlock := that.lock(id)
	defer unlock()

	session, err := that.getSession(ctx, id)
	if err != nil {
		return nil, err
	}

	board, err := tictactoe.Restore(session.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to restore board of session %s: %w", id, err)
	}

	g := &game{session: session, board: board, now: that.now()}

	session.Cue = entity.CueNone
	expireTurns(session, g.now)

	if err = fn(g); err != nil {
		return nil, err
	}

	session.Board = g.board.State()
	session.UpdatedAt = g.now

	if err = that.saveSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (that *GameManager) getSession(ctx context.Context, id string) (*entity.Session, error) {
	session, err := that.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (that *GameManager) saveSession(ctx context.Context, session *entity.Session) error {
	if err := that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

func (that *GameManager) recordResult(ctx context.Context, session *entity.Session) {
	log := that.logger.With("method", "recordResult", "session_id", session.ID)

	x, o := session.PlayerFor(entity.MarkX), session.PlayerFor(entity.MarkO)
	if err := that.scoreRepo.RecordResult(ctx, x, o, session.Board.Status); err != nil {
		log.Error("failed to record result", "error", err)
	}
}

func (that *GameManager) newBoard(size int) (*tictactoe.Board, error) {
	board, err := tictactoe.NewBoard(size, size, tictactoe.WithWinLengthRule(that.settings.WinLengthRule))
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	return board, nil
}

func (that *GameManager) lock(id string) func() {
	entry, _ := that.locks.Compute(id, func(entry *sessionLock, loaded bool) (*sessionLock, bool) {
		if !loaded {
			entry = &sessionLock{}
		}
		entry.refs++

		return entry, false
	})

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		that.locks.Compute(id, func(entry *sessionLock, _ bool) (*sessionLock, bool) {
			entry.refs--

			return entry, entry.refs == 0
		})
	}
}

func restart(g *game) {
	g.session.ActiveMark = entity.MarkX
	g.session.Paused = false
	g.session.Remaining = 0
	resetDeadline(g.session, g.now)
}

func resetDeadline(session *entity.Session, now time.Time) {
	if !session.HasTimer() {
		session.Deadline = time.Time{}
		return
	}

	session.Deadline = now.Add(session.TurnTime)
}

// expireTurns - hands the turn over once for every turn period that ran out. The board
// is never touched.
func expireTurns(session *entity.Session, now time.Time) bool {
	if !session.HasTimer() || session.Paused || !session.IsOngoing() || now.Before(session.Deadline) {
		return false
	}

	periods := 1 + now.Sub(session.Deadline)/session.TurnTime
	if periods%2 == 1 {
		session.ActiveMark = session.ActiveMark.Opponent()
	}

	session.Deadline = session.Deadline.Add(periods * session.TurnTime)
	session.Cue = entity.CueTimeout

	return true
}

func playerName(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}

	if name == "" || utf8.RuneCountInString(name) > maxPlayerNameLength {
		return "", fmt.Errorf("%w: %q must be 1 to %d characters", apperror.ErrInvalidPlayerName, name, maxPlayerNameLength)
	}

	return name, nil
}
