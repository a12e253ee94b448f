package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	"github.com/rocketscienceinc/tictactoe-grid/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-grid/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errScoreStore = errors.New("score store down")

type mockScoreRepo struct {
	mock.Mock
}

func (that *mockScoreRepo) RecordResult(ctx context.Context, x, o entity.Player, status entity.Status) error {
	args := that.Called(ctx, x, o, status)
	return args.Error(0)
}

func (that *mockScoreRepo) Standings(ctx context.Context, limit int) ([]entity.Standing, error) {
	args := that.Called(ctx, limit)
	standings, _ := args.Get(0).([]entity.Standing)
	return standings, args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (that *fakeClock) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.now
}

func (that *fakeClock) Advance(d time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.now = that.now.Add(d)
}

type fixture struct {
	manager  *GameManager
	sessions *suite.MemorySessions
	scores   *mockScoreRepo
	clock    *fakeClock
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()

	f := &fixture{
		sessions: suite.NewMemorySessions(),
		scores:   &mockScoreRepo{},
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.manager = NewGameManager(suite.NewLogger(), f.sessions, f.scores, settings, WithClock(f.clock.Now))

	t.Cleanup(func() {
		f.scores.AssertExpectations(t)
	})

	return f
}

func defaultSettings() Settings {
	return Settings{BoardSize: 3, TurnTime: 10 * time.Second}
}

func at(row, col int) entity.Position {
	return entity.Position{Row: row, Column: col}
}

func (that *fixture) create(t *testing.T, params CreateSessionParams) *entity.Session {
	t.Helper()

	session, err := that.manager.CreateSession(context.Background(), params)
	require.NoError(t, err)

	return session
}

func (that *fixture) turns(t *testing.T, id string, positions ...entity.Position) *entity.Session {
	t.Helper()

	var session *entity.Session
	for _, pos := range positions {
		var err error
		session, err = that.manager.MakeTurn(context.Background(), id, pos)
		require.NoError(t, err, "turn at %s", pos)
	}

	return session
}

func TestGameManager_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Uses defaults", func(t *testing.T) {
		// Given: a manager with a 3x3 default and a 10s turn
		f := newFixture(t, defaultSettings())

		// When: a session is created without parameters
		session := f.create(t, CreateSessionParams{})

		// Then: the session is stored with an empty 3x3 board and X to play
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, 3, session.Board.Rows)
		assert.Equal(t, 3, session.Board.WinLength)
		assert.Equal(t, entity.StatusInProgress, session.Board.Status)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
		assert.Equal(t, DefaultPlayerXName, session.PlayerFor(entity.MarkX).Name)
		assert.Equal(t, DefaultPlayerOName, session.PlayerFor(entity.MarkO).Name)
		assert.Equal(t, f.clock.Now().Add(10*time.Second), session.Deadline)

		stored, err := f.sessions.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.Board, stored.Board)
	})

	t.Run("Uses the requested size and names", func(t *testing.T) {
		f := newFixture(t, defaultSettings())

		session := f.create(t, CreateSessionParams{BoardSize: 5, PlayerXName: "  Alice ", PlayerOName: "Bob"})

		assert.Equal(t, 5, session.Board.Columns)
		assert.Equal(t, 4, session.Board.WinLength)
		assert.Equal(t, "Alice", session.Players[0].Name)
		assert.Equal(t, "Bob", session.Players[1].Name)
	})

	t.Run("Honours the configured win length rule", func(t *testing.T) {
		settings := defaultSettings()
		settings.WinLengthRule = tictactoe.LongWinLength
		f := newFixture(t, settings)

		session := f.create(t, CreateSessionParams{BoardSize: 8})

		assert.Equal(t, 5, session.Board.WinLength)
	})

	t.Run("Rejects invalid input", func(t *testing.T) {
		f := newFixture(t, defaultSettings())

		_, err := f.manager.CreateSession(ctx, CreateSessionParams{BoardSize: 2})
		require.ErrorIs(t, err, apperror.ErrInvalidBoardSize)

		_, err = f.manager.CreateSession(ctx, CreateSessionParams{PlayerXName: "a very very very long name for a player"})
		require.ErrorIs(t, err, apperror.ErrInvalidPlayerName)
	})

	t.Run("Returns storage errors", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		f.sessions.FailWrites = true

		session, err := f.manager.CreateSession(ctx, CreateSessionParams{})

		require.ErrorIs(t, err, suite.ErrStorageDown)
		assert.Nil(t, session)
	})
}

func TestGameManager_MakeTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Alternates marks", func(t *testing.T) {
		// Given: a new session
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		// When: two turns are played
		session = f.turns(t, session.ID, at(1, 1))
		assert.Equal(t, entity.MarkO, session.ActiveMark)
		assert.Equal(t, entity.CueMove, session.Cue)

		session = f.turns(t, session.ID, at(0, 0))

		// Then: X and O are on the board and it is X's turn again
		assert.Equal(t, entity.MarkX, session.Board.Cells[1][1])
		assert.Equal(t, entity.MarkO, session.Board.Cells[0][0])
		assert.Equal(t, entity.MarkX, session.ActiveMark)
	})

	t.Run("A win updates the score and the standings", func(t *testing.T) {
		// Given: a session between Alice and Bob
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{PlayerXName: "Alice", PlayerOName: "Bob"})

		f.scores.On("RecordResult", mock.Anything,
			entity.Player{Name: "Alice", Mark: entity.MarkX},
			entity.Player{Name: "Bob", Mark: entity.MarkO},
			entity.StatusXWon,
		).Return(nil).Once()

		// When: X completes the top row
		session = f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		// Then: the game is over and X scored
		assert.Equal(t, entity.StatusXWon, session.Board.Status)
		assert.Len(t, session.Board.WinningLine, 3)
		assert.Equal(t, entity.Score{X: 1}, session.Score)
		assert.Equal(t, entity.CueGameOver, session.Cue)
		assert.True(t, session.Deadline.IsZero())
	})

	t.Run("A draw counts as a draw", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusDraw).Return(nil).Once()

		session = f.turns(t, session.ID,
			at(0, 0), at(0, 1), at(0, 2),
			at(1, 1), at(1, 0), at(1, 2),
			at(2, 1), at(2, 0), at(2, 2),
		)

		assert.Equal(t, entity.StatusDraw, session.Board.Status)
		assert.Equal(t, entity.Score{Draws: 1}, session.Score)
	})

	t.Run("Score store failures do not fail the move", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusXWon).Return(errScoreStore).Once()

		session = f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		assert.Equal(t, entity.StatusXWon, session.Board.Status)
	})

	t.Run("Rejects moves on a finished game", func(t *testing.T) {
		// Given: a finished game
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusXWon).Return(nil).Once()
		f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		// When: another move is made
		_, err := f.manager.MakeTurn(ctx, session.ID, at(2, 2))

		// Then: ErrGameFinished is returned
		require.ErrorIs(t, err, apperror.ErrGameFinished)
	})

	t.Run("Rejects occupied cells without changing the session", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		before := f.turns(t, session.ID, at(1, 1))

		_, err := f.manager.MakeTurn(ctx, session.ID, at(1, 1))
		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		require.ErrorIs(t, err, apperror.ErrCellOccupied)

		after, err := f.manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Board, after.Board)
		assert.Equal(t, entity.MarkO, after.ActiveMark)
	})

	t.Run("Rejects moves while paused", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		_, err := f.manager.TogglePause(ctx, session.ID)
		require.NoError(t, err)

		_, err = f.manager.MakeTurn(ctx, session.ID, at(0, 0))
		require.ErrorIs(t, err, apperror.ErrGamePaused)
	})

	t.Run("Unknown session", func(t *testing.T) {
		f := newFixture(t, defaultSettings())

		_, err := f.manager.MakeTurn(ctx, "missing", at(0, 0))

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}

func TestGameManager_TurnTimer(t *testing.T) {
	ctx := context.Background()

	t.Run("An expired turn passes to the opponent", func(t *testing.T) {
		// Given: a new session with a 10s turn
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		// When: 10 seconds pass
		f.clock.Advance(10 * time.Second)
		session, changed, err := f.manager.Tick(ctx, session.ID)

		// Then: O is to play, the board is untouched and a new turn started
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, entity.MarkO, session.ActiveMark)
		assert.Equal(t, entity.CueTimeout, session.Cue)
		assert.Equal(t, f.clock.Now().Add(10*time.Second), session.Deadline)
		assert.Equal(t, entity.MarkNone, session.Board.Cells[0][0])
	})

	t.Run("Several expired turns are caught up", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		// When: 25 seconds pass, two full turns
		f.clock.Advance(25 * time.Second)
		session, err := f.manager.GetSession(ctx, session.ID)

		// Then: the turn went to O and back to X, with 5 seconds left
		require.NoError(t, err)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
		assert.Equal(t, 5*time.Second, session.TimeLeft(f.clock.Now()))
	})

	t.Run("Nothing happens before the deadline", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		f.clock.Advance(9 * time.Second)
		session, changed, err := f.manager.Tick(ctx, session.ID)

		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
	})

	t.Run("A move after expiry is placed for the opponent", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		f.clock.Advance(11 * time.Second)
		session = f.turns(t, session.ID, at(2, 2))

		assert.Equal(t, entity.MarkO, session.Board.Cells[2][2])
		assert.Equal(t, entity.MarkX, session.ActiveMark)
	})

	t.Run("Pause freezes the clock", func(t *testing.T) {
		// Given: a session paused with 6 seconds left
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.clock.Advance(4 * time.Second)

		session, err := f.manager.TogglePause(ctx, session.ID)
		require.NoError(t, err)
		assert.True(t, session.Paused)
		assert.Equal(t, entity.CuePause, session.Cue)
		assert.Equal(t, 6*time.Second, session.Remaining)

		// When: a minute passes while paused
		f.clock.Advance(time.Minute)
		_, changed, err := f.manager.Tick(ctx, session.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		// Then: resuming restores the 6 seconds for X
		session, err = f.manager.TogglePause(ctx, session.ID)
		require.NoError(t, err)
		assert.False(t, session.Paused)
		assert.Equal(t, entity.CueResume, session.Cue)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
		assert.Equal(t, 6*time.Second, session.TimeLeft(f.clock.Now()))
	})

	t.Run("A zero turn time disables the timer", func(t *testing.T) {
		f := newFixture(t, Settings{BoardSize: 3})
		session := f.create(t, CreateSessionParams{})

		f.clock.Advance(time.Hour)
		session, changed, err := f.manager.Tick(ctx, session.ID)

		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
		assert.True(t, session.Deadline.IsZero())
	})

	t.Run("Finished games cannot be paused", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusXWon).Return(nil).Once()
		f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		_, err := f.manager.TogglePause(ctx, session.ID)

		require.ErrorIs(t, err, apperror.ErrGameFinished)
	})
}

func TestGameManager_NewGameAndResize(t *testing.T) {
	ctx := context.Background()

	t.Run("NewGame clears the board and keeps the score", func(t *testing.T) {
		// Given: a finished game won by X
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusXWon).Return(nil).Once()
		f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		// When: a new game starts
		session, err := f.manager.NewGame(ctx, session.ID)

		// Then: the board is empty, X starts and the score is kept
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, session.Board.Status)
		assert.Empty(t, session.Board.WinningLine)
		assert.Equal(t, entity.MarkX, session.ActiveMark)
		assert.Equal(t, entity.Score{X: 1}, session.Score)
		for _, row := range session.Board.Cells {
			for _, mark := range row {
				assert.Equal(t, entity.MarkNone, mark)
			}
		}
	})

	t.Run("NewGame unpauses", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		_, err := f.manager.TogglePause(ctx, session.ID)
		require.NoError(t, err)

		session, err = f.manager.NewGame(ctx, session.ID)

		require.NoError(t, err)
		assert.False(t, session.Paused)
		assert.Equal(t, f.clock.Now().Add(10*time.Second), session.Deadline)
	})

	t.Run("Resize builds a new board and keeps the score", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusOWon).Return(nil).Once()
		f.turns(t, session.ID, at(2, 2), at(0, 0), at(2, 1), at(0, 1), at(1, 0), at(0, 2))

		session, err := f.manager.Resize(ctx, session.ID, 4)

		require.NoError(t, err)
		assert.Equal(t, 4, session.Board.Rows)
		assert.Equal(t, 4, session.Board.WinLength)
		assert.Equal(t, entity.StatusInProgress, session.Board.Status)
		assert.Equal(t, entity.Score{O: 1}, session.Score)
	})

	t.Run("Resize rejects invalid sizes", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		_, err := f.manager.Resize(ctx, session.ID, tictactoe.MaxSize+1)

		require.ErrorIs(t, err, apperror.ErrInvalidBoardSize)
	})
}

func TestGameManager_PlayersAndScore(t *testing.T) {
	ctx := context.Background()

	t.Run("RenamePlayers", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		session, err := f.manager.RenamePlayers(ctx, session.ID, "Ann", " Ben ")
		require.NoError(t, err)
		assert.Equal(t, "Ann", session.PlayerFor(entity.MarkX).Name)
		assert.Equal(t, "Ben", session.PlayerFor(entity.MarkO).Name)

		_, err = f.manager.RenamePlayers(ctx, session.ID, "", "Ben")
		require.ErrorIs(t, err, apperror.ErrInvalidPlayerName)
	})

	t.Run("ResetScore", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})
		f.scores.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, entity.StatusXWon).Return(nil).Once()
		f.turns(t, session.ID, at(0, 0), at(1, 0), at(0, 1), at(1, 1), at(0, 2))

		session, err := f.manager.ResetScore(ctx, session.ID)

		require.NoError(t, err)
		assert.Equal(t, entity.Score{}, session.Score)
	})

	t.Run("Leaderboard", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		expected := []entity.Standing{{Name: "Alice", Wins: 3, Rank: 1}}
		f.scores.On("Standings", mock.Anything, 10).Return(expected, nil).Once()

		standings, err := f.manager.Leaderboard(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, expected, standings)
	})

	t.Run("EndSession", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		require.NoError(t, f.manager.EndSession(ctx, session.ID))

		_, err := f.manager.GetSession(ctx, session.ID)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		require.ErrorIs(t, f.manager.EndSession(ctx, session.ID), apperror.ErrSessionNotFound)
	})
}

func TestGameManager_ConcurrentTurnsOnOneSession(t *testing.T) {
	// Given: a 5x5 session
	f := newFixture(t, Settings{BoardSize: 5})
	session := f.create(t, CreateSessionParams{})

	// When: many clients race for the same cell
	var wg sync.WaitGroup
	results := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.MakeTurn(context.Background(), session.ID, at(2, 2))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	// Then: exactly one move lands
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
	}
	assert.Equal(t, 1, succeeded)
}

func TestGameManager_SessionLocksAreReleased(t *testing.T) {
	ctx := context.Background()

	t.Run("Lookups of unknown sessions leave nothing behind", func(t *testing.T) {
		// Given: a manager with no sessions
		f := newFixture(t, defaultSettings())

		// When: many unknown ids are read, ticked and played on
		for i := range 1000 {
			id := fmt.Sprintf("missing-%d", i)

			_, err := f.manager.GetSession(ctx, id)
			require.ErrorIs(t, err, apperror.ErrSessionNotFound)

			_, err = f.manager.MakeTurn(ctx, id, at(0, 0))
			require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		}

		// Then: no lock is kept
		assert.Zero(t, f.manager.locks.Size())
	})

	t.Run("Live sessions only hold a lock while in use", func(t *testing.T) {
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		f.turns(t, session.ID, at(0, 0), at(1, 1))
		_, err := f.manager.TogglePause(ctx, session.ID)
		require.NoError(t, err)

		assert.Zero(t, f.manager.locks.Size())

		require.NoError(t, f.manager.EndSession(ctx, session.ID))
		assert.Zero(t, f.manager.locks.Size())
	})

	t.Run("Waiters share the lock of the holder", func(t *testing.T) {
		// Given: a session whose lock is held
		f := newFixture(t, defaultSettings())
		session := f.create(t, CreateSessionParams{})

		unlock := f.manager.lock(session.ID)

		// When: an end and a move queue up behind the holder
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- f.manager.EndSession(ctx, session.ID)
		}()
		go func() {
			defer wg.Done()
			_, err := f.manager.MakeTurn(ctx, session.ID, at(0, 0))
			errs <- err
		}()

		require.Eventually(t, func() bool {
			var refs int
			f.manager.locks.Compute(session.ID, func(entry *sessionLock, loaded bool) (*sessionLock, bool) {
				if !loaded {
					return entry, true
				}
				refs = entry.refs

				return entry, false
			})

			return refs == 3
		}, time.Second, time.Millisecond)

		// Then: both run one after the other on the same entry, which goes away at the end
		unlock()
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, apperror.ErrSessionNotFound)
			}
		}
		assert.Zero(t, f.manager.locks.Size())
	})
}
