package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-grid/internal/config"
	"github.com/rocketscienceinc/tictactoe-grid/internal/repository"
	"github.com/rocketscienceinc/tictactoe-grid/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-grid/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-grid/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-grid/transport/rest"
	"github.com/rocketscienceinc/tictactoe-grid/transport/websocket"
	"golang.org/x/sync/errgroup"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until it receives SIGINT or SIGTERM or a server fails.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" || conf.Redis.Port == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedis(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err := redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	boltStorage, err := storage.NewBolt(conf.BoltPath)
	if err != nil {
		return fmt.Errorf("could not open score storage: %w", err)
	}

	defer func() {
		if err := boltStorage.Close(); err != nil {
			log.Error("could not close score storage", "error", err)
		}
	}()

	winLengthRule, err := tictactoe.RuleByName(conf.Game.WinLengthRule)
	if err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(redisStorage, conf.SessionTTL)
	scoreRepo := repository.NewScoreRepository(boltStorage)
	gameManager := usecase.NewGameManager(logger, sessionRepo, scoreRepo, usecase.Settings{
		BoardSize:     conf.Game.BoardSize,
		TurnTime:      conf.Game.TurnTime,
		WinLengthRule: winLengthRule,
	})

	errg, ctx := errgroup.WithContext(ctx)

	// run HTTP server
	errg.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if err := rest.New(logger, gameManager).Start(ctx, conf.HTTPPort); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// run Websocket server
	errg.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if err := websocket.New(logger, gameManager, conf.AllowedOrigins).Start(ctx, conf.SocketPort); err != nil {
			return fmt.Errorf("WebSocket server error: %w", err)
		}
		return nil
	})

	if err = errg.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}
