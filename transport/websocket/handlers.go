package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	"github.com/rocketscienceinc/tictactoe-grid/internal/usecase"
)

var errBadPayload = errors.New("bad payload")

func decodePayload(msg *Message) (*Payload, error) {
	var payload Payload
	if len(msg.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadPayload, err)
	}

	return &payload, nil
}

func (that *Server) handleSessionNew(ctx context.Context, c *client, msg *Message) error {
	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	session, err := that.manager.CreateSession(ctx, usecase.CreateSessionParams{
		BoardSize:   payload.Size,
		PlayerXName: payload.PlayerX,
		PlayerOName: payload.PlayerO,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	that.hub.join(c, session.ID)
	that.hub.broadcast(session, msg.Action)

	return nil
}

func (that *Server) handleSessionJoin(ctx context.Context, c *client, msg *Message) error {
	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	if payload.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", errBadPayload)
	}

	session, err := that.manager.GetSession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}

	that.hub.join(c, session.ID)
	c.enqueue(stateMessage(session, msg.Action, that.hub.now()))

	return nil
}

func (that *Server) handleGameTurn(ctx context.Context, c *client, msg *Message) error {
	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	if payload.Position == nil {
		return fmt.Errorf("%w: position is required", errBadPayload)
	}

	return that.mutate(ctx, c, msg, func(ctx context.Context, id string) (*entity.Session, error) {
		return that.manager.MakeTurn(ctx, id, *payload.Position)
	})
}

func (that *Server) handleGameNew(ctx context.Context, c *client, msg *Message) error {
	return that.mutate(ctx, c, msg, that.manager.NewGame)
}

func (that *Server) handleGamePause(ctx context.Context, c *client, msg *Message) error {
	return that.mutate(ctx, c, msg, that.manager.TogglePause)
}

func (that *Server) handleGameResize(ctx context.Context, c *client, msg *Message) error {
	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	return that.mutate(ctx, c, msg, func(ctx context.Context, id string) (*entity.Session, error) {
		return that.manager.Resize(ctx, id, payload.Size)
	})
}

func (that *Server) handlePlayersRename(ctx context.Context, c *client, msg *Message) error {
	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	return that.mutate(ctx, c, msg, func(ctx context.Context, id string) (*entity.Session, error) {
		return that.manager.RenamePlayers(ctx, id, payload.PlayerX, payload.PlayerO)
	})
}

func (that *Server) handleScoreReset(ctx context.Context, c *client, msg *Message) error {
	return that.mutate(ctx, c, msg, that.manager.ResetScore)
}

// mutate - runs fn on the joined session and broadcasts the result to everyone following it.
func (that *Server) mutate(ctx context.Context, c *client, msg *Message, fn func(ctx context.Context, id string) (*entity.Session, error)) error {
	if c.sessionID == "" {
		return ErrNotJoined
	}

	session, err := fn(ctx, c.sessionID)
	if err != nil {
		return err
	}

	that.hub.broadcast(session, msg.Action)

	return nil
}
