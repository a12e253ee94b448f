package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
)

const tickInterval = time.Second

type subscribers = *xsync.MapOf[*client, struct{}]

// hub tracks which connections follow which session.
type hub struct {
	logger   *slog.Logger
	sessions *xsync.MapOf[string, subscribers]
	now      func() time.Time
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:   logger.With("component", "hub"),
		sessions: xsync.NewMapOf[string, subscribers](),
		now:      time.Now,
	}
}

// join subscribes c to sessionID, leaving any session it followed before.
func (that *hub) join(c *client, sessionID string) {
	if c.sessionID == sessionID {
		return
	}

	that.leave(c)

	that.sessions.Compute(sessionID, func(subs subscribers, loaded bool) (subscribers, bool) {
		if !loaded {
			subs = xsync.NewMapOf[*client, struct{}]()
		}
		subs.Store(c, struct{}{})

		return subs, false
	})

	c.sessionID = sessionID
}

func (that *hub) leave(c *client) {
	if c.sessionID == "" {
		return
	}

	that.drop(c.sessionID, c)
	c.sessionID = ""
}

func (that *hub) drop(sessionID string, c *client) {
	that.sessions.Compute(sessionID, func(subs subscribers, loaded bool) (subscribers, bool) {
		if !loaded {
			return subs, true
		}
		subs.Delete(c)

		return subs, subs.Size() == 0
	})
}

func (that *hub) subscriberCount(sessionID string) int {
	subs, ok := that.sessions.Load(sessionID)
	if !ok {
		return 0
	}

	return subs.Size()
}

// broadcast sends the session state to everyone following it.
func (that *hub) broadcast(session *entity.Session, action string) {
	subs, ok := that.sessions.Load(session.ID)
	if !ok {
		return
	}

	msg := stateMessage(session, action, that.now())
	subs.Range(func(c *client, _ struct{}) bool {
		c.enqueue(msg)
		return true
	})
}

// run ticks every followed session until ctx is done, so that expired turns reach clients
// without anyone having to move.
func (that *hub) run(ctx context.Context, manager gameManager) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			that.tick(ctx, manager)
		}
	}
}

func (that *hub) tick(ctx context.Context, manager gameManager) {
	log := that.logger.With("method", "tick")

	that.sessions.Range(func(sessionID string, subs subscribers) bool {
		session, changed, err := manager.Tick(ctx, sessionID)
		switch {
		case errors.Is(err, apperror.ErrSessionNotFound):
			log.Info("session is gone, dropping subscribers", "session_id", sessionID)
			msg := errorResponse(actionSessionState, err)
			subs.Range(func(c *client, _ struct{}) bool {
				c.enqueue(msg)
				return true
			})
			that.sessions.Delete(sessionID)
		case err != nil:
			log.Error("failed to tick session", "session_id", sessionID, "error", err)
		case changed:
			that.broadcast(session, actionSessionState)
		}

		return ctx.Err() == nil
	})
}

func stateMessage(session *entity.Session, action string, now time.Time) *Message {
	return newMessage(actionSessionState, ResponsePayload{
		Action:   action,
		Session:  session,
		TimeLeft: session.TimeLeft(now).Milliseconds(),
	})
}

func errorResponse(action string, err error) *Message {
	return newMessage(actionError, ResponsePayload{
		Action: action,
		Error:  errorMessage(err),
	})
}

func newMessage(action string, payload ResponsePayload) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return &Message{Action: actionError, Payload: json.RawMessage(`{"error":"internal server error"}`)}
	}

	return &Message{Action: action, Payload: data}
}
