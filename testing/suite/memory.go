package suite

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rocketscienceinc/tictactoe-grid/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
)

var ErrStorageDown = errors.New("storage is down")

// MemorySessions - a session store for tests that do not need Redis. Sessions are kept as JSON
// so that callers never share state with the store.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string][]byte

	// FailWrites makes every CreateOrUpdate return ErrStorageDown.
	FailWrites bool
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string][]byte)}
}

func (that *MemorySessions) CreateOrUpdate(_ context.Context, session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.FailWrites {
		return ErrStorageDown
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	that.sessions[session.ID] = data

	return nil
}

func (that *MemorySessions) GetByID(_ context.Context, id string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	data, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	var session entity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (that *MemorySessions) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[id]; !ok {
		return apperror.ErrSessionNotFound
	}
	delete(that.sessions, id)

	return nil
}
