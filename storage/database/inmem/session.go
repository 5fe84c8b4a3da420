package inmemdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/mentora/core/attendance"
)

type sessionRepository struct {
	mu    sync.RWMutex
	table map[string]attendance.Session
}

var _ attendance.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository() *sessionRepository {
	return &sessionRepository{table: make(map[string]attendance.Session)}
}

func copyRoster(roster []attendance.CheckIn) []attendance.CheckIn {
	cp := make([]attendance.CheckIn, len(roster))
	copy(cp, roster)
	return cp
}

func (repo *sessionRepository) SaveSession(_ context.Context, sess attendance.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sess.Roster = copyRoster(sess.Roster)
	repo.table[sess.ID] = sess
	return nil
}

func (repo *sessionRepository) LoadSession(_ context.Context, id string) (attendance.Session, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	sess, ok := repo.table[id]
	if !ok {
		return attendance.Session{}, errors.Wrapf(attendance.ErrNotFound, "session %q", id)
	}
	sess.Roster = copyRoster(sess.Roster)
	return sess, nil
}
