package session

import (
	"context"
	"time"

	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Manager runs wizard operations against stored sessions. Each operation
// holds the session lock, so two requests for one session never interleave.
type Manager struct {
	Repo  Repo
	Deps  wizard.Deps
	Clock clock.Clock
	TTL   time.Duration
}

func MakeManager(repo Repo, deps wizard.Deps, clk clock.Clock, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{Repo: repo, Deps: deps, Clock: clk, TTL: ttl}
}

func (m *Manager) Start(ctx context.Context, p wizard.EntryParams) (Session, error) {
	now := m.Clock.Now()
	s := Session{
		ID:        uuid.NewString(),
		Snapshot:  wizard.New(p, m.Deps).Snapshot(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.TTL),
	}
	if err := m.Repo.WriteSession(ctx, s); err != nil {
		return Session{}, err
	}
	log.Info().
		Str("session_id", s.ID).
		Str("camera_id", s.Snapshot.Context.CameraID).
		Str("flow", s.Snapshot.Flow.String()).
		Msg("session started")
	return s, nil
}

func (m *Manager) Fetch(ctx context.Context, id string) (Session, error) {
	return m.Repo.FetchSessionByID(ctx, id)
}

// Do locks the session, applies fn to its wizard and stores the result. The
// wizard is stored even when fn fails, since a failed commit may still have
// promoted the label.
func (m *Manager) Do(ctx context.Context, id string, fn func(w *wizard.Wizard) error) (Session, error) {
	release, err := m.Repo.Lock(ctx, id)
	if err != nil {
		return Session{}, err
	}
	defer release()

	s, err := m.Repo.FetchSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	w, err := wizard.Restore(s.Snapshot, m.Deps)
	if err != nil {
		return Session{}, errors.Wrapf(err, "restore session %s", id)
	}
	opErr := fn(w)

	s.Snapshot = w.Snapshot()
	s.ExpiresAt = m.Clock.Now().Add(m.TTL)
	if err := m.Repo.WriteSession(context.WithoutCancel(ctx), s); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("failed storing session")
		if opErr == nil {
			return Session{}, err
		}
	}
	return s, opErr
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.Repo.DeleteSession(ctx, id)
}
