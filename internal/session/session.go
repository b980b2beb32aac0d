package session

import (
	"context"
	"time"

	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/wizard"
)

const (
	DefaultTTL     = 2 * time.Hour
	DefaultLockTTL = 2 * time.Minute
)

// Session is one customer's stored checkout.
type Session struct {
	ID        string          `json:"id"`
	Snapshot  wizard.Snapshot `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Repo stores sessions until they expire. Lock gives the caller exclusive use
// of a session until release is called or the lease runs out; a session that
// is already locked yields OperationInFlight.
type Repo interface {
	WriteSession(ctx context.Context, s Session) error
	FetchSessionByID(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (release func(), err error)
}

func notFound(id string) error {
	return failure.Newf(failure.SessionNotFound, "Session %s not found or expired.", id)
}

func inFlight() error {
	return failure.New(failure.OperationInFlight, "Please wait for the current request to finish.")
}
