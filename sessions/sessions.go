package sessions

import (
	"context"
	"time"
)

// Session binds a connection identifier to an authenticated agent identity.
type Session struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agentName"`
	LoginTime time.Time `json:"loginTime"`
}

// Store is the persistence port for the session table. Implementations MUST
// be safe for concurrent use; the Manager guarantees mutations arrive one at
// a time, but reads may interleave with them freely.
type Store interface {
	Put(ctx context.Context, sess Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Session, error)
	Count(ctx context.Context) (int, error)
	// Clear removes every session and returns the removed count.
	Clear(ctx context.Context) (int, error)
	// DeleteOlderThan removes sessions whose LoginTime is before cutoff and
	// returns the removed count.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
