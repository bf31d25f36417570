package session

import "context"

// Store persists sessions. Get returns (nil, nil) when the session does
// not exist; absence is an expected condition, not an error.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
	Close() error
}
