// Package store defines the persistence contracts the router depends on.
// Backends live in the memstore, sqlstore, redisstore and mongostore packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/session"
)

// ErrDuplicateSession is returned by Create when the session id already exists.
var ErrDuplicateSession = errors.New("session already exists")

// SessionStore persists per-user conversation sessions.
type SessionStore interface {
	// ListActive returns the user's sessions whose LastActiveAt is at or after
	// since. An empty service matches every service. Order is unspecified.
	ListActive(ctx context.Context, userID, service string, since time.Time) ([]*session.Session, error)
	Create(ctx context.Context, s *session.Session) error
	// Update overwrites history, context and LastActiveAt. It reports false
	// when the session no longer exists or was expired.
	Update(ctx context.Context, s *session.Session) (bool, error)
	// Expire removes all of the user's sessions from future ListActive results.
	Expire(ctx context.Context, userID string) error
}

// SessionPurger deletes sessions that have been idle since before the cutoff.
type SessionPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// ProfileStore reads externally owned profiles. A missing profile is
// reported as (nil, nil); errors mean the store could not answer.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// Pinger is implemented by backends that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FindActive returns the most recently active session for the user (and
// service, when non-empty), or nil when none is active since the cutoff.
func FindActive(ctx context.Context, s SessionStore, userID, service string, since time.Time) (*session.Session, error) {
	list, err := s.ListActive(ctx, userID, service, since)
	if err != nil {
		return nil, err
	}
	return session.MostRecent(list), nil
}
