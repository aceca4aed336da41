// Package memstore keeps sessions and profiles in process memory. It suits a
// single instance and local development; sessions are lost on restart.
package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

// SessionStore implements store.SessionStore on top of go-cache. Entries
// expire from the cache after the retention period.
type SessionStore struct {
	items *cache.Cache
}

// NewSessionStore returns an empty store whose entries live for retention.
func NewSessionStore(retention time.Duration) *SessionStore {
	return &SessionStore{items: cache.New(retention, retention/2+time.Minute)}
}

// ListActive scans the cache for the user's sessions active since the cutoff.
func (s *SessionStore) ListActive(_ context.Context, userID, service string, since time.Time) ([]*session.Session, error) {
	var out []*session.Session
	for _, item := range s.items.Items() {
		sess, ok := item.Object.(*session.Session)
		if !ok || sess.UserID != userID {
			continue
		}
		if service != "" && sess.Service != service {
			continue
		}
		if sess.LastActiveAt.Before(since) {
			continue
		}
		out = append(out, sess.Clone())
	}
	return out, nil
}

// Create stores a copy of sess. Ids must be unique.
func (s *SessionStore) Create(_ context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("create session: id is required")
	}
	if err := s.items.Add(sess.ID, sess.Clone(), cache.DefaultExpiration); err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, store.ErrDuplicateSession)
	}
	return nil
}

// Update replaces the stored copy. Expired or purged sessions report false.
func (s *SessionStore) Update(_ context.Context, sess *session.Session) (bool, error) {
	if sess == nil {
		return false, nil
	}
	if err := s.items.Replace(sess.ID, sess.Clone(), cache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

// Expire deletes every session owned by the user.
func (s *SessionStore) Expire(_ context.Context, userID string) error {
	for id, item := range s.items.Items() {
		if sess, ok := item.Object.(*session.Session); ok && sess.UserID == userID {
			s.items.Delete(id)
		}
	}
	return nil
}

// Purge deletes sessions idle since before the cutoff and returns how many.
func (s *SessionStore) Purge(_ context.Context, before time.Time) (int64, error) {
	var purged int64
	for id, item := range s.items.Items() {
		if sess, ok := item.Object.(*session.Session); ok && sess.LastActiveAt.Before(before) {
			s.items.Delete(id)
			purged++
		}
	}
	s.items.DeleteExpired()
	return purged, nil
}

// Len reports the number of stored sessions.
func (s *SessionStore) Len() int {
	return s.items.ItemCount()
}
