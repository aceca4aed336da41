// Package redisstore keeps sessions in Redis. Each session is a JSON string
// with a TTL equal to the retention period; a per-user sorted set scored by
// last-active time indexes them.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

const defaultPrefix = "commerce-router:"

// Store implements store.SessionStore and store.Pinger.
type Store struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces all keys.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Dial parses a redis:// URL, configures the pool and verifies the connection.
func Dial(ctx context.Context, redisURL string, retention time.Duration, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.PoolSize = 10
	redisOpts.MinIdleConns = 2
	redisOpts.MaxRetries = 3
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second

	s := New(redis.NewClient(redisOpts), retention, opts...)
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, retention time.Duration, opts ...Option) *Store {
	s := &Store{client: client, retention: retention, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID + ":sessions"
}

// ListActive reads the user's index from the cutoff upwards and loads the
// matching sessions. Index entries whose session has already lapsed are pruned.
func (s *Store) ListActive(ctx context.Context, userID, service string, since time.Time) ([]*session.Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.client.ZRevRangeByScore(ctx, userKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", userID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions of %s: %w", userID, err)
	}

	var (
		out   []*session.Session
		stale []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess session.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		if service != "" && sess.Service != service {
			continue
		}
		if sess.LastActiveAt.Before(since) {
			continue
		}
		out = append(out, &sess)
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, userKey, stale...)
	}
	return out, nil
}

// Create writes the session only if its key is free.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	created, err := s.client.SetNX(ctx, s.sessionKey(sess.ID), data, s.retention).Result()
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	if !created {
		return fmt.Errorf("create session %s: %w", sess.ID, store.ErrDuplicateSession)
	}
	return s.index(ctx, sess)
}

// Update rewrites the session only if its key still exists.
func (s *Store) Update(ctx context.Context, sess *session.Session) (bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	updated, err := s.client.SetXX(ctx, s.sessionKey(sess.ID), data, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if !updated {
		return false, nil
	}
	return true, s.index(ctx, sess)
}

func (s *Store) index(ctx context.Context, sess *session.Session) error {
	userKey := s.userKey(sess.UserID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, userKey, redis.Z{Score: float64(sess.LastActiveAt.UnixMilli()), Member: sess.ID})
		pipe.Expire(ctx, userKey, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index session %s: %w", sess.ID, err)
	}
	return nil
}

// Expire deletes every session of the user together with the index.
func (s *Store) Expire(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	ids, err := s.client.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("expire sessions of %s: %w", userID, err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, userKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("expire sessions of %s: %w", userID, err)
	}
	return nil
}
