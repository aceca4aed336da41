package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

// ListActive returns the user's non-expired sessions active since the cutoff.
func (d *DB) ListActive(ctx context.Context, userID, service string, since time.Time) ([]*session.Session, error) {
	where := []string{"user_id = ?", "expired = 0", "last_active_ms >= ?"}
	args := []any{userID, since.UnixMilli()}
	if service != "" {
		where = append(where, "service = ?")
		args = append(args, service)
	}

	query := `SELECT session_id, user_id, service, message_history, context, created_at_ms, last_active_ms
		FROM router_sessions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY last_active_ms DESC`
	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var (
			s                 session.Session
			history, ctxJSON  string
			createdMs, lastMs int64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Service, &history, &ctxJSON, &createdMs, &lastMs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(history), &s.History); err != nil {
			return nil, fmt.Errorf("decode history of session %s: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(ctxJSON), &s.Context); err != nil {
			return nil, fmt.Errorf("decode context of session %s: %w", s.ID, err)
		}
		s.CreatedAt = time.UnixMilli(createdMs).UTC()
		s.LastActiveAt = time.UnixMilli(lastMs).UTC()
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Create inserts a new session row.
func (d *DB) Create(ctx context.Context, s *session.Session) error {
	history, ctxJSON, err := encode(s)
	if err != nil {
		return err
	}

	var exists int
	err = d.db.QueryRowContext(ctx, d.rebind(`SELECT 1 FROM router_sessions WHERE session_id = ?`), s.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("create session %s: %w", s.ID, store.ErrDuplicateSession)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}

	_, err = d.db.ExecContext(ctx, d.rebind(`INSERT INTO router_sessions
		(session_id, user_id, service, message_history, context, created_at_ms, last_active_ms, expired)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`),
		s.ID, s.UserID, s.Service, history, ctxJSON, s.CreatedAt.UnixMilli(), s.LastActiveAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	return nil
}

// Update rewrites history, context and last-active time of a live session.
func (d *DB) Update(ctx context.Context, s *session.Session) (bool, error) {
	history, ctxJSON, err := encode(s)
	if err != nil {
		return false, err
	}
	res, err := d.db.ExecContext(ctx, d.rebind(`UPDATE router_sessions
		SET message_history = ?, context = ?, last_active_ms = ?
		WHERE session_id = ? AND expired = 0`),
		history, ctxJSON, s.LastActiveAt.UnixMilli(), s.ID)
	if err != nil {
		return false, fmt.Errorf("update session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session %s: %w", s.ID, err)
	}
	return n > 0, nil
}

// Expire flags all of the user's sessions as expired.
func (d *DB) Expire(ctx context.Context, userID string) error {
	if _, err := d.db.ExecContext(ctx, d.rebind(`UPDATE router_sessions SET expired = 1 WHERE user_id = ? AND expired = 0`), userID); err != nil {
		return fmt.Errorf("expire sessions of %s: %w", userID, err)
	}
	return nil
}

// Purge deletes sessions idle since before the cutoff, expired or not.
func (d *DB) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM router_sessions WHERE last_active_ms < ?`), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func encode(s *session.Session) (history, ctx string, err error) {
	h, err := json.Marshal(s.History)
	if err != nil {
		return "", "", fmt.Errorf("encode history of session %s: %w", s.ID, err)
	}
	c, err := json.Marshal(s.Context)
	if err != nil {
		return "", "", fmt.Errorf("encode context of session %s: %w", s.ID, err)
	}
	return string(h), string(c), nil
}
