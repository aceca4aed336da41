package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/service"
)

// DefaultActiveWindow is how long after its last turn a session stays usable.
const DefaultActiveWindow = 30 * time.Minute

// Context is the snapshot captured when a session is created. The profile is
// not re-fetched on later turns.
type Context struct {
	Service service.Descriptor `json:"service_config" bson:"service_config"`
	Profile *profile.Profile   `json:"user_profile,omitempty" bson:"user_profile,omitempty"`
}

// Session is a time-bounded conversation between one user and one service.
type Session struct {
	ID           string    `json:"session_id" bson:"_id"`
	UserID       string    `json:"user_id" bson:"userId"`
	Service      string    `json:"service" bson:"service"`
	History      []Message `json:"message_history" bson:"messageHistory"`
	Context      Context   `json:"context" bson:"context"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt"`
	LastActiveAt time.Time `json:"last_active" bson:"lastActiveAt"`
}

// New provisions a session seeded with the given history.
func New(userID string, desc service.Descriptor, p *profile.Profile, now time.Time, seed ...Message) *Session {
	now = now.UTC()
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Service:      desc.Tag,
		History:      append([]Message(nil), seed...),
		Context:      Context{Service: desc, Profile: p},
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// IsActive reports whether the session is inside the active window at now.
func (s *Session) IsActive(now time.Time, window time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.LastActiveAt) <= window
}

// Clone returns a copy whose history can be appended to independently.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = append([]Message(nil), s.History...)
	if s.Context.Profile != nil {
		p := *s.Context.Profile
		if p.Address != nil {
			addr := *p.Address
			p.Address = &addr
		}
		out.Context.Profile = &p
	}
	if tp := s.Context.Service.ToolProvider; tp != nil {
		cp := *tp
		out.Context.Service.ToolProvider = &cp
	}
	out.Context.Service.Keywords = append([]string(nil), s.Context.Service.Keywords...)
	return &out
}

// MostRecent picks the authoritative session from a store result: latest
// LastActiveAt, then latest CreatedAt, then the larger ID.
func MostRecent(list []*Session) *Session {
	var best *Session
	for _, s := range list {
		if s == nil {
			continue
		}
		if best == nil || newer(s, best) {
			best = s
		}
	}
	return best
}

func newer(a, b *Session) bool {
	if !a.LastActiveAt.Equal(b.LastActiveAt) {
		return a.LastActiveAt.After(b.LastActiveAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
