// Package router decides, per message, whether to continue the user's active
// commerce session, switch to another service or start a new session, and
// returns the model's reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/analysis/intent"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

// Decision is the routing outcome for one message.
type Decision string

const (
	DecisionNew      Decision = "new"
	DecisionContinue Decision = "continue"
	DecisionSwitch   Decision = "switch"
	DecisionRejected Decision = "rejected"
)

// Request is one inbound message.
type Request struct {
	UserID          string
	Message         string
	ForceService    string
	ForceNewSession bool
}

// Reply is what the transport relays to the caller. Err is set for
// user-visible failures; Text is always populated.
type Reply struct {
	Text      string
	SessionID string
	Service   string
	Decision  Decision
	Err       error
}

// Responder runs one conversation turn.
type Responder interface {
	Respond(ctx context.Context, sess *session.Session, incremental string) (string, error)
}

// Router holds no per-user state; all session state lives in the store.
type Router struct {
	classifier *intent.Classifier
	services   service.Store
	sessions   store.SessionStore
	profiles   store.ProfileStore
	engine     Responder
	window     time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// Option configures a Router.
type Option func(*Router)

// WithActiveWindow overrides session.DefaultActiveWindow.
func WithActiveWindow(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New builds a Router. profiles may be nil, in which case no profile is attached.
func New(classifier *intent.Classifier, services service.Store, sessions store.SessionStore,
	profiles store.ProfileStore, engine Responder, opts ...Option) *Router {
	r := &Router{
		classifier: classifier,
		services:   services,
		sessions:   sessions,
		profiles:   profiles,
		engine:     engine,
		window:     session.DefaultActiveWindow,
		now:        time.Now,
		logger:     logging.For("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route handles one message for one user.
func (r *Router) Route(ctx context.Context, req Request) (Reply, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Reply{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return Reply{}, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	logger := r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"message": logging.Preview(req.Message, 80),
	})

	var active *session.Session
	if req.ForceNewSession {
		if err := r.sessions.Expire(ctx, userID); err != nil {
			r.metrics.StoreError("expire")
			logger.WithError(err).Warn("failed to expire sessions on forced restart")
		}
	} else {
		active = r.findActive(ctx, userID, logger)
	}

	decision := DecisionNew
	tag := ""
	if active != nil {
		classified := r.classifier.Classify(req.Message)
		if classified == intent.General || classified == active.Service {
			return r.continueSession(ctx, active, req.Message, logger), nil
		}

		logger.WithFields(logrus.Fields{
			"from": active.Service,
			"to":   classified,
		}).Info("switching service")
		if err := r.sessions.Expire(ctx, userID); err != nil {
			r.metrics.StoreError("expire")
			logger.WithError(err).Warn("failed to expire previous session")
		}
		decision = DecisionSwitch
		tag = classified
	} else {
		tag = r.pickService(req)
	}

	return r.startSession(ctx, userID, tag, req.Message, decision, logger), nil
}

func (r *Router) findActive(ctx context.Context, userID string, logger *logrus.Entry) *session.Session {
	sess, err := store.FindActive(ctx, r.sessions, userID, "", r.now().Add(-r.window))
	if err != nil {
		r.metrics.StoreError("list")
		logger.WithError(err).Warn("session lookup failed, treating as no active session")
		return nil
	}
	return sess
}

// pickService honours a registered forceService and otherwise classifies.
func (r *Router) pickService(req Request) string {
	if forced := strings.ToLower(strings.TrimSpace(req.ForceService)); forced != "" {
		if _, ok := r.services.Lookup(forced); ok {
			return forced
		}
		r.logger.WithField("force_service", forced).Warn("ignoring unregistered forced service")
	}
	return r.classifier.Classify(req.Message)
}

func (r *Router) continueSession(ctx context.Context, sess *session.Session, message string, logger *logrus.Entry) Reply {
	logger = logger.WithFields(logrus.Fields{"session_id": sess.ID, "service": sess.Service})
	logger.Debug("continuing session")
	r.metrics.ObserveDecision(string(DecisionContinue), sess.Service)
	return r.respond(ctx, sess, message, DecisionContinue, logger)
}

func (r *Router) startSession(ctx context.Context, userID, tag, message string, decision Decision, logger *logrus.Entry) Reply {
	if tag == intent.General {
		r.metrics.ObserveDecision(string(DecisionRejected), intent.General)
		logger.Info("no commerce intent detected")
		return Reply{Text: scopeText, Decision: DecisionRejected, Err: ErrUnsupportedIntent}
	}
	desc, ok := r.services.Lookup(tag)
	if !ok {
		r.metrics.ObserveDecision(string(DecisionRejected), tag)
		return Reply{
			Text:     unsupportedServiceText(tag, tags(r.services)),
			Decision: DecisionRejected,
			Err:      ErrUnsupportedIntent,
		}
	}

	p := r.fetchProfile(ctx, userID, logger)
	seed := session.UserMessage(handoffMessage(desc.Description, p, message))
	if desc.ToolProvider != nil {
		desc.ToolProvider.AuthorizationToken = ""
	}
	sess := session.New(userID, desc, p, r.now(), seed)

	logger = logger.WithFields(logrus.Fields{"session_id": sess.ID, "service": sess.Service})
	if err := r.sessions.Create(ctx, sess); err != nil {
		r.metrics.StoreError("create")
		logger.WithError(err).Error("failed to create session")
		return Reply{
			Text:     createFailedText(tag),
			Service:  tag,
			Decision: decision,
			Err:      fmt.Errorf("%w: %w", ErrSessionCreateFailed, err),
		}
	}

	logger.WithField("has_profile", p != nil).Info("session created")
	r.metrics.ObserveDecision(string(decision), tag)
	return r.respond(ctx, sess, "", decision, logger)
}

func (r *Router) respond(ctx context.Context, sess *session.Session, message string, decision Decision, logger *logrus.Entry) Reply {
	reply := Reply{SessionID: sess.ID, Service: sess.Service, Decision: decision}
	text, err := r.engine.Respond(ctx, sess, message)
	if err != nil {
		logger.WithError(err).Error("conversation turn failed")
		reply.Text = completionFailedText(sess.Service)
		reply.Err = err
		if !errors.Is(err, ErrCompletionFailed) {
			reply.Err = fmt.Errorf("%w: %w", ErrCompletionFailed, err)
		}
		return reply
	}
	reply.Text = text
	return reply
}

// fetchProfile is best-effort: lookup failures are logged and read as no profile.
func (r *Router) fetchProfile(ctx context.Context, userID string, logger *logrus.Entry) *profile.Profile {
	if r.profiles == nil {
		return nil
	}
	p, err := r.profiles.Get(ctx, userID)
	if err != nil {
		r.metrics.StoreError("profile")
		logger.WithError(err).Warn("profile lookup failed, continuing without profile")
		return nil
	}
	return p
}

func tags(s service.Store) []string {
	list := s.List()
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Tag
	}
	return out
}
