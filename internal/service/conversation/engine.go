// Package conversation runs one turn of a commerce session: it builds the
// enhanced system prompt, calls the model (degrading to a tool-less retry
// when the tool provider fails) and persists the updated history.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/service/completion"
	"github.com/zhouzirui/commerce-router/internal/store"
)

// ErrCompletionFailed means neither the tool-enabled call nor the plain
// retry produced a response. Nothing was persisted for the turn.
var ErrCompletionFailed = errors.New("completion failed")

// DefaultTimeout bounds each completion attempt.
const DefaultTimeout = 90 * time.Second

// Engine is safe for concurrent use; it keeps no per-session state.
type Engine struct {
	completer completion.Completer
	sessions  store.SessionStore
	services  service.Store
	now       func() time.Time
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *logrus.Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTimeout sets the per-attempt completion timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the engine to its collaborators. services is used to
// restore tool-provider credentials that session snapshots do not carry.
func NewEngine(completer completion.Completer, sessions store.SessionStore, services service.Store, opts ...Option) *Engine {
	e := &Engine{
		completer: completer,
		sessions:  sessions,
		services:  services,
		now:       time.Now,
		timeout:   DefaultTimeout,
		logger:    logging.For("conversation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Respond runs one turn. A non-empty incremental message is appended as a
// user turn first. On success sess carries the new history and last-active
// time; on ErrCompletionFailed sess is left untouched.
func (e *Engine) Respond(ctx context.Context, sess *session.Session, incremental string) (string, error) {
	desc := e.descriptor(sess)
	logger := e.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"user_id":    sess.UserID,
		"service":    sess.Service,
	})

	history := append([]session.Message(nil), sess.History...)
	if incremental != "" {
		history = append(history, session.UserMessage(incremental))
	}

	prompt := buildSystemPrompt(desc.SystemPrompt, sess)
	req := completion.Request{
		Service:      sess.Service,
		History:      history,
		SystemPrompt: prompt,
	}
	if desc.ToolsEnabled() {
		req.ToolProvider = desc.ToolProvider
	}

	result, err := e.attempt(ctx, req)
	if err != nil && req.ToolProvider != nil {
		logger.WithError(err).Warn("tool-enabled completion failed, retrying without tools")
		e.metrics.Degraded(sess.Service)

		req.ToolProvider = nil
		req.SystemPrompt = prompt + toolsUnavailableNote(sess.Service)
		result, err = e.attempt(ctx, req)
	}
	if err != nil {
		e.metrics.CompletionFailed(sess.Service)
		return "", fmt.Errorf("%w for %s: %w", ErrCompletionFailed, sess.Service, err)
	}

	text := visibleText(result)
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("I received a response from %s but couldn't process it properly.", sess.Service)
	}

	sess.History = append(history, session.AssistantMessage(text))
	sess.LastActiveAt = e.now().UTC()

	ok, err := e.sessions.Update(ctx, sess)
	switch {
	case err != nil:
		e.metrics.StoreError("update")
		logger.WithError(err).Error("failed to persist session history")
	case !ok:
		logger.Warn("session vanished before its history could be saved")
	}

	logger.WithFields(logrus.Fields{
		"tool_results": len(result.ToolResultSegments()),
		"chars":        len(text),
	}).Info("turn completed")
	return text, nil
}

// descriptor prefers the live registry entry for credentials and falls back
// to the snapshot for everything else.
func (e *Engine) descriptor(sess *session.Session) service.Descriptor {
	desc := sess.Context.Service
	if e.services == nil {
		return desc
	}
	live, ok := e.services.Lookup(sess.Service)
	if !ok {
		return desc
	}
	if desc.Tag == "" {
		return live
	}
	desc.ToolProvider = live.ToolProvider
	return desc
}

func (e *Engine) attempt(ctx context.Context, req completion.Request) (*completion.Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.completer.Generate(ctx, req)
	e.metrics.ObserveCompletion(req.Service, req.ToolProvider != nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &completion.Result{}
	}
	return result, nil
}

// visibleText joins text blocks verbatim and appends each tool result on
// its own paragraph, in model order.
func visibleText(r *completion.Result) string {
	var b strings.Builder
	for _, block := range r.Blocks {
		switch block.Kind {
		case completion.BlockText:
			b.WriteString(block.Text)
		case completion.BlockToolResult:
			b.WriteString("\n\n")
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
