package stream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/handler/route"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/service/router"
	"github.com/zhouzirui/commerce-router/pkg/utils"
)

// DefaultHeartbeat is how often a heartbeat event is sent while the model works.
const DefaultHeartbeat = 8 * time.Second

// Handler streams routing progress via Server-Sent Events
type Handler struct {
	router    route.Service
	heartbeat time.Duration
	logger    *logrus.Entry
}

// New creates a new stream handler
func New(svc route.Service) *Handler {
	return &Handler{
		router:    svc,
		heartbeat: DefaultHeartbeat,
		logger:    logging.For("stream"),
	}
}

// RegisterRoutes registers the SSE endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

// StreamResponse represents one SSE event payload
type StreamResponse struct {
	Event    string          `json:"event"`
	UserID   string          `json:"userId,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   *route.Response `json:"result,omitempty"`
	Finished bool            `json:"finished,omitempty"`
	Error    string          `json:"error,omitempty"`
	Time     string          `json:"time,omitempty"`
}

type outcome struct {
	reply router.Reply
	err   error
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	payload := route.Payload{
		UserID:       query.Get("userId"),
		Message:      query.Get("message"),
		ForceService: query.Get("forceService"),
	}
	payload.ForceNewSession, _ = strconv.ParseBool(query.Get("forceNewSession"))

	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	req := payload.Request()
	logger := h.logger.WithField("user_id", req.UserID)
	if err := h.Stream(r.Context(), w, flusher, req); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("stream ended with error")
	}
}

// Stream routes req and writes start, heartbeat, message and done events.
// The route call keeps running to completion if the client disconnects so the
// turn is still persisted.
func (h *Handler) Stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, req router.Request) error {
	if err := utils.SendSSEEvent(w, flusher, "start", StreamResponse{
		Event:   "start",
		UserID:  req.UserID,
		Message: "routing message",
	}); err != nil {
		return err
	}

	done := make(chan outcome, 1)
	go func() {
		reply, err := h.router.Route(context.WithoutCancel(ctx), req)
		done <- outcome{reply: reply, err: err}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", StreamResponse{
				Event:   "heartbeat",
				Message: "awaiting llm response",
				Time:    t.UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		case res := <-done:
			if res.err != nil {
				_ = utils.SendSSEEvent(w, flusher, "error", StreamResponse{Event: "error", Error: res.err.Error()})
				return res.err
			}
			resp := route.NewResponse(req.UserID, res.reply)
			if err := utils.SendSSEEvent(w, flusher, "message", StreamResponse{Event: "message", Result: &resp}); err != nil {
				return err
			}
			return utils.SendSSEEvent(w, flusher, "done", StreamResponse{Event: "done", Finished: true})
		}
	}
}
