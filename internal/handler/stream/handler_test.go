package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/commerce-router/internal/service/router"
)

type slowRouter struct {
	delay time.Duration
	reply router.Reply
	err   error
}

func (s *slowRouter) Route(_ context.Context, req router.Request) (router.Reply, error) {
	time.Sleep(s.delay)
	return s.reply, s.err
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func TestStreamEventsInOrder(t *testing.T) {
	h := New(&slowRouter{
		delay: 60 * time.Millisecond,
		reply: router.Reply{Text: "Pizza time", SessionID: "s1", Service: "dominos", Decision: router.DecisionNew},
	})
	h.heartbeat = 10 * time.Millisecond

	resp := serve(h, "/stream?userId=u1&message=I+want+pizza")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := resp.Body.String()
	start := strings.Index(body, "event: start")
	beat := strings.Index(body, "event: heartbeat")
	msg := strings.Index(body, "event: message")
	done := strings.Index(body, "event: done")
	if start != 0 || beat < start || msg < beat || done < msg {
		t.Fatalf("unexpected event order:\n%s", body)
	}
	if !strings.Contains(body, `"reply":"Pizza time"`) {
		t.Fatalf("missing reply in %s", body)
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	resp := serve(New(&slowRouter{}), "/stream?userId=u1")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamReportsRouteError(t *testing.T) {
	h := New(&slowRouter{err: fmt.Errorf("%w: user id is required", router.ErrInvalidRequest)})
	body := serve(h, "/stream?message=hello").Body.String()

	if !strings.Contains(body, "event: error") || strings.Contains(body, "event: done") {
		t.Fatalf("unexpected body %s", body)
	}
}
