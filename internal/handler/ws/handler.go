package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/handler/route"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/middleware"
	"github.com/zhouzirui/commerce-router/internal/service/router"
)

const (
	defaultReadTimeout = 60 * time.Second
	writeTimeout       = 10 * time.Second
	// pending route frames per connection before new ones are refused
	queueSize = 8
)

// Limiter 按客户端限制 route 消息频率
type Limiter interface {
	Allow(key string) bool
}

// Handler WebSocket路由处理器，每条 route 消息按到达顺序依次路由
type Handler struct {
	router      route.Service
	metrics     *metrics.Metrics
	limiter     Limiter
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	logger      *logrus.Entry
}

// Option 配置WebSocket处理器
type Option func(*Handler)

// WithLimiter 对每条 route 消息按客户端IP限流
func WithLimiter(l Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithReadTimeout 设置读超时，ping间隔取其 9/10
func WithReadTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.readTimeout = d
		}
	}
}

// New 创建WebSocket处理器
func New(svc route.Service, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		router:  svc,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout: defaultReadTimeout,
		logger:      logging.For("websocket"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 串行化同一连接上的写操作
type connection struct {
	conn   *websocket.Conn
	client string
	mu     sync.Mutex
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *connection) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接；读循环只负责收消息和心跳，路由在独立goroutine中依次执行
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.WebSocketOpened()
	defer h.metrics.WebSocketClosed()

	c := &connection{conn: conn, client: middleware.ClientKey(r)}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, c)

	queue := make(chan json.RawMessage, queueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for raw := range queue {
			h.handleRoute(ctx, c, raw)
		}
	}()
	defer func() {
		close(queue)
		<-done
	}()

	h.send(c, "connected", map[string]any{"status": "ready"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Warn("read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		switch msg.Type {
		case "route":
			if h.limiter != nil && !h.limiter.Allow(c.client) {
				h.sendError(c, "rate limit exceeded")
				continue
			}
			select {
			case queue <- msg.Data:
			default:
				h.sendError(c, "too many pending messages")
			}
		case "ping":
			h.send(c, "pong", nil)
		default:
			h.sendError(c, "unsupported message type: "+msg.Type)
		}
	}
}

func (h *Handler) handleRoute(ctx context.Context, c *connection, raw json.RawMessage) {
	var payload route.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, "invalid route payload")
		return
	}

	req := payload.Request()
	reply, err := h.router.Route(ctx, req)
	if err != nil {
		if errors.Is(err, router.ErrInvalidRequest) {
			h.sendError(c, err.Error())
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("route failed")
		h.sendError(c, "routing failed")
		return
	}
	h.send(c, "reply", route.NewResponse(req.UserID, reply))
}

func (h *Handler) send(c *connection, kind string, data interface{}) {
	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
	if err := c.writeJSON(msg); err != nil {
		h.logger.WithError(err).Warn("write failed")
	}
}

func (h *Handler) sendError(c *connection, message string) {
	h.send(c, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(h.readTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}
