package route

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/service/router"
	"github.com/zhouzirui/commerce-router/pkg/utils"
)

// Service 路由服务接口
type Service interface {
	Route(ctx context.Context, req router.Request) (router.Reply, error)
}

// Payload 路由请求体，HTTP、SSE与WebSocket共用
type Payload struct {
	UserID          string `json:"userId"`
	Message         string `json:"message"`
	ForceService    string `json:"forceService,omitempty"`
	ForceNewSession bool   `json:"forceNewSession,omitempty"`
}

// Request 转换为路由请求，空用户ID时生成匿名ID
func (p Payload) Request() router.Request {
	return router.Request{
		UserID:          utils.ResolveUserID(p.UserID, p.Message),
		Message:         p.Message,
		ForceService:    p.ForceService,
		ForceNewSession: p.ForceNewSession,
	}
}

// Response 路由结果
type Response struct {
	Reply     string `json:"reply"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Service   string `json:"service,omitempty"`
	Decision  string `json:"decision"`
	Error     string `json:"error,omitempty"`
}

// NewResponse 将路由结果转换为响应体
func NewResponse(userID string, reply router.Reply) Response {
	return Response{
		Reply:     reply.Text,
		UserID:    userID,
		SessionID: reply.SessionID,
		Service:   reply.Service,
		Decision:  string(reply.Decision),
		Error:     ErrorKind(reply.Err),
	}
}

// ErrorKind 返回用户可见错误的类别
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, router.ErrUnsupportedIntent):
		return "unsupported_intent"
	case errors.Is(err, router.ErrSessionCreateFailed):
		return "session_create_failed"
	case errors.Is(err, router.ErrCompletionFailed):
		return "completion_failed"
	default:
		return "internal"
	}
}

// Handler 路由服务的HTTP处理器
type Handler struct {
	router Service
	logger *logrus.Entry
}

// New 创建路由处理器
func New(svc Service) *Handler {
	return &Handler{router: svc, logger: logging.For("route-handler")}
}

// RegisterRoutes 注册路由相关的接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/route", h.handleRoute)
}

// handleRoute 路由一条消息；用户可见的失败仍返回200与提示文本
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	var payload Payload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// 客户端断开后仍完成本轮，保证会话记录完整
	req := payload.Request()
	reply, err := h.router.Route(context.WithoutCancel(r.Context()), req)
	if err != nil {
		if errors.Is(err, router.ErrInvalidRequest) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("route failed")
		utils.RespondError(w, http.StatusInternalServerError, "routing failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, NewResponse(req.UserID, reply))
}
