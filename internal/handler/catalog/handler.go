package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/store"
	"github.com/zhouzirui/commerce-router/pkg/utils"
)

// ServiceInfo 对外展示的服务信息，不包含系统提示词与凭证
type ServiceInfo struct {
	Tag          string   `json:"tag"`
	Description  string   `json:"description"`
	Keywords     []string `json:"keywords"`
	ToolsEnabled bool     `json:"toolsEnabled"`
}

// Describe 生成服务列表
func Describe(list []service.Descriptor) []ServiceInfo {
	out := make([]ServiceInfo, 0, len(list))
	for _, d := range list {
		out = append(out, ServiceInfo{
			Tag:          d.Tag,
			Description:  d.Description,
			Keywords:     d.Keywords,
			ToolsEnabled: d.ToolsEnabled(),
		})
	}
	return out
}

// Handler 服务目录与用户资料的HTTP处理器
type Handler struct {
	services service.Store
	profiles store.ProfileStore
}

// New 创建目录处理器
func New(services service.Store, profiles store.ProfileStore) *Handler {
	return &Handler{services: services, profiles: profiles}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services", h.handleListServices)
	r.Get("/profiles/{userID}", h.handleGetProfile)
}

// handleListServices 列出所有服务
func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, Describe(h.services.List()))
}

// handleGetProfile 返回脱敏后的用户资料
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if h.profiles == nil {
		utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		logging.For("catalog").WithError(err).WithField("user_id", userID).Warn("profile lookup failed")
		utils.RespondError(w, http.StatusServiceUnavailable, "profile store unavailable")
		return
	}
	if p == nil {
		utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p.Summarize())
}
