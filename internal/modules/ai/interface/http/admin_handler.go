package http

import (
	aiRequest "SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/service"
	"SecAssist/pkg/back"
	"SecAssist/pkg/xerr"
	"SecAssist/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PrivacyHandler 用户数据删除与运维接口
type PrivacyHandler struct {
	svc service.PrivacyService
}

func NewPrivacyHandler(svc service.PrivacyService) *PrivacyHandler {
	return &PrivacyHandler{svc: svc}
}

// DeleteUser 删除当前用户的全部数据
//
// 路由: POST /privacy/deleteUser
// 请求体: {"confirm": true}
func (h *PrivacyHandler) DeleteUser(c *gin.Context) {
	var req aiRequest.DeleteUserDataRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	uuid, ok := currentUser(c)
	if !ok {
		return
	}
	data, err := h.svc.DeleteUserData(c.Request.Context(), req, uuid)
	back.Result(c, data, err)
}

// ApplyRetention 手动触发一次保留策略清理
//
// 路由: POST /admin/retention/apply
func (h *PrivacyHandler) ApplyRetention(c *gin.Context) {
	var req aiRequest.ApplyRetentionRequest
	// empty body is allowed
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
			return
		}
	}
	data, err := h.svc.ApplyRetention(c.Request.Context(), req)
	if err != nil {
		zlog.Error("manual retention failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// ReindexSession 重新投递会话的 embedding 任务
//
// 路由: POST /admin/session/reindex
func (h *PrivacyHandler) ReindexSession(c *gin.Context) {
	var req aiRequest.ReindexSessionRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.ReindexSession(c.Request.Context(), req)
	back.Result(c, data, err)
}
