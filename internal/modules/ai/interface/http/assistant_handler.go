package http

import (
	"strings"

	jwtMiddleware "SecAssist/internal/middleware/jwt"
	aiRequest "SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/service"
	"SecAssist/pkg/back"
	"SecAssist/pkg/xerr"
	"SecAssist/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssistantHandler 安全助手HTTP Handler
type AssistantHandler struct {
	svc service.AssistantService
}

// NewAssistantHandler 创建AssistantHandler
func NewAssistantHandler(svc service.AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

// Process 处理一轮安全查询
//
// 路由: POST /assistant/process
// 鉴权: 需要JWT
// 请求体: ProcessRequest
// 响应体: ProcessRespond（全部处理器失败时 code=503，data 仍带错误提示文本）
func (h *AssistantHandler) Process(c *gin.Context) {
	var req aiRequest.ProcessRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error("assistant process bind error", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	uuid, ok := currentUser(c)
	if !ok {
		return
	}

	data, err := h.svc.Process(c.Request.Context(), req, uuid)
	if err != nil {
		zlog.Error("assistant process failed", zap.Error(err), zap.String("uuid", uuid))
	}
	back.Result(c, data, err)
}

// CloseSession 路由: POST /assistant/session/close
func (h *AssistantHandler) CloseSession(c *gin.Context) {
	var req aiRequest.CloseSessionRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	uuid, ok := currentUser(c)
	if !ok {
		return
	}
	data, err := h.svc.CloseSession(c.Request.Context(), req, uuid)
	back.Result(c, data, err)
}

// SessionMessages 路由: POST /assistant/session/messages
func (h *AssistantHandler) SessionMessages(c *gin.Context) {
	var req aiRequest.SessionMessagesRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	uuid, ok := currentUser(c)
	if !ok {
		return
	}
	data, err := h.svc.ListSessionMessages(c.Request.Context(), req, uuid)
	back.Result(c, data, err)
}

// currentUser user id set by the jwt middleware; writes 401 when missing
func currentUser(c *gin.Context) (string, bool) {
	uuid := strings.TrimSpace(c.GetString(jwtMiddleware.ContextUserKey))
	if uuid == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return "", false
	}
	return uuid, true
}
