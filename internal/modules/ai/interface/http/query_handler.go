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

// QueryHandler 历史对话检索
type QueryHandler struct {
	svc service.RetrieveService
}

func NewQueryHandler(svc service.RetrieveService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Search 语义检索调用者自己的历史消息
//
// 路由: POST /assistant/search
func (h *QueryHandler) Search(c *gin.Context) {
	var req aiRequest.SearchConversationsRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error("conversation search bind error", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	uuid, ok := currentUser(c)
	if !ok {
		return
	}
	data, err := h.svc.SearchConversations(c.Request.Context(), req, uuid)
	if err != nil {
		zlog.Warn("conversation search failed", zap.Error(err), zap.String("uuid", uuid))
	}
	back.Result(c, data, err)
}
