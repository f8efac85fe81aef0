package request

// ProcessRequest one security query; user id comes from the JWT
type ProcessRequest struct {
	Query     string `json:"query"`      // 用户查询（必填）
	SessionID string `json:"session_id"` // 会话ID（可空，不传则创建新会话）
}

type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionMessagesRequest chronological history page
type SessionMessagesRequest struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`  // 默认50，最大200
	Offset    int    `json:"offset"` // 默认0
}
