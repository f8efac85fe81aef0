package respond

import "time"

// ProcessRespond reply of one turn
type ProcessRespond struct {
	SessionID             string           `json:"session_id"`
	Text                  string           `json:"text"`
	Intent                string           `json:"intent"`
	Confidence            float64          `json:"confidence"`
	Route                 string           `json:"route"` // direct | flagged | clarify
	HandlersUsed          []string         `json:"handlers_used"`
	Sources               []string         `json:"sources"`
	Outcomes              []HandlerOutcome `json:"outcomes"`
	TimingMs              int64            `json:"timing_ms"`
	Timing                map[string]int64 `json:"timing"`
	Degraded              bool             `json:"degraded"`
	LowConfidence         bool             `json:"low_confidence"`
	ClarificationRequired bool             `json:"clarification_required"`
}

type HandlerOutcome struct {
	Handler   string `json:"handler"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// MessageItem one stored message; content is always the redacted form
type MessageItem struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Category  string         `json:"category"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

type SessionMessagesRespond struct {
	SessionID string         `json:"session_id"`
	Messages  []*MessageItem `json:"messages"` // 按时间正序
	Total     int            `json:"total"`
}

type CloseSessionRespond struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}
