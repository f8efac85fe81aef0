package respond

type SearchHit struct {
	Message *MessageItem `json:"message"`
	Score   float32      `json:"score"`
}

type SearchConversationsRespond struct {
	Query      string       `json:"query"`
	Hits       []*SearchHit `json:"hits"`
	DurationMs int64        `json:"duration_ms"`
}
