package request

// SearchConversationsRequest semantic search over the caller's own history.
// Dates are RFC3339; empty means unbounded.
type SearchConversationsRequest struct {
	Query     string  `json:"query"`
	SessionID string  `json:"session_id"`
	DateFrom  string  `json:"date_from"`
	DateTo    string  `json:"date_to"`
	Limit     int     `json:"limit"`     // 默认10，最大50
	MinScore  float32 `json:"min_score"` // 0 = no cutoff
}
