package respond

type DeleteUserDataRespond struct {
	Sessions     int64 `json:"sessions"`
	Messages     int64 `json:"messages"`
	IndexEntries int64 `json:"index_entries"`
}

type ApplyRetentionRespond struct {
	Deleted    int   `json:"deleted"`
	DurationMs int64 `json:"duration_ms"`
}

type ReindexSessionRespond struct {
	SessionID string `json:"session_id"`
	Enqueued  int    `json:"enqueued"`
}
