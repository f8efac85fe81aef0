package request

// DeleteUserDataRequest erasure of the authenticated user's data.
// Confirm must be true: the operation is irreversible.
type DeleteUserDataRequest struct {
	Confirm bool `json:"confirm"`
}

// ApplyRetentionRequest manual retention run; Now defaults to the server clock
type ApplyRetentionRequest struct {
	Now string `json:"now"`
}

type ReindexSessionRequest struct {
	SessionID string `json:"session_id"`
}
