package conversation

// ContextWindow bounded, chronological slice of a session fed to downstream calls.
// TokenCount <= Budget unless OverBudget is set, in which case Messages holds
// exactly the single most important message.
type ContextWindow struct {
	SessionID  string
	Messages   []*Message
	TokenCount int
	Budget     int
	Dropped    int
	Compressed int
	OverBudget bool
}

func (w *ContextWindow) Empty() bool {
	return w == nil || len(w.Messages) == 0
}
