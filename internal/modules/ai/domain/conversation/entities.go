package conversation

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	SessionStatusActive int8 = 1 // active session
	SessionStatusClosed int8 = 0 // closed, read-only
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSummary   = "system-summary"
)

// metadata keys written on messages
const (
	MetaIntent        = "intent"
	MetaConfidence    = "confidence"
	MetaRoute         = "route"
	MetaHandlers      = "handlers"
	MetaLatencyMs     = "latency_ms"
	MetaPIIFlags      = "pii_flags"
	MetaLowConfidence = "low_confidence"
	MetaClarification = "clarification"
	MetaError         = "error"
	MetaSummaryOf     = "summary_of"
	MetaEntities      = "entities"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAccessDenied     = errors.New("session belongs to another user")
	ErrStoreUnavailable = errors.New("conversation store unavailable")
	ErrEmptyQuery       = errors.New("query is empty")
)

// Session conversation owned by one user
type Session struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionId string    `gorm:"column:session_id;type:char(32);uniqueIndex;not null"`
	UserId    string    `gorm:"column:user_id;type:varchar(64);index;not null"`
	Status    int8      `gorm:"column:status;type:tinyint;not null;default:1"` // 1=active, 0=closed
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime(3);not null"`
}

func (Session) TableName() string {
	return "ai_security_session"
}

func (s *Session) IsClosed() bool {
	return s != nil && s.Status == SessionStatusClosed
}

// Message one turn of a session. Content is always the redacted form;
// RawContent is empty unless the privacy policy allowed keeping it.
type Message struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionId    string    `gorm:"column:session_id;type:char(32);not null;index:idx_session_time,priority:1"`
	UserId       string    `gorm:"column:user_id;type:varchar(64);index;not null"`
	Role         string    `gorm:"column:role;type:varchar(16);not null"`
	Content      string    `gorm:"column:content;type:mediumtext"`
	RawContent   string    `gorm:"column:raw_content;type:mediumtext"`
	Category     string    `gorm:"column:category;type:varchar(32);index;not null"`
	MetadataJson string    `gorm:"column:metadata_json;type:json"`
	EmbeddingRef *string   `gorm:"column:embedding_ref;type:varchar(64)"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime(3);not null;index:idx_session_time,priority:2;index"`
}

func (Message) TableName() string {
	return "ai_security_message"
}

// Metadata decodes MetadataJson; a broken payload yields an empty map.
func (m *Message) Metadata() map[string]any {
	out := map[string]any{}
	if m == nil || m.MetadataJson == "" {
		return out
	}
	_ = json.Unmarshal([]byte(m.MetadataJson), &out)
	return out
}

// SetMetadata replaces the metadata payload
func (m *Message) SetMetadata(meta map[string]any) {
	if len(meta) == 0 {
		m.MetadataJson = "{}"
		return
	}
	b, err := json.Marshal(meta)
	if err != nil {
		m.MetadataJson = "{}"
		return
	}
	m.MetadataJson = string(b)
}

// Confidence classification confidence stored on the message, 0 when absent.
func (m *Message) Confidence() float64 {
	v, ok := m.Metadata()[MetaConfidence]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}
