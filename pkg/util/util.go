package util

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID standard v4 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID UUID without dashes
func GenerateShortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateID prefixed short id, e.g. "SS" + 30 hex chars for sessions
func GenerateID(prefix string) string {
	id := GenerateShortUUID()
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || len(prefix) >= len(id) {
		return prefix + id
	}
	return prefix + id[:len(id)-len(prefix)]
}
