package privacy

import (
	"time"

	"SecAssist/internal/config"
	"SecAssist/internal/modules/ai/domain/conversation"
)

const defaultMaxAge = 90 * 24 * time.Hour

// PolicyFromConfig day-based rules; the default rule falls back to 90 days when absent
func PolicyFromConfig(rc config.RetentionConfig) *conversation.RetentionPolicy {
	rules := make([]conversation.RetentionRule, 0, len(rc.Rules))
	for _, r := range rc.Rules {
		rules = append(rules, conversation.RetentionRule{
			Category: r.Category,
			MaxAge:   time.Duration(r.MaxAgeDays) * 24 * time.Hour,
		})
	}
	return conversation.NewRetentionPolicy(rules, defaultMaxAge)
}
