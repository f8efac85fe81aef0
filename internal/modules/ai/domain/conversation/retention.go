package conversation

import (
	"strings"
	"time"
)

// DefaultCategory catch-all retention category
const DefaultCategory = "default"

// RetentionRule messages of Category older than MaxAge are deleted
type RetentionRule struct {
	Category string
	MaxAge   time.Duration
}

// RetentionPolicy rule set where every category resolves to exactly one rule
type RetentionPolicy struct {
	rules []RetentionRule
}

// NewRetentionPolicy de-duplicates by category (first wins) and guarantees a default rule.
func NewRetentionPolicy(rules []RetentionRule, defaultMaxAge time.Duration) *RetentionPolicy {
	seen := make(map[string]struct{}, len(rules))
	out := make([]RetentionRule, 0, len(rules)+1)
	for _, r := range rules {
		cat := strings.TrimSpace(r.Category)
		if cat == "" || r.MaxAge <= 0 {
			continue
		}
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, RetentionRule{Category: cat, MaxAge: r.MaxAge})
	}
	if _, ok := seen[DefaultCategory]; !ok {
		out = append(out, RetentionRule{Category: DefaultCategory, MaxAge: defaultMaxAge})
	}
	return &RetentionPolicy{rules: out}
}

// Rules in declaration order, default included
func (p *RetentionPolicy) Rules() []RetentionRule {
	out := make([]RetentionRule, len(p.rules))
	copy(out, p.rules)
	return out
}

// RuleFor resolves the single rule governing category
func (p *RetentionPolicy) RuleFor(category string) RetentionRule {
	var def RetentionRule
	for _, r := range p.rules {
		if r.Category == category {
			return r
		}
		if r.Category == DefaultCategory {
			def = r
		}
	}
	return def
}

// NamedCategories every category with its own rule (default excluded)
func (p *RetentionPolicy) NamedCategories() []string {
	out := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		if r.Category != DefaultCategory {
			out = append(out, r.Category)
		}
	}
	return out
}
