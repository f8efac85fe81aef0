package intent

import (
	"errors"
	"strings"
)

// Tag classified purpose of a query
type Tag string

const (
	TagRisk            Tag = "risk"
	TagIncident        Tag = "incident"
	TagCompliance      Tag = "compliance"
	TagThreat          Tag = "threat"
	TagReporting       Tag = "reporting"
	TagProactiveReview Tag = "proactive_review"
	TagGeneral         Tag = "general"
)

// AllTags in declaration order
var AllTags = []Tag{TagRisk, TagIncident, TagCompliance, TagThreat, TagReporting, TagProactiveReview, TagGeneral}

// ParseTag accepts "proactive-review" and "proactive_review" in any case.
func ParseTag(s string) (Tag, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, " ", "_")
	for _, t := range AllTags {
		if string(t) == norm {
			return t, true
		}
	}
	return "", false
}

// Intent classification result; ephemeral, persisted only as message metadata
type Intent struct {
	Tag        Tag      `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`
}

// Route gate outcome
type Route string

const (
	RouteDirect  Route = "direct"  // confidence >= high
	RouteFlagged Route = "flagged" // medium band, executed with a low-confidence note
	RouteClarify Route = "clarify" // no handler runs
)

// Decision classifier gate output for one request
type Decision struct {
	Intent   Intent
	Route    Route
	Attempts int
	Fallback bool // classification failed, general/0 substituted
}

func (d Decision) LowConfidence() bool {
	return d.Route == RouteFlagged
}

func (d Decision) ClarificationRequired() bool {
	return d.Route == RouteClarify
}

var (
	ErrAllHandlersFailed     = errors.New("all handlers failed")
	ErrHandlerNotRegistered  = errors.New("handler not registered")
	ErrInvalidClassification = errors.New("invalid classification output")
)
