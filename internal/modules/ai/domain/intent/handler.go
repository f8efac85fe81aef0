package intent

import (
	"strings"
	"unicode"
)

// ExecutionMode hint for the coordinator
type ExecutionMode string

const (
	ModeStateless  ExecutionMode = "stateless"
	ModeIdempotent ExecutionMode = "idempotent"
)

// HandlerDescriptor registered once at startup, read-only afterwards
type HandlerDescriptor struct {
	Name    string
	Tags    []Tag
	Markers []string // lower-case entity markers this handler recognises
	Mode    ExecutionMode
}

func (d HandlerDescriptor) Serves(tag Tag) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Recognizes reports whether entity mentions one of the handler's markers
// (whole words only) or names one of its tags.
func (d HandlerDescriptor) Recognizes(entity string) bool {
	e := normalizeWords(entity)
	if e == "" {
		return false
	}
	padded := " " + e + " "
	for _, m := range d.Markers {
		m = normalizeWords(m)
		if m != "" && strings.Contains(padded, " "+m+" ") {
			return true
		}
	}
	for _, t := range d.Tags {
		if e == normalizeWords(string(t)) {
			return true
		}
	}
	return false
}

// normalizeWords lower-cases s and keeps letters, digits and '&' as single-space separated words
func normalizeWords(s string) string {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '&'
	})
	return strings.Join(f, " ")
}

// HandlerOutcome result of one handler run; failed outcomes keep Err set
type HandlerOutcome struct {
	Handler   string
	Text      string
	Sources   []string
	Err       error
	LatencyMs int64
}

func (o HandlerOutcome) OK() bool {
	return o.Err == nil
}
