package plugins

import (
	"strings"
)

var sourcePrefixes = []string{"fuentes:", "sources:", "fuente:", "source:"}

// ParseSources splits a trailing "Fuentes:"/"Sources:" block from the body.
// Items may be inline (separated by ";" or ",") or listed one per line as
// bullets. A prefix line followed by anything else is body text.
func ParseSources(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	lines := strings.Split(text, "\n")

	at := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if hasSourcePrefix(lines[i]) {
			at = i
			break
		}
	}
	if at < 0 || !sourceListFollows(lines[at+1:]) {
		return text, nil
	}

	var raw []string
	inline := strings.TrimSpace(lines[at])
	inline = strings.TrimSpace(inline[strings.Index(inline, ":")+1:])
	if inline != "" {
		sep := ";"
		if !strings.Contains(inline, ";") {
			sep = ","
		}
		raw = append(raw, strings.Split(inline, sep)...)
	}
	for _, l := range lines[at+1:] {
		l = strings.TrimSpace(l)
		l = strings.TrimLeft(l, "-*• ")
		if l != "" {
			raw = append(raw, l)
		}
	}

	body := strings.TrimSpace(strings.Join(lines[:at], "\n"))
	return body, DedupSources(nil, raw)
}

func sourceListFollows(rest []string) bool {
	for _, l := range rest {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !strings.HasPrefix(l, "-") && !strings.HasPrefix(l, "*") && !strings.HasPrefix(l, "•") {
			return false
		}
	}
	return true
}

func hasSourcePrefix(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	l = strings.TrimLeft(l, "*_# ")
	for _, p := range sourcePrefixes {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return false
}

// DedupSources appends add to base keeping first-seen order, case-insensitively unique.
func DedupSources(base []string, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_."))
			if s == "" {
				continue
			}
			k := strings.ToLower(s)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
