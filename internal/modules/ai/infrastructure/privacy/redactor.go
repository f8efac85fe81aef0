package privacy

import (
	"regexp"
	"sort"
	"strings"
)

// Category PII category detected in free text
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryNationalID Category = "national_id"
	CategoryCardNumber Category = "card_number"
	CategoryIPAddress  Category = "ip_address"
	CategoryName       Category = "name"
	CategoryAddress    Category = "address"
	CategoryDOB        Category = "dob"
	CategoryPassport   Category = "passport"
	CategoryLicense    Category = "license"
)

// Catalog every supported category, in detection priority order
var Catalog = []Category{
	CategoryEmail,
	CategoryCardNumber,
	CategoryIPAddress,
	CategoryNationalID,
	CategoryPassport,
	CategoryLicense,
	CategoryDOB,
	CategoryPhone,
	CategoryAddress,
	CategoryName,
}

// Placeholder replacement text for a redacted value
func Placeholder(c Category) string {
	return "[REDACTED_" + strings.ToUpper(string(c)) + "]"
}

type detector struct {
	category  Category
	re        *regexp.Regexp
	group     int // submatch that holds the value; 0 = whole match
	valid     func(string) bool
	skipIdent bool // drop the numeric tail of ids such as CVE-2021-44228
}

var detectors = []detector{
	{
		category: CategoryEmail,
		re:       regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	},
	{
		category: CategoryCardNumber,
		re:        regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
		valid:     validCardNumber,
		skipIdent: true,
	},
	{
		category: CategoryIPAddress,
		re:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		valid:    validIPv4,
	},
	{
		// US SSN, Spanish DNI and NIE
		category:  CategoryNationalID,
		re:        regexp.MustCompile(`\b(?:\d{3}-\d{2}-\d{4}|\d{8}[A-Za-z]|[XYZxyz]\d{7}[A-Za-z])\b`),
		skipIdent: true,
	},
	{
		category: CategoryPassport,
		re:       regexp.MustCompile(`(?i)\b(?:passport|pasaporte)(?:\s+(?:no\.?|number|n[úu]mero|nº))?\s*[:#]?\s*([A-Z0-9]{6,9})\b`),
		group:    1,
		valid:    hasDigit,
	},
	{
		category: CategoryLicense,
		re:       regexp.MustCompile(`(?i)\b(?:driver'?s?\s+licen[cs]e|licen[cs]e\s+(?:no\.?|number)|carn[eé]t?\s+de\s+conducir|permiso\s+de\s+conducir)\s*[:#]?\s*([A-Z0-9\-]{5,15})\b`),
		group:    1,
		valid:    hasDigit,
	},
	{
		category: CategoryDOB,
		re:       regexp.MustCompile(`(?i)\b(?:born(?:\s+on)?|date\s+of\s+birth|dob|fecha\s+de\s+nacimiento|nacid[oa]\s+el)\s*:?\s*(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}-\d{2}-\d{2})`),
		group:    1,
	},
	{
		category:  CategoryPhone,
		re:        regexp.MustCompile(`(?:\+|\b)\d[\d ()\-]{7,18}\d\b`),
		valid:     validPhone,
		skipIdent: true,
	},
	{
		category: CategoryAddress,
		re: regexp.MustCompile(`(?i)\b\d{1,5}(?:\s+[a-z]+){1,3}\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr)\b\.?` +
			`|\b(?:calle|avenida|avda\.?|plaza|paseo|camino)\s+(?:de\s+(?:la\s+|los\s+|las\s+)?)?[a-záéíóúñ]+(?:\s+[a-záéíóúñ]+){0,3},?\s*(?:n[º°o]\.?\s*)?\d{1,4}`),
	},
	{
		category: CategoryName,
		re:       regexp.MustCompile(`\b(?i:my name is|me llamo|mi nombre es|name:|nombre:)\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+){0,2})`),
		group:    1,
	},
	{
		// "soy" also introduces roles ("Soy Analista de ..."), so it needs a full name
		category: CategoryName,
		re:       regexp.MustCompile(`\b(?i:soy)\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+){1,2})`),
		group:    1,
	},
}

// Redactor replaces PII with category placeholders before any write.
// Exempt categories are still detected and tagged but kept verbatim.
type Redactor struct {
	exempt    map[Category]struct{}
	retainRaw bool
}

func NewRedactor(exempt []string, retainRaw bool) *Redactor {
	r := &Redactor{exempt: make(map[Category]struct{}, len(exempt)), retainRaw: retainRaw}
	for _, e := range exempt {
		c := Category(strings.ToLower(strings.TrimSpace(e)))
		if c != "" {
			r.exempt[c] = struct{}{}
		}
	}
	return r
}

type span struct {
	start, end int
	category   Category
}

// Ingest returns the redacted text and the distinct categories found, in catalog order.
func (r *Redactor) Ingest(raw string) (string, []Category) {
	if raw == "" {
		return raw, nil
	}

	var spans []span
	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringSubmatchIndex(raw, -1) {
			s, e := loc[2*d.group], loc[2*d.group+1]
			if s < 0 || e <= s {
				continue
			}
			if d.skipIdent && followsIdentPrefix(raw, s) {
				continue
			}
			if d.valid != nil && !d.valid(raw[s:e]) {
				continue
			}
			if overlaps(spans, s, e) {
				continue
			}
			spans = append(spans, span{start: s, end: e, category: d.category})
		}
	}
	if len(spans) == 0 {
		return raw, nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	found := make(map[Category]struct{}, len(spans))
	var b strings.Builder
	b.Grow(len(raw))
	last := 0
	for _, sp := range spans {
		found[sp.category] = struct{}{}
		if r.IsExempt(sp.category) {
			continue
		}
		b.WriteString(raw[last:sp.start])
		b.WriteString(Placeholder(sp.category))
		last = sp.end
	}
	b.WriteString(raw[last:])

	tags := make([]Category, 0, len(found))
	for _, c := range Catalog {
		if _, ok := found[c]; ok {
			tags = append(tags, c)
		}
	}
	return b.String(), tags
}

func (r *Redactor) IsExempt(c Category) bool {
	_, ok := r.exempt[c]
	return ok
}

// RetainRaw reports whether the pre-redaction text may be stored: raw retention
// must be enabled and every detected category exempt.
func (r *Redactor) RetainRaw(tags []Category) bool {
	if !r.retainRaw {
		return false
	}
	for _, t := range tags {
		if !r.IsExempt(t) {
			return false
		}
	}
	return true
}

// JoinTags comma separated form stored in message metadata
func JoinTags(tags []Category) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func overlaps(spans []span, s, e int) bool {
	for _, sp := range spans {
		if s < sp.end && sp.start < e {
			return true
		}
	}
	return false
}

func digitsOf(s string) []int {
	out := make([]int, 0, len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			out = append(out, int(ch-'0'))
		}
	}
	return out
}

func validCardNumber(s string) bool {
	d := digitsOf(s)
	if len(d) < 13 || len(d) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(d) - 1; i >= 0; i-- {
		v := d[i]
		if double {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
		double = !double
	}
	return sum%10 == 0
}

func validIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n := 0
		for _, ch := range p {
			n = n*10 + int(ch-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

var (
	dateLike   = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}|^\d{1,2}-\d{1,2}-\d{2,4}`)
	yearSerial = regexp.MustCompile(`^\d{4}-\d{4,}$`)
)

func validPhone(s string) bool {
	n := len(digitsOf(s))
	if n < 9 || n > 15 {
		return false
	}
	return !dateLike.MatchString(s) && !yearSerial.MatchString(s)
}

// followsIdentPrefix reports whether the match at start is preceded by two or
// more letters and a dash (CVE-, INC-, KB-).
func followsIdentPrefix(text string, start int) bool {
	if start == 0 || text[start-1] != '-' {
		return false
	}
	n := 0
	for i := start - 2; i >= 0 && isASCIILetter(text[i]); i-- {
		n++
	}
	return n >= 2
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
