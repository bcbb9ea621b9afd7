// Package sensitive detects credential-like content in clipboard text.
//
// The detector holds a table of named regex patterns covering passwords,
// API keys, bearer tokens, private keys, vendor credentials, card numbers
// and database URLs with embedded credentials. All categories are
// evaluated on every check; matches are unioned, never first-match-wins.
package sensitive

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidPattern is returned when a custom pattern fails to compile.
var ErrInvalidPattern = errors.New("sensitive: invalid pattern")

// DefaultMarker is the replacement string used by Redact when callers
// pass an empty marker.
const DefaultMarker = "[REDACTED]"

// builtinPatterns is the default category table. Category names are
// stable identifiers reported by Categories.
var builtinPatterns = map[string]string{
	// Card numbers (grouped and ungrouped digit runs)
	"credit_card":          `\b(?:\d{4}[\s-]?){3}\d{4}\b`,
	"credit_card_no_space": `\b\d{16}\b`,

	// Social security numbers
	"ssn": `\b\d{3}-\d{2}-\d{4}\b|\b\d{3} \d{2} \d{4}\b`,

	// Password and secret assignments
	"password": `(?i)(password|passwd|pwd)[\s:=]+\S+`,
	"api_key":  `(?i)(api[-_]?key|apikey)[\s:=]+[\w-]+`,
	"secret":   `(?i)(secret|token)[\s:=]+\S+`,

	// Tokens and auth headers
	"bearer_token": `(?i)Bearer\s+[\w.-]+`,
	"auth_header":  `(?i)(Authorization|X-API-Key)[\s:]+[\w.-]+`,
	"github_token": `github_pat_[\w]+`,
	"gitlab_token": `glpat-[\w-]+`,
	"slack_token":  `xox[baprs]-[\w-]+`,

	// Cloud vendor credentials
	"aws_key":    `AKIA[0-9A-Z]{16}`,
	"aws_secret": `(?i)aws_secret_access_key[\s=]+[\w/+=]+`,

	// Private key material
	"private_key_rsa":     `-----BEGIN\s*(?:RSA\s*)?PRIVATE\s*KEY-----`,
	"private_key_general": `-----BEGIN\s*PRIVATE\s*KEY-----`,
	"private_key_ec":      `-----BEGIN\s*EC\s*PRIVATE\s*KEY-----`,
	"ssh_key":             `ssh-rsa\s+[\w+/=]+`,

	// Connection strings with embedded credentials
	"db_url_postgres": `postgres(?:ql)?://[^:]+:[^@]+@[^/\s]+(?:/\w+)?`,
	"db_url_mysql":    `mysql://[^:]+:[^@]+@[^/\s]+(?:/\w+)?`,
}

// Detector classifies text against the sensitivity pattern table.
// Safe for concurrent use; AddPattern may run while checks are in flight.
type Detector struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewDetector returns a detector loaded with the built-in categories.
func NewDetector() *Detector {
	d := &Detector{patterns: make(map[string]*regexp.Regexp, len(builtinPatterns))}
	for name, expr := range builtinPatterns {
		d.patterns[name] = regexp.MustCompile(expr)
	}
	return d
}

// IsSensitive reports whether text matches any category.
func (d *Detector) IsSensitive(text string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Categories returns the sorted set of category names matching text.
// Every category is evaluated; results are the union of all matches.
func (d *Detector) Categories(text string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []string
	for name, re := range d.patterns {
		if re.MatchString(text) {
			matched = append(matched, name)
		}
	}
	sort.Strings(matched)
	return matched
}

// AddPattern registers a custom category. The expression is compiled
// before any state changes; a bad expression leaves the table untouched.
func (d *Detector) AddPattern(name, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}

	d.mu.Lock()
	d.patterns[name] = re
	d.mu.Unlock()
	return nil
}

// PatternNames returns the sorted names of all registered categories.
func (d *Detector) PatternNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.patterns))
	for name := range d.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// span is a half-open byte range [start, end) within the input text.
type span struct {
	start, end int
}

// Redact replaces every matched span across all categories with marker.
// Overlapping or adjacent spans are merged first so a region matched by
// several categories yields a single marker.
func (d *Detector) Redact(text, marker string) string {
	if marker == "" {
		marker = DefaultMarker
	}

	d.mu.RLock()
	var spans []span
	for _, re := range d.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	d.mu.RUnlock()

	if len(spans) == 0 {
		return text
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	// Merge overlapping spans so nested matches produce one marker.
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, s := range merged {
		b.WriteString(text[prev:s.start])
		b.WriteString(marker)
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
