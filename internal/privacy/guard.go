// Package privacy decides whether clipboard content may be captured.
//
// The guard composes three rules, checked in order: a global privacy
// mode that blocks everything, an excluded-application list matched
// case-insensitively against the active window title, and a set of
// content regexes. Settings can be exported and re-imported as a flat
// JSON document; imports are validated against a schema and every
// pattern is recompiled before any field is committed.
package privacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidPattern is returned when an exclusion pattern fails to compile.
var ErrInvalidPattern = errors.New("privacy: invalid pattern")

// ErrInvalidSettings is returned when an imported settings document is
// malformed or fails schema validation.
var ErrInvalidSettings = errors.New("privacy: invalid settings document")

// DefaultExcludedApps are password managers excluded out of the box.
var DefaultExcludedApps = []string{
	"1password", "keepass", "bitwarden", "lastpass", "dashlane", "password manager",
}

// settingsSchema validates exported/imported settings documents.
const settingsSchema = `{
	"type": "object",
	"properties": {
		"privacy_mode": {"type": "boolean"},
		"excluded_apps": {"type": "array", "items": {"type": "string"}},
		"excluded_patterns": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["privacy_mode", "excluded_apps", "excluded_patterns"],
	"additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("settings.json", settingsSchema)

// settingsDoc is the flat export/import representation.
type settingsDoc struct {
	PrivacyMode      bool     `json:"privacy_mode"`
	ExcludedApps     []string `json:"excluded_apps"`
	ExcludedPatterns []string `json:"excluded_patterns"`
}

// Guard holds the capture-exclusion state.
type Guard struct {
	mu               sync.RWMutex
	privacyMode      bool
	excludedApps     map[string]struct{}
	excludedPatterns []*regexp.Regexp
	patternSources   []string
}

// NewGuard creates a guard with the given default excluded applications.
// Pass nil for no defaults.
func NewGuard(defaultApps []string) *Guard {
	g := &Guard{excludedApps: make(map[string]struct{})}
	for _, app := range defaultApps {
		g.excludedApps[strings.ToLower(app)] = struct{}{}
	}
	return g
}

// ShouldCapture reports whether content seen while windowTitle was
// focused may be captured. Rules short-circuit in order: privacy mode,
// excluded application, excluded content pattern.
func (g *Guard) ShouldCapture(content, windowTitle string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.privacyMode {
		return false
	}

	title := strings.ToLower(windowTitle)
	for app := range g.excludedApps {
		if strings.Contains(title, app) {
			return false
		}
	}

	for _, re := range g.excludedPatterns {
		if re.MatchString(content) {
			return false
		}
	}
	return true
}

// SetPrivacyMode toggles the global capture override.
func (g *Guard) SetPrivacyMode(enabled bool) {
	g.mu.Lock()
	g.privacyMode = enabled
	g.mu.Unlock()
}

// PrivacyMode reports whether privacy mode is on.
func (g *Guard) PrivacyMode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.privacyMode
}

// AddExcludedApp adds a case-insensitive application name substring.
func (g *Guard) AddExcludedApp(name string) {
	g.mu.Lock()
	g.excludedApps[strings.ToLower(name)] = struct{}{}
	g.mu.Unlock()
}

// RemoveExcludedApp removes an application from the exclusion list.
func (g *Guard) RemoveExcludedApp(name string) {
	g.mu.Lock()
	delete(g.excludedApps, strings.ToLower(name))
	g.mu.Unlock()
}

// ExcludedApps returns the sorted exclusion list.
func (g *Guard) ExcludedApps() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	apps := make([]string, 0, len(g.excludedApps))
	for app := range g.excludedApps {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// AddExcludedPattern registers a content exclusion regex. The pattern is
// compiled before any state changes; a bad pattern is rejected outright.
func (g *Guard) AddExcludedPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}

	g.mu.Lock()
	g.excludedPatterns = append(g.excludedPatterns, re)
	g.patternSources = append(g.patternSources, expr)
	g.mu.Unlock()
	return nil
}

// ClearExclusions removes all excluded apps and patterns.
func (g *Guard) ClearExclusions() {
	g.mu.Lock()
	g.excludedApps = make(map[string]struct{})
	g.excludedPatterns = nil
	g.patternSources = nil
	g.mu.Unlock()
}

// Export serializes the guard's settings as a flat JSON document.
func (g *Guard) Export() ([]byte, error) {
	g.mu.RLock()
	doc := settingsDoc{
		PrivacyMode:      g.privacyMode,
		ExcludedApps:     make([]string, 0, len(g.excludedApps)),
		ExcludedPatterns: append([]string(nil), g.patternSources...),
	}
	for app := range g.excludedApps {
		doc.ExcludedApps = append(doc.ExcludedApps, app)
	}
	g.mu.RUnlock()

	sort.Strings(doc.ExcludedApps)
	return json.MarshalIndent(doc, "", "  ")
}

// Import replaces the guard's settings from an exported document.
// The document is schema-validated and every pattern compiled before
// anything is committed; a failure leaves the guard untouched.
func (g *Guard) Import(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	var doc settingsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	compiled := make([]*regexp.Regexp, 0, len(doc.ExcludedPatterns))
	for _, expr := range doc.ExcludedPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
		}
		compiled = append(compiled, re)
	}

	apps := make(map[string]struct{}, len(doc.ExcludedApps))
	for _, app := range doc.ExcludedApps {
		apps[strings.ToLower(app)] = struct{}{}
	}

	g.mu.Lock()
	g.privacyMode = doc.PrivacyMode
	g.excludedApps = apps
	g.excludedPatterns = compiled
	g.patternSources = append([]string(nil), doc.ExcludedPatterns...)
	g.mu.Unlock()
	return nil
}
