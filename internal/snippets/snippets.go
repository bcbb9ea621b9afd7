// Package snippets manages a named library of reusable text blocks.
//
// Snippets carry a category, free-form tags, an optional paste hotkey
// and a use counter. The library lives in a single JSON document that
// is rewritten atomically after every mutation, so a crash never leaves
// a half-written file behind.
package snippets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested snippet does not exist.
var ErrNotFound = errors.New("snippets: snippet not found")

// ErrInvalid is returned when a snippet fails validation.
var ErrInvalid = errors.New("snippets: invalid snippet")

// ErrHotkeyTaken is returned when a hotkey is already bound to another
// snippet.
var ErrHotkeyTaken = errors.New("snippets: hotkey already assigned")

// fileVersion is bumped on incompatible document changes.
const fileVersion = 1

// DefaultCategory is assigned when no category is given.
const DefaultCategory = "general"

// hotkeyPattern accepts modifier chains ending in a key, such as
// "ctrl+shift+v".
var hotkeyPattern = regexp.MustCompile(`(?i)^(ctrl|cmd|alt|shift)(\+(ctrl|cmd|alt|shift))*\+\w+$`)

// Snippet is one stored text block.
type Snippet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Hotkey    string    `json:"hotkey,omitempty"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UseCount  int       `json:"use_count"`
}

func (s *Snippet) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalid)
	}
	if s.Hotkey != "" && !hotkeyPattern.MatchString(s.Hotkey) {
		return fmt.Errorf("%w: malformed hotkey %q", ErrInvalid, s.Hotkey)
	}
	return nil
}

// Update describes a partial modification. Nil fields keep their
// current value; a non-nil Tags slice replaces the tag list.
type Update struct {
	Name     *string
	Content  *string
	Category *string
	Hotkey   *string
	Tags     []string
}

// libraryDoc is the on-disk representation.
type libraryDoc struct {
	Version    int       `json:"version"`
	ExportedAt string    `json:"exported_at,omitempty"`
	Snippets   []Snippet `json:"snippets"`
}

// Manager owns the snippet library and its file.
type Manager struct {
	mu       sync.Mutex
	path     string
	logger   *slog.Logger
	snippets map[string]*Snippet
	now      func() time.Time
}

// NewManager loads the library at path, which need not exist yet. A
// document that fails to parse is logged and treated as empty rather
// than blocking startup.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if path == "" {
		return nil, errors.New("snippets: path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:     path,
		logger:   logger,
		snippets: make(map[string]*Snippet),
		now:      time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snippet library: %w", err)
	}
	var doc libraryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		m.logger.Warn("snippet library unreadable, starting empty", "path", path, "error", err)
		return m, nil
	}
	for i := range doc.Snippets {
		s := doc.Snippets[i]
		if s.ID == "" {
			continue
		}
		m.snippets[s.ID] = &s
	}
	return m, nil
}

// Add stores a new snippet and returns it. An empty category becomes
// DefaultCategory; a non-empty hotkey must be unique across the
// library.
func (m *Manager) Add(name, content, category, hotkey string, tags []string) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if category == "" {
		category = DefaultCategory
	}
	if tags == nil {
		tags = []string{}
	}
	now := m.now().UTC()
	s := &Snippet{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Category:  category,
		Hotkey:    hotkey,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := m.checkHotkey(hotkey, ""); err != nil {
		return nil, err
	}
	m.snippets[s.ID] = s
	if err := m.save(); err != nil {
		delete(m.snippets, s.ID)
		return nil, err
	}
	return s.clone(), nil
}

// Get returns the snippet with the given id.
func (m *Manager) Get(id string) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// Update applies a partial modification and bumps the updated
// timestamp. The modified snippet is validated as a whole before
// anything is committed.
func (m *Manager) Update(id string, upd Update) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snippets[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := *s
	if upd.Name != nil {
		next.Name = *upd.Name
	}
	if upd.Content != nil {
		next.Content = *upd.Content
	}
	if upd.Category != nil {
		next.Category = *upd.Category
		if next.Category == "" {
			next.Category = DefaultCategory
		}
	}
	if upd.Hotkey != nil {
		next.Hotkey = *upd.Hotkey
	}
	if upd.Tags != nil {
		next.Tags = append([]string(nil), upd.Tags...)
	}
	if err := next.validate(); err != nil {
		return nil, err
	}
	if err := m.checkHotkey(next.Hotkey, id); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now().UTC()
	m.snippets[id] = &next
	if err := m.save(); err != nil {
		m.snippets[id] = s
		return nil, err
	}
	return next.clone(), nil
}

// Delete removes the snippet with the given id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.snippets, id)
	if err := m.save(); err != nil {
		m.snippets[id] = s
		return err
	}
	return nil
}

// All returns every snippet, oldest first.
func (m *Manager) All() []Snippet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(*Snippet) bool { return true })
}

// ByCategory returns the snippets in the given category, oldest first.
func (m *Manager) ByCategory(category string) []Snippet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(s *Snippet) bool { return s.Category == category })
}

// Search returns snippets whose name, content or tags contain the
// query, case-insensitively, oldest first.
func (m *Manager) Search(query string) []Snippet {
	q := strings.ToLower(query)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(s *Snippet) bool {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Content), q) {
			return true
		}
		for _, tag := range s.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	})
}

// ByHotkey returns the snippet bound to the given hotkey, if any.
func (m *Manager) ByHotkey(hotkey string) (*Snippet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snippets {
		if s.Hotkey != "" && strings.EqualFold(s.Hotkey, hotkey) {
			return s.clone(), true
		}
	}
	return nil, false
}

// Recent returns up to limit snippets ordered by use count, most used
// first. A non-positive limit defaults to 10.
func (m *Manager) Recent(limit int) []Snippet {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.collect(func(*Snippet) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].UseCount > out[j].UseCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Use increments the snippet's use counter and returns the updated
// snippet.
func (m *Manager) Use(id string) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.UseCount++
	if err := m.save(); err != nil {
		s.UseCount--
		return nil, err
	}
	return s.clone(), nil
}

// Categories returns the sorted set of categories in use.
func (m *Manager) Categories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, s := range m.snippets {
		seen[s.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// BulkDelete removes the listed snippets and returns how many existed.
func (m *Manager) BulkDelete(ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]*Snippet)
	for _, id := range ids {
		if s, ok := m.snippets[id]; ok {
			removed[id] = s
			delete(m.snippets, id)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := m.save(); err != nil {
		for id, s := range removed {
			m.snippets[id] = s
		}
		return 0, err
	}
	return len(removed), nil
}

// BulkSetCategory moves the listed snippets into category and returns
// how many existed.
func (m *Manager) BulkSetCategory(ids []string, category string) (int, error) {
	if category == "" {
		category = DefaultCategory
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved int
	now := m.now().UTC()
	for _, id := range ids {
		if s, ok := m.snippets[id]; ok {
			s.Category = category
			s.UpdatedAt = now
			moved++
		}
	}
	if moved == 0 {
		return 0, nil
	}
	if err := m.save(); err != nil {
		return 0, err
	}
	return moved, nil
}

// templateVar matches {name} placeholders in template content.
var templateVar = regexp.MustCompile(`\{(\w+)\}`)

// AddTemplate stores a snippet in the "templates" category, tagged so
// FromTemplate can find it. Placeholders use {name} syntax.
func (m *Manager) AddTemplate(name, content string, tags []string) (*Snippet, error) {
	tags = append(append([]string(nil), tags...), "template")
	return m.Add(name, content, "templates", "", tags)
}

// FromTemplate instantiates a template: each {name} placeholder is
// replaced with its value from vars, and the result is stored as a new
// snippet. Placeholders without a value are left verbatim.
func (m *Manager) FromTemplate(templateID, name string, vars map[string]string) (*Snippet, error) {
	tpl, err := m.Get(templateID)
	if err != nil {
		return nil, err
	}
	content := templateVar.ReplaceAllStringFunc(tpl.Content, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
	return m.Add(name, content, DefaultCategory, "", nil)
}

// Export serializes the whole library with an export timestamp.
func (m *Manager) Export() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := libraryDoc{
		Version:    fileVersion,
		ExportedAt: m.now().UTC().Format(time.RFC3339),
		Snippets:   m.collect(func(*Snippet) bool { return true }),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import loads snippets from an exported document and returns how many
// the document carried. With merge set, snippets whose id already
// exists are skipped; without it the library is replaced wholesale.
func (m *Manager) Import(data []byte, merge bool) (int, error) {
	var doc libraryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("snippets: parse import: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.snippets
	next := make(map[string]*Snippet)
	if merge {
		for id, s := range prev {
			next[id] = s
		}
	}
	var count int
	for i := range doc.Snippets {
		s := doc.Snippets[i]
		if s.ID == "" {
			continue
		}
		count++
		if merge {
			if _, exists := next[s.ID]; exists {
				continue
			}
		}
		next[s.ID] = &s
	}
	m.snippets = next
	if err := m.save(); err != nil {
		m.snippets = prev
		return 0, err
	}
	return count, nil
}

// checkHotkey rejects a hotkey already bound to a snippet other than
// selfID. Callers hold m.mu.
func (m *Manager) checkHotkey(hotkey, selfID string) error {
	if hotkey == "" {
		return nil
	}
	for _, other := range m.snippets {
		if other.ID == selfID {
			continue
		}
		if other.Hotkey != "" && strings.EqualFold(other.Hotkey, hotkey) {
			return fmt.Errorf("%w: %q is bound to %q", ErrHotkeyTaken, hotkey, other.Name)
		}
	}
	return nil
}

// collect returns clones of every snippet the filter accepts, ordered
// oldest first. Callers hold m.mu.
func (m *Manager) collect(keep func(*Snippet) bool) []Snippet {
	out := make([]Snippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		if keep(s) {
			out = append(out, *s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Snippet) clone() *Snippet {
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	return &c
}

// save rewrites the library file atomically. Callers hold m.mu.
func (m *Manager) save() error {
	doc := libraryDoc{
		Version:  fileVersion,
		Snippets: m.collect(func(*Snippet) bool { return true }),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snippet library: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create snippet directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snippets-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snippet library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snippet library: %w", err)
	}
	return nil
}
