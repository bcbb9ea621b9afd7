package snippets

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "snippets.json"), testLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestAddAssignsDefaults(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Add("sig", "Best,\nAlice", "", "", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if s.ID == "" {
		t.Error("expected a generated id")
	}
	if s.Category != DefaultCategory {
		t.Errorf("category = %q, want %q", s.Category, DefaultCategory)
	}
	if s.Tags == nil {
		t.Error("tags should default to an empty slice")
	}
	if s.CreatedAt.IsZero() || !s.CreatedAt.Equal(s.UpdatedAt) {
		t.Errorf("timestamps not initialized: created %v updated %v", s.CreatedAt, s.UpdatedAt)
	}
	if s.UseCount != 0 {
		t.Errorf("use count = %d, want 0", s.UseCount)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	m := newTestManager(t)

	cases := []struct {
		desc, name, content, hotkey string
	}{
		{"empty name", "  ", "body", ""},
		{"empty content", "name", "  ", ""},
		{"hotkey without modifier", "name", "body", "v"},
		{"hotkey with bad modifier", "name", "body", "super+v"},
	}
	for _, tc := range cases {
		if _, err := m.Add(tc.name, tc.content, "", tc.hotkey, nil); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: err = %v, want ErrInvalid", tc.desc, err)
		}
	}

	if _, err := m.Add("ok", "body", "", "Ctrl+Shift+V", nil); err != nil {
		t.Errorf("modifier chain hotkey rejected: %v", err)
	}
}

func TestHotkeyConflict(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Add("first", "one", "", "ctrl+1", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Add("second", "two", "", "CTRL+1", nil); !errors.Is(err, ErrHotkeyTaken) {
		t.Fatalf("err = %v, want ErrHotkeyTaken", err)
	}

	// Re-binding a snippet to its own hotkey is not a conflict.
	hk := "ctrl+1"
	if _, err := m.Update(first.ID, Update{Hotkey: &hk}); err != nil {
		t.Errorf("self hotkey update failed: %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	m := newTestManager(t)
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { tick = tick.Add(time.Minute); return tick }

	s, err := m.Add("greeting", "hello", "mail", "", []string{"work"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	content := "hello there"
	got, err := m.Update(s.ID, Update{Content: &content})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Content != content {
		t.Errorf("content = %q, want %q", got.Content, content)
	}
	if got.Name != "greeting" || got.Category != "mail" || len(got.Tags) != 1 {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("updated_at not bumped: created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}

	bad := " "
	if _, err := m.Update(s.ID, Update{Name: &bad}); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
	if _, err := m.Update("no-such-id", Update{Content: &content}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Add("gone", "soon", "", "", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := m.Delete(s.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := m.Delete(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSearchMatchesNameContentAndTags(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Add("Standup notes", "daily sync", "", "", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Add("address", "42 Elm Street", "", "", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Add("sig", "Best, Alice", "", "", []string{"email"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	for query, wantName := range map[string]string{
		"STANDUP": "Standup notes",
		"elm":     "address",
		"EMAIL":   "sig",
	} {
		got := m.Search(query)
		if len(got) != 1 || got[0].Name != wantName {
			t.Errorf("Search(%q) = %v, want one hit %q", query, got, wantName)
		}
	}
	if got := m.Search("nothing-matches"); len(got) != 0 {
		t.Errorf("Search returned %d results, want 0", len(got))
	}
}

func TestRecentOrdersByUseCount(t *testing.T) {
	m := newTestManager(t)

	rare, err := m.Add("rare", "a", "", "", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	frequent, err := m.Add("frequent", "b", "", "", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Use(frequent.ID); err != nil {
			t.Fatalf("Use failed: %v", err)
		}
	}
	if _, err := m.Use(rare.ID); err != nil {
		t.Fatalf("Use failed: %v", err)
	}

	got := m.Recent(0)
	if len(got) != 2 || got[0].Name != "frequent" || got[0].UseCount != 3 {
		t.Errorf("Recent = %+v, want frequent first with 3 uses", got)
	}
	if got := m.Recent(1); len(got) != 1 {
		t.Errorf("Recent(1) returned %d snippets, want 1", len(got))
	}
}

func TestCategoriesSortedUnique(t *testing.T) {
	m := newTestManager(t)

	for _, c := range []string{"work", "general", "work"} {
		if _, err := m.Add("n"+c, "body", c, "", nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	got := m.Categories()
	if len(got) != 2 || got[0] != "general" || got[1] != "work" {
		t.Errorf("Categories = %v, want [general work]", got)
	}
}

func TestByCategoryAndByHotkey(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Add("bound", "body", "work", "ctrl+shift+s", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Add("loose", "body", "", "", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if got := m.ByCategory("work"); len(got) != 1 || got[0].ID != s.ID {
		t.Errorf("ByCategory = %+v, want just %q", got, s.Name)
	}
	if got, ok := m.ByHotkey("CTRL+SHIFT+S"); !ok || got.ID != s.ID {
		t.Errorf("ByHotkey = %+v ok=%v, want %q", got, ok, s.Name)
	}
	if _, ok := m.ByHotkey("ctrl+x"); ok {
		t.Error("ByHotkey matched an unbound hotkey")
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	s, err := m.Add("kept", "across restarts", "work", "ctrl+k", []string{"a"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Use(s.ID); err != nil {
		t.Fatalf("Use failed: %v", err)
	}

	m2, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got, err := m2.Get(s.ID)
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if got.Name != "kept" || got.Hotkey != "ctrl+k" || got.UseCount != 1 || len(got.Tags) != 1 {
		t.Errorf("reloaded snippet = %+v", got)
	}
}

func TestCorruptLibraryStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if got := m.All(); len(got) != 0 {
		t.Errorf("expected empty library, got %d snippets", len(got))
	}
	// The library still works after the bad document is discarded.
	if _, err := m.Add("fresh", "start", "", "", nil); err != nil {
		t.Errorf("Add after corrupt load failed: %v", err)
	}
}

func TestImportMergeAndReplace(t *testing.T) {
	src := newTestManager(t)
	if _, err := src.Add("shared", "from export", "", "", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	doc, err := src.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newTestManager(t)
	local, err := dst.Add("local", "stays on merge", "", "", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	n, err := dst.Import(doc, true)
	if err != nil {
		t.Fatalf("merge import failed: %v", err)
	}
	if n != 1 {
		t.Errorf("imported = %d, want 1", n)
	}
	if got := dst.All(); len(got) != 2 {
		t.Errorf("after merge library has %d snippets, want 2", len(got))
	}

	// Merging the same document again counts it but changes nothing.
	if n, err := dst.Import(doc, true); err != nil || n != 1 {
		t.Errorf("repeat merge = (%d, %v), want (1, nil)", n, err)
	}
	if got := dst.All(); len(got) != 2 {
		t.Errorf("repeat merge grew the library to %d", len(got))
	}

	if _, err := dst.Import(doc, false); err != nil {
		t.Fatalf("replace import failed: %v", err)
	}
	if _, err := dst.Get(local.ID); !errors.Is(err, ErrNotFound) {
		t.Error("replace import should drop snippets missing from the document")
	}

	if _, err := dst.Import([]byte("not json"), true); err == nil {
		t.Error("malformed document should fail")
	}
}

func TestTemplates(t *testing.T) {
	m := newTestManager(t)

	tpl, err := m.AddTemplate("mail", "Hi {name}, see you at {time}. {name} confirmed?", nil)
	if err != nil {
		t.Fatalf("AddTemplate failed: %v", err)
	}
	if tpl.Category != "templates" {
		t.Errorf("template category = %q", tpl.Category)
	}
	if len(tpl.Tags) != 1 || tpl.Tags[0] != "template" {
		t.Errorf("template tags = %v", tpl.Tags)
	}

	s, err := m.FromTemplate(tpl.ID, "mail-bob", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("FromTemplate failed: %v", err)
	}
	want := "Hi Bob, see you at {time}. Bob confirmed?"
	if s.Content != want {
		t.Errorf("content = %q, want %q", s.Content, want)
	}
	if s.Category != DefaultCategory {
		t.Errorf("instantiated category = %q, want %q", s.Category, DefaultCategory)
	}

	if _, err := m.FromTemplate("no-such-template", "x", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBulkOperations(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.Add("a", "1", "", "", nil)
	b, _ := m.Add("b", "2", "", "", nil)
	c, _ := m.Add("c", "3", "", "", nil)

	n, err := m.BulkSetCategory([]string{a.ID, b.ID, "missing"}, "archive")
	if err != nil {
		t.Fatalf("BulkSetCategory failed: %v", err)
	}
	if n != 2 {
		t.Errorf("moved = %d, want 2", n)
	}
	if got := m.ByCategory("archive"); len(got) != 2 {
		t.Errorf("archive has %d snippets, want 2", len(got))
	}

	n, err = m.BulkDelete([]string{a.ID, c.ID, "missing"})
	if err != nil {
		t.Fatalf("BulkDelete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if got := m.All(); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("remaining = %+v, want just %q", got, b.Name)
	}
}
