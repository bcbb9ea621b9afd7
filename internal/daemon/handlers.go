package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"pastad/internal/ipc"
	"pastad/internal/playback"
	"pastad/internal/snippets"
	"pastad/internal/store"
)

const defaultListLimit = 50

func (d *Daemon) registerHandlers() {
	d.server.Handle(ipc.OpStatus, d.handleStatus)
	d.server.Handle(ipc.OpList, d.handleList)
	d.server.Handle(ipc.OpSearch, d.handleSearch)
	d.server.Handle(ipc.OpGet, d.handleGet)
	d.server.Handle(ipc.OpDelete, d.handleDelete)
	d.server.Handle(ipc.OpClear, d.handleClear)
	d.server.Handle(ipc.OpPaste, d.handlePaste)
	d.server.Handle(ipc.OpAbort, d.handleAbort)
	d.server.Handle(ipc.OpStats, d.handleStats)
	d.server.Handle(ipc.OpPrivacy, d.handlePrivacy)
	d.server.Handle(ipc.OpRotateKey, d.handleRotateKey)
	d.server.Handle(ipc.OpExport, d.handleExport)
	d.server.Handle(ipc.OpImport, d.handleImport)
	d.server.Handle(ipc.OpSetLimit, d.handleSetLimit)
	d.server.Handle(ipc.OpSnippet, d.handleSnippet)
	d.server.Handle(ipc.OpShutdown, d.handleShutdown)
}

type statusPayload struct {
	Version      string `json:"version"`
	InstallID    string `json:"install_id"`
	UptimeSec    int64  `json:"uptime_sec"`
	Monitoring   bool   `json:"monitoring"`
	Replaying    bool   `json:"replaying"`
	PrivacyMode  bool   `json:"privacy_mode"`
	PanelVisible bool   `json:"panel_visible"`
	HistorySize  int    `json:"history_size"`
}

func (d *Daemon) handleStatus(ctx context.Context, req *ipc.Request) ipc.Response {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()

	return ipc.Ok(statusPayload{
		Version:      Version,
		InstallID:    d.store.InstallID().String(),
		UptimeSec:    int64(time.Since(started).Seconds()),
		Monitoring:   d.monitor.IsMonitoring(),
		Replaying:    d.engine.IsActive(),
		PrivacyMode:  d.guard.PrivacyMode(),
		PanelVisible: d.panelVisible.Load(),
		HistorySize:  len(d.monitor.GetHistory(0)),
	})
}

func (d *Daemon) handleList(ctx context.Context, req *ipc.Request) ipc.Response {
	limit := defaultListLimit
	if n, ok := req.IntArg("limit"); ok {
		limit = int(n)
	}
	offset := 0
	if n, ok := req.IntArg("offset"); ok {
		offset = int(n)
	}
	entries, err := d.store.List(limit, offset)
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(entries)
}

func (d *Daemon) handleSearch(ctx context.Context, req *ipc.Request) ipc.Response {
	query := req.StringArg("query")
	if query == "" {
		return ipc.Failf("search requires a query argument")
	}
	limit := defaultListLimit
	if n, ok := req.IntArg("limit"); ok {
		limit = int(n)
	}
	entries, err := d.store.Search(query, limit)
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(entries)
}

func (d *Daemon) handleGet(ctx context.Context, req *ipc.Request) ipc.Response {
	id, ok := req.IntArg("id")
	if !ok {
		return ipc.Failf("get requires an id argument")
	}
	entry, err := d.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ipc.Failf("entry %d not found", id)
		}
		return ipc.Fail(err)
	}
	return ipc.Ok(entry)
}

func (d *Daemon) handleDelete(ctx context.Context, req *ipc.Request) ipc.Response {
	id, ok := req.IntArg("id")
	if !ok {
		return ipc.Failf("delete requires an id argument")
	}
	deleted, err := d.store.Delete(id)
	if err != nil {
		return ipc.Fail(err)
	}
	if !deleted {
		return ipc.Failf("entry %d not found", id)
	}
	return ipc.Ok(map[string]int64{"deleted": id})
}

func (d *Daemon) handleClear(ctx context.Context, req *ipc.Request) ipc.Response {
	if err := d.store.ClearAll(); err != nil {
		return ipc.Fail(err)
	}
	d.monitor.ClearHistory()
	return ipc.Ok(map[string]bool{"cleared": true})
}

// handlePaste replays a stored entry by id, or literal text. The panel
// counter is held for the duration so status reports an active replay
// surface.
func (d *Daemon) handlePaste(ctx context.Context, req *ipc.Request) ipc.Response {
	text := req.StringArg("text")
	if id, ok := req.IntArg("id"); ok {
		entry, err := d.store.Get(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ipc.Failf("entry %d not found", id)
			}
			return ipc.Fail(err)
		}
		text = entry.Content
	}
	if text == "" {
		return ipc.Failf("paste requires an id or text argument")
	}

	method := playback.Method(strings.ToLower(req.StringArg("method")))

	d.panel.Acquire()
	defer d.panel.Release()
	ok := d.engine.Paste(text, method)
	return ipc.Ok(map[string]bool{"success": ok})
}

// handleAbort sets the stop flag, or clears a latched one when the
// clear argument is true. The flag stays set until explicitly cleared
// so a panic stop cannot be raced by a queued paste.
func (d *Daemon) handleAbort(ctx context.Context, req *ipc.Request) ipc.Response {
	if doClear, _ := req.BoolArg("clear"); doClear {
		d.engine.ClearAbort()
		return ipc.Ok(map[string]bool{"cleared": true})
	}
	d.engine.Abort()
	return ipc.Ok(map[string]bool{"aborted": true})
}

func (d *Daemon) handleStats(ctx context.Context, req *ipc.Request) ipc.Response {
	stats, err := d.store.GetStats()
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(stats)
}

type privacyPayload struct {
	PrivacyMode  bool     `json:"privacy_mode"`
	ExcludedApps []string `json:"excluded_apps"`
}

func (d *Daemon) handlePrivacy(ctx context.Context, req *ipc.Request) ipc.Response {
	switch action := req.StringArg("action"); action {
	case "", "get":
		// fall through to the state dump below
	case "on":
		d.guard.SetPrivacyMode(true)
	case "off":
		d.guard.SetPrivacyMode(false)
	case "add-app":
		name := req.StringArg("app")
		if name == "" {
			return ipc.Failf("add-app requires an app argument")
		}
		d.guard.AddExcludedApp(name)
	case "remove-app":
		name := req.StringArg("app")
		if name == "" {
			return ipc.Failf("remove-app requires an app argument")
		}
		d.guard.RemoveExcludedApp(name)
	case "add-pattern":
		expr := req.StringArg("pattern")
		if expr == "" {
			return ipc.Failf("add-pattern requires a pattern argument")
		}
		if err := d.guard.AddExcludedPattern(expr); err != nil {
			return ipc.Fail(err)
		}
	case "export":
		data, err := d.guard.Export()
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(json.RawMessage(data))
	case "import":
		settings := req.StringArg("settings")
		if settings == "" {
			return ipc.Failf("import requires a settings argument")
		}
		if err := d.guard.Import([]byte(settings)); err != nil {
			return ipc.Fail(err)
		}
	default:
		return ipc.Failf("unknown privacy action %q", action)
	}

	return ipc.Ok(privacyPayload{
		PrivacyMode:  d.guard.PrivacyMode(),
		ExcludedApps: d.guard.ExcludedApps(),
	})
}

func (d *Daemon) handleRotateKey(ctx context.Context, req *ipc.Request) ipc.Response {
	if err := d.store.RotateKey(); err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(map[string]bool{"rotated": true})
}

func (d *Daemon) handleExport(ctx context.Context, req *ipc.Request) ipc.Response {
	var buf bytes.Buffer
	if err := d.store.ExportJSON(&buf); err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(json.RawMessage(buf.Bytes()))
}

func (d *Daemon) handleImport(ctx context.Context, req *ipc.Request) ipc.Response {
	payload := req.StringArg("history")
	if payload == "" {
		return ipc.Failf("import requires a history argument")
	}
	n, err := d.store.ImportJSON(strings.NewReader(payload))
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.Ok(map[string]int{"imported": n})
}

func (d *Daemon) handleSetLimit(ctx context.Context, req *ipc.Request) ipc.Response {
	action := req.StringArg("limit_action")
	if action == "" {
		return ipc.Failf("set-limit requires a limit_action argument")
	}
	max, ok := req.IntArg("max")
	if !ok || max < 1 {
		return ipc.Failf("set-limit requires a positive max argument")
	}
	windowSec, ok := req.IntArg("window_sec")
	if !ok || windowSec < 1 {
		return ipc.Failf("set-limit requires a positive window_sec argument")
	}
	d.limiter.SetLimit(action, int(max), time.Duration(windowSec)*time.Second)
	return ipc.Ok(map[string]string{"action": action})
}

// snippetTags splits a comma-separated tag argument, dropping empties.
func snippetTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// handleSnippet multiplexes the snippet library operations behind one
// op, the same way handlePrivacy does for the guard.
func (d *Daemon) handleSnippet(ctx context.Context, req *ipc.Request) ipc.Response {
	switch action := req.StringArg("action"); action {
	case "", "list":
		if category, ok := req.LookupStringArg("category"); ok {
			return ipc.Ok(d.snippets.ByCategory(category))
		}
		return ipc.Ok(d.snippets.All())
	case "add":
		name := req.StringArg("name")
		content := req.StringArg("content")
		if name == "" || content == "" {
			return ipc.Failf("add requires name and content arguments")
		}
		s, err := d.snippets.Add(name, content, req.StringArg("category"), req.StringArg("hotkey"), snippetTags(req.StringArg("tags")))
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(s)
	case "get":
		s, err := d.snippets.Get(req.StringArg("sid"))
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(s)
	case "update":
		var upd snippets.Update
		if v, ok := req.LookupStringArg("name"); ok {
			upd.Name = &v
		}
		if v, ok := req.LookupStringArg("content"); ok {
			upd.Content = &v
		}
		if v, ok := req.LookupStringArg("category"); ok {
			upd.Category = &v
		}
		if v, ok := req.LookupStringArg("hotkey"); ok {
			upd.Hotkey = &v
		}
		if v, ok := req.LookupStringArg("tags"); ok {
			upd.Tags = snippetTags(v)
		}
		s, err := d.snippets.Update(req.StringArg("sid"), upd)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(s)
	case "delete":
		if err := d.snippets.Delete(req.StringArg("sid")); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(map[string]bool{"deleted": true})
	case "search":
		query := req.StringArg("query")
		if query == "" {
			return ipc.Failf("search requires a query argument")
		}
		return ipc.Ok(d.snippets.Search(query))
	case "recent":
		limit := 0
		if n, ok := req.IntArg("limit"); ok {
			limit = int(n)
		}
		return ipc.Ok(d.snippets.Recent(limit))
	case "categories":
		return ipc.Ok(d.snippets.Categories())
	case "paste":
		s, err := d.snippets.Use(req.StringArg("sid"))
		if err != nil {
			return ipc.Fail(err)
		}
		method := playback.Method(strings.ToLower(req.StringArg("method")))
		d.panel.Acquire()
		defer d.panel.Release()
		ok := d.engine.Paste(s.Content, method)
		return ipc.Ok(map[string]bool{"success": ok})
	case "export":
		data, err := d.snippets.Export()
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(json.RawMessage(data))
	case "import":
		doc := req.StringArg("library")
		if doc == "" {
			return ipc.Failf("import requires a library argument")
		}
		merge, _ := req.BoolArg("merge")
		n, err := d.snippets.Import([]byte(doc), merge)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(map[string]int{"imported": n})
	default:
		return ipc.Failf("unknown snippet action %q", action)
	}
}

func (d *Daemon) handleShutdown(ctx context.Context, req *ipc.Request) ipc.Response {
	d.requestShutdown()
	return ipc.Ok(map[string]bool{"shutting_down": true})
}
