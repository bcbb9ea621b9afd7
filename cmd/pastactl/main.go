// pastactl is the control CLI for pastad.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"pastad/internal/config"
	"pastad/internal/ipc"
)

var (
	socketPath = flag.String("socket", "", "path to daemon control socket")
	limit      = flag.Int("limit", 50, "maximum entries for list and search")
	offset     = flag.Int("offset", 0, "entries to skip when listing")
	method     = flag.String("method", "", "paste method: auto, clipboard or typing")
	asJSON     = flag.Bool("json", false, "print raw JSON responses")
	category   = flag.String("category", "", "snippet category for add and list")
	hotkey     = flag.String("hotkey", "", "snippet hotkey for add and update")
	tags       = flag.String("tags", "", "comma-separated snippet tags for add and update")
	merge      = flag.Bool("merge", false, "merge instead of replace on snippet import")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	if err := dispatch(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pastactl:", err)
		os.Exit(1)
	}
}

func dispatch(cmd string, args []string) error {
	switch cmd {
	case "status":
		return cmdStatus()
	case "list":
		return cmdList()
	case "search":
		if len(args) < 1 {
			return errors.New("usage: pastactl search <query>")
		}
		return cmdSearch(args[0])
	case "get":
		return withID(args, "get", cmdGet)
	case "delete":
		return withID(args, "delete", cmdDelete)
	case "clear":
		return cmdClear()
	case "paste":
		if len(args) < 1 {
			return errors.New("usage: pastactl paste <id|text>")
		}
		return cmdPaste(args[0])
	case "abort":
		return cmdAbort(false)
	case "resume":
		return cmdAbort(true)
	case "stats":
		return cmdStats()
	case "privacy":
		return cmdPrivacy(args)
	case "rotate-key":
		return cmdRotateKey()
	case "export":
		return cmdExport(args)
	case "import":
		if len(args) < 1 {
			return errors.New("usage: pastactl import <file>")
		}
		return cmdImport(args[0])
	case "snippet":
		return cmdSnippet(args)
	case "set-limit":
		if len(args) < 3 {
			return errors.New("usage: pastactl set-limit <action> <max> <window-sec>")
		}
		return cmdSetLimit(args[0], args[1], args[2])
	case "shutdown":
		return cmdShutdown()
	case "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `pastactl - control utility for pastad

Usage: pastactl [options] <command> [args]

Commands:
  status                          Show daemon status
  list                            List recent history entries
  search <query>                  Search plain-text history
  get <id>                        Show one entry
  delete <id>                     Delete one entry
  clear                           Delete all history
  paste <id|text>                 Replay an entry or literal text
  abort                           Stop an in-flight replay
  resume                          Clear a latched abort
  stats                           Show storage statistics
  privacy [action] [arg]          Manage capture exclusions
  rotate-key                      Re-encrypt history under a fresh key
  export [file]                   Export decrypted history as JSON
  import <file>                   Import a history export
  set-limit <action> <max> <sec>  Adjust a rate-limit budget
  snippet [action] [args]         Manage the snippet library
  shutdown                        Ask the daemon to exit

Snippet actions:
  list                            List snippets (narrow with -category)
  add <name> <content>            Store a snippet (-category -hotkey -tags)
  get <id>                        Print a snippet's content
  update <id>                     Change -category, -hotkey or -tags
  delete <id>                     Remove a snippet
  search <query>                  Search names, content and tags
  recent                          List snippets by use count
  categories                      List categories in use
  paste <id>                      Replay a snippet
  export [file]                   Export the library as JSON
  import <file>                   Import a library (-merge keeps local)

Privacy actions:
  on | off                        Toggle privacy mode
  add-app <name>                  Exclude a window title substring
  remove-app <name>               Remove an app exclusion
  add-pattern <regex>             Exclude matching content
  export                          Print privacy settings as JSON
  import <file>                   Load privacy settings from JSON

Options:
  -socket <path>  Control socket (default: platform runtime dir)
  -limit <n>      Max entries for list and search (default 50)
  -offset <n>     Entries to skip when listing
  -method <m>     Paste method: auto, clipboard or typing
  -json           Print raw JSON responses
  -category <c>   Snippet category filter or assignment
  -hotkey <k>     Snippet hotkey, e.g. ctrl+shift+v
  -tags <t,..>    Comma-separated snippet tags
  -merge          Merge on snippet import instead of replacing`)
}

func client() *ipc.Client {
	path := *socketPath
	if path == "" {
		path = config.DefaultSocketPath()
	}
	return ipc.NewClient(path)
}

// call sends one request and returns the payload, translating a
// daemon-side failure into an error.
func call(op string, args map[string]any) (json.RawMessage, error) {
	resp, err := client().Call(ipc.Request{Op: op, Args: args})
	if err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, errors.New("daemon is not running (start pastad first)")
		}
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}

func printJSON(data json.RawMessage) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func withID(args []string, name string, fn func(int64) error) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pastactl %s <id>", name)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	return fn(id)
}

func cmdStatus() error {
	data, err := call(ipc.OpStatus, nil)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(data)
	}

	var status struct {
		Version      string `json:"version"`
		InstallID    string `json:"install_id"`
		UptimeSec    int64  `json:"uptime_sec"`
		Monitoring   bool   `json:"monitoring"`
		Replaying    bool   `json:"replaying"`
		PrivacyMode  bool   `json:"privacy_mode"`
		PanelVisible bool   `json:"panel_visible"`
		HistorySize  int    `json:"history_size"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return err
	}
	fmt.Printf("pastad %s\n", status.Version)
	fmt.Printf("  install id:   %s\n", status.InstallID)
	fmt.Printf("  uptime:       %s\n", (time.Duration(status.UptimeSec) * time.Second).String())
	fmt.Printf("  monitoring:   %v\n", status.Monitoring)
	fmt.Printf("  replaying:    %v\n", status.Replaying)
	fmt.Printf("  privacy mode: %v\n", status.PrivacyMode)
	fmt.Printf("  ring size:    %d\n", status.HistorySize)
	return nil
}

type listedEntry struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type"`
	Encrypted   bool      `json:"encrypted"`
}

func printEntries(data json.RawMessage) error {
	if *asJSON {
		return printJSON(data)
	}
	var entries []listedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no entries")
		return nil
	}
	for _, e := range entries {
		preview := e.Content
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		marker := " "
		if e.Encrypted {
			marker = "*"
		}
		fmt.Printf("%6d %s %-8s %s  %q\n",
			e.ID, marker, e.ContentType, e.Timestamp.Format("2006-01-02 15:04:05"), preview)
	}
	return nil
}

func cmdList() error {
	data, err := call(ipc.OpList, map[string]any{"limit": *limit, "offset": *offset})
	if err != nil {
		return err
	}
	return printEntries(data)
}

func cmdSearch(query string) error {
	data, err := call(ipc.OpSearch, map[string]any{"query": query, "limit": *limit})
	if err != nil {
		return err
	}
	return printEntries(data)
}

func cmdGet(id int64) error {
	data, err := call(ipc.OpGet, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(data)
	}
	var e listedEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	fmt.Print(e.Content)
	return nil
}

func cmdDelete(id int64) error {
	if _, err := call(ipc.OpDelete, map[string]any{"id": id}); err != nil {
		return err
	}
	fmt.Printf("deleted entry %d\n", id)
	return nil
}

func cmdClear() error {
	if _, err := call(ipc.OpClear, nil); err != nil {
		return err
	}
	fmt.Println("history cleared")
	return nil
}

// cmdPaste treats a numeric argument as an entry id and anything else
// as literal text.
func cmdPaste(arg string) error {
	args := map[string]any{}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		args["id"] = id
	} else {
		args["text"] = arg
	}
	if *method != "" {
		args["method"] = *method
	}

	data, err := call(ipc.OpPaste, args)
	if err != nil {
		return err
	}
	var result map[string]bool
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	if !result["success"] {
		return errors.New("paste refused (rate limited, aborted, or replay failed)")
	}
	fmt.Println("pasted")
	return nil
}

func cmdAbort(clearFlag bool) error {
	if _, err := call(ipc.OpAbort, map[string]any{"clear": clearFlag}); err != nil {
		return err
	}
	if clearFlag {
		fmt.Println("abort flag cleared")
	} else {
		fmt.Println("replay aborted")
	}
	return nil
}

func cmdStats() error {
	data, err := call(ipc.OpStats, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdPrivacy(args []string) error {
	ipcArgs := map[string]any{"action": "get"}
	if len(args) > 0 {
		ipcArgs["action"] = args[0]
	}
	switch ipcArgs["action"] {
	case "add-app", "remove-app":
		if len(args) < 2 {
			return fmt.Errorf("usage: pastactl privacy %s <name>", args[0])
		}
		ipcArgs["app"] = args[1]
	case "add-pattern":
		if len(args) < 2 {
			return errors.New("usage: pastactl privacy add-pattern <regex>")
		}
		ipcArgs["pattern"] = args[1]
	case "import":
		if len(args) < 2 {
			return errors.New("usage: pastactl privacy import <file>")
		}
		settings, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		ipcArgs["settings"] = string(settings)
	}

	data, err := call(ipc.OpPrivacy, ipcArgs)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdRotateKey() error {
	if _, err := call(ipc.OpRotateKey, nil); err != nil {
		return err
	}
	fmt.Println("history re-encrypted under a fresh key")
	return nil
}

func cmdExport(args []string) error {
	data, err := call(ipc.OpExport, nil)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			return err
		}
		fmt.Printf("exported history to %s\n", args[0])
		return nil
	}
	return printJSON(data)
}

func cmdImport(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err := call(ipc.OpImport, map[string]any{"history": string(payload)})
	if err != nil {
		return err
	}
	var result map[string]int
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	fmt.Printf("imported %d entries\n", result["imported"])
	return nil
}

type listedSnippet struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Hotkey   string   `json:"hotkey"`
	Tags     []string `json:"tags"`
	UseCount int      `json:"use_count"`
}

func printSnippets(data json.RawMessage) error {
	if *asJSON {
		return printJSON(data)
	}
	var snips []listedSnippet
	if err := json.Unmarshal(data, &snips); err != nil {
		return err
	}
	if len(snips) == 0 {
		fmt.Println("no snippets")
		return nil
	}
	for _, s := range snips {
		hk := s.Hotkey
		if hk == "" {
			hk = "-"
		}
		fmt.Printf("%s  %-20s %-10s %-14s uses=%d\n", s.ID, s.Name, s.Category, hk, s.UseCount)
	}
	return nil
}

// cmdSnippet manages the snippet library. With no action it lists the
// library, optionally narrowed by -category.
func cmdSnippet(args []string) error {
	action := "list"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "list":
		ipcArgs := map[string]any{"action": "list"}
		if *category != "" {
			ipcArgs["category"] = *category
		}
		data, err := call(ipc.OpSnippet, ipcArgs)
		if err != nil {
			return err
		}
		return printSnippets(data)
	case "add":
		if len(args) < 2 {
			return errors.New("usage: pastactl snippet add <name> <content>")
		}
		ipcArgs := map[string]any{"action": "add", "name": args[0], "content": args[1]}
		if *category != "" {
			ipcArgs["category"] = *category
		}
		if *hotkey != "" {
			ipcArgs["hotkey"] = *hotkey
		}
		if *tags != "" {
			ipcArgs["tags"] = *tags
		}
		data, err := call(ipc.OpSnippet, ipcArgs)
		if err != nil {
			return err
		}
		var s listedSnippet
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		fmt.Printf("added snippet %s (%s)\n", s.Name, s.ID)
		return nil
	case "get":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet get <id>")
		}
		data, err := call(ipc.OpSnippet, map[string]any{"action": "get", "sid": args[0]})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(data)
		}
		var s listedSnippet
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		fmt.Print(s.Content)
		return nil
	case "update":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet update <id>")
		}
		ipcArgs := map[string]any{"action": "update", "sid": args[0]}
		if *category != "" {
			ipcArgs["category"] = *category
		}
		if *hotkey != "" {
			ipcArgs["hotkey"] = *hotkey
		}
		if *tags != "" {
			ipcArgs["tags"] = *tags
		}
		if len(ipcArgs) == 2 {
			return errors.New("snippet update needs -category, -hotkey or -tags")
		}
		if _, err := call(ipc.OpSnippet, ipcArgs); err != nil {
			return err
		}
		fmt.Println("snippet updated")
		return nil
	case "delete":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet delete <id>")
		}
		if _, err := call(ipc.OpSnippet, map[string]any{"action": "delete", "sid": args[0]}); err != nil {
			return err
		}
		fmt.Println("snippet deleted")
		return nil
	case "search":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet search <query>")
		}
		data, err := call(ipc.OpSnippet, map[string]any{"action": "search", "query": args[0]})
		if err != nil {
			return err
		}
		return printSnippets(data)
	case "recent":
		data, err := call(ipc.OpSnippet, map[string]any{"action": "recent", "limit": *limit})
		if err != nil {
			return err
		}
		return printSnippets(data)
	case "categories":
		data, err := call(ipc.OpSnippet, map[string]any{"action": "categories"})
		if err != nil {
			return err
		}
		return printJSON(data)
	case "paste":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet paste <id>")
		}
		ipcArgs := map[string]any{"action": "paste", "sid": args[0]}
		if *method != "" {
			ipcArgs["method"] = *method
		}
		data, err := call(ipc.OpSnippet, ipcArgs)
		if err != nil {
			return err
		}
		var result map[string]bool
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
		if !result["success"] {
			return errors.New("paste refused (rate limited, aborted, or replay failed)")
		}
		fmt.Println("pasted")
		return nil
	case "export":
		data, err := call(ipc.OpSnippet, map[string]any{"action": "export"})
		if err != nil {
			return err
		}
		if len(args) > 0 {
			if err := os.WriteFile(args[0], data, 0600); err != nil {
				return err
			}
			fmt.Printf("exported snippets to %s\n", args[0])
			return nil
		}
		return printJSON(data)
	case "import":
		if len(args) < 1 {
			return errors.New("usage: pastactl snippet import <file>")
		}
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		data, err := call(ipc.OpSnippet, map[string]any{
			"action": "import", "library": string(doc), "merge": *merge,
		})
		if err != nil {
			return err
		}
		var result map[string]int
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
		fmt.Printf("imported %d snippets\n", result["imported"])
		return nil
	default:
		return fmt.Errorf("unknown snippet action %q", action)
	}
}

func cmdSetLimit(action, maxArg, windowArg string) error {
	maxVal, err := strconv.Atoi(maxArg)
	if err != nil {
		return fmt.Errorf("invalid max %q", maxArg)
	}
	windowSec, err := strconv.Atoi(windowArg)
	if err != nil {
		return fmt.Errorf("invalid window %q", windowArg)
	}
	if _, err := call(ipc.OpSetLimit, map[string]any{
		"limit_action": action,
		"max":          maxVal,
		"window_sec":   windowSec,
	}); err != nil {
		return err
	}
	fmt.Printf("limit for %s set to %d per %ds\n", action, maxVal, windowSec)
	return nil
}

func cmdShutdown() error {
	if _, err := call(ipc.OpShutdown, nil); err != nil {
		return err
	}
	fmt.Println("daemon shutting down")
	return nil
}
