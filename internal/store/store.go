// Package store persists clipboard history in SQLite. Content the
// sensitive-content detector flags is encrypted at rest with a key
// derived from the on-disk master key; everything else is stored as
// plaintext and remains searchable.
package store

import (
	"crypto/cipher"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pastad/internal/clipboard"
	"pastad/internal/security"
	"pastad/internal/sensitive"
)

// ErrNotFound is returned when the requested entry does not exist.
var ErrNotFound = errors.New("store: entry not found")

// schemaVersion is bumped on incompatible schema changes.
const schemaVersion = 1

// nextKeySuffix marks a staged rotation key awaiting promotion.
const nextKeySuffix = ".next"

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    version     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS clipboard_history (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    content         TEXT NOT NULL,
    timestamp_ns    INTEGER NOT NULL,
    content_type    TEXT NOT NULL,
    fingerprint     TEXT NOT NULL,
    encrypted       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_history_timestamp ON clipboard_history(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON clipboard_history(fingerprint);
`

// Options configures Open.
type Options struct {
	// DatabasePath is the SQLite file location.
	DatabasePath string

	// KeyPath is the master key file location. Created on first open.
	KeyPath string

	// Detector classifies content as sensitive. Nil disables
	// classification and nothing is encrypted.
	Detector *sensitive.Detector

	// EncryptSensitive controls whether flagged content is encrypted.
	EncryptSensitive bool

	Logger *slog.Logger
}

// Store is the SQLite-backed clipboard history.
type Store struct {
	db       *sql.DB
	dbPath   string
	keyPath  string
	detector *sensitive.Detector
	encrypt  bool
	logger   *slog.Logger

	// mu serializes writers and guards the key material during rotation.
	mu        sync.Mutex
	aead      cipher.AEAD
	masterKey []byte
	installID uuid.UUID
}

// Open opens or creates the history database and its master key file.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dir := filepath.Dir(opts.DatabasePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", opts.DatabasePath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, ?)`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(opts.DatabasePath, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	kf, err := security.LoadOrCreateKeyFile(opts.KeyPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load key file: %w", err)
	}
	kf, err = resolveRotation(db, opts.KeyPath, kf, opts.Logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	aead, err := newAEAD(kf.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:        db,
		dbPath:    opts.DatabasePath,
		keyPath:   opts.KeyPath,
		detector:  opts.Detector,
		encrypt:   opts.EncryptSensitive,
		logger:    opts.Logger,
		aead:      aead,
		masterKey: kf.Key,
		installID: kf.InstallID,
	}, nil
}

// resolveRotation finishes a key rotation interrupted between the row
// rewrite and the key promote. A staged sidecar key is adopted when it,
// and not the main key, decrypts the stored rows; a sidecar left by a
// rotation that never committed is discarded.
func resolveRotation(db *sql.DB, keyPath string, kf *security.KeyFile, logger *slog.Logger) (*security.KeyFile, error) {
	sidecar := keyPath + nextKeySuffix
	next, err := security.LoadKeyFile(sidecar)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return kf, nil
		}
		return nil, fmt.Errorf("read rotation sidecar: %w", err)
	}

	var sample string
	err = db.QueryRow(`SELECT content FROM clipboard_history WHERE encrypted = 1 LIMIT 1`).Scan(&sample)
	if errors.Is(err, sql.ErrNoRows) {
		// No ciphertext to disambiguate; either key serves, keep the
		// installed one.
		os.Remove(sidecar)
		return kf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read encrypted entry: %w", err)
	}

	if aead, aerr := newAEAD(kf.Key); aerr == nil {
		if _, derr := openContent(aead, sample); derr == nil {
			os.Remove(sidecar)
			logger.Info("discarded rotation key from an uncommitted rotation")
			return kf, nil
		}
	}

	aead, err := newAEAD(next.Key)
	if err != nil {
		return nil, err
	}
	if _, err := openContent(aead, sample); err != nil {
		return nil, fmt.Errorf("neither installed nor staged key decrypts stored rows: %w", err)
	}
	if err := security.WriteKeyFile(keyPath, next); err != nil {
		return nil, fmt.Errorf("promote rotated key: %w", err)
	}
	os.Remove(sidecar)
	logger.Info("completed interrupted key rotation")
	return next, nil
}

// migrate brings an older database up to the current schema version.
// Databases written by a newer build are refused rather than guessed at.
func migrate(db *sql.DB) error {
	var stored int
	if err := db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&stored); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if stored > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", stored, schemaVersion)
	}
	// Version 1 is the first schema; migration steps accumulate here as
	// the schema evolves.
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InstallID returns the stable identifier from the key file.
func (s *Store) InstallID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installID
}

// Save classifies and persists an entry, assigning its ID. Sensitive
// content is encrypted before insertion when encryption is enabled.
func (s *Store) Save(e *clipboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := e.Content
	encrypted := false
	if s.encrypt && s.detector != nil && s.detector.IsSensitive(e.Content) {
		sealed, err := sealContent(s.aead, e.Content)
		if err != nil {
			return fmt.Errorf("encrypt content: %w", err)
		}
		content = sealed
		encrypted = true
	}

	result, err := s.db.Exec(`
		INSERT INTO clipboard_history (content, timestamp_ns, content_type, fingerprint, encrypted)
		VALUES (?, ?, ?, ?, ?)`,
		content, e.Timestamp.UnixNano(), string(e.ContentType), e.Fingerprint, boolToInt(encrypted),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	e.ID = id
	e.Encrypted = encrypted
	return nil
}

// Get retrieves an entry by ID, decrypting it if needed.
func (s *Store) Get(id int64) (*clipboard.Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, content, timestamp_ns, content_type, fingerprint, encrypted
		FROM clipboard_history WHERE id = ?`, id)

	e, err := s.scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// List returns entries newest first, up to limit, skipping offset rows.
// A non-positive limit returns everything after the offset.
func (s *Store) List(limit, offset int) ([]*clipboard.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT id, content, timestamp_ns, content_type, fingerprint, encrypted
		FROM clipboard_history
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// Search returns plaintext entries whose content contains the query,
// newest first. Encrypted rows are never matched; their plaintext is not
// available to the LIKE scan and leaking matches against it would defeat
// encryption at rest.
func (s *Store) Search(query string, limit int) ([]*clipboard.Entry, error) {
	pattern := "%" + escapeLike(query) + "%"
	q := `
		SELECT id, content, timestamp_ns, content_type, fingerprint, encrypted
		FROM clipboard_history
		WHERE encrypted = 0 AND content LIKE ? ESCAPE '\'
		ORDER BY timestamp_ns DESC, id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, pattern, limit)
	} else {
		rows, err = s.db.Query(q, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// Delete removes an entry. Returns false when no such entry exists.
func (s *Store) Delete(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM clipboard_history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearAll removes every entry.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM clipboard_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// SweepRetention deletes entries older than maxAge and returns how many
// were removed. A zero maxAge disables retention and removes nothing.
func (s *Store) SweepRetention(maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixNano()
	result, err := s.db.Exec(`DELETE FROM clipboard_history WHERE timestamp_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep retention: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// RotateKey replaces the master key and re-encrypts every encrypted row
// under the new key. Any row that fails to decrypt or re-encrypt aborts
// the rotation before anything on disk changes. The new key is staged in
// a sidecar file and promoted to the main key file only after the row
// rewrite commits, so a crash mid-rotation is recovered on the next Open.
func (s *Store) RotateKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newMaster, err := security.GenerateKey(security.KeySize)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	newAead, err := newAEAD(newMaster)
	if err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT id, content FROM clipboard_history WHERE encrypted = 1`)
	if err != nil {
		return fmt.Errorf("query encrypted entries: %w", err)
	}

	type reencrypted struct {
		id      int64
		content string
	}
	var updates []reencrypted
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return fmt.Errorf("scan encrypted entry: %w", err)
		}
		plaintext, err := openContent(s.aead, content)
		if err != nil {
			rows.Close()
			return fmt.Errorf("rotate key: entry %d: %w", id, err)
		}
		sealed, err := sealContent(newAead, plaintext)
		if err != nil {
			rows.Close()
			return fmt.Errorf("rotate key: entry %d: %w", id, err)
		}
		updates = append(updates, reencrypted{id: id, content: sealed})
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("iterate encrypted entries: %w", err)
	}

	// Stage the new key in a sidecar before touching any row. The main
	// key file keeps the old key until the rewrite commits, so a crash
	// at any point leaves one of the two on-disk keys matching the
	// ciphertext; Open resolves a leftover sidecar either way.
	kf := &security.KeyFile{Key: newMaster, InstallID: s.installID}
	sidecar := s.keyPath + nextKeySuffix
	if err := security.WriteKeyFile(sidecar, kf); err != nil {
		return fmt.Errorf("stage rotation key: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.discardSidecar(sidecar)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE clipboard_history SET content = ? WHERE id = ?`)
	if err != nil {
		s.discardSidecar(sidecar)
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.content, u.id); err != nil {
			s.discardSidecar(sidecar)
			return fmt.Errorf("rewrite entry %d: %w", u.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.discardSidecar(sidecar)
		return fmt.Errorf("commit rotation: %w", err)
	}

	// Rows are now under the new key; promote it. If the promote or the
	// sidecar removal fails the sidecar stays behind and the next Open
	// finishes the swap.
	s.masterKey = newMaster
	s.aead = newAead
	if err := security.WriteKeyFile(s.keyPath, kf); err != nil {
		return fmt.Errorf("install rotated key (recovered on next open): %w", err)
	}
	s.discardSidecar(sidecar)

	s.logger.Info("encryption key rotated", "entries", len(updates))
	return nil
}

func (s *Store) discardSidecar(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove rotation sidecar", "error", err)
	}
}

// Stats summarizes the stored history.
type Stats struct {
	TotalEntries     int64            `json:"total_entries"`
	EncryptedEntries int64            `json:"encrypted_entries"`
	ByType           map[string]int64 `json:"by_type"`
	OldestEntry      time.Time        `json:"oldest_entry,omitzero"`
	NewestEntry      time.Time        `json:"newest_entry,omitzero"`
	DatabaseSize     int64            `json:"database_size_bytes"`
}

// GetStats returns database statistics.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByType: make(map[string]int64)}

	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(encrypted), 0) FROM clipboard_history`).
		Scan(&stats.TotalEntries, &stats.EncryptedEntries)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	rows, err := s.db.Query(`SELECT content_type, COUNT(*) FROM clipboard_history GROUP BY content_type`)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ct string
		var n int64
		if err := rows.Scan(&ct, &n); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		stats.ByType[ct] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type counts: %w", err)
	}

	var oldestNs, newestNs sql.NullInt64
	err = s.db.QueryRow(`SELECT MIN(timestamp_ns), MAX(timestamp_ns) FROM clipboard_history`).
		Scan(&oldestNs, &newestNs)
	if err != nil {
		return nil, fmt.Errorf("query time range: %w", err)
	}
	if oldestNs.Valid {
		stats.OldestEntry = time.Unix(0, oldestNs.Int64)
		stats.NewestEntry = time.Unix(0, newestNs.Int64)
	}

	if fi, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = fi.Size()
	}

	return stats, nil
}

// exportEntry is the JSON form used by ExportJSON and ImportJSON.
// Content is always exported as plaintext.
type exportEntry struct {
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type"`
}

// ExportJSON writes the full history, decrypted, as a JSON array.
func (s *Store) ExportJSON(w io.Writer) error {
	entries, err := s.List(0, 0)
	if err != nil {
		return err
	}

	out := make([]exportEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, exportEntry{
			Content:     e.Content,
			Timestamp:   e.Timestamp,
			ContentType: string(e.ContentType),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ImportJSON reads a JSON array produced by ExportJSON and saves each
// entry through the normal classification path. Returns the number of
// entries imported; a malformed document imports nothing.
func (s *Store) ImportJSON(r io.Reader) (int, error) {
	var in []exportEntry
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return 0, fmt.Errorf("decode import: %w", err)
	}

	imported := 0
	for _, ee := range in {
		e := clipboard.NewEntry(ee.Content)
		if !ee.Timestamp.IsZero() {
			e.Timestamp = ee.Timestamp
		}
		if ee.ContentType != "" {
			e.ContentType = clipboard.ContentType(ee.ContentType)
		}
		if err := s.Save(e); err != nil {
			return imported, fmt.Errorf("import entry: %w", err)
		}
		imported++
	}
	return imported, nil
}

type scanFunc func(dest ...any) error

func (s *Store) scanEntry(scan scanFunc) (*clipboard.Entry, error) {
	var e clipboard.Entry
	var timestampNs int64
	var contentType string
	var encrypted int

	if err := scan(&e.ID, &e.Content, &timestampNs, &contentType, &e.Fingerprint, &encrypted); err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, timestampNs)
	e.ContentType = clipboard.ContentType(contentType)
	e.Encrypted = encrypted != 0

	if e.Encrypted {
		s.mu.Lock()
		aead := s.aead
		s.mu.Unlock()
		plaintext, err := openContent(aead, e.Content)
		if err != nil {
			return nil, err
		}
		e.Content = plaintext
	}

	return &e, nil
}

func (s *Store) scanEntries(rows *sql.Rows) ([]*clipboard.Entry, error) {
	var entries []*clipboard.Entry
	for rows.Next() {
		e, err := s.scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// escapeLike escapes LIKE metacharacters so queries match literally.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
