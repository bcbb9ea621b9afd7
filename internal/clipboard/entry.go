// Package clipboard provides clipboard change monitoring with a bounded
// in-memory history ring and change-notification fan-out.
package clipboard

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ContentType classifies clipboard text by shape.
type ContentType string

const (
	// TypeText is ordinary short text.
	TypeText ContentType = "text"
	// TypeURL is text beginning with an http(s) scheme.
	TypeURL ContentType = "url"
	// TypeMultiline is text containing newlines or tabs.
	TypeMultiline ContentType = "multiline"
	// TypeLargeText is single-line text longer than largeTextThreshold.
	TypeLargeText ContentType = "large_text"
)

// largeTextThreshold is the length above which single-line text is
// classified as large.
const largeTextThreshold = 500

// Entry is a captured clipboard change. ID is zero until the entry is
// persisted; the store assigns it exactly once.
type Entry struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	Timestamp   time.Time   `json:"timestamp"`
	ContentType ContentType `json:"content_type"`
	Fingerprint string      `json:"fingerprint"`
	Encrypted   bool        `json:"encrypted"`
}

// NewEntry builds an entry for content captured now.
func NewEntry(content string) *Entry {
	return &Entry{
		Content:     content,
		Timestamp:   time.Now(),
		ContentType: DetectContentType(content),
		Fingerprint: Fingerprint(content),
	}
}

// Fingerprint returns the deterministic content hash used for dedup.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DetectContentType derives the content type from the text alone.
func DetectContentType(content string) ContentType {
	switch {
	case strings.HasPrefix(content, "http://"), strings.HasPrefix(content, "https://"):
		return TypeURL
	case strings.ContainsAny(content, "\n\t"):
		return TypeMultiline
	case len(content) > largeTextThreshold:
		return TypeLargeText
	default:
		return TypeText
	}
}
