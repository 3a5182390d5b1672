// package shared defines shared helpers
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// NewFileLogger creates a [log.Logger] that appends to path, creating parent directories.
//
// Used while the TUI owns the terminal.
func NewFileLogger(path string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(f), f, nil
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

var nonKeyChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Slug reduces s to an ASCII, dash separated token no longer than max characters.
func Slug(s string, max int) string {
	slug := strings.Trim(nonKeyChars.ReplaceAllString(s, "-"), "-")
	if slug == "" {
		slug = "asset"
	}
	if max > 0 && len(slug) > max {
		slug = strings.TrimRight(slug[:max], "-")
	}
	return slug
}

// CustomerKey derives a destination customer key from a display name and a timestamp.
//
// The suffix is the hexadecimal unix millisecond value of t, which keeps keys unique across
// repeated runs with the same name and lets [ParseCustomerKeyID] recover a number from it.
func CustomerKey(name string, t time.Time) string {
	return fmt.Sprintf("%s-%x", Slug(name, 24), t.UnixMilli())
}

// ParseCustomerKeyID parses the hexadecimal suffix of a key produced by [CustomerKey].
func ParseCustomerKeyID(key string) (int64, bool) {
	idx := strings.LastIndex(key, "-")
	if idx < 0 || idx == len(key)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(key[idx+1:], 16, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// UniqueName appends a short timestamp suffix to name, used to dodge name collisions at the destination.
func UniqueName(name string, t time.Time) string {
	return fmt.Sprintf("%s_%d", name, t.Unix()%1_000_000)
}

// MarshalJSON marshals v, indenting the output when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Truncate shortens s to at most n bytes, used when echoing upstream bodies into logs.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
