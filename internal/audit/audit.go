package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// LogFile is the name of the history log inside the cache directory.
const LogFile = "history.jsonl"

// Operation names recorded in the history.
const (
	OpSync      = "sync"
	OpBootstrap = "bootstrap"
)

// Entry represents a single history entry.
type Entry struct {
	Timestamp string `json:"ts"`     // RFC3339 with microseconds.
	Node      string `json:"node"`   // Client identity that ran the operation.
	RunID     string `json:"run_id"` // Unique id of the run.
	Operation string `json:"op"`     // Operation name.

	// Optional fields depending on operation.
	Server     string   `json:"server,omitempty"`      // For sync/bootstrap.
	Fetched    int      `json:"fetched,omitempty"`     // For sync.
	Skipped    int      `json:"skipped,omitempty"`     // For sync.
	Failed     []string `json:"failed,omitempty"`      // For sync.
	Conflicts  int      `json:"conflicts,omitempty"`   // For sync.
	DurationMS int64    `json:"duration_ms,omitempty"` // For sync.
	Error      string   `json:"error,omitempty"`       // For runs that did not complete.
}

// Time parses the entry timestamp. Returns the zero time if it is malformed.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Log appends an entry to the history in cacheDir.
// If logging fails, it returns silently.
func Log(cacheDir string, entry Entry) {
	if cacheDir == "" {
		return
	}

	// Set timestamp if not already set.
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return
	}

	f, err := os.OpenFile(LogPath(cacheDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogPath returns the path to the history file in cacheDir.
func LogPath(cacheDir string) string {
	return filepath.Join(cacheDir, LogFile)
}

// ReadEntries reads all entries from the history in cacheDir.
// Returns an empty slice if the log doesn't exist.
func ReadEntries(cacheDir string) ([]Entry, error) {
	data, err := os.ReadFile(LogPath(cacheDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into history entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Skip malformed entries.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// Last returns the final n entries, or all of them when n <= 0.
func Last(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
