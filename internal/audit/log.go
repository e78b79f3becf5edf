// Package audit provides best-effort, append-only recording of
// authorization and OAuth flow outcomes.
package audit

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one immutable record of an operation attempt.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	KeyID     string    `json:"keyId,omitempty"`
	Operation string    `json:"operation"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	AgentID   string    `json:"agentId,omitempty"`
}

// Logger appends entries to a durable JSON-lines log. Auditing is
// best-effort: Record cannot fail observably, so an audit outage never
// blocks or aborts the operation being described. Write failures are
// reported through slog only.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger creates a logger writing to path. The file and any missing
// parent directories are created on first write.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Record stamps the entry with the current time and appends it as one
// self-contained JSON line.
func (l *Logger) Record(entry Entry) {
	entry.Timestamp = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		slog.Error("Failed to create audit log directory", "path", l.path, "error", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		slog.Error("Failed to open audit log", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		slog.Error("Failed to marshal audit entry", "error", err)
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write audit entry", "path", l.path, "error", err)
	}
}

// Tail returns the last n entries from the log. A missing log file yields
// an empty slice.
func (l *Logger) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Skip malformed lines
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}
