package diagnostics

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of log lines kept in memory.
const DefaultCapacity = 200

// LogEntry is one captured log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Logger    string    `json:"logger"`
	Message   string    `json:"message"`
}

var tagPattern = regexp.MustCompile(`\[([A-Z][A-Z_-]*)\]`)

// LogBuffer is a fixed-size ring of recent log lines. It implements io.Writer
// so it can sit next to stderr behind log.SetOutput.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
	partial []byte
	now     func() time.Time
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LogBuffer{entries: make([]LogEntry, capacity), now: time.Now}
}

// Write splits p into lines. A trailing fragment is held until its newline arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(string(data[:idx])); line != "" {
			b.push(parseLine(line, b.now().UTC()))
		}
		data = data[idx+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *LogBuffer) push(entry LogEntry) {
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns up to limit entries, newest first. A non-positive limit returns all.
func (b *LogBuffer) Recent(limit int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.full {
		size = len(b.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]LogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (b.next - 1 - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}

// parseLine reads the level from the WARN:/ERROR: markers and the logger from
// the first [TAG].
func parseLine(line string, at time.Time) LogEntry {
	entry := LogEntry{Timestamp: at, Level: "INFO", Logger: "app", Message: line}
	switch {
	case strings.Contains(line, "ERROR:") || strings.Contains(line, "FATAL"):
		entry.Level = "ERROR"
	case strings.Contains(line, "WARN:") || strings.Contains(line, "WARNING"):
		entry.Level = "WARNING"
	case strings.Contains(line, "DEBUG:"):
		entry.Level = "DEBUG"
	}
	if match := tagPattern.FindStringSubmatch(line); match != nil {
		entry.Logger = strings.ToLower(match[1])
	}
	return entry
}
