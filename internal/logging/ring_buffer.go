package logging

import (
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBufferSize is the default capacity of the ring buffer.
const DefaultBufferSize = 500

// LogEntry is a single captured log line as the login TUI displays it.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Source    string
	Fields    map[string]interface{}
}

// RingBuffer is a thread-safe circular buffer of log entries. It implements
// logrus.Hook so it can be attached to the standard logger.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// NewRingBuffer creates a ring buffer. Non-positive capacities select DefaultBufferSize.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Levels implements logrus.Hook.
func (rb *RingBuffer) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (rb *RingBuffer) Fire(entry *log.Entry) error {
	source := ""
	if entry.HasCaller() {
		source = formatSource(entry.Caller.File, entry.Caller.Line)
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}
	rb.Write(LogEntry{
		Timestamp: entry.Time,
		Level:     level,
		Message:   entry.Message,
		Source:    source,
		Fields:    fields,
	})
	return nil
}

func formatSource(file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// Write appends an entry, overwriting the oldest once the buffer is full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity
	if rb.count < rb.capacity {
		rb.count++
	}
}

// GetEntries returns a copy of all entries, oldest first.
func (rb *RingBuffer) GetEntries() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]LogEntry, rb.count)
	if rb.count == rb.capacity {
		n := copy(result, rb.entries[rb.head:])
		copy(result[n:], rb.entries[:rb.head])
	} else {
		copy(result, rb.entries[:rb.count])
	}

	for i := range result {
		if result[i].Fields == nil {
			continue
		}
		fields := make(map[string]interface{}, len(result[i].Fields))
		for k, v := range result[i].Fields {
			fields[k] = v
		}
		result[i].Fields = fields
	}
	return result
}

// GetRecentEntries returns a copy of the n most recent entries, oldest first.
func (rb *RingBuffer) GetRecentEntries(n int) []LogEntry {
	entries := rb.GetEntries()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// Len returns the number of buffered entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops all entries.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.count = 0
	clear(rb.entries)
}

// GlobalBuffer captures every entry of the standard logger once SetupBaseLogger has run.
var GlobalBuffer = NewRingBuffer(DefaultBufferSize)

// GetRecentGlobalEntries returns a copy of the n most recent entries of GlobalBuffer.
func GetRecentGlobalEntries(n int) []LogEntry {
	return GlobalBuffer.GetRecentEntries(n)
}
