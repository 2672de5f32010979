package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/sirupsen/logrus"
)

// Entry is one buffered log line.
type Entry struct {
	ID      int          `json:"id"`
	Message string       `json:"message"`
	Time    time.Time    `json:"time"`
	Level   logrus.Level `json:"level"`
}

// LogBuffer keeps the newest log entries in memory. It is a logrus hook.
type LogBuffer struct {
	mu      sync.RWMutex
	entries *circularbuffer.Queue
	total   int
}

// NewLogBuffer returns a buffer holding up to capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{entries: circularbuffer.New(capacity)}
}

// Entries returns up to limit entries with an ID of at least since, oldest first. A
// negative limit returns every such entry.
func (lb *LogBuffer) Entries(since, limit int) []*Entry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var result []*Entry
	for _, v := range lb.entries.Values() {
		e := v.(*Entry)
		if e.ID < since {
			continue
		}
		if limit >= 0 && len(result) >= limit {
			break
		}
		result = append(result, e)
	}
	return result
}

// Len returns the number of entries ever written.
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.total
}

// Fire implements the logrus.Hook interface.
func (lb *LogBuffer) Fire(entry *logrus.Entry) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries.Enqueue(&Entry{
		ID:      lb.total,
		Message: messageWithFields(entry),
		Time:    entry.Time,
		Level:   entry.Level,
	})
	lb.total++
	return nil
}

// Levels implements the logrus.Hook interface.
func (lb *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func messageWithFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return entry.Message
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%q", k, fmt.Sprint(entry.Data[k])))
	}
	return entry.Message + "  " + strings.Join(fields, " ")
}
