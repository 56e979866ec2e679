package scheduler

import (
	"sync"
	"time"

	idgen "github.com/matchwatch/pipeline/internal/platform/id"
)

const defaultJournalCapacity = 200

// RunRecord is one finished job run as the operator channel sees it.
type RunRecord struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Group      string    `json:"group"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Detail     any       `json:"detail,omitempty"`
}

// Journal keeps the most recent job runs in a fixed ring. It only ever
// holds in-process history; a restart starts an empty journal.
type Journal struct {
	mu       sync.RWMutex
	records  []RunRecord
	next     int
	filled   bool
	capacity int
	ids      idgen.Generator
}

func NewJournal(capacity int, ids idgen.Generator) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	if ids == nil {
		ids = idgen.NewRandomGenerator()
	}
	return &Journal{
		records:  make([]RunRecord, capacity),
		capacity: capacity,
		ids:      ids,
	}
}

// Record appends one run, overwriting the oldest entry once full.
func (j *Journal) Record(rec RunRecord) {
	if rec.ID == "" {
		if id, err := j.ids.NewID(); err == nil {
			rec.ID = id
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.records[j.next] = rec
	j.next++
	if j.next == j.capacity {
		j.next = 0
		j.filled = true
	}
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(limit int) []RunRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := j.next
	if j.filled {
		size = j.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]RunRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (j.next - i + j.capacity) % j.capacity
		out = append(out, j.records[idx])
	}
	return out
}
