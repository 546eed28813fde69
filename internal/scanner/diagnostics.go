package scanner

import (
	"sync"
	"time"
)

type Entry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Device  string    `json:"device,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// Diagnostics keeps the most recent entries, oldest first.
type Diagnostics struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewDiagnostics(size int) *Diagnostics {
	if size <= 0 {
		size = 1
	}
	return &Diagnostics{entries: make([]Entry, size)}
}

func (d *Diagnostics) Add(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[d.next] = e
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

func (d *Diagnostics) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		return append([]Entry(nil), d.entries[:d.next]...)
	}
	out := make([]Entry, 0, len(d.entries))
	out = append(out, d.entries[d.next:]...)
	return append(out, d.entries[:d.next]...)
}
