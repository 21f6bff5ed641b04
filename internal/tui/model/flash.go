package model

import (
	"sync"
	"time"
)

// flashTTL is how long a status-line notice stays visible.
const flashTTL = 5 * time.Second

// Flash is a one-slot transient notice for the status bar. A new Set
// displaces whatever was showing.
type Flash struct {
	mu       sync.Mutex
	text     string
	deadline time.Time
}

// Set shows msg for the standard flash duration.
func (f *Flash) Set(msg string) {
	f.mu.Lock()
	f.text = msg
	f.deadline = time.Now().Add(flashTTL)
	f.mu.Unlock()
}

// Get returns the active notice, clearing it once expired.
func (f *Flash) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.text != "" && time.Now().After(f.deadline) {
		f.text = ""
	}
	return f.text
}
