package report

import "sync"

// Latest holds the most recent report. The zero value is ready to use.
type Latest struct {
	mu sync.RWMutex
	r  *Report
}

func (l *Latest) Set(r *Report) {
	l.mu.Lock()
	l.r = r
	l.mu.Unlock()
}

// Get returns the latest report, or nil before the first pass.
func (l *Latest) Get() *Report {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.r
}
