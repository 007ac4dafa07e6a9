package app

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// profiler appends CSV section timings; a nil profiler is a no-op.
type profiler struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	start  time.Time
	last   time.Time
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{file: f, logger: logger}
	fmt.Fprintln(p.file, "timestamp,section,delta_ms")
	return p
}

// begin resets the section clock.
func (p *profiler) begin(section string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.start = now
	p.last = now
	p.log(section+"_start", 0)
}

// mark records the time since the previous mark.
func (p *profiler) mark(section string) {
	if p == nil {
		return
	}
	now := time.Now()
	delta := now.Sub(p.last).Seconds() * 1000
	p.last = now
	p.log(section, delta)
}

// end records the time since begin.
func (p *profiler) end(section string) {
	if p == nil {
		return
	}
	p.log(section+"_total", time.Since(p.start).Seconds()*1000)
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	return p.file.Close()
}

func (p *profiler) log(section string, deltaMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	timestamp := time.Now().Format(time.RFC3339Nano)
	fmt.Fprintf(p.file, "%s,%s,%.3f\n", timestamp, section, deltaMs)
}
