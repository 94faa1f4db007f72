// Package buffer provides a bounded ring of recent text lines.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer holding the most recent lines
// up to a fixed count. When it is full the oldest line is discarded.
//
// Connections use it to keep the tail of their transcript available to the
// admin API without reading transcript files back.
type RingBuffer struct {
	lines    []string
	start    int
	count    int
	capacity int
	mu       sync.RWMutex
}

// NewRingBuffer creates a RingBuffer holding up to capacity lines.
// A capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Push appends a line, evicting the oldest one if the buffer is full.
func (rb *RingBuffer) Push(line string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	end := (rb.start + rb.count) % rb.capacity
	rb.lines[end] = line
	if rb.count < rb.capacity {
		rb.count++
		return
	}
	rb.start = (rb.start + 1) % rb.capacity
}

// Write pushes p as one line with any trailing newline removed. It lets a
// RingBuffer sit behind an io.Writer that emits one line per call.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	line := p
	if line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	rb.Push(string(line))
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (rb *RingBuffer) Lines() []string {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}
	out := make([]string, rb.count)
	for i := 0; i < rb.count; i++ {
		out[i] = rb.lines[(rb.start+i)%rb.capacity]
	}
	return out
}

// Clear removes every line.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.lines {
		rb.lines[i] = ""
	}
	rb.start, rb.count = 0, 0
}

// Len returns the number of buffered lines.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.count
}

// Cap returns the maximum number of lines.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
