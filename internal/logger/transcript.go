// Package logger records per-connection protocol transcripts.
//
// A transcript is a JSON-lines file: a header object followed by one
// [offset, kind, line] event per protocol line, where kind is "i" for a
// request and "o" for a response and offset is seconds since the header.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/collab-whiteboard/backend/internal/buffer"
)

// Event kinds.
const (
	EventInput  = "i"
	EventOutput = "o"
)

// Header is the first line of a transcript.
type Header struct {
	Version      int    `json:"version"`
	ConnectionID string `json:"connection_id"`
	UserID       int    `json:"user_id"`
	Transport    string `json:"transport"`
	RemoteAddr   string `json:"remote_addr,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Event is one protocol line in a transcript.
// Format: [time_offset, event_type, line]
type Event struct {
	TimeOffset float64
	EventType  string
	Line       string
}

// MarshalJSON encodes the event as a three-element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.EventType, e.Line})
}

// UnmarshalJSON decodes a three-element array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	timeOffset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	eventType, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	line, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event line type")
	}

	e.TimeOffset, e.EventType, e.Line = timeOffset, eventType, line
	return nil
}

// Transcript writes one connection's events. The JSON form of every entry
// also goes to an in-memory tail when one is attached.
type Transcript struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	tail      *buffer.RingBuffer
	startTime time.Time
	mu        sync.Mutex
}

// NewTranscript creates a transcript file named <connectionID>.jsonl in dir.
func NewTranscript(dir, connectionID string, tail *buffer.RingBuffer) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	file, err := os.Create(filepath.Join(dir, connectionID+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	return &Transcript{
		writer:    file,
		file:      file,
		tail:      tail,
		startTime: time.Now(),
	}, nil
}

// NewTranscriptWithWriter creates a transcript that writes to w. A nil w
// keeps only the tail.
func NewTranscriptWithWriter(w io.Writer, tail *buffer.RingBuffer) *Transcript {
	if w == nil {
		w = io.Discard
	}
	return &Transcript{
		writer:    w,
		tail:      tail,
		startTime: time.Now(),
	}
}

// WriteHeader writes the header line. Its timestamp is the transcript's
// start time.
func (t *Transcript) WriteHeader(h Header) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h.Version = 1
	h.Timestamp = t.startTime.Unix()

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	return t.writeLocked(data)
}

// WriteInput records a request line.
func (t *Transcript) WriteInput(line string) error {
	return t.writeEvent(EventInput, line)
}

// WriteOutput records a response line.
func (t *Transcript) WriteOutput(line string) error {
	return t.writeEvent(EventOutput, line)
}

func (t *Transcript) writeEvent(eventType, line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := Event{
		TimeOffset: time.Since(t.startTime).Seconds(),
		EventType:  eventType,
		Line:       line,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return t.writeLocked(data)
}

func (t *Transcript) writeLocked(data []byte) error {
	if t.tail != nil {
		t.tail.Push(string(data))
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// Close closes the transcript file if the transcript owns one.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// StartTime returns when the transcript began.
func (t *Transcript) StartTime() time.Time {
	return t.startTime
}
