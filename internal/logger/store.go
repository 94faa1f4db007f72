package logger

import (
	"sync"

	"github.com/collab-whiteboard/backend/internal/buffer"
)

// DefaultTailLines is how many transcript entries are kept in memory per
// connection.
const DefaultTailLines = 200

// Store opens transcripts and keeps the in-memory tail of every open one,
// keyed by user id.
type Store struct {
	dir       string
	tailLines int

	mu    sync.RWMutex
	tails map[int]*buffer.RingBuffer
}

// NewStore creates a store. An empty dir keeps transcripts in memory only.
func NewStore(dir string, tailLines int) *Store {
	if tailLines <= 0 {
		tailLines = DefaultTailLines
	}
	return &Store{
		dir:       dir,
		tailLines: tailLines,
		tails:     make(map[int]*buffer.RingBuffer),
	}
}

// Open starts a transcript for a connection and writes its header.
func (s *Store) Open(h Header) (*Transcript, error) {
	tail := buffer.NewRingBuffer(s.tailLines)

	var (
		t   *Transcript
		err error
	)
	if s.dir == "" {
		t = NewTranscriptWithWriter(nil, tail)
	} else {
		t, err = NewTranscript(s.dir, h.ConnectionID, tail)
		if err != nil {
			return nil, err
		}
	}
	if err := t.WriteHeader(h); err != nil {
		t.Close()
		return nil, err
	}

	s.mu.Lock()
	s.tails[h.UserID] = tail
	s.mu.Unlock()
	return t, nil
}

// Tail returns the buffered transcript entries of a user's connection.
func (s *Store) Tail(userID int) ([]string, bool) {
	s.mu.RLock()
	tail, ok := s.tails[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return tail.Lines(), true
}

// Forget drops a user's tail once its connection is gone.
func (s *Store) Forget(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tails, userID)
}
