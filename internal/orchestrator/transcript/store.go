// Package transcript keeps the AI's text output for one call, folded into turns.
// It is diagnostic only; nothing on the audio path depends on it.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Turn is one completed AI response.
type Turn struct {
	Index       int
	ResponseID  string
	Text        string
	CompletedAt time.Time
}

// MemoryStore accumulates text deltas and keeps the most recent turns.
type MemoryStore struct {
	mu      sync.RWMutex
	pending strings.Builder
	turns   []Turn
	count   int
	maxSize int
}

// NewStore creates a store keeping at most maxTurns completed turns.
func NewStore(maxTurns int) *MemoryStore {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &MemoryStore{
		turns:   make([]Turn, 0, maxTurns),
		maxSize: maxTurns,
	}
}

// AddDelta appends streamed text to the turn in progress.
func (s *MemoryStore) AddDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.WriteString(text)
}

// CompleteTurn closes the turn in progress and returns it. Turns are
// numbered from 1 even when they carry no text.
func (s *MemoryStore) CompleteTurn(responseID string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	turn := Turn{
		Index:       s.count,
		ResponseID:  responseID,
		Text:        strings.TrimSpace(s.pending.String()),
		CompletedAt: time.Now(),
	}
	s.pending.Reset()

	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxSize {
		s.turns = s.turns[len(s.turns)-s.maxSize:]
	}
	return turn
}

// Count returns the number of completed turns, including evicted ones.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// GetRecent joins the text of the last n turns, oldest first, one per line.
func (s *MemoryStore) GetRecent(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.turns) - n
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, t := range s.turns[start:] {
		if t.Text != "" {
			parts = append(parts, "AI: "+t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
