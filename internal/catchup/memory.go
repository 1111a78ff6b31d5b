package catchup

import (
	"context"
	"sync"
)

// memoryStore is the default single-process driver.
type memoryStore struct {
	mu            sync.RWMutex
	bySession     map[string]*Entry
	byParticipant map[string]*Entry // sessionKey + "\x00" + participantID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bySession:     make(map[string]*Entry),
		byParticipant: make(map[string]*Entry),
	}
}

func participantKey(sessionKey, participantID string) string {
	return sessionKey + "\x00" + participantID
}

func (s *memoryStore) PutSession(ctx context.Context, sessionKey string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySession[sessionKey] = entry
	return nil
}

func (s *memoryStore) PutParticipant(ctx context.Context, sessionKey, participantID string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byParticipant[participantKey(sessionKey, participantID)] = entry
	return nil
}

func (s *memoryStore) GetSession(ctx context.Context, sessionKey string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bySession[sessionKey], nil
}

func (s *memoryStore) GetParticipant(ctx context.Context, sessionKey, participantID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byParticipant[participantKey(sessionKey, participantID)], nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySession = nil
	s.byParticipant = nil
	return nil
}
