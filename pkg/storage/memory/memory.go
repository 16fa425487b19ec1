// Package memory is the in-process Store used when no database is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/interview-gateway/pkg/interview"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]interview.Session
	entries  map[uuid.UUID][]interview.TranscriptEntry
	reports  map[uuid.UUID]interview.Report
}

func New() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]interview.Session),
		entries:  make(map[uuid.UUID][]interview.TranscriptEntry),
		reports:  make(map[uuid.UUID]interview.Report),
	}
}

func (s *Store) CreateSession(_ context.Context, sess interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (interview.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return interview.Session{}, interview.ErrNotFound
	}
	return sess, nil
}

func (s *Store) UpdateSession(_ context.Context, sess interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return interview.ErrNotFound
	}
	if !cur.Status.CanTransition(sess.Status) {
		return interview.ErrInvalidTransition
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) AppendEntry(_ context.Context, e interview.TranscriptEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[e.SessionID]; !ok {
		return 0, interview.ErrNotFound
	}
	e.Sequence = len(s.entries[e.SessionID])
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if len(e.AudioSample) > interview.MaxAudioSampleBytes {
		e.AudioSample = e.AudioSample[:interview.MaxAudioSampleBytes]
	}
	s.entries[e.SessionID] = append(s.entries[e.SessionID], e)
	return e.Sequence, nil
}

func (s *Store) Entries(_ context.Context, sessionID uuid.UUID) ([]interview.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, interview.ErrNotFound
	}
	out := make([]interview.TranscriptEntry, len(s.entries[sessionID]))
	copy(out, s.entries[sessionID])
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *Store) CreateReport(_ context.Context, sessionID uuid.UUID, r interview.Report) (interview.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return interview.Report{}, interview.ErrNotFound
	}
	if existing, ok := s.reports[sessionID]; ok {
		return existing, nil
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	s.reports[sessionID] = r
	return r, nil
}

func (s *Store) GetReport(_ context.Context, sessionID uuid.UUID) (interview.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[sessionID]
	return r, ok, nil
}

func (s *Store) Close() {}
