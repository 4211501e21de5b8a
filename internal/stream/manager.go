package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/models"
	"github.com/kdimtricp/timelens/internal/store"
)

// session is the mutable internal record. Its mutex serializes frame
// ingestion and state transitions for this one session, so frames are
// applied in arrival order and a concurrent Stop cannot interleave with
// an in-flight frame.
type session struct {
	mu sync.Mutex
	Session
}

// Manager tracks all ingest sessions by stream key. The manager mutex
// only guards the map; per-session work holds the session mutex, so
// sessions never block each other.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxSessions int

	dedup   *dedup.Deduplicator
	sources *store.SourceRepo
	frames  *store.FrameRepo
}

func NewManager(maxSessions int, dedup *dedup.Deduplicator, sources *store.SourceRepo, frames *store.FrameRepo) *Manager {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &Manager{
		sessions:    make(map[string]*session),
		maxSessions: maxSessions,
		dedup:       dedup,
		sources:     sources,
		frames:      frames,
	}
}

// CreateSession registers a new waiting session and mints its stream
// key. Capacity counts waiting and live sessions; ended ones do not
// hold a slot.
func (m *Manager) CreateSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.State == StateWaiting || s.State == StateLive {
			active++
		}
		s.mu.Unlock()
	}
	if active >= m.maxSessions {
		return nil, fmt.Errorf("%w: %d of %d in use", ErrCapacity, active, m.maxSessions)
	}

	s := &session{Session: Session{
		ID:        uuid.New().String(),
		StreamKey: uuid.New().String(),
		Name:      name,
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}}
	m.sessions[s.StreamKey] = s
	log.Printf("Created session %s (key %s)", s.ID, s.StreamKey)
	return snapshot(s), nil
}

// AcceptPublish is the authorization boundary for a publisher: unknown
// keys and sessions outside waiting/ended are rejected, with no state
// touched. On accept the session opens a fresh backing source and goes
// live with zeroed counters.
func (m *Manager) AcceptPublish(ctx context.Context, streamKey, clientAddr string) (*Session, error) {
	s, ok := m.lookup(streamKey)
	if !ok {
		return nil, ErrUnknownStreamKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateWaiting && s.State != StateEnded {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, s.State)
	}

	now := time.Now()
	source := models.NewSource(models.SourceStream, now.Format("2006-01-02_15-04-05"), now,
		map[string]any{"session_id": s.ID, "session_name": s.Name, "client_addr": clientAddr})
	if err := m.sources.Create(ctx, source); err != nil {
		// An ended session stays ended; error is only reachable from
		// waiting or live.
		if s.State == StateWaiting {
			s.State = StateError
		}
		return nil, fmt.Errorf("failed to open stream source: %w", err)
	}

	s.State = StateLive
	s.SourceID = source.ID
	s.ClientAddr = clientAddr
	s.StartedAt = &now
	s.EndedAt = nil
	s.Width = 0
	s.Height = 0
	s.FramesReceived = 0
	s.FramesStored = 0
	s.BytesReceived = 0
	log.Printf("Session %s live from %s (source %s)", s.ID, clientAddr, source.ID)
	return snapshot(s), nil
}

// IngestFrame applies one pushed frame to the dedup and timeline
// pipeline. Frames for one session are processed strictly in arrival
// order under the session mutex. Malformed image bytes drop that single
// frame; the session stays live.
func (m *Manager) IngestFrame(ctx context.Context, streamKey string, imageBytes []byte) error {
	s, ok := m.lookup(streamKey)
	if !ok {
		return ErrUnknownStreamKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateLive {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.State)
	}

	s.FramesReceived++
	s.BytesReceived += int64(len(imageBytes))

	if s.Width == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err == nil {
			s.Width = cfg.Width
			s.Height = cfg.Height
		}
	}

	shouldStore, hash, similarity, err := m.dedup.Evaluate(s.SourceID, imageBytes)
	if err != nil {
		log.Printf("Session %s: dropping malformed frame: %v", s.ID, err)
		return nil
	}

	obs := store.Observation{
		SourceID:       s.SourceID,
		Timestamp:      time.Now(),
		PerceptualHash: hash,
		Similarity:     similarity,
		ShouldStore:    shouldStore,
	}
	if shouldStore {
		obs.ImageData = imageBytes
	}
	if _, err := m.frames.RecordObservation(ctx, obs); err != nil {
		log.Printf("Session %s: failed to record frame: %v", s.ID, err)
		return nil
	}
	if shouldStore {
		s.FramesStored++
	}
	return nil
}

// NotifyPublishDone ends a live session when the relay reports the
// publisher went away.
func (m *Manager) NotifyPublishDone(ctx context.Context, streamKey string) error {
	return m.Stop(ctx, streamKey)
}

// Stop transitions live→ended, closes the backing source, and resets the
// dedup baseline so a reconnect starts its own comparison lineage.
func (m *Manager) Stop(ctx context.Context, streamKey string) error {
	s, ok := m.lookup(streamKey)
	if !ok {
		return ErrUnknownStreamKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.stopLocked(ctx, s)
}

func (m *Manager) stopLocked(ctx context.Context, s *session) error {
	if s.State != StateLive {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.State)
	}

	now := time.Now()
	if err := m.sources.UpdateEnd(ctx, s.SourceID, now); err != nil {
		// Stay live so the close can be retried.
		return fmt.Errorf("failed to close stream source: %w", err)
	}

	s.State = StateEnded
	s.EndedAt = &now
	m.dedup.Reset(s.SourceID)
	log.Printf("Session %s ended: %d frames received, %d stored", s.ID, s.FramesReceived, s.FramesStored)
	return nil
}

// DeleteSession stops a still-live session and removes it entirely;
// later operations on its key fail as unknown. The session leaves the
// map only after the stop succeeds, so a failed source close can be
// retried through the same key.
func (m *Manager) DeleteSession(ctx context.Context, streamKey string) error {
	s, ok := m.lookup(streamKey)
	if !ok {
		return ErrUnknownStreamKey
	}

	s.mu.Lock()
	if s.State == StateLive {
		if err := m.stopLocked(ctx, s); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, streamKey)
	m.mu.Unlock()
	return nil
}

func (m *Manager) GetSession(streamKey string) (*Session, bool) {
	s, ok := m.lookup(streamKey)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s), true
}

func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	sessions := make([]*Session, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		sessions = append(sessions, snapshot(s))
		s.mu.Unlock()
	}
	return sessions
}

func (m *Manager) Status() *Status {
	status := &Status{MaxSessions: m.maxSessions, Sessions: m.Sessions()}
	for _, s := range status.Sessions {
		switch s.State {
		case StateWaiting:
			status.Waiting++
		case StateLive:
			status.Live++
		case StateEnded:
			status.Ended++
		case StateError:
			status.Errored++
		}
	}
	return status
}

func (m *Manager) lookup(streamKey string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[streamKey]
	return s, ok
}

func snapshot(s *session) *Session {
	copied := s.Session
	return &copied
}
