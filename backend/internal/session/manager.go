// Package session keeps per-client upload history and conversation in memory.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cdr-graph/backend/pkg/logger"
)

// RecentMessages is how many trailing messages Memory reports.
const RecentMessages = 5

type session struct {
	id                string
	createdAt         time.Time
	lastActivity      time.Time
	files             []FileInfo
	conversation      []Message
	processingContext map[string]any
}

// Manager is a mutex-protected in-memory session store. Sessions are lost on
// restart.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Named("session")
	}
	return m
}

// GetOrCreate touches the session with the given id, creating it when it does
// not exist. An empty id gets a fresh UUID. It returns the id in use.
func (m *Manager) GetOrCreate(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touchLocked(id).id
}

// Exists reports whether a session is held.
func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Len returns the number of sessions held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) touchLocked(id string) *session {
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()
	s, ok := m.sessions[id]
	if !ok {
		s = &session{
			id:                id,
			createdAt:         now,
			processingContext: make(map[string]any),
		}
		m.sessions[id] = s
		m.logger.Debug("Session created", zap.String("session_id", id))
	}
	s.lastActivity = now
	return s
}

// AddFile records a processed upload and a matching conversation exchange.
func (m *Manager) AddFile(id string, info FileInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.touchLocked(id)
	if info.ProcessedAt.IsZero() {
		info.ProcessedAt = m.now()
	}
	info.Columns = append([]string(nil), info.Columns...)
	s.files = append(s.files, info)
	m.appendLocked(s,
		fmt.Sprintf("Processed file: %s (Type: %s)", info.Filename, info.FileType),
		fmt.Sprintf("Successfully processed %s file with %d records", info.FileType, info.RecordCount),
	)
	return nil
}

// AddError records a failed upload in the conversation.
func (m *Manager) AddError(id, filename, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touchLocked(id)
	m.appendLocked(s, "Error processing "+filename, "Error: "+message)
}

// AppendExchange adds a human message and the AI reply.
func (m *Manager) AppendExchange(id, human, ai string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(m.touchLocked(id), human, ai)
}

func (m *Manager) appendLocked(s *session, human, ai string) {
	now := m.now()
	s.conversation = append(s.conversation,
		Message{Role: RoleHuman, Content: human, Timestamp: now},
		Message{Role: RoleAI, Content: ai, Timestamp: now},
	)
}

// UpdateProcessingContext merges values into the session's processing context.
func (m *Manager) UpdateProcessingContext(id string, values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touchLocked(id)
	for k, v := range values {
		s.processingContext[k] = v
	}
}

func (m *Manager) get(id string) (*session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound{ID: id}
	}
	return s, nil
}

// History returns a copy of everything held for a session.
func (m *Manager) History(id string) (*History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	ctx := make(map[string]any, len(s.processingContext))
	for k, v := range s.processingContext {
		ctx[k] = v
	}
	return &History{
		SessionID:         s.id,
		CreatedAt:         s.createdAt,
		LastActivity:      s.lastActivity,
		FileHistory:       append([]FileInfo{}, s.files...),
		Conversation:      append([]Message{}, s.conversation...),
		ProcessingContext: ctx,
	}, nil
}

// Messages returns the conversation of a session.
func (m *Manager) Messages(id string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return append([]Message{}, s.conversation...), nil
}

// Stats aggregates a session's uploads.
func (m *Manager) Stats(id string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		FilesProcessed:       len(s.files),
		FileTypes:            make(map[string]int),
		SessionDuration:      s.lastActivity.Sub(s.createdAt).Seconds(),
		ConversationMessages: len(s.conversation),
	}
	for _, f := range s.files {
		fileType := f.FileType
		if fileType == "" {
			fileType = "UNKNOWN"
		}
		stats.FileTypes[fileType]++
		stats.TotalRecords += f.RecordCount
	}
	return stats, nil
}

// Memory reports the retained conversation tail and the latest upload.
func (m *Manager) Memory(id string) (*Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	recent := s.conversation
	if len(recent) > RecentMessages {
		recent = recent[len(recent)-RecentMessages:]
	}
	mem := &Memory{
		SessionID:      s.id,
		MessageCount:   len(s.conversation),
		RecentMessages: append([]Message{}, recent...),
		FileCount:      len(s.files),
		LastActivity:   s.lastActivity,
	}
	if n := len(s.files); n > 0 {
		last := s.files[n-1]
		mem.LastFile = &last
	}
	return mem, nil
}

// Cleanup removes sessions idle for longer than maxAge and returns how many
// were removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		if s.lastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Expired sessions removed",
			zap.Int("removed", removed),
			zap.Duration("max_age", maxAge),
		)
	}
	return removed
}
