package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/emi-live/backend/internal/model/chat"
)

var (
	ErrModeRequired    = errors.New("session mode is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is empty")
)

// Service 对话历史的内存实现。
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	// timeline 按写入顺序记录全部消息，供最近 N 轮窗口使用。
	timeline []chat.Message
	maxKeep  int
}

// NewService 创建服务，maxKeep 限制 timeline 长度，<=0 表示不限制。
func NewService(maxKeep int) *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		maxKeep:  maxKeep,
	}
}

// CreateSession 创建一个对话。
func (s *Service) CreateSession(_ context.Context, mode string) (chat.Session, error) {
	if mode == "" {
		return chat.Session{}, ErrModeRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// SaveMessage 追加消息。
func (s *Service) SaveMessage(_ context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}
	if strings.TrimSpace(message.Content) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	s.timeline = append(s.timeline, message)
	if s.maxKeep > 0 && len(s.timeline) > s.maxKeep {
		s.timeline = append([]chat.Message(nil), s.timeline[len(s.timeline)-s.maxKeep:]...)
	}
	return nil
}

// GetSession 按 id 查询对话。
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript 返回某个对话的全部消息。
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Recent 返回跨对话的最近 limit 条消息，按时间正序。
func (s *Service) Recent(_ context.Context, limit int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || len(s.timeline) == 0 {
		return []chat.Message{}
	}
	start := 0
	if len(s.timeline) > limit {
		start = len(s.timeline) - limit
	}
	copied := make([]chat.Message, len(s.timeline)-start)
	copy(copied, s.timeline[start:])
	return copied
}
