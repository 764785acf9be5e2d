package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store 暴露资料快照与变更推送。
type Store interface {
	Snapshot() Profile
	Update(patch Patch) (Profile, error)
	AddTag(tag string) (Profile, error)
	RemoveTag(tag string) (Profile, error)
	// Subscribe 注册变更回调，返回取消订阅函数。回调在锁外执行。
	Subscribe(fn func(Profile)) func()
}

// MemoryStore 内存实现；配置了 path 时每次变更写回 YAML 文件。
type MemoryStore struct {
	mu      sync.Mutex
	profile Profile
	subs    map[int]func(Profile)
	nextSub int
	path    string
}

// NewMemoryStore 以给定资料初始化，缺失字段用默认值补齐。
func NewMemoryStore(initial Profile) *MemoryStore {
	return &MemoryStore{
		profile: initial.WithDefaults(),
		subs:    make(map[int]func(Profile)),
	}
}

// OpenFileStore 从 YAML 文件加载资料，文件不存在时使用默认值。
func OpenFileStore(path string) (*MemoryStore, error) {
	initial := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var stored Profile
		if err := yaml.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
		initial = stored
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	store := NewMemoryStore(initial)
	store.path = path
	return store, nil
}

// Snapshot 返回当前资料的拷贝。
func (s *MemoryStore) Snapshot() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// Update 合并 patch 并通知订阅者。
func (s *MemoryStore) Update(patch Patch) (Profile, error) {
	return s.mutate(func(p Profile) (Profile, error) { return p.Apply(patch) })
}

func (s *MemoryStore) AddTag(tag string) (Profile, error) {
	return s.mutate(func(p Profile) (Profile, error) { return p.AddTag(tag), nil })
}

func (s *MemoryStore) RemoveTag(tag string) (Profile, error) {
	return s.mutate(func(p Profile) (Profile, error) { return p.RemoveTag(tag), nil })
}

func (s *MemoryStore) mutate(fn func(Profile) (Profile, error)) (Profile, error) {
	s.mu.Lock()
	next, err := fn(s.profile.Clone())
	if err != nil {
		s.mu.Unlock()
		return Profile{}, err
	}
	if s.path != "" {
		if err := writeYAML(s.path, next); err != nil {
			s.mu.Unlock()
			return Profile{}, err
		}
	}
	s.profile = next
	subs := make([]func(Profile), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.Clone())
	}
	return next.Clone(), nil
}

// Subscribe 注册变更回调。
func (s *MemoryStore) Subscribe(fn func(Profile)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func writeYAML(path string, p Profile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return os.Rename(tmp, path)
}
