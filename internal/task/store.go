package task

import (
	"context"
	"sync"

	"Danni-Agent/internal/a2a"
)

// Store 抽象了任务实体与上下文索引的存取。
//
// 实现必须返回副本：调用方对返回值的修改不会影响已保存的数据。
type Store interface {
	Get(ctx context.Context, id string) (*a2a.Task, error)
	Put(ctx context.Context, task *a2a.Task) error
	// IndexContext 建立 contextID -> taskID 映射，已存在时保持原值并返回 false。
	IndexContext(ctx context.Context, contextID, taskID string) (bool, error)
	LookupContext(ctx context.Context, contextID string) (string, bool, error)
}

// MemoryStore 以内存方式保存任务，进程退出即丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*a2a.Task
	contexts map[string]string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*a2a.Task),
		contexts: make(map[string]string),
	}
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*a2a.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	return t.Clone(), nil
}

// Put 实现 Store 接口。
func (m *MemoryStore) Put(_ context.Context, t *a2a.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t.Clone()
	return nil
}

// IndexContext 实现 Store 接口。
func (m *MemoryStore) IndexContext(_ context.Context, contextID, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.contexts[contextID]; exists {
		return false, nil
	}
	m.contexts[contextID] = taskID
	return true, nil
}

// LookupContext 实现 Store 接口。
func (m *MemoryStore) LookupContext(_ context.Context, contextID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.contexts[contextID]
	return id, ok, nil
}

// Len 返回已保存的任务数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
