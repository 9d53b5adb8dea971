package store

import (
	"context"
	"sync"
	"time"

	"github.com/hildam/deep-dive-go/entity/model"
)

// Memory 进程内存储，读写都复制记录
type Memory struct {
	mu        sync.RWMutex
	reports   map[string]model.DeepResearch
	workflows map[string]model.Workflow
	documents []model.Document
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{
		reports:   make(map[string]model.DeepResearch),
		workflows: make(map[string]model.Workflow),
	}
}

func (m *Memory) InsertReport(ctx context.Context, r *model.DeepResearch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reports[r.ID] = cloneReport(*r)
	return nil
}

func (m *Memory) GetReport(ctx context.Context, userID, id string) (*model.DeepResearch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok || r.UserID != userID {
		return nil, ErrNotFound
	}
	out := cloneReport(r)
	return &out, nil
}

func (m *Memory) UpdateReport(ctx context.Context, r *model.DeepResearch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.reports[r.ID]
	if !ok || old.UserID != r.UserID {
		return ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	m.reports[r.ID] = cloneReport(*r)
	return nil
}

func (m *Memory) InsertWorkflow(ctx context.Context, w *model.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	m.workflows[w.ID] = cloneWorkflow(*w)
	return nil
}

func (m *Memory) GetWorkflow(ctx context.Context, userID, id string) (*model.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[id]
	if !ok || w.UserID != userID {
		return nil, ErrNotFound
	}
	out := cloneWorkflow(w)
	return &out, nil
}

func (m *Memory) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.workflows[w.ID]
	if !ok || old.UserID != w.UserID {
		return ErrNotFound
	}
	w.CreatedAt = old.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	m.workflows[w.ID] = cloneWorkflow(*w)
	return nil
}

func (m *Memory) InsertDocument(ctx context.Context, d *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, *d)
	return nil
}

func (m *Memory) ListDocuments(ctx context.Context, userID string) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Document
	for _, d := range m.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func cloneReport(r model.DeepResearch) model.DeepResearch {
	r.Plan = append([]model.Section(nil), r.Plan...)
	r.Sources = append([]string(nil), r.Sources...)
	r.Insights = append([]string(nil), r.Insights...)
	return r
}

func cloneWorkflow(w model.Workflow) model.Workflow {
	w.Messages = append([]model.WorkflowMessage(nil), w.Messages...)
	return w
}
