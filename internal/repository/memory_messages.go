package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wisefido-crisis/internal/domain"
)

// MemoryMessagesRepo DB 未启用时的内存实现
type MemoryMessagesRepo struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message // id -> message
	byExt    map[string]string          // external id -> id
	seq      map[string]int             // id -> 插入序号（created_at 相同时保持插入顺序）
	next     int
}

func NewMemoryMessagesRepo() *MemoryMessagesRepo {
	return &MemoryMessagesRepo{
		messages: map[string]*domain.Message{},
		byExt:    map[string]string{},
		seq:      map[string]int{},
	}
}

var _ MessagesRepository = (*MemoryMessagesRepo)(nil)

func (r *MemoryMessagesRepo) CreateMessage(_ context.Context, msg *domain.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[msg.ID]; exists {
		return fmt.Errorf("%w: message %s already exists", domain.ErrConflict, msg.ID)
	}
	if msg.ExternalMessageID != "" {
		if _, exists := r.byExt[msg.ExternalMessageID]; exists {
			return fmt.Errorf("%w: external message id %s already exists", domain.ErrConflict, msg.ExternalMessageID)
		}
		r.byExt[msg.ExternalMessageID] = msg.ID
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	r.seq[msg.ID] = r.next
	r.next++
	return nil
}

func (r *MemoryMessagesRepo) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryMessagesRepo) GetMessageByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	r.mu.RLock()
	id, ok := r.byExt[externalID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: external message id %s", domain.ErrNotFound, externalID)
	}
	return r.GetMessage(ctx, id)
}

func (r *MemoryMessagesRepo) ListMessagesByAddress(_ context.Context, address string) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Message{}
	for _, m := range r.messages {
		if m.CounterpartyAddress == address {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] < r.seq[out[j].ID]
	})
	return out, nil
}

func (r *MemoryMessagesRepo) UpdateMessage(_ context.Context, msg *domain.Message, prev domain.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.messages[msg.ID]
	if !ok {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, msg.ID)
	}
	if cur.Status != prev {
		return fmt.Errorf("%w: message %s status is %s, expected %s", domain.ErrConflict, msg.ID, cur.Status, prev)
	}
	if msg.ExternalMessageID != "" && msg.ExternalMessageID != cur.ExternalMessageID {
		if owner, exists := r.byExt[msg.ExternalMessageID]; exists && owner != msg.ID {
			return fmt.Errorf("%w: external message id %s already exists", domain.ErrConflict, msg.ExternalMessageID)
		}
		r.byExt[msg.ExternalMessageID] = msg.ID
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	return nil
}
