// Package viewmodel caches daemon state for the TUI.
package viewmodel

import (
	"context"
	"sort"
	"sync"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/delivery"
	"github.com/matheus3301/wpprelay/internal/model"
)

const (
	conversationLimit = 100
	messageLimit      = 200
)

// Client is the part of the control API client the view model reads.
type Client interface {
	Status(ctx context.Context) (api.StatusReport, error)
	ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID, body string) (model.Message, error)
}

// ViewModel holds what the views render. Loads run on background goroutines;
// getters return copies.
type ViewModel struct {
	mu sync.RWMutex

	client        Client
	status        *api.StatusReport
	conversations []model.Conversation
	active        string
	messages      []model.Message
}

// New creates a view model backed by c.
func New(c Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the daemon status. On error the cached status is cleared.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if err != nil {
		vm.status = nil
		return err
	}
	vm.status = &st
	return nil
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.client.ListConversations(ctx, conversationLimit, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// Open makes conversationID active and loads its recent messages.
func (vm *ViewModel) Open(ctx context.Context, conversationID string) error {
	msgs, err := vm.client.ListMessages(ctx, conversationID, messageLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = conversationID
	vm.messages = msgs
	vm.mu.Unlock()
	return nil
}

// Close clears the active conversation.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.active = ""
	vm.messages = nil
	vm.mu.Unlock()
}

// Send posts body to the active conversation and merges the stored result.
func (vm *ViewModel) Send(ctx context.Context, body string) error {
	conv := vm.Active()
	if conv == "" {
		return nil
	}
	msg, err := vm.client.SendMessage(ctx, conv, body)
	if err != nil {
		return err
	}
	vm.merge(conv, msg)
	return nil
}

// ApplyFrame merges a live frame for conversationID. It reports whether the
// thread changed.
func (vm *ViewModel) ApplyFrame(conversationID string, f delivery.Frame) bool {
	if f.Message == nil {
		return false
	}
	return vm.merge(conversationID, *f.Message)
}

// merge inserts or replaces m by id. A lower revision never replaces a newer
// copy, so a live frame racing the initial load cannot go backwards.
func (vm *ViewModel) merge(conversationID string, m model.Message) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if conversationID != vm.active || m.ConversationID != vm.active {
		return false
	}
	for i, cur := range vm.messages {
		if cur.ID != m.ID {
			continue
		}
		if m.Revision != 0 && m.Revision <= cur.Revision {
			return false
		}
		vm.messages[i] = m
		return true
	}
	vm.messages = append(vm.messages, m)
	sort.SliceStable(vm.messages, func(i, j int) bool {
		return vm.messages[i].CreatedAt.Before(vm.messages[j].CreatedAt)
	})
	return true
}

// Status returns the last loaded status, or nil.
func (vm *ViewModel) Status() *api.StatusReport {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return nil
	}
	st := *vm.status
	return &st
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []model.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]model.Conversation(nil), vm.conversations...)
}

// Active returns the open conversation, or "".
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Messages returns a snapshot of the open thread, oldest first.
func (vm *ViewModel) Messages() []model.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]model.Message(nil), vm.messages...)
}
