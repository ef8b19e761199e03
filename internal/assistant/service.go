// Package assistant drives conversations with a remote assistant service:
// threads accumulate messages and runs produce assistant replies.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether the run will not change status anymore.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ContentTypeText = "text"
)

type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	LastError string
}

type ContentPart struct {
	Type string
	Text string
}

type Message struct {
	ID        string
	Role      string
	RunID     string
	CreatedAt int64
	Content   []ContentPart
}

// FirstText returns the first text-typed content segment.
func (m Message) FirstText() (string, bool) {
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			return part.Text, true
		}
	}
	return "", false
}

// IService is the capability set a remote assistant vendor has to offer.
type IService interface {
	Name() string
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID string, content string) (Message, error)
	CreateRun(ctx context.Context, threadID string, assistantID string) (Run, error)
	GetRun(ctx context.Context, threadID string, runID string) (Run, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// IThreadDeleter is implemented by backends able to drop a thread once a
// batch is done with it.
type IThreadDeleter interface {
	DeleteThread(ctx context.Context, threadID string) error
}

type ServiceFactory func(args interface{}) (IService, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ServiceFactory{}
)

func Register(name string, factory ServiceFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewService(name string, args interface{}) (IService, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("assistant.backend is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported assistant backend: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("assistant backend config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode assistant backend config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode assistant backend config: %w", err)
	}
	return nil
}
