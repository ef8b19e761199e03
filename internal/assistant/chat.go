package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/ai"
)

const (
	defaultChatInstructions = "You are a document reviewer. Judge the quality of the document you are given. " +
		"Reply with a JSON object inside a ```json fence with the keys \"ranking\" (integer from 1 to 10) " +
		"and \"summary\" (at most 100 words)."
	defaultChatRunTimeout = DefaultRunTimeout
	defaultChatThreadIdle = 30 * time.Minute
)

type chatProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type chatConfig struct {
	chatProviderConfig
	Instructions      string               `json:"instructions"`
	RunTimeoutSeconds int                  `json:"run_timeout_seconds"`
	ThreadIdleMinutes int                  `json:"thread_idle_minutes"`
	Fallbacks         []chatProviderConfig `json:"fallbacks"`
}

type chatThread struct {
	messages []Message
	runs     map[string]*Run
	// consumed counts the messages already handed to a run.
	consumed int
	active   string
	cancel   context.CancelFunc
	lastUsed time.Time
}

// chatService emulates assistant threads in process on top of a plain
// chat-completion generator. Runs execute in the background and are
// observed through GetRun, the same way a remote service is polled.
type chatService struct {
	generator    ai.IGenerator
	instructions string
	runTimeout   time.Duration
	threadIdle   time.Duration
	now          func() time.Time

	mu      sync.Mutex
	wg      sync.WaitGroup
	threads map[string]*chatThread
}

func NewChatService(generator ai.IGenerator, instructions string, runTimeout time.Duration) IService {
	return newChatService(generator, instructions, runTimeout, defaultChatThreadIdle)
}

func newChatService(generator ai.IGenerator, instructions string, runTimeout, threadIdle time.Duration) *chatService {
	if threadIdle <= 0 {
		threadIdle = defaultChatThreadIdle
	}
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultChatInstructions
	}
	if runTimeout <= 0 {
		runTimeout = defaultChatRunTimeout
	}
	return &chatService{
		generator:    generator,
		instructions: instructions,
		runTimeout:   runTimeout,
		threadIdle:   threadIdle,
		now:          time.Now,
		threads:      make(map[string]*chatThread),
	}
}

func (s *chatService) Name() string {
	return "chat"
}

func (s *chatService) CreateThread(ctx context.Context) (string, error) {
	if s.generator == nil {
		return "", ai.ErrUnavailable
	}
	id := "thread_" + uuid.NewString()
	s.mu.Lock()
	removed := s.sweepIdleLocked()
	s.threads[id] = &chatThread{runs: make(map[string]*Run), lastUsed: s.now()}
	s.mu.Unlock()
	if removed > 0 {
		logutil.GetLogger(ctx).Debug("idle chat threads dropped", zap.Int("count", removed))
	}
	return id, nil
}

func (s *chatService) AddUserMessage(ctx context.Context, threadID string, content string) (Message, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, err := s.threadLocked(threadID)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      RoleUser,
		CreatedAt: s.now().Unix(),
		Content:   []ContentPart{{Type: ContentTypeText, Text: content}},
	}
	thread.messages = append(thread.messages, msg)
	return msg, nil
}

func (s *chatService) CreateRun(ctx context.Context, threadID string, assistantID string) (Run, error) {
	s.mu.Lock()
	thread, err := s.threadLocked(threadID)
	if err != nil {
		s.mu.Unlock()
		return Run{}, err
	}
	run := &Run{
		ID:       "run_" + uuid.NewString(),
		ThreadID: threadID,
		Status:   RunStatusQueued,
	}
	s.supersedeLocked(thread)
	thread.runs[run.ID] = run
	prompt := s.buildPromptLocked(thread)
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
	thread.active = run.ID
	thread.cancel = cancel
	snapshot := *run
	s.mu.Unlock()

	logutil.GetLogger(ctx).Debug("chat run queued",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
		zap.String("assistant_id", assistantID),
	)
	s.wg.Add(1)
	go s.execute(runCtx, cancel, threadID, run.ID, prompt)
	return snapshot, nil
}

func (s *chatService) GetRun(ctx context.Context, threadID string, runID string) (Run, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, err := s.threadLocked(threadID)
	if err != nil {
		return Run{}, err
	}
	run, ok := thread.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("run not found: %s", runID)
	}
	return *run, nil
}

// ListMessages returns the thread transcript newest first.
func (s *chatService) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, err := s.threadLocked(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(thread.messages))
	for i := len(thread.messages) - 1; i >= 0; i-- {
		out = append(out, thread.messages[i])
	}
	return out, nil
}

func (s *chatService) DeleteThread(ctx context.Context, threadID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, err := s.threadLocked(threadID)
	if err != nil {
		return err
	}
	if thread.cancel != nil {
		thread.cancel()
	}
	delete(s.threads, threadID)
	return nil
}

// wait blocks until every background run has finished.
func (s *chatService) wait() {
	s.wg.Wait()
}

func (s *chatService) threadLocked(threadID string) (*chatThread, error) {
	thread, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread not found: %s", threadID)
	}
	thread.lastUsed = s.now()
	return thread, nil
}

// buildPromptLocked joins the user messages posted since the previous run
// and marks them consumed, so a run that fails does not leak its document
// into the next one.
func (s *chatService) buildPromptLocked(thread *chatThread) string {
	pending := make([]string, 0, 1)
	for _, msg := range thread.messages[thread.consumed:] {
		if msg.Role != RoleUser {
			continue
		}
		if text, ok := msg.FirstText(); ok {
			pending = append(pending, text)
		}
	}
	thread.consumed = len(thread.messages)
	return s.instructions + "\n\n" + strings.Join(pending, "\n\n")
}

// supersedeLocked cancels the run still executing on thread, if any. A thread
// never has two generations in flight.
func (s *chatService) supersedeLocked(thread *chatThread) {
	if thread.cancel == nil {
		return
	}
	if prev, ok := thread.runs[thread.active]; ok && !prev.Status.Terminal() {
		prev.Status = RunStatusCancelled
		prev.LastError = "superseded by a newer run"
	}
	thread.cancel()
	thread.cancel = nil
	thread.active = ""
}

// sweepIdleLocked drops threads untouched for threadIdle that have no run in
// flight.
func (s *chatService) sweepIdleLocked() int {
	cutoff := s.now().Add(-s.threadIdle)
	removed := 0
	for id, thread := range s.threads {
		if thread.cancel != nil || !thread.lastUsed.Before(cutoff) {
			continue
		}
		delete(s.threads, id)
		removed++
	}
	return removed
}

func (s *chatService) execute(ctx context.Context, cancel context.CancelFunc, threadID, runID, prompt string) {
	defer s.wg.Done()
	defer cancel()

	s.setStatus(threadID, runID, RunStatusInProgress, "")
	reply, err := s.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty ai response")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return
	}
	run, ok := thread.runs[runID]
	if !ok {
		return
	}
	if thread.active == runID {
		thread.active = ""
		thread.cancel = nil
	}
	thread.lastUsed = s.now()
	if run.Status.Terminal() {
		return
	}
	if err != nil {
		logutil.GetLogger(ctx).Warn("chat run failed",
			zap.String("thread_id", threadID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		run.Status = RunStatusFailed
		run.LastError = err.Error()
		return
	}
	thread.messages = append(thread.messages, Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      RoleAssistant,
		RunID:     runID,
		CreatedAt: s.now().Unix(),
		Content:   []ContentPart{{Type: ContentTypeText, Text: reply}},
	})
	run.Status = RunStatusCompleted
}

func (s *chatService) setStatus(threadID, runID string, status RunStatus, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return
	}
	if run, ok := thread.runs[runID]; ok && !run.Status.Terminal() {
		run.Status = status
		run.LastError = lastError
	}
}

func buildChatGenerator(cfg chatProviderConfig) (ai.IGenerator, error) {
	provider, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	return ai.NewGenerator(provider, cfg.Model), nil
}

func createChatService(args interface{}) (IService, error) {
	cfg := &chatConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	entries := make([]ai.GeneratorEntry, 0, 1+len(cfg.Fallbacks))
	for _, item := range append([]chatProviderConfig{cfg.chatProviderConfig}, cfg.Fallbacks...) {
		gen, err := buildChatGenerator(item)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %q: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: item.Provider + ":" + item.Model, Generator: gen})
	}
	generator := entries[0].Generator
	if len(entries) > 1 {
		generator = ai.NewGroupGenerator(entries)
	}
	return newChatService(generator, cfg.Instructions,
		time.Duration(cfg.RunTimeoutSeconds)*time.Second,
		time.Duration(cfg.ThreadIdleMinutes)*time.Minute,
	), nil
}

func init() {
	Register("chat", createChatService)
}
