package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/model"
	appErr "github.com/xxxsen/docrank/internal/pkg/errors"
)

const (
	DefaultPollInterval    = time.Second
	DefaultRunTimeout      = 60 * time.Second
	DefaultMaxContentChars = 15000

	unknownRunError = "Unknown error"
	promptTemplate  = "Please analyze this document and provide a ranking from 1-10 (10 being highest quality) " +
		"and a brief summary (max 100 words). Document name: %s. Content: %s"
)

type RunnerConfig struct {
	AssistantID     string
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxContentChars int
}

// RunObserver is told how every awaited run ended and how long the wait took.
type RunObserver interface {
	ObserveRun(outcome string, wait time.Duration)
}

type runState int

const (
	stateSubmitted runState = iota
	statePolling
	stateCompleted
	stateFailed
	stateTimedOut
)

func (s runState) String() string {
	switch s {
	case stateSubmitted:
		return "submitted"
	case statePolling:
		return "polling"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Runner submits one document to a thread and waits for the assistant reply.
type Runner struct {
	svc      IService
	cfg      RunnerConfig
	observer RunObserver
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type RunnerOption func(r *Runner)

func WithRunObserver(o RunObserver) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

func NewRunner(svc IService, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRunTimeout
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}
	r := &Runner{
		svc:   svc,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) AssistantID() string {
	return r.cfg.AssistantID
}

func (r *Runner) Service() IService {
	return r.svc
}

// Run posts the document to threadID, runs the assistant on it and returns
// the text of the reply produced by that run.
func (r *Runner) Run(ctx context.Context, threadID string, doc model.Document) (string, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("thread_id", threadID), zap.String("file", doc.Name))
	prompt := BuildPrompt(doc.Name, doc.Content, r.cfg.MaxContentChars)
	if _, err := r.svc.AddUserMessage(ctx, threadID, prompt); err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}
	run, err := r.svc.CreateRun(ctx, threadID, r.cfg.AssistantID)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	logger = logger.With(zap.String("run_id", run.ID))
	logger.Debug("run created", zap.String("status", string(run.Status)))

	run, err = r.await(ctx, threadID, run)
	if err != nil {
		logger.Warn("run did not complete", zap.String("status", string(run.Status)), zap.Error(err))
		return "", err
	}
	msgs, err := r.svc.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	reply, ok := selectReply(msgs, run.ID)
	if !ok {
		return "", appErr.ErrNoAssistantResponse
	}
	text, ok := reply.FirstText()
	if !ok {
		return "", appErr.ErrNoAssistantResponse
	}
	logger.Debug("run completed", zap.Int("reply_len", len(text)))
	return text, nil
}

// await polls the run until it is terminal or the timeout, measured from the
// first status check, is used up.
func (r *Runner) await(ctx context.Context, threadID string, run Run) (Run, error) {
	var (
		state    = stateSubmitted
		start    time.Time
		deadline time.Time
	)
	for {
		switch state {
		case stateSubmitted:
			cur, err := r.svc.GetRun(ctx, threadID, run.ID)
			if err != nil {
				return run, fmt.Errorf("get run: %w", err)
			}
			run = cur
			start = r.now()
			deadline = start.Add(r.cfg.Timeout)
			state = nextState(run.Status)
		case statePolling:
			if !r.now().Before(deadline) {
				state = stateTimedOut
				continue
			}
			if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
				return run, err
			}
			cur, err := r.svc.GetRun(ctx, threadID, run.ID)
			if err != nil {
				return run, fmt.Errorf("get run: %w", err)
			}
			run = cur
			state = nextState(run.Status)
		case stateCompleted:
			r.observe(state, start)
			return run, nil
		case stateFailed:
			r.observe(state, start)
			msg := run.LastError
			if run.Status != RunStatusFailed {
				msg = fmt.Sprintf("run ended with status %s", run.Status)
			}
			if msg == "" {
				msg = unknownRunError
			}
			return run, &appErr.RunFailedError{Status: string(run.Status), Message: msg}
		case stateTimedOut:
			r.observe(state, start)
			return run, appErr.ErrRunTimedOut
		}
	}
}

func (r *Runner) observe(state runState, start time.Time) {
	if r.observer == nil {
		return
	}
	r.observer.ObserveRun(state.String(), r.now().Sub(start))
}

func nextState(status RunStatus) runState {
	switch {
	case status == RunStatusCompleted:
		return stateCompleted
	case status.Terminal():
		return stateFailed
	}
	return statePolling
}

// selectReply picks the assistant message written by runID. Services that do
// not tag messages with their run fall back to the newest assistant message.
func selectReply(msgs []Message, runID string) (Message, bool) {
	tracked := false
	for _, m := range msgs {
		if m.Role == RoleAssistant && m.RunID != "" {
			tracked = true
			break
		}
	}
	var (
		best  Message
		found bool
	)
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		if tracked && m.RunID != runID {
			continue
		}
		if !found || m.CreatedAt > best.CreatedAt {
			best = m
			found = true
		}
	}
	return best, found
}

func BuildPrompt(name, content string, maxChars int) string {
	return fmt.Sprintf(promptTemplate, name, truncateChars(content, maxChars))
}

func truncateChars(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
