package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrank/internal/model"
	appErr "github.com/xxxsen/docrank/internal/pkg/errors"
)

type fakeService struct {
	mu        sync.Mutex
	statuses  []RunStatus
	lastError string
	reply     *Message
	history   []Message
	getRuns   int
	calls     []string
	prompts   []string
}

func (f *fakeService) Name() string { return "fake" }

func (f *fakeService) CreateThread(ctx context.Context) (string, error) {
	f.record("create_thread")
	return "thread_1", nil
}

func (f *fakeService) AddUserMessage(ctx context.Context, threadID string, content string) (Message, error) {
	f.record("add_message")
	f.mu.Lock()
	f.prompts = append(f.prompts, content)
	f.mu.Unlock()
	return Message{ID: "msg_user", Role: RoleUser}, nil
}

func (f *fakeService) CreateRun(ctx context.Context, threadID string, assistantID string) (Run, error) {
	f.record("create_run")
	return Run{ID: "run_1", ThreadID: threadID, Status: RunStatusQueued}, nil
}

func (f *fakeService) GetRun(ctx context.Context, threadID string, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.getRuns
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.getRuns++
	return Run{ID: runID, ThreadID: threadID, Status: f.statuses[idx], LastError: f.lastError}, nil
}

func (f *fakeService) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	f.record("list_messages")
	out := append([]Message{}, f.history...)
	if f.reply != nil {
		out = append([]Message{*f.reply}, out...)
	}
	return out, nil
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return ctx.Err()
}

type recordingObserver struct {
	outcomes []string
	waits    []time.Duration
}

func (o *recordingObserver) ObserveRun(outcome string, wait time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
	o.waits = append(o.waits, wait)
}

func newTestRunner(svc IService, opts ...RunnerOption) (*Runner, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewRunner(svc, RunnerConfig{AssistantID: "asst_1"}, opts...)
	r.now = clock.now
	r.sleep = clock.sleep
	return r, clock
}

func textMessage(role, runID string, createdAt int64, text string) *Message {
	return &Message{
		ID:        "msg_" + runID,
		Role:      role,
		RunID:     runID,
		CreatedAt: createdAt,
		Content:   []ContentPart{{Type: ContentTypeText, Text: text}},
	}
}

func TestRunner_CompletesAfterPolling(t *testing.T) {
	svc := &fakeService{
		statuses: []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusCompleted},
		reply:    textMessage(RoleAssistant, "run_1", 10, "ranking: 8"),
	}
	observer := &recordingObserver{}
	r, _ := newTestRunner(svc, WithRunObserver(observer))

	text, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt", Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ranking: 8", text)
	require.Equal(t, 3, svc.getRuns)
	require.Equal(t, []string{"add_message", "create_run", "list_messages"}, svc.calls)
	require.Equal(t, []string{"completed"}, observer.outcomes)
	require.Equal(t, []time.Duration{2 * time.Second}, observer.waits)
	require.Contains(t, svc.prompts[0], "Document name: a.txt.")
	require.True(t, strings.HasSuffix(svc.prompts[0], "Content: hello"))
}

func TestRunner_Failed(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusInProgress, RunStatusFailed}, lastError: "rate limit exceeded"}
	r, _ := newTestRunner(svc)

	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrRunFailed)
	var runErr *appErr.RunFailedError
	require.True(t, errors.As(err, &runErr))
	require.Equal(t, "rate limit exceeded", runErr.Message)
	require.Equal(t, "assistant run failed: rate limit exceeded", err.Error())
	require.NotContains(t, svc.calls, "list_messages")
}

func TestRunner_FailedWithoutDetail(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusFailed}}
	r, _ := newTestRunner(svc)

	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.EqualError(t, err, "assistant run failed: Unknown error")
}

func TestRunner_OtherTerminalStatus(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusQueued, RunStatusExpired}}
	r, _ := newTestRunner(svc)

	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	var runErr *appErr.RunFailedError
	require.True(t, errors.As(err, &runErr))
	require.Equal(t, "expired", runErr.Status)
	require.Contains(t, err.Error(), "expired")
}

func TestRunner_TimesOut(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusInProgress}}
	observer := &recordingObserver{}
	r, clock := newTestRunner(svc, WithRunObserver(observer))
	start := clock.t

	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrRunTimedOut)
	require.Contains(t, err.Error(), "timed out")
	require.Equal(t, 61, svc.getRuns)
	require.Equal(t, start.Add(DefaultRunTimeout), clock.t)
	require.Equal(t, []string{"timed_out"}, observer.outcomes)
}

func TestRunner_CompletedOnLastPollIsNotTimeout(t *testing.T) {
	statuses := make([]RunStatus, 0, 61)
	for i := 0; i < 60; i++ {
		statuses = append(statuses, RunStatusInProgress)
	}
	statuses = append(statuses, RunStatusCompleted)
	svc := &fakeService{statuses: statuses, reply: textMessage(RoleAssistant, "run_1", 1, "late")}
	r, _ := newTestRunner(svc)

	text, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.NoError(t, err)
	require.Equal(t, "late", text)
}

func TestRunner_NoAssistantResponse(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusCompleted}}
	r, _ := newTestRunner(svc)
	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrNoAssistantResponse)

	svc = &fakeService{
		statuses: []RunStatus{RunStatusCompleted},
		reply: &Message{
			Role:    RoleAssistant,
			RunID:   "run_1",
			Content: []ContentPart{{Type: "image_file"}},
		},
	}
	r, _ = newTestRunner(svc)
	_, err = r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrNoAssistantResponse)
}

func TestRunner_IgnoresRepliesOfEarlierRuns(t *testing.T) {
	svc := &fakeService{
		statuses: []RunStatus{RunStatusCompleted},
		history:  []Message{*textMessage(RoleAssistant, "run_0", 5, "stale")},
	}
	r, _ := newTestRunner(svc)
	_, err := r.Run(context.Background(), "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrNoAssistantResponse)
}

func TestRunner_ContextCanceled(t *testing.T) {
	svc := &fakeService{statuses: []RunStatus{RunStatusInProgress}}
	r := NewRunner(svc, RunnerConfig{AssistantID: "asst_1", PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "thread_1", model.Document{Name: "a.txt"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSelectReply(t *testing.T) {
	oldestFirst := []Message{
		*textMessage(RoleUser, "", 1, "doc 1"),
		*textMessage(RoleAssistant, "run_a", 2, "reply a"),
		*textMessage(RoleUser, "", 3, "doc 2"),
		*textMessage(RoleAssistant, "run_b", 4, "reply b"),
	}
	msg, ok := selectReply(oldestFirst, "run_b")
	require.True(t, ok)
	text, _ := msg.FirstText()
	require.Equal(t, "reply b", text)

	untagged := []Message{
		*textMessage(RoleAssistant, "", 2, "older"),
		*textMessage(RoleAssistant, "", 7, "newest"),
		*textMessage(RoleAssistant, "", 7, "same second, later in list"),
		*textMessage(RoleUser, "", 9, "question"),
	}
	msg, ok = selectReply(untagged, "run_x")
	require.True(t, ok)
	text, _ = msg.FirstText()
	require.Equal(t, "newest", text)

	_, ok = selectReply([]Message{*textMessage(RoleUser, "", 1, "q")}, "run_x")
	require.False(t, ok)
}

func TestBuildPrompt_TruncatesByCharacters(t *testing.T) {
	content := strings.Repeat("é", 20)
	prompt := BuildPrompt("doc.pdf", content, 5)
	require.True(t, strings.HasSuffix(prompt, "Content: ééééé"))
	require.Contains(t, prompt, "ranking from 1-10")
	require.Contains(t, prompt, "max 100 words")

	long := strings.Repeat("a", DefaultMaxContentChars+100)
	prompt = BuildPrompt("doc.txt", long, DefaultMaxContentChars)
	require.True(t, strings.HasSuffix(prompt, "Content: "+strings.Repeat("a", DefaultMaxContentChars)))
}
