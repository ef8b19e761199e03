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

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	replies []string
	err     error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

func TestChatService_RunLifecycle(t *testing.T) {
	gen := &recordingGenerator{replies: []string{"first reply", "second reply"}}
	svc := NewChatService(gen, "INSTRUCTIONS", time.Second).(*chatService)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	_, err = svc.AddUserMessage(ctx, threadID, "doc one")
	require.NoError(t, err)
	run1, err := svc.CreateRun(ctx, threadID, "asst")
	require.NoError(t, err)
	require.Equal(t, RunStatusQueued, run1.Status)
	svc.wait()

	got, err := svc.GetRun(ctx, threadID, run1.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, got.Status)

	_, err = svc.AddUserMessage(ctx, threadID, "doc two")
	require.NoError(t, err)
	run2, err := svc.CreateRun(ctx, threadID, "asst")
	require.NoError(t, err)
	svc.wait()

	msgs, err := svc.ListMessages(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Equal(t, run2.ID, msgs[0].RunID)
	text, _ := msgs[0].FirstText()
	require.Equal(t, "second reply", text)

	require.Equal(t, []string{"INSTRUCTIONS\n\ndoc one", "INSTRUCTIONS\n\ndoc two"}, gen.prompts)

	require.NoError(t, svc.DeleteThread(ctx, threadID))
	_, err = svc.ListMessages(ctx, threadID)
	require.Error(t, err)
}

func TestChatService_GeneratorFailure(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("provider down")}
	svc := NewChatService(gen, "", time.Second).(*chatService)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.AddUserMessage(ctx, threadID, "doc")
	require.NoError(t, err)
	run, err := svc.CreateRun(ctx, threadID, "asst")
	require.NoError(t, err)
	svc.wait()

	got, err := svc.GetRun(ctx, threadID, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, got.Status)
	require.Equal(t, "provider down", got.LastError)
}

func TestChatService_UnknownThread(t *testing.T) {
	svc := NewChatService(&recordingGenerator{replies: []string{"x"}}, "", time.Second)
	_, err := svc.AddUserMessage(context.Background(), "thread_missing", "doc")
	require.Error(t, err)
	_, err = svc.CreateRun(context.Background(), "thread_missing", "asst")
	require.Error(t, err)
}

func TestChatService_WithoutGenerator(t *testing.T) {
	svc := NewChatService(nil, "", time.Second)
	_, err := svc.CreateThread(context.Background())
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}

func TestRunner_OverChatService(t *testing.T) {
	gen := &recordingGenerator{replies: []string{"```json\n{\"ranking\": 7, \"summary\": \"Good.\"}\n```"}}
	svc := NewChatService(gen, "", time.Second)
	r := NewRunner(svc, RunnerConfig{AssistantID: "asst", PollInterval: 5 * time.Millisecond, Timeout: 2 * time.Second})

	threadID, err := svc.CreateThread(context.Background())
	require.NoError(t, err)
	text, err := r.Run(context.Background(), threadID, model.Document{Name: "a.txt", Content: "body"})
	require.NoError(t, err)
	require.Contains(t, text, `"ranking": 7`)
}

func TestNewService_Registry(t *testing.T) {
	svc, err := NewService("openai", map[string]interface{}{"api_key": "k", "base_url": "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "openai", svc.Name())
	_, ok := svc.(IThreadDeleter)
	require.True(t, ok)

	svc, err = NewService("chat", map[string]interface{}{
		"provider": "openrouter",
		"model":    "some/model",
		"data":     map[string]interface{}{"api_key": "k"},
		"fallbacks": []map[string]interface{}{
			{"provider": "gemini", "model": "gemini-2.0-flash", "data": map[string]interface{}{"api_key": "k"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "chat", svc.Name())

	_, err = NewService("chat", map[string]interface{}{"provider": "nope"})
	require.Error(t, err)
	_, err = NewService("", nil)
	require.Error(t, err)
	_, err = NewService("other", map[string]interface{}{})
	require.EqualError(t, err, "unsupported assistant backend: other")
}

func TestOpenAIService_UnavailableWithoutKey(t *testing.T) {
	svc, err := NewService("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = svc.CreateThread(context.Background())
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}

func TestNormalizeOpenAIBaseURL(t *testing.T) {
	require.Equal(t, "", normalizeOpenAIBaseURL(" "))
	require.Equal(t, "https://proxy.local/v1", normalizeOpenAIBaseURL("https://proxy.local"))
	require.Equal(t, "https://proxy.local/v1", normalizeOpenAIBaseURL("https://proxy.local/v1/"))
	require.Equal(t, "https://proxy.local/openai/v1", normalizeOpenAIBaseURL("https://proxy.local/openai"))
}

type funcGenerator func(ctx context.Context, prompt string) (string, error)

func (f funcGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestRunner_FailedRunDoesNotLeakIntoNextDocument(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	gen := funcGenerator(func(ctx context.Context, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		prompts = append(prompts, prompt)
		if len(prompts) == 1 {
			return "", errors.New("provider down")
		}
		return "```json\n{\"ranking\": 6, \"summary\": \"second\"}\n```", nil
	})
	svc := NewChatService(gen, "INSTR", time.Second)
	r := NewRunner(svc, RunnerConfig{AssistantID: "asst", PollInterval: 5 * time.Millisecond, Timeout: 2 * time.Second})
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = r.Run(ctx, threadID, model.Document{Name: "first.txt", Content: "FIRST-DOC"})
	require.ErrorIs(t, err, appErr.ErrRunFailed)

	text, err := r.Run(ctx, threadID, model.Document{Name: "second.txt", Content: "SECOND-DOC"})
	require.NoError(t, err)
	require.Contains(t, text, "second")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, prompts, 2)
	require.Contains(t, prompts[1], "SECOND-DOC")
	require.NotContains(t, prompts[1], "FIRST-DOC")
}

func TestChatService_NewRunSupersedesRunningOne(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "slow doc") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast reply", nil
	})
	svc := NewChatService(gen, "", time.Minute).(*chatService)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.AddUserMessage(ctx, threadID, "slow doc")
	require.NoError(t, err)
	run1, err := svc.CreateRun(ctx, threadID, "asst")
	require.NoError(t, err)

	_, err = svc.AddUserMessage(ctx, threadID, "fast doc")
	require.NoError(t, err)
	run2, err := svc.CreateRun(ctx, threadID, "asst")
	require.NoError(t, err)
	svc.wait()

	got1, err := svc.GetRun(ctx, threadID, run1.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCancelled, got1.Status)
	got2, err := svc.GetRun(ctx, threadID, run2.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, got2.Status)

	msgs, err := svc.ListMessages(ctx, threadID)
	require.NoError(t, err)
	for _, msg := range msgs {
		require.NotEqual(t, run1.ID, msg.RunID)
	}
}

func TestChatService_DropsIdleThreads(t *testing.T) {
	release := make(chan struct{})
	gen := funcGenerator(func(ctx context.Context, prompt string) (string, error) {
		<-release
		return "reply", nil
	})
	svc := newChatService(gen, "", time.Minute, 30*time.Minute)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := svc.CreateThread(ctx)
		require.NoError(t, err)
	}
	busy, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.AddUserMessage(ctx, busy, "doc")
	require.NoError(t, err)
	_, err = svc.CreateRun(ctx, busy, "asst")
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	fresh, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	svc.mu.Lock()
	require.Len(t, svc.threads, 2)
	require.Contains(t, svc.threads, busy)
	require.Contains(t, svc.threads, fresh)
	svc.mu.Unlock()

	close(release)
	svc.wait()
}
