package assistant

import (
	"context"
	neturl "net/url"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	appErr "github.com/xxxsen/docrank/internal/pkg/errors"
)

const defaultOpenAIPageSize = 20

type openAIConfig struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	PageSize int    `json:"page_size"`
}

// openAIService talks to the OpenAI Assistants API.
type openAIService struct {
	apiKey   string
	client   openai.Client
	pageSize int64
}

func (s *openAIService) Name() string {
	return "openai"
}

func (s *openAIService) CreateThread(ctx context.Context) (string, error) {
	if s.apiKey == "" {
		return "", appErr.ErrUnavailable
	}
	thread, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (s *openAIService) AddUserMessage(ctx context.Context, threadID string, content string) (Message, error) {
	if s.apiKey == "" {
		return Message{}, appErr.ErrUnavailable
	}
	msg, err := s.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return Message{}, err
	}
	return fromOpenAIMessage(*msg), nil
}

func (s *openAIService) CreateRun(ctx context.Context, threadID string, assistantID string) (Run, error) {
	if s.apiKey == "" {
		return Run{}, appErr.ErrUnavailable
	}
	run, err := s.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return Run{}, err
	}
	return fromOpenAIRun(*run), nil
}

func (s *openAIService) GetRun(ctx context.Context, threadID string, runID string) (Run, error) {
	if s.apiKey == "" {
		return Run{}, appErr.ErrUnavailable
	}
	run, err := s.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return Run{}, err
	}
	return fromOpenAIRun(*run), nil
}

// ListMessages returns the newest page of the thread, newest first.
func (s *openAIService) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	if s.apiKey == "" {
		return nil, appErr.ErrUnavailable
	}
	page, err := s.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(s.pageSize),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(page.Data))
	for _, item := range page.Data {
		out = append(out, fromOpenAIMessage(item))
	}
	return out, nil
}

func (s *openAIService) DeleteThread(ctx context.Context, threadID string) error {
	if s.apiKey == "" {
		return appErr.ErrUnavailable
	}
	_, err := s.client.Beta.Threads.Delete(ctx, threadID)
	return err
}

func fromOpenAIRun(r openai.Run) Run {
	return Run{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Status:    RunStatus(r.Status),
		LastError: r.LastError.Message,
	}
}

func fromOpenAIMessage(m openai.Message) Message {
	out := Message{
		ID:        m.ID,
		Role:      string(m.Role),
		RunID:     m.RunID,
		CreatedAt: m.CreatedAt,
		Content:   make([]ContentPart, 0, len(m.Content)),
	}
	for _, c := range m.Content {
		part := ContentPart{Type: c.Type}
		if c.Type == ContentTypeText {
			part.Text = c.Text.Value
		}
		out.Content = append(out.Content, part)
	}
	return out
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func createOpenAIService(args interface{}) (IService, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := normalizeOpenAIBaseURL(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultOpenAIPageSize
	}
	return &openAIService{
		apiKey:   apiKey,
		client:   openai.NewClient(opts...),
		pageSize: int64(pageSize),
	}, nil
}

func init() {
	Register("openai", createOpenAIService)
}
