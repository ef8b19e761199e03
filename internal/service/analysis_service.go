package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/assistant"
	"github.com/xxxsen/docrank/internal/extract"
	"github.com/xxxsen/docrank/internal/metrics"
	"github.com/xxxsen/docrank/internal/model"
	appErr "github.com/xxxsen/docrank/internal/pkg/errors"
)

const errorSummaryPrefix = "Error: "

// AnalysisService ranks a batch of documents on one shared assistant thread.
type AnalysisService struct {
	runner       *assistant.Runner
	deleteThread bool
	metrics      *metrics.Metrics
	progress     ProgressFunc
}

// ProgressFunc is called after each document with the number finished so far.
type ProgressFunc func(done, total int, res model.DocumentResult)

type AnalysisOption func(s *AnalysisService)

func WithDeleteThread(v bool) AnalysisOption {
	return func(s *AnalysisService) {
		s.deleteThread = v
	}
}

func WithMetrics(m *metrics.Metrics) AnalysisOption {
	return func(s *AnalysisService) {
		s.metrics = m
	}
}

func WithProgress(fn ProgressFunc) AnalysisOption {
	return func(s *AnalysisService) {
		s.progress = fn
	}
}

func NewAnalysisService(runner *assistant.Runner, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessAll analyzes docs in order and returns one result per document.
// A document that fails is reported with ranking 0 and an "Error: " summary.
// Only the batch preconditions and thread creation fail the whole call.
func (s *AnalysisService) ProcessAll(ctx context.Context, docs []model.Document) ([]model.DocumentResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int("documents", len(docs)))
	start := time.Now()
	if len(docs) == 0 {
		s.metrics.ObserveBatch("rejected", 0)
		return nil, appErr.ErrNoDocuments
	}
	if s.runner == nil || strings.TrimSpace(s.runner.AssistantID()) == "" {
		s.metrics.ObserveBatch("rejected", 0)
		return nil, appErr.ErrMissingAssistantConfig
	}
	svc := s.runner.Service()
	threadID, err := svc.CreateThread(ctx)
	if err != nil {
		logger.Error("create thread failed", zap.Error(err))
		s.metrics.ObserveBatch("failed", time.Since(start))
		return nil, fmt.Errorf("create thread: %w", err)
	}
	logger = logger.With(zap.String("thread_id", threadID))
	logger.Info("batch started")

	results := make([]model.DocumentResult, 0, len(docs))
	failed := 0
	for i, doc := range docs {
		res := s.processOne(ctx, threadID, doc)
		if res.Failed() {
			failed++
		}
		s.metrics.ObserveDocument(res.Failed())
		results = append(results, res)
		if s.progress != nil {
			s.progress(i+1, len(docs), res)
		}
	}
	if s.deleteThread {
		s.cleanupThread(ctx, svc, threadID)
	}
	s.metrics.ObserveBatch("completed", time.Since(start))
	logger.Info("batch finished", zap.Int("failed", failed), zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (s *AnalysisService) processOne(ctx context.Context, threadID string, doc model.Document) model.DocumentResult {
	reply, err := s.runner.Run(ctx, threadID, doc)
	if err != nil {
		logutil.GetLogger(ctx).Error("document analysis failed",
			zap.String("thread_id", threadID), zap.String("file", doc.Name), zap.Error(err))
		return model.DocumentResult{
			FileName: doc.Name,
			Ranking:  0,
			Summary:  errorSummaryPrefix + err.Error(),
		}
	}
	parsed := extract.Extract(reply)
	logutil.GetLogger(ctx).Debug("document analyzed",
		zap.String("file", doc.Name), zap.Int("ranking", parsed.Ranking))
	return model.DocumentResult{
		FileName: doc.Name,
		Ranking:  parsed.Ranking,
		Summary:  parsed.Summary,
	}
}

func (s *AnalysisService) cleanupThread(ctx context.Context, svc assistant.IService, threadID string) {
	deleter, ok := svc.(assistant.IThreadDeleter)
	if !ok {
		return
	}
	if err := deleter.DeleteThread(context.WithoutCancel(ctx), threadID); err != nil {
		logutil.GetLogger(ctx).Warn("delete thread failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}
