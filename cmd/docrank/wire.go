package main

import (
	"fmt"
	"time"

	"github.com/xxxsen/docrank/internal/assistant"
	"github.com/xxxsen/docrank/internal/config"
	"github.com/xxxsen/docrank/internal/filestore"
	"github.com/xxxsen/docrank/internal/metrics"
	"github.com/xxxsen/docrank/internal/service"
)

func buildAnalysisService(cfg *config.Config, opts ...service.AnalysisOption) (*service.AnalysisService, error) {
	svc, err := assistant.NewService(cfg.Assistant.Backend, cfg.Assistant.BackendArgs())
	if err != nil {
		return nil, fmt.Errorf("init assistant backend: %w", err)
	}
	runner := assistant.NewRunner(svc, assistant.RunnerConfig{
		AssistantID:     cfg.Assistant.AssistantID,
		PollInterval:    time.Duration(cfg.Assistant.PollIntervalMs) * time.Millisecond,
		Timeout:         time.Duration(cfg.Assistant.RunTimeoutSeconds) * time.Second,
		MaxContentChars: cfg.Assistant.MaxContentChars,
	}, assistant.WithRunObserver(metrics.New()))
	opts = append([]service.AnalysisOption{service.WithDeleteThread(cfg.Assistant.DeleteThread)}, opts...)
	return service.NewAnalysisService(runner, opts...), nil
}

// buildArchiveService returns a disabled archive when none is configured.
func buildArchiveService(cfg *config.Config) (*service.ArchiveService, filestore.Store, error) {
	if !cfg.Archive.Enabled() {
		return service.NewArchiveService(nil), nil, nil
	}
	store, err := filestore.New(cfg.Archive.Store())
	if err != nil {
		return nil, nil, fmt.Errorf("init archive store: %w", err)
	}
	return service.NewArchiveService(store), store, nil
}
