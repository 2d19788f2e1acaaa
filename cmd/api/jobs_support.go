package main

import (
	"context"
	"log"

	"github.com/yourusername/clip-forge/internal/config"
	"github.com/yourusername/clip-forge/internal/jobs"
)

// convertJobScheduler は shorts.JobScheduler を jobs.Manager へ委譲します。
type convertJobScheduler struct {
	manager *jobs.Manager
}

func (s *convertJobScheduler) Schedule(ctx context.Context, jobID string) error {
	return s.manager.Dispatch(ctx, jobID)
}

func setupJobs(cfg *config.Config, store *jobs.Store, processor jobs.Processor) (*jobs.Manager, error) {
	manager, err := jobs.NewManager(cfg, store, processor, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}
