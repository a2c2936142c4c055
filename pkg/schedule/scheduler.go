// Package schedule runs workflows periodically from the cron expression in
// their settings.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/runner"
)

// Scheduler polls the workflow store and keeps one cron entry per workflow
// whose settings carry a schedule. Entries follow the definition: an updated
// expression replaces the entry, a cleared one removes it.
type Scheduler struct {
	persistence  persistence.Persistence
	runner       *runner.Runner
	logger       *slog.Logger
	tenants      []string
	pollInterval time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]scheduledEntry // keyed tenantID/workflowID
}

type scheduledEntry struct {
	id   cron.EntryID
	expr string
}

func NewScheduler(p persistence.Persistence, r *runner.Runner, logger *slog.Logger, tenants []string) *Scheduler {
	return &Scheduler{
		persistence:  p,
		runner:       r,
		logger:       logger.With("module", "scheduler"),
		tenants:      tenants,
		pollInterval: time.Minute,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]scheduledEntry),
	}
}

// Validate checks a cron expression without registering it.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start begins scheduling and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler", "tenants", len(s.tenants))

	if err := s.refresh(ctx); err != nil {
		return err
	}

	s.cron.Start()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx := s.cron.Stop()
			<-stopCtx.Done()

			return nil
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "Failed to refresh schedules", "error", err)
			}
		}
	}
}

// refresh reconciles cron entries against the stored definitions.
func (s *Scheduler) refresh(ctx context.Context) error {
	seen := make(map[string]bool)

	for _, tenantID := range s.tenants {
		workflows, err := s.persistence.WorkflowRepository().List(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list workflows for tenant %s: %w", tenantID, err)
		}

		for _, workflow := range workflows {
			if workflow.Settings == nil || workflow.Settings.Schedule == "" {
				continue
			}

			key := tenantID + "/" + workflow.ID
			seen[key] = true

			if err := s.ensure(key, workflow); err != nil {
				s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule",
					"tenant_id", tenantID,
					"workflow_id", workflow.ID,
					"error", err,
				)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if !seen[key] {
			s.cron.Remove(entry.id)
			delete(s.entries, key)
		}
	}

	return nil
}

func (s *Scheduler) ensure(key string, workflow *models.Workflow) error {
	expr := workflow.Settings.Schedule

	s.mu.Lock()
	existing, ok := s.entries[key]
	s.mu.Unlock()

	if ok && existing.expr == expr {
		return nil
	}

	if ok {
		s.cron.Remove(existing.id)
	}

	tenantID, workflowID := workflow.TenantID, workflow.ID

	id, err := s.cron.AddFunc(expr, func() {
		s.trigger(tenantID, workflowID)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = scheduledEntry{id: id, expr: expr}
	s.mu.Unlock()

	s.logger.Info("Scheduled workflow",
		"tenant_id", tenantID, "workflow_id", workflowID, "cron", expr)

	return nil
}

// trigger loads the fresh definition and starts a run. A stale entry whose
// workflow disappeared logs and waits for the next refresh to prune it.
func (s *Scheduler) trigger(tenantID, workflowID string) {
	ctx := context.Background()

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, tenantID, workflowID)
	if err != nil {
		s.logger.Warn("Failed to load scheduled workflow",
			"tenant_id", tenantID, "workflow_id", workflowID, "error", err)

		return
	}

	run, err := s.runner.Start(ctx, workflow, map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}, "scheduler")
	if err != nil {
		s.logger.Warn("Failed to start scheduled run",
			"tenant_id", tenantID, "workflow_id", workflowID, "error", err)

		return
	}

	s.logger.Info("Started scheduled run",
		"tenant_id", tenantID, "workflow_id", workflowID, "run_id", run.ID)
}
