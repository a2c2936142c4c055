// Package main provides loom-run, a one-shot workflow executor for local
// definition files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/loomworks/loom/pkg/cmd"
	"github.com/loomworks/loom/pkg/interchange"
	"github.com/loomworks/loom/pkg/log"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/runner"
)

func main() {
	command := &cli.Command{
		Name:  "loom-run",
		Usage: "Execute a workflow definition file and print the run result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow definition file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "tenant",
				Usage:   "Tenant the run executes under",
				Value:   "local",
				Sources: cli.EnvVars("LOOM_TENANT"),
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "Trigger input as a JSON object",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("run")

	workflow, err := loadWorkflow(command.String("file"), command.String("tenant"))
	if err != nil {
		return err
	}

	var triggerInput map[string]any

	if raw := command.String("input"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &triggerInput); err != nil {
			return fmt.Errorf("invalid input JSON: %w", err)
		}
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	registry := cmd.NewRegistry(logger)

	wfRunner := runner.NewRunner(persistence, registry, nil, logger, runner.Config{})

	result, err := wfRunner.Execute(ctx, workflow, triggerInput, "cli")
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(encoded))

	if result.Status != models.RunStatusSuccess {
		os.Exit(1)
	}

	return nil
}

func loadWorkflow(path, tenantID string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	var doc interchange.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid definition file: %w", err)
	}

	workflow, err := interchange.Import(&doc)
	if err != nil {
		return nil, err
	}

	if workflow.ID == "" {
		workflow.ID = workflow.Name
	}

	workflow.TenantID = tenantID

	return workflow, nil
}
