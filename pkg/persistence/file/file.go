// Package file provides file-based persistence for workflows and runs.
//
// Layout on disk: <root>/<tenant>/workflows/<id>.json and
// <root>/<tenant>/runs/<id>.json. Intended for development and tests; a
// single process owns the root directory.
package file

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/loomworks/loom/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string

	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a file store rooted at the given path. A
// "file://" prefix is stripped so database URLs work unchanged.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	// Writes across repositories share one lock: the engine guarantees a
	// single coordinator per run, but unrelated runs append concurrently.
	mu := &sync.Mutex{}

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot, mu),
		executionRepo: NewExecutionRepository(cleanRoot, mu),
	}
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// ExecutionRepository returns the execution repository.
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the root directory is reachable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); errors.Is(err, os.ErrNotExist) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// validateID rejects identifiers unsafe for file paths.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return errors.New("identifier contains invalid characters")
	}

	return nil
}
