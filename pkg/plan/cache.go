package plan

import (
	"fmt"
	"sync"

	"github.com/loomworks/loom/pkg/models"
)

// Cache memoizes compiled plans keyed by (tenant, workflow id, version).
// Compilation is deterministic, so a cached plan stays valid until the
// definition version changes.
type Cache struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewCache creates an empty plan cache.
func NewCache() *Cache {
	return &Cache{plans: make(map[string]*Plan)}
}

// Get returns the plan for the workflow, compiling and caching it on a miss.
func (c *Cache) Get(workflow *models.Workflow) (*Plan, error) {
	key := cacheKey(workflow)

	c.mu.RLock()
	cached, ok := c.plans[key]
	c.mu.RUnlock()

	if ok {
		return cached, nil
	}

	compiled, err := Compile(workflow)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.plans[key] = compiled
	c.mu.Unlock()

	return compiled, nil
}

// Invalidate drops every cached version of a workflow, typically after a
// definition update or delete.
func (c *Cache) Invalidate(tenantID, workflowID string) {
	prefix := tenantID + "/" + workflowID + "@"

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.plans {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.plans, key)
		}
	}
}

func cacheKey(workflow *models.Workflow) string {
	return fmt.Sprintf("%s/%s@%d", workflow.TenantID, workflow.ID, workflow.Version)
}
