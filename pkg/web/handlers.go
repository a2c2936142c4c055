package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/loomworks/loom/pkg/interchange"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/services"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	registry         *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		registry:         registry,
	}
}

func tenant(c fiber.Ctx) string {
	return c.Params("tenant")
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), tenant(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	documents := make([]*interchange.Document, 0, len(workflows))
	for _, workflow := range workflows {
		documents = append(documents, interchange.Export(workflow))
	}

	return c.JSON(fiber.Map{"workflows": documents})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), tenant(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(interchange.Export(workflow))
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var doc interchange.Document
	if err := c.Bind().JSON(&doc); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := interchange.Import(&doc)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), tenant(c), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(interchange.Export(created))
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var doc interchange.Document
	if err := c.Bind().JSON(&doc); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := interchange.Import(&doc)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), tenant(c), id, workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(interchange.Export(updated))
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), tenant(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateWorkflow dry-runs the definition check without storing anything.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var doc interchange.Document
	if err := c.Bind().JSON(&doc); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := interchange.Import(&doc)
	if err != nil {
		return c.JSON(ValidateResponse{Valid: false, Detail: err.Error()})
	}

	workflow.TenantID = tenant(c)

	if err := h.workflowService.Validate(c.Context(), workflow); err != nil {
		return c.JSON(ValidateResponse{Valid: false, Detail: err.Error()})
	}

	return c.JSON(ValidateResponse{Valid: true})
}

// ExecuteWorkflow starts a run asynchronously and acknowledges with 202.
// Callers poll the execution endpoints for progress.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	run, err := h.executionService.Start(c.Context(), tenant(c), id, req.Input, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteResponse{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     run.Status,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	run, err := h.executionService.FetchRun(c.Context(), tenant(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	runs, err := h.executionService.ListRuns(c.Context(), tenant(c), id, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": runs,
		"pagination": fiber.Map{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Cancel(tenant(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	types := h.registry.Types()

	responses := make([]NodeTypeResponse, 0, len(types))

	for _, nodeType := range types {
		factory, ok := h.registry.Lookup(nodeType)
		if !ok {
			continue
		}

		responses = append(responses, NodeTypeResponse{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"nodes": responses})
}

func (h *APIHandlers) GetNodeType(c fiber.Ctx) error {
	nodeType := c.Params("type")

	factory, ok := h.registry.Lookup(nodeType)
	if !ok {
		return notFound(c, "Node type not found")
	}

	return c.JSON(NodeTypeResponse{
		Type:        factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func parsePagination(c fiber.Ctx) (limit, offset int, err error) {
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
	}

	return limit, offset, nil
}
