package handlers

import (
	"net/http"

	"github.com/duragraph/duragraph/internal/application/service"
	"github.com/duragraph/duragraph/internal/domain/run"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/duragraph/duragraph/internal/infrastructure/http/dto"
	"github.com/duragraph/duragraph/internal/infrastructure/streaming"
	"github.com/labstack/echo/v4"
)

// RunHandler exposes the single workflow-run entry point: submit a graph
// config plus inputs, get back either the accumulated result or a
// Server-Sent Events stream of the response pipeline's output.
type RunHandler struct {
	runService *service.RunService
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runService *service.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

func defaultIdentity(identity string) string {
	if identity == "" {
		return "anonymous"
	}
	return identity
}

func buildGraph(req dto.CreateWorkflowRunRequest) (*workflow.Graph, error) {
	cfg := req.GraphConfig
	return workflow.NewGraph(
		defaultIdentity(req.SystemIdentity),
		cfg.Name,
		cfg.Version,
		cfg.Description,
		cfg.Nodes,
		cfg.Edges,
		cfg.Regions,
		cfg.Config,
	)
}

// CreateRun handles POST /v1/workflows/runs. Non-streaming callers block
// until the run reaches a terminal state and receive the accumulated
// result; streaming callers (stream: true, or Accept: text/event-stream)
// get each response-pipeline event relayed as it happens.
func (h *RunHandler) CreateRun(c echo.Context) error {
	var req dto.CreateWorkflowRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}

	if len(req.GraphConfig.Nodes) == 0 {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "graph_config.nodes must not be empty",
		})
	}

	g, err := buildGraph(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_graph",
			Message: err.Error(),
		})
	}

	ctx := c.Request().Context()

	runAgg, err := h.runService.CreateRun(ctx, g, req.Inputs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}

	wantsStream := req.Stream || c.Request().Header.Get("Accept") == "text/event-stream"
	identity := defaultIdentity(req.SystemIdentity)

	if wantsStream {
		return h.streamRun(c, runAgg.ID(), g, identity)
	}

	// ExecuteRun's own error (if any) is already reflected in the
	// persisted run's status/error fields; the response always reports
	// the run's final state rather than surfacing a transport error.
	_ = h.runService.ExecuteRun(ctx, runAgg.ID(), g, identity)

	final, err := h.runService.GetRun(ctx, runAgg.ID())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, runToResponse(final))
}

func (h *RunHandler) streamRun(c echo.Context, runID string, g *workflow.Graph, identity string) error {
	ctx := c.Request().Context()

	events, err := h.runService.StreamRun(ctx, runID, g, identity)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	formatter := streaming.NewEventFormatter(streaming.ParseStreamModes(c.QueryParams()["stream_mode"]))

	for event := range events {
		eventType := event.EventType()
		if !formatter.ShouldSend(eventType) {
			continue
		}

		payload, err := formatter.FormatSSE(eventType, event)
		if err != nil {
			continue
		}
		if _, err := c.Response().Write(payload); err != nil {
			return nil
		}
		c.Response().Flush()
	}

	return nil
}

func runToResponse(r *run.Run) dto.WorkflowRunResponse {
	return dto.WorkflowRunResponse{
		RunID:       r.ID(),
		GraphID:     r.GraphID(),
		Status:      r.Status().String(),
		Output:      r.Output(),
		Error:       r.Error(),
		CreatedAt:   r.CreatedAt(),
		StartedAt:   r.StartedAt(),
		CompletedAt: r.CompletedAt(),
	}
}
