package service

import (
	"context"
	"fmt"
	"time"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/run"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/duragraph/duragraph/internal/infrastructure/graph"
	"github.com/duragraph/duragraph/internal/infrastructure/streaming"
	"github.com/duragraph/duragraph/internal/pkg/errors"
	"github.com/duragraph/duragraph/internal/pkg/eventbus"
)

// keepAliveInterval bounds how long a run can go without emitting an
// event before the response pipeline synthesizes a ping, matching the
// streaming handler's own keepalive cadence.
const keepAliveInterval = 30 * time.Second

// RunService orchestrates graph-run execution against the engine and
// reports execution history through runRepo.
type RunService struct {
	runRepo     run.Repository
	graphRepo   workflow.GraphRepository
	graphEngine *graph.Engine
	eventBus    *eventbus.EventBus
}

// NewRunService creates a new RunService
func NewRunService(
	runRepo run.Repository,
	graphRepo workflow.GraphRepository,
	graphEngine *graph.Engine,
	eventBus *eventbus.EventBus,
) *RunService {
	return &RunService{
		runRepo:     runRepo,
		graphRepo:   graphRepo,
		graphEngine: graphEngine,
		eventBus:    eventBus,
	}
}

// CreateRun registers a new run for the given graph and input, ready
// for ExecuteRun to drive.
func (s *RunService) CreateRun(ctx context.Context, g *workflow.Graph, input map[string]interface{}) (*run.Run, error) {
	runAgg, err := run.NewRun(g.ID(), input)
	if err != nil {
		return nil, err
	}

	if err := s.runRepo.Save(ctx, runAgg); err != nil {
		return nil, err
	}

	return runAgg, nil
}

// ExecuteRun drives the graph to completion, updating run state as it
// goes. It returns only an error; outputs are recorded on the run.
func (s *RunService) ExecuteRun(ctx context.Context, runID string, g *workflow.Graph, systemIdentity string) error {
	runAgg, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return err
	}

	if err := runAgg.Start(); err != nil {
		return err
	}
	if err := s.runRepo.Update(ctx, runAgg); err != nil {
		return err
	}

	events := s.graphEngine.Run(ctx, g, graph.RunInput{
		RunID:      runID,
		UserID:     systemIdentity,
		AppID:      g.AssistantID(),
		WorkflowID: g.ID(),
		InvokeFrom: "api",
		Inputs:     runAgg.Input(),
	})

	pipeline := streaming.NewResponsePipeline(g, keepAliveInterval)
	piped := pipeline.Run(ctx, runID, events)

	var (
		output map[string]interface{}
		runErr error
	)

	for item := range piped {
		event, ok := item.(eventbus.Event)
		if !ok {
			continue
		}

		if pubErr := s.eventBus.Publish(ctx, event); pubErr != nil {
			fmt.Printf("Warning: failed to publish graph event %s: %v\n", event.EventType(), pubErr)
		}

		switch e := item.(type) {
		case domainexec.GraphRunSucceeded:
			output = e.Outputs
		case domainexec.GraphRunPartialSucceeded:
			output = e.Outputs
		case domainexec.GraphRunFailed:
			runErr = errors.Internal(e.Error, nil)
		}
	}

	if runErr != nil {
		runAgg.Fail(runErr.Error())
		s.runRepo.Update(ctx, runAgg)
		return runErr
	}

	if output == nil {
		output = map[string]interface{}{}
	}

	if err := runAgg.Complete(output); err != nil {
		return err
	}

	return s.runRepo.Update(ctx, runAgg)
}

// StreamRun drives the graph and forwards every visible engine event on
// the returned channel, for callers that want to relay Server-Sent
// Events directly rather than waiting for the final object.
func (s *RunService) StreamRun(ctx context.Context, runID string, g *workflow.Graph, systemIdentity string) (<-chan domainexec.GraphEngineEvent, error) {
	runAgg, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if err := runAgg.Start(); err != nil {
		return nil, err
	}
	if err := s.runRepo.Update(ctx, runAgg); err != nil {
		return nil, err
	}

	events := s.graphEngine.Run(ctx, g, graph.RunInput{
		RunID:      runID,
		UserID:     systemIdentity,
		AppID:      g.AssistantID(),
		WorkflowID: g.ID(),
		InvokeFrom: "api",
		Inputs:     runAgg.Input(),
	})

	pipeline := streaming.NewResponsePipeline(g, keepAliveInterval)
	piped := pipeline.Run(ctx, runID, events)

	out := make(chan domainexec.GraphEngineEvent, 16)
	go func() {
		defer close(out)

		var (
			output map[string]interface{}
			runErr error
		)

		for item := range piped {
			if event, ok := item.(eventbus.Event); ok {
				if pubErr := s.eventBus.Publish(ctx, event); pubErr != nil {
					fmt.Printf("Warning: failed to publish graph event %s: %v\n", event.EventType(), pubErr)
				}
			}

			if e, ok := item.(domainexec.GraphEngineEvent); ok {
				out <- e
			}

			switch e := item.(type) {
			case domainexec.GraphRunSucceeded:
				output = e.Outputs
			case domainexec.GraphRunPartialSucceeded:
				output = e.Outputs
			case domainexec.GraphRunFailed:
				runErr = errors.Internal(e.Error, nil)
			}
		}

		if runErr != nil {
			runAgg.Fail(runErr.Error())
			s.runRepo.Update(ctx, runAgg)
			return
		}

		if output == nil {
			output = map[string]interface{}{}
		}

		if err := runAgg.Complete(output); err == nil {
			s.runRepo.Update(ctx, runAgg)
		}
	}()

	return out, nil
}

// CancelRun cancels a run
func (s *RunService) CancelRun(ctx context.Context, runID string) error {
	runAgg, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return err
	}

	if runAgg.Status().IsTerminal() {
		return errors.InvalidState(runAgg.Status().String(), "cancel")
	}

	if err := runAgg.Cancel("cancelled by user"); err != nil {
		return err
	}

	return s.runRepo.Update(ctx, runAgg)
}

// WaitForRun waits for a run to complete and returns the result
func (s *RunService) WaitForRun(ctx context.Context, runID string, timeout time.Duration) (*run.Run, error) {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Internal("run wait timeout", ctx.Err())

		case <-ticker.C:
			runAgg, err := s.runRepo.FindByID(ctx, runID)
			if err != nil {
				return nil, err
			}

			if runAgg.Status().IsTerminal() {
				return runAgg, nil
			}
		}
	}
}

// GetRun returns the current persisted state of a run.
func (s *RunService) GetRun(ctx context.Context, runID string) (*run.Run, error) {
	return s.runRepo.FindByID(ctx, runID)
}

// GetGraph loads a previously persisted graph definition by ID. The
// thin run endpoint normally carries the graph inline, but a caller
// may also reference one already on file.
func (s *RunService) GetGraph(ctx context.Context, graphID string) (*workflow.Graph, error) {
	return s.graphRepo.FindByID(ctx, graphID)
}
