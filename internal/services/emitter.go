package services

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/openfiscal/budgetflow/internal/models"
)

// Emitter hands a successfully extracted document off to the next stages.
// The production implementation starts a Cloud Workflow execution; the
// workflow then calls the summarization and translation worker functions
// with its own retry policy.
type Emitter interface {
	TriggerPipeline(ctx context.Context, trigger models.PipelineTrigger) error
}

// WorkflowEmitter implements Emitter with the Workflows Executions API.
type WorkflowEmitter struct {
	client           *executions.Client
	projectID        string
	workflowLocation string
	workflowID       string
}

// NewWorkflowEmitter builds the production emitter.
func NewWorkflowEmitter(client *executions.Client, projectID, location, workflowID string) *WorkflowEmitter {
	return &WorkflowEmitter{
		client:           client,
		projectID:        projectID,
		workflowLocation: location,
		workflowID:       workflowID,
	}
}

func (e *WorkflowEmitter) TriggerPipeline(ctx context.Context, trigger models.PipelineTrigger) error {
	payload, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", e.projectID, e.workflowLocation, e.workflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	if _, err := e.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
