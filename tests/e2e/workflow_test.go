package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_CompleteWorkflowExecution submits a small start->end graph to
// the single workflow-run endpoint and verifies it runs to completion.
// This exercises:
// 1. HTTP API endpoint
// 2. The application service driving the graph engine
// 3. Event sourcing (run events persisted)
// 4. Graph execution engine end-to-end
func TestE2E_CompleteWorkflowExecution(t *testing.T) {
	harness := SetupE2ETest(t)

	t.Log("Submitting workflow run...")
	result := createWorkflowRun(t, harness, map[string]interface{}{
		"graph_config": startEndGraphConfig(),
		"inputs": map[string]interface{}{
			"message": "test message",
		},
		"system_identity": "e2e-test",
	})

	require.NotEmpty(t, result["run_id"], "run_id should not be empty")
	t.Logf("Run %s finished with status %v", result["run_id"], result["status"])

	assert.Equal(t, "succeeded", result["status"], "run should complete successfully")
	assert.NotNil(t, result["completed_at"], "run should have a completion timestamp")
}

// TestE2E_RunWithError tests error handling in workflow execution
func TestE2E_RunWithError(t *testing.T) {
	t.Skip("TODO: Implement error handling test")
	// This test should verify:
	// - Invalid graph_config handling
	// - Graceful failure
	// - Error messages in response
}

// TestE2E_FailBranchRouting tests that a fail_branch node with
// continue_on_error still routes down its success edge when it succeeds.
func TestE2E_FailBranchRouting(t *testing.T) {
	t.Skip("TODO: exercise a fail_branch node with edge_handle-gated edges")
}

// Helper functions

func startEndGraphConfig() map[string]interface{} {
	return map[string]interface{}{
		"name":    "e2e-start-end",
		"version": "1",
		"nodes": []map[string]interface{}{
			{"id": "start", "type": "start", "version": "1"},
			{"id": "end", "type": "end", "version": "1"},
		},
		"edges": []map[string]interface{}{
			{"source": "start", "target": "end"},
		},
	}
}

func createWorkflowRun(t *testing.T, h *TestHarness, payload map[string]interface{}) map[string]interface{} {
	t.Helper()

	body, _ := json.Marshal(payload)
	resp, err := h.HTTPClient.Post(h.URL("/v1/workflows/runs"), "application/json", bytes.NewBuffer(body))
	require.NoError(t, err, "failed to submit workflow run")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "workflow run submission should return 200")

	var result map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err, "failed to decode workflow run response")

	return result
}
