package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/ai"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence/file"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/autoflow-io/autoflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	persistence := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(registry.Dependencies{
		HTTPClient: http.DefaultClient,
		Completer:  ai.Static{},
	})

	engine := execution.NewEngine(execution.Options{
		Store:     persistence.ExecutionRepository(),
		Workflows: persistence.WorkflowRepository(),
		Registry:  reg,
		Logger:    logger,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Close(ctx)
	})

	return NewAPI(logger, persistence, reg, engine, nil, services.DispatchInline).App()
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return body
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Autoflow API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)

		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "OK", string(body), path)
	}
}

func TestAPI_GetWorkflows_Empty(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows", nil))
	require.NoError(t, err)

	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestAPI_NodeTypesListsDefaults(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/node-types", nil))
	require.NoError(t, err)

	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, nodeType := range []string{
		models.NodeTypeTrigger,
		models.NodeTypeAction,
		models.NodeTypeCondition,
		models.NodeTypeDelay,
		models.NodeTypeAICall,
		models.NodeTypeWebhookCall,
	} {
		assert.Contains(t, string(body), `"`+nodeType+`"`)
	}
}

func TestAPI_CreateAndExecuteWorkflow(t *testing.T) {
	app := setupTestApp(t)

	payload, err := json.Marshal(map[string]any{
		"name": "Summarize order",
		"nodes": []map[string]any{
			{"id": "start", "type": models.NodeTypeTrigger},
			{"id": "check", "type": models.NodeTypeCondition, "config": map[string]any{"expression": "input.total > 10"}},
			{"id": "summary", "type": models.NodeTypeAICall, "config": map[string]any{"prompt": "Order {{ .input_data.total }}"}},
		},
		"connections": []map[string]any{
			{"from": "start", "to": "check"},
			{"from": "check", "to": "summary", "condition": "output.matched === true"},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	body := readBody(t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	req = httptest.NewRequest(http.MethodPost, "/workflows/"+workflow.ID+"/execute",
		bytes.NewReader([]byte(`{"input_data":{"total":42}}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req)
	require.NoError(t, err)

	body = readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var execute services.ExecuteResponse
	require.NoError(t, json.Unmarshal(body, &execute))
	require.NotEmpty(t, execute.ExecutionID)

	var status services.StatusResponse

	require.Eventually(t, func() bool {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/executions/"+execute.ExecutionID, nil))
		if err != nil {
			return false
		}

		if err := json.Unmarshal(readBody(t, resp), &status); err != nil {
			return false
		}

		return status.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, models.ExecutionStatusSucceeded, status.Status)
	require.Len(t, status.NodeLogs, 3)
	assert.Equal(t, "summary", status.NodeLogs[2].NodeID)
}
