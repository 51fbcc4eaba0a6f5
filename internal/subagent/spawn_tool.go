package subagent

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/devagent/internal/tools"
)

// SpawnToolName is excluded from every subagent registry view, so a
// background task can never spawn further background tasks.
const SpawnToolName = "spawn_subagent"

// SpawnTool lets the model start background tasks through the manager.
// Register it main-only on the root registry.
type SpawnTool struct {
	manager  *Manager
	parentID string
}

func NewSpawnTool(manager *Manager, parentID string) *SpawnTool {
	if parentID == "" {
		parentID = "main"
	}
	return &SpawnTool{manager: manager, parentID: parentID}
}

func (t *SpawnTool) Name() string { return SpawnToolName }

func (t *SpawnTool) Description() string {
	return "Spawn a background task that works independently and reports back when done. " +
		"Use for long-running or parallelizable work; the result arrives automatically."
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "Full task description for the background agent",
			},
			"label": map[string]interface{}{
				"type":        "string",
				"description": "Short human-readable label for the task",
			},
			"max_iterations": map[string]interface{}{
				"type":        "integer",
				"description": "Tool-call iteration budget for the background agent (default 15)",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	task, _ := args["task"].(string)
	if task == "" {
		return tools.ErrorResult("task is required")
	}
	label, _ := args["label"].(string)
	maxIterations := 0
	if v, ok := args["max_iterations"].(float64); ok {
		maxIterations = int(v)
	}

	id, err := t.manager.Spawn(ctx, task, label, t.parentID, maxIterations)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			return tools.ErrorResult(fmt.Sprintf(
				"Cannot spawn: %v. Wait for a running task to finish or do the work directly.", err))
		}
		return tools.ErrorResult(fmt.Sprintf("spawn failed: %v", err))
	}

	if label == "" {
		label = "background task"
	}
	res := tools.AsyncResult(fmt.Sprintf(
		"Spawned background task '%s' (id=%s). It is working independently; its result will be delivered automatically when ready.",
		label, id))
	res.Ref = id
	return res
}
