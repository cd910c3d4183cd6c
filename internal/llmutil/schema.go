// Package llmutil provides the single call path the ai-rule gate uses to
// make schema-constrained model calls. It exists to keep every ai-rule
// invocation going through the same strict-parse, no-fallback path rather
// than letting each gate call aiworkflow.Client directly.
package llmutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/policyforge/engine/internal/aiworkflow"
)

// SchemaResult holds the parsed JSON response with metadata.
type SchemaResult[T any] struct {
	Data     T
	Response *aiworkflow.Response
}

// ExecuteWithSchema is the only way an ai-rule gate makes a model call. All
// callers must use this: it ensures a schema is always supplied, that the
// response is parsed strictly, and that a malformed response becomes an
// error (surfaced as provider_result_invalid) rather than a silent default.
func ExecuteWithSchema[T any](
	ctx context.Context,
	client aiworkflow.Client,
	prompt string,
	schema string,
) (*SchemaResult[T], error) {
	if schema == "" {
		return nil, fmt.Errorf("schema is required for ExecuteWithSchema")
	}

	resp, err := client.Complete(ctx, aiworkflow.Request{
		Messages:   []aiworkflow.Message{{Role: aiworkflow.RoleUser, Content: prompt}},
		JSONSchema: schema,
	})
	if err != nil {
		return nil, fmt.Errorf("schema execution failed: %w", err)
	}

	if resp.Content == "" {
		return nil, fmt.Errorf("empty response content from model (no output)")
	}

	var result T
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return nil, fmt.Errorf("schema response parse failed (content=%q): %w",
			truncateForError(resp.Content, 200), err)
	}

	return &SchemaResult[T]{Data: result, Response: resp}, nil
}

// truncateForError truncates content for error messages.
func truncateForError(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "...[truncated]"
}
