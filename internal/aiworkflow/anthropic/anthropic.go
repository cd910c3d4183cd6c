// Package anthropic is the reference aiworkflow.Client implementation,
// built on Anthropic's official Go SDK. It forces a single tool call whose
// input schema is the request's JSONSchema (for ai-rule, the fixed
// provider-result schema), so the
// response is always a JSON object shaped exactly like the schema rather
// than free text the caller would have to parse hopefully.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/policyforge/engine/internal/aiworkflow"
)

const defaultMaxTokens = 4096

// toolName is the forced tool every schema-constrained request declares. Its
// input schema is swapped out per-request for the request's JSONSchema.
const toolName = "emit_gate_result"

var _ aiworkflow.Client = (*Client)(nil)

// Client wraps the Anthropic Messages API behind aiworkflow.Client.
type Client struct {
	api   sdk.Client
	model sdk.Model
}

// New builds a Client. apiKey is read by the caller from its own config
// (spec §4.3 leaves key management to the deployment, not the engine).
func New(apiKey string, model sdk.Model) *Client {
	return &Client{
		api:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

// Complete issues one schema-constrained completion.
func (c *Client) Complete(ctx context.Context, req aiworkflow.Request) (*aiworkflow.Response, error) {
	if req.JSONSchema == "" {
		return nil, fmt.Errorf("aiworkflow/anthropic: JSONSchema is required")
	}

	var schema any
	if err := json.Unmarshal([]byte(req.JSONSchema), &schema); err != nil {
		return nil, fmt.Errorf("aiworkflow/anthropic: invalid JSON schema: %w", err)
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case aiworkflow.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case aiworkflow.RoleSystem:
			// The Messages API has no system role message; system content is
			// sent as a user turn of its own.
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.api.Messages.New(ctx, sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages:  messages,
		Tools: []sdk.ToolUnionParam{
			{
				OfTool: &sdk.ToolParam{
					Name:        toolName,
					Description: sdk.String("Emit the gate evaluation result matching the required schema."),
					InputSchema: sdk.ToolInputSchemaParam{Properties: schema},
				},
			},
		},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: toolName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("aiworkflow/anthropic: completion failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			return &aiworkflow.Response{
				Content: string(block.Input),
				ModelID: string(resp.Model),
				RunID:   resp.ID,
			}, nil
		}
	}

	return nil, fmt.Errorf("aiworkflow/anthropic: response did not include a %q tool call", toolName)
}
