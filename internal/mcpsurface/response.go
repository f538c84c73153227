package mcpsurface

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse mirrors the teacher's response.go helper of the
// same name: marshal data, wrap it as the tool result's sole text
// content block.
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}

// createErrorResponse mirrors the teacher's response.go helper: per the
// MCP SDK spec, a tool-level error is reported inside the result with
// IsError=true, not as a protocol-level error, so the calling model can
// see it and self-correct.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	response, marshalErr := createJSONResponse(map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
