package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// repairPromptTemplate asks the model to fix its own malformed payload.
// Exactly one repair pass is attempted before the failure is surfaced.
const repairPromptTemplate = `Your previous response could not be parsed as JSON.

Parse error: %s

Respond again with ONLY the corrected JSON. No markdown fences, no commentary, no explanations.`

// CompleteStructured sends a completion request whose prompt demands a JSON
// payload and unmarshals the extracted payload into out. Malformed output
// gets one repair round-trip (the parse error and the original response are
// sent back to the model); a second failure returns a ParseError.
func (c *Client) CompleteStructured(ctx context.Context, req Request, out any) (*Response, error) {
	if out == nil {
		return nil, fmt.Errorf("structured output target is required")
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	parseErr := decodeInto(resp.Content, out)
	if parseErr == nil {
		return resp, nil
	}

	c.logger.Warn("Structured output parse failed, attempting repair",
		"capability", req.Capability,
		"request_id", resp.RequestID,
		"error", parseErr)

	repairReq := req
	repairReq.Messages = append(append([]Message{}, req.Messages...),
		Message{Role: "assistant", Content: resp.Content},
		Message{Role: "user", Content: fmt.Sprintf(repairPromptTemplate, parseErr)},
	)

	repaired, err := c.Complete(ctx, repairReq)
	if err != nil {
		return nil, err
	}

	if parseErr = decodeInto(repaired.Content, out); parseErr != nil {
		return nil, NewParseError("repair pass did not produce valid output", parseErr)
	}

	return repaired, nil
}

// decodeInto extracts the JSON payload from content and unmarshals it.
func decodeInto(content string, out any) error {
	payload := ExtractJSON(content)
	if payload == "" {
		payload = ExtractJSONArray(content)
	}
	if payload == "" {
		return fmt.Errorf("no JSON payload found in response")
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
