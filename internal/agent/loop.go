package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/llm"
)

// runLoop drives the tool-calling conversation until the model stops
// requesting tools or a budget runs out. The final assistant content
// is returned verbatim; callers parse it.
func (a *Agent) runLoop(ctx context.Context, rc *RequestContext, systemPrompt string, payload interface{}) (string, error) {
	userMsg, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("agent: failed to encode request payload: %w", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: string(userMsg)},
	}
	tools := a.toolsFor(rc.Mode)

	for iteration := 0; iteration < a.cfg.MaxToolIterations; iteration++ {
		resp, err := a.chat.Chat(ctx, llm.ChatRequest{
			Messages:  messages,
			Tools:     tools,
			JSONMode:  true,
			MaxTokens: llm.DefaultAgentMaxTokens,
		})
		if err != nil {
			return "", err
		}

		switch resp.FinishReason {
		case llm.FinishLength:
			return "", truncationError(resp.Content)
		case llm.FinishContentFilter:
			return "", ErrContentFiltered
		case "":
			return "", ErrMalformedResponse
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := a.dispatch(ctx, rc, call)
			a.log.Debug("tool call",
				zap.String("tool", call.Name),
				zap.String("mode", string(rc.Mode)),
				zap.Int("iteration", iteration),
			)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("%w (%d iterations)", ErrToolBudgetExhausted, a.cfg.MaxToolIterations)
}
