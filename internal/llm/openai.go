package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o"
	defaultAnalysisModel  = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTimeout        = 120 * time.Second

	// Embedding requests per second against the provider.
	defaultEmbedRPS   = 5
	defaultEmbedBurst = 10

	// Provider-side cap on inputs per embeddings request.
	maxEmbedBatch = 256
)

// OpenAIConfig configures the OpenAI client. Any OpenAI-compatible
// endpoint works through BaseURL.
type OpenAIConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	AnalysisModel       string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
	EmbedRPS            float64
	Breaker             BreakerConfig
}

// OpenAIClient talks to the OpenAI chat completions and embeddings
// APIs. It implements ChatClient, SimpleChat, and Embedder.
type OpenAIClient struct {
	config       OpenAIConfig
	httpClient   *http.Client
	chatBreaker  *breaker
	embedBreaker *breaker
	embedLimiter *rate.Limiter
}

// NewOpenAIClient builds a client, filling zero config fields with
// defaults. An empty API key fails on first call, not here.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.AnalysisModel == "" {
		config.AnalysisModel = defaultAnalysisModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = defaultEmbeddingModel
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	rps := config.EmbedRPS
	if rps <= 0 {
		rps = defaultEmbedRPS
	}
	return &OpenAIClient{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		chatBreaker:  newBreaker("openai-chat", config.Breaker),
		embedBreaker: newBreaker("openai-embed", config.Breaker),
		embedLimiter: rate.NewLimiter(rate.Limit(rps), defaultEmbedBurst),
	}
}

type apiChatRequest struct {
	Model          string             `json:"model"`
	Messages       []apiMessage       `json:"messages"`
	Tools          []apiTool          `json:"tools,omitempty"`
	ResponseFormat *apiResponseFormat `json:"response_format,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Temperature    float64            `json:"temperature"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type apiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type apiResponseFormat struct {
	Type string `json:"type"`
}

type apiChatResponse struct {
	Choices []struct {
		Message struct {
			Content   string        `json:"content"`
			ToolCalls []apiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Chat runs one tool-calling chat turn.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAgentMaxTokens
	}

	body := apiChatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		am := apiMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			atc := apiToolCall{ID: tc.ID, Type: "function"}
			atc.Function.Name = tc.Name
			atc.Function.Arguments = tc.Arguments
			am.ToolCalls = append(am.ToolCalls, atc)
		}
		body.Messages = append(body.Messages, am)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.JSONMode {
		body.ResponseFormat = &apiResponseFormat{Type: "json_object"}
	}

	var parsed apiChatResponse
	err := c.chatBreaker.execute(ctx, func() error {
		return c.post(ctx, "/chat/completions", body, &parsed)
	})
	if err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: no completion choices returned")
	}

	choice := parsed.Choices[0]
	resp := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// Complete runs a single system+user turn against the default model.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return c.complete(ctx, c.config.Model, system, user, maxTokens)
}

// CompleteAnalysis runs a single turn against the cheaper analysis
// model, clamping the token budget to the analysis range.
func (c *OpenAIClient) CompleteAnalysis(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if maxTokens <= 0 || maxTokens > DefaultAnalysisMaxTokens {
		maxTokens = DefaultAnalysisMaxTokens
	}
	if maxTokens < MinAnalysisMaxTokens {
		maxTokens = MinAnalysisMaxTokens
	}
	return c.complete(ctx, c.config.AnalysisModel, system, user, maxTokens)
}

func (c *OpenAIClient) complete(ctx context.Context, model, system, user string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultAnalysisMaxTokens
	}
	resp, err := c.Chat(ctx, ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

type apiEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type apiEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// EmbedTexts embeds texts in provider-sized batches, returning one
// vector per input in order. Requests are rate limited.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := start + maxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		if err := c.embedLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		body := apiEmbeddingRequest{
			Model:      c.config.EmbeddingModel,
			Input:      texts[start:end],
			Dimensions: c.config.EmbeddingDimensions,
		}
		var parsed apiEmbeddingResponse
		err := c.embedBreaker.execute(ctx, func() error {
			return c.post(ctx, "/embeddings", body, &parsed)
		})
		if err != nil {
			return nil, err
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Data) != end-start {
			return nil, fmt.Errorf("openai: expected %d embeddings, got %d", end-start, len(parsed.Data))
		}

		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
			}
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			vectors[start+d.Index] = vec
		}
	}
	return vectors, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openai: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, truncateForError(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: failed to decode response: %w", err)
	}
	return nil
}

func truncateForError(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
