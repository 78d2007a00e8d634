package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"aide/internal/types"
)

// OpenAIClient implements Client against the Chat Completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

func (c *OpenAIClient) Provider() types.Provider { return types.ProviderOpenAI }

func (c *OpenAIClient) Model() string { return c.model }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// buildBody places the system prompt as the first message (OpenAI style)
// and appends normalized history.
func (c *OpenAIClient) buildBody(req types.InferenceRequest, stream bool) openaiRequest {
	messages := make([]openaiMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		messages = append(messages, openaiMessage{Role: types.NormalizeRole(m.Role), Content: m.Content})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	body := openaiRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}
	return body
}

// Call performs a full completion.
func (c *OpenAIClient) Call(ctx context.Context, req types.InferenceRequest) (CallResult, error) {
	if c.apiKey == "" {
		return CallResult{}, types.NewError(types.ErrKindAuth, "openai API key not configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return CallResult{}, err
	}

	jsonData, err := json.Marshal(c.buildBody(req, false))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CallResult{}, types.NewError(types.ErrKindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, types.NewError(types.ErrKindTransport, "failed to read response", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return CallResult{}, err
	}

	var parsed openaiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, types.NewError(types.ErrKindParse, "failed to parse response", err)
	}
	if parsed.Error != nil {
		return CallResult{}, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return CallResult{}, types.NewError(types.ErrKindParse, "no completion returned", nil)
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return CallResult{
		Content:      strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:        model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// Stream performs a streaming completion over SSE.
func (c *OpenAIClient) Stream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, <-chan error) {
	contentChan := make(chan types.StreamChunk, 64)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if c.apiKey == "" {
			errorChan <- types.NewError(types.ErrKindAuth, "openai API key not configured", nil)
			return
		}
		if err := c.limiter.Wait(ctx); err != nil {
			errorChan <- err
			return
		}

		jsonData, err := json.Marshal(c.buildBody(req, true))
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- types.NewError(types.ErrKindTransport, "request failed", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- classifyStatus(resp.StatusCode, body)
			return
		}

		inputTokens, outputTokens := 0, 0
		err = scanSSE(ctx, resp.Body, func(data string) bool {
			var chunk openaiResponse
			if json.Unmarshal([]byte(data), &chunk) != nil {
				return true
			}
			if chunk.Usage.PromptTokens > 0 {
				inputTokens = chunk.Usage.PromptTokens
				outputTokens = chunk.Usage.CompletionTokens
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil && chunk.Choices[0].Delta.Content != "" {
				select {
				case contentChan <- types.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return false
				}
			}
			return true
		})
		if err != nil {
			errorChan <- err
			return
		}

		contentChan <- types.StreamChunk{
			Done:         true,
			Model:        c.model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Provider:     types.ProviderOpenAI,
		}
	}()

	return contentChan, errorChan
}

// HealthCheck issues a trivial generation.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	result, err := c.Call(ctx, types.InferenceRequest{Prompt: healthCheckPrompt, MaxTokens: healthCheckMaxTokens})
	if err != nil {
		return err
	}
	if result.Content == "" {
		return fmt.Errorf("empty health check response")
	}
	return nil
}
