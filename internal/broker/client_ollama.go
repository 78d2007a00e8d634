package broker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aide/internal/types"
)

// OllamaClient implements Client against a local Ollama server. Local
// generation is free, so there is no request pacing.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaConfig holds configuration for the Ollama client.
type OllamaConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2:3b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OllamaClient) Provider() types.Provider { return types.ProviderOllama }

func (c *OllamaClient) Model() string { return c.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// buildBody places the system prompt as the first message.
func (c *OllamaClient) buildBody(req types.InferenceRequest, stream bool) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		messages = append(messages, ollamaMessage{Role: types.NormalizeRole(m.Role), Content: m.Content})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	return ollamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
}

// Call performs a full completion.
func (c *OllamaClient) Call(ctx context.Context, req types.InferenceRequest) (CallResult, error) {
	jsonData, err := json.Marshal(c.buildBody(req, false))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CallResult{}, types.NewError(types.ErrKindTransport, "ollama request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, types.NewError(types.ErrKindTransport, "failed to read response", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return CallResult{}, err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, types.NewError(types.ErrKindParse, "failed to parse response", err)
	}
	if parsed.Error != "" {
		return CallResult{}, fmt.Errorf("ollama error: %s", parsed.Error)
	}

	content := strings.TrimSpace(parsed.Message.Content)
	inputTokens := parsed.PromptEvalCount
	outputTokens := parsed.EvalCount
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = types.EstimateTokens(req.Prompt)
		outputTokens = types.EstimateTokens(content)
	}
	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return CallResult{
		Content:      content,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// Stream performs a streaming completion. Ollama streams newline-delimited
// JSON objects rather than SSE.
func (c *OllamaClient) Stream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, <-chan error) {
	contentChan := make(chan types.StreamChunk, 64)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		jsonData, err := json.Marshal(c.buildBody(req, true))
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- types.NewError(types.ErrKindTransport, "ollama request failed", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- classifyStatus(resp.StatusCode, body)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		inputTokens, outputTokens := 0, 0
		model := c.model

		for scanner.Scan() {
			var chunk ollamaResponse
			if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
				continue
			}
			if chunk.Error != "" {
				errorChan <- fmt.Errorf("ollama error: %s", chunk.Error)
				return
			}
			if chunk.Message.Content != "" {
				select {
				case contentChan <- types.StreamChunk{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				inputTokens = chunk.PromptEvalCount
				outputTokens = chunk.EvalCount
				if chunk.Model != "" {
					model = chunk.Model
				}
				break
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- types.NewError(types.ErrKindTransport, "stream error", err)
			return
		}

		contentChan <- types.StreamChunk{
			Done:         true,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Provider:     types.ProviderOllama,
		}
	}()

	return contentChan, errorChan
}

// HealthCheck issues a trivial generation.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	result, err := c.Call(ctx, types.InferenceRequest{Prompt: healthCheckPrompt, MaxTokens: healthCheckMaxTokens})
	if err != nil {
		return err
	}
	if result.Content == "" {
		return fmt.Errorf("empty health check response")
	}
	return nil
}
