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

	"golang.org/x/time/rate"

	"aide/internal/types"
)

// ClaudeClient implements Client against the Anthropic Messages API.
type ClaudeClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClaudeConfig holds configuration for the Claude client.
type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewClaudeClient creates a Claude client. Requests are paced to two per
// second to stay under the per-org concurrency ceiling.
func NewClaudeClient(cfg ClaudeConfig) *ClaudeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &ClaudeClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (c *ClaudeClient) Provider() types.Provider { return types.ProviderClaude }

func (c *ClaudeClient) Model() string { return c.model }

// claudeMessage is a message in Anthropic wire format.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeRequest is the Messages API request body.
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// claudeResponse is the non-streaming Messages API response.
type claudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// claudeStreamEvent covers the SSE event payloads we consume.
type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildMessages places the system prompt out-of-band (Anthropic style) and
// normalizes history roles. System-role history entries are folded into the
// system prompt since the Messages API rejects them inline.
func (c *ClaudeClient) buildBody(req types.InferenceRequest, stream bool) claudeRequest {
	system := req.SystemPrompt
	messages := make([]claudeMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := types.NormalizeRole(m.Role)
		if role == "system" {
			if system == "" {
				system = m.Content
			} else {
				system += "\n" + m.Content
			}
			continue
		}
		messages = append(messages, claudeMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, claudeMessage{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return claudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Call performs a full completion.
func (c *ClaudeClient) Call(ctx context.Context, req types.InferenceRequest) (CallResult, error) {
	if c.apiKey == "" {
		return CallResult{}, types.NewError(types.ErrKindAuth, "claude API key not configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return CallResult{}, err
	}

	jsonData, err := json.Marshal(c.buildBody(req, false))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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

	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, types.NewError(types.ErrKindParse, "failed to parse response", err)
	}
	if parsed.Error != nil {
		return CallResult{}, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return CallResult{}, types.NewError(types.ErrKindParse, "no completion returned", nil)
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return CallResult{
		Content:      strings.TrimSpace(out.String()),
		Model:        model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// Stream performs a streaming completion over SSE.
func (c *ClaudeClient) Stream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, <-chan error) {
	contentChan := make(chan types.StreamChunk, 64)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if c.apiKey == "" {
			errorChan <- types.NewError(types.ErrKindAuth, "claude API key not configured", nil)
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

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

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
			var event claudeStreamEvent
			if json.Unmarshal([]byte(data), &event) != nil {
				return true // skip malformed chunks
			}
			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text != "" {
					select {
					case contentChan <- types.StreamChunk{Content: event.Delta.Text}:
					case <-ctx.Done():
						return false
					}
				}
			case "message_delta":
				if event.Usage.OutputTokens > 0 {
					outputTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				return false
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
			Provider:     types.ProviderClaude,
		}
	}()

	return contentChan, errorChan
}

// HealthCheck issues a trivial generation.
func (c *ClaudeClient) HealthCheck(ctx context.Context) error {
	result, err := c.Call(ctx, types.InferenceRequest{Prompt: healthCheckPrompt, MaxTokens: healthCheckMaxTokens})
	if err != nil {
		return err
	}
	if result.Content == "" {
		return fmt.Errorf("empty health check response")
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrKindRateLimit, "rate limit exceeded (429)", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrKindAuth, fmt.Sprintf("authentication failed (%d)", status), nil)
	case status >= 500:
		return types.NewError(types.ErrKindTransport, fmt.Sprintf("server error (%d): %s", status, truncateBody(body)), nil)
	default:
		return fmt.Errorf("API request failed with status %d: %s", status, truncateBody(body))
	}
}

func truncateBody(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// scanSSE reads "data: ..." lines from an SSE body, invoking fn per payload
// until fn returns false, the stream ends, or ctx is cancelled. The scanner
// runs in its own goroutine so cancellation can force-close the body and
// unblock a stuck read.
func scanSSE(ctx context.Context, body io.ReadCloser, fn func(data string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	scanDone := make(chan struct{})
	scanErr := make(chan error, 1)

	go func() {
		defer close(scanDone)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			if !fn(data) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	select {
	case <-scanDone:
		select {
		case err := <-scanErr:
			return types.NewError(types.ErrKindTransport, "stream error", err)
		default:
			return nil
		}
	case <-ctx.Done():
		body.Close()
		<-scanDone
		return ctx.Err()
	}
}
