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

// GeminiClient implements Client against the Generative Language REST API.
// Gemini does not stream here; Stream simulates chunks by whitespace
// splitting the full response.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (c *GeminiClient) Provider() types.Provider { return types.ProviderGemini }

func (c *GeminiClient) Model() string { return c.model }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// buildBody maps history to Gemini contents. Roles become user/model;
// the system prompt goes out-of-band as systemInstruction.
func (c *GeminiClient) buildBody(req types.InferenceRequest) geminiRequest {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, m := range req.History {
		role := types.NormalizeRole(m.Role)
		switch role {
		case "assistant":
			role = "model"
		case "system":
			role = "user"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})

	body := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	return body
}

// Call performs a full completion.
func (c *GeminiClient) Call(ctx context.Context, req types.InferenceRequest) (CallResult, error) {
	if c.apiKey == "" {
		return CallResult{}, types.NewError(types.ErrKindAuth, "gemini API key not configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return CallResult{}, err
	}

	jsonData, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return CallResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, types.NewError(types.ErrKindParse, "failed to parse response", err)
	}
	if parsed.Error != nil {
		return CallResult{}, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return CallResult{}, types.NewError(types.ErrKindParse, "no completion returned", nil)
	}

	var out strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	content := strings.TrimSpace(out.String())

	inputTokens := parsed.UsageMetadata.PromptTokenCount
	outputTokens := parsed.UsageMetadata.CandidatesTokenCount
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = types.EstimateTokens(req.Prompt)
		outputTokens = types.EstimateTokens(content)
	}
	return CallResult{
		Content:      content,
		Model:        c.model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// Stream simulates streaming: it performs a full call, then yields the
// response token by token before the done chunk.
func (c *GeminiClient) Stream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, <-chan error) {
	contentChan := make(chan types.StreamChunk, 64)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		result, err := c.Call(ctx, req)
		if err != nil {
			errorChan <- err
			return
		}
		if !emitPseudoTokens(ctx, contentChan, result.Content) {
			return
		}
		contentChan <- types.StreamChunk{
			Done:         true,
			Model:        result.Model,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			Provider:     types.ProviderGemini,
		}
	}()

	return contentChan, errorChan
}

// HealthCheck issues a trivial generation.
func (c *GeminiClient) HealthCheck(ctx context.Context) error {
	result, err := c.Call(ctx, types.InferenceRequest{Prompt: healthCheckPrompt, MaxTokens: healthCheckMaxTokens})
	if err != nil {
		return err
	}
	if result.Content == "" {
		return fmt.Errorf("empty health check response")
	}
	return nil
}

// emitPseudoTokens splits content on whitespace and yields each token as a
// chunk, preserving single spaces between tokens. Returns false on
// cancellation.
func emitPseudoTokens(ctx context.Context, out chan<- types.StreamChunk, content string) bool {
	fields := strings.Fields(content)
	for i, field := range fields {
		chunk := field
		if i < len(fields)-1 {
			chunk += " "
		}
		select {
		case out <- types.StreamChunk{Content: chunk}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
