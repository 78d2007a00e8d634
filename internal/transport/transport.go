// Package transport defines the chat-agnostic outbound contract. The core
// never talks to a chat platform directly; it hands text to a Transport,
// which chunks it to the platform's message size limit.
package transport

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aide/internal/config"
	"aide/internal/logging"
)

// Transport delivers messages to channels on some chat platform. Direct
// conversations use the user's id as the channel id.
type Transport interface {
	SendMessage(ctx context.Context, channelID int64, text string) error
	Name() string
}

// SplitMessage breaks text into chunks of at most max bytes, preferring
// paragraph breaks, then line breaks, then spaces. A single token longer
// than max is split hard.
func SplitMessage(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > max {
		window := remaining[:max]
		cut := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				cut = idx + len(sep)
				break
			}
		}
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, strings.TrimRight(remaining[:cut], " \n"))
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// Chunked wraps a transport so every outbound message respects the
// configured chunk size.
type Chunked struct {
	inner Transport
	max   int
}

// NewChunked wraps a transport with the configured chunk limit.
func NewChunked(inner Transport, cfg config.TransportConfig) *Chunked {
	return &Chunked{inner: inner, max: cfg.MaxChunkBytes}
}

func (c *Chunked) Name() string { return c.inner.Name() }

// SendMessage splits and sends in order; a failed chunk aborts the rest.
func (c *Chunked) SendMessage(ctx context.Context, channelID int64, text string) error {
	for i, chunk := range SplitMessage(text, c.max) {
		if err := c.inner.SendMessage(ctx, channelID, chunk); err != nil {
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// Console is the built-in transport: it logs outbound messages. Useful for
// local runs and as the default until a chat adapter is wired.
type Console struct {
	log *zap.Logger
}

// NewConsole creates the logging transport.
func NewConsole() *Console {
	return &Console{log: logging.Named(logging.ComponentTransport)}
}

func (c *Console) Name() string { return "console" }

func (c *Console) SendMessage(_ context.Context, channelID int64, text string) error {
	c.log.Info("outbound message",
		zap.Int64("channel", channelID),
		zap.String("text", text))
	return nil
}
