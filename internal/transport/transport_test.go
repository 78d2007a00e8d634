package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aide/internal/config"
)

type recordingTransport struct {
	sent []string
	err  error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) SendMessage(_ context.Context, _ int64, text string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want int
	}{
		{"short passes through", "hello", 100, 1},
		{"zero max passes through", strings.Repeat("x", 50), 0, 1},
		{"exact fit", strings.Repeat("x", 10), 10, 1},
		{"hard split without separators", strings.Repeat("x", 25), 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.max)
			if len(got) != tt.want {
				t.Errorf("SplitMessage() = %d chunks, want %d", len(got), tt.want)
			}
			for i, chunk := range got {
				if tt.max > 0 && len(chunk) > tt.max {
					t.Errorf("chunk %d is %d bytes, max %d", i, len(chunk), tt.max)
				}
			}
		})
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph follows and keeps going"
	chunks := SplitMessage(text, 30)

	if len(chunks) < 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0] != "first paragraph here" {
		t.Errorf("first chunk = %q", chunks[0])
	}
}

func TestSplitPreservesContent(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := SplitMessage(text, 64)
	rejoined := strings.Join(chunks, " ")
	if strings.Join(strings.Fields(rejoined), " ") != text {
		t.Error("rejoined chunks lost content")
	}
}

func TestChunkedSendsInOrder(t *testing.T) {
	rec := &recordingTransport{}
	chunked := NewChunked(rec, config.TransportConfig{MaxChunkBytes: 16})

	long := "one two three four five six seven"
	if err := chunked.SendMessage(context.Background(), 1, long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(rec.sent) < 2 {
		t.Fatalf("sent = %v", rec.sent)
	}
	if !strings.HasPrefix(rec.sent[0], "one") {
		t.Errorf("first chunk = %q", rec.sent[0])
	}
}

func TestChunkedPropagatesErrors(t *testing.T) {
	rec := &recordingTransport{err: errors.New("gateway down")}
	chunked := NewChunked(rec, config.DefaultTransportConfig())

	err := chunked.SendMessage(context.Background(), 1, "hello")
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("err = %v", err)
	}
}

func TestChunkedShortMessageSingleSend(t *testing.T) {
	rec := &recordingTransport{}
	chunked := NewChunked(rec, config.DefaultTransportConfig())

	if err := chunked.SendMessage(context.Background(), 1, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(rec.sent) != 1 || rec.sent[0] != "hi" {
		t.Errorf("sent = %v", rec.sent)
	}
}
