package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// sseServer streams the given data lines in SSE framing.
func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatStreamAccumulatesToolCalls(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c0","function":{"name":"shell","arguments":"{\"comm"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\":\"ls\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)
	p := NewOpenAIProvider("test", "key", srv.URL, "test-model")

	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "list files"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "c0" || tc.Name != "shell" {
		t.Errorf("tool call = %+v", tc)
	}
	if cmd, _ := tc.Arguments["command"].(string); cmd != "ls" {
		t.Errorf("fragmented arguments not reassembled: %v", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}

func TestChatStreamSparseToolCallIndices(t *testing.T) {
	// Some providers skip index values; the flush must follow what arrived
	// instead of assuming 0..n-1.
	srv := sseServer(t,
		`{"choices":[{"delta":{"tool_calls":[{"index":2,"id":"c2","function":{"name":"shell","arguments":"{\"command\":\"ls\"}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c0","function":{"name":"read_file","arguments":"{\"path\":\"a.go\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)
	p := NewOpenAIProvider("test", "key", srv.URL, "test-model")

	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "go"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "c0" || resp.ToolCalls[1].ID != "c2" {
		t.Errorf("index order lost: %q, %q", resp.ToolCalls[0].ID, resp.ToolCalls[1].ID)
	}
}

func TestChatContextLengthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"context_length_exceeded","message":"maximum context length is 4096 tokens"}}`)
	}))
	defer srv.Close()
	p := NewOpenAIProvider("test", "key", srv.URL, "test-model")

	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "huge"}},
	})
	if !errors.Is(err, ErrContextLengthExceeded) {
		t.Fatalf("want ErrContextLengthExceeded, got %v", err)
	}
}
