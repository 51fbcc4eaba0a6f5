package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/devagent/internal/compact"
	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/telemetry"
	"github.com/nextlevelbuilder/devagent/internal/tokens"
)

// AccountingClient wraps a provider so every call runs the token check and,
// when the history has crossed the threshold, compaction. Retries live in
// the provider itself; this layer only shapes the request.
type AccountingClient struct {
	inner      providers.Provider
	threshold  float64
	keepRecent int
}

func NewAccountingClient(inner providers.Provider, threshold float64, keepRecent int) *AccountingClient {
	if threshold <= 0 {
		threshold = 0.80
	}
	if keepRecent <= 0 {
		keepRecent = 20
	}
	return &AccountingClient{inner: inner, threshold: threshold, keepRecent: keepRecent}
}

func (c *AccountingClient) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	req = c.shape(ctx, req)
	ctx, span := c.startSpan(ctx, "llm.chat", req)
	defer span.End()

	resp, err := c.inner.Chat(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *AccountingClient) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	req = c.shape(ctx, req)
	ctx, span := c.startSpan(ctx, "llm.chat_stream", req)
	defer span.End()

	resp, err := c.inner.ChatStream(ctx, req, onChunk)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *AccountingClient) DefaultModel() string { return c.inner.DefaultModel() }
func (c *AccountingClient) Name() string         { return c.inner.Name() }

func (c *AccountingClient) startSpan(ctx context.Context, name string, req providers.ChatRequest) (context.Context, trace.Span) {
	model := req.Model
	if model == "" {
		model = c.inner.DefaultModel()
	}
	return telemetry.StartSpan(ctx, name,
		attribute.String("llm.provider", c.inner.Name()),
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	)
}

// shape compacts the request history when it is close to the context limit.
// The summarization call goes to the inner provider directly so it cannot
// recurse through this wrapper.
func (c *AccountingClient) shape(ctx context.Context, req providers.ChatRequest) providers.ChatRequest {
	model := req.Model
	if model == "" {
		model = c.inner.DefaultModel()
	}

	before := tokens.Count(req.Messages, model)
	if !tokens.ShouldCompress(req.Messages, model, c.threshold) {
		return req
	}

	req.Messages = compact.MaybeCompress(ctx, req.Messages, model, c.inner, c.threshold, c.keepRecent)
	slog.Debug("request history compacted before model call",
		"model", model,
		"tokens_before", before,
		"tokens_after", tokens.Count(req.Messages, model),
		"limit", tokens.Limit(model))
	return req
}
