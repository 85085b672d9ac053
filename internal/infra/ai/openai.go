package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the cost-effective default.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider implements LLMProvider on top of the official OpenAI SDK.
type OpenAIProvider struct {
	client     openai.Client
	configured bool
	model      string
	budgetGate *BudgetGate
	recorder   UsageRecorder

	mu         sync.Mutex
	usageStats UsageStats
}

// OpenAIOption customizes the provider.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	model    string
	recorder UsageRecorder
	sdk      []option.RequestOption
}

// WithModel overrides the default model.
func WithModel(model string) OpenAIOption {
	return func(o *openAIOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithUsageRecorder forwards per-call usage to r.
func WithUsageRecorder(r UsageRecorder) OpenAIOption {
	return func(o *openAIOptions) { o.recorder = r }
}

// WithRequestOptions passes raw SDK options (base URL, HTTP client...).
func WithRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(o *openAIOptions) { o.sdk = append(o.sdk, opts...) }
}

// NewOpenAIProvider creates a new OpenAI adapter. An empty apiKey yields an unavailable provider.
func NewOpenAIProvider(apiKey string, budgetGate *BudgetGate, opts ...OpenAIOption) *OpenAIProvider {
	o := openAIOptions{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&o)
	}

	// Retries are owned by the calling module, which knows its deadline
	sdkOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(60 * time.Second),
	}, o.sdk...)

	return &OpenAIProvider{
		client:     openai.NewClient(sdkOpts...),
		configured: apiKey != "",
		model:      o.model,
		budgetGate: budgetGate,
		recorder:   o.recorder,
		usageStats: UsageStats{LastReset: time.Now()},
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "OpenAI"
}

// IsAvailable checks if the API key is configured.
func (p *OpenAIProvider) IsAvailable() bool {
	return p.configured
}

// Complete sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	// Estimate cost and check budget
	if p.budgetGate != nil && !p.budgetGate.CanSpend(p.estimateCost(req, model)) {
		return nil, fmt.Errorf("openai: %w (%s)", ErrBudgetExceeded, p.budgetGate.GetStatus())
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	totalTokens := int(resp.Usage.TotalTokens)
	actualCost := calculateCost(totalTokens, model)

	if p.budgetGate != nil {
		p.budgetGate.RecordSpend(actualCost)
	}
	p.mu.Lock()
	p.usageStats.TotalRequests++
	p.usageStats.TotalTokens += totalTokens
	p.usageStats.TotalCostUSD += actualCost
	p.mu.Unlock()
	if p.recorder != nil {
		p.recorder.RecordLLMCall(totalTokens, actualCost, latency)
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  totalTokens,
		CostUSD:      actualCost,
		Latency:      latency,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// estimateCost estimates the cost before making a request.
func (p *OpenAIProvider) estimateCost(req CompletionRequest, model string) float64 {
	// Rough estimate: assume average prompt size
	estimatedTokens := 1000 + req.MaxTokens
	return calculateCost(estimatedTokens, model)
}

// calculateCost computes the cost based on tokens and model.
func calculateCost(tokens int, model string) float64 {
	// Blended input/output prices per token
	switch model {
	case "gpt-4o":
		return float64(tokens) * 0.00001
	case "gpt-4o-mini":
		return float64(tokens) * 0.0000005
	default:
		return float64(tokens) * 0.00001 // Conservative estimate
	}
}

// GetUsageStats returns current usage statistics.
func (p *OpenAIProvider) GetUsageStats() UsageStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.usageStats
	if p.budgetGate != nil {
		stats.BudgetRemaining = p.budgetGate.Remaining()
	}
	return stats
}

// ResetUsage resets all usage counters.
func (p *OpenAIProvider) ResetUsage() {
	p.mu.Lock()
	p.usageStats = UsageStats{LastReset: time.Now()}
	p.mu.Unlock()
}

// Ensure OpenAIProvider implements LLMProvider
var _ LLMProvider = (*OpenAIProvider)(nil)
