package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
)

func TestBudgetGateLimitsAndResets(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	bg := newBudgetGateAt(1.0, 1.5, func() time.Time { return now })

	if !bg.CanSpend(0.8) {
		t.Fatal("expected 0.8 to fit the daily budget")
	}
	bg.RecordSpend(0.8)
	if bg.CanSpend(0.3) {
		t.Error("expected daily limit to block 0.3 more")
	}

	// Two hours later is a new day and a new month
	now = now.Add(2 * time.Hour)
	if !bg.CanSpend(0.5) {
		t.Error("expected new day and month to reset both counters")
	}
	if got := bg.Remaining(); got != 1.5 {
		t.Errorf("expected full monthly budget after reset, got %v", got)
	}
}

type fakeRecorder struct {
	mu     sync.Mutex
	tokens int
	calls  int
}

func (r *fakeRecorder) RecordLLMCall(tokens int, cost float64, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens += tokens
	r.calls++
}

func TestOpenAIProviderComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"reasoning\":\"ok\"}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
		}`)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	p := NewOpenAIProvider("test-key", NewBudgetGate(10, 10),
		WithUsageRecorder(rec),
		WithRequestOptions(option.WithBaseURL(srv.URL+"/")),
	)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "decide"}},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != `{"reasoning":"ok"}` || resp.TotalTokens != 20 || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gotBody["model"] != DefaultOpenAIModel {
		t.Errorf("expected default model in request, got %v", gotBody["model"])
	}
	if msgs, _ := gotBody["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected 2 messages in request, got %v", gotBody["messages"])
	}
	if rec.calls != 1 || rec.tokens != 20 {
		t.Errorf("usage recorder not called: %+v", rec)
	}
	if stats := p.GetUsageStats(); stats.TotalRequests != 1 || stats.TotalTokens != 20 {
		t.Errorf("unexpected usage stats: %+v", stats)
	}
}

func TestOpenAIProviderGuards(t *testing.T) {
	p := NewOpenAIProvider("", nil)
	if p.IsAvailable() {
		t.Error("provider without key must be unavailable")
	}
	if _, err := p.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}

	broke := NewOpenAIProvider("key", NewBudgetGate(0, 0))
	if _, err := broke.Complete(context.Background(), CompletionRequest{MaxTokens: 100}); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestValidateDecisionResponse(t *testing.T) {
	parse := func(s string) *DecisionResponse {
		var r DecisionResponse
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			t.Fatalf("bad fixture: %v", err)
		}
		return &r
	}
	allowed := []string{"trade", "wait"}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"reasoning":"r","decision":{"chosen_action":"trade","confidence":0.6,"resource_cost":10,"justification":"j"}}`, ""},
		{"no reasoning", `{"decision":{"chosen_action":"trade","confidence":0.6,"justification":"j"}}`, "reasoning"},
		{"unknown action", `{"reasoning":"r","decision":{"chosen_action":"nuke","confidence":0.6,"justification":"j"}}`, "invalid chosen_action"},
		{"confidence", `{"reasoning":"r","decision":{"chosen_action":"wait","confidence":1.5,"justification":"j"}}`, "confidence"},
		{"negative cost", `{"reasoning":"r","decision":{"chosen_action":"wait","confidence":0.5,"resource_cost":-1,"justification":"j"}}`, "resource_cost"},
		{"impact without target", `{"reasoning":"r","decision":{"chosen_action":"wait","confidence":0.5,"social_impact":{"magnitude":3},"justification":"j"}}`, "target_id"},
		{"no justification", `{"reasoning":"r","decision":{"chosen_action":"wait","confidence":0.5}}`, "justification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDecisionResponse(parse(tt.body), allowed)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPromptsAndFences(t *testing.T) {
	sys := BuildSystemPrompt("You are the treasury.", []string{"invest", "save"})
	if !strings.Contains(sys, "invest|save") || !strings.Contains(sys, "You are the treasury.") {
		t.Errorf("system prompt missing role or actions")
	}
	ctx := BuildContextPrompt("quiet", nil)
	if !strings.Contains(ctx, "- none") {
		t.Errorf("expected empty actions marker:\n%s", ctx)
	}
	if got := StripCodeFence("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("unexpected fence strip: %q", got)
	}
}
