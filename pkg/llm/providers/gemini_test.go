package providers

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
)

func partText(t *testing.T, c *genai.Content) string {
	t.Helper()
	if c == nil || len(c.Parts) != 1 {
		t.Fatalf("content = %+v, want one part", c)
	}
	text, ok := c.Parts[0].(genai.Text)
	if !ok {
		t.Fatalf("part is %T, want genai.Text", c.Parts[0])
	}
	return string(text)
}

func TestBuildContents(t *testing.T) {
	cases := []struct {
		name      string
		msgs      []llm.Message
		wantRoles []string // history roles
		wantLast  string
	}{
		{
			name:     "stage prompt",
			msgs:     []llm.Message{llm.TextMessage(llm.RoleUser, "Write an adder.")},
			wantLast: "Write an adder.",
		},
		{
			name: "system goes to SystemInstruction",
			msgs: []llm.Message{
				llm.TextMessage(llm.RoleSystem, "You are a reviewer."),
				llm.TextMessage(llm.RoleUser, "Review this."),
			},
			wantLast: "Review this.",
		},
		{
			name: "assistant becomes model",
			msgs: []llm.Message{
				llm.TextMessage(llm.RoleUser, "draft"),
				llm.TextMessage(llm.RoleAssistant, "v1"),
				llm.TextMessage(llm.RoleUser, "refine"),
			},
			wantRoles: []string{"user", "model"},
			wantLast:  "refine",
		},
		{
			name: "blank turns skipped",
			msgs: []llm.Message{
				llm.TextMessage(llm.RoleAssistant, ""),
				llm.TextMessage(llm.RoleUser, "only"),
			},
			wantLast: "only",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hist, last := buildContents(tc.msgs)
			if len(hist) != len(tc.wantRoles) {
				t.Fatalf("history = %d entries, want %d", len(hist), len(tc.wantRoles))
			}
			for i, role := range tc.wantRoles {
				if hist[i].Role != role {
					t.Errorf("history[%d].Role = %q, want %q", i, hist[i].Role, role)
				}
			}
			if last.Role != "user" {
				t.Errorf("last.Role = %q, want user", last.Role)
			}
			if got := partText(t, last); got != tc.wantLast {
				t.Errorf("last = %q, want %q", got, tc.wantLast)
			}
		})
	}

	if hist, last := buildContents([]llm.Message{llm.TextMessage(llm.RoleSystem, "sys")}); hist != nil || last != nil {
		t.Errorf("system-only: got %v, %v; want nothing to send", hist, last)
	}
}

func TestConvertGeminiResponse(t *testing.T) {
	candidate := func(reason genai.FinishReason, parts ...genai.Part) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: reason,
		}}}
	}

	resp := candidate(genai.FinishReasonStop, genai.Text("```go\n"), genai.Text(""), genai.Text("func Add() {}\n```"))
	resp.UsageMetadata = &genai.UsageMetadata{PromptTokenCount: 42, CandidatesTokenCount: 7}
	got := convertGeminiResponse(resp)
	if text := got.Text(); text != "```go\nfunc Add() {}\n```" {
		t.Errorf("text = %q", text)
	}
	if len(got.Content) != 2 {
		t.Errorf("blocks = %d, want 2 (empty part dropped)", len(got.Content))
	}
	if got.StopReason != llm.StopReasonEndTurn || got.Usage != (llm.Usage{InputTokens: 42, OutputTokens: 7}) {
		t.Errorf("stop = %v, usage = %+v", got.StopReason, got.Usage)
	}

	if got := convertGeminiResponse(candidate(genai.FinishReasonMaxTokens, genai.Text("cut"))); got.StopReason != llm.StopReasonMaxTokens {
		t.Errorf("stop = %v, want max_tokens", got.StopReason)
	}
	if got := convertGeminiResponse(&genai.GenerateContentResponse{}); got.Text() != "" {
		t.Errorf("no candidates: text = %q", got.Text())
	}
}

func TestMapGeminiError(t *testing.T) {
	cases := []struct {
		code      int
		kind      llm.ErrorKind
		retryable bool
	}{
		{429, llm.KindStatus, true},
		{401, llm.KindStatus, false},
		{403, llm.KindStatus, false},
		{500, llm.KindStatus, true},
		{503, llm.KindStatus, true},
	}
	for _, tc := range cases {
		err := mapGeminiError(&googleapi.Error{Code: tc.code, Message: "quota"})
		if got := llm.Classify(err); got != tc.kind {
			t.Errorf("%d: kind = %s, want %s", tc.code, got, tc.kind)
		}
		if got := llm.Retryable(err); got != tc.retryable {
			t.Errorf("%d: retryable = %v, want %v", tc.code, got, tc.retryable)
		}
	}

	var auth *llm.AuthError
	if !errors.As(mapGeminiError(&googleapi.Error{Code: 401}), &auth) {
		t.Error("401 should map to *llm.AuthError")
	}
	if err := mapGeminiError(errors.New("dial tcp: refused")); llm.Classify(err) != llm.KindNetwork {
		t.Errorf("plain error kind = %s, want network", llm.Classify(err))
	}
	if mapGeminiError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestNewGeminiClient_Key(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := newGeminiClient(llm.Config{}, "gemini-1.5-flash"); err == nil {
		t.Fatal("want error without key")
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	c, err := newGeminiClient(llm.Config{}, "gemini-1.5-flash")
	if err != nil || c.key != "from-env" {
		t.Fatalf("env fallback: %+v, %v", c, err)
	}
	c, err = newGeminiClient(llm.Config{GeminiAPIKey: "from-config"}, "gemini-1.5-flash")
	if err != nil || c.key != "from-config" || c.modelName != "gemini-1.5-flash" {
		t.Fatalf("config key: %+v, %v", c, err)
	}
}
