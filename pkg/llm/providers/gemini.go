package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
)

func init() {
	llm.RegisterProvider("gemini", func(cfg llm.Config, modelName string) (llm.Client, error) {
		return newGeminiClient(cfg, modelName)
	})
}

// geminiClient opens a genai client per call so nothing outlives a request.
type geminiClient struct {
	key       string
	timeout   time.Duration
	modelName string
}

func newGeminiClient(cfg llm.Config, modelName string) (*geminiClient, error) {
	key := cfg.GeminiAPIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: no API key configured and GEMINI_API_KEY not set")
	}
	return &geminiClient{key: key, timeout: cfg.RequestTimeout, modelName: modelName}, nil
}

// Complete performs one blocking generation.
func (c *geminiClient) Complete(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	history, last := buildContents(req.Messages)
	if last == nil {
		return llm.GenerateResponse{}, fmt.Errorf("gemini: no user message to send")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	sdk, err := genai.NewClient(ctx, option.WithAPIKey(c.key))
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("gemini: create client: %w", err)
	}
	defer sdk.Close()

	model := sdk.GenerativeModel(c.modelName)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	// System prompt goes to SystemInstruction, not the message history.
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	cs := model.StartChat()
	cs.History = history
	apiResp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return llm.GenerateResponse{}, mapGeminiError(err)
	}
	if len(apiResp.Candidates) == 0 {
		return llm.GenerateResponse{}, &llm.MalformedResponseError{Message: "gemini: response has no candidates"}
	}
	return convertGeminiResponse(apiResp), nil
}

// Stream emits the text as one delta then a final complete event.
func (c *geminiClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, req)
		if err != nil {
			send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventError, Err: err})
			return
		}
		if text := resp.Text(); text != "" {
			if !send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventDelta, Text: text}) {
				return
			}
		}
		send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp})
	}()
	return ch, nil
}

// ─── message translation ─────────────────────────────────────────────────────

// buildContents translates unified messages into Gemini's format. The last
// content is sent with SendMessage; everything before it is chat history.
func buildContents(msgs []llm.Message) (history []*genai.Content, last *genai.Content) {
	var contents []*genai.Content
	for _, m := range msgs {
		var role string
		switch m.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			continue // system is handled via model.SystemInstruction
		}
		text := m.Text()
		if text == "" {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
	}
	if len(contents) == 0 {
		return nil, nil
	}
	return contents[:len(contents)-1], contents[len(contents)-1]
}

// ─── response conversion ─────────────────────────────────────────────────────

func convertGeminiResponse(resp *genai.GenerateContentResponse) llm.GenerateResponse {
	var blocks []llm.ContentBlock
	stopReason := llm.StopReasonEndTurn

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if v, ok := part.(genai.Text); ok && v != "" {
					blocks = append(blocks, llm.ContentBlock{Type: llm.ContentTypeText, Text: string(v)})
				}
			}
		}
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			stopReason = llm.StopReasonMaxTokens
		}
	}

	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return llm.GenerateResponse{
		Content:    blocks,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return llm.StatusError(apiErr.Code, apiErr.Message, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
