package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
)

func init() {
	llm.RegisterProvider("openai", func(cfg llm.Config, modelName string) (llm.Client, error) {
		return newOpenAIClient(cfg, modelName)
	})
}

type openaiClient struct {
	sdk       *openai.Client
	modelName string
}

// newOpenAIClient targets cfg.BaseURL, which may be any OpenAI-compatible
// server (Ollama, vLLM, LiteLLM...). Local servers usually ignore the key, so
// a missing key is only an error against the public endpoint.
func newOpenAIClient(cfg llm.Config, modelName string) (*openaiClient, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: no API key configured and OPENAI_API_KEY not set")
	}
	conf := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RequestTimeout > 0 {
		conf.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &openaiClient{
		sdk:       openai.NewClientWithConfig(conf),
		modelName: modelName,
	}, nil
}

// Complete performs one blocking chat completion.
func (c *openaiClient) Complete(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	resp, err := c.sdk.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return llm.GenerateResponse{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.GenerateResponse{}, &llm.MalformedResponseError{Message: "openai: response has no choices"}
	}
	return convertOpenAIResponse(resp), nil
}

// Stream emits text deltas as they arrive, then one complete event carrying
// the accumulated text. A transport failure mid-stream is sent as an error
// event before the channel closes.
func (c *openaiClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	stream, err := c.sdk.CreateChatCompletionStream(ctx, c.buildRequest(req))
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		var text strings.Builder
		stop := llm.StopReasonEndTurn
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventError, Err: mapOpenAIError(err)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason == openai.FinishReasonLength {
				stop = llm.StopReasonMaxTokens
			}
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if !send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventDelta, Text: choice.Delta.Content}) {
				return
			}
		}

		resp := llm.GenerateResponse{StopReason: stop}
		if text.Len() > 0 {
			resp.Content = []llm.ContentBlock{{Type: llm.ContentTypeText, Text: text.String()}}
		}
		send(ctx, ch, llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp})
	}()
	return ch, nil
}

func (c *openaiClient) buildRequest(req llm.GenerateRequest) openai.ChatCompletionRequest {
	params := openai.ChatCompletionRequest{
		Model:    c.modelName,
		Messages: buildMessages(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		params.Temperature = openaiTemperature(*req.Temperature)
	}
	return params
}

// openaiTemperature converts t for go-openai, whose request struct drops a
// zero temperature (omitempty). The smallest positive float32 survives
// encoding and decodes greedily on every server we target.
func openaiTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// ─── message conversion ───────────────────────────────────────────────────────

// buildMessages converts unified messages to OpenAI's chat completion format.
func buildMessages(msgs []llm.Message, system string) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage

	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			// Handled above via req.System; skip any inline system messages.
			continue
		case llm.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Text(),
			})
		case llm.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Text(),
			})
		}
	}
	return out
}

// convertOpenAIResponse maps the first choice to the unified GenerateResponse.
func convertOpenAIResponse(resp openai.ChatCompletionResponse) llm.GenerateResponse {
	var blocks []llm.ContentBlock
	stop := llm.StopReasonEndTurn
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != "" {
			blocks = append(blocks, llm.ContentBlock{
				Type: llm.ContentTypeText,
				Text: choice.Message.Content,
			})
		}
		if choice.FinishReason == openai.FinishReasonLength {
			stop = llm.StopReasonMaxTokens
		}
	}

	return llm.GenerateResponse{
		Content:    blocks,
		StopReason: stop,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return llm.StatusError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return llm.StatusError(reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &llm.MalformedResponseError{Message: "openai: " + err.Error()}
	}
	return fmt.Errorf("openai: %w", err)
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
