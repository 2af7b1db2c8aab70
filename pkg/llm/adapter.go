package llm

import (
	"context"
	"errors"
	"strings"
)

// Options are the per-call model settings. Zero values mean "use the
// default": an empty Model falls back to Config.DefaultModel, a nil
// Temperature and a non-positive MaxTokens leave the choice to the provider.
type Options struct {
	// Stage names the pipeline stage for error attribution.
	Stage       string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Adapter wraps a Client behind a single-shot text completion call. It holds
// configuration only, so one Adapter may serve any number of concurrent runs.
type Adapter struct {
	cfg       Config
	newClient func(cfg Config, modelID string) (Client, error)
}

// NewAdapter returns an Adapter that builds provider clients from cfg.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, newClient: NewClient}
}

// NewAdapterWithClient returns an Adapter whose calls all go to client,
// whatever model they name.
func NewAdapterWithClient(cfg Config, client Client) *Adapter {
	return &Adapter{cfg: cfg, newClient: func(Config, string) (Client, error) { return client, nil }}
}

// Config returns the adapter's configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Complete sends messages as one chat completion and returns the text of the
// first completion. Every failure comes back as a *ModelInvocationError
// carrying opts.Stage. No retry happens here.
func (a *Adapter) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = a.cfg.DefaultModel
	}
	if model == "" {
		return "", &ModelInvocationError{Stage: opts.Stage, Kind: KindNetwork, Err: errors.New("no model given and no default model configured")}
	}

	client, err := a.newClient(a.cfg, model)
	if err != nil {
		return "", &ModelInvocationError{Stage: opts.Stage, Kind: KindNetwork, Err: err}
	}

	req := GenerateRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var resp GenerateResponse
	if a.cfg.UseStreaming {
		var ch <-chan StreamEvent
		ch, err = client.Stream(ctx, req)
		if err == nil {
			resp, err = CollectStream(ch)
		}
	} else {
		resp, err = client.Complete(ctx, req)
	}
	if err != nil {
		// A client may swallow ctx.Err() into a transport error; report the
		// context state so timeouts and cancellations are classified as such.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		return "", InvocationError(opts.Stage, err)
	}
	return resp.Text(), nil
}
