package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
)

const (
	DefaultCodeChunkSize  = 120
	DefaultProseChunkSize = 160
	DefaultChunkDelay     = 40 * time.Millisecond
)

// ErrTerminated is returned by Emit once a terminal event has been written.
var ErrTerminated = errors.New("stream: already terminated")

// Options control chunking and pacing. Non-positive sizes fall back to the
// defaults; a zero delay sends chunks back to back.
type Options struct {
	CodeChunkSize  int
	ProseChunkSize int
	ChunkDelay     time.Duration
}

// DefaultOptions returns the stock chunk sizes and delay.
func DefaultOptions() Options {
	return Options{
		CodeChunkSize:  DefaultCodeChunkSize,
		ProseChunkSize: DefaultProseChunkSize,
		ChunkDelay:     DefaultChunkDelay,
	}
}

// Runner executes a pipeline run. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, obs pipeline.Observer) (*pipeline.Outcome, error)
}

// Emitter writes one run's events to w as NDJSON and flushes after each one
// when w is an http.Flusher. Use one Emitter per run.
type Emitter struct {
	enc        *json.Encoder
	flusher    http.Flusher
	opts       Options
	terminated bool
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer, opts Options) *Emitter {
	if opts.CodeChunkSize <= 0 {
		opts.CodeChunkSize = DefaultCodeChunkSize
	}
	if opts.ProseChunkSize <= 0 {
		opts.ProseChunkSize = DefaultProseChunkSize
	}
	e := &Emitter{enc: json.NewEncoder(w), opts: opts}
	e.enc.SetEscapeHTML(false)
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Emit writes ev as one line. Nothing is written after a terminal event.
func (e *Emitter) Emit(ev Event) error {
	if e.terminated {
		return ErrTerminated
	}
	if ev.Type.Terminal() {
		e.terminated = true
	}
	if ev.Type == EventAgentError && ev.Message == "" {
		ev.Message = "stage failed"
	}
	if err := e.enc.Encode(ev); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Run executes req on r, streaming stage events as it goes. It ends the
// stream with a complete event on success or a single agent_error naming the
// failed stage. When the writer or ctx fails mid-run, nothing more is sent,
// including when ctx ends during a model call.
func (e *Emitter) Run(ctx context.Context, r Runner, req pipeline.Request) (*pipeline.Outcome, error) {
	out, err := r.Run(ctx, req, e)
	if err != nil {
		var se *pipeline.StageError
		if !errors.As(err, &se) || ctx.Err() != nil {
			return out, err
		}
		if emitErr := e.Emit(Event{Type: EventAgentError, Agent: se.Stage, Message: se.Err.Error()}); emitErr != nil {
			return out, errors.Join(err, emitErr)
		}
		return out, err
	}
	return out, e.Emit(Event{Type: EventComplete, Summary: SummaryOf(out)})
}

// StageStarted implements pipeline.Observer.
func (e *Emitter) StageStarted(ctx context.Context, stage agents.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Emit(Event{Type: EventAgentStart, Agent: stage})
}

// StageFinished implements pipeline.Observer. It replays the cleaned text as
// chunks, pausing between them, then marks the stage done.
func (e *Emitter) StageFinished(ctx context.Context, res agents.StageResult) error {
	size := e.opts.ProseChunkSize
	if res.Stage.ProducesCode() {
		size = e.opts.CodeChunkSize
	}
	for i, chunk := range Chunks(res.CleanedText, size) {
		if i > 0 {
			if err := e.pause(ctx); err != nil {
				return err
			}
		}
		if err := e.Emit(Event{Type: EventAgentChunk, Agent: res.Stage, Data: chunk}); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Emit(Event{Type: EventAgentDone, Agent: res.Stage})
}

func (e *Emitter) pause(ctx context.Context) error {
	if e.opts.ChunkDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.opts.ChunkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Chunks splits text into pieces of at most size runes. Concatenating the
// pieces gives back text exactly. Empty text has no chunks.
func Chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	var out []string
	start, n := 0, 0
	for i := range text {
		if n == size {
			out = append(out, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(out, text[start:])
}
