// Package pipeline sequences the stage agents: generate, review, refine when
// the review calls for it, then document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
)

// RefinePolicy decides from the review whether the refiner runs.
type RefinePolicy string

const (
	// RefineOnFindings refines when Bugs/Issues, Security Flaws or
	// Improvements has a finding other than "none".
	RefineOnFindings RefinePolicy = "findings"
	// RefineOnMarker refines whenever one of those labels appears anywhere in
	// the review, whatever it says.
	RefineOnMarker RefinePolicy = "marker"
)

// ParseRefinePolicy accepts "findings" and "marker"; empty means findings.
func ParseRefinePolicy(s string) (RefinePolicy, error) {
	switch p := RefinePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", RefineOnFindings:
		return RefineOnFindings, nil
	case RefineOnMarker:
		return RefineOnMarker, nil
	default:
		return "", fmt.Errorf("unknown refine policy %q (want findings or marker)", s)
	}
}

func (p RefinePolicy) needsRefinement(r agents.ReviewReport) bool {
	if p == RefineOnMarker {
		return r.ContainsMarker()
	}
	return r.HasActionableFindings()
}

// Options tune an Orchestrator. The zero value runs every stage once with no
// deadline of its own.
type Options struct {
	// StageTimeout bounds each stage's model call. Zero disables it.
	StageTimeout time.Duration
	// MaxAttempts > 1 retries a stage on rate-limit and server errors.
	MaxAttempts  int
	RefinePolicy RefinePolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Request is one pipeline run's input. It is not modified by the run.
type Request struct {
	// RunID names the run in logs and the Outcome. Empty gets a fresh UUID.
	RunID        string
	Requirements string
	Model        string
	Temperature  *float64
	MaxTokens    int
}

func (r Request) settings() agents.Settings {
	return agents.Settings{Model: r.Model, Temperature: r.Temperature, MaxTokens: r.MaxTokens}
}

// Observer is told about stage boundaries as they happen. A non-nil error
// from either method aborts the run.
type Observer interface {
	StageStarted(ctx context.Context, stage agents.Stage) error
	StageFinished(ctx context.Context, result agents.StageResult) error
}

type nopObserver struct{}

func (nopObserver) StageStarted(context.Context, agents.Stage) error        { return nil }
func (nopObserver) StageFinished(context.Context, agents.StageResult) error { return nil }

// StageError reports the stage whose failure moved the run to StateFailed.
type StageError struct {
	Stage agents.Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of a run. On failure it holds whatever the stages
// before the failing one produced, and State is StateFailed.
type Outcome struct {
	RunID             string
	State             State
	GeneratedCode     string
	ReviewReport      string
	Review            agents.ReviewReport
	RefinedCode       string
	RefinementApplied bool
	// FinalCode is RefinedCode when refinement ran, else GeneratedCode.
	FinalCode     string
	Documentation string
	Results       []agents.StageResult
	// FailedStage is set when a stage error ended the run.
	FailedStage agents.Stage
}

// Succeeded reports whether the run reached StateComplete.
func (o *Outcome) Succeeded() bool { return o.State == StateComplete }

// Orchestrator runs pipelines. It holds no per-run state, so one value may
// serve concurrent runs.
type Orchestrator struct {
	generator  *agents.Generator
	reviewer   *agents.Reviewer
	refiner    *agents.Refiner
	documenter *agents.Documenter
	opts       Options
}

// New returns an Orchestrator whose stages call c.
func New(c agents.Completer, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RefinePolicy == "" {
		opts.RefinePolicy = RefineOnFindings
	}
	return &Orchestrator{
		generator:  agents.NewGenerator(c),
		reviewer:   agents.NewReviewer(c),
		refiner:    agents.NewRefiner(c),
		documenter: agents.NewDocumenter(c),
		opts:       opts,
	}
}

// run is the state of one execution.
type run struct {
	o   *Orchestrator
	obs Observer
	log *slog.Logger
	out *Outcome
}

// Run executes the pipeline for req, reporting stage boundaries to obs (which
// may be nil). The returned Outcome is never nil. The error is a *StageError
// when a stage failed, or the observer's error when it aborted the run.
func (o *Orchestrator) Run(ctx context.Context, req Request, obs Observer) (*Outcome, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	id := req.RunID
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		o:   o,
		obs: obs,
		log: o.opts.Logger.With("run_id", id),
		out: &Outcome{RunID: id, State: StateGenerating},
	}
	r.log.Info("pipeline started", "model", req.Model, "refine_policy", o.opts.RefinePolicy)
	start := time.Now()

	if err := r.execute(ctx, req); err != nil {
		r.out.State = StateFailed
		var se *StageError
		if errors.As(err, &se) {
			r.out.FailedStage = se.Stage
		}
		r.log.Warn("pipeline failed", "stage", r.out.FailedStage, "error", err, "duration", time.Since(start))
		return r.out, err
	}
	r.log.Info("pipeline complete", "refinement_applied", r.out.RefinementApplied, "duration", time.Since(start))
	return r.out, nil
}

func (r *run) execute(ctx context.Context, req Request) error {
	set := req.settings()
	out := r.out

	gen, err := r.stage(ctx, agents.StageGenerator, func(ctx context.Context) (agents.StageResult, error) {
		return r.o.generator.Generate(ctx, req.Requirements, set)
	})
	if err != nil {
		return err
	}
	out.GeneratedCode = gen.CleanedText
	out.FinalCode = gen.CleanedText

	if err := r.advance(StateReviewing); err != nil {
		return err
	}
	var report agents.ReviewReport
	rev, err := r.stage(ctx, agents.StageReviewer, func(ctx context.Context) (res agents.StageResult, err error) {
		res, report, err = r.o.reviewer.Review(ctx, out.GeneratedCode, set)
		return res, err
	})
	if err != nil {
		return err
	}
	out.ReviewReport = rev.CleanedText
	out.Review = report

	if err := r.advance(StateRefinementDecision); err != nil {
		return err
	}
	refine := r.o.opts.RefinePolicy.needsRefinement(report)
	r.log.Info("refinement decision", "refine", refine, "bugs", report.Actionable(agents.CategoryBugs),
		"security", report.Actionable(agents.CategorySecurity), "improvements", report.Actionable(agents.CategoryImprovements))

	if refine {
		if err := r.advance(StateRefining); err != nil {
			return err
		}
		ref, err := r.stage(ctx, agents.StageRefiner, func(ctx context.Context) (agents.StageResult, error) {
			return r.o.refiner.Refine(ctx, out.GeneratedCode, out.ReviewReport, set)
		})
		if err != nil {
			return err
		}
		out.RefinedCode = ref.CleanedText
		out.RefinementApplied = true
		out.FinalCode = ref.CleanedText
	}

	if err := r.advance(StateDocumenting); err != nil {
		return err
	}
	doc, err := r.stage(ctx, agents.StageDocumenter, func(ctx context.Context) (agents.StageResult, error) {
		return r.o.documenter.Document(ctx, out.FinalCode, out.ReviewReport, set)
	})
	if err != nil {
		return err
	}
	out.Documentation = doc.CleanedText

	return r.advance(StateComplete)
}

// advance moves the run to the next state.
func (r *run) advance(to State) error {
	if !allowed(r.out.State, to) {
		return fmt.Errorf("illegal transition %s -> %s", r.out.State, to)
	}
	r.log.Debug("state transition", "from", r.out.State, "to", to)
	r.out.State = to
	return nil
}

// stage runs one stage under the stage timeout, retrying per Options, and
// records its result.
func (r *run) stage(ctx context.Context, stage agents.Stage, fn func(context.Context) (agents.StageResult, error)) (agents.StageResult, error) {
	log := r.log.With("stage", stage)

	if want := StageState(stage); r.out.State != want {
		return agents.StageResult{}, fmt.Errorf("%s: run is in state %s, want %s", stage, r.out.State, want)
	}
	if err := ctx.Err(); err != nil {
		return agents.StageResult{}, &StageError{Stage: stage, Err: llm.InvocationError(string(stage), err)}
	}
	if err := r.obs.StageStarted(ctx, stage); err != nil {
		return agents.StageResult{}, fmt.Errorf("%s: observer: %w", stage, err)
	}
	log.Info("stage started")
	start := time.Now()

	var res agents.StageResult
	attempt := 0
	err := llm.WithRetry(ctx, r.o.opts.MaxAttempts, func() error {
		attempt++
		if attempt > 1 {
			log.Warn("retrying stage", "attempt", attempt)
		}
		sctx, cancel := r.stageContext(ctx)
		defer cancel()
		var err error
		res, err = fn(sctx)
		return err
	})
	if err != nil {
		log.Warn("stage failed", "error", err, "duration", time.Since(start))
		return res, &StageError{Stage: stage, Err: err}
	}
	log.Info("stage finished", "duration", time.Since(start), "chars", len(res.CleanedText))

	r.out.Results = append(r.out.Results, res)
	if err := r.obs.StageFinished(ctx, res); err != nil {
		return res, fmt.Errorf("%s: observer: %w", stage, err)
	}
	return res, nil
}

func (r *run) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.opts.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.o.opts.StageTimeout)
}
