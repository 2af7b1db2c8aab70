// Package agents implements the four pipeline stages. Each stage fills its
// prompt template, makes one completion call and cleans the returned text.
package agents

import (
	"context"

	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
	"github.com/ravi-parthasarathy/codecrew/pkg/prompt"
	"github.com/ravi-parthasarathy/codecrew/pkg/sanitize"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageGenerator  Stage = "generator"
	StageReviewer   Stage = "reviewer"
	StageRefiner    Stage = "refiner"
	StageDocumenter Stage = "documenter"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageGenerator, StageReviewer, StageRefiner, StageDocumenter}

// ProducesCode reports whether the stage's output is code rather than prose.
func (s Stage) ProducesCode() bool {
	return s == StageGenerator || s == StageRefiner
}

// StageResult is the output of one stage invocation. CleanedText is what
// later stages consume.
type StageResult struct {
	Stage       Stage  `json:"stage"`
	RawText     string `json:"rawText"`
	CleanedText string `json:"cleanedText"`
}

// Completer is the model call a stage needs. *llm.Adapter implements it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// Settings are the request-level model settings. A nil Temperature or a
// non-positive MaxTokens leaves the stage default in place; an empty Model
// leaves the choice to the Completer's configured default.
type Settings struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// stageDef is the fixed part of a stage: its template, defaults and the
// cleaning applied to the model's text.
type stageDef struct {
	stage       Stage
	template    string
	temperature *float64
	maxTokens   int
	clean       func(string) string
}

// refinerFallbackTemperature applies when the request carries none.
const refinerFallbackTemperature = 0.2

var (
	generatorDef = stageDef{
		stage:       StageGenerator,
		template:    prompt.Generator,
		temperature: llm.Float(0.2),
		maxTokens:   1200,
		clean:       sanitize.Sanitize,
	}
	reviewerDef = stageDef{
		stage:       StageReviewer,
		template:    prompt.Reviewer,
		temperature: llm.Float(0.0),
		maxTokens:   800,
		clean:       sanitize.StripThink,
	}
	refinerDef = stageDef{
		stage:       StageRefiner,
		template:    prompt.Refiner,
		temperature: llm.Float(refinerFallbackTemperature),
		maxTokens:   1200,
		clean:       sanitize.Sanitize,
	}
	documenterDef = stageDef{
		stage:       StageDocumenter,
		template:    prompt.Documenter,
		temperature: llm.Float(0.4),
		maxTokens:   1200,
		clean:       sanitize.StripThink,
	}
)

// options merges the request settings over the stage defaults.
func (d stageDef) options(set Settings) llm.Options {
	opts := llm.Options{
		Stage:     string(d.stage),
		Model:     set.Model,
		MaxTokens: d.maxTokens,
	}
	temp := d.temperature
	if set.Temperature != nil {
		temp = set.Temperature
	}
	if temp != nil {
		opts.Temperature = llm.Float(*temp)
	}
	if set.MaxTokens > 0 {
		opts.MaxTokens = set.MaxTokens
	}
	return opts
}

func (d stageDef) run(ctx context.Context, c Completer, set Settings, bindings map[string]string) (StageResult, error) {
	filled, err := prompt.Fill(d.template, bindings)
	if err != nil {
		return StageResult{Stage: d.stage}, &llm.ModelInvocationError{Stage: string(d.stage), Kind: llm.KindBinding, Err: err}
	}
	raw, err := c.Complete(ctx, []llm.Message{llm.TextMessage(llm.RoleUser, filled)}, d.options(set))
	if err != nil {
		return StageResult{Stage: d.stage}, llm.InvocationError(string(d.stage), err)
	}
	return StageResult{Stage: d.stage, RawText: raw, CleanedText: d.clean(raw)}, nil
}

// Generator turns requirements into code.
type Generator struct{ c Completer }

func NewGenerator(c Completer) *Generator { return &Generator{c: c} }

// Generate returns code only; fences and think spans are removed.
func (g *Generator) Generate(ctx context.Context, requirements string, set Settings) (StageResult, error) {
	return generatorDef.run(ctx, g.c, set, map[string]string{
		prompt.KeyRequirements: requirements,
	})
}

// Reviewer critiques generated code.
type Reviewer struct{ c Completer }

func NewReviewer(c Completer) *Reviewer { return &Reviewer{c: c} }

// Review returns the prose report and its parsed form.
func (r *Reviewer) Review(ctx context.Context, code string, set Settings) (StageResult, ReviewReport, error) {
	res, err := reviewerDef.run(ctx, r.c, set, map[string]string{
		prompt.KeyGeneratedCode: code,
	})
	if err != nil {
		return res, ReviewReport{}, err
	}
	return res, ParseReview(res.CleanedText), nil
}

// Refiner rewrites code to address a review.
type Refiner struct{ c Completer }

func NewRefiner(c Completer) *Refiner { return &Refiner{c: c} }

// Refine returns standalone code. It inherits the request temperature and
// falls back to 0.2 when the request has none.
func (r *Refiner) Refine(ctx context.Context, original, review string, set Settings) (StageResult, error) {
	return refinerDef.run(ctx, r.c, set, map[string]string{
		prompt.KeyOriginalCode: original,
		prompt.KeyReviewReport: review,
	})
}

// Documenter writes a README-style document for the final code.
type Documenter struct{ c Completer }

func NewDocumenter(c Completer) *Documenter { return &Documenter{c: c} }

func (d *Documenter) Document(ctx context.Context, finalCode, review string, set Settings) (StageResult, error) {
	return documenterDef.run(ctx, d.c, set, map[string]string{
		prompt.KeyGeneratedCode: finalCode,
		prompt.KeyReviewReport:  review,
	})
}
