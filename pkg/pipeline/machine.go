package pipeline

import (
	"fmt"
	"strings"

	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
)

// State is a step of the orchestrator's state machine.
type State string

const (
	StateGenerating         State = "generating"
	StateReviewing          State = "reviewing"
	StateRefinementDecision State = "refinement_decision"
	StateRefining           State = "refining"
	StateDocumenting        State = "documenting"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

// States lists every state, start first.
var States = []State{
	StateGenerating,
	StateReviewing,
	StateRefinementDecision,
	StateRefining,
	StateDocumenting,
	StateComplete,
	StateFailed,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

// Transition is a directed edge of the state machine.
type Transition struct {
	From, To State
	// Label names the condition for conditional edges.
	Label string
}

var transitions = []Transition{
	{From: StateGenerating, To: StateReviewing},
	{From: StateReviewing, To: StateRefinementDecision},
	{From: StateRefinementDecision, To: StateRefining, Label: "actionable findings"},
	{From: StateRefinementDecision, To: StateDocumenting, Label: "clean review"},
	{From: StateRefining, To: StateDocumenting},
	{From: StateDocumenting, To: StateComplete},
}

// Transitions returns the machine's edges, including the edge from every
// non-terminal state to StateFailed.
func Transitions() []Transition {
	out := append([]Transition(nil), transitions...)
	for _, s := range States {
		if !s.Terminal() {
			out = append(out, Transition{From: s, To: StateFailed, Label: "error"})
		}
	}
	return out
}

// StageState maps a stage to the state in which it runs.
func StageState(stage agents.Stage) State {
	switch stage {
	case agents.StageGenerator:
		return StateGenerating
	case agents.StageReviewer:
		return StateReviewing
	case agents.StageRefiner:
		return StateRefining
	case agents.StageDocumenter:
		return StateDocumenting
	}
	return StateFailed
}

func allowed(from, to State) bool {
	for _, t := range Transitions() {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// MachineError describes a structural problem in a transition table.
type MachineError struct {
	State   State
	Message string
}

func (e MachineError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("state %q: %s", e.State, e.Message)
	}
	return e.Message
}

// Validate checks a transition table: every edge joins known states, every
// state is reachable from start, and every non-terminal state can both
// reach StateComplete and fail. Returns all discovered errors.
func Validate(start State, ts []Transition) []MachineError {
	var errs []MachineError
	known := map[State]bool{}
	for _, s := range States {
		known[s] = true
	}

	out := map[State][]State{}
	for _, t := range ts {
		if !known[t.From] {
			errs = append(errs, MachineError{Message: fmt.Sprintf("transition from unknown state %q", t.From)})
		}
		if !known[t.To] {
			errs = append(errs, MachineError{Message: fmt.Sprintf("transition to unknown state %q", t.To)})
		}
		out[t.From] = append(out[t.From], t.To)
	}

	reachable := reachableFrom(out, start)
	for _, s := range States {
		if s != start && !reachable[s] {
			errs = append(errs, MachineError{State: s, Message: "not reachable from start"})
		}
		if s.Terminal() {
			if len(out[s]) > 0 {
				errs = append(errs, MachineError{State: s, Message: "terminal state has outgoing transitions"})
			}
			continue
		}
		next := reachableFrom(out, s)
		if !next[StateComplete] {
			errs = append(errs, MachineError{State: s, Message: "cannot reach complete"})
		}
		if !contains(out[s], StateFailed) {
			errs = append(errs, MachineError{State: s, Message: "has no transition to failed"})
		}
	}
	return errs
}

// ValidateErr calls Validate and combines the errors into one.
func ValidateErr(start State, ts []Transition) error {
	errs := Validate(start, ts)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("state machine validation failed:\n  %s", strings.Join(msgs, "\n  "))
}

// reachableFrom returns the set of states reachable from start.
func reachableFrom(out map[State][]State, start State) map[State]bool {
	visited := map[State]bool{}
	queue := []State{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		queue = append(queue, out[cur]...)
	}
	return visited
}

func contains(ss []State, s State) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
