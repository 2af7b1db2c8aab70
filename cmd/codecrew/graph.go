package main

import (
	"fmt"
	"io"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
)

const graphName = "codecrew"

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline state machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts := pipeline.Transitions()
			if err := pipeline.ValidateErr(pipeline.StateGenerating, ts); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "dot":
				src, err := renderDOT(ts)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, src)
				return err
			case "text", "":
				_, err := io.WriteString(out, renderText(ts))
				return err
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// renderText lists the states in order, the state each stage runs in, then
// every edge.
func renderText(ts []pipeline.Transition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "States (%d):\n", len(pipeline.States))
	for _, s := range pipeline.States {
		marker := ""
		if s.Terminal() {
			marker = "  (terminal)"
		}
		fmt.Fprintf(&sb, "  %s%s\n", s, marker)
	}

	fmt.Fprintf(&sb, "\nStages (%d):\n", len(agents.Stages))
	for _, st := range agents.Stages {
		fmt.Fprintf(&sb, "  %-10s  runs in %s\n", st, pipeline.StageState(st))
	}

	width := 4
	for _, t := range ts {
		width = max(width, len(t.From))
	}
	fmt.Fprintf(&sb, "\nTransitions (%d):\n", len(ts))
	for _, t := range ts {
		if t.Label != "" {
			fmt.Fprintf(&sb, "  %-*s  →  %s  [%s]\n", width, t.From, t.To, t.Label)
		} else {
			fmt.Fprintf(&sb, "  %-*s  →  %s\n", width, t.From, t.To)
		}
	}
	return sb.String()
}

// renderDOT builds the machine as a gographviz graph and returns its DOT
// source. Terminal states are drawn as double circles.
func renderDOT(ts []pipeline.Transition) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(graphName, "rankdir", "LR"); err != nil {
		return "", err
	}
	for _, s := range pipeline.States {
		shape := "box"
		if s.Terminal() {
			shape = "doublecircle"
		}
		if err := g.AddNode(graphName, string(s), map[string]string{"shape": shape}); err != nil {
			return "", fmt.Errorf("node %s: %w", s, err)
		}
	}
	for _, t := range ts {
		attrs := map[string]string{}
		if t.Label != "" {
			attrs["label"] = quote(t.Label)
		}
		if t.To == pipeline.StateFailed {
			attrs["style"] = "dashed"
		}
		if err := g.AddEdge(string(t.From), string(t.To), true, attrs); err != nil {
			return "", fmt.Errorf("edge %s -> %s: %w", t.From, t.To, err)
		}
	}
	return g.String(), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
