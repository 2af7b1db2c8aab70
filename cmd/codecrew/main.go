package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/codecrew/pkg/config"
	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
	"github.com/ravi-parthasarathy/codecrew/pkg/server"
	"github.com/ravi-parthasarathy/codecrew/pkg/store"
	"github.com/ravi-parthasarathy/codecrew/pkg/stream"

	// Register all LLM providers via their init() functions.
	_ "github.com/ravi-parthasarathy/codecrew/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	var gf globalFlags
	root := &cobra.Command{
		Use:   "codecrew",
		Short: "codecrew: generate, review, refine and document code with LLM agents",
		Long: `codecrew passes a requirement through a fixed crew of model calls.

A generator writes the code, a reviewer critiques it, a refiner fixes it
when the review finds real problems, and a documenter writes the README.
Results are served over HTTP, either at once or as a stream of NDJSON events.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "config file (default: ./codecrew.yaml or ~/.codecrew/codecrew.yaml)")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&gf.logFormat, "log-format", "", "log format: text or json (overrides config)")

	root.AddCommand(serveCmd(&gf))
	root.AddCommand(runCmd(&gf))
	root.AddCommand(graphCmd())
	return root
}

// ─── serve ────────────────────────────────────────────────────────────────────

func serveCmd(gf *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := signalContext(cmd.Context())
			runs, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := server.New(newOrchestrator(cfg), server.Options{
				Addr:   cfg.Server.Addr,
				Stream: cfg.StreamOptions(),
				Store:  runs,
				Logger: slog.Default(),
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd(gf *globalFlags) *cobra.Command {
	var (
		model       string
		temperature float64
		maxTokens   int
		streamMode  bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] <requirements...>",
		Short: "Run the pipeline once and print the result",
		Long: `Run the pipeline once for the given requirements and print the aggregate
JSON result, or with --stream the NDJSON event stream. Pass "-" to read the
requirements from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			requirements, err := readRequirements(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req := pipeline.Request{Requirements: requirements, Model: model, MaxTokens: maxTokens}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = llm.Float(temperature)
			}

			ctx := signalContext(cmd.Context())
			return runOnce(ctx, cmd.OutOrStdout(), newOrchestrator(cfg), req, streamMode, cfg.StreamOptions())
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model id, e.g. mistral:7b-instruct or anthropic:<name> (default: llm.default_model)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature for every stage (default: per-stage)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max output tokens for every stage (default: per-stage)")
	cmd.Flags().BoolVar(&streamMode, "stream", false, "print NDJSON stage events instead of the aggregate result")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// setup loads the configuration and installs the logger. Log flags win over
// the config file.
func setup(gf *globalFlags) (config.Config, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if gf.logLevel != "" {
		cfg.Log.Level = gf.logLevel
	}
	if gf.logFormat != "" {
		cfg.Log.Format = gf.logFormat
	}
	if err := initLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newOrchestrator(cfg config.Config) *pipeline.Orchestrator {
	opts := cfg.PipelineOptions()
	opts.Logger = slog.Default()
	return pipeline.New(llm.NewAdapter(cfg.LLMClientConfig()), opts)
}

// openStore returns the run store: Redis when store.redis_addr is set,
// otherwise process memory.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.Store.RedisAddr == "" {
		slog.Info("keeping runs in memory", "max_runs", cfg.Store.MaxRuns)
		return store.NewMemoryStore(cfg.Store.MaxRuns), func() {}, nil
	}
	rs, err := store.NewRedisStore(ctx, cfg.RedisConfig())
	if err != nil {
		return nil, nil, err
	}
	slog.Info("keeping runs in redis", "addr", cfg.Store.RedisAddr, "ttl", cfg.Store.TTL)
	return rs, func() {
		if err := rs.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}, nil
}

// readRequirements joins the positional arguments, or reads stdin when the
// only argument is "-".
func readRequirements(args []string, stdin io.Reader) (string, error) {
	text := strings.Join(args, " ")
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("requirements are empty")
	}
	return text, nil
}

// runOnce executes req and writes either the event stream or the aggregate
// result to w.
func runOnce(ctx context.Context, w io.Writer, r stream.Runner, req pipeline.Request, streamMode bool, opts stream.Options) error {
	if streamMode {
		_, err := stream.NewEmitter(w, opts).Run(ctx, r, req)
		return err
	}

	out, runErr := r.Run(ctx, req, nil)
	resp := server.RunResponse{Success: runErr == nil}
	if out != nil {
		resp.RunID = out.RunID
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	} else {
		resp.Summary = stream.SummaryOf(out)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return runErr
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[codecrew] interrupted, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
