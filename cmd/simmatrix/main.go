package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"simmatrix/internal/framework"
	"simmatrix/internal/matrix"
	"simmatrix/internal/report"
	"simmatrix/internal/simconfig"
	"simmatrix/internal/simerr"
)

// options holds the root command's flags.
type options struct {
	root                string
	config              string
	output              string
	runner              string
	strictGenerics      bool
	allowSourceMismatch bool
	summary             bool
	verbose             bool
	logFormat           string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "simmatrix [flags] <target-pattern> [runner args...]",
		Short: "Resolve simulation targets into a test matrix and run it",
		Long: `simmatrix selects every target of the simulation config whose name matches
<target-pattern> (a regular expression anchored at the start of the name),
resolves the targets' source lists and test lists, and hands the resulting
test matrix to the runner.

Flags must come before the pattern. Everything after the pattern is passed to
the runner unchanged. Without --runner the plan is printed instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return simerr.New(simerr.ErrUsage, "", "missing target pattern")
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return simerr.Wrap(simerr.ErrUsage, "", err)
	})

	f := cmd.Flags()
	f.SetInterspersed(false)
	f.StringVar(&opts.root, "root", ".", "repository root that config paths are relative to")
	f.StringVar(&opts.config, "config", "", "simulation config (default <root>/"+simconfig.DefaultPath+")")
	f.StringVar(&opts.output, "output", "vunit_out", "output directory for the plan and coverage databases")
	f.StringVar(&opts.runner, "runner", "", "runner command line; when empty the plan is printed")
	f.BoolVar(&opts.strictGenerics, "strict-generics", false, "fail when hierarchical generics collapse to the same name")
	f.BoolVar(&opts.allowSourceMismatch, "allow-source-mismatch", false, "warn instead of failing when selected targets resolve different sources")
	f.BoolVar(&opts.summary, "summary", false, "write a Markdown summary of the matrix to the output directory")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&opts.logFormat, "log-format", "console", "log format: console or json")
	return cmd
}

func newLogger(w io.Writer, format string, verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	var enc zapcore.Encoder
	switch format {
	case "console":
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, simerr.New(simerr.ErrUsage, "--log-format", "unknown log format %q", format)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
}

func runMatrix(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, opts.logFormat, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfgPath := opts.config
	if cfgPath == "" {
		cfgPath = filepath.Join(opts.root, simconfig.DefaultPath)
	}
	logger.Info("loading simulation config file", zap.String("path", cfgPath))
	cfg, err := simconfig.Load(cfgPath)
	if err != nil {
		return err
	}

	b := &matrix.Builder{
		Config:              cfg,
		Root:                opts.root,
		OutputDir:           opts.output,
		Logger:              logger,
		StrictGenerics:      opts.strictGenerics,
		AllowSourceMismatch: opts.allowSourceMismatch,
	}
	m, err := b.Build(args[0])
	if err != nil {
		return err
	}
	logger.Info("test matrix built",
		zap.String("run_id", m.RunID),
		zap.Int("targets", len(m.Targets)),
		zap.Int("source_files", m.Sources.Len()),
		zap.Int("tests", len(m.Tests)))
	if opts.summary {
		path, err := report.Write(m, opts.output)
		if err != nil {
			return err
		}
		logger.Info("wrote matrix summary", zap.String("path", path))
	}

	plan := framework.NewPlan(opts.output, logger)
	plan.RunID = m.RunID
	plan.Runner = strings.Fields(opts.runner)
	plan.Stdout = stdout
	plan.Stderr = stderr
	if err := matrix.Register(plan, m); err != nil {
		return err
	}
	return plan.Run(ctx, args[1:])
}

// run executes the command line and returns the process exit status. A
// runner that exits non-zero has already reported its failure, so only its
// status is forwarded.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stderr, "simmatrix: %v\n", err)
	if errors.Is(err, simerr.ErrUsage) {
		fmt.Fprintf(stderr, "\n%s", cmd.UsageString())
	}
	return simerr.ExitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
