package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/config"
	"github.com/gogpu/cts/devicepool"
	"github.com/gogpu/cts/query"
	"github.com/gogpu/cts/runner"
	"github.com/gogpu/cts/suite"
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitOK      = 0
	ExitFailed  = 1 // some case failed or a check found problems
	ExitUsage   = 2
	ExitAborted = 3 // the run could not continue
)

// Execute runs the command line in args and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Message != "" {
			fmt.Fprintln(stderr, "cts:", exit.Message)
		}
		return exit.Code
	}
	fmt.Fprintln(stderr, "cts:", err)
	return ExitUsage
}

type rootFlags struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the cts command tree.
func NewRootCommand() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "cts",
		Short:         "Run GPU conformance test suites",
		Long:          "cts expands test queries into cases and runs them on pooled devices.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := strings.ToLower(flags.logLevel)
			switch level {
			case "debug", "info", "warn", "error":
			default:
				return &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
			}
			format := strings.ToLower(flags.logFormat)
			if format != "text" && format != "json" {
				return &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
			}
			cts.SetLogger(newLogger(level, format, cmd.ErrOrStderr()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Logging level: debug, info, warn or error.")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "Log output format: text or json.")

	root.AddCommand(
		newListCommand(),
		newCompareCommand(),
		newValidateCommand(),
		newRunCommand(),
		newSuitesCommand(),
		newBackendsCommand(),
	)
	return root
}

// newLogger creates a logger writing to w. It does not set the global
// logger.
func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseQueries parses every argument, reporting all syntax errors at once.
func parseQueries(args []string) ([]query.Query, error) {
	var errs error
	qs := make([]query.Query, 0, len(args))
	for _, a := range args {
		q, err := query.Parse(a)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		qs = append(qs, q)
	}
	if errs != nil {
		return nil, &ExitError{Code: ExitUsage, Message: errs.Error()}
	}
	return qs, nil
}

// collect expands qs into cases of the registered suites, in query order.
// Overlapping queries are rejected so no case runs twice.
func collect(qs []query.Query) ([]suite.Case, error) {
	if err := query.CheckOverlaps(qs); err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	var cases []suite.Case
	for _, q := range qs {
		s, err := suite.Lookup(q.Suite())
		if err != nil {
			return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		cs, err := s.Collect(q)
		if err != nil {
			return nil, err
		}
		cases = append(cases, cs...)
	}
	return cases, nil
}

func newListCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "list QUERY...",
		Short: "Print the cases selected by queries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := parseQueries(args)
			if err != nil {
				return err
			}
			cases, err := collect(qs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range cases {
				if verbose && c.Test.Description != "" {
					fmt.Fprintf(out, "%s\t%s\n", c, c.Test.Description)
					continue
				}
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print test descriptions.")
	return cmd
}

func newCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B",
		Short: "Print how the case sets of two queries relate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := parseQueries(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), query.Compare(qs[0], qs[1]))
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	var coverage bool
	cmd := &cobra.Command{
		Use:   "validate QUERY...",
		Short: "Check that queries do not overlap",
		Long: "validate checks that no two queries select a common case. With --coverage it also\n" +
			"checks that the queries select every case of their suites.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := parseQueries(args)
			if err != nil {
				return err
			}
			errs := query.CheckOverlaps(qs)
			if coverage {
				all, err := suiteCases(qs)
				if err != nil {
					return err
				}
				errs = multierr.Append(errs, query.CheckCoverage(qs, all))
			}
			if errs != nil {
				out := cmd.OutOrStdout()
				for _, e := range multierr.Errors(errs) {
					fmt.Fprintln(out, e)
				}
				n := len(multierr.Errors(errs))
				return &ExitError{Code: ExitFailed, Message: fmt.Sprintf("%d problem(s) found", n)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&coverage, "coverage", false, "Require the queries to cover every case of their suites.")
	return cmd
}

// suiteCases returns the case queries of every suite named by qs.
func suiteCases(qs []query.Query) ([]query.Query, error) {
	seen := make(map[string]bool)
	var all []query.Query
	for _, q := range qs {
		if seen[q.Suite()] {
			continue
		}
		seen[q.Suite()] = true
		s, err := suite.Lookup(q.Suite())
		if err != nil {
			return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		cs, err := s.Queries()
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	return all, nil
}

type runFlags struct {
	plan           string
	backend        string
	capacity       int
	releaseTimeout time.Duration
	caseTimeout    time.Duration
	workers        int
}

func newRunCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [QUERY...]",
		Short: "Run the cases selected by queries",
		Long: "run executes cases on devices from a pool. Settings come from the plan file\n" +
			"given with --plan; flags and query arguments override it.",
		Example: "  cts run smoke:\n  cts run --plan nightly.hcl --backend null",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := resolvePlan(cmd, flags, args)
			if err != nil {
				return err
			}
			return runPlan(cmd, plan)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.plan, "plan", "", "Path to an HCL run plan.")
	f.StringVar(&flags.backend, "backend", "", fmt.Sprintf("Backend to open (registered: %s).", strings.Join(backend.Available(), ", ")))
	f.IntVar(&flags.capacity, "capacity", devicepool.DefaultCapacity, "Maximum number of pooled devices.")
	f.DurationVar(&flags.releaseTimeout, "release-timeout", devicepool.DefaultReleaseTimeout, "Time allowed to drain a device after a case.")
	f.DurationVar(&flags.caseTimeout, "case-timeout", 0, "Time allowed for one case body; 0 means no limit.")
	f.IntVar(&flags.workers, "workers", 1, "Number of cases to run at once.")
	return cmd
}

// resolvePlan merges the plan file, flags and arguments.
func resolvePlan(cmd *cobra.Command, flags runFlags, args []string) (*config.Plan, error) {
	var plan config.Plan
	if flags.plan != "" {
		p, err := config.Load(flags.plan)
		if err != nil {
			return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		plan = *p
	} else {
		plan = config.Default()
	}

	changed := cmd.Flags().Changed
	if changed("backend") {
		plan.Backend = flags.backend
	}
	if changed("capacity") {
		plan.Pool.Capacity = flags.capacity
	}
	if changed("release-timeout") {
		plan.Pool.ReleaseTimeout = flags.releaseTimeout
	}
	if changed("case-timeout") {
		plan.CaseTimeout = flags.caseTimeout
	}
	if changed("workers") {
		plan.Workers = flags.workers
	}
	if len(args) > 0 {
		qs, err := parseQueries(args)
		if err != nil {
			return nil, err
		}
		plan.Queries = args
		if flags.plan == "" {
			plan.Suite = qs[0].Suite()
		}
	}
	if plan.Suite == "" {
		return nil, &ExitError{Code: ExitUsage, Message: "no queries given and no plan"}
	}
	if err := plan.Validate(); err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &plan, nil
}

func runPlan(cmd *cobra.Command, plan *config.Plan) error {
	qs, err := plan.ParsedQueries()
	if err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	cases, err := collect(qs)
	if err != nil {
		return err
	}

	b, err := backend.Open(plan.Backend)
	if err != nil {
		return &ExitError{Code: ExitAborted, Message: err.Error()}
	}
	pool := devicepool.New(b, plan.PoolOptions()...)
	defer pool.Close()

	out := cmd.OutOrStdout()
	opts := append(plan.RunnerOptions(), runner.WithReporter(func(res runner.Result) {
		printResult(out, res)
	}))
	r := runner.New(pool, opts...)
	sum, runErr := r.Run(cmd.Context(), cases)

	st := pool.Stats()
	fmt.Fprintf(out, "\n%d passed, %d failed, %d skipped in %v (backend %s, %d devices created, hit rate %.0f%%)\n",
		sum.Passed, sum.Failed, sum.Skipped, sum.Duration.Round(time.Millisecond),
		b.Name(), st.Misses, 100*st.HitRate)

	switch {
	case runErr != nil:
		return &ExitError{Code: ExitAborted, Message: runErr.Error()}
	case !sum.OK():
		return &ExitError{Code: ExitFailed}
	}
	return nil
}

func printResult(w io.Writer, res runner.Result) {
	label := strings.ToUpper(res.Status.String())
	switch res.Status {
	case runner.StatusPass:
		fmt.Fprintf(w, "%-4s %s\n", label, res.Case)
	default:
		fmt.Fprintf(w, "%-4s %s: %v\n", label, res.Case, res.Err)
	}
}

func newSuitesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suites",
		Short: "List registered suites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range suite.Names() {
				s, err := suite.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d tests\n", name, len(s.Tests()))
			}
			return nil
		},
	}
}

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := backend.Default()
			for _, name := range backend.Available() {
				mark := ""
				if name == def {
					mark = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, mark)
			}
			return nil
		},
	}
}
