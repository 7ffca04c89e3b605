// Package config loads run plans from HCL files.
//
// A plan names the suite, the backend, the queries to run and the pool and
// logging settings:
//
//	suite   = "smoke"
//	backend = lower(env.CTS_BACKEND)
//	queries = ["smoke:api:", "smoke:shader:"]
//
//	case_timeout = "30s"
//	workers      = 2
//
//	pool {
//	  capacity        = 5
//	  release_timeout = "5s"
//	}
//
//	log {
//	  level  = "info"
//	  format = "text"
//	}
//
// Expressions see the process environment as the object env and may call
// lower, upper, concat and coalesce. Missing settings take the values of
// Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.uber.org/multierr"

	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/devicepool"
	"github.com/gogpu/cts/query"
	"github.com/gogpu/cts/runner"
)

// ErrInvalidPlan wraps every validation failure.
var ErrInvalidPlan = errors.New("config: invalid plan")

// Plan is a decoded run plan.
type Plan struct {
	Suite       string
	Backend     string
	Queries     []string
	CaseTimeout time.Duration
	Workers     int
	Pool        PoolConfig
	Log         LogConfig
}

// PoolConfig configures the device pool.
type PoolConfig struct {
	Capacity       int
	ReleaseTimeout time.Duration
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the plan used for settings a file leaves out.
func Default() Plan {
	return Plan{
		Pool: PoolConfig{
			Capacity:       devicepool.DefaultCapacity,
			ReleaseTimeout: devicepool.DefaultReleaseTimeout,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// hclPlanFile is the top-level structure of a plan file.
type hclPlanFile struct {
	Suite       string   `hcl:"suite"`
	Backend     *string  `hcl:"backend,optional"`
	Queries     []string `hcl:"queries,optional"`
	CaseTimeout *string  `hcl:"case_timeout,optional"`
	Workers     *int     `hcl:"workers,optional"`
	Pool        *hclPool `hcl:"pool,block"`
	Log         *hclLog  `hcl:"log,block"`
}

type hclPool struct {
	Capacity       *int    `hcl:"capacity,optional"`
	ReleaseTimeout *string `hcl:"release_timeout,optional"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Option configures Load and Parse.
type Option func(*loadOptions)

type loadOptions struct {
	environ []string
}

// WithEnviron replaces os.Environ as the source of the env object.
func WithEnviron(environ []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load reads and decodes the plan file at path.
func Load(path string, opts ...Option) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to parse plan %s: %w", path, diags)
	}
	return decode(file, path, opts)
}

// Parse decodes a plan from src. filename is used in diagnostics.
func Parse(src []byte, filename string, opts ...Option) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to parse plan %s: %w", filename, diags)
	}
	return decode(file, filename, opts)
}

func decode(file *hcl.File, filename string, opts []Option) (*Plan, error) {
	o := loadOptions{environ: os.Environ()}
	for _, opt := range opts {
		opt(&o)
	}

	var raw hclPlanFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(o.environ), &raw); diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to decode plan %s: %w", filename, diags)
	}

	plan := Default()
	plan.Suite = raw.Suite
	plan.Queries = raw.Queries
	if raw.Backend != nil {
		plan.Backend = *raw.Backend
	}
	if raw.Workers != nil {
		plan.Workers = *raw.Workers
	}

	var errs error
	if raw.CaseTimeout != nil {
		d, err := parseDuration("case_timeout", *raw.CaseTimeout)
		errs = multierr.Append(errs, err)
		plan.CaseTimeout = d
	}
	if p := raw.Pool; p != nil {
		if p.Capacity != nil {
			plan.Pool.Capacity = *p.Capacity
		}
		if p.ReleaseTimeout != nil {
			d, err := parseDuration("pool.release_timeout", *p.ReleaseTimeout)
			errs = multierr.Append(errs, err)
			plan.Pool.ReleaseTimeout = d
		}
	}
	if l := raw.Log; l != nil {
		if l.Level != nil {
			plan.Log.Level = strings.ToLower(*l.Level)
		}
		if l.Format != nil {
			plan.Log.Format = strings.ToLower(*l.Format)
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, filename, errs)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &plan, nil
}

func parseDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

// evalContext exposes the environment and a few string functions.
func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			vars[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
		Functions: map[string]function.Function{
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
			"concat":   stdlib.ConcatFunc,
			"coalesce": stdlib.CoalesceFunc,
		},
	}
}

// Validate reports every problem with the plan at once.
func (p *Plan) Validate() error {
	var errs error
	if p.Suite == "" {
		errs = multierr.Append(errs, errors.New("suite is required"))
	}
	if p.Backend != "" && !backend.IsRegistered(p.Backend) {
		errs = multierr.Append(errs, fmt.Errorf("backend %q is not available (have %v)", p.Backend, backend.Available()))
	}
	if p.Pool.Capacity < 1 {
		errs = multierr.Append(errs, fmt.Errorf("pool.capacity must be at least 1, got %d", p.Pool.Capacity))
	}
	if p.Pool.ReleaseTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool.release_timeout must be positive, got %v", p.Pool.ReleaseTimeout))
	}
	if p.Workers < 0 {
		errs = multierr.Append(errs, fmt.Errorf("workers must not be negative, got %d", p.Workers))
	}
	if p.CaseTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("case_timeout must not be negative, got %v", p.CaseTimeout))
	}
	switch p.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", p.Log.Level))
	}
	switch p.Log.Format {
	case "text", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.format %q is not one of text, json", p.Log.Format))
	}
	if _, err := p.ParsedQueries(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, errs)
	}
	return nil
}

// ParsedQueries parses Queries. An empty list selects the whole suite.
// Every query must belong to the plan's suite.
func (p *Plan) ParsedQueries() ([]query.Query, error) {
	if len(p.Queries) == 0 {
		if p.Suite == "" {
			return nil, nil
		}
		q, err := query.MultiFile(p.Suite)
		if err != nil {
			return nil, err
		}
		return []query.Query{q}, nil
	}
	var errs error
	out := make([]query.Query, 0, len(p.Queries))
	for _, s := range p.Queries {
		q, err := query.Parse(s)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if p.Suite != "" && q.Suite() != p.Suite {
			errs = multierr.Append(errs, fmt.Errorf("query %s is not in suite %q", s, p.Suite))
			continue
		}
		out = append(out, q)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// PoolOptions returns the devicepool options for the plan.
func (p *Plan) PoolOptions() []devicepool.Option {
	return []devicepool.Option{
		devicepool.WithCapacity(p.Pool.Capacity),
		devicepool.WithReleaseTimeout(p.Pool.ReleaseTimeout),
	}
}

// RunnerOptions returns the runner options for the plan.
func (p *Plan) RunnerOptions() []runner.Option {
	return []runner.Option{
		runner.WithCaseTimeout(p.CaseTimeout),
		runner.WithWorkers(p.Workers),
	}
}
