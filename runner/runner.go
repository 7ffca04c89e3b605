// Package runner executes suite cases on pooled devices.
//
// For each case the runner reserves a device for the case descriptor,
// acquires it, runs the body and releases it:
//
//	pool := devicepool.New(b)
//	defer pool.Close()
//	sum, err := runner.New(pool).Run(ctx, cases)
//
// Unsupported descriptors and suite.Skip results count as skipped. Body
// errors and release errors fail the case. A failed pool aborts the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/devicepool"
	"github.com/gogpu/cts/internal/parallel"
	"github.com/gogpu/cts/params"
	"github.com/gogpu/cts/suite"
)

// Status is the outcome of one case.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusSkip
)

// String returns "pass", "fail" or "skip".
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusSkip:
		return "skip"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of one case.
type Result struct {
	Case     suite.Case
	Status   Status
	Err      error
	Duration time.Duration
}

// Summary aggregates the results of a run.
type Summary struct {
	Passed   int
	Failed   int
	Skipped  int
	Results  []Result
	Duration time.Duration
}

// OK reports whether no case failed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Total returns the number of cases run.
func (s Summary) Total() int { return s.Passed + s.Failed + s.Skipped }

func (s *Summary) add(r Result) {
	switch r.Status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	case StatusSkip:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// Option configures a Runner.
type Option func(*Runner)

// WithCaseTimeout bounds the body of every case. Zero means no bound.
func WithCaseTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithReporter installs a function called after every case. Calls are
// serialized even when cases run concurrently.
func WithReporter(fn func(Result)) Option {
	return func(r *Runner) {
		r.report = fn
	}
}

// WithWorkers sets how many cases run at once, each on its own device.
// Values below 2 run cases one at a time.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// Runner runs cases against a pool.
type Runner struct {
	pool    *devicepool.Pool
	timeout time.Duration
	report  func(Result)
	workers int

	reportMu sync.Mutex
}

// New creates a runner using pool.
func New(pool *devicepool.Pool, opts ...Option) *Runner {
	r := &Runner{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cases in order. It stops early and returns an error when the
// pool has failed or ctx is done; the summary covers the cases run so far.
//
// With more than one worker, cases start in order but may finish out of
// order; Summary.Results is still in case order.
func (r *Runner) Run(ctx context.Context, cases []suite.Case) (Summary, error) {
	start := time.Now()
	var sum Summary
	var err error
	if r.workers > 1 {
		err = r.runParallel(ctx, cases, &sum)
	} else {
		err = r.runSerial(ctx, cases, &sum)
	}
	sum.Duration = time.Since(start)
	if err != nil {
		return sum, err
	}
	cts.Logger().Info("runner: done",
		"passed", sum.Passed,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration", sum.Duration,
	)
	return sum, nil
}

func (r *Runner) runSerial(ctx context.Context, cases []suite.Case, sum *Summary) error {
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.RunCase(ctx, c)
		sum.add(res)
		r.reportResult(res)
		if err != nil {
			cts.Logger().Error("runner: aborting", "case", c.String(), "error", err)
			return err
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, cases []suite.Case, sum *Summary) error {
	wp := parallel.NewWorkerPool(r.workers)
	defer wp.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result, len(cases))
	var abortOnce sync.Once
	var abort error
	done, _ := wp.Run(runCtx, len(cases), func(ctx context.Context, i int) {
		res, err := r.RunCase(ctx, cases[i])
		results[i] = res
		r.reportResult(res)
		if err != nil {
			abortOnce.Do(func() {
				cts.Logger().Error("runner: aborting", "case", cases[i].String(), "error", err)
				abort = err
				cancel()
			})
		}
	})
	for _, i := range done {
		sum.add(results[i])
	}
	if abort != nil {
		return abort
	}
	return ctx.Err()
}

func (r *Runner) reportResult(res Result) {
	if r.report == nil {
		return
	}
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	r.report(res)
}

// RunCase runs a single case. The returned error is non-nil only when the
// run cannot continue (the pool failed); case failures are in the Result.
func (r *Runner) RunCase(ctx context.Context, c suite.Case) (Result, error) {
	start := time.Now()
	res := Result{Case: c}
	log := cts.Logger().With("case", c.String())

	finish := func(st Status, err error) Result {
		res.Status = st
		res.Err = err
		res.Duration = time.Since(start)
		switch st {
		case StatusFail:
			log.Warn("runner: case failed", "error", err, "duration", res.Duration)
		case StatusSkip:
			log.Info("runner: case skipped", "reason", err)
		default:
			log.Debug("runner: case passed", "duration", res.Duration)
		}
		return res
	}

	h, err := r.pool.Reserve(ctx, c.Descriptor())
	if err != nil {
		var skip *devicepool.SkipError
		switch {
		case errors.As(err, &skip):
			return finish(StatusSkip, err), nil
		case errors.Is(err, devicepool.ErrPoolFailed), errors.Is(err, devicepool.ErrClosed):
			return finish(StatusFail, err), err
		default:
			return finish(StatusFail, err), nil
		}
	}

	dev, err := h.Acquire()
	if err != nil {
		return finish(StatusFail, multierr.Append(err, r.pool.Release(ctx, h))), nil
	}

	bodyErr := r.runBody(ctx, c, &env{holder: h, device: dev, params: c.Params, log: log})
	relErr := r.pool.Release(ctx, h)

	switch {
	case bodyErr == nil && relErr == nil:
		return finish(StatusPass, nil), nil
	case errors.Is(bodyErr, suite.ErrSkip) && relErr == nil:
		return finish(StatusSkip, bodyErr), nil
	default:
		return finish(StatusFail, multierr.Append(bodyErr, relErr)), nil
	}
}

// runBody calls the test body, turning a panic into an error.
func (r *Runner) runBody(ctx context.Context, c suite.Case, e *env) (err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("runner: panic in %s: %v", c.String(), p)
		}
	}()
	return c.Test.Body(ctx, e)
}

// env implements suite.Env.
type env struct {
	holder *devicepool.Holder
	device backend.Device
	params params.Spec
	log    *slog.Logger
}

func (e *env) Device() backend.Device { return e.device }

func (e *env) Params() params.Spec { return e.params }

func (e *env) ExpectDeviceLost(reason backend.LostReason) error {
	return e.holder.ExpectDeviceLost(reason)
}

func (e *env) Logger() *slog.Logger { return e.log }

var _ suite.Env = (*env)(nil)
