// Package bench times a benchmark body and records its outcome in a plain-text
// result file: "OK  <seconds>s" on success, "CRASH after <seconds>s" followed
// by a stack trace on failure.
package bench

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	StatusOK    = "ok"
	StatusCrash = "crash"
)

var timePattern = regexp.MustCompile(`([\d.]+)s`)

type Report struct {
	Scenario   string
	Status     string
	StartedAt  time.Time
	Elapsed    time.Duration
	ResultFile string
	Message    string
	Err        error
}

func (r Report) Seconds() float64 {
	return r.Elapsed.Seconds()
}

type Runner struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// ResultPath returns <dir>/<name>.txt, creating dir if needed.
func ResultPath(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("result name is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir %q: %w", dir, err)
	}
	return filepath.Join(dir, strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))+".txt"), nil
}

// Run times fn and writes the outcome to resultFile. Failures, including
// panics, are recorded and then returned to the caller.
func (r *Runner) Run(ctx context.Context, scenario, resultFile string, fn func(ctx context.Context) error) (Report, error) {
	logger := r.logger()
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}

	start := clock()
	runErr := call(ctx, fn)
	elapsed := clock().Sub(start)

	report := Report{
		Scenario:   scenario,
		StartedAt:  start,
		Elapsed:    elapsed,
		ResultFile: resultFile,
	}
	if runErr == nil {
		report.Status = StatusOK
		report.Message = FormatOK(elapsed)
		logger.InfoContext(ctx, report.Message, slog.String("scenario", scenario))
	} else {
		report.Status = StatusCrash
		report.Err = runErr
		report.Message = FormatCrash(elapsed, runErr)
		logger.InfoContext(ctx, report.Message, slog.String("scenario", scenario))
	}

	if err := os.WriteFile(resultFile, []byte(report.Message), 0o644); err != nil {
		writeErr := fmt.Errorf("write result file %q: %w", resultFile, err)
		if runErr != nil {
			return report, stderrors.Join(runErr, writeErr)
		}
		return report, writeErr
	}
	return report, runErr
}

// Fail turns a finished report into a crash when a step after the measured
// body fails. The elapsed time stays that of the body and the result file is
// rewritten.
func (r *Runner) Fail(ctx context.Context, report Report, cause error) (Report, error) {
	if cause == nil {
		return report, nil
	}
	cause = withStack(cause)
	report.Status = StatusCrash
	report.Err = cause
	report.Message = FormatCrash(report.Elapsed, cause)
	r.logger().InfoContext(ctx, report.Message, slog.String("scenario", report.Scenario))

	if err := os.WriteFile(report.ResultFile, []byte(report.Message), 0o644); err != nil {
		return report, stderrors.Join(cause, fmt.Errorf("write result file %q: %w", report.ResultFile, err))
	}
	return report, cause
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &panicError{value: recovered, stack: debug.Stack()}
		}
	}()
	if err := fn(ctx); err != nil {
		return withStack(err)
	}
	return nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func withStack(err error) error {
	var traced stackTracer
	if stderrors.As(err, &traced) {
		return err
	}
	return errors.WithStack(err)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (p *panicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "panic: %v\n\n%s", p.value, p.stack)
		return
	}
	_, _ = io.WriteString(s, p.Error())
}

func FormatOK(elapsed time.Duration) string {
	return fmt.Sprintf("OK  %.1fs\n", elapsed.Seconds())
}

func FormatCrash(elapsed time.Duration, err error) string {
	trace := strings.TrimRight(fmt.Sprintf("%+v", err), "\n")
	return fmt.Sprintf("CRASH after %.1fs\n\n%s\n", elapsed.Seconds(), trace)
}

type Outcome struct {
	OK      bool
	Seconds string
}

// ParseResult reads a result file body. The time is the first "<number>s"
// token, which covers both the OK and CRASH forms.
func ParseResult(text string) (Outcome, bool) {
	text = strings.TrimSpace(text)
	match := timePattern.FindStringSubmatch(text)
	if match == nil {
		return Outcome{}, false
	}
	return Outcome{OK: strings.HasPrefix(text, "OK"), Seconds: match[1]}, true
}
