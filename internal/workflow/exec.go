package workflow

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/deixis/runmeta/internal/metadata"
	"github.com/deixis/runmeta/internal/runner"
)

// Invocation describes one execution of the wrapped tool.
type Invocation struct {
	Argv       []string
	Dir        string // relative to the runner workspace
	Parameters []metadata.Parameter
	Outputs    []metadata.Output
}

// ExecResult holds the outcome of an Exec.
type ExecResult struct {
	Run      *metadata.Run
	RunID    string // runner execution ID, empty if the tool never started
	ExitCode int
	Status   string
	Err      error // launch failure; already recorded as an Error message
}

// Failed reports whether the run did not end in StatusSuccess.
func (r *ExecResult) Failed() bool { return r.Status != StatusSuccess }

// Exec records one execution of inv as a run:
//
//   - parameters: the caller's, then Command and WorkingDirectory;
//   - outputs: the caller's, then ExitCode;
//   - messages: captured stdout and stderr lines at the configured levels,
//     then a Warning per truncated stream and an Error for a non-zero
//     exit, a timeout or a launch failure.
//
// The run is finalized with StatusSuccess, StatusFailed or StatusTimedOut.
// A tool that cannot be started is recorded, not returned; the returned
// error is reserved for writer misuse such as a pending run.
func (e *Engine) Exec(ctx context.Context, inv Invocation) (*ExecResult, error) {
	if len(inv.Argv) == 0 {
		return nil, errors.New("empty command")
	}

	run, err := e.Writer.CreateRun()
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	rec := &recorder{run: run}

	for _, p := range inv.Parameters {
		rec.param(p.Name, p.Value)
	}
	rec.param(ParamCommand, strings.Join(inv.Argv, " "))
	if inv.Dir != "" {
		rec.param(ParamDirectory, inv.Dir)
	}

	res, runErr := e.Runner.Run(ctx, inv.Argv, inv.Dir)

	out := &ExecResult{Run: run, ExitCode: -1, Status: StatusFailed}
	for _, o := range inv.Outputs {
		rec.output(o.Name, o.Value)
	}

	if runErr != nil {
		out.Err = runErr
		rec.output(OutputExitCode, "")
		rec.message(metadata.LevelError, launchMessage(inv.Argv[0], runErr))
	} else {
		out.RunID = res.RunID
		out.ExitCode = res.ExitCode
		rec.output(OutputExitCode, strconv.Itoa(res.ExitCode))
		e.recordStreams(rec, res)
		out.Status = e.recordOutcome(rec, inv.Argv[0], res)
	}

	if err := errors.Join(rec.err, e.Writer.FinalizeRun(out.Status)); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return out, nil
}

// Batch runs every invocation in order without stopping on failure.
// It stops only on writer misuse, returning the results so far.
func (e *Engine) Batch(ctx context.Context, invs []Invocation) ([]*ExecResult, error) {
	results := make([]*ExecResult, 0, len(invs))
	for i, inv := range invs {
		res, err := e.Exec(ctx, inv)
		if err != nil {
			return results, fmt.Errorf("invocation %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recordStreams(rec *recorder, res *runner.Result) {
	if level := e.Config.StdoutLevel(); level != "" {
		for _, line := range splitLines(res.Stdout) {
			rec.message(level, line)
		}
	}
	if level := e.Config.StderrLevel(); level != "" {
		for _, line := range splitLines(res.Stderr) {
			rec.message(level, line)
		}
	}
	if res.StdoutTruncated {
		rec.message(metadata.LevelWarning, fmt.Sprintf("stdout truncated at %d bytes", e.Config.MaxOutputBytes()))
	}
	if res.StderrTruncated {
		rec.message(metadata.LevelWarning, fmt.Sprintf("stderr truncated at %d bytes", e.Config.MaxOutputBytes()))
	}
}

func (e *Engine) recordOutcome(rec *recorder, name string, res *runner.Result) string {
	switch {
	case res.TimedOut:
		rec.message(metadata.LevelError, fmt.Sprintf("%s timed out after %s", name, e.Config.Timeout()))
		return StatusTimedOut
	case res.ExitCode != 0:
		rec.message(metadata.LevelError, fmt.Sprintf("%s exited with status %d", name, res.ExitCode))
		return StatusFailed
	default:
		return StatusSuccess
	}
}

func launchMessage(name string, err error) string {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Sprintf("%s not found on PATH", name)
	}
	return fmt.Sprintf("%s could not be started: %v", name, err)
}

// splitLines returns the non-blank lines of b with line endings removed.
func splitLines(b []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// recorder adds records to a run and keeps the first error.
type recorder struct {
	run *metadata.Run
	err error
}

func (r *recorder) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *recorder) param(name, value string)   { r.keep(r.run.AddParameter(name, value)) }
func (r *recorder) output(name, value string)  { r.keep(r.run.AddOutput(name, value)) }
func (r *recorder) message(level, text string) { r.keep(r.run.AddMessage(level, text)) }
