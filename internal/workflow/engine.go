// Package workflow records wrapped-tool executions as metadata runs. It is
// consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/runmeta/internal/config"
	"github.com/deixis/runmeta/internal/metadata"
	"github.com/deixis/runmeta/internal/runner"
)

// Run statuses written by Exec.
const (
	StatusSuccess  = "Success"
	StatusFailed   = "Failed"
	StatusTimedOut = "TimedOut"
)

// Names of the records Exec adds on its own.
const (
	ParamCommand   = "Command"
	ParamDirectory = "WorkingDirectory"
	OutputExitCode = "ExitCode"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// Engine holds shared dependencies for all recording operations.
type Engine struct {
	Config *config.Config
	Runner CommandRunner
	Writer *metadata.Writer
}

// RunRecord is a run described entirely by the caller.
type RunRecord struct {
	Parameters []metadata.Parameter
	Outputs    []metadata.Output
	Messages   []metadata.Message
	Status     string
}

// Record adds a finalized run built from rec without executing anything.
func (e *Engine) Record(rec RunRecord) (*metadata.Run, error) {
	run, err := e.Writer.CreateRun()
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	var errs []error
	for _, p := range rec.Parameters {
		errs = append(errs, run.AddParameter(p.Name, p.Value))
	}
	for _, o := range rec.Outputs {
		errs = append(errs, run.AddOutput(o.Name, o.Value))
	}
	for _, m := range rec.Messages {
		errs = append(errs, run.AddMessage(m.Level, m.Text))
	}
	errs = append(errs, e.Writer.FinalizeRun(rec.Status))
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return run, nil
}

// Write serializes the writer to path, or to the configured output path
// when path is empty.
func (e *Engine) Write(path string) (string, error) {
	if path == "" {
		path = e.Config.OutputPath()
	}
	if err := e.Writer.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}
