// Package runner executes wrapped processing tools within a workspace,
// with a timeout and per-stream output caps.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration // zero means no timeout
	MaxOutput int           // bytes per stream; zero means unlimited
	Env       []string      // extra KEY=VALUE entries appended to the process env
}

// Run executes argv. The first element is resolved via PATH. cwd is
// resolved relative to the workspace and must remain inside it.
// A non-zero exit or a timeout is reported in Result; only failures to
// start the process are returned as errors.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	stdout := &capWriter{limit: r.MaxOutput}
	stderr := &capWriter{limit: r.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	res := &Result{RunID: uuid.New().String()}

	runErr := cmd.Run()
	res.Stdout = stdout.buf.Bytes()
	res.Stderr = stderr.buf.Bytes()
	res.StdoutTruncated = stdout.dropped
	res.StderrTruncated = stderr.dropped

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case ctx.Err() != nil && cmd.ProcessState != nil:
			// Exited on its own after cancellation was requested.
			res.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	return res, nil
}

// resolveDir resolves cwd relative to the workspace and rejects paths
// that escape it.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	dir := filepath.Clean(cwd)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Workspace, dir)
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// capWriter keeps up to limit bytes and discards the rest while still
// reporting full writes, so the child never sees a short write.
type capWriter struct {
	buf     bytes.Buffer
	limit   int
	dropped bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		w.dropped = true
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}
