package runner

// Result holds the outcome of one wrapped-tool execution.
type Result struct {
	RunID           string // unique identifier for this execution
	ExitCode        int    // process exit code; -1 if killed on timeout
	Stdout          []byte // captured stdout (may be truncated)
	Stderr          []byte // captured stderr (may be truncated)
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool // the timeout elapsed before the process exited
}

// Truncated reports whether either stream exceeded the output cap.
func (r *Result) Truncated() bool {
	return r.StdoutTruncated || r.StderrTruncated
}
