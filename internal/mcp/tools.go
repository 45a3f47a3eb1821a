package mcp

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deixis/runmeta/internal/history"
	"github.com/deixis/runmeta/internal/metadata"
	"github.com/deixis/runmeta/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type namedValue struct {
	Name  string `json:"name" jsonschema:"record name"`
	Value string `json:"value" jsonschema:"record value"`
}

type messageParam struct {
	Level string `json:"level" jsonschema:"severity label, conventionally Info, Warning or Error"`
	Text  string `json:"text" jsonschema:"message text"`
}

// --- meta_start ---

type startParams struct {
	ToolName    string `json:"tool_name" jsonschema:"name of the processing tool being recorded"`
	ToolVersion string `json:"tool_version" jsonschema:"version of the processing tool"`
	Operator    string `json:"operator,omitempty" jsonschema:"operator to record. Defaults to the configured operator or the current user."`
	GISVersion  string `json:"gis_version,omitempty" jsonschema:"GIS or environment version, e.g. ArcGIS 10.4"`
}

func (h *handler) startHandler(ctx context.Context, req *mcp.CallToolRequest, params startParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	opts := append(h.cfg.WriterOptions(), h.writerOpts...)
	if params.Operator != "" {
		opts = append(opts, metadata.WithOperator(params.Operator))
	}
	if params.GISVersion != "" {
		opts = append(opts, metadata.WithGISVersion(params.GISVersion))
	}
	w := metadata.NewWriter(params.ToolName, params.ToolVersion, opts...)

	sess := history.NewSession(w)
	if err := h.store.Save(sess); err != nil {
		return errorResult(fmt.Sprintf("Failed to save session: %v", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", sess.ID)
	fmt.Fprintf(&b, "Tool: %s %s\n", w.ToolName(), w.ToolVersion())
	fmt.Fprintf(&b, "Computer: %s\n", w.ComputerID())
	fmt.Fprintf(&b, "Operator: %s\n", w.Operator())
	if w.OperatorResult().Fallback {
		fmt.Fprintf(&b, "Note: operator could not be resolved (%v)\n", w.OperatorResult().Err)
	}
	return textResult(b.String())
}

// --- meta_exec ---

type execParams struct {
	SessionID  string       `json:"session_id" jsonschema:"session ID from meta_start"`
	Argv       []string     `json:"argv" jsonschema:"command and arguments; the first element is resolved via PATH"`
	Cwd        string       `json:"cwd,omitempty" jsonschema:"working directory relative to the workspace"`
	Parameters []namedValue `json:"parameters,omitempty" jsonschema:"named inputs to record before the command"`
	Outputs    []namedValue `json:"outputs,omitempty" jsonschema:"named outputs to record for the run"`
}

func (h *handler) execHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	if len(params.Argv) == 0 {
		return errorResult("argv is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sess, w, err := h.restore(params.SessionID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load session %s: %v", params.SessionID, err))
	}

	eng := &workflow.Engine{Config: h.cfg, Runner: h.runner, Writer: w}
	res, err := eng.Exec(ctx, workflow.Invocation{
		Argv:       params.Argv,
		Dir:        params.Cwd,
		Parameters: toParameters(params.Parameters),
		Outputs:    toOutputs(params.Outputs),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("exec failed: %v", err))
	}

	sess = sess.Update(w)
	if err := h.store.Save(sess); err != nil {
		return errorResult(fmt.Sprintf("Failed to save session: %v", err))
	}

	return textResult(formatRun(sess.ID, len(w.Runs()), res.Run))
}

// --- meta_record ---

type recordParams struct {
	SessionID  string         `json:"session_id" jsonschema:"session ID from meta_start"`
	Parameters []namedValue   `json:"parameters,omitempty" jsonschema:"named inputs of the run"`
	Outputs    []namedValue   `json:"outputs,omitempty" jsonschema:"named outputs of the run"`
	Messages   []messageParam `json:"messages,omitempty" jsonschema:"diagnostic messages of the run"`
	Status     string         `json:"status,omitempty" jsonschema:"free-form run status. Default: empty."`
}

func (h *handler) recordHandler(ctx context.Context, req *mcp.CallToolRequest, params recordParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, w, err := h.restore(params.SessionID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load session %s: %v", params.SessionID, err))
	}

	msgs := make([]metadata.Message, 0, len(params.Messages))
	for _, m := range params.Messages {
		msgs = append(msgs, metadata.Message{Level: m.Level, Text: m.Text})
	}

	eng := &workflow.Engine{Config: h.cfg, Runner: h.runner, Writer: w}
	run, err := eng.Record(workflow.RunRecord{
		Parameters: toParameters(params.Parameters),
		Outputs:    toOutputs(params.Outputs),
		Messages:   msgs,
		Status:     params.Status,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("record failed: %v", err))
	}

	sess = sess.Update(w)
	if err := h.store.Save(sess); err != nil {
		return errorResult(fmt.Sprintf("Failed to save session: %v", err))
	}

	return textResult(formatRun(sess.ID, len(w.Runs()), run))
}

// --- meta_write ---

type writeParams struct {
	SessionID string `json:"session_id" jsonschema:"session ID from meta_start"`
	Path      string `json:"path,omitempty" jsonschema:"workspace-relative file to write the document to"`
}

func (h *handler) writeHandler(ctx context.Context, req *mcp.CallToolRequest, params writeParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, w, err := h.restore(params.SessionID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load session %s: %v", params.SessionID, err))
	}

	var b strings.Builder
	if params.Path != "" {
		path, err := h.resolvePath(params.Path)
		if err != nil {
			return errorResult(err.Error())
		}
		if err := w.WriteFile(path); err != nil {
			return errorResult(fmt.Sprintf("write failed: %v", err))
		}
		fmt.Fprintf(&b, "Wrote %d runs to %s\n\n", len(w.Runs()), path)
	}

	var doc bytes.Buffer
	if err := w.Write(&doc); err != nil {
		return errorResult(fmt.Sprintf("write failed: %v", err))
	}
	b.Write(doc.Bytes())
	return textResult(b.String())
}

// resolvePath resolves p against the workspace and rejects escapes.
func (h *handler) resolvePath(p string) (string, error) {
	path := filepath.Clean(p)
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.workspace, path)
	}
	rel, err := filepath.Rel(h.workspace, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside workspace %q", p, h.workspace)
	}
	return path, nil
}

func formatRun(sessionID string, total int, run *metadata.Run) string {
	var b strings.Builder

	status := run.Status()
	if status == "" {
		status = "(none)"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Session: %s\n", sessionID)
	fmt.Fprintf(&b, "Run: %d\n", total)
	fmt.Fprintf(&b, "Elapsed: %s\n", run.Elapsed())
	fmt.Fprintln(&b)

	if outs := run.Outputs(); len(outs) > 0 {
		fmt.Fprintln(&b, "Outputs:")
		for _, o := range outs {
			fmt.Fprintf(&b, "  %s = %s\n", o.Name, o.Value)
		}
		fmt.Fprintln(&b)
	}
	if msgs := run.Messages(); len(msgs) > 0 {
		fmt.Fprintf(&b, "Messages (%d):\n", len(msgs))
		for _, m := range msgs {
			fmt.Fprintf(&b, "  [%s] %s\n", m.Level, m.Text)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "Write with meta_write(session_id=%q).\n", sessionID)
	return b.String()
}

func toParameters(in []namedValue) []metadata.Parameter {
	out := make([]metadata.Parameter, 0, len(in))
	for _, v := range in {
		out = append(out, metadata.Parameter{Name: v.Name, Value: v.Value})
	}
	return out
}

func toOutputs(in []namedValue) []metadata.Output {
	out := make([]metadata.Output, 0, len(in))
	for _, v := range in {
		out = append(out, metadata.Output{Name: v.Name, Value: v.Value})
	}
	return out
}
