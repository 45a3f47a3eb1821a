// Package mcp provides the runmeta MCP server, letting an agent that
// drives processing tools record their runs and write metadata documents.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/runmeta"
	"github.com/deixis/runmeta/internal/config"
	"github.com/deixis/runmeta/internal/history"
	"github.com/deixis/runmeta/internal/metadata"
	"github.com/deixis/runmeta/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	cfg        *config.Config
	runner     *runner.Runner
	store      history.Store
	workspace  string
	writerOpts []metadata.Option

	// mu serializes the load-modify-save cycle on sessions.
	mu sync.Mutex
}

// NewServer creates an MCP server with all runmeta tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store history.Store, workspace string, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		cfg:        cfg,
		runner:     r,
		store:      store,
		workspace:  workspace,
		writerOpts: so.writerOpts,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "runmeta", Version: runmeta.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "meta_start",
		Description: `Start a metadata session for one processing tool.

Captures the host and operator once. Returns a session ID to pass to meta_exec,
meta_record and meta_write.`,
	}, h.startHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "meta_exec",
		Description: `Run a command in the workspace and record it as one run of the session.

The command's stdout and stderr lines become messages, its exit code becomes an
output, and the run status is Success, Failed or TimedOut.`,
	}, h.execHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "meta_record",
		Description: `Record a run from supplied parameters, outputs and messages without executing anything.

Use this when the tool ran somewhere runmeta cannot launch it, for example in-process.`,
	}, h.recordHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "meta_write",
		Description: `Serialize every recorded run of a session to a metadata XML document.

Returns the document. When path is given, the document is also written to that
workspace-relative file.`,
	}, h.writeHandler)

	return s
}

// ServerOption configures the runmeta MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	writerOpts []metadata.Option
}

// WithWriterOptions appends options to every writer the server creates
// or restores.
func WithWriterOptions(opts ...metadata.Option) ServerOption {
	return func(o *serverOptions) {
		o.writerOpts = append(o.writerOpts, opts...)
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and moves the
// handler to the first file root, reloading its config.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runner.Workspace = workspace
	h.runner.Timeout = loaded.Config.Timeout()
	h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
	h.cfg = loaded.Config
	h.workspace = workspace
}

// restore loads a session and its writer. The caller holds mu.
func (h *handler) restore(id string) (*history.Session, *metadata.Writer, error) {
	sess, err := h.store.Load(id)
	if err != nil {
		return nil, nil, err
	}
	opts := append(h.cfg.WriterOptions(), h.writerOpts...)
	w, err := sess.Writer(opts...)
	if err != nil {
		return nil, nil, err
	}
	return sess, w, nil
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
