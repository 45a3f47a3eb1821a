// Command runmeta records processing-tool runs and writes them as
// metadata documents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/deixis/runmeta"
	"github.com/deixis/runmeta/internal/config"
	"github.com/deixis/runmeta/internal/history"
	"github.com/deixis/runmeta/internal/metadata"
	rmmcp "github.com/deixis/runmeta/internal/mcp"
	"github.com/deixis/runmeta/internal/runner"
	"github.com/deixis/runmeta/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("runmeta: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "exec":
		err = execMain(args)
	case "start":
		err = startMain(args)
	case "write":
		err = writeMain(args)
	case "demo":
		err = demoMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(runmeta.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "runmeta: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: runmeta <command> [flags] [args]

Commands:
  exec        Run a tool and record the run (runmeta exec [flags] -- tool args...)
  start       Start a stored session for batching runs across invocations
  write       Write the metadata document for a stored session
  demo        Write a sample metadata document
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "runmeta <command> -h" for command-specific flags.`)
}

// --- exec ---

func execMain(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	idFlags := addIdentityFlags(fs)
	docFlags := addDocumentFlags(fs)
	var params, outputs pairFlag
	fs.Var(&params, "param", "record a parameter as name=value (repeatable)")
	fs.Var(&outputs, "output", "record an output as name=value (repeatable)")
	sessionFlag := fs.String("session", "", "append the run to a stored session")
	noWrite := fs.Bool("no-write", false, "do not write the document")
	timeoutFlag := fs.Duration("timeout", 0, "override configured timeout (e.g. 5m)")
	_ = fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "usage: runmeta exec [flags] -- tool [args...]")
		os.Exit(2)
	}

	env, err := loadEnv(*timeoutFlag)
	if err != nil {
		return err
	}
	idFlags.apply(env.cfg)
	if err := docFlags.apply(env.cfg); err != nil {
		return err
	}
	if env.cfg.Tool.Name == "" {
		env.cfg.Tool.Name = filepath.Base(argv[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, sess, store, err := env.openWriter(*sessionFlag)
	if err != nil {
		return err
	}

	eng := &workflow.Engine{Config: env.cfg, Runner: env.runner(), Writer: w}
	res, err := eng.Exec(ctx, workflow.Invocation{
		Argv:       argv,
		Parameters: params.parameters(),
		Outputs:    outputs.outputs(),
	})
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if sess != nil {
		if err := store.Save(sess.Update(w)); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	if !*noWrite {
		path, err := eng.Write("")
		if err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
		log.Printf("wrote %d runs to %s", len(w.Runs()), path)
	}

	fmt.Printf("%s: %s (exit %d, %.3fs)\n", res.Status, argv[0], res.ExitCode, res.Run.Elapsed().Seconds())

	if code := exitCode(res); code != 0 {
		os.Exit(code)
	}
	return nil
}

// exitCode maps a recorded run to the process exit status: the tool's
// own non-zero status when it has one, 1 for any other failed run.
func exitCode(res *workflow.ExecResult) int {
	switch {
	case !res.Failed():
		return 0
	case res.ExitCode > 0:
		return res.ExitCode
	default:
		return 1
	}
}

// --- start ---

func startMain(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	idFlags := addIdentityFlags(fs)
	_ = fs.Parse(args)

	env, err := loadEnv(0)
	if err != nil {
		return err
	}
	idFlags.apply(env.cfg)
	if env.cfg.Tool.Name == "" {
		return errors.New("start: tool name required (-tool or tool.name in .runmeta)")
	}

	w := env.newWriter()
	sess := history.NewSession(w)
	if err := env.store().Save(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Println(sess.ID)
	return nil
}

// --- write ---

func writeMain(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	docFlags := addDocumentFlags(fs)
	sessionFlag := fs.String("session", "", "stored session to write (required)")
	_ = fs.Parse(args)

	if *sessionFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: runmeta write -session ID [-o file]")
		os.Exit(2)
	}

	env, err := loadEnv(0)
	if err != nil {
		return err
	}
	if err := docFlags.apply(env.cfg); err != nil {
		return err
	}

	w, _, _, err := env.openWriter(*sessionFlag)
	if err != nil {
		return err
	}
	eng := &workflow.Engine{Config: env.cfg, Writer: w}
	path, err := eng.Write("")
	if err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	log.Printf("wrote %d runs to %s", len(w.Runs()), path)
	return nil
}

// --- demo ---

func demoMain(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	docFlags := addDocumentFlags(fs)
	_ = fs.Parse(args)

	env, err := loadEnv(0)
	if err != nil {
		return err
	}
	if err := docFlags.apply(env.cfg); err != nil {
		return err
	}
	env.cfg.Tool = config.ToolConfig{Name: "Test Tool Name", Version: "0.0"}

	eng := &workflow.Engine{Config: env.cfg, Writer: env.newWriter()}
	_, err = eng.Record(workflow.RunRecord{
		Parameters: []metadata.Parameter{
			{Name: "Parameter Name 1", Value: "Parameter Value 1"},
			{Name: "Parameter Name 2", Value: "Parameter Value 2"},
		},
		Outputs: []metadata.Output{
			{Name: "Output Name 1", Value: "Output Value 1"},
			{Name: "Output Name 2", Value: "Output Value 2"},
		},
		Messages: []metadata.Message{
			{Level: metadata.LevelInfo, Text: "Message Text 1"},
			{Level: metadata.LevelWarning, Text: "Warning Message Text 1"},
		},
	})
	if err != nil {
		return fmt.Errorf("demo: %w", err)
	}

	path, err := eng.Write("")
	if err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	fmt.Println(path)
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(rmmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := loadEnv(0)
	if err != nil {
		return err
	}
	store := history.NewLRUStore(5, env.store())
	server := rmmcp.NewServer(env.cfg, env.runner(), store, env.workspace)

	if *httpAddr != "" {
		return serveHTTP(ctx, server, *httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

// cliEnv is the loaded configuration for one command invocation.
type cliEnv struct {
	workspace string
	cfg       *config.Config
	timeout   time.Duration
}

func loadEnv(timeoutOverride time.Duration) (*cliEnv, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	timeout := loaded.Config.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
		loaded.Config.RawTimeout = timeoutOverride.String()
	}

	return &cliEnv{workspace: workspace, cfg: loaded.Config, timeout: timeout}, nil
}

func (e *cliEnv) runner() *runner.Runner {
	return &runner.Runner{
		Workspace: e.workspace,
		Timeout:   e.timeout,
		MaxOutput: e.cfg.MaxOutputBytes(),
	}
}

func (e *cliEnv) store() *history.DiskStore {
	return history.NewDiskStore(e.cfg.HistoryDir())
}

func (e *cliEnv) newWriter() *metadata.Writer {
	w := metadata.NewWriter(e.cfg.Tool.Name, e.cfg.Tool.Version, e.cfg.WriterOptions()...)
	if r := w.OperatorResult(); r.Fallback {
		log.Printf("operator could not be resolved (%v); recording %q", r.Err, r.Value)
	}
	if r := w.HostResult(); r.Fallback {
		log.Printf("host name could not be resolved (%v); recording %q", r.Err, r.Value)
	}
	return w
}

// openWriter restores a stored session when id is set, otherwise it
// creates a fresh writer. sess and store are nil for a fresh writer.
func (e *cliEnv) openWriter(id string) (*metadata.Writer, *history.Session, history.Store, error) {
	if id == "" {
		return e.newWriter(), nil, nil, nil
	}
	store := e.store()
	sess, err := store.Load(id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading session: %w", err)
	}
	w, err := sess.Writer(e.cfg.WriterOptions()...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restoring session %s: %w", id, err)
	}
	return w, sess, store, nil
}
