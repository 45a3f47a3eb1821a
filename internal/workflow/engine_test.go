package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deixis/runmeta/internal/config"
	"github.com/deixis/runmeta/internal/identity"
	"github.com/deixis/runmeta/internal/metadata"
	"github.com/deixis/runmeta/internal/runner"
)

// fakeRunner is a test double for CommandRunner. It returns predetermined
// results keyed by argv[0] and records every call.
type fakeRunner struct {
	Results map[string]*runner.Result
	Err     map[string]error
	Calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, argv []string, _ string) (*runner.Result, error) {
	f.Calls = append(f.Calls, argv)
	key := argv[0]
	if err, ok := f.Err[key]; ok {
		return nil, err
	}
	if r, ok := f.Results[key]; ok {
		return r, nil
	}
	// Default: success with no output.
	return &runner.Result{RunID: "fake-" + key}, nil
}

func newTestEngine(t *testing.T, fr *fakeRunner, cfg *config.Config) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	w := metadata.NewWriter("Clip Raster", "1.0",
		metadata.WithIdentity(identity.Fixed{Host: "gis-01", User: "kelly"}),
	)
	return &Engine{Config: cfg, Runner: fr, Writer: w}
}

func TestRecord(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{}, nil)
	run, err := e.Record(RunRecord{
		Parameters: []metadata.Parameter{{Name: "in", Value: "dem.tif"}},
		Outputs:    []metadata.Output{{Name: "out", Value: "clip.tif"}},
		Messages:   []metadata.Message{{Level: metadata.LevelInfo, Text: "done"}},
		Status:     "Complete",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !run.Finalized() || run.Status() != "Complete" {
		t.Errorf("run finalized=%v status=%q", run.Finalized(), run.Status())
	}
	if len(e.Writer.Runs()) != 1 {
		t.Errorf("len(Runs) = %d, want 1", len(e.Writer.Runs()))
	}
	if got := run.Outputs(); len(got) != 1 || got[0].Value != "clip.tif" {
		t.Errorf("Outputs = %+v", got)
	}
}

func TestRecord_PendingRun(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{}, nil)
	if _, err := e.Writer.CreateRun(); err != nil {
		t.Fatal(err)
	}
	_, err := e.Record(RunRecord{})
	if !errors.Is(err, metadata.ErrRunPending) {
		t.Fatalf("err = %v, want ErrRunPending", err)
	}
}

func TestWrite_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "history.xml")
	e := newTestEngine(t, &fakeRunner{}, &config.Config{Output: out})
	if _, err := e.Record(RunRecord{Status: "Success"}); err != nil {
		t.Fatal(err)
	}

	path, err := e.Write("")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != out {
		t.Errorf("path = %q, want %q", path, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `<Run status="Success">`) {
		t.Errorf("document missing run:\n%s", data)
	}
}

func TestWrite_MatchesWriter(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{}, nil)
	_, _ = e.Record(RunRecord{Status: "Success"})

	path := filepath.Join(t.TempDir(), "m.xml")
	if _, err := e.Write(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)

	var buf bytes.Buffer
	if err := e.Writer.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != string(data) {
		t.Error("file differs from in-memory document")
	}
}

func TestExec_TimeoutMessage(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		"slow": {ExitCode: -1, TimedOut: true},
	}}
	e := newTestEngine(t, fr, &config.Config{RawTimeout: "2s"})
	res, err := e.Exec(context.Background(), Invocation{Argv: []string{"slow"}})
	if err != nil {
		t.Fatal(err)
	}
	msgs := res.Run.Messages()
	last := msgs[len(msgs)-1]
	if last.Text != "slow timed out after "+(2*time.Second).String() {
		t.Errorf("last message = %q", last.Text)
	}
}
