package metadata

import (
	"errors"
	"time"

	"github.com/deixis/runmeta/internal/identity"
)

// Misuse errors returned by Writer.
var (
	ErrRunPending   = errors.New("current run is not finalized")
	ErrNoCurrentRun = errors.New("no current run")
)

// Writer owns the tool identity, the processing environment and the
// finalized runs of one tool invocation or batch.
type Writer struct {
	toolName    string
	toolVersion string
	gisVersion  string
	computerID  string
	operator    identity.Result
	hostResult  identity.Result

	current *Run
	runs    []*Run

	now    func() time.Time
	loc    *time.Location
	layout Layout
	indent bool
}

// Option configures a Writer.
type Option func(*writerOptions)

type writerOptions struct {
	operator   string
	gisVersion string
	source     identity.Source
	now        func() time.Time
	loc        *time.Location
	layout     Layout
	indent     bool
}

// WithOperator records operator verbatim instead of resolving the
// current user. An empty string keeps the default resolution.
func WithOperator(operator string) Option {
	return func(o *writerOptions) { o.operator = operator }
}

// WithGISVersion records the GIS or environment version.
func WithGISVersion(v string) Option {
	return func(o *writerOptions) { o.gisVersion = v }
}

// WithIdentity replaces the environment used to resolve host and operator.
func WithIdentity(src identity.Source) Option {
	return func(o *writerOptions) { o.source = src }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *writerOptions) { o.now = now }
}

// WithLocation sets the zone timestamps are written in. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *writerOptions) { o.loc = loc }
}

// WithLayout selects the document layout. Default LayoutLegacy.
func WithLayout(l Layout) Option {
	return func(o *writerOptions) { o.layout = l }
}

// WithIndent enables indented output.
func WithIndent(indent bool) Option {
	return func(o *writerOptions) { o.indent = indent }
}

func buildOptions(opts []Option) writerOptions {
	o := writerOptions{
		source: identity.System{},
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewWriter creates a Writer for the named tool. The host identifier is
// captured now; the operator is taken from WithOperator or resolved from
// the environment, falling back to identity.UnknownOperator.
func NewWriter(toolName, toolVersion string, opts ...Option) *Writer {
	o := buildOptions(opts)
	host := identity.ResolveHost(o.source)
	return &Writer{
		toolName:    toolName,
		toolVersion: toolVersion,
		gisVersion:  o.gisVersion,
		computerID:  host.Value,
		hostResult:  host,
		operator:    identity.ResolveOperator(o.operator, o.source),
		runs:        []*Run{},
		now:         o.now,
		loc:         o.loc,
		layout:      o.layout,
		indent:      o.indent,
	}
}

// CreateRun starts a new run and makes it current. It fails with
// ErrRunPending while the current run has not been finalized.
func (w *Writer) CreateRun() (*Run, error) {
	if w.current != nil {
		return nil, ErrRunPending
	}
	w.current = newRun(w.now)
	return w.current, nil
}

// CurrentRun returns the run being populated, or nil.
func (w *Writer) CurrentRun() *Run { return w.current }

// FinalizeRun finalizes the current run with status, appends it to the
// run list and empties the current slot.
func (w *Writer) FinalizeRun(status string) error {
	if w.current == nil {
		return ErrNoCurrentRun
	}
	if err := w.current.Finalize(status); err != nil {
		return err
	}
	w.runs = append(w.runs, w.current)
	w.current = nil
	return nil
}

// Runs returns the finalized runs in finalize order.
func (w *Writer) Runs() []*Run { return append([]*Run(nil), w.runs...) }

func (w *Writer) ToolName() string    { return w.toolName }
func (w *Writer) ToolVersion() string { return w.toolVersion }
func (w *Writer) GISVersion() string  { return w.gisVersion }
func (w *Writer) ComputerID() string  { return w.computerID }
func (w *Writer) Operator() string    { return w.operator.Value }

// OperatorResult reports how the operator was resolved.
func (w *Writer) OperatorResult() identity.Result { return w.operator }

// HostResult reports how the computer ID was resolved.
func (w *Writer) HostResult() identity.Result { return w.hostResult }
