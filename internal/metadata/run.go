package metadata

import (
	"errors"
	"time"
)

// ErrRunFinalized is returned when a finalized run is modified or
// finalized again.
var ErrRunFinalized = errors.New("run already finalized")

// Run accumulates the records of one timed tool execution.
// A Run is finalized exactly once; afterwards it is read-only.
type Run struct {
	now func() time.Time

	start     time.Time
	stop      time.Time
	elapsed   time.Duration
	status    string
	finalized bool

	parameters []Parameter
	outputs    []Output
	messages   []Message
}

// NewRun starts a run stamped with the current time.
func NewRun() *Run {
	return newRun(time.Now)
}

func newRun(now func() time.Time) *Run {
	return &Run{
		now:        now,
		start:      now(),
		parameters: []Parameter{},
		outputs:    []Output{},
		messages:   []Message{},
	}
}

// AddParameter appends a named input. Duplicate names are kept.
func (r *Run) AddParameter(name, value string) error {
	if r.finalized {
		return ErrRunFinalized
	}
	r.parameters = append(r.parameters, Parameter{Name: name, Value: value})
	return nil
}

// AddOutput appends a named result.
func (r *Run) AddOutput(name, value string) error {
	if r.finalized {
		return ErrRunFinalized
	}
	r.outputs = append(r.outputs, Output{Name: name, Value: value})
	return nil
}

// AddMessage appends a diagnostic note. level is not interpreted.
func (r *Run) AddMessage(level, text string) error {
	if r.finalized {
		return ErrRunFinalized
	}
	r.messages = append(r.messages, Message{Level: level, Text: text})
	return nil
}

// Finalize stamps the stop time, computes the elapsed duration and
// stores status. A second call returns ErrRunFinalized and changes nothing.
func (r *Run) Finalize(status string) error {
	if r.finalized {
		return ErrRunFinalized
	}
	stop := r.now()
	if stop.Before(r.start) {
		stop = r.start
	}
	r.stop = stop
	r.elapsed = stop.Sub(r.start)
	r.status = status
	r.finalized = true
	return nil
}

// Start returns the time the run was created.
func (r *Run) Start() time.Time { return r.start }

// Stop returns the finalize time; ok is false until the run is finalized.
func (r *Run) Stop() (t time.Time, ok bool) { return r.stop, r.finalized }

// Elapsed returns stop − start, or zero before finalization.
func (r *Run) Elapsed() time.Duration { return r.elapsed }

// Status returns the status passed to Finalize.
func (r *Run) Status() string { return r.status }

// Finalized reports whether Finalize has been called.
func (r *Run) Finalized() bool { return r.finalized }

// Parameters returns a copy of the recorded parameters in insertion order.
func (r *Run) Parameters() []Parameter { return append([]Parameter(nil), r.parameters...) }

// Outputs returns a copy of the recorded outputs in insertion order.
func (r *Run) Outputs() []Output { return append([]Output(nil), r.outputs...) }

// Messages returns a copy of the recorded messages in insertion order.
func (r *Run) Messages() []Message { return append([]Message(nil), r.messages...) }
