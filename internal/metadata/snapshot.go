package metadata

import (
	"fmt"
	"time"

	"github.com/deixis/runmeta/internal/identity"
)

// Snapshot is the serializable state of a Writer. Only finalized runs are
// captured; a pending current run is not part of the history.
type Snapshot struct {
	ToolName    string        `json:"tool_name"`
	ToolVersion string        `json:"tool_version"`
	GISVersion  string        `json:"gis_version,omitempty"`
	ComputerID  string        `json:"computer_id"`
	Operator    string        `json:"operator"`
	Runs        []RunSnapshot `json:"runs"`
}

// RunSnapshot is the serializable state of a finalized Run.
type RunSnapshot struct {
	Start      time.Time     `json:"start"`
	Stop       time.Time     `json:"stop"`
	Elapsed    time.Duration `json:"elapsed"`
	Status     string        `json:"status"`
	Parameters []Parameter   `json:"parameters"`
	Outputs    []Output      `json:"outputs"`
	Messages   []Message     `json:"messages"`
}

// Snapshot captures the writer's identity and finalized runs.
func (w *Writer) Snapshot() Snapshot {
	s := Snapshot{
		ToolName:    w.toolName,
		ToolVersion: w.toolVersion,
		GISVersion:  w.gisVersion,
		ComputerID:  w.computerID,
		Operator:    w.operator.Value,
		Runs:        make([]RunSnapshot, 0, len(w.runs)),
	}
	for _, r := range w.runs {
		s.Runs = append(s.Runs, RunSnapshot{
			Start:      r.start,
			Stop:       r.stop,
			Elapsed:    r.elapsed,
			Status:     r.status,
			Parameters: r.Parameters(),
			Outputs:    r.Outputs(),
			Messages:   r.Messages(),
		})
	}
	return s
}

// Restore rebuilds a Writer from s. The stored computer ID and operator
// are used as-is; no identity resolution takes place. Clock, location,
// layout and indent options apply to the restored writer.
func Restore(s Snapshot, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	w := &Writer{
		toolName:    s.ToolName,
		toolVersion: s.ToolVersion,
		gisVersion:  s.GISVersion,
		computerID:  s.ComputerID,
		hostResult:  identity.Result{Value: s.ComputerID},
		operator:    identity.Result{Value: s.Operator},
		runs:        make([]*Run, 0, len(s.Runs)),
		now:         o.now,
		loc:         o.loc,
		layout:      o.layout,
		indent:      o.indent,
	}
	for i, rs := range s.Runs {
		if rs.Stop.Before(rs.Start) || rs.Elapsed < 0 {
			return nil, fmt.Errorf("run %d: stop precedes start", i)
		}
		w.runs = append(w.runs, &Run{
			now:        o.now,
			start:      rs.Start,
			stop:       rs.Stop,
			elapsed:    rs.Elapsed,
			status:     rs.Status,
			finalized:  true,
			parameters: append([]Parameter{}, rs.Parameters...),
			outputs:    append([]Output{}, rs.Outputs...),
			messages:   append([]Message{}, rs.Messages...),
		})
	}
	return w, nil
}
