package metadata

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Document literals.
const (
	DocumentType    = "SFR Processing"
	DocumentVersion = "0.1"

	// TimeLayout is the format of TimeStart and TimeStop.
	TimeLayout = "2006-01-02 15:04:05"

	xmlHeader = "<?xml version='1.0' encoding='utf-8'?>\n"
)

// Layout selects how outputs and messages are arranged in a Run element.
type Layout int

const (
	// LayoutLegacy writes outputs as flat Name/Value siblings under
	// Outputs and places Message elements under Outputs, leaving
	// Messages empty. Existing consumers of the format expect this.
	LayoutLegacy Layout = iota
	// LayoutSymmetric writes Outputs/Output and Messages/Message the same
	// way parameters are written.
	LayoutSymmetric
)

func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutSymmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses "legacy" or "symmetric". The empty string is legacy.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return LayoutLegacy, nil
	case "symmetric":
		return LayoutSymmetric, nil
	default:
		return 0, fmt.Errorf("unknown layout %q (want legacy or symmetric)", s)
	}
}

// Write serializes the tool identity, processing environment and every
// finalized run to dst. The writer's state is left untouched, so repeated
// calls produce identical documents.
func (w *Writer) Write(dst io.Writer) error {
	bw := bufio.NewWriter(dst)
	if _, err := io.WriteString(bw, xmlHeader); err != nil {
		return err
	}

	enc := xml.NewEncoder(bw)
	if w.indent {
		enc.Indent("", "  ")
	}
	d := &docEncoder{enc: enc}
	w.encode(d)
	if d.err != nil {
		return fmt.Errorf("encoding metadata: %w", d.err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if w.indent {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the document to path, creating or truncating it.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metadata file: %w", err)
	}
	if err := w.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func (w *Writer) encode(d *docEncoder) {
	d.start("Metadata", attr("type", DocumentType), attr("version", DocumentVersion))

	d.start("Tool")
	d.text("Name", w.toolName)
	d.text("Version", w.toolVersion)
	d.end("Tool")

	d.start("Processing")
	d.text("ComputerID", w.computerID)
	d.text("Operator", w.operator.Value)
	d.text("GISVersion", w.gisVersion)

	d.start("Runs")
	for _, r := range w.runs {
		w.encodeRun(d, r)
	}
	d.end("Runs")

	d.end("Processing")
	d.end("Metadata")
}

func (w *Writer) encodeRun(d *docEncoder, r *Run) {
	d.start("Run", attr("status", r.status))
	d.text("TimeStart", r.start.In(w.loc).Format(TimeLayout))
	d.text("TimeStop", r.stop.In(w.loc).Format(TimeLayout))
	d.text("TotalProcessingTime", formatSeconds(r.elapsed))

	d.start("Parameters")
	for _, p := range r.parameters {
		d.start("Parameter")
		d.text("Name", p.Name)
		d.text("Value", p.Value)
		d.end("Parameter")
	}
	d.end("Parameters")

	switch w.layout {
	case LayoutSymmetric:
		d.start("Outputs")
		for _, o := range r.outputs {
			d.start("Output")
			d.text("Name", o.Name)
			d.text("Value", o.Value)
			d.end("Output")
		}
		d.end("Outputs")

		d.start("Messages")
		for _, m := range r.messages {
			d.message(m)
		}
		d.end("Messages")

	default:
		d.start("Outputs")
		for _, o := range r.outputs {
			d.text("Name", o.Name)
			d.text("Value", o.Value)
		}
		for _, m := range r.messages {
			d.message(m)
		}
		d.end("Outputs")

		d.start("Messages")
		d.end("Messages")
	}

	d.end("Run")
}

// formatSeconds renders d as seconds at microsecond precision using the
// shortest round-trip float form: "3.0", "0.25", "5e-05".
func formatSeconds(d time.Duration) string {
	secs := float64(d/time.Microsecond) / 1e6
	if secs != 0 && math.Abs(secs) < 1e-4 {
		return strconv.FormatFloat(secs, 'e', -1, 64)
	}
	s := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// docEncoder wraps xml.Encoder with a sticky error.
type docEncoder struct {
	enc *xml.Encoder
	err error
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (d *docEncoder) token(t xml.Token) {
	if d.err != nil {
		return
	}
	d.err = d.enc.EncodeToken(t)
}

func (d *docEncoder) start(name string, attrs ...xml.Attr) {
	d.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (d *docEncoder) end(name string) {
	d.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (d *docEncoder) text(name, value string, attrs ...xml.Attr) {
	d.start(name, attrs...)
	if value != "" {
		d.token(xml.CharData(value))
	}
	d.end(name)
}

func (d *docEncoder) message(m Message) {
	d.text("Message", m.Text, attr("Level", m.Level))
}
