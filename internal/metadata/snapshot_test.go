package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/deixis/runmeta/internal/identity"
)

func TestSnapshot_RestoreThroughJSON(t *testing.T) {
	w := newTestWriter(t, WithGISVersion("QGIS 3.34"))
	recordSample(t, w)
	want := writeString(t, w)

	data, err := json.Marshal(w.Snapshot())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	// A different identity source must not affect the restored writer.
	restored, err := Restore(snap,
		WithIdentity(identity.Fixed{Host: "other-host", User: "other-user"}),
		WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := writeString(t, restored); got != want {
		t.Errorf("restored document differs\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSnapshot_ExcludesPendingRun(t *testing.T) {
	w := newTestWriter(t)
	recordSample(t, w)
	_, _ = w.CreateRun()
	if n := len(w.Snapshot().Runs); n != 1 {
		t.Errorf("len(Snapshot.Runs) = %d, want 1", n)
	}
}

func TestRestore_AppendAfterRestore(t *testing.T) {
	w := newTestWriter(t)
	recordSample(t, w)

	clock := newStepClock(time.Second)
	restored, err := Restore(w.Snapshot(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := restored.CreateRun(); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := restored.FinalizeRun("Success"); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}
	runs := restored.Runs()
	if len(runs) != 2 {
		t.Fatalf("len(Runs) = %d, want 2", len(runs))
	}
	if runs[1].Status() != "Success" || runs[1].Elapsed() != time.Second {
		t.Errorf("appended run = %q %v", runs[1].Status(), runs[1].Elapsed())
	}
	if err := runs[0].AddParameter("late", "x"); err == nil {
		t.Error("restored run accepted a new parameter")
	}
}

func TestRestore_RejectsInvertedRun(t *testing.T) {
	start := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{Runs: []RunSnapshot{{Start: start, Stop: start.Add(-time.Second)}}}
	if _, err := Restore(snap); err == nil {
		t.Fatal("expected error for stop before start")
	}
}
