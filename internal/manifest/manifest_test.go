package manifest_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"asrprep/internal/manifest"
)

func sampleSets(t *testing.T) (*manifest.RecordingSet, *manifest.SupervisionSet) {
	t.Helper()
	recs, err := manifest.NewRecordingSet([]manifest.Recording{
		manifest.NewRecording("spk02", "/wav/spk02.wav", 16000, 32000, 2.0, 1),
		manifest.NewRecording("spk01", "/wav/spk01.wav", 16000, 48000, 3.0, 1),
	})
	if err != nil {
		t.Fatalf("NewRecordingSet: %v", err)
	}
	sups, err := manifest.NewSupervisionSet([]manifest.Supervision{
		{ID: "seg002", RecordingID: "spk01", Start: 1.0, Duration: 1.5, Language: "Japanese", Speaker: "spk01", Text: "b"},
		{ID: "seg001", RecordingID: "spk01", Start: 0.0, Duration: 1.0, Language: "Japanese", Speaker: "spk01", Text: "a",
			Custom: map[string]string{"morph": "a+x", "pron": "A"}},
		{ID: "seg003", RecordingID: "spk02", Start: 0.0, Duration: 2.0, Text: "c"},
	})
	if err != nil {
		t.Fatalf("NewSupervisionSet: %v", err)
	}
	return recs, sups
}

func TestSetsRejectDuplicateIDs(t *testing.T) {
	_, err := manifest.NewRecordingSet([]manifest.Recording{
		manifest.NewRecording("a", "/a.wav", 16000, 1, 1, 1),
		manifest.NewRecording("a", "/b.wav", 16000, 1, 1, 1),
	})
	if !errors.Is(err, manifest.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	_, err = manifest.NewSupervisionSet([]manifest.Supervision{
		{ID: "s", RecordingID: "a", Duration: 1},
		{ID: "s", RecordingID: "a", Duration: 1},
	})
	if !errors.Is(err, manifest.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestSetOrdering(t *testing.T) {
	recs, sups := sampleSets(t)

	got := recs.Recordings()
	if got[0].ID != "spk01" || got[1].ID != "spk02" {
		t.Fatalf("recordings not sorted by id: %v, %v", got[0].ID, got[1].ID)
	}

	segs := sups.Segments()
	want := []string{"seg001", "seg002", "seg003"}
	for i, id := range want {
		if segs[i].ID != id {
			t.Fatalf("segment %d: got %q want %q", i, segs[i].ID, id)
		}
	}
	if len(sups.ByRecording()["spk01"]) != 2 {
		t.Fatalf("expected 2 segments for spk01")
	}
	if recs.TotalDuration() != 5.0 {
		t.Fatalf("unexpected total duration %v", recs.TotalDuration())
	}
}

func TestValidateReferentialCompleteness(t *testing.T) {
	recs, _ := sampleSets(t)
	sups, err := manifest.NewSupervisionSet([]manifest.Supervision{
		{ID: "ok", RecordingID: "spk01", Start: 0, Duration: 1},
		{ID: "orphan", RecordingID: "nobody", Start: 0, Duration: 1},
	})
	if err != nil {
		t.Fatalf("NewSupervisionSet: %v", err)
	}

	_, err = manifest.Validate(recs, sups)
	if !errors.Is(err, manifest.ErrMissingRecording) {
		t.Fatalf("expected ErrMissingRecording, got %v", err)
	}
}

func TestValidateInvalidSegments(t *testing.T) {
	recs, _ := sampleSets(t)
	tests := []struct {
		name string
		sup  manifest.Supervision
	}{
		{"negative start", manifest.Supervision{ID: "x", RecordingID: "spk01", Start: -0.5, Duration: 1}},
		{"zero duration", manifest.Supervision{ID: "x", RecordingID: "spk01", Start: 0, Duration: 0}},
		{"bad channel", manifest.Supervision{ID: "x", RecordingID: "spk01", Start: 0, Duration: 1, Channel: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sups, err := manifest.NewSupervisionSet([]manifest.Supervision{tt.sup})
			if err != nil {
				t.Fatalf("NewSupervisionSet: %v", err)
			}
			if _, err := manifest.Validate(recs, sups); !errors.Is(err, manifest.ErrInvalidSegment) {
				t.Fatalf("expected ErrInvalidSegment, got %v", err)
			}
		})
	}
}

func TestValidateOverrunIsWarning(t *testing.T) {
	recs, _ := sampleSets(t)
	sups, err := manifest.NewSupervisionSet([]manifest.Supervision{
		{ID: "long", RecordingID: "spk02", Start: 1.5, Duration: 1.0},
		{ID: "edge", RecordingID: "spk02", Start: 1.0, Duration: 1.01},
	})
	if err != nil {
		t.Fatalf("NewSupervisionSet: %v", err)
	}

	warnings, err := manifest.Validate(recs, sups)
	if err != nil {
		t.Fatalf("overrun must not be fatal: %v", err)
	}
	if len(warnings) != 1 || warnings[0].SupervisionID != "long" {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	recs, sups := sampleSets(t)
	dir := t.TempDir()

	for _, compress := range []bool{false, true} {
		recPath := filepath.Join(dir, manifest.FileName(manifest.KindRecordings, "core", compress))
		supPath := filepath.Join(dir, manifest.FileName(manifest.KindSupervisions, "core", compress))

		if err := manifest.WriteRecordings(recPath, recs); err != nil {
			t.Fatalf("WriteRecordings: %v", err)
		}
		if err := manifest.WriteSupervisions(supPath, sups); err != nil {
			t.Fatalf("WriteSupervisions: %v", err)
		}

		gotRecs, err := manifest.ReadRecordings(recPath)
		if err != nil {
			t.Fatalf("ReadRecordings: %v", err)
		}
		rec, ok := gotRecs.Get("spk01")
		if !ok || rec.Duration != 3.0 || rec.Path() != "/wav/spk01.wav" || rec.NumChannels() != 1 {
			t.Fatalf("unexpected recording after read: %+v", rec)
		}

		gotSups, err := manifest.ReadSupervisions(supPath)
		if err != nil {
			t.Fatalf("ReadSupervisions: %v", err)
		}
		sup, ok := gotSups.Get("seg001")
		if !ok || sup.Custom["morph"] != "a+x" || sup.Custom["pron"] != "A" {
			t.Fatalf("unexpected supervision after read: %+v", sup)
		}
	}

	if path, ok := manifest.Find(dir, manifest.KindRecordings, "core"); !ok || filepath.Base(path) != "recordings_core.json" {
		t.Fatalf("Find returned %q %v", path, ok)
	}
	if _, ok := manifest.Find(dir, manifest.KindRecordings, "eval1"); ok {
		t.Fatal("Find should not report a missing partition")
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	_, sups := sampleSets(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	if err := manifest.WriteSupervisions(a, sups); err != nil {
		t.Fatal(err)
	}
	if err := manifest.WriteSupervisions(b, sups); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(a)
	second, _ := os.ReadFile(b)
	if !bytes.Equal(first, second) {
		t.Fatal("identical sets produced different bytes")
	}
}

func TestReadJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cuts.jsonl.gz")
	type item struct {
		ID string `json:"id"`
	}
	in := []item{{ID: "a"}, {ID: "b"}}
	if err := manifest.WriteJSONL(path, in); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	out, err := manifest.ReadJSONL[item](path)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(out) != 2 || out[1].ID != "b" {
		t.Fatalf("unexpected items: %+v", out)
	}
}
