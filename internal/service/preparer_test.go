package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"asrprep/internal/corpus"
	"asrprep/internal/manifest"
	"asrprep/internal/notify"
	"asrprep/internal/service"
	"asrprep/internal/testsupport"
	"asrprep/internal/workers"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func writeCSJGroup(t *testing.T, partDir, id string, lines []string, wavSeconds float64) {
	t.Helper()
	dir := filepath.Join(partDir, id)
	wav := filepath.Join(dir, id+".wav")
	testsupport.WriteWAV(t, wav, wavSeconds, 16000, 1)
	testsupport.WriteLines(t, filepath.Join(dir, id+"-clean.txt"), lines...)
	testsupport.WriteLines(t, filepath.Join(dir, id+"-morph.txt"), lines...)
	testsupport.WriteLines(t, filepath.Join(dir, id+"-pron.txt"), lines...)
	testsupport.WriteText(t, filepath.Join(dir, id+"-wav.list"), wav)
}

func newCSJPreparer(transDir, outDir string, n notify.Notifier) *service.Preparer {
	adapter := service.CSJ{TransDir: transDir, Options: corpus.Options{Language: "Japanese"}}
	return service.NewPreparer(adapter, service.PreparerOptions{OutputDir: outDir, Workers: 2, Notifier: n})
}

func TestPrepareCSJScenario(t *testing.T) {
	trans := t.TempDir()
	out := t.TempDir()
	writeCSJGroup(t, filepath.Join(trans, "core"), "spk01", []string{"seg001 0.0 2.5 hello world"}, 3.0)

	n := &captureNotifier{}
	results, err := newCSJPreparer(trans, out, n).Run(context.Background(), []string{"core"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Recordings != 1 || results[0].Supervisions != 1 {
		t.Fatalf("unexpected results %+v", results)
	}

	recs, err := manifest.ReadRecordings(filepath.Join(out, "recordings_core.json"))
	if err != nil {
		t.Fatalf("ReadRecordings: %v", err)
	}
	rec, ok := recs.Get("spk01")
	if !ok || math.Abs(rec.Duration-3.0) > 1e-3 {
		t.Fatalf("unexpected recording %+v", rec)
	}

	sups, err := manifest.ReadSupervisions(filepath.Join(out, "supervisions_core.json"))
	if err != nil {
		t.Fatalf("ReadSupervisions: %v", err)
	}
	s, ok := sups.Get("seg001")
	if !ok || s.Start != 0 || s.Duration != 2.5 || s.Text != "hello world" || s.RecordingID != "spk01" {
		t.Fatalf("unexpected supervision %+v", s)
	}

	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0].Title, "core") {
		t.Fatalf("expected completion notification, got %+v", n.msgs)
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	trans := t.TempDir()
	out := t.TempDir()
	writeCSJGroup(t, filepath.Join(trans, "core"), "spk01", []string{"a 0 1 x", "b 1 2 y"}, 2.0)

	if _, err := newCSJPreparer(trans, out, nil).Run(context.Background(), []string{"core"}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	recPath := filepath.Join(out, "recordings_core.json")
	supPath := filepath.Join(out, "supervisions_core.json")
	recBefore := testsupport.ReadFile(t, recPath)
	supBefore := testsupport.ReadFile(t, supPath)
	infoBefore, _ := os.Stat(recPath)

	// change the inputs: a rerun must not notice
	writeCSJGroup(t, filepath.Join(trans, "core"), "spk02", []string{"c 0 1 z"}, 1.0)

	results, err := newCSJPreparer(trans, out, nil).Run(context.Background(), []string{"core"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !results[0].AlreadyDone {
		t.Fatalf("expected partition to be skipped, got %+v", results[0])
	}
	if string(testsupport.ReadFile(t, recPath)) != string(recBefore) || string(testsupport.ReadFile(t, supPath)) != string(supBefore) {
		t.Fatal("outputs changed on rerun")
	}
	infoAfter, _ := os.Stat(recPath)
	if !infoAfter.ModTime().Equal(infoBefore.ModTime()) {
		t.Fatal("recordings manifest was rewritten")
	}
}

func TestPrepareCSJLineMismatchWritesNothing(t *testing.T) {
	trans := t.TempDir()
	out := t.TempDir()
	dir := filepath.Join(trans, "core", "spk01")
	writeCSJGroup(t, filepath.Join(trans, "core"), "spk01", []string{"a 0 1 x", "b 1 2 y"}, 2.0)
	testsupport.WriteLines(t, filepath.Join(dir, "spk01-pron.txt"), "a 0 1 x")

	_, err := newCSJPreparer(trans, out, nil).Run(context.Background(), []string{"core"})
	if !errors.Is(err, corpus.ErrLineCountMismatch) {
		t.Fatalf("expected ErrLineCountMismatch, got %v", err)
	}
	for _, kind := range []string{manifest.KindRecordings, manifest.KindSupervisions} {
		if path, ok := manifest.Find(out, kind, "core"); ok {
			t.Fatalf("unexpected output %s", path)
		}
	}
}

func TestPrepareKeepsEarlierPartitionsOnFailure(t *testing.T) {
	trans := t.TempDir()
	out := t.TempDir()
	writeCSJGroup(t, filepath.Join(trans, "eval1"), "spk01", []string{"a 0 1 x"}, 1.0)
	// eval2 directory missing entirely

	results, err := newCSJPreparer(trans, out, nil).Run(context.Background(), []string{"eval1", "eval2"})
	if err == nil {
		t.Fatal("expected failure for missing partition")
	}
	if len(results) != 1 {
		t.Fatalf("expected eval1 result before failure, got %+v", results)
	}
	if _, ok := manifest.Find(out, manifest.KindRecordings, "eval1"); !ok {
		t.Fatal("eval1 output should survive the eval2 failure")
	}
}

func TestPrepareLaboroTVSkipsMissingAudio(t *testing.T) {
	corpusDir := t.TempDir()
	trans := t.TempDir()
	out := t.TempDir()
	wavDir := corpus.LaboroTVWavDir(corpusDir, "dev")
	testsupport.WriteWAV(t, filepath.Join(wavDir, "rec1.wav"), 1.0, 16000, 1)
	testsupport.WriteWAV(t, filepath.Join(wavDir, "rec3.wav"), 2.0, 16000, 1)
	testsupport.WriteText(t, corpus.LaboroTVTranscript(trans, "dev"), "rec1,one\nrec2,two\nrec3,three\n")

	adapter := service.LaboroTV{TransDir: trans, CorpusDir: corpusDir, Options: corpus.Options{Language: "Japanese"}}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	p := service.NewPreparer(adapter, service.PreparerOptions{OutputDir: out, Workers: 3, Compress: true, Logger: logger})

	results, err := p.Run(context.Background(), []string{"dev"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Skipped != 1 || results[0].Recordings != 2 || results[0].Supervisions != 2 {
		t.Fatalf("unexpected result %+v", results[0])
	}

	recs, err := manifest.ReadRecordings(filepath.Join(out, "recordings_dev.json.gz"))
	if err != nil {
		t.Fatalf("ReadRecordings: %v", err)
	}
	sups, err := manifest.ReadSupervisions(filepath.Join(out, "supervisions_dev.json.gz"))
	if err != nil {
		t.Fatalf("ReadSupervisions: %v", err)
	}
	if _, ok := recs.Get("rec2"); ok {
		t.Fatal("rec2 should be absent from recordings")
	}
	if _, ok := sups.Get("rec2"); ok {
		t.Fatal("rec2 should be absent from supervisions")
	}
	s, ok := sups.Get("rec3")
	if !ok || math.Abs(s.Duration-2.0) > 1e-3 || s.Text != "three" {
		t.Fatalf("unexpected rec3 supervision %+v", s)
	}

	st := p.Status()
	if st.Running || st.Total != 3 || st.Processed != 2 || st.Skipped != 1 || st.Percent != 100 {
		t.Fatalf("unexpected status %+v", st)
	}
	got := logs.String()
	if !strings.Contains(got, "input skipped") || !strings.Contains(got, "rec2.wav") {
		t.Fatalf("expected skip reason in logs, got %q", got)
	}
	if !strings.Contains(got, "parse progress") || !strings.Contains(got, "percent=100%") {
		t.Fatalf("expected progress log, got %q", got)
	}
}

func TestPrepareLaboroTVMissingCorpusDirIsFatal(t *testing.T) {
	trans := t.TempDir()
	out := t.TempDir()
	testsupport.WriteText(t, corpus.LaboroTVTranscript(trans, "dev"), "rec1,one\nrec2,two\n")

	adapter := service.LaboroTV{TransDir: trans, CorpusDir: filepath.Join(t.TempDir(), "missing")}
	results, err := service.NewPreparer(adapter, service.PreparerOptions{OutputDir: out}).Run(context.Background(), []string{"dev"})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("unexpected results %+v", results)
	}
	for _, kind := range []string{manifest.KindRecordings, manifest.KindSupervisions} {
		if path, ok := manifest.Find(out, kind, "dev"); ok {
			t.Fatalf("unexpected output %s", path)
		}
	}
}

type failingAdapter struct{}

func (failingAdapter) Name() string { return "failing" }

func (failingAdapter) Jobs(context.Context, string) ([]workers.Job[corpus.Parsed], error) {
	var started sync.WaitGroup
	started.Add(2)
	job := func(name string) workers.Job[corpus.Parsed] {
		return func(context.Context) (corpus.Parsed, error) {
			started.Done()
			started.Wait()
			return corpus.Parsed{}, errors.New(name + " broken")
		}
	}
	return []workers.Job[corpus.Parsed]{job("first"), job("second")}, nil
}

func TestPrepareReportsEveryFailedJob(t *testing.T) {
	p := service.NewPreparer(failingAdapter{}, service.PreparerOptions{OutputDir: t.TempDir(), Workers: 2})

	_, err := p.Run(context.Background(), []string{"train"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"first broken", "second broken"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
	if st := p.Status(); st.Errors != 2 {
		t.Fatalf("unexpected error count %+v", st)
	}
}

type orphanAdapter struct{}

func (orphanAdapter) Name() string { return "orphan" }

func (orphanAdapter) Jobs(context.Context, string) ([]workers.Job[corpus.Parsed], error) {
	rec := manifest.NewRecording("r1", "/r1.wav", 16000, 16000, 1, 1)
	return []workers.Job[corpus.Parsed]{
		func(context.Context) (corpus.Parsed, error) {
			return corpus.Parsed{
				Recording: &rec,
				Supervisions: []manifest.Supervision{
					{ID: "s1", RecordingID: "r1", Duration: 1},
					{ID: "s2", RecordingID: "missing", Duration: 1},
				},
			}, nil
		},
	}, nil
}

func TestPrepareReferentialViolationIsFatal(t *testing.T) {
	out := t.TempDir()
	n := &captureNotifier{}
	p := service.NewPreparer(orphanAdapter{}, service.PreparerOptions{OutputDir: out, Workers: 1, Notifier: n})

	_, err := p.Run(context.Background(), []string{"train"})
	if !errors.Is(err, manifest.ErrMissingRecording) {
		t.Fatalf("expected ErrMissingRecording, got %v", err)
	}
	if _, ok := manifest.Find(out, manifest.KindSupervisions, "train"); ok {
		t.Fatal("no output expected after validation failure")
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0].Title, "failed") {
		t.Fatalf("expected failure notification, got %+v", n.msgs)
	}
	if p.Status().LastError == "" {
		t.Fatal("expected last error in status")
	}
}

func TestPrepareRefusesLockedOutputDir(t *testing.T) {
	out := t.TempDir()
	lock := flock.New(filepath.Join(out, ".asrprep.lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err = service.NewPreparer(orphanAdapter{}, service.PreparerOptions{OutputDir: out}).Run(context.Background(), []string{"x"})
	if !errors.Is(err, service.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
