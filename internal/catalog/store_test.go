package catalog_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"asrprep/internal/catalog"
	"asrprep/internal/config"
	"asrprep/internal/manifest"
	"asrprep/internal/testsupport"
)

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	s, err := catalog.Open(context.Background(), config.Catalog{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writePartition(t *testing.T, dir, part string, wav string, texts ...string) {
	t.Helper()
	recs, err := manifest.NewRecordingSet([]manifest.Recording{
		manifest.NewRecording("r1", wav, 16000, 32000, 2, 1),
	})
	if err != nil {
		t.Fatalf("recordings: %v", err)
	}
	var segs []manifest.Supervision
	for i, text := range texts {
		segs = append(segs, manifest.Supervision{
			ID: "r1-" + string(rune('a'+i)), RecordingID: "r1",
			Start: float64(i) * 0.5, Duration: 0.5, Text: text, Language: "Japanese",
		})
	}
	sups, err := manifest.NewSupervisionSet(segs)
	if err != nil {
		t.Fatalf("supervisions: %v", err)
	}
	if err := manifest.WriteSupervisions(filepath.Join(dir, manifest.FileName(manifest.KindSupervisions, part, true)), sups); err != nil {
		t.Fatalf("write supervisions: %v", err)
	}
	if err := manifest.WriteRecordings(filepath.Join(dir, manifest.FileName(manifest.KindRecordings, part, true)), recs); err != nil {
		t.Fatalf("write recordings: %v", err)
	}
}

func TestDSN(t *testing.T) {
	got := catalog.DSN(config.Catalog{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3307, Name: "corpus"})
	if got != "u:p@tcp(db:3307)/corpus?charset=utf8mb4&parseTime=true" {
		t.Fatalf("unexpected mysql dsn %q", got)
	}
	if got := catalog.DSN(config.Catalog{Driver: "sqlite"}); got != catalog.DefaultSQLitePath {
		t.Fatalf("unexpected sqlite dsn %q", got)
	}
	if got := catalog.DSN(config.Catalog{Driver: "mysql", DSN: "explicit"}); got != "explicit" {
		t.Fatalf("explicit dsn ignored: %q", got)
	}
}

func TestExportReplacesPartition(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	wav := filepath.Join(dir, "r1.wav")
	testsupport.WriteWAV(t, wav, 2, 16000, 1)
	s := openStore(t)

	writePartition(t, dir, "dev", wav, "一", "二", "三")
	st, err := catalog.Export(ctx, s, "dev", catalog.ExportOptions{ManifestDir: dir, Workers: 2})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if st.Recordings != 1 || st.Supervisions != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}

	// re-export with fewer supervisions must not leave stale rows
	writePartition(t, dir, "dev", wav, "四")
	if _, err := catalog.Export(ctx, s, "dev", catalog.ExportOptions{ManifestDir: dir, HashAudio: true, Workers: 2}); err != nil {
		t.Fatalf("second Export: %v", err)
	}
	writePartition(t, dir, "train", wav, "五", "六")
	if _, err := catalog.Export(ctx, s, "train", catalog.ExportOptions{ManifestDir: dir}); err != nil {
		t.Fatalf("train Export: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || stats[0].Part != "dev" || stats[0].Supervisions != 1 || stats[1].Supervisions != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if math.Abs(stats[0].Hours-2.0/3600) > 1e-9 {
		t.Fatalf("unexpected hours %v", stats[0].Hours)
	}

	text, err := s.Transcription(ctx, "dev", "r1-a")
	if err != nil || text != "四" {
		t.Fatalf("Transcription: %q %v", text, err)
	}
	hash, err := s.RecordingHash(ctx, "dev", "r1")
	if err != nil || len(hash) != 32 {
		t.Fatalf("RecordingHash: %q %v", hash, err)
	}
	if hash, _ := s.RecordingHash(ctx, "train", "r1"); hash != "" {
		t.Fatalf("train was exported without hashing, got %q", hash)
	}
}

func TestExportMissingManifest(t *testing.T) {
	s := openStore(t)
	if _, err := catalog.Export(context.Background(), s, "eval1", catalog.ExportOptions{ManifestDir: t.TempDir()}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExportHashFailureKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	wav := filepath.Join(dir, "r1.wav")
	testsupport.WriteWAV(t, wav, 2, 16000, 1)
	s := openStore(t)

	writePartition(t, dir, "dev", wav, "一")
	if _, err := catalog.Export(ctx, s, "dev", catalog.ExportOptions{ManifestDir: dir}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	writePartition(t, dir, "dev", filepath.Join(dir, "gone.wav"), "二")
	if _, err := catalog.Export(ctx, s, "dev", catalog.ExportOptions{ManifestDir: dir, HashAudio: true}); err == nil {
		t.Fatal("expected hash error")
	}
	if text, err := s.Transcription(ctx, "dev", "r1-a"); err != nil || text != "一" {
		t.Fatalf("previous export should remain, got %q %v", text, err)
	}
}
