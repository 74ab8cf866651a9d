package service

import (
	"context"
	"fmt"
	"path/filepath"

	"asrprep/internal/corpus"
	"asrprep/internal/workers"
)

// Adapter turns one corpus partition into parse jobs.
type Adapter interface {
	Name() string
	Jobs(ctx context.Context, partition string) ([]workers.Job[corpus.Parsed], error)
}

// CSJ - one job per "<stem>-clean.txt" group under trans-dir/<partition>.
type CSJ struct {
	TransDir string
	Options  corpus.Options
}

func (CSJ) Name() string { return "csj" }

func (a CSJ) Jobs(_ context.Context, partition string) ([]workers.Job[corpus.Parsed], error) {
	groups, err := corpus.LocateCSJ(filepath.Join(a.TransDir, partition))
	if err != nil {
		return nil, err
	}
	jobs := make([]workers.Job[corpus.Parsed], len(groups))
	for i, g := range groups {
		jobs[i] = func(ctx context.Context) (corpus.Parsed, error) {
			return corpus.ParseCSJGroup(ctx, g, a.Options)
		}
	}
	return jobs, nil
}

// LaboroTV - one job per transcript line of trans-dir/text_<partition>.txt.
// The partition's wav directory must exist; individual missing wav files are
// skipped.
type LaboroTV struct {
	TransDir  string
	CorpusDir string
	Options   corpus.Options
}

func (LaboroTV) Name() string { return "laborotv" }

func (a LaboroTV) Jobs(_ context.Context, partition string) ([]workers.Job[corpus.Parsed], error) {
	wavDir := corpus.LaboroTVWavDir(a.CorpusDir, partition)
	if err := corpus.RequireDir(wavDir); err != nil {
		return nil, fmt.Errorf("wav dir: %w", err)
	}
	utts, err := corpus.ReadLaboroTVTranscript(corpus.LaboroTVTranscript(a.TransDir, partition), wavDir)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	jobs := make([]workers.Job[corpus.Parsed], len(utts))
	for i, u := range utts {
		jobs[i] = func(ctx context.Context) (corpus.Parsed, error) {
			return corpus.ParseLaboroTVUtterance(ctx, u, a.Options)
		}
	}
	return jobs, nil
}
