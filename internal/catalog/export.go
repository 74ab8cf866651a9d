package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"asrprep/internal/audio"
	"asrprep/internal/logging"
	"asrprep/internal/manifest"
	"asrprep/internal/workers"
)

type ExportOptions struct {
	ManifestDir string
	HashAudio   bool
	Workers     int
	Logger      *slog.Logger
}

// Export loads the manifests of part from ManifestDir into the store,
// replacing any earlier export of the same partition.
func Export(ctx context.Context, s *Store, part string, opts ExportOptions) (PartStats, error) {
	logger := logging.OrDiscard(opts.Logger).With(slog.String("partition", part))

	recPath, ok := manifest.Find(opts.ManifestDir, manifest.KindRecordings, part)
	if !ok {
		return PartStats{}, fmt.Errorf("no recordings manifest for %s in %s", part, opts.ManifestDir)
	}
	supPath, ok := manifest.Find(opts.ManifestDir, manifest.KindSupervisions, part)
	if !ok {
		return PartStats{}, fmt.Errorf("no supervisions manifest for %s in %s", part, opts.ManifestDir)
	}
	recs, err := manifest.ReadRecordings(recPath)
	if err != nil {
		return PartStats{}, err
	}
	sups, err := manifest.ReadSupervisions(supPath)
	if err != nil {
		return PartStats{}, err
	}

	var hashes map[string]string
	if opts.HashAudio {
		hashes, err = hashRecordings(ctx, recs, opts.Workers)
		if err != nil {
			return PartStats{}, err
		}
	}

	if err := s.ReplacePartition(ctx, part, recs, sups, hashes); err != nil {
		return PartStats{}, fmt.Errorf("export %s: %w", part, err)
	}
	st := PartStats{
		Part:         part,
		Recordings:   recs.Len(),
		Supervisions: sups.Len(),
		Hours:        recs.TotalDuration() / 3600,
	}
	logger.Info("partition exported",
		slog.Int("recordings", st.Recordings),
		slog.Int("supervisions", st.Supervisions),
		slog.Bool("hashed", opts.HashAudio))
	return st, nil
}

func hashRecordings(ctx context.Context, recs *manifest.RecordingSet, n int) (map[string]string, error) {
	list := recs.Recordings()
	jobs := make([]workers.Job[string], len(list))
	for i, r := range list {
		jobs[i] = func(context.Context) (string, error) {
			return audio.MD5File(r.Path())
		}
	}
	results, err := workers.Run(ctx, n, jobs)
	if err != nil {
		return nil, fmt.Errorf("hash audio: %w", err)
	}
	sums, err := workers.Values(results)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(list))
	for i, r := range list {
		hashes[r.ID] = sums[i]
	}
	return hashes, nil
}
