package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"asrprep/internal/logging"
	"asrprep/internal/manifest"
	"asrprep/internal/notify"
	"asrprep/internal/workers"
)

// DoneFile marks a feature directory whose partitions are all computed.
const DoneFile = ".done"

var ErrLocked = errors.New("feature directory is locked by another run")

type ComputerOptions struct {
	ManifestDir string
	FbankDir    string
	Extractor   Extractor
	Workers     int
	Cuts        CutOptions
	Logger      *slog.Logger
	Notifier    notify.Notifier
}

type Computer struct {
	opts     ComputerOptions
	logger   *slog.Logger
	notifier notify.Notifier
}

type PartitionResult struct {
	Partition   string
	AlreadyDone bool
	Cuts        int
	Elapsed     time.Duration
	CutsOut     string
}

// Report - outcome of one Run. Finished is true when the done marker was
// already present and nothing was attempted.
type Report struct {
	Finished   bool
	Partitions []PartitionResult
}

func NewComputer(opts ComputerOptions) *Computer {
	n := opts.Notifier
	if n == nil {
		n = notify.Noop{}
	}
	return &Computer{
		opts:     opts,
		logger:   logging.OrDiscard(opts.Logger),
		notifier: n,
	}
}

// CutsPath returns fbank-dir/cuts_<part>.jsonl.gz.
func CutsPath(fbankDir, part string) string {
	return filepath.Join(fbankDir, "cuts_"+part+".jsonl.gz")
}

// Run computes features for every partition and touches the done marker
// when all succeed.
func (c *Computer) Run(ctx context.Context, partitions []string) (Report, error) {
	if c.opts.Extractor == nil {
		return Report{}, errors.New("no feature extractor configured")
	}
	done := filepath.Join(c.opts.FbankDir, DoneFile)
	if manifest.Exists(done) {
		c.logger.Info("previous feature computation found", slog.String("marker", done))
		return Report{Finished: true}, nil
	}
	if err := os.MkdirAll(c.opts.FbankDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create fbank dir: %w", err)
	}

	lock := flock.New(filepath.Join(c.opts.FbankDir, ".asrprep.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return Report{}, fmt.Errorf("lock %s: %w", c.opts.FbankDir, err)
	}
	if !locked {
		return Report{}, fmt.Errorf("%s: %w", c.opts.FbankDir, ErrLocked)
	}
	defer lock.Unlock()

	var report Report
	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := c.computePartition(ctx, part)
		if err != nil {
			c.send(ctx, "asrprep: features failed", fmt.Sprintf("partition %s: %v", part, err))
			return report, fmt.Errorf("partition %s: %w", part, err)
		}
		report.Partitions = append(report.Partitions, res)
	}

	if err := os.WriteFile(done, nil, 0o644); err != nil {
		return report, fmt.Errorf("write done marker: %w", err)
	}
	c.logger.Info("all features computed", slog.Int("partitions", len(report.Partitions)))
	return report, nil
}

func (c *Computer) computePartition(ctx context.Context, part string) (PartitionResult, error) {
	logger := c.logger.With(slog.String("partition", part))
	out := CutsPath(c.opts.FbankDir, part)
	if manifest.Exists(out) {
		logger.Info("cuts already exist, skipping", slog.String("path", out))
		return PartitionResult{Partition: part, AlreadyDone: true, CutsOut: out}, nil
	}

	recPath, ok := manifest.Find(c.opts.ManifestDir, manifest.KindRecordings, part)
	if !ok {
		return PartitionResult{}, fmt.Errorf("no recordings manifest for %s in %s", part, c.opts.ManifestDir)
	}
	supPath, ok := manifest.Find(c.opts.ManifestDir, manifest.KindSupervisions, part)
	if !ok {
		return PartitionResult{}, fmt.Errorf("no supervisions manifest for %s in %s", part, c.opts.ManifestDir)
	}
	recs, err := manifest.ReadRecordings(recPath)
	if err != nil {
		return PartitionResult{}, err
	}
	sups, err := manifest.ReadSupervisions(supPath)
	if err != nil {
		return PartitionResult{}, err
	}

	start := time.Now()
	cuts, err := BuildCuts(recs, sups, c.opts.Cuts)
	if err != nil {
		return PartitionResult{}, err
	}
	logger.Info("computing features", slog.Int("cuts", len(cuts)), slog.Int("workers", c.opts.Workers))

	storage := filepath.Join(c.opts.FbankDir, "feats_"+part)
	if err := os.MkdirAll(storage, 0o755); err != nil {
		return PartitionResult{}, fmt.Errorf("create feature storage: %w", err)
	}

	jobs := make([]workers.Job[Cut], len(cuts))
	for i, cut := range cuts {
		jobs[i] = func(ctx context.Context) (Cut, error) {
			feats, err := c.opts.Extractor.Extract(ctx, cut, storage)
			if err != nil {
				return Cut{}, err
			}
			cut.Features = feats
			return cut, nil
		}
	}
	results, err := workers.Run(ctx, c.opts.Workers, jobs, workers.WithProgress(func(done, total int) {
		if done == total || done%500 == 0 {
			logger.Debug("feature progress", slog.Int("done", done), slog.Int("total", total))
		}
	}))
	if err != nil {
		return PartitionResult{}, err
	}
	computed, err := workers.Values(results)
	if err != nil {
		return PartitionResult{}, err
	}

	if err := manifest.WriteJSONL(out, computed); err != nil {
		return PartitionResult{}, err
	}
	res := PartitionResult{Partition: part, Cuts: len(computed), Elapsed: time.Since(start), CutsOut: out}
	logger.Info("features computed", slog.Int("cuts", res.Cuts), slog.Duration("elapsed", res.Elapsed.Round(time.Millisecond)))
	c.send(ctx, "asrprep: features "+part+" ready", fmt.Sprintf("%d cuts in %s", res.Cuts, res.Elapsed.Round(time.Second)))
	return res, nil
}

func (c *Computer) send(ctx context.Context, title, body string) {
	if err := c.notifier.Notify(context.WithoutCancel(ctx), notify.Message{Title: title, Body: body}); err != nil {
		c.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}
