package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"asrprep/internal/corpus"
	"asrprep/internal/logging"
	"asrprep/internal/manifest"
	"asrprep/internal/notify"
	"asrprep/internal/workers"
)

var ErrLocked = errors.New("output directory is locked by another run")

const lockFileName = ".asrprep.lock"

// PrepareStatus is a point-in-time snapshot of the partition being prepared.
type PrepareStatus struct {
	Running   bool
	Partition string
	Total     int64
	Processed int64
	Skipped   int64
	Errors    int64
	Percent   float64
	Rate      float64
	Elapsed   string
	LastError string
}

// PartitionResult summarises one prepared (or already complete) partition.
type PartitionResult struct {
	Partition     string
	AlreadyDone   bool
	Recordings    int
	Supervisions  int
	Skipped       int
	Warnings      int
	AudioSeconds  float64
	Elapsed       time.Duration
	RecordingsOut string
}

type PreparerOptions struct {
	OutputDir string
	Workers   int
	Compress  bool
	Logger    *slog.Logger
	Notifier  notify.Notifier
}

// Preparer builds recording/supervision manifests partition by partition.
type Preparer struct {
	adapter  Adapter
	outDir   string
	workers  int
	compress bool
	logger   *slog.Logger
	notifier notify.Notifier

	running   int32
	processed int64
	skipped   int64
	errors    int64
	total     int64
	startTime time.Time
	partition string
	lastError string
	mu        sync.Mutex
}

func NewPreparer(adapter Adapter, opts PreparerOptions) *Preparer {
	n := opts.Notifier
	if n == nil {
		n = notify.Noop{}
	}
	return &Preparer{
		adapter:  adapter,
		outDir:   opts.OutputDir,
		workers:  opts.Workers,
		compress: opts.Compress,
		logger:   logging.OrDiscard(opts.Logger).With(slog.String("corpus", adapter.Name())),
		notifier: n,
	}
}

// Run prepares the partitions in order. Partitions whose recordings manifest
// already exists are skipped. The first failure stops the run; partitions
// finished before it keep their output.
func (p *Preparer) Run(ctx context.Context, partitions []string) ([]PartitionResult, error) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil, errors.New("prepare already running")
	}
	defer atomic.StoreInt32(&p.running, 0)

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}

	lock := flock.New(filepath.Join(p.outDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", p.outDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", p.outDir, ErrLocked)
	}
	defer lock.Unlock()

	results := make([]PartitionResult, 0, len(partitions))
	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.preparePartition(ctx, part)
		if err != nil {
			p.setLastError(err.Error())
			p.notifyf(ctx, "asrprep: "+p.adapter.Name()+" failed", "partition %s: %v", part, err)
			return results, fmt.Errorf("partition %s: %w", part, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Preparer) preparePartition(ctx context.Context, part string) (PartitionResult, error) {
	recPath := filepath.Join(p.outDir, manifest.FileName(manifest.KindRecordings, part, p.compress))
	supPath := filepath.Join(p.outDir, manifest.FileName(manifest.KindSupervisions, part, p.compress))
	logger := p.logger.With(slog.String("partition", part))

	if existing, ok := manifest.Find(p.outDir, manifest.KindRecordings, part); ok {
		logger.Info("partition already prepared, skipping", slog.String("path", existing))
		return PartitionResult{Partition: part, AlreadyDone: true, RecordingsOut: existing}, nil
	}

	start := time.Now()
	p.reset(part)
	logger.Info("processing partition")

	jobs, err := p.adapter.Jobs(ctx, part)
	if err != nil {
		return PartitionResult{}, err
	}
	atomic.StoreInt64(&p.total, int64(len(jobs)))
	logger.Info("parse jobs queued", slog.Int("jobs", len(jobs)), slog.Int("workers", p.workers))

	results, err := workers.Run(ctx, p.workers, jobs, workers.WithProgress(p.progress(logger)))
	if err != nil {
		// report every failed job, not only the one that cancelled the rest
		if jobErrs := workers.Errors(results); jobErrs != nil {
			err = jobErrs
		}
		for _, r := range results {
			if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
				atomic.AddInt64(&p.errors, 1)
			}
		}
		return PartitionResult{}, err
	}
	parsed, err := workers.Values(results)
	if err != nil {
		return PartitionResult{}, err
	}

	res, err := p.assemble(logger, part, parsed, recPath, supPath)
	if err != nil {
		return PartitionResult{}, err
	}
	res.Elapsed = time.Since(start)

	logger.Info("partition prepared",
		slog.Int("recordings", res.Recordings),
		slog.Int("supervisions", res.Supervisions),
		slog.Int("skipped", res.Skipped),
		slog.Float64("audio_hours", res.AudioSeconds/3600),
		slog.Duration("elapsed", res.Elapsed.Round(time.Millisecond)))
	p.notifyf(ctx, "asrprep: "+p.adapter.Name()+" "+part+" ready",
		"%d recordings, %d supervisions, %.2f h audio, %d skipped",
		res.Recordings, res.Supervisions, res.AudioSeconds/3600, res.Skipped)
	return res, nil
}

// assemble merges parse results, validates the two sets against each other
// and writes supervisions first, recordings last. The recordings file is the
// completion marker.
func (p *Preparer) assemble(logger *slog.Logger, part string, parsed []corpus.Parsed, recPath, supPath string) (PartitionResult, error) {
	var (
		recordings   []manifest.Recording
		supervisions []manifest.Supervision
		skipped      int
	)
	for _, r := range parsed {
		if r.Recording == nil {
			skipped++
			logger.Warn("input skipped", slog.String("reason", r.SkipReason))
			continue
		}
		recordings = append(recordings, *r.Recording)
		supervisions = append(supervisions, r.Supervisions...)
	}
	atomic.AddInt64(&p.processed, -int64(skipped))
	atomic.AddInt64(&p.skipped, int64(skipped))

	recSet, err := manifest.NewRecordingSet(recordings)
	if err != nil {
		return PartitionResult{}, err
	}
	supSet, err := manifest.NewSupervisionSet(supervisions)
	if err != nil {
		return PartitionResult{}, err
	}

	warnings, err := manifest.Validate(recSet, supSet)
	if err != nil {
		return PartitionResult{}, fmt.Errorf("validate manifests: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("supervision exceeds recording", slog.String("detail", w.String()))
	}

	if err := manifest.WriteSupervisions(supPath, supSet); err != nil {
		return PartitionResult{}, err
	}
	if err := manifest.WriteRecordings(recPath, recSet); err != nil {
		return PartitionResult{}, err
	}

	return PartitionResult{
		Partition:     part,
		Recordings:    recSet.Len(),
		Supervisions:  supSet.Len(),
		Skipped:       skipped,
		Warnings:      len(warnings),
		AudioSeconds:  recSet.TotalDuration(),
		RecordingsOut: recPath,
	}, nil
}

// progress logs a Status snapshot every time another tenth of the jobs is
// done.
func (p *Preparer) progress(logger *slog.Logger) func(done, total int) {
	step := 0
	var mu sync.Mutex
	return func(done, total int) {
		atomic.AddInt64(&p.processed, 1)
		if total == 0 {
			return
		}
		pct := done * 100 / total
		mu.Lock()
		defer mu.Unlock()
		if pct/10 <= step {
			return
		}
		step = pct / 10
		st := p.Status()
		logger.Info("parse progress",
			slog.Int64("processed", st.Processed),
			slog.Int64("total", st.Total),
			slog.Int64("errors", st.Errors),
			slog.String("percent", fmt.Sprintf("%.0f%%", st.Percent)),
			slog.String("rate", fmt.Sprintf("%.1f/s", st.Rate)),
			slog.String("elapsed", st.Elapsed))
	}
}

// notifyf sends a message; delivery failures are logged, never dropped.
func (p *Preparer) notifyf(ctx context.Context, title, format string, args ...any) {
	msg := notify.Message{Title: title, Body: fmt.Sprintf(format, args...)}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		p.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func (p *Preparer) reset(part string) {
	atomic.StoreInt64(&p.processed, 0)
	atomic.StoreInt64(&p.skipped, 0)
	atomic.StoreInt64(&p.errors, 0)
	atomic.StoreInt64(&p.total, 0)
	p.mu.Lock()
	p.partition = part
	p.lastError = ""
	p.startTime = time.Now()
	p.mu.Unlock()
}

func (p *Preparer) setLastError(err string) {
	p.mu.Lock()
	p.lastError = err
	p.mu.Unlock()
}

// Status reports progress of the current (or last) partition. Safe to call
// while Run is in progress.
func (p *Preparer) Status() PrepareStatus {
	pr := atomic.LoadInt64(&p.processed)
	sk := atomic.LoadInt64(&p.skipped)
	e := atomic.LoadInt64(&p.errors)
	t := atomic.LoadInt64(&p.total)

	p.mu.Lock()
	lastErr := p.lastError
	part := p.partition
	started := p.startTime
	p.mu.Unlock()

	var pct, rate float64
	elapsed := time.Since(started)
	if started.IsZero() {
		elapsed = 0
	}
	if t > 0 {
		pct = float64(pr+sk) / float64(t) * 100
	}
	if elapsed.Seconds() > 0 {
		rate = float64(pr) / elapsed.Seconds()
	}

	return PrepareStatus{
		Running:   atomic.LoadInt32(&p.running) == 1,
		Partition: part,
		Total:     t,
		Processed: pr,
		Skipped:   sk,
		Errors:    e,
		Percent:   pct,
		Rate:      rate,
		Elapsed:   elapsed.Round(time.Second).String(),
		LastError: lastErr,
	}
}
