package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"asrprep/internal/config"
	"asrprep/internal/corpus"
	"asrprep/internal/service"
)

type prepareFlags struct {
	transDir    string
	corpusDir   string
	manifestDir string
	parts       []string
	jobs        int
}

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Build recording and supervision manifests",
	}
	cmd.AddCommand(newPrepareCSJCommand(ctx))
	cmd.AddCommand(newPrepareLaboroTVCommand(ctx))
	return cmd
}

func addPrepareFlags(cmd *cobra.Command, f *prepareFlags) {
	cmd.Flags().StringVar(&f.transDir, "trans-dir", "", "Transcript directory")
	cmd.Flags().StringVar(&f.manifestDir, "manifest-dir", "", "Output directory for manifests")
	cmd.Flags().StringSliceVar(&f.parts, "parts", nil, "Partitions to prepare (comma separated)")
	cmd.Flags().IntVar(&f.jobs, "jobs", 0, "Parallel parse jobs")
}

func newPrepareCSJCommand(ctx *commandContext) *cobra.Command {
	f := &prepareFlags{}
	cmd := &cobra.Command{
		Use:   "csj",
		Short: "Prepare CSJ partitions from <trans-dir>/<part>/**/<id>-clean.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			transDir := pick(f.transDir, cfg.Paths.TransDir)
			if err := requireExistingDir("trans-dir", transDir); err != nil {
				return err
			}
			adapter := service.CSJ{
				TransDir: transDir,
				Options:  corpusOptions(cfg.CSJ),
			}
			return runPrepare(cmd, ctx, adapter, f, cfg.CSJ.Partitions)
		},
	}
	addPrepareFlags(cmd, f)
	return cmd
}

func newPrepareLaboroTVCommand(ctx *commandContext) *cobra.Command {
	f := &prepareFlags{}
	cmd := &cobra.Command{
		Use:   "laborotv",
		Short: "Prepare LaboroTV partitions from <trans-dir>/text_<part>.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			transDir := pick(f.transDir, cfg.Paths.TransDir)
			corpusDir := pick(f.corpusDir, cfg.Paths.CorpusDir)
			if err := requireExistingDir("trans-dir", transDir); err != nil {
				return err
			}
			if err := requireExistingDir("corpus-dir", corpusDir); err != nil {
				return err
			}
			adapter := service.LaboroTV{
				TransDir:  transDir,
				CorpusDir: corpusDir,
				Options:   corpusOptions(cfg.LaboroTV),
			}
			return runPrepare(cmd, ctx, adapter, f, cfg.LaboroTV.Partitions)
		},
	}
	addPrepareFlags(cmd, f)
	cmd.Flags().StringVar(&f.corpusDir, "corpus-dir", "", "Corpus root holding data/<part>/wav")
	return cmd
}

func corpusOptions(c config.Corpus) corpus.Options {
	return corpus.Options{Language: c.Language, NormalizeText: c.NormalizeText}
}

func runPrepare(cmd *cobra.Command, ctx *commandContext, adapter service.Adapter, f *prepareFlags, configured []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	manifestDir := pick(f.manifestDir, cfg.Paths.ManifestDir)
	if err := requireDir("manifest-dir", manifestDir); err != nil {
		return err
	}
	parts, err := partitionsOr(f.parts, configured)
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger(cmd)
	if err != nil {
		return err
	}
	notifier, err := ctx.ensureNotifier(cmd)
	if err != nil {
		return err
	}

	p := service.NewPreparer(adapter, service.PreparerOptions{
		OutputDir: manifestDir,
		Workers:   workersOr(f.jobs, cfg.Workers.Parse),
		Compress:  cfg.Manifest.Compress,
		Logger:    logger,
		Notifier:  notifier,
	})
	results, runErr := p.Run(cmd.Context(), parts)
	if len(results) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), prepareTable(results))
	}
	return runErr
}

func prepareTable(results []service.PartitionResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "prepared"
		if r.AlreadyDone {
			status = "already done"
		}
		rows = append(rows, []string{
			r.Partition,
			status,
			strconv.Itoa(r.Recordings),
			strconv.Itoa(r.Supervisions),
			strconv.Itoa(r.Skipped),
			fmt.Sprintf("%.2f", r.AudioSeconds/3600),
			r.Elapsed.Round(time.Second).String(),
		})
	}
	return renderTable(
		[]string{"Partition", "Status", "Recordings", "Supervisions", "Skipped", "Hours", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}
