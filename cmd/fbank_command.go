package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"asrprep/internal/features"
)

func newFbankCommand(ctx *commandContext) *cobra.Command {
	var (
		corpusName  string
		manifestDir string
		fbankDir    string
		parts       []string
		jobs        int
	)
	cmd := &cobra.Command{
		Use:   "fbank",
		Short: "Build cuts and compute filterbank features with the configured extractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manifestDir = pick(manifestDir, cfg.Paths.ManifestDir)
			fbankDir = pick(fbankDir, cfg.Paths.FbankDir)
			if err := requireExistingDir("manifest-dir", manifestDir); err != nil {
				return err
			}
			if err := requireDir("fbank-dir", fbankDir); err != nil {
				return err
			}

			var configured []string
			switch corpusName {
			case "csj":
				configured = cfg.CSJ.Partitions
			case "laborotv":
				configured = cfg.LaboroTV.Partitions
			default:
				return fmt.Errorf("--corpus: unsupported value %q (want csj or laborotv)", corpusName)
			}
			selected, err := partitionsOr(parts, configured)
			if err != nil {
				return err
			}

			extractor, err := features.NewCommandExtractor(cfg.Features.Command, cfg.Features.Args, cfg.Features.NumMelBins)
			if err != nil {
				return fmt.Errorf("features.command: %w", err)
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			notifier, err := ctx.ensureNotifier(cmd)
			if err != nil {
				return err
			}

			c := features.NewComputer(features.ComputerOptions{
				ManifestDir: manifestDir,
				FbankDir:    fbankDir,
				Extractor:   extractor,
				Workers:     workersOr(jobs, cfg.Workers.Features),
				Cuts: features.CutOptions{
					TrimToSupervisions: cfg.Features.TrimToSupervisions,
					SpeedPerturb:       cfg.Features.SpeedPerturb,
				},
				Logger:   logger.With("corpus", corpusName),
				Notifier: notifier,
			})
			report, runErr := c.Run(cmd.Context(), selected)
			if report.Finished {
				fmt.Fprintf(cmd.OutOrStdout(), "Features already computed (%s present)\n", features.DoneFile)
				return nil
			}
			if len(report.Partitions) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), fbankTable(report.Partitions))
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&corpusName, "corpus", "csj", "Corpus whose partition list to use: csj or laborotv")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "Directory with recordings/supervisions manifests")
	cmd.Flags().StringVar(&fbankDir, "fbank-dir", "", "Output directory for features and cuts")
	cmd.Flags().StringSliceVar(&parts, "parts", nil, "Partitions to process (comma separated)")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "Parallel extractor processes")
	return cmd
}

func fbankTable(results []features.PartitionResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "computed"
		if r.AlreadyDone {
			status = "already done"
		}
		rows = append(rows, []string{r.Partition, status, strconv.Itoa(r.Cuts), r.Elapsed.Round(time.Second).String(), r.CutsOut})
	}
	return renderTable(
		[]string{"Partition", "Status", "Cuts", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
