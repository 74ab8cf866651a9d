package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"asrprep/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "SQL catalog of prepared manifests",
	}
	cmd.AddCommand(newCatalogExportCommand(ctx))
	return cmd
}

func newCatalogExportCommand(ctx *commandContext) *cobra.Command {
	var (
		corpusName  string
		manifestDir string
		parts       []string
		hash        bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load manifests into the catalog database, replacing earlier exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manifestDir = pick(manifestDir, cfg.Paths.ManifestDir)
			if err := requireExistingDir("manifest-dir", manifestDir); err != nil {
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
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}

			store, err := catalog.Open(cmd.Context(), cfg.Catalog)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := catalog.ExportOptions{
				ManifestDir: manifestDir,
				HashAudio:   hash || cfg.Catalog.HashAudio,
				Workers:     cfg.Workers.Parse,
				Logger:      logger,
			}
			for _, part := range selected {
				if _, err := catalog.Export(cmd.Context(), store, part, opts); err != nil {
					return err
				}
			}

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []string{s.Part, strconv.Itoa(s.Recordings), strconv.Itoa(s.Supervisions), fmt.Sprintf("%.2f", s.Hours)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Partition", "Recordings", "Supervisions", "Hours"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusName, "corpus", "csj", "Corpus whose partition list to use: csj or laborotv")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "Directory with manifests")
	cmd.Flags().StringSliceVar(&parts, "parts", nil, "Partitions to export (comma separated)")
	cmd.Flags().BoolVar(&hash, "hash", false, "Store the MD5 of every audio file")
	return cmd
}
