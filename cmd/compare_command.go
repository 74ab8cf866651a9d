package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"asrprep/internal/manifest"
	"asrprep/internal/metrics"
)

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var (
		ref, hyp string
		perSeg   bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Score hypothesis supervisions against reference supervisions (WER/CER)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ref == "" || hyp == "" {
				return errors.New("--ref and --hyp are required")
			}
			refSet, err := manifest.ReadSupervisions(ref)
			if err != nil {
				return fmt.Errorf("read reference: %w", err)
			}
			hypSet, err := manifest.ReadSupervisions(hyp)
			if err != nil {
				return fmt.Errorf("read hypothesis: %w", err)
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}

			c := metrics.CompareSupervisions(refSet, hypSet)
			if len(c.Missing) > 0 || len(c.Extra) > 0 {
				logger.Warn("supervision ids differ", "missing_in_hyp", len(c.Missing), "extra_in_hyp", len(c.Extra))
			}

			w := cmd.OutOrStdout()
			if perSeg {
				rows := make([][]string, 0, len(c.Segments))
				for _, s := range c.Segments {
					rows = append(rows, []string{s.ID, percent(s.Words.Rate()), percent(s.Chars.Rate()), s.Reference, s.Hypothesis})
				}
				fmt.Fprintln(w, renderTable(
					[]string{"Segment", "WER", "CER", "Reference", "Hypothesis"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
			}
			fmt.Fprintln(w, renderTable(
				[]string{"Segments", "Missing", "Extra", "WER", "CER"},
				[][]string{{
					strconv.Itoa(len(c.Segments)),
					strconv.Itoa(len(c.Missing)),
					strconv.Itoa(len(c.Extra)),
					percent(c.WER()),
					percent(c.CER()),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "Reference supervisions manifest")
	cmd.Flags().StringVar(&hyp, "hyp", "", "Hypothesis supervisions manifest")
	cmd.Flags().BoolVar(&perSeg, "segments", false, "Also print per-segment scores")
	return cmd
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
