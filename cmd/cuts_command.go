package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"asrprep/internal/features"
)

func newCutsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cuts",
		Short: "Maintain cut manifests",
	}
	cmd.AddCommand(newCutsRelocateCommand(ctx))
	return cmd
}

func newCutsRelocateCommand(ctx *commandContext) *cobra.Command {
	var (
		in, out     string
		replace     []string
		stripSpaces bool
	)
	cmd := &cobra.Command{
		Use:   "relocate",
		Short: "Rewrite feature and audio path prefixes in a cuts file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" || out == "" {
				return errors.New("--in and --out are required")
			}
			opts := features.RelocateOptions{StripSpaces: stripSpaces}
			for _, r := range replace {
				repl, err := features.ParseReplacement(r)
				if err != nil {
					return err
				}
				opts.Replace = append(opts.Replace, repl)
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			n, err := features.Relocate(in, out, opts)
			if err != nil {
				return err
			}
			logger.Info("cuts relocated", "in", in, "out", out, "cuts", n)
			fmt.Fprintf(cmd.OutOrStdout(), "%d cuts written to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input cuts file (.json, .jsonl, optionally .gz)")
	cmd.Flags().StringVar(&out, "out", "", "Output cuts file")
	cmd.Flags().StringArrayVar(&replace, "replace", nil, "Path prefix rewrite old=new (repeatable)")
	cmd.Flags().BoolVar(&stripSpaces, "strip-spaces", false, "Remove spaces from supervision text")
	return cmd
}
