package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "asrprep",
		Short:         "Prepare Japanese ASR corpora (CSJ, LaboroTV) for training",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file (TOML, or YAML by extension)")
	pf.StringVar(&flags.env, "env", ".env", "Path to .env file")
	pf.BoolVar(&flags.debug, "debug", false, "Use the [debug] paths from the configuration")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json (default: auto)")

	rootCmd.AddCommand(newPrepareCommand(ctx))
	rootCmd.AddCommand(newFbankCommand(ctx))
	rootCmd.AddCommand(newLangCommand(ctx))
	rootCmd.AddCommand(newCutsCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newNotifyCommand(ctx))

	return rootCmd
}
