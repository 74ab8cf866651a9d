package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"asrprep/internal/lang"
)

func newLangCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang",
		Short: "Build language directory files",
	}
	cmd.AddCommand(newLangCharCommand(ctx))
	cmd.AddCommand(newLangLexiconCommand(ctx))
	return cmd
}

func newLangCharCommand(ctx *commandContext) *cobra.Command {
	var langDir string
	cmd := &cobra.Command{
		Use:   "char",
		Short: "Write tokens.txt and words.txt from <lang-dir>/msp_dict.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			langDir = pick(langDir, cfg.Paths.LangDir)
			if err := requireExistingDir("lang-dir", langDir); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			v, err := lang.BuildCharVocab(langDir)
			if err != nil {
				return err
			}
			logger.Info("char vocabulary written", "lang_dir", langDir, "tokens", len(v.Tokens), "words", len(v.Words))
			fmt.Fprintf(cmd.OutOrStdout(), "%d tokens, %d words written to %s\n", len(v.Tokens)+1, len(v.Words)+1, langDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&langDir, "lang-dir", "", "Language directory")
	return cmd
}

func newLangLexiconCommand(ctx *commandContext) *cobra.Command {
	var (
		vocab   string
		langDir string
	)
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Write <lang-dir>/lexicon.txt from a BPE .vocab file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			langDir = pick(langDir, cfg.Paths.LangDir)
			if err := requireDir("lang-dir", langDir); err != nil {
				return err
			}
			if vocab == "" {
				return fmt.Errorf("--vocab is required")
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			out := filepath.Join(langDir, lang.LexiconFile)
			n, err := lang.BuildLexicon(vocab, out)
			if err != nil {
				return err
			}
			logger.Info("lexicon written", "path", out, "entries", n)
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries written to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&vocab, "vocab", "", "BPE model .vocab file")
	cmd.Flags().StringVar(&langDir, "lang-dir", "", "Language directory")
	return cmd
}
