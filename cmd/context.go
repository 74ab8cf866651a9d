package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"asrprep/internal/config"
	"asrprep/internal/corpus"
	"asrprep/internal/logging"
	"asrprep/internal/notify"
)

type globalFlags struct {
	config    string
	env       string
	debug     bool
	logLevel  string
	logFormat string
}

// commandContext builds config, logger and notifier once per invocation.
type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
	notifier   notify.Notifier
	closers    []io.Closer
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.flags.config), strings.TrimSpace(c.flags.env))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.debug {
			cfg.UseDebugPaths()
		}
		if c.flags.logLevel != "" {
			cfg.Logging.Level = c.flags.logLevel
		}
		if c.flags.logFormat != "" {
			cfg.Logging.Format = c.flags.logFormat
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger returns the run logger: console/json output, optional log
// file, and a notification handler tee when a notifier is configured. Every
// record carries the run id.
func (c *commandContext) ensureLogger(cmd *cobra.Command) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		base, closer, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Dir:    cfg.Logging.Dir,
			Writer: cmd.ErrOrStderr(),
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		c.closers = append(c.closers, closer)

		c.notifier = notify.New(cfg.Notify)
		logger := base
		if h := logging.NewNotifyHandler(c.notifier, logging.ParseLevel(cfg.Notify.Level), cmd.ErrOrStderr()); h != nil {
			logger = logging.TeeLogger(base, h)
		}
		c.logger = logger.With(slog.String("run_id", uuid.NewString()))
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureNotifier(cmd *cobra.Command) (notify.Notifier, error) {
	if _, err := c.ensureLogger(cmd); err != nil {
		return nil, err
	}
	return c.notifier, nil
}

func (c *commandContext) close() {
	for _, cl := range c.closers {
		cl.Close()
	}
	c.closers = nil
}

// pick prefers an explicit flag value over the configured one.
func pick(flagValue, configured string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return configured
}

func requireDir(flag, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required (or set it in the [paths] config section)", flag)
	}
	return nil
}

// requireExistingDir is requireDir for inputs: the directory must exist.
func requireExistingDir(flag, value string) error {
	if err := requireDir(flag, value); err != nil {
		return err
	}
	if err := corpus.RequireDir(value); err != nil {
		return fmt.Errorf("--%s: %w", flag, err)
	}
	return nil
}

func partitionsOr(flagValue, configured []string) ([]string, error) {
	parts := configured
	if len(flagValue) > 0 {
		parts = flagValue
	}
	if len(parts) == 0 {
		return nil, errors.New("no partitions selected")
	}
	return parts, nil
}

func workersOr(flagValue, configured int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configured
}
