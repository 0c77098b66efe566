package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"daka/internal/config"
	"daka/internal/core"
	"daka/internal/logging"
	"daka/internal/store"
)

type commandContext struct {
	overrides config.Overrides

	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        *slog.Logger
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

// ensureConfig loads configuration once per process. Failures map to the
// configuration exit code.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.overrides)
		if err != nil {
			c.configErr = withExitCode(exitConfig, fmt.Errorf("load config: %w", err))
			return
		}
		c.config = cfg
		c.log = logging.NewWithWriter(logWriter(cfg.Server.Mode), cfg.Log.Level, cfg.Log.Format)
		switch cfg.ConfigFileState {
		case config.FileLoaded:
			c.log.Info("loaded config file", "path", cfg.ConfigFile)
		case config.FileInvalid:
			c.log.Warn("config file is not valid JSON, ignoring", "path", cfg.ConfigFile)
		default:
			c.log.Debug("no config file, using environment and arguments", "path", cfg.ConfigFile)
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	if c.log == nil {
		return logging.Discard()
	}
	return c.log
}

// logWriter keeps stdout free for the MCP stdio transport.
func logWriter(mode string) io.Writer {
	if mode == "mcp" || mode == "both" {
		return os.Stderr
	}
	return os.Stdout
}

func (c *commandContext) openGate(cfg *config.Config) (*core.Gate, error) {
	gate, err := core.NewGate(cfg.LockDir, cfg.Location, c.logger())
	if err != nil {
		return nil, withExitCode(exitConfig, err)
	}
	return gate, nil
}

func (c *commandContext) withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.StateDir, cfg.RunKeep)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
