package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"curvrank/internal/config"
	"curvrank/internal/logging"
	"curvrank/internal/services"
	"curvrank/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "load config", "invalid configuration", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withSession opens the workspace with a config-driven logger and hands both
// to fn. The session and log files are released when fn returns.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *workflow.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logs, err := logging.OpenFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logs.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, err := workflow.Open(ctx, cfg, logs.Logger)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(ctx, session)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitCode maps error kinds onto process exit codes: 2 for configuration
// problems, 3 when the workspace is locked, 130 on interrupt.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, services.ErrWorkspaceInUse):
		return 3
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrConfigurationMismatch):
		return 2
	default:
		return 1
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
