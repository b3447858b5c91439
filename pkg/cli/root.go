package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/system"
)

type Config struct {
	OutputWriter io.Writer
	// Logger overrides the process logger, mainly for tests.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath string
	debug      bool
	writer     io.Writer
	logger     *zap.Logger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{OutputWriter: os.Stdout}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{writer: cfg.OutputWriter, logger: cfg.Logger}

	root := &cobra.Command{
		Use:          "coffret",
		Short:        "MonCoffretElec intake backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if cmd.Name() == "version" {
				return nil
			}
			if rt.logger == nil {
				zl, err := system.NewLogger(rt.debug)
				if err != nil {
					return fmt.Errorf("setting up logger: %w", err)
				}
				rt.logger = zl
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", getEnvString("COFFRET_CONFIG_PATH", ""),
		"Path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", getEnvBool("COFFRET_DEBUG", false),
		"Enable debug logging and gin debug mode")

	root.AddCommand(
		NewServeCommand(),
		NewRenderCommand(),
		NewCheckCommand(),
		NewVersionCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	for c := cmd; c != nil; c = c.Parent() {
		if ctx := c.Context(); ctx != nil {
			if rt, ok := ctx.Value(runtimeKey{}).(*runtimeState); ok {
				return rt, nil
			}
		}
	}
	return nil, fmt.Errorf("runtime not initialized")
}

// loadConfig reads the configuration and fills in defaults.
func (rt *runtimeState) loadConfig() (config.Config, error) {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.Defaults()
	return cfg, nil
}

func (rt *runtimeState) sugar() *zap.SugaredLogger {
	if rt.logger == nil {
		return zap.NewNop().Sugar()
	}
	return rt.logger.Sugar()
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
