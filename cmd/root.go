// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/config"
	"github.com/xkilldash9x/graphedit/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// Execute runs the command tree and reports any error on stderr.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// newRootCmd builds the command tree. Config is loaded once in
// PersistentPreRunE and handed to subcommands through the context.
func newRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "graphedit",
		Short:         "Moderated editing and exploration for a property graph.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if logLevel != "" {
				cfg.SetLoggerLevel(logLevel)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml or ~/.graphedit/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logger.level")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newUsersCmd(),
		newBulkCmd(),
		newViewsCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)
	return root
}

// initializeConfig points v at the config file and the GRAPHEDIT_*
// environment. A missing default config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("could not expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".graphedit"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GRAPHEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// getConfigFromContext retrieves the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	if cfg, ok := ctx.Value(configKey).(config.Interface); ok {
		return cfg, nil
	}
	return nil, errors.New("configuration not found in context")
}
