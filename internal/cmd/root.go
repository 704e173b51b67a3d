package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/agentsync/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "agentsync",
	Short: "Coordinate AI agents through a shared action store",
	Long: `agentsync lets several agents coordinate through a shared store of action
records: each agent publishes what it is doing, waits on what others have
finished, and works through a dependency-gated stage graph while a human
approves the steps that matter.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx; long-running commands such
// as monitor and stage run stop when ctx is canceled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/agentsync/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "store backend: file or redis (overrides store.backend)")
	rootCmd.PersistentFlags().String("namespace", "", "record namespace (overrides store.namespace)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("store.namespace", rootCmd.PersistentFlags().Lookup("namespace"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// e.g., AGENTSYNC_STORE_BACKEND for store.backend
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
