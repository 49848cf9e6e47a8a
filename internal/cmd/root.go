package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/montage/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "montage",
	Short: "Plan and generate short-form video through persona negotiation",
	Long: `Montage turns a one-line mission into a finished media plan.

A panel of expert personas negotiates every creative decision (aspect ratio,
narrative, tone, pacing and more) in bounded rounds. The resulting decision
ledger drives a set of generation requests that run against configurable
provider chains with retries, payload remediation and graceful degradation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/montage/config.yaml)")
	rootCmd.PersistentFlags().String("store", "", "run database path (overrides store.path)")
}

func initConfig() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))

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

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MONTAGE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., MONTAGE_DISPATCH_CONCURRENCY for dispatch.concurrency
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
