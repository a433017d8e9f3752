package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fbctl",
	Short: "fbctl is a command line tool for the feedbacker review service",
	Long: `fbctl is the command-line interface for the feedbacker automated review service.

Feedbacker fetches a git repository at a revision, runs a set of analysis
steps against it and stores the findings durably.

Common workflows:

  Submit a repository revision for analysis:
    fbctl submit --repo git@github.com:acme/service.git --revision deadbeef

  Check job status and findings:
    fbctl status <job-id>

  Cancel a queued or running job:
    fbctl cancel <job-id>

  Inspect service-wide counters:
    fbctl stats

Configuration:
  Set the API endpoint via environment variables or a config file:
    FEEDBACKER_API_URL    API endpoint (default: http://localhost:8080)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".fbctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".fbctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FEEDBACKER_VARNAME"
	viper.SetEnvPrefix("FEEDBACKER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fbctl.yaml)")

	rootCmd.PersistentFlags().String("api_url", "http://localhost:8080", "Feedbacker API URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api_url"))
}
