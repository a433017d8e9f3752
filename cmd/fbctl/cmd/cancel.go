package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a queued or running job",
	Long:  `Request cancellation of a feedback job. Jobs that already reached a terminal state cannot be cancelled.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("api_url"))
		if err := client.CancelJob(args[0]); err != nil {
			cmd.Printf("Failed to cancel job: %v\n", err)
			return
		}

		cmd.Printf("Cancellation requested for %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
