package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"feedbacker/pkg/api"
)

var (
	submitRepo     string
	submitRevision string
	submitAnalyses []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a repository revision for analysis",
	Long: `Submit a git repository revision to the feedbacker service.

The service fetches the repository over SSH, runs the requested analysis
steps and stores the findings. Use 'fbctl status <job-id>' to follow the job.`,
	Run: func(cmd *cobra.Command, args []string) {
		if submitRepo == "" || submitRevision == "" {
			cmd.Println("Both --repo and --revision are required")
			return
		}

		client := NewClient(viper.GetString("api_url"))
		resp, err := client.SubmitJob(api.SubmitJobRequest{
			RepoURL:  submitRepo,
			Revision: submitRevision,
			Analyses: submitAnalyses,
		})
		if err != nil {
			cmd.Printf("Failed to submit job: %v\n", err)
			return
		}

		cmd.Printf("Job submitted: %s\n", resp.JobID)
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitRepo, "repo", "", "Repository SSH URL (required)")
	submitCmd.Flags().StringVar(&submitRevision, "revision", "", "Revision to analyze: branch, tag or commit (required)")
	submitCmd.Flags().StringSliceVar(&submitAnalyses, "analyses", nil, "Analysis steps to run (default: server's configured set)")
}
