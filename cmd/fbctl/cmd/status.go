package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"feedbacker/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long:  `Retrieve detailed status for a feedback job, including its current state, attempt count, timestamps and, once finished, the analysis findings.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("api_url"))
		job, err := client.GetJob(args[0])
		if err != nil {
			cmd.Printf("Failed to get job: %v\n", err)
			return
		}

		printStatus(cmd, job)
	},
}

func printStatus(cmd *cobra.Command, job *api.JobResponse) {
	icon := stateIcon(job.State)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sRepository:%s  %s @ %s\n", colorDim, colorReset, job.RepoURL, job.Revision)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeState(job.State))
	cmd.Printf("%sAttempt:%s     %d/%d\n", colorDim, colorReset, job.Attempt, job.MaxAttempts)

	if job.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *job.Error, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))

	if job.StartedAt != nil && job.FinishedAt != nil {
		duration := job.FinishedAt.Sub(*job.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.FinishedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.FinishedAt))
	}

	if job.Result != nil {
		cmd.Println()
		if job.Result.Passed {
			cmd.Printf("%s✓ Passed%s with no blocking findings\n", colorGreen, colorReset)
		} else {
			cmd.Printf("%s✗ Did not pass%s\n", colorRed, colorReset)
		}
		for _, f := range job.Result.Findings {
			cmd.Printf("  [%s] %s:%d %s (%s)\n", f.Severity, f.File, f.Line, f.Message, f.RuleID)
		}
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case "succeeded":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "cancelled":
		return colorDim + "⊘" + colorReset
	case "fetching", "running", "storing":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case "succeeded":
		return icon + " " + colorGreen + state + colorReset
	case "failed":
		return icon + " " + colorRed + state + colorReset
	case "fetching", "running", "storing":
		return icon + " " + colorYellow + state + colorReset
	case "pending":
		return icon + " " + colorCyan + state + colorReset
	default:
		return icon + " " + state
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
