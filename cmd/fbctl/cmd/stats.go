package cmd

import (
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show service-wide job counters",
	Long:  `Retrieve per-state job counts plus the live queue occupancy of the feedbacker service.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("api_url"))
		stats, err := client.GetStats()
		if err != nil {
			cmd.Printf("Failed to get stats: %v\n", err)
			return
		}

		cmd.Printf("%sService Stats%s\n", colorBold, colorReset)
		cmd.Println("──────────────────────────────")

		states := make([]string, 0, len(stats.Jobs))
		for state := range stats.Jobs {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			cmd.Printf("%s%-12s%s %d\n", colorDim, state+":", colorReset, stats.Jobs[state])
		}

		cmd.Println()
		cmd.Printf("%sQueue depth:%s %d\n", colorDim, colorReset, stats.QueueDepth)
		if stats.Accepting {
			cmd.Printf("%sAccepting:%s   %syes%s\n", colorDim, colorReset, colorGreen, colorReset)
		} else {
			cmd.Printf("%sAccepting:%s   %sno%s\n", colorDim, colorReset, colorRed, colorReset)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
