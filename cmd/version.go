package cmd

import (
	"fmt"

	"github.com/arcward/greybot/greybot"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the application",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf(
			"version=%s commit=%s built: %s",
			greybot.Version,
			greybot.CommitSHA,
			greybot.BuildTime,
		)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
