package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version 变量将在编译时通过 -ldflags 注入
var Version string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示程序版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		v := Version
		if v == "" {
			v = "dev"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "nostr-digest %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
