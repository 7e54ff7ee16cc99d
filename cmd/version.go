package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LINBIT/lcmc/pkg/version"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information of lcmc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(version.Info())
		},
	}
}
