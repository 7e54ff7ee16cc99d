package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func completionCommand(dst *cobra.Command) *cobra.Command {
	var completionCmd = &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generates shell completion scripts",
		Long: `To load completion run

. <(lcmc completion bash)

To configure your bash shell to load completions for each session add to your bashrc

# ~/.bashrc or ~/.profile
. <(lcmc completion bash)`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := "bash"
			if len(args) > 0 {
				shell = args[0]
			}
			switch shell {
			case "bash":
				return dst.GenBashCompletion(os.Stdout)
			case "zsh":
				return dst.GenZshCompletion(os.Stdout)
			case "fish":
				return dst.GenFishCompletion(os.Stdout, true)
			}
			return fmt.Errorf("unsupported shell %q", shell)
		},
	}

	completionCmd.ResetCommands()
	completionCmd.DisableAutoGenTag = true

	return completionCmd
}
