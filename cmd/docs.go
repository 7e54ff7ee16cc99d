package cmd

import (
	"os"
	"path"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func docsCommand(dst *cobra.Command) *cobra.Command {
	var format []string
	var outDir string

	var docsCmd = &cobra.Command{
		Use:   "docs",
		Short: "Generate lcmc documentation",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range format {
				dir := path.Join(outDir, f)
				if err := os.MkdirAll(dir, 0755); err != nil {
					log.Fatal(err)
				}
				switch f {
				case "man":
					header := &doc.GenManHeader{
						Title:   "lcmc",
						Section: "8",
					}
					if err := doc.GenManTree(dst, header, dir); err != nil {
						log.Fatal(err)
					}
				case "md":
					if err := doc.GenMarkdownTree(dst, dir); err != nil {
						log.Fatal(err)
					}
				default:
					log.Fatalf("Unknown documentation format %q", f)
				}
			}
		},
	}

	docsCmd.ResetCommands()
	docsCmd.Hidden = true
	docsCmd.Flags().StringSliceVar(&format, "format", []string{"md"}, "Generate documentation in the given format (md,man)")
	docsCmd.Flags().StringVar(&outDir, "dir", "./docs", "Output directory")
	return docsCmd
}
