package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func configCommands() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "config",
		Short: "Shows and checks the configuration",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Prints the effective configuration",
		Long: `Prints the effective configuration: the configuration file with
flags and LCMC_* environment variables applied`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				log.Fatal(err)
			}
			if err := cfg.Encode(os.Stdout); err != nil {
				log.Fatal(err)
			}
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validates the configuration file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				log.Fatal(err)
			}
			hosts := 0
			for _, c := range cfg.Clusters {
				hosts += len(c.Hosts)
			}
			fmt.Printf("%s: %d clusters, %d hosts %s\n", viper.GetString("config"), len(cfg.Clusters), hosts, statusOk)
		},
	})
	return rootCmd
}
