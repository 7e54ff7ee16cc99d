package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LINBIT/lcmc/client"
	"github.com/LINBIT/lcmc/pkg/healthcheck"
	"github.com/LINBIT/lcmc/pkg/transport"
)

func checkHealthCommand() *cobra.Command {
	var mode string
	var checkCmd = &cobra.Command{
		Use:   "check-health",
		Short: "Check if all requirements and dependencies are met",
		Long: `Check if all requirements and dependencies are met

Modes:
  node    checks the tools and services of the current system
  hosts   checks every configured host over ssh
  client  checks the connection to the server given by --connect`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var exec transport.Executor
			var hosts []string
			var cli *client.Client
			switch mode {
			case healthcheck.ModeHosts:
				d, err := newDirect()
				if err != nil {
					log.Fatal(err)
				}
				exec = d.exec
				for _, c := range d.cfg.Clusters {
					hosts = append(hosts, c.Hosts...)
				}
			case healthcheck.ModeClient:
				var err error
				cli, err = newClient()
				if err != nil {
					log.Fatal(err)
				}
			}

			err := healthcheck.CheckRequirements(context.Background(), mode, exec, hosts, cli)
			if err != nil {
				fmt.Println()
				log.Fatalf("Health check failed: %v", err)
			}
		},
	}
	checkCmd.Flags().StringVar(&mode, "mode", healthcheck.ModeNode, "What to check (node,hosts,client)")
	return checkCmd
}
