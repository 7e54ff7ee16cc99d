package cmd

import (
	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/config"
	"github.com/LINBIT/lcmc/pkg/poller"
	"github.com/LINBIT/lcmc/pkg/rest"
	"github.com/LINBIT/lcmc/pkg/transport"
)

func serverCommand() *cobra.Command {
	var serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Polls the configured clusters and serves a REST API",
		Long: `Polls the configured clusters and serves a REST API

The server notifies systemd once every cluster has reported its status, so
it can be run as a Type=notify unit.

For example:
lcmc server --addr=":8338"`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				log.Fatal(err)
			}
			if len(cfg.Clusters) == 0 {
				log.Warnf("No clusters configured in %s", viper.GetString("config"))
			}
			interval, _ := cfg.PollInterval()
			vmInterval, _ := cfg.VMPollInterval()

			exec, err := transport.NewShell(cfg.Transport.SSHCommand)
			if err != nil {
				log.Fatal(err)
			}
			registry := cluster.NewRegistry(cfg)
			p := poller.New(exec, registry,
				poller.WithIntervals(interval, vmInterval),
				poller.WithReady(func() {
					if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
						log.Debugf("Could not notify systemd: %v", err)
					}
				}),
				poller.WithChange(func(c *cluster.Cluster) {
					log.WithField("cluster", c.Name).Trace("Model changed")
				}),
			)

			ctx, cancel := signalContext()
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return p.Run(ctx) })
			g.Go(func() error {
				log.Infof("Listening on %s", cfg.Server.Addr)
				return rest.ListenAndServe(ctx, cfg.Server.Addr, registry, exec, cfg.Server.CorsAllowedOrigins)
			})
			if err := g.Wait(); err != nil {
				log.Fatal(err)
			}
		},
	}

	serverCmd.ResetCommands()
	serverCmd.Flags().String("addr", "", "Host and port as defined by http.ListenAndServe() (default from the configuration file, or :8338)")
	serverCmd.Flags().StringSlice("cors-allowed-origins", nil, "Origins that may access the API from a browser")
	serverCmd.Flags().String("poll-interval", "", "Cluster status poll cycle, e.g. 10s")
	serverCmd.Flags().Bool("advanced", false, "Show orphaned resources and unknown DRBD sections")
	_ = viper.BindPFlag(config.KeyServerAddr, serverCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag(config.KeyCorsOrigins, serverCmd.Flags().Lookup("cors-allowed-origins"))
	_ = viper.BindPFlag(config.KeyPollInterval, serverCmd.Flags().Lookup("poll-interval"))
	_ = viper.BindPFlag(config.KeyAdvancedMode, serverCmd.Flags().Lookup("advanced"))
	serverCmd.DisableAutoGenTag = true

	return serverCmd
}
