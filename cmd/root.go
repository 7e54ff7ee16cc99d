package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LINBIT/lcmc/client"
	"github.com/LINBIT/lcmc/pkg/config"
	"github.com/LINBIT/lcmc/pkg/version"
)

// rootCommand represents the base command when called without any subcommands
func rootCommand() *cobra.Command {
	if len(os.Args) < 1 {
		log.Fatal("Program started with a zero-length argument list")
	}

	var loglevel string

	rootCmd := &cobra.Command{
		Use:     "lcmc",
		Version: version.Version,
		Short:   "Manage Pacemaker clusters, DRBD resources and virtual machines",
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(loglevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&loglevel, "loglevel", log.InfoLevel.String(), "Set the log level (as defined by logrus)")
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().String("connect", "http://localhost:8338", "URL of the console server")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("client.connect", rootCmd.PersistentFlags().Lookup("connect"))

	viper.SetEnvPrefix("LCMC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(statusCommand())
	rootCmd.AddCommand(resourceCommands())
	rootCmd.AddCommand(drbdCommands())
	rootCmd.AddCommand(vmCommands())
	rootCmd.AddCommand(configCommands())
	rootCmd.AddCommand(serverCommand())
	rootCmd.AddCommand(checkHealthCommand())
	rootCmd.AddCommand(versionCommand())
	rootCmd.AddCommand(completionCommand(rootCmd))
	rootCmd.AddCommand(docsCommand(rootCmd))
	return rootCmd
}

// newClient returns a client for the server given by --connect.
func newClient() (*client.Client, error) {
	base, err := url.Parse(viper.GetString("client.connect"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	return client.NewClient(client.BaseURL(base), client.Log(log.StandardLogger()))
}

// loadConfig reads the configuration file and applies flag and environment
// overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return cfg, err
	}
	cfg.ApplyOverrides(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd := rootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
