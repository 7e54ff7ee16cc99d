package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/config"
	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport"
)

// direct bundles what commands need that talk to the hosts themselves
// instead of going through the server.
type direct struct {
	cfg      config.Config
	exec     transport.Executor
	registry *cluster.Registry
}

func newDirect() (*direct, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	exec, err := transport.NewShell(cfg.Transport.SSHCommand)
	if err != nil {
		return nil, err
	}
	return &direct{cfg: cfg, exec: exec, registry: cluster.NewRegistry(cfg)}, nil
}

// host returns a configured host and its cluster.
func (d *direct) host(name string) (*cluster.Cluster, *host.Host, error) {
	c, h, ok := d.registry.FindHost(name)
	if !ok {
		return nil, nil, fmt.Errorf("host %s is not part of any configured cluster", name)
	}
	return c, h, nil
}

// signalContext is canceled on SIGINT and SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
