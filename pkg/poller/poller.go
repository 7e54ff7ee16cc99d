// Package poller keeps the cluster models up to date.
//
// Every cluster gets a status task, every host an info/DRBD task and a
// domain task. A failing host is logged and retried on the next tick, it
// never stops the other tasks.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport"
)

type Poller struct {
	exec       transport.Executor
	registry   *cluster.Registry
	interval   time.Duration
	vmInterval time.Duration
	onReady    func()
	onChange   func(c *cluster.Cluster)
}

type Option func(p *Poller)

// WithIntervals sets the status and domain poll cycles.
func WithIntervals(status, vms time.Duration) Option {
	return func(p *Poller) {
		p.interval = status
		p.vmInterval = vms
	}
}

// WithReady registers a function that is called once every cluster has
// delivered its first status.
func WithReady(f func()) Option {
	return func(p *Poller) { p.onReady = f }
}

// WithChange registers a function that is called whenever a model of a
// cluster changed. It is called from the poll tasks and must not block.
func WithChange(f func(c *cluster.Cluster)) Option {
	return func(p *Poller) { p.onChange = f }
}

func New(exec transport.Executor, registry *cluster.Registry, opts ...Option) *Poller {
	p := &Poller{
		exec:       exec,
		registry:   registry,
		interval:   10 * time.Second,
		vmInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) changed(c *cluster.Cluster) {
	if p.onChange != nil {
		p.onChange(c)
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	clusters := p.registry.Clusters()
	g, ctx := errgroup.WithContext(ctx)

	ready := make(chan struct{})
	var pending atomic.Int32
	pending.Store(int32(len(clusters)))
	if len(clusters) == 0 {
		close(ready)
	}

	for _, c := range clusters {
		c := c
		var once sync.Once
		first := func() {
			once.Do(func() {
				if pending.Add(-1) == 0 {
					close(ready)
				}
			})
		}
		g.Go(func() error {
			p.every(ctx, p.interval, func() {
				if p.PollStatus(ctx, c) {
					first()
				}
			})
			return nil
		})
		for _, h := range c.Hosts() {
			h := h
			g.Go(func() error {
				p.every(ctx, p.interval, func() { p.PollHost(ctx, c, h) })
				h.StopDrbdEvents()
				return nil
			})
			g.Go(func() error {
				p.every(ctx, p.vmInterval, func() { p.PollVMs(ctx, c, h) })
				return nil
			})
		}
	}

	g.Go(func() error {
		select {
		case <-ready:
			log.Info("All clusters reported their status")
			if p.onReady != nil {
				p.onReady()
			}
		case <-ctx.Done():
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// every calls f right away and then on every tick until ctx is done.
func (p *Poller) every(ctx context.Context, d time.Duration, f func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		f()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// statusHosts returns the hosts to ask for the cluster status, preferred
// one first.
func statusHosts(c *cluster.Cluster) []string {
	first := c.ControlHost()
	hosts := []string{first}
	for _, n := range c.HostNames() {
		if n != first {
			hosts = append(hosts, n)
		}
	}
	return hosts
}

// PollStatus fetches one status frame of c. It asks the hosts in turn until
// one answers and reports whether any did.
func (p *Poller) PollStatus(ctx context.Context, c *cluster.Cluster) bool {
	for _, name := range statusHosts(c) {
		if name == "" {
			continue
		}
		logger := log.WithFields(log.Fields{"cluster": c.Name, "host": name})
		res, err := p.exec.Execute(ctx, name, crmcontrol.StatusCommand)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warnf("Could not get cluster status: %v", err)
			continue
		}
		logger.Trace(res.Output)
		if c.Status.ParseStatus(res.Output) {
			logger.Debug("Cluster status changed")
			p.changed(c)
		}
		if h, ok := c.Host(name); ok {
			h.FirstStatus().Open()
		}
		return true
	}
	return false
}

// PollHost refreshes the facts and the DRBD state of h. The first
// successful cycle also loads the DRBD schema. Cycles that find the DRBD
// lock taken are skipped.
func (p *Poller) PollHost(ctx context.Context, c *cluster.Cluster, h *host.Host) {
	logger := log.WithFields(log.Fields{"cluster": c.Name, "host": h.Name()})

	changed, err := h.FetchInfo(ctx, p.exec)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(err)
		}
		return
	}
	if changed {
		p.changed(c)
	}

	if !h.DrbdStatusTryLock() {
		logger.Debug("DRBD status update still running, skipping cycle")
		return
	}
	defer h.DrbdStatusUnlock()

	if !h.DrbdLoaded() {
		h.StopDrbdEvents()
		h.LoadingDone().Open()
		return
	}

	if !h.LoadingDone().IsOpen() {
		if err := c.Drbd.FetchSchema(ctx, p.exec, h.Name(), c.SchemaContext()); err != nil {
			logger.Warnf("Could not load DRBD schema: %v", err)
		}
	}
	if _, err := c.Drbd.FetchConfig(ctx, p.exec, h.Name()); err != nil {
		logger.Warn(err)
	}
	h.LoadingDone().Open()

	started, err := c.Drbd.StartEvents(ctx, p.exec, h, func() { p.changed(c) })
	if err != nil {
		logger.Warnf("Could not start DRBD events: %v", err)
		return
	}
	if started {
		logger.Debug("Started DRBD events")
	}
}

// PollVMs refreshes the domain definitions of h. Cycles that find the VM
// lock taken are skipped.
func (p *Poller) PollVMs(ctx context.Context, c *cluster.Cluster, h *host.Host) {
	if !h.VMStatusTryLock() {
		log.WithField("host", h.Name()).Debug("VM status update still running, skipping cycle")
		return
	}
	defer h.VMStatusUnlock()

	if !h.Daemons().LibvirtRunning {
		return
	}
	changed, err := c.VMs(h.Name()).Update(ctx, p.exec)
	if err != nil {
		if ctx.Err() == nil {
			log.WithField("host", h.Name()).Warn(err)
		}
		return
	}
	if changed {
		p.changed(c)
	}
}
