// Package cluster ties the per-cluster models together.
package cluster

import (
	"sort"
	"sync"

	"github.com/LINBIT/lcmc/pkg/config"
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
	"github.com/LINBIT/lcmc/pkg/drbd"
	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/vm"
)

// Cluster is a set of hosts sharing one Pacemaker status and one DRBD
// configuration.
type Cluster struct {
	Name   string
	Status *crmcontrol.ClusterStatus
	Drbd   *drbd.Manager

	hosts []*host.Host
	vms   map[string]*vm.Model
}

// New returns a cluster of the named hosts with empty models.
func New(name string, hostNames []string) *Cluster {
	c := &Cluster{
		Name:   name,
		Status: crmcontrol.NewClusterStatus(),
		Drbd:   drbd.NewManager(),
		vms:    make(map[string]*vm.Model, len(hostNames)),
	}
	for _, n := range hostNames {
		c.hosts = append(c.hosts, host.New(n))
		c.vms[n] = vm.NewModel(n)
	}
	return c
}

// Hosts returns the hosts in configuration order.
func (c *Cluster) Hosts() []*host.Host {
	return append([]*host.Host(nil), c.hosts...)
}

func (c *Cluster) HostNames() []string {
	names := make([]string, len(c.hosts))
	for i, h := range c.hosts {
		names[i] = h.Name()
	}
	return names
}

func (c *Cluster) Host(name string) (*host.Host, bool) {
	for _, h := range c.hosts {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// VMs returns the domain model of a host, nil for unknown hosts.
func (c *Cluster) VMs(hostName string) *vm.Model {
	return c.vms[hostName]
}

// SetAdvancedMode switches both the status and the DRBD model.
func (c *Cluster) SetAdvancedMode(on bool) {
	c.Status.SetAdvancedMode(on)
	c.Drbd.SetAdvancedMode(on)
}

// SchemaContext returns what the DRBD schema needs to know about the
// cluster. Crypto modules are taken from the first host that reported any.
func (c *Cluster) SchemaContext() drbd.SchemaContext {
	sctx := drbd.SchemaContext{HostNames: c.HostNames()}
	for _, h := range c.hosts {
		if mods := h.CryptoModules(); len(mods) > 0 {
			sctx.CryptoModules = mods
			break
		}
	}
	return sctx
}

// ControlHost returns the host to run cluster wide commands on: the
// designated controller if it is one of ours, else the first host.
func (c *Cluster) ControlHost() string {
	if dc := c.Status.DC(); dc != "" {
		if _, ok := c.Host(dc); ok {
			return dc
		}
	}
	if len(c.hosts) == 0 {
		return ""
	}
	return c.hosts[0].Name()
}

// Registry holds all configured clusters.
type Registry struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
}

// NewRegistry builds one cluster per configured cluster.
func NewRegistry(cfg config.Config) *Registry {
	r := &Registry{clusters: make(map[string]*Cluster, len(cfg.Clusters))}
	for _, cc := range cfg.Clusters {
		c := New(cc.Name, cc.Hosts)
		c.SetAdvancedMode(cfg.AdvancedMode)
		r.clusters[cc.Name] = c
	}
	return r
}

// Add registers c, replacing a cluster of the same name.
func (r *Registry) Add(c *Cluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters[c.Name] = c
}

func (r *Registry) Cluster(name string) (*Cluster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[name]
	return c, ok
}

// Clusters returns all clusters sorted by name.
func (r *Registry) Clusters() []*Cluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs := make([]*Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
	return cs
}

// FindHost returns the cluster a host belongs to.
func (r *Registry) FindHost(name string) (*Cluster, *host.Host, bool) {
	for _, c := range r.Clusters() {
		if h, ok := c.Host(name); ok {
			return c, h, true
		}
	}
	return nil, nil, false
}
