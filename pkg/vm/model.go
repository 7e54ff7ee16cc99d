package vm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	xmltree "github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// Model holds the domains and networks defined on one host.
type Model struct {
	host string

	mu        sync.RWMutex
	domains   map[string]*DomainData
	domainXML map[string]string
	networks  map[string]*NetworkData
	netXML    map[string]string
}

func NewModel(host string) *Model {
	return &Model{
		host:      host,
		domains:   make(map[string]*DomainData),
		domainXML: make(map[string]string),
		networks:  make(map[string]*NetworkData),
		netXML:    make(map[string]string),
	}
}

// Host returns the name of the host the model describes.
func (m *Model) Host() string { return m.host }

// SetDomain parses and stores the definition of a domain. It reports whether
// the stored definition changed. A definition that does not parse leaves the
// previous one in place.
func (m *Model) SetDomain(name, xml string) bool {
	m.mu.RLock()
	same := m.domainXML[name] == xml
	m.mu.RUnlock()
	if same {
		return false
	}
	d, ok := ParseDomain(name, xml)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = d
	m.domainXML[name] = xml
	return true
}

// RemoveDomain forgets a domain.
func (m *Model) RemoveDomain(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[name]; !ok {
		return false
	}
	delete(m.domains, name)
	delete(m.domainXML, name)
	return true
}

// SetNetwork parses and stores the definition of a network.
func (m *Model) SetNetwork(name, xml string, autostart bool) bool {
	m.mu.RLock()
	old, known := m.networks[name]
	same := known && m.netXML[name] == xml && old.Autostart == autostart
	m.mu.RUnlock()
	if same {
		return false
	}
	n, ok := ParseNetwork(name, xml)
	if !ok {
		return false
	}
	n.Autostart = autostart
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networks[name] = n
	m.netXML[name] = xml
	return true
}

func (m *Model) removeNetwork(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.networks, name)
	delete(m.netXML, name)
}

// Domain returns the parsed definition of a domain.
func (m *Model) Domain(name string) (*DomainData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.domains[name]
	return d, ok
}

// DomainXML returns the raw definition of a domain as last fetched.
func (m *Model) DomainXML(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	x, ok := m.domainXML[name]
	return x, ok
}

// Document returns a fresh, editable tree of a domain definition.
func (m *Model) Document(name string) (*xmltree.Document, error) {
	x, ok := m.DomainXML(name)
	if !ok {
		return nil, fmt.Errorf("unknown domain %q on %s", name, m.host)
	}
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(x); err != nil {
		return nil, fmt.Errorf("could not parse domain %q: %w", name, err)
	}
	return doc, nil
}

// DomainNames returns the sorted names of all known domains.
func (m *Model) DomainNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.domains))
	for n := range m.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Network returns the parsed definition of a network.
func (m *Model) Network(name string) (*NetworkData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.networks[name]
	return n, ok
}

// NetworkNames returns the sorted names of all known networks.
func (m *Model) NetworkNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.networks))
	for n := range m.networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Model) listNames(ctx context.Context, exec transport.Executor, args ...string) ([]string, error) {
	res, err := exec.Execute(ctx, m.host, transport.Command("virsh", args...))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(res.Output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Update fetches all domain and network definitions from the host. It
// reports whether anything changed. Definitions that cannot be fetched keep
// their previous state.
func (m *Model) Update(ctx context.Context, exec transport.Executor) (bool, error) {
	logger := log.WithField("host", m.host)

	names, err := m.listNames(ctx, exec, "list", "--all", "--name")
	if err != nil {
		return false, fmt.Errorf("could not list domains: %w", err)
	}
	changed := false
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
		res, err := exec.Execute(ctx, m.host, transport.Command("virsh", "dumpxml", name))
		if err != nil {
			logger.WithField("domain", name).Warnf("Could not fetch domain: %v", err)
			continue
		}
		if m.SetDomain(name, res.Output) {
			changed = true
		}
	}
	for _, name := range m.DomainNames() {
		if !seen[name] && m.RemoveDomain(name) {
			changed = true
		}
	}

	nets, err := m.listNames(ctx, exec, "net-list", "--all", "--name")
	if err != nil {
		return changed, fmt.Errorf("could not list networks: %w", err)
	}
	autostart := make(map[string]bool)
	if auto, err := m.listNames(ctx, exec, "net-list", "--autostart", "--name"); err != nil {
		logger.Warnf("Could not list autostarted networks: %v", err)
	} else {
		for _, n := range auto {
			autostart[n] = true
		}
	}
	seen = make(map[string]bool, len(nets))
	for _, name := range nets {
		seen[name] = true
		res, err := exec.Execute(ctx, m.host, transport.Command("virsh", "net-dumpxml", name))
		if err != nil {
			logger.WithField("network", name).Warnf("Could not fetch network: %v", err)
			continue
		}
		if m.SetNetwork(name, res.Output, autostart[name]) {
			changed = true
		}
	}
	for _, name := range m.NetworkNames() {
		if !seen[name] {
			m.removeNetwork(name)
			changed = true
		}
	}
	return changed, nil
}
