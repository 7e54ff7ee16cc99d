package drbd

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport"
)

// Manager owns the DRBD schema and topology of a cluster. Both are replaced
// as a whole on every parse, readers never see a partial update.
type Manager struct {
	schema   atomic.Pointer[Schema]
	topology atomic.Pointer[Topology]

	// unknownSections stays set once any parse reported an unknown section.
	unknownSections atomic.Bool
	advancedMode    atomic.Bool
}

// NewManager returns a Manager with an empty schema and topology.
func NewManager() *Manager {
	m := &Manager{}
	m.schema.Store(ParseSchema("", SchemaContext{}))
	m.topology.Store(NewTopology())
	return m
}

func (m *Manager) Schema() *Schema { return m.schema.Load() }

func (m *Manager) Topology() *Topology { return m.topology.Load() }

// SetSchema publishes a schema. Configs parsed afterwards are checked
// against it.
func (m *Manager) SetSchema(s *Schema) { m.schema.Store(s) }

// UpdateConfig parses a dump-xml document and publishes the result. On error
// the previous topology stays in place.
func (m *Manager) UpdateConfig(xml string) (ParseReport, error) {
	t, report, err := ParseConfig(xml, m.Schema())
	if err != nil {
		return report, err
	}
	if len(report.UnknownSections) > 0 && !m.unknownSections.Swap(true) {
		log.WithField("sections", strings.Join(report.UnknownSections, ",")).
			Warn("DRBD config contains unknown sections, config generation disabled")
	}
	m.topology.Store(t)
	return report, nil
}

// RemoveResource publishes a topology without res.
func (m *Manager) RemoveResource(res string) {
	for {
		old := m.topology.Load()
		if m.topology.CompareAndSwap(old, old.Remove(res)) {
			return
		}
	}
}

func (m *Manager) SetAdvancedMode(on bool) { m.advancedMode.Store(on) }

func (m *Manager) AdvancedMode() bool { return m.advancedMode.Load() }

// HasUnknownSections reports whether any config parsed by this Manager
// contained sections it does not understand.
func (m *Manager) HasUnknownSections() bool { return m.unknownSections.Load() }

// IsDrbdDisabled reports whether the DRBD config must not be regenerated,
// because that would drop sections only the user understands.
func (m *Manager) IsDrbdDisabled() bool {
	return m.HasUnknownSections() && !m.AdvancedMode()
}

// FetchSchema runs "drbdsetup xml-help" for all known commands on h and
// publishes the resulting schema.
func (m *Manager) FetchSchema(ctx context.Context, exec transport.Executor, h string, sctx SchemaContext) error {
	var blob strings.Builder
	for _, cs := range commandSections {
		if cs.section == "" {
			continue
		}
		res, err := exec.Execute(ctx, h, transport.Command("drbdsetup", "xml-help", cs.command))
		if err != nil {
			// older drbdsetup versions do not know all commands
			log.WithFields(log.Fields{
				"host":    h,
				"command": cs.command,
			}).Debugf("No xml-help: %v", err)
			continue
		}
		blob.WriteString(res.Output)
		blob.WriteByte('\n')
	}
	if blob.Len() == 0 {
		return fmt.Errorf("no drbdsetup command on %s returned xml-help", h)
	}
	m.SetSchema(ParseSchema(blob.String(), sctx))
	return nil
}

// FetchConfig runs "drbdadm dump-xml" on h and publishes the topology.
func (m *Manager) FetchConfig(ctx context.Context, exec transport.Executor, h string) (ParseReport, error) {
	res, err := exec.Execute(ctx, h, transport.Command("drbdadm", "-d", "dump-xml"))
	if err != nil {
		return ParseReport{}, fmt.Errorf("failed to dump drbd config on %s: %w", h, err)
	}
	return m.UpdateConfig(res.Output)
}

// EventsCommand is the command streaming live DRBD state.
func EventsCommand(h *host.Host) string {
	if h.DrbdVersionAtLeast("8.4") {
		return transport.Command("drbdsetup", "events", "all")
	}
	return transport.Command("drbdsetup", "/dev/drbd0", "events", "-a", "-u")
}

// StartEvents starts the events stream of h unless it is already running.
// Lines are applied in arrival order; onChange is called for lines that
// changed state.
func (m *Manager) StartEvents(ctx context.Context, exec transport.Executor, h *host.Host, onChange func()) (bool, error) {
	cmd := EventsCommand(h)
	return h.StartDrbdEvents(func() (*transport.Handle, error) {
		return exec.ExecuteStreaming(ctx, h.Name(), cmd, func(line string) {
			if m.ParseDrbdEvent(h, line) && onChange != nil {
				onChange()
			}
		})
	})
}
