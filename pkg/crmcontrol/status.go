package crmcontrol

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	xmltree "github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// RunMode selects between the live cluster and a policy engine dry-run.
type RunMode int

const (
	Live RunMode = iota
	Test
)

func (m RunMode) String() string {
	if m == Test {
		return "test"
	}
	return "live"
}

// Status framing
const (
	frameStart   = "---start---"
	frameDone    = "---done---"
	blockEnd     = ">>>"
	resultOK     = "ok"
	resultFail   = "fail"
	resultNone   = "None"
	cmdResStatus = "res_status"
	cmdCibadmin  = "cibadmin"
	cmdFenced    = "fenced_nodes"
)

// StatusCommand prints one status frame on a cluster node. The resource
// status block carries "crm_mon --as-xml" output.
const StatusCommand = `echo '` + frameStart + `'
echo ` + cmdResStatus + `; if o=$(crm_mon --as-xml 2>/dev/null); then echo ok; printf '%s\n' "$o"; else echo fail; fi; echo '` + blockEnd + cmdResStatus + `'
echo ` + cmdCibadmin + `; if o=$(cibadmin --query 2>/dev/null); then echo ok; printf '%s\n' "$o"; else echo fail; fi; echo '` + blockEnd + cmdCibadmin + `'
echo ` + cmdFenced + `; echo None; echo '` + blockEnd + cmdFenced + `'
echo '` + frameDone + `'`

// ResourceStatus is the state of a resource as reported by the cluster
// resource manager.
type ResourceStatus struct {
	Running []string `json:"running,omitempty"`
	Master  []string `json:"master,omitempty"`
	Slave   []string `json:"slave,omitempty"`
	Managed bool     `json:"managed"`
}

// PtestData is the outcome of a policy engine dry-run.
type PtestData struct {
	// ShadowCib is the CIB the policy engine computed.
	ShadowCib string
}

// ptestCommand runs a dry-run against the live CIB and prints the resulting
// CIB.
const ptestCommand = `f=$(mktemp) && crm_simulate --live-check --simulate --quiet --save-output "$f" >/dev/null && cat "$f"; rc=$?; rm -f "$f"; exit $rc`

// FetchPtest runs the policy engine on host.
func FetchPtest(ctx context.Context, exec transport.Executor, host string) (*PtestData, error) {
	res, err := exec.Execute(ctx, host, ptestCommand)
	if err != nil {
		return nil, fmt.Errorf("failed to run crm_simulate on %s: %w", host, err)
	}
	return &PtestData{ShadowCib: res.Output}, nil
}

type resourceStatusMap map[string]ResourceStatus

// ClusterStatus is the status of one cluster. Snapshots are replaced as a
// whole, readers never see a partially parsed state.
type ClusterStatus struct {
	cib       atomic.Pointer[CibQuery]
	shadow    atomic.Pointer[CibQuery]
	resStatus atomic.Pointer[resourceStatusMap]
	ptest     atomic.Pointer[PtestData]
	advanced  atomic.Bool

	// mu serializes parsing and guards the caches below.
	mu            sync.Mutex
	oldResStatus  string
	oldCib        string
	oldAdvanced   bool
	cibParsedOnce bool
}

// NewClusterStatus returns a status with empty snapshots.
func NewClusterStatus() *ClusterStatus {
	s := &ClusterStatus{}
	s.cib.Store(NewCibQuery())
	s.shadow.Store(NewCibQuery())
	s.resStatus.Store(&resourceStatusMap{})
	return s
}

// SetAdvancedMode controls whether orphaned resources are kept. It applies
// from the next CIB payload on.
func (s *ClusterStatus) SetAdvancedMode(advanced bool) { s.advanced.Store(advanced) }

// CibQuery returns the live snapshot.
func (s *ClusterStatus) CibQuery() *CibQuery { return s.cib.Load() }

// ShadowCibQuery returns the dry-run snapshot.
func (s *ClusterStatus) ShadowCibQuery() *CibQuery { return s.shadow.Load() }

type statusBlock struct {
	command string
	result  string
	payload []string
}

// ParseStatus parses one or more status frames and reports whether any
// snapshot was rebuilt.
func (s *ClusterStatus) ParseStatus(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	var block *statusBlock
	inFrame := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == frameStart:
			inFrame = true
			block = nil
		case line == frameDone:
			if block != nil {
				log.WithField("command", block.command).Warn("Status frame ended inside a block")
			}
			inFrame = false
			block = nil
		case !inFrame:
			log.WithField("line", line).Warn("Status line outside of a frame, dropped")
		case block == nil:
			if line == "" {
				continue
			}
			block = &statusBlock{command: line}
		case block.result == "" && line == blockEnd+block.command:
			log.WithField("command", block.command).Warn("Status block without result marker, dropped")
			block = nil
		case block.result == "":
			switch line {
			case resultOK, resultFail, resultNone:
				block.result = line
			default:
				log.WithFields(log.Fields{
					"command": block.command,
					"line":    line,
				}).Warn("Status payload before result marker, dropped")
			}
		case line == blockEnd+block.command:
			if s.applyBlock(block) {
				changed = true
			}
			block = nil
		default:
			block.payload = append(block.payload, line)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("Could not read status: %v", err)
	}
	return changed
}

func (s *ClusterStatus) applyBlock(b *statusBlock) bool {
	if b.result != resultOK {
		log.WithFields(log.Fields{
			"command": b.command,
			"result":  b.result,
		}).Debug("Discarding status block")
		return false
	}
	payload := strings.Join(b.payload, "\n")

	switch b.command {
	case cmdResStatus:
		if payload == s.oldResStatus {
			return false
		}
		s.oldResStatus = payload
		m := parseResourceStatus(payload)
		s.resStatus.Store(&m)
		return true
	case cmdCibadmin:
		advanced := s.advanced.Load()
		if s.cibParsedOnce && payload == s.oldCib && advanced == s.oldAdvanced {
			return false
		}
		s.oldCib = payload
		s.oldAdvanced = advanced
		s.cibParsedOnce = true
		s.cib.Store(parseCibQuery(payload, advanced))
		return true
	case cmdFenced:
		log.Debug("Fenced nodes acknowledged")
		return false
	}
	log.WithField("command", b.command).Warn("Unknown status command")
	return false
}

// parseResourceStatus understands the helper's <resource_status> document
// as well as "crm_mon --as-xml".
func parseResourceStatus(text string) resourceStatusMap {
	m := resourceStatusMap{}
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(xmlDeclRe.ReplaceAllString(text, "")); err != nil {
		log.Warnf("Could not parse resource status: %v", err)
		return m
	}
	root := doc.Root()
	if root == nil {
		return m
	}

	switch root.Tag {
	case "resource_status":
		for _, r := range root.SelectElements("resource") {
			id := r.SelectAttrValue("id", "")
			st := ResourceStatus{Managed: r.SelectAttrValue("managed", "managed") != "unmanaged" &&
				r.SelectAttrValue("managed", "true") != "false"}
			for _, h := range r.SelectElements("host") {
				name := strings.TrimSpace(h.Text())
				st.Running = appendUnique(st.Running, name)
				switch h.SelectAttrValue("role", "") {
				case "master":
					st.Master = appendUnique(st.Master, name)
				case "slave":
					st.Slave = appendUnique(st.Slave, name)
				}
			}
			m[id] = st
		}
	case "crm_mon":
		if rscs := root.SelectElement(cibTagResources); rscs != nil {
			for _, r := range rscs.FindElements(".//resource") {
				addCrmMonResource(m, r)
			}
		}
	default:
		log.WithField("root", root.Tag).Warn("Unknown resource status document")
	}

	for id, st := range m {
		sort.Strings(st.Running)
		sort.Strings(st.Master)
		sort.Strings(st.Slave)
		m[id] = st
	}
	return m
}

func addCrmMonResource(m resourceStatusMap, r *xmltree.Element) {
	id := baseResourceID(r.SelectAttrValue("id", ""))
	st, ok := m[id]
	if !ok {
		st.Managed = true
	}
	if r.SelectAttrValue("managed", "true") == "false" {
		st.Managed = false
	}
	role := r.SelectAttrValue("role", "")
	for _, n := range r.SelectElements("node") {
		name := n.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		st.Running = appendUnique(st.Running, name)
		switch role {
		case "Master", "Promoted":
			st.Master = appendUnique(st.Master, name)
		case "Slave", "Unpromoted":
			st.Slave = appendUnique(st.Slave, name)
		}
	}
	m[id] = st
}

// SetPtestData installs the result of a dry-run, or drops it if data is
// nil.
func (s *ClusterStatus) SetPtestData(data *PtestData) {
	if data == nil {
		s.ptest.Store(nil)
		s.shadow.Store(NewCibQuery())
		return
	}
	s.shadow.Store(parseCibQuery(data.ShadowCib, true))
	s.ptest.Store(data)
}

// PtestData returns the current dry-run data, if any.
func (s *ClusterStatus) PtestData() *PtestData { return s.ptest.Load() }

func (s *ClusterStatus) query(mode RunMode) *CibQuery {
	if mode == Test && s.ptest.Load() != nil {
		return s.shadow.Load()
	}
	return s.cib.Load()
}

func (s *ClusterStatus) Parameters(rsc string, mode RunMode) map[string]string {
	return s.query(mode).Parameters(rsc)
}

func (s *ClusterStatus) ParameterNvpairID(rsc, param string, mode RunMode) string {
	return s.query(mode).ParameterNvpairID(rsc, param)
}

func (s *ClusterStatus) Location(rsc, host string, mode RunMode) *HostLocation {
	return s.query(mode).Location(rsc, host)
}

func (s *ClusterStatus) LocationID(rsc, host string, mode RunMode) string {
	return s.query(mode).LocationID(rsc, host)
}

func (s *ClusterStatus) LocationIDs(rsc string, mode RunMode) []string {
	return s.query(mode).LocationIDs(rsc)
}

func (s *ClusterStatus) PingLocation(rsc string, mode RunMode) *HostLocation {
	return s.query(mode).PingLocation(rsc)
}

func (s *ClusterStatus) NodeParameter(node, param string, mode RunMode) string {
	return s.query(mode).NodeParameter(node, param)
}

func (s *ClusterStatus) PingCount(node string, mode RunMode) string {
	return s.query(mode).PingCount(node)
}

func (s *ClusterStatus) GroupMembers(group string, mode RunMode) []string {
	return s.query(mode).GroupMembers(group)
}

// FailCount always reads the live snapshot.
func (s *ClusterStatus) FailCount(node, rsc string) string {
	return s.cib.Load().FailCount(node, rsc)
}

// ResourceStatus returns the state of rsc. In test mode the dry-run
// placement wins where it knows the resource.
func (s *ClusterStatus) ResourceStatus(rsc string, mode RunMode) (ResourceStatus, bool) {
	live, ok := (*s.resStatus.Load())[rsc]
	if mode != Test || s.ptest.Load() == nil {
		return live, ok
	}
	p, found := s.shadow.Load().Placement(rsc)
	if !found {
		return live, ok
	}
	managed := true
	if ok {
		managed = live.Managed
	}
	return ResourceStatus{Running: p.Running, Master: p.Master, Slave: p.Slave, Managed: managed}, true
}

func (s *ClusterStatus) RunningOn(rsc string, mode RunMode) []string {
	st, _ := s.ResourceStatus(rsc, mode)
	return st.Running
}

func (s *ClusterStatus) MasterOn(rsc string, mode RunMode) []string {
	st, _ := s.ResourceStatus(rsc, mode)
	return st.Master
}

func (s *ClusterStatus) SlaveOn(rsc string, mode RunMode) []string {
	st, _ := s.ResourceStatus(rsc, mode)
	return st.Slave
}

// IsManaged reports false only for resources known to be unmanaged.
func (s *ClusterStatus) IsManaged(rsc string, mode RunMode) bool {
	st, ok := s.ResourceStatus(rsc, mode)
	return !ok || st.Managed
}

// IsRunning reports whether rsc runs anywhere.
func (s *ClusterStatus) IsRunning(rsc string, mode RunMode) bool {
	return len(s.RunningOn(rsc, mode)) > 0
}

func (s *ClusterStatus) GlobalConfig() map[string]string { return s.cib.Load().GlobalConfig() }

func (s *ClusterStatus) Colocation(id string) (Colocation, bool) { return s.cib.Load().Colocation(id) }

func (s *ClusterStatus) ColocationIDs(rsc string) []string { return s.cib.Load().ColocationIDs(rsc) }

func (s *ClusterStatus) Order(id string) (Order, bool) { return s.cib.Load().Order(id) }

func (s *ClusterStatus) OrderIDs(rsc string) []string { return s.cib.Load().OrderIDs(rsc) }

func (s *ClusterStatus) ResourceSets(id string) []ResourceSet { return s.cib.Load().ResourceSets(id) }

func (s *ClusterStatus) Connections() []Connection { return s.cib.Load().Connections() }

func (s *ClusterStatus) Nodes() []string { return s.cib.Load().Nodes() }

func (s *ClusterStatus) IsOnline(node string) bool { return s.cib.Load().IsOnline(node) }

func (s *ClusterStatus) IsPending(node string) bool { return s.cib.Load().IsPending(node) }

func (s *ClusterStatus) IsFenced(node string) bool { return s.cib.Load().IsFenced(node) }

func (s *ClusterStatus) DC() string { return s.cib.Load().DC() }

func (s *ClusterStatus) CloneResource(clone string) (string, bool) {
	return s.cib.Load().CloneResource(clone)
}

func (s *ClusterStatus) IsMaster(id string) bool { return s.cib.Load().IsMaster(id) }

func (s *ClusterStatus) ResourceAgent(rsc string) (ResourceAgentID, bool) {
	return s.cib.Load().ResourceAgent(rsc)
}
