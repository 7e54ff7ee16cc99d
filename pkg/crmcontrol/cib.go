package crmcontrol

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	xmltree "github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

// GroupNone is the pseudo group holding all top-level resources.
const GroupNone = "none"

// Infinity is the CIB spelling of an infinite score or fail count.
const Infinity = "INFINITY"

// Colocation is an rsc_colocation constraint between two resources.
type Colocation struct {
	ID          string `json:"id"`
	Rsc         string `json:"rsc"`
	WithRsc     string `json:"with_rsc"`
	Score       string `json:"score"`
	RscRole     string `json:"rsc_role,omitempty"`
	WithRscRole string `json:"with_rsc_role,omitempty"`
}

// Order is an rsc_order constraint between two resources.
type Order struct {
	ID          string `json:"id"`
	First       string `json:"first"`
	Then        string `json:"then"`
	Score       string `json:"score,omitempty"`
	Kind        string `json:"kind,omitempty"`
	FirstAction string `json:"first_action,omitempty"`
	ThenAction  string `json:"then_action,omitempty"`
	Symmetrical string `json:"symmetrical,omitempty"`
}

// ResourceSet is a resource_set of a colocation or order constraint.
type ResourceSet struct {
	ID         string   `json:"id"`
	Resources  []string `json:"resources"`
	Sequential string   `json:"sequential,omitempty"`
	RequireAll string   `json:"require_all,omitempty"`
	Role       string   `json:"role,omitempty"`
	Action     string   `json:"action,omitempty"`
}

// ConnectionKind tells colocations from orders.
type ConnectionKind string

const (
	ConnectionColocation ConnectionKind = "colocation"
	ConnectionOrder      ConnectionKind = "order"
)

// Connection is one edge of the constraint graph. Resource sets contribute
// one edge per resource pair of adjacent sets.
type Connection struct {
	ConstraintID string         `json:"constraint_id"`
	Kind         ConnectionKind `json:"kind"`
	Rsc1         string         `json:"rsc1"`
	Rsc2         string         `json:"rsc2"`
}

// Placement is where the LRM history says a resource runs.
type Placement struct {
	Running []string `json:"running,omitempty"`
	Master  []string `json:"master,omitempty"`
	Slave   []string `json:"slave,omitempty"`
}

// CibQuery is an immutable snapshot of a parsed CIB. All reverse indexes are
// built in the same parse as their forward maps.
type CibQuery struct {
	globalConfig map[string]string
	rscDefaults  map[string]string
	opDefaults   map[string]string

	parameters        map[string]map[string]string
	parametersNvpairs map[string]map[string]string
	metaAttrs         map[string]map[string]string
	metaAttrsIDs      map[string]string
	operations        map[string]map[string]map[string]string
	resourceAgents    map[string]ResourceAgentID

	groups   map[string][]string
	clones   map[string]string
	masters  map[string]bool
	orphaned map[string]bool

	colocations   map[string]Colocation
	colocationRsc map[string][]string
	orders        map[string]Order
	orderRsc      map[string][]string
	resourceSets  map[string][]ResourceSet
	connections   []Connection

	locations      map[string]map[string]*HostLocation
	pingLocations  map[string]*HostLocation
	locationIDs    map[string][]string
	locationHostID map[string]map[string]string

	nodeOnline  map[string]bool
	nodePending map[string]bool
	nodeFenced  map[string]bool
	nodeParams  map[string]map[string]string
	nodeIDs     map[string]string
	nodeUnames  map[string]string

	failCounts map[string]map[string]string
	pingCounts map[string]string
	placement  map[string]*Placement

	dc string
}

// NewCibQuery returns an empty snapshot.
func NewCibQuery() *CibQuery {
	return &CibQuery{
		globalConfig:      make(map[string]string),
		rscDefaults:       make(map[string]string),
		opDefaults:        make(map[string]string),
		parameters:        make(map[string]map[string]string),
		parametersNvpairs: make(map[string]map[string]string),
		metaAttrs:         make(map[string]map[string]string),
		metaAttrsIDs:      make(map[string]string),
		operations:        make(map[string]map[string]map[string]string),
		resourceAgents:    make(map[string]ResourceAgentID),
		groups:            make(map[string][]string),
		clones:            make(map[string]string),
		masters:           make(map[string]bool),
		orphaned:          make(map[string]bool),
		colocations:       make(map[string]Colocation),
		colocationRsc:     make(map[string][]string),
		orders:            make(map[string]Order),
		orderRsc:          make(map[string][]string),
		resourceSets:      make(map[string][]ResourceSet),
		locations:         make(map[string]map[string]*HostLocation),
		pingLocations:     make(map[string]*HostLocation),
		locationIDs:       make(map[string][]string),
		locationHostID:    make(map[string]map[string]string),
		nodeOnline:        make(map[string]bool),
		nodePending:       make(map[string]bool),
		nodeFenced:        make(map[string]bool),
		nodeParams:        make(map[string]map[string]string),
		nodeIDs:           make(map[string]string),
		nodeUnames:        make(map[string]string),
		failCounts:        make(map[string]map[string]string),
		pingCounts:        make(map[string]string),
		placement:         make(map[string]*Placement),
	}
}

var xmlDeclRe = regexp.MustCompile(`<\?xml[^>]*\?>`)

// ParseCibQuery parses "cibadmin --query" output. Input that cannot be
// parsed yields an empty snapshot.
func ParseCibQuery(text string) *CibQuery {
	return parseCibQuery(text, true)
}

// parseCibQuery parses a CIB. Outside of advanced mode, LRM history of
// resources no longer in the configuration is dropped.
func parseCibQuery(text string, advanced bool) *CibQuery {
	q := NewCibQuery()

	// the helper may print more than one document, so wrap them
	text = "<pcmk>" + xmlDeclRe.ReplaceAllString(text, "") + "</pcmk>"
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		log.Warnf("Could not parse CIB: %v", err)
		return q
	}
	cib := doc.FindElement("//" + cibTagCib)
	if cib == nil {
		log.Warn("No <cib> element in CIB query output")
		return q
	}

	if conf := cib.SelectElement(cibTagConfiguration); conf != nil {
		if e := conf.SelectElement("crm_config"); e != nil {
			for _, set := range e.SelectElements("cluster_property_set") {
				nvpairs(set, q.globalConfig, nil)
			}
		}
		if e := conf.SelectElement("rsc_defaults"); e != nil {
			for _, set := range e.SelectElements(cibTagMetaAttr) {
				nvpairs(set, q.rscDefaults, nil)
			}
		}
		if e := conf.SelectElement("op_defaults"); e != nil {
			for _, set := range e.SelectElements(cibTagMetaAttr) {
				nvpairs(set, q.opDefaults, nil)
			}
		}
		if e := conf.SelectElement("nodes"); e != nil {
			q.parseNodes(e)
		}
		if e := conf.SelectElement(cibTagResources); e != nil {
			q.parseResources(e, GroupNone, 0)
		}
		if e := conf.SelectElement(cibTagConstraints); e != nil {
			q.parseConstraints(e)
		}
	}
	if status := cib.SelectElement(cibTagStatus); status != nil {
		q.parseStatus(status, advanced)
	}

	if dcUUID := cib.SelectAttrValue("dc-uuid", ""); dcUUID != "" {
		if uname, ok := q.nodeUnames[dcUUID]; ok {
			q.dc = uname
		} else {
			q.dc = dcUUID
		}
	}
	return q
}

// nvpairs copies name/value pairs below set into values and, if ids is not
// nil, the nvpair ids into ids.
func nvpairs(set *xmltree.Element, values, ids map[string]string) {
	for _, nv := range set.SelectElements(cibTagNvPair) {
		name := nv.SelectAttrValue(cibAttrKeyName, "")
		if name == "" {
			continue
		}
		values[name] = nv.SelectAttrValue(cibAttrKeyValue, "")
		if ids != nil {
			ids[name] = nv.SelectAttrValue(cibAttrKeyID, "")
		}
	}
}

func (q *CibQuery) parseNodes(nodes *xmltree.Element) {
	for _, n := range nodes.SelectElements("node") {
		id := n.SelectAttrValue(cibAttrKeyID, "")
		uname := n.SelectAttrValue("uname", "")
		if uname == "" {
			continue
		}
		q.nodeIDs[uname] = id
		q.nodeUnames[id] = uname
		params := make(map[string]string)
		for _, set := range n.SelectElements(cibTagInstAttr) {
			nvpairs(set, params, nil)
		}
		q.nodeParams[uname] = params
	}
}

func (q *CibQuery) parseResourceAttrs(el *xmltree.Element, id string) {
	params := make(map[string]string)
	ids := make(map[string]string)
	for _, set := range el.SelectElements(cibTagInstAttr) {
		nvpairs(set, params, ids)
	}
	q.parameters[id] = params
	q.parametersNvpairs[id] = ids

	meta := make(map[string]string)
	for _, set := range el.SelectElements(cibTagMetaAttr) {
		if q.metaAttrsIDs[id] == "" {
			q.metaAttrsIDs[id] = set.SelectAttrValue(cibAttrKeyID, "")
		}
		nvpairs(set, meta, nil)
	}
	q.metaAttrs[id] = meta
}

func (q *CibQuery) parsePrimitive(el *xmltree.Element, id string) {
	q.resourceAgents[id] = ResourceAgentID{
		Class:    el.SelectAttrValue("class", ""),
		Provider: el.SelectAttrValue("provider", ""),
		Type:     el.SelectAttrValue("type", ""),
	}
	q.parseResourceAttrs(el, id)

	ops := make(map[string]map[string]string)
	if o := el.SelectElement("operations"); o != nil {
		for _, op := range o.SelectElements("op") {
			name := op.SelectAttrValue(cibAttrKeyName, "")
			if name == "" {
				continue
			}
			if _, ok := ops[name]; ok {
				// second monitor of a promotable resource
				continue
			}
			attrs := make(map[string]string)
			for _, a := range op.Attr {
				if a.Key == cibAttrKeyID || a.Key == cibAttrKeyName {
					continue
				}
				attrs[a.Key] = a.Value
			}
			ops[name] = attrs
		}
	}
	q.operations[id] = ops
}

// parseResources walks primitives, groups and clones below el, adding
// direct children to group.
func (q *CibQuery) parseResources(el *xmltree.Element, group string, depth int) {
	if depth > maxRecursionLevel {
		log.Warn(errMaxRecursion)
		return
	}
	for _, c := range el.ChildElements() {
		id := c.SelectAttrValue(cibAttrKeyID, "")
		if id == "" {
			log.WithField("tag", c.Tag).Warn("Resource without id")
			continue
		}
		switch c.Tag {
		case cibTagPrimitive:
			q.parsePrimitive(c, id)
		case cibTagGroup:
			q.parseResourceAttrs(c, id)
			q.groups[id] = []string{}
			q.parseResources(c, id, depth+1)
		case cibTagClone, cibTagMaster:
			q.parseResourceAttrs(c, id)
			if c.Tag == cibTagMaster || isTrue(q.metaAttrs[id]["promotable"]) {
				q.masters[id] = true
			}
			children := c.ChildElements()
			for _, cc := range children {
				if cc.Tag == cibTagPrimitive || cc.Tag == cibTagGroup {
					q.clones[id] = cc.SelectAttrValue(cibAttrKeyID, "")
				}
			}
			q.parseResources(c, id, depth+1)
		case cibTagMetaAttr, cibTagInstAttr, "operations", "utilization":
			continue
		default:
			log.WithFields(log.Fields{"tag": c.Tag, "id": id}).Warn("Unknown element in resources")
			continue
		}
		if _, isClone := q.clones[group]; isClone {
			continue
		}
		q.groups[group] = append(q.groups[group], id)
	}
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}

func (q *CibQuery) addConnection(kind ConnectionKind, id, rsc1, rsc2 string) {
	q.connections = append(q.connections, Connection{ConstraintID: id, Kind: kind, Rsc1: rsc1, Rsc2: rsc2})
}

func parseResourceSets(el *xmltree.Element) []ResourceSet {
	var sets []ResourceSet
	for _, s := range el.SelectElements(cibTagRscSet) {
		set := ResourceSet{
			ID:         s.SelectAttrValue(cibAttrKeyID, ""),
			Sequential: s.SelectAttrValue("sequential", ""),
			RequireAll: s.SelectAttrValue("require-all", ""),
			Role:       s.SelectAttrValue("role", ""),
			Action:     s.SelectAttrValue("action", ""),
		}
		for _, ref := range s.SelectElements(cibTagRscRef) {
			set.Resources = append(set.Resources, ref.SelectAttrValue(cibAttrKeyID, ""))
		}
		sets = append(sets, set)
	}
	return sets
}

// setConnections connects every resource of a set with every resource of
// the following set.
func (q *CibQuery) setConnections(kind ConnectionKind, id string, sets []ResourceSet, index map[string][]string) {
	for _, s := range sets {
		for _, r := range s.Resources {
			index[r] = appendUnique(index[r], id)
		}
	}
	for i := 0; i+1 < len(sets); i++ {
		for _, a := range sets[i].Resources {
			for _, b := range sets[i+1].Resources {
				q.addConnection(kind, id, a, b)
			}
		}
	}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func (q *CibQuery) parseConstraints(el *xmltree.Element) {
	for _, c := range el.ChildElements() {
		id := c.SelectAttrValue(cibAttrKeyID, "")
		switch c.Tag {
		case cibTagColocation:
			if sets := parseResourceSets(c); len(sets) > 0 {
				q.resourceSets[id] = sets
				q.setConnections(ConnectionColocation, id, sets, q.colocationRsc)
				continue
			}
			col := Colocation{
				ID:          id,
				Rsc:         c.SelectAttrValue("rsc", ""),
				WithRsc:     c.SelectAttrValue("with-rsc", ""),
				Score:       c.SelectAttrValue("score", ""),
				RscRole:     c.SelectAttrValue("rsc-role", ""),
				WithRscRole: c.SelectAttrValue("with-rsc-role", ""),
			}
			q.colocations[id] = col
			q.colocationRsc[col.Rsc] = appendUnique(q.colocationRsc[col.Rsc], id)
			q.colocationRsc[col.WithRsc] = appendUnique(q.colocationRsc[col.WithRsc], id)
			q.addConnection(ConnectionColocation, id, col.Rsc, col.WithRsc)
		case cibTagOrder:
			if sets := parseResourceSets(c); len(sets) > 0 {
				q.resourceSets[id] = sets
				q.setConnections(ConnectionOrder, id, sets, q.orderRsc)
				continue
			}
			ord := Order{
				ID:          id,
				First:       c.SelectAttrValue("first", ""),
				Then:        c.SelectAttrValue("then", ""),
				Score:       c.SelectAttrValue("score", ""),
				Kind:        c.SelectAttrValue("kind", ""),
				FirstAction: c.SelectAttrValue("first-action", ""),
				ThenAction:  c.SelectAttrValue("then-action", ""),
				Symmetrical: c.SelectAttrValue("symmetrical", ""),
			}
			q.orders[id] = ord
			q.orderRsc[ord.First] = appendUnique(q.orderRsc[ord.First], id)
			q.orderRsc[ord.Then] = appendUnique(q.orderRsc[ord.Then], id)
			q.addConnection(ConnectionOrder, id, ord.First, ord.Then)
		case cibTagLocation:
			q.parseLocation(c, id)
		case "rsc_ticket":
			log.WithField("id", id).Debug("Ignoring ticket constraint")
		default:
			log.WithFields(log.Fields{"tag": c.Tag, "id": id}).Warn("Unknown element in constraints")
		}
	}
}

func (q *CibQuery) setLocation(rsc, host, id string, loc *HostLocation) {
	if q.locations[rsc] == nil {
		q.locations[rsc] = make(map[string]*HostLocation)
		q.locationHostID[rsc] = make(map[string]string)
	}
	q.locations[rsc][host] = loc
	q.locationHostID[rsc][host] = id
}

func (q *CibQuery) parseLocation(c *xmltree.Element, id string) {
	rscs := []string{}
	if rsc := c.SelectAttrValue("rsc", ""); rsc != "" {
		rscs = append(rscs, rsc)
	}
	for _, s := range parseResourceSets(c) {
		rscs = append(rscs, s.Resources...)
	}
	if len(rscs) == 0 {
		log.WithField("id", id).Warn("Location constraint without resource")
		return
	}
	for _, rsc := range rscs {
		q.locationIDs[rsc] = appendUnique(q.locationIDs[rsc], id)
	}

	role := c.SelectAttrValue("role", "")
	if node := c.SelectAttrValue("node", ""); node != "" {
		loc := &HostLocation{Score: c.SelectAttrValue("score", ""), Role: role}
		for _, rsc := range rscs {
			q.setLocation(rsc, node, id, loc)
		}
		return
	}

	for _, rule := range c.SelectElements("rule") {
		score := rule.SelectAttrValue("score", "")
		ruleRole := rule.SelectAttrValue("role", role)
		for _, expr := range rule.SelectElements("expression") {
			op := expr.SelectAttrValue(cibAttrKeyOperation, "")
			switch expr.SelectAttrValue("attribute", "") {
			case "#uname":
				value := expr.SelectAttrValue(cibAttrKeyValue, "")
				loc := &HostLocation{Score: score, Op: op, Role: ruleRole}
				for _, rsc := range rscs {
					q.setLocation(rsc, value, id, loc)
				}
			case pingAttribute:
				loc := &HostLocation{Score: score, Op: op, Role: ruleRole}
				for _, rsc := range rscs {
					q.pingLocations[rsc] = loc
				}
			default:
				log.WithFields(log.Fields{
					"id":        id,
					"attribute": expr.SelectAttrValue("attribute", ""),
				}).Debug("Ignoring location rule expression")
			}
		}
	}
}

const (
	pingAttribute   = "pingd"
	failCountPrefix = "fail-count-"
)

// baseResourceID strips the instance number of clone instances ("rsc:1").
func baseResourceID(id string) string {
	if i := strings.LastIndexByte(id, ':'); i > 0 {
		if _, err := strconv.Atoi(id[i+1:]); err == nil {
			return id[:i]
		}
	}
	return id
}

func addFailCount(cur, add string) string {
	if cur == "" {
		return add
	}
	if cur == Infinity || add == Infinity {
		return Infinity
	}
	a, errA := strconv.Atoi(cur)
	b, errB := strconv.Atoi(add)
	if errA != nil || errB != nil {
		return cur
	}
	return strconv.Itoa(a + b)
}

func (q *CibQuery) parseStatus(status *xmltree.Element, advanced bool) {
	for _, ns := range status.SelectElements("node_state") {
		uname := ns.SelectAttrValue("uname", "")
		if uname == "" {
			uname = q.nodeUnames[ns.SelectAttrValue(cibAttrKeyID, "")]
		}
		if uname == "" {
			log.Warn("node_state without uname")
			continue
		}

		crmd := ns.SelectAttrValue("crmd", "")
		inCCM := isTrue(ns.SelectAttrValue("in_ccm", "")) || isTimestamp(ns.SelectAttrValue("in_ccm", ""))
		join := ns.SelectAttrValue("join", "")
		expected := ns.SelectAttrValue("expected", "")
		lrm := ns.SelectElement(cibTagLrm)
		seen := lrm != nil && lrm.FindElement(".//"+cibTagLrmRsc) != nil

		crmdOnline := crmd == "online" || crmd == "member" || isTimestamp(crmd)
		switch {
		case crmdOnline && inCCM && join == "member":
			q.nodeOnline[uname] = true
		case !inCCM && expected == "down" && join == "down" && !crmdOnline && seen:
			q.nodeFenced[uname] = true
		case inCCM && join != "member":
			q.nodePending[uname] = true
		}

		if ta := ns.SelectElement("transient_attributes"); ta != nil {
			for _, set := range ta.SelectElements(cibTagInstAttr) {
				for _, nv := range set.SelectElements(cibTagNvPair) {
					name := nv.SelectAttrValue(cibAttrKeyName, "")
					value := nv.SelectAttrValue(cibAttrKeyValue, "")
					switch {
					case name == pingAttribute:
						q.pingCounts[uname] = value
					case strings.HasPrefix(name, failCountPrefix):
						rsc := strings.TrimPrefix(name, failCountPrefix)
						if i := strings.IndexByte(rsc, '#'); i >= 0 {
							rsc = rsc[:i]
						}
						rsc = baseResourceID(rsc)
						if q.failCounts[uname] == nil {
							q.failCounts[uname] = make(map[string]string)
						}
						q.failCounts[uname][rsc] = addFailCount(q.failCounts[uname][rsc], value)
					}
				}
			}
		}

		if lrm != nil {
			q.parseLrm(uname, lrm, advanced)
		}
	}

	for _, p := range q.placement {
		sort.Strings(p.Running)
		sort.Strings(p.Master)
		sort.Strings(p.Slave)
	}
}

func isTimestamp(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0
}

func (q *CibQuery) isConfigured(id string) bool {
	_, ok := q.resourceAgents[id]
	return ok
}

// promotable reports whether primitive rsc runs in a promotable clone.
func (q *CibQuery) promotable(rsc string) bool {
	for clone, child := range q.clones {
		if !q.masters[clone] {
			continue
		}
		if child == rsc {
			return true
		}
		for _, m := range q.groups[child] {
			if m == rsc {
				return true
			}
		}
	}
	return false
}

func (q *CibQuery) parseLrm(node string, lrm *xmltree.Element, advanced bool) {
	for _, rscs := range lrm.SelectElements(cibTagLrmRsclist) {
		for _, lrmRsc := range rscs.SelectElements(cibTagLrmRsc) {
			id := baseResourceID(lrmRsc.SelectAttrValue(cibAttrKeyID, ""))
			if id == "" {
				continue
			}
			if !q.isConfigured(id) {
				q.orphaned[id] = true
				if !advanced {
					continue
				}
			}
			if runState(id, lrmRsc, Unknown) != Running {
				continue
			}
			p := q.placement[id]
			if p == nil {
				p = &Placement{}
				q.placement[id] = p
			}
			p.Running = appendUnique(p.Running, node)
			if !q.promotable(id) {
				continue
			}
			if isMaster(id, lrmRsc) {
				p.Master = appendUnique(p.Master, node)
			} else {
				p.Slave = appendUnique(p.Slave, node)
			}
		}
	}
}

// lrmRcCode returns the OCF return code of an lrm_rsc_op.
func lrmRcCode(op *xmltree.Element) (int, error) {
	raw := op.SelectAttrValue(cibAttrKeyRcCode, "")
	rc, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s operation has an invalid rc-code %q", op.SelectAttrValue(cibAttrKeyOperation, "unknown"), raw)
	}
	return rc, nil
}

// isMaster reports whether the LRM history shows rsc promoted: a monitor
// reporting "running master", or a successful promote not followed by a
// demote.
func isMaster(rsc string, lrmRsc *xmltree.Element) bool {
	promoted := false
	promoteCall, demoteCall := -1, -1
	for _, op := range lrmRsc.SelectElements(cibTagLrmRscOp) {
		rc, err := lrmRcCode(op)
		if err != nil {
			log.WithField("resource", rsc).Debug(err)
			continue
		}
		call, _ := strconv.Atoi(op.SelectAttrValue("call-id", "0"))
		switch op.SelectAttrValue(cibAttrKeyOperation, "") {
		case cibAttrValueMonitor:
			if rc == ocfRunningMaster {
				return true
			}
		case cibAttrValuePromote:
			if rc == ocfSuccess {
				promoted = true
				promoteCall = call
			}
		case cibAttrValueDemote:
			if rc == ocfSuccess {
				demoteCall = call
			}
		}
	}
	return promoted && promoteCall > demoteCall
}

// Accessors of the immutable snapshot. Maps and slices are copies.

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (q *CibQuery) GlobalConfig() map[string]string { return copyStrings(q.globalConfig) }

func (q *CibQuery) RscDefaults() map[string]string { return copyStrings(q.rscDefaults) }

func (q *CibQuery) OpDefaults() map[string]string { return copyStrings(q.opDefaults) }

// Resources returns all configured primitives, sorted.
func (q *CibQuery) Resources() []string { return sortedKeys(q.resourceAgents) }

// Parameters returns the instance attributes of rsc.
func (q *CibQuery) Parameters(rsc string) map[string]string { return copyStrings(q.parameters[rsc]) }

// ParameterNvpairID returns the nvpair id of an instance attribute.
func (q *CibQuery) ParameterNvpairID(rsc, param string) string {
	return q.parametersNvpairs[rsc][param]
}

func (q *CibQuery) MetaAttributes(rsc string) map[string]string { return copyStrings(q.metaAttrs[rsc]) }

func (q *CibQuery) MetaAttributesID(rsc string) string { return q.metaAttrsIDs[rsc] }

// Operation returns the attributes of operation op of rsc.
func (q *CibQuery) Operation(rsc, op string) map[string]string {
	return copyStrings(q.operations[rsc][op])
}

// Operations returns the configured operation names of rsc, sorted.
func (q *CibQuery) Operations(rsc string) []string { return sortedKeys(q.operations[rsc]) }

func (q *CibQuery) ResourceAgent(rsc string) (ResourceAgentID, bool) {
	ra, ok := q.resourceAgents[rsc]
	return ra, ok
}

// Groups returns all group ids, including GroupNone.
func (q *CibQuery) Groups() []string { return sortedKeys(q.groups) }

// GroupMembers returns the members of a group in configuration order.
func (q *CibQuery) GroupMembers(group string) []string {
	return append([]string(nil), q.groups[group]...)
}

// CloneResource returns the resource a clone or master/slave set wraps.
func (q *CibQuery) CloneResource(clone string) (string, bool) {
	r, ok := q.clones[clone]
	return r, ok
}

// IsMaster reports whether id is a master/slave set or promotable clone.
func (q *CibQuery) IsMaster(id string) bool { return q.masters[id] }

// IsOrphaned reports whether the LRM knows a resource the configuration
// does not.
func (q *CibQuery) IsOrphaned(rsc string) bool { return q.orphaned[rsc] }

func (q *CibQuery) Colocation(id string) (Colocation, bool) {
	c, ok := q.colocations[id]
	return c, ok
}

// ColocationIDs returns the colocation constraints referencing rsc.
func (q *CibQuery) ColocationIDs(rsc string) []string {
	return append([]string(nil), q.colocationRsc[rsc]...)
}

func (q *CibQuery) Order(id string) (Order, bool) {
	o, ok := q.orders[id]
	return o, ok
}

// OrderIDs returns the order constraints referencing rsc.
func (q *CibQuery) OrderIDs(rsc string) []string {
	return append([]string(nil), q.orderRsc[rsc]...)
}

func (q *CibQuery) ResourceSets(constraintID string) []ResourceSet {
	return append([]ResourceSet(nil), q.resourceSets[constraintID]...)
}

func (q *CibQuery) Connections() []Connection { return append([]Connection(nil), q.connections...) }

// Location returns the location score of rsc on host, or nil.
func (q *CibQuery) Location(rsc, host string) *HostLocation {
	return q.locations[rsc][host].clone()
}

func (q *CibQuery) LocationID(rsc, host string) string { return q.locationHostID[rsc][host] }

func (q *CibQuery) LocationIDs(rsc string) []string {
	return append([]string(nil), q.locationIDs[rsc]...)
}

func (q *CibQuery) PingLocation(rsc string) *HostLocation {
	return q.pingLocations[rsc].clone()
}

// Nodes returns all nodes of the configuration, sorted.
func (q *CibQuery) Nodes() []string { return sortedKeys(q.nodeIDs) }

func (q *CibQuery) NodeID(node string) string { return q.nodeIDs[node] }

func (q *CibQuery) NodeParameter(node, param string) string { return q.nodeParams[node][param] }

func (q *CibQuery) IsOnline(node string) bool { return q.nodeOnline[node] }

func (q *CibQuery) IsPending(node string) bool { return q.nodePending[node] }

func (q *CibQuery) IsFenced(node string) bool { return q.nodeFenced[node] }

// FailCount returns the summed fail count of rsc on node, possibly
// Infinity, or "" if it never failed.
func (q *CibQuery) FailCount(node, rsc string) string { return q.failCounts[node][rsc] }

func (q *CibQuery) PingCount(node string) string { return q.pingCounts[node] }

// Placement returns where the LRM history says rsc runs.
func (q *CibQuery) Placement(rsc string) (Placement, bool) {
	p, ok := q.placement[rsc]
	if !ok {
		return Placement{}, false
	}
	return Placement{
		Running: append([]string(nil), p.Running...),
		Master:  append([]string(nil), p.Master...),
		Slave:   append([]string(nil), p.Slave...),
	}, true
}

// DC returns the designated coordinator.
func (q *CibQuery) DC() string { return q.dc }
