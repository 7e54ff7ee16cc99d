package drbd

import (
	"fmt"
	"sort"
	"strings"

	xmltree "github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/drbd/proxy"
	"github.com/LINBIT/lcmc/pkg/value"
)

// MetaDiskFlexible is the index of a flexible-meta-disk.
const MetaDiskFlexible = "Flexible"

// DefaultVolume is the volume number of pre-volume (8.3) configurations.
const DefaultVolume = "0"

// knownSections are section names that are valid in drbd.conf even if the
// schema of the installed drbd-utils does not describe them.
var knownSections = map[string]bool{
	SectionGlobal:   true,
	SectionResource: true,
	SectionOptions:  true,
	SectionDisk:     true,
	SectionNet:      true,
	SectionSyncer:   true,
	SectionStartup:  true,
	SectionHandlers: true,
	SectionProxy:    true,
}

// Option is one "name value;" statement of a section.
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Section is a drbd.conf section with its options in file order.
type Section struct {
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

// Get returns the value of option name.
func (s Section) Get(name string) (string, bool) {
	for _, o := range s.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

func (s *Section) set(name, value string) {
	for i := range s.Options {
		if s.Options[i].Name == name {
			s.Options[i].Value = value
			return
		}
	}
	s.Options = append(s.Options, Option{Name: name, Value: value})
}

// MetaDisk is the location of DRBD meta data.
type MetaDisk struct {
	Path  string `json:"path"`
	Index string `json:"index,omitempty"`
}

// Address is the replication endpoint of a host.
type Address struct {
	Family string `json:"family,omitempty"`
	IP     string `json:"ip"`
	Port   string `json:"port"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%s", a.IP, a.Port)
}

// HostProxyEndpoint describes a DRBD proxy hop of one host.
type HostProxyEndpoint struct {
	ProxyHost   string `json:"proxy_host"`
	InsideIP    string `json:"inside_ip"`
	InsidePort  string `json:"inside_port"`
	OutsideIP   string `json:"outside_ip"`
	OutsidePort string `json:"outside_port"`
}

// Volume holds the per-host storage of one volume.
type Volume struct {
	Number    string              `json:"number"`
	Devices   map[string]string   `json:"devices"`
	Disks     map[string]string   `json:"disks"`
	MetaDisks map[string]MetaDisk `json:"meta_disks"`
}

func newVolume(nr string) *Volume {
	return &Volume{
		Number:    nr,
		Devices:   make(map[string]string),
		Disks:     make(map[string]string),
		MetaDisks: make(map[string]MetaDisk),
	}
}

// Resource is one DRBD resource.
type Resource struct {
	Name      string                       `json:"name"`
	Volumes   map[string]*Volume           `json:"volumes"`
	Addresses map[string]Address           `json:"addresses"`
	Proxies   map[string]HostProxyEndpoint `json:"proxies,omitempty"`
	Sections  []Section                    `json:"sections,omitempty"`
	hosts     []string
}

func newResource(name string) *Resource {
	return &Resource{
		Name:      name,
		Volumes:   make(map[string]*Volume),
		Addresses: make(map[string]Address),
		Proxies:   make(map[string]HostProxyEndpoint),
	}
}

// Section returns the local section called name.
func (r *Resource) Section(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Topology is an immutable view of all DRBD resources of a cluster.
type Topology struct {
	common         []Section
	resources      map[string]*Resource
	deviceResource map[string]string
	deviceVolume   map[string]string
}

// NewTopology returns an empty topology.
func NewTopology() *Topology {
	return &Topology{
		resources:      make(map[string]*Resource),
		deviceResource: make(map[string]string),
		deviceVolume:   make(map[string]string),
	}
}

// ParseReport lists what a parse found but could not model.
type ParseReport struct {
	UnknownSections []string
}

type configParser struct {
	schema  *Schema
	unknown map[string]bool
	report  ParseReport
}

func (p *configParser) knownSection(name string) bool {
	if knownSections[name] {
		return true
	}
	return p.schema != nil && p.schema.HasSection(name)
}

func (p *configParser) checkSection(name string) {
	if p.knownSection(name) || p.unknown[name] {
		return
	}
	p.unknown[name] = true
	p.report.UnknownSections = append(p.report.UnknownSections, name)
	log.WithField("section", name).Warn("Unknown DRBD config section")
}

func (p *configParser) parseSection(el *xmltree.Element) Section {
	s := Section{Name: el.SelectAttrValue("name", "")}
	p.checkSection(s.Name)
	for _, o := range el.SelectElements("option") {
		s.set(o.SelectAttrValue("name", ""), o.SelectAttrValue("value", ""))
	}
	return s
}

// looseText returns the character data directly below el.
func looseText(el *xmltree.Element) string {
	var b strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*xmltree.CharData); ok {
			b.WriteString(cd.Data)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func (p *configParser) parseCommon(el *xmltree.Element) []Section {
	var sections []Section
	for _, s := range el.SelectElements("section") {
		sections = append(sections, p.parseSection(s))
	}

	// Some drbdadm versions print the proxy section as plain text.
	text := looseText(el)
	if text == "" {
		return sections
	}
	opts, found, err := proxy.Parse(text)
	if err != nil {
		log.WithField("text", text).Warnf("Skipping proxy section: %v", err)
		return sections
	}
	if !found {
		return sections
	}
	ps := Section{Name: SectionProxy}
	for _, k := range opts.Keys() {
		v, _ := opts.Get(k)
		ps.set(k, v)
	}
	return append(sections, ps)
}

func parseMetaDisk(parent *xmltree.Element) (MetaDisk, bool) {
	if f := parent.SelectElement("flexible-meta-disk"); f != nil {
		return MetaDisk{Path: strings.TrimSpace(f.Text()), Index: MetaDiskFlexible}, true
	}
	if m := parent.SelectElement("meta-disk"); m != nil {
		return MetaDisk{
			Path:  strings.TrimSpace(m.Text()),
			Index: m.SelectAttrValue("index", ""),
		}, true
	}
	return MetaDisk{}, false
}

func parseDevice(el *xmltree.Element) string {
	dev := strings.TrimSpace(el.Text())
	if dev == "" {
		if minor := el.SelectAttrValue("minor", ""); minor != "" {
			dev = "/dev/drbd" + minor
		}
	}
	return dev
}

func parseVolume(vol *Volume, host string, el *xmltree.Element) {
	if d := el.SelectElement("device"); d != nil {
		vol.Devices[host] = parseDevice(d)
	}
	if d := el.SelectElement("disk"); d != nil {
		vol.Disks[host] = strings.TrimSpace(d.Text())
	}
	if md, ok := parseMetaDisk(el); ok {
		vol.MetaDisks[host] = md
	}
}

func endpoint(el *xmltree.Element) (ip, port string) {
	if el == nil {
		return "", ""
	}
	return strings.TrimSpace(el.Text()), el.SelectAttrValue("port", "")
}

func (p *configParser) parseHost(r *Resource, el *xmltree.Element) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		log.WithField("resource", r.Name).Warn("Ignoring host without name")
		return
	}
	r.hosts = append(r.hosts, name)

	volumes := el.SelectElements("volume")
	if len(volumes) == 0 && el.SelectElement("device") != nil {
		vol, ok := r.Volumes[DefaultVolume]
		if !ok {
			vol = newVolume(DefaultVolume)
			r.Volumes[DefaultVolume] = vol
		}
		parseVolume(vol, name, el)
	}
	for _, v := range volumes {
		nr := v.SelectAttrValue("vnr", DefaultVolume)
		vol, ok := r.Volumes[nr]
		if !ok {
			vol = newVolume(nr)
			r.Volumes[nr] = vol
		}
		parseVolume(vol, name, v)
	}

	if a := el.SelectElement("address"); a != nil {
		ip, port := endpoint(a)
		r.Addresses[name] = Address{
			Family: a.SelectAttrValue("family", ""),
			IP:     ip,
			Port:   port,
		}
	}

	if px := el.SelectElement("proxy"); px != nil {
		inIP, inPort := endpoint(px.SelectElement("inside"))
		outIP, outPort := endpoint(px.SelectElement("outside"))
		r.Proxies[name] = HostProxyEndpoint{
			ProxyHost:   px.SelectAttrValue("hostname", name),
			InsideIP:    inIP,
			InsidePort:  inPort,
			OutsideIP:   outIP,
			OutsidePort: outPort,
		}
	}
}

func (p *configParser) parseResource(el *xmltree.Element) *Resource {
	r := newResource(el.SelectAttrValue("name", ""))
	for _, c := range el.ChildElements() {
		switch c.Tag {
		case "host":
			p.parseHost(r, c)
		case "section":
			r.Sections = append(r.Sections, p.parseSection(c))
		case "connection", "connection-mesh", "floating":
			log.WithFields(log.Fields{
				"resource": r.Name,
				"tag":      c.Tag,
			}).Debug("Ignoring DRBD 9 connection element")
		default:
			log.WithFields(log.Fields{
				"resource": r.Name,
				"tag":      c.Tag,
			}).Warn("Unknown element in DRBD resource")
		}
	}
	return r
}

// ParseConfig parses "drbdadm dump-xml" output. Section names neither schema
// nor drbd.conf know are reported, not rejected.
func ParseConfig(xml string, schema *Schema) (*Topology, ParseReport, error) {
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, ParseReport{}, fmt.Errorf("failed to parse drbd config: %w", err)
	}
	root := doc.SelectElement("config")
	if root == nil {
		return nil, ParseReport{}, fmt.Errorf("drbd config has no <config> element")
	}

	p := &configParser{schema: schema, unknown: make(map[string]bool)}
	t := NewTopology()

	// common is inherited by every resource, parse it first
	for _, c := range root.SelectElements("common") {
		t.common = append(t.common, p.parseCommon(c)...)
	}

	for _, c := range root.SelectElements("resource") {
		r := p.parseResource(c)
		if r.Name == "" {
			log.Warn("Ignoring DRBD resource without name")
			continue
		}
		t.addResource(r)
	}
	return t, p.report, nil
}

func (t *Topology) addResource(r *Resource) {
	t.resources[r.Name] = r
	for _, vol := range r.Volumes {
		for host, dev := range vol.Devices {
			if other, ok := t.deviceResource[dev]; ok && other != r.Name {
				log.WithFields(log.Fields{
					"device":   dev,
					"host":     host,
					"resource": r.Name,
					"other":    other,
				}).Warn("DRBD device used by more than one resource")
			}
			t.deviceResource[dev] = r.Name
			t.deviceVolume[dev] = vol.Number
		}
	}
}

// Remove returns a topology without resource name.
func (t *Topology) Remove(name string) *Topology {
	n := NewTopology()
	n.common = t.common
	for rn, r := range t.resources {
		if rn == name {
			continue
		}
		n.addResource(r)
	}
	return n
}

// Resources returns all resource names, sorted.
func (t *Topology) Resources() []string {
	names := make([]string, 0, len(t.resources))
	for n := range t.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *Topology) Resource(name string) (*Resource, bool) {
	r, ok := t.resources[name]
	return r, ok
}

// Volumes returns the volume numbers of a resource, sorted numerically.
func (t *Topology) Volumes(res string) []string {
	r, ok := t.resources[res]
	if !ok {
		return nil
	}
	vols := make([]string, 0, len(r.Volumes))
	for nr := range r.Volumes {
		vols = append(vols, nr)
	}
	sort.Slice(vols, func(i, j int) bool {
		if len(vols[i]) != len(vols[j]) {
			return len(vols[i]) < len(vols[j])
		}
		return vols[i] < vols[j]
	})
	return vols
}

// Hosts returns the hosts of a resource in config order.
func (t *Topology) Hosts(res string) []string {
	r, ok := t.resources[res]
	if !ok {
		return nil
	}
	return append([]string(nil), r.hosts...)
}

// DevicePath returns the device of a volume on host.
func (t *Topology) DevicePath(res, vol, host string) (string, bool) {
	r, ok := t.resources[res]
	if !ok {
		return "", false
	}
	v, ok := r.Volumes[vol]
	if !ok {
		return "", false
	}
	dev, ok := v.Devices[host]
	return dev, ok
}

func (t *Topology) ResourceByDevice(dev string) (string, bool) {
	r, ok := t.deviceResource[dev]
	return r, ok
}

func (t *Topology) VolumeByDevice(dev string) (string, bool) {
	v, ok := t.deviceVolume[dev]
	return v, ok
}

// Devices returns all known device paths, sorted.
func (t *Topology) Devices() []string {
	devs := make([]string, 0, len(t.deviceResource))
	for d := range t.deviceResource {
		devs = append(devs, d)
	}
	sort.Strings(devs)
	return devs
}

// CommonSections returns the sections of the common block.
func (t *Topology) CommonSections() []Section {
	return append([]Section(nil), t.common...)
}

// ConfigValue returns the value of option in section of a resource. Options
// not set on the resource are looked up in the common block. Unset options
// yield NothingSelected.
func (t *Topology) ConfigValue(res, section, option string) (value.Value, bool) {
	if r, ok := t.resources[res]; ok {
		if s, ok := r.Section(section); ok {
			if v, ok := s.Get(option); ok {
				return value.Parse(v), true
			}
		}
	}
	for _, s := range t.common {
		if s.Name != section {
			continue
		}
		if v, ok := s.Get(option); ok {
			return value.Parse(v), true
		}
	}
	return value.NothingSelected, false
}
