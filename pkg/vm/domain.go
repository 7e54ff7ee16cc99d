// Package vm models libvirt domain and network definitions.
//
// Definitions are parsed into flat parameter maps for display and edited in
// place as XML trees, so that everything libvirt generated and this package
// does not know about survives a round trip.
package vm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	xmltree "github.com/beevik/etree"
	"github.com/icza/gog"
	"github.com/rck/unit"
	log "github.com/sirupsen/logrus"
)

// DomainData is the parsed form of one domain definition.
type DomainData struct {
	Name    string                                      `json:"name"`
	Params  map[string]string                           `json:"params"`
	Devices map[DeviceType]map[string]map[string]string `json:"devices"`
}

func newDomainData(name string) *DomainData {
	d := &DomainData{
		Name:    name,
		Params:  make(map[string]string),
		Devices: make(map[DeviceType]map[string]map[string]string),
	}
	for _, t := range DeviceTypes {
		d.Devices[t] = make(map[string]map[string]string)
	}
	return d
}

// Param returns a domain parameter, "" if unset.
func (d *DomainData) Param(name string) string {
	return d.Params[name]
}

// Device returns the parameters of the device with the given key.
func (d *DomainData) Device(t DeviceType, key string) (map[string]string, bool) {
	p, ok := d.Devices[t][key]
	return p, ok
}

// DeviceKeys returns the sorted keys of all devices of a type.
func (d *DomainData) DeviceKeys(t DeviceType) []string {
	keys := make([]string, 0, len(d.Devices[t]))
	for k := range d.Devices[t] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Device children that are valid but not modelled.
var ignoredDevices = map[string]bool{
	"emulator":   true,
	"controller": true,
	"memballoon": true,
	"console":    true,
	"channel":    true,
	"hostdev":    true,
	"redirdev":   true,
	"rng":        true,
	"watchdog":   true,
	"smartcard":  true,
	"hub":        true,
	"panic":      true,
	"tpm":        true,
	"lease":      true,
	"shmem":      true,
	"iommu":      true,
	"vsock":      true,
	"memory":     true,
	"audio":      true,
}

// memoryUnits knows the unit names libvirt accepts for memory sizes.
var memoryUnits = func() *unit.Unit {
	units := make(map[string]int64, len(unit.DefaultUnits)+16)
	for k, v := range unit.DefaultUnits {
		units[k] = v
	}
	units["b"] = 1
	units["bytes"] = 1
	units["k"] = units["K"]
	units["KiB"] = units["K"]
	units["MiB"] = units["M"]
	units["GiB"] = units["G"]
	units["TiB"] = units["T"]
	units["PiB"] = units["P"]
	units["EiB"] = units["E"]
	units["KB"] = 1000
	units["MB"] = 1000 * 1000
	units["GB"] = 1000 * 1000 * 1000
	units["TB"] = 1000 * 1000 * 1000 * 1000
	return unit.MustNewUnit(units)
}()

// memoryKiB converts a libvirt memory element to KiB.
func memoryKiB(e *xmltree.Element) (string, error) {
	amount := strings.TrimSpace(e.Text())
	u := e.SelectAttrValue("unit", defaultMemUnits)
	v, err := memoryUnits.ValueFromString(amount + u)
	if err != nil {
		return "", fmt.Errorf("could not parse memory %q %q: %w", amount, u, err)
	}
	return strconv.FormatInt(v.Value/unit.K, 10), nil
}

// ParseMemory converts a size like "2GiB" or "512M" to the KiB count domain
// parameters use. A bare number is taken as KiB.
func ParseMemory(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return s, nil
	}
	v, err := memoryUnits.ValueFromString(s)
	if err != nil {
		return "", fmt.Errorf("could not parse memory %q: %w", s, err)
	}
	if v.Value < unit.K {
		return "", fmt.Errorf("memory %q is less than 1KiB", s)
	}
	return strconv.FormatInt(v.Value/unit.K, 10), nil
}

// findPath walks the tags of path below e. It returns nil if any step is
// missing.
func findPath(e *xmltree.Element, path []string) *xmltree.Element {
	for _, tag := range path {
		if e == nil {
			return nil
		}
		e = e.SelectElement(tag)
	}
	return e
}

func readField(e *xmltree.Element, f field) string {
	path := f.path()
	switch f.kind {
	case fieldList:
		parent := findPath(e, path[:len(path)-1])
		if parent == nil {
			return ""
		}
		var values []string
		for _, c := range parent.SelectElements(path[len(path)-1]) {
			values = append(values, c.SelectAttrValue(f.attr, ""))
		}
		return strings.Join(values, ",")
	case fieldPresence:
		return gog.If(findPath(e, path) != nil, True, "")
	}
	target := findPath(e, path)
	if target == nil {
		return ""
	}
	if f.kind == fieldText {
		return strings.TrimSpace(target.Text())
	}
	return target.SelectAttrValue(f.attr, "")
}

func readParams(e *xmltree.Element, t paramTable) map[string]string {
	params := make(map[string]string)
	for _, name := range t.order {
		if v := readField(e, t.fields[name]); v != "" {
			params[name] = v
		}
	}
	return params
}

func readDeviceKey(e *xmltree.Element, t DeviceType) string {
	return DeviceKey(t, readParams(e, deviceTables[t]))
}

func parseRoot(kind, xml string) (*xmltree.Element, error) {
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("could not parse %s xml: %w", kind, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != kind {
		return nil, fmt.Errorf("%s xml has no <%s> root", kind, kind)
	}
	return root, nil
}

// ParseDomain parses a domain definition. It returns false if the XML is
// broken or describes a different domain than expectedName.
func ParseDomain(expectedName, xml string) (*DomainData, bool) {
	logger := log.WithField("domain", expectedName)
	root, err := parseRoot("domain", xml)
	if err != nil {
		logger.Warnf("Could not parse domain: %v", err)
		return nil, false
	}
	params := readParams(root, domainTable)
	if params[Name] != expectedName {
		logger.WithField("name", params[Name]).Warn("Domain name does not match, ignoring definition")
		return nil, false
	}

	d := newDomainData(expectedName)
	d.Params = params
	for _, p := range []string{Memory, CurrentMemory} {
		e := root.SelectElement(domainTable.fields[p].tag)
		if e == nil {
			continue
		}
		kib, err := memoryKiB(e)
		if err != nil {
			logger.Warn(err)
			delete(d.Params, p)
			continue
		}
		d.Params[p] = kib
	}

	readDerivedParams(root, d.Params)

	if devices := root.SelectElement("devices"); devices != nil {
		parseDevices(logger, devices, d)
	}
	return d, true
}

// readDerivedParams reads the parameters that are not a plain field of the
// domain table: boot order, <cpu>, <features> and <clock>.
func readDerivedParams(root *xmltree.Element, params map[string]string) {
	if osElem := root.SelectElement("os"); osElem != nil {
		boots := osElem.SelectElements("boot")
		for i, p := range []string{Boot, Boot2} {
			if i < len(boots) {
				if dev := boots[i].SelectAttrValue("dev", ""); dev != "" {
					params[p] = dev
				}
			}
		}
	}
	if cpu := root.SelectElement("cpu"); cpu != nil {
		setIf(params, CPUMatch, cpu.SelectAttrValue("match", ""))
		setIf(params, CPUModel, readField(cpu, text("model")))
		setIf(params, CPUVendor, readField(cpu, text("vendor")))
	}
	if features := root.SelectElement("features"); features != nil {
		for _, f := range Features {
			setIf(params, f, readField(features, presence(f)))
		}
	}
	if clock := root.SelectElement("clock"); clock != nil {
		setIf(params, ClockOffset, clock.SelectAttrValue("offset", ""))
	}
}

func parseDevices(logger *log.Entry, devices *xmltree.Element, d *DomainData) {
	for _, e := range devices.ChildElements() {
		t := DeviceType(e.Tag)
		table, ok := deviceTables[t]
		if !ok {
			if !ignoredDevices[e.Tag] {
				logger.WithField("tag", e.Tag).Warn("Unknown device")
			}
			continue
		}
		params := readParams(e, table)
		key := DeviceKey(t, params)
		if key == "" {
			logger.WithField("device", t).Debug("Skipping device without key")
			continue
		}
		if _, dup := d.Devices[t][key]; dup {
			logger.WithFields(log.Fields{"device": t, "key": key}).Warn("Duplicate device key, keeping the first")
			continue
		}
		d.Devices[t][key] = params
	}
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// NetworkData is the parsed form of one libvirt network.
type NetworkData struct {
	Name      string            `json:"name"`
	Params    map[string]string `json:"params"`
	Autostart bool              `json:"autostart"`
}

var knownNetworkChildren = map[string]bool{
	"name":        true,
	"uuid":        true,
	"forward":     true,
	"bridge":      true,
	"mac":         true,
	"domain":      true,
	"ip":          true,
	"dns":         true,
	"route":       true,
	"bandwidth":   true,
	"portgroup":   true,
	"mtu":         true,
	"virtualport": true,
	"metadata":    true,
	"title":       true,
	"description": true,
}

// ParseNetwork parses a network definition the same way ParseDomain does.
func ParseNetwork(expectedName, xml string) (*NetworkData, bool) {
	logger := log.WithField("network", expectedName)
	root, err := parseRoot("network", xml)
	if err != nil {
		logger.Warnf("Could not parse network: %v", err)
		return nil, false
	}
	params := readParams(root, networkTable)
	if params[NetName] != expectedName {
		logger.WithField("name", params[NetName]).Warn("Network name does not match, ignoring definition")
		return nil, false
	}
	for _, e := range root.ChildElements() {
		if !knownNetworkChildren[e.Tag] {
			logger.WithField("tag", e.Tag).Warn("Unknown network option")
		}
	}
	return &NetworkData{Name: expectedName, Params: params}, true
}
