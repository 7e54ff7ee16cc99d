package vm

import (
	"errors"
	"fmt"
	"strings"

	xmltree "github.com/beevik/etree"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrNoDomain is returned when a document has no <domain> root.
var ErrNoDomain = errors.New("document has no domain element")

func domainRoot(doc *xmltree.Document) (*xmltree.Element, error) {
	root := doc.Root()
	if root == nil || root.Tag != "domain" {
		return nil, ErrNoDomain
	}
	return root, nil
}

// ensurePath returns the element at path below e, creating missing steps.
func ensurePath(e *xmltree.Element, path []string) *xmltree.Element {
	for _, tag := range path {
		next := e.SelectElement(tag)
		if next == nil {
			next = e.CreateElement(tag)
		}
		e = next
	}
	return e
}

func isEmpty(e *xmltree.Element) bool {
	return len(e.Attr) == 0 && len(e.ChildElements()) == 0 && strings.TrimSpace(e.Text()) == ""
}

// pruneEmpty removes e and its ancestors up to, but not including, stop as
// long as they are empty.
func pruneEmpty(e, stop *xmltree.Element) {
	for e != nil && e != stop && isEmpty(e) {
		parent := e.Parent()
		if parent == nil {
			return
		}
		parent.RemoveChild(e)
		e = parent
	}
}

// removeChildren drops children and the whitespace token in front of each,
// so the remaining layout stays intact.
func removeChildren(parent *xmltree.Element, children []*xmltree.Element) {
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		idx := c.Index()
		parent.RemoveChildAt(idx)
		if idx > 0 {
			if cd, ok := parent.Child[idx-1].(*xmltree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
				parent.RemoveChildAt(idx - 1)
			}
		}
	}
}

func applyField(e *xmltree.Element, f field, value string) {
	path := f.path()
	switch f.kind {
	case fieldAttr:
		if value == "" {
			target := findPath(e, path)
			if target == nil {
				return
			}
			target.RemoveAttr(f.attr)
			pruneEmpty(target, e)
			return
		}
		ensurePath(e, path).CreateAttr(f.attr, value)
	case fieldText:
		if value == "" {
			if target := findPath(e, path); target != nil {
				target.SetText("")
				pruneEmpty(target, e)
			}
			return
		}
		ensurePath(e, path).SetText(value)
	case fieldPresence:
		target := findPath(e, path)
		switch {
		case value == True && target == nil:
			ensurePath(e, path)
		case value != True && target != nil:
			removeChildren(target.Parent(), []*xmltree.Element{target})
		}
	case fieldList:
		applyList(e, f, value)
	}
}

// applyList spreads a comma separated value over repeated tags, one value
// per position. Positions beyond the list lose the attribute and are removed
// once empty.
func applyList(e *xmltree.Element, f field, value string) {
	path := f.path()
	tag := path[len(path)-1]
	var values []string
	if value != "" {
		values = strings.Split(value, ",")
	}
	parent := findPath(e, path[:len(path)-1])
	if parent == nil {
		if len(values) == 0 {
			return
		}
		parent = ensurePath(e, path[:len(path)-1])
	}
	children := parent.SelectElements(tag)
	for i, v := range values {
		var c *xmltree.Element
		if i < len(children) {
			c = children[i]
		} else {
			c = parent.CreateElement(tag)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			c.RemoveAttr(f.attr)
		} else {
			c.CreateAttr(f.attr, v)
		}
	}
	var extra []*xmltree.Element
	for i := len(values); i < len(children); i++ {
		children[i].RemoveAttr(f.attr)
		if isEmpty(children[i]) {
			extra = append(extra, children[i])
		}
	}
	removeChildren(parent, extra)
	pruneEmpty(parent, e)
}

func applyParams(e *xmltree.Element, t paramTable, params map[string]string) {
	for _, name := range t.order {
		if v, ok := params[name]; ok {
			applyField(e, t.fields[name], v)
		}
	}
}

// findDevice returns the device of type t with the given key.
func findDevice(devices *xmltree.Element, t DeviceType, key string) *xmltree.Element {
	for _, e := range devices.SelectElements(string(t)) {
		if readDeviceKey(e, t) == key {
			return e
		}
	}
	return nil
}

// ModifyXML applies params to the device of type t identified by key, or
// to a new device if there is none. A new device is given the parameters
// that make up key unless params set them. Only parameters present in params are
// touched. The <address> of the modified device is dropped, libvirt assigns
// a new one on define.
func ModifyXML(doc *xmltree.Document, t DeviceType, key string, params map[string]string) (*xmltree.Element, error) {
	table, ok := deviceTables[t]
	if !ok {
		return nil, fmt.Errorf("unknown device type %q", t)
	}
	root, err := domainRoot(doc)
	if err != nil {
		return nil, err
	}
	devices := ensurePath(root, []string{"devices"})

	var dev *xmltree.Element
	if key != "" {
		dev = findDevice(devices, t, key)
	}
	if dev == nil {
		dev = xmltree.NewElement(string(t))
		same := devices.SelectElements(string(t))
		if len(same) > 0 {
			devices.InsertChildAt(same[len(same)-1].Index()+1, dev)
		} else {
			devices.AddChild(dev)
		}
		log.WithFields(log.Fields{"device": t, "key": key}).Debug("Adding device")
		if seeded := keyParams(t, key); seeded != nil {
			for k, v := range params {
				seeded[k] = v
			}
			params = seeded
		}
	}

	applyParams(dev, table, params)
	removeChildren(dev, dev.SelectElements("address"))
	return dev, nil
}

// RemoveDevice removes the device of type t identified by key. It reports
// whether there was such a device.
func RemoveDevice(doc *xmltree.Document, t DeviceType, key string) bool {
	root, err := domainRoot(doc)
	if err != nil {
		return false
	}
	devices := root.SelectElement("devices")
	if devices == nil {
		return false
	}
	dev := findDevice(devices, t, key)
	if dev == nil {
		return false
	}
	removeChildren(devices, []*xmltree.Element{dev})
	return true
}

// ModifyDomainOptions applies domain level parameters. Boot order, <cpu> and
// <features> are rebuilt as a whole whenever any of their parameters is
// present; parameters of the group missing from params keep their current
// value. An empty value removes the setting.
func ModifyDomainOptions(doc *xmltree.Document, params map[string]string) error {
	root, err := domainRoot(doc)
	if err != nil {
		return err
	}
	current := make(map[string]string)
	readDerivedParams(root, current)
	params = mergeGroups(params, current, []string{Boot, Boot2}, []string{CPUMatch, CPUModel, CPUVendor}, Features)

	applyParams(root, domainTable, params)
	for _, p := range []string{Memory, CurrentMemory} {
		if v, ok := params[p]; ok && v != "" {
			root.SelectElement(domainTable.fields[p].tag).CreateAttr("unit", defaultMemUnits)
		}
	}

	if hasAny(params, Boot, Boot2) {
		osElem := ensurePath(root, []string{"os"})
		removeChildren(osElem, osElem.SelectElements("boot"))
		for _, p := range []string{Boot, Boot2} {
			if dev := params[p]; dev != "" {
				osElem.CreateElement("boot").CreateAttr("dev", dev)
			}
		}
	}

	if hasAny(params, CPUMatch, CPUModel, CPUVendor) {
		if old := root.SelectElement("cpu"); old != nil {
			removeChildren(root, []*xmltree.Element{old})
		}
		if params[CPUMatch] != "" || params[CPUModel] != "" || params[CPUVendor] != "" {
			cpu := root.CreateElement("cpu")
			if m := params[CPUMatch]; m != "" {
				cpu.CreateAttr("match", m)
			}
			if m := params[CPUModel]; m != "" {
				cpu.CreateElement("model").SetText(m)
			}
			if v := params[CPUVendor]; v != "" {
				cpu.CreateElement("vendor").SetText(v)
			}
		}
	}

	if hasAny(params, Features...) {
		features := ensurePath(root, []string{"features"})
		for _, f := range Features {
			if old := features.SelectElement(f); old != nil {
				removeChildren(features, []*xmltree.Element{old})
			}
		}
		for _, f := range Features {
			if params[f] == True {
				features.CreateElement(f)
			}
		}
		pruneEmpty(features, root)
	}

	if v, ok := params[ClockOffset]; ok {
		applyField(root, attr("clock", "offset"), v)
	}
	return nil
}

// mergeGroups returns params completed with the current values of every
// group that params touches.
func mergeGroups(params, current map[string]string, groups ...[]string) map[string]string {
	merged := make(map[string]string, len(params))
	for k, v := range params {
		merged[k] = v
	}
	for _, g := range groups {
		if !hasAny(params, g...) {
			continue
		}
		for _, name := range g {
			if _, ok := merged[name]; !ok {
				if v, ok := current[name]; ok {
					merged[name] = v
				}
			}
		}
	}
	return merged
}

func hasAny(params map[string]string, names ...string) bool {
	for _, n := range names {
		if _, ok := params[n]; ok {
			return true
		}
	}
	return false
}

// NewDomainXML builds the definition of a new domain. A uuid is generated
// unless params carry one.
func NewDomainXML(name string, params map[string]string) (*xmltree.Document, error) {
	if name == "" {
		return nil, errors.New("domain name must not be empty")
	}
	doc := xmltree.NewDocument()
	root := doc.CreateElement("domain")
	root.CreateAttr("type", "kvm")
	root.CreateElement("name").SetText(name)
	id := params[UUID]
	if id == "" {
		id = uuid.New().String()
	}
	root.CreateElement("uuid").SetText(id)
	root.CreateElement("os").CreateElement("type").SetText("hvm")
	root.CreateElement("devices")

	opts := make(map[string]string, len(params))
	for k, v := range params {
		opts[k] = v
	}
	opts[Name] = name
	opts[UUID] = id
	if err := ModifyDomainOptions(doc, opts); err != nil {
		return nil, err
	}
	doc.Indent(2)
	return doc, nil
}
