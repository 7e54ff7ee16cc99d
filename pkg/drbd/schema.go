// Package drbd models DRBD configuration: the parameter schema discovered
// from drbdsetup xml-help output, the resource topology parsed from
// drbdadm dump-xml, and the live state carried by the events stream.
package drbd

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"sync"

	xmltree "github.com/beevik/etree"
	"github.com/rck/unit"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/value"
)

// Parameter types as declared by xml-help. "flag" options are stored as
// TypeBoolean.
const (
	TypeNumeric = "numeric"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeHandler = "handler"
	typeFlag    = "flag"
)

// Boolean values accepted by drbdadm.
const (
	BoolYes = "yes"
	BoolNo  = "no"
)

// Section names.
const (
	SectionGlobal   = "global"
	SectionResource = "resource"
	SectionOptions  = "options"
	SectionDisk     = "disk"
	SectionNet      = "net"
	SectionSyncer   = "syncer"
	SectionStartup  = "startup"
	SectionHandlers = "handlers"
	SectionProxy    = "proxy"
)

const ParamProtocol = "protocol"

// commandSections maps drbdsetup commands to the drbd.conf section their
// options belong to. An empty section means the command is ignored.
var commandSections = []struct {
	command string
	section string
}{
	{"new-resource", SectionOptions},
	{"resource-options", SectionOptions},
	{"attach", SectionDisk},
	{"disk-options", SectionDisk},
	{"connect", SectionNet},
	{"net-options", SectionNet},
	{"new-peer", SectionNet},
	{"peer-device-options", SectionDisk},
	{"syncer", SectionSyncer},
	{"new-minor", ""},
}

func sectionOfCommand(command string) (string, bool) {
	for _, cs := range commandSections {
		if cs.command == command {
			return cs.section, true
		}
	}
	return "", false
}

// Handler scripts shipped with drbd-utils.
var (
	fencePeerScripts = []string{
		"",
		"/usr/lib/drbd/crm-fence-peer.9.sh",
		"/usr/lib/drbd/crm-fence-peer.sh",
		"/usr/lib/drbd/stonith_admin-fence-peer.sh",
	}
	afterResyncTargetScripts = []string{
		"",
		"/usr/lib/drbd/crm-unfence-peer.9.sh",
		"/usr/lib/drbd/crm-unfence-peer.sh",
	}
	splitBrainScripts = []string{
		"",
		"/usr/lib/drbd/notify-split-brain.sh root",
	}
)

var cryptoParams = map[string]bool{
	"cram-hmac-alg":      true,
	"verify-alg":         true,
	"csums-alg":          true,
	"data-integrity-alg": true,
}

// notAdvanced parameters are shown in the basic view even if not required.
var notAdvanced = map[string]bool{
	"rate":                true,
	"resync-rate":         true,
	ParamProtocol:         true,
	"fencing":             true,
	"fence-peer":          true,
	"after-resync-target": true,
	"split-brain":         true,
	"wfc-timeout":         true,
	"degr-wfc-timeout":    true,
	"become-primary-on":   true,
	"allow-two-primaries": true,
	"usage-count":         true,
	"memlimit":            true,
	"plugin-zlib":         true,
	"plugin-lzma":         true,
	"cram-hmac-alg":       true,
	"shared-secret":       true,
	"on-io-error":         true,
}

var requiredParams = map[string]bool{
	ParamProtocol: true,
}

// Param is one configuration option.
type Param struct {
	Name       string   `json:"name"`
	Section    string   `json:"section"`
	Type       string   `json:"type"`
	Default    string   `json:"default,omitempty"`
	Min        string   `json:"min,omitempty"`
	Max        string   `json:"max,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	UnitPrefix string   `json:"unit_prefix,omitempty"`
	LongDesc   string   `json:"long_desc,omitempty"`
	Choices    []string `json:"choices,omitempty"`
	Required   bool     `json:"required,omitempty"`
}

func (p *Param) clone() *Param {
	c := *p
	c.Choices = append([]string(nil), p.Choices...)
	return &c
}

// staticSections are options drbdsetup does not describe, because they only
// exist in drbd.conf or belong to drbd-proxy.
var staticSections = []struct {
	name   string
	params []Param
}{
	{SectionGlobal, []Param{
		{Name: "usage-count", Type: TypeHandler, Default: "ask", Choices: []string{"yes", "no", "ask"}},
		{Name: "disable-ip-verification", Type: TypeBoolean, Default: BoolNo},
		{Name: "dialog-refresh", Type: TypeNumeric, Default: "1", Min: "0"},
	}},
	{SectionStartup, []Param{
		{Name: "wfc-timeout", Type: TypeNumeric, Default: "0", Min: "0", Unit: "seconds"},
		{Name: "degr-wfc-timeout", Type: TypeNumeric, Default: "0", Min: "0", Unit: "seconds"},
		{Name: "outdated-wfc-timeout", Type: TypeNumeric, Default: "0", Min: "0", Unit: "seconds"},
		{Name: "become-primary-on", Type: TypeHandler},
	}},
	{SectionHandlers, []Param{
		{Name: "fence-peer", Type: TypeHandler},
		{Name: "after-resync-target", Type: TypeHandler},
		{Name: "split-brain", Type: TypeHandler},
		{Name: "pri-on-incon-degr", Type: TypeString},
		{Name: "pri-lost-after-sb", Type: TypeString},
		{Name: "local-io-error", Type: TypeString},
	}},
	{SectionProxy, []Param{
		{Name: "memlimit", Type: TypeNumeric, Min: "16", Max: "1048576", UnitPrefix: "M", Unit: "bytes"},
		{Name: "read-loops", Type: TypeNumeric, Min: "0"},
		{Name: "plugin-zlib", Type: TypeString},
		{Name: "plugin-lzma", Type: TypeString},
	}},
}

// SchemaContext is the cluster context some choice lists are taken from.
type SchemaContext struct {
	HostNames     []string
	CryptoModules []string
}

// Schema describes all DRBD parameters. The parameter set is immutable once
// parsed; only the per-parameter correctness flag changes.
type Schema struct {
	params        map[string]*Param
	order         []string
	sections      []string
	sectionParams map[string][]string

	mu        sync.RWMutex
	incorrect map[string]bool
}

func newSchema() *Schema {
	return &Schema{
		params:        make(map[string]*Param),
		sectionParams: make(map[string][]string),
		incorrect:     make(map[string]bool),
	}
}

func (s *Schema) add(p *Param) {
	if _, ok := s.params[p.Name]; ok {
		log.WithFields(log.Fields{
			"param":   p.Name,
			"section": p.Section,
		}).Debug("Parameter already known, ignoring duplicate")
		return
	}
	if _, ok := s.sectionParams[p.Section]; !ok {
		s.sections = append(s.sections, p.Section)
	}
	s.params[p.Name] = p
	s.order = append(s.order, p.Name)
	s.sectionParams[p.Section] = append(s.sectionParams[p.Section], p.Name)
}

var (
	commandStartRe = regexp.MustCompile(`^\s*<command\s+name="([^"]+)"`)
	commandEndRe   = regexp.MustCompile(`</command>\s*$`)
)

// extractCommands collects the <command> fragments of an xml-help blob.
// Lines outside of command tags are ignored.
func extractCommands(blob string) []string {
	var fragments []string
	var cur strings.Builder
	inside := false

	scanner := bufio.NewScanner(strings.NewReader(blob))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !inside && commandStartRe.MatchString(line) {
			inside = true
			cur.Reset()
		}
		if !inside {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if commandEndRe.MatchString(line) {
			fragments = append(fragments, cur.String())
			inside = false
		}
	}
	if inside {
		log.Warn("xml-help output ends inside a <command> tag, ignoring the last command")
	}
	return fragments
}

// normalizeUnitPrefix maps xml-help unit prefixes to the form drbd.conf
// values use: "1" means no prefix, "s" (sectors) keeps its case.
func normalizeUnitPrefix(p string) string {
	switch p {
	case "1":
		return ""
	case "s":
		return p
	}
	return strings.ToUpper(p)
}

func parseOption(opt *xmltree.Element, section string) *Param {
	p := &Param{
		Name:    opt.SelectAttrValue("name", ""),
		Section: section,
		Type:    opt.SelectAttrValue("type", TypeString),
	}
	if p.Type == typeFlag {
		p.Type = TypeBoolean
	}
	for _, c := range opt.ChildElements() {
		text := strings.TrimSpace(c.Text())
		switch c.Tag {
		case "handler":
			p.Choices = append(p.Choices, text)
		case "min":
			p.Min = text
		case "max":
			p.Max = text
		case "default":
			p.Default = text
		case "unit":
			p.Unit = text
		case "unit_prefix":
			p.UnitPrefix = normalizeUnitPrefix(text)
		case "desc":
			p.LongDesc = text
		default:
			log.WithFields(log.Fields{
				"param": p.Name,
				"tag":   c.Tag,
			}).Debug("Ignoring unknown option element")
		}
	}
	return p
}

// ParseSchema parses the concatenated output of "drbdsetup <cmd> xml-help"
// for all commands. Commands that cannot be parsed are skipped.
func ParseSchema(blob string, ctx SchemaContext) *Schema {
	s := newSchema()

	for _, fragment := range extractCommands(blob) {
		doc := xmltree.NewDocument()
		if err := doc.ReadFromString(fragment); err != nil {
			log.Warnf("Could not parse xml-help command: %v", err)
			continue
		}
		cmd := doc.Root()
		if cmd == nil {
			continue
		}
		name := cmd.SelectAttrValue("name", "")
		section, ok := sectionOfCommand(name)
		if !ok {
			log.WithField("command", name).Debug("Skipping unknown drbdsetup command")
			continue
		}
		if section == "" {
			continue
		}
		for _, opt := range cmd.SelectElements("option") {
			p := parseOption(opt, section)
			if p.Name == "" {
				continue
			}
			s.add(p)
		}
	}

	for _, st := range staticSections {
		for i := range st.params {
			p := st.params[i].clone()
			p.Section = st.name
			s.add(p)
		}
	}

	if _, ok := s.params[ParamProtocol]; !ok {
		section := SectionNet
		if _, ok := s.sectionParams[SectionNet]; !ok {
			section = SectionResource
		}
		s.add(&Param{
			Name:     ParamProtocol,
			Section:  section,
			Type:     TypeHandler,
			Default:  "C",
			Choices:  []string{"A", "B", "C"},
			Required: true,
		})
	}

	for name, p := range s.params {
		if requiredParams[name] {
			p.Required = true
		}
		s.injectChoices(p, ctx)
	}
	return s
}

func (s *Schema) injectChoices(p *Param, ctx SchemaContext) {
	switch {
	case p.Name == "fence-peer":
		p.Choices = append([]string(nil), fencePeerScripts...)
	case p.Name == "after-resync-target":
		p.Choices = append([]string(nil), afterResyncTargetScripts...)
	case p.Name == "split-brain":
		p.Choices = append([]string(nil), splitBrainScripts...)
	case p.Name == "become-primary-on":
		p.Choices = append([]string{"", "both"}, ctx.HostNames...)
	case cryptoParams[p.Name]:
		p.Choices = append([]string{""}, ctx.CryptoModules...)
	}
}

// Params returns all parameter names in discovery order.
func (s *Schema) Params() []string { return append([]string(nil), s.order...) }

// Sections returns all section names in discovery order.
func (s *Schema) Sections() []string { return append([]string(nil), s.sections...) }

// SectionParams returns the parameters of a section in discovery order.
func (s *Schema) SectionParams(section string) []string {
	return append([]string(nil), s.sectionParams[section]...)
}

// HasSection reports whether section holds at least one parameter.
func (s *Schema) HasSection(section string) bool {
	_, ok := s.sectionParams[section]
	return ok
}

// Param returns a copy of the description of parameter name.
func (s *Schema) Param(name string) (Param, bool) {
	p, ok := s.params[name]
	if !ok {
		return Param{}, false
	}
	return *p.clone(), true
}

func (s *Schema) IsRequired(name string) bool {
	p, ok := s.params[name]
	return ok && p.Required
}

// IsAdvanced reports whether a parameter is only shown in advanced mode.
func (s *Schema) IsAdvanced(name string) bool {
	return !(s.IsRequired(name) || notAdvanced[name])
}

func (s *Schema) IsGlobal(name string) bool {
	return s.Section(name) == SectionGlobal
}

func (s *Schema) ParamType(name string) string {
	if p, ok := s.params[name]; ok {
		return p.Type
	}
	return ""
}

func (s *Schema) Section(name string) string {
	if p, ok := s.params[name]; ok {
		return p.Section
	}
	return ""
}

func (s *Schema) Default(name string) string {
	if p, ok := s.params[name]; ok {
		return p.Default
	}
	return ""
}

func (s *Schema) PossibleChoices(name string) []string {
	if p, ok := s.params[name]; ok {
		return append([]string(nil), p.Choices...)
	}
	return nil
}

func (s *Schema) UnitPrefix(name string) string {
	if p, ok := s.params[name]; ok {
		return p.UnitPrefix
	}
	return ""
}

func (s *Schema) Unit(name string) string {
	if p, ok := s.params[name]; ok {
		return p.Unit
	}
	return ""
}

func (s *Schema) LongDesc(name string) string {
	if p, ok := s.params[name]; ok {
		return p.LongDesc
	}
	return ""
}

// IsParamCorrect returns the result of the last CheckParam call for name.
// Parameters never checked are correct.
func (s *Schema) IsParamCorrect(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.incorrect[name]
}

func (s *Schema) setCorrect(name string, correct bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if correct {
		delete(s.incorrect, name)
	} else {
		s.incorrect[name] = true
	}
	return correct
}

const sectorBytes = 512

// prefixBytes returns the number of bytes one unit of prefix stands for.
// "K" is the base unit of DRBD sizes and is not looked up.
func prefixBytes(prefix string) (int64, bool) {
	switch prefix {
	case "", "B":
		return 1, true
	case "K":
		return 1024, true
	case "s":
		return sectorBytes, true
	}
	f, ok := unit.DefaultUnits[strings.ToUpper(prefix)]
	return f, ok
}

// toKiB scales n by prefix to kibibytes.
func toKiB(n int64, prefix string) (float64, bool) {
	if prefix == "K" {
		return float64(n), true
	}
	f, ok := prefixBytes(prefix)
	if !ok {
		return 0, false
	}
	return float64(n) * float64(f) / 1024, true
}

// CheckParam validates v as a value of parameter name and records the
// result for IsParamCorrect. NothingSelected counts as unset.
func (s *Schema) CheckParam(name string, v value.Value) bool {
	return s.setCorrect(name, s.checkParam(name, v))
}

func (s *Schema) checkParam(name string, v value.Value) bool {
	p, ok := s.params[name]
	if !ok {
		log.WithField("param", name).Debug("Checking unknown parameter")
		return true
	}
	if v.IsEmpty() {
		return !p.Required
	}

	switch p.Type {
	case TypeBoolean:
		return v.Raw() == BoolYes || v.Raw() == BoolNo
	case TypeNumeric:
		return checkNumeric(p, v)
	}
	return true
}

func checkNumeric(p *Param, v value.Value) bool {
	number, suffix := v.Raw(), ""
	if v.Kind() == value.KindUnit {
		number, suffix = v.Number(), v.Unit()
	}
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		log.WithFields(log.Fields{"param": p.Name, "value": v.Raw()}).Debugf("Not a number: %v", err)
		return false
	}
	if suffix == "s" {
		return true
	}

	if p.UnitPrefix == "" {
		if suffix != "" {
			return false
		}
		return inRange(p, float64(n), func(v int64) (float64, bool) { return float64(v), true })
	}

	kib, ok := toKiB(n, strings.ToUpper(suffix))
	if !ok {
		return false
	}
	return inRange(p, kib, func(v int64) (float64, bool) { return toKiB(v, p.UnitPrefix) })
}

func inRange(p *Param, value float64, scale func(int64) (float64, bool)) bool {
	bound := func(s string) (float64, bool) {
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			log.WithFields(log.Fields{"param": p.Name, "bound": s}).Debug("Ignoring unparsable bound")
			return 0, false
		}
		return scale(n)
	}
	if lo, ok := bound(p.Min); ok && value < lo {
		return false
	}
	if hi, ok := bound(p.Max); ok && value > hi {
		return false
	}
	return true
}
