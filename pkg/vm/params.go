package vm

import "strings"

// DeviceType is the tag of a device below <devices>.
type DeviceType string

const (
	DeviceDisk       DeviceType = "disk"
	DeviceFilesystem DeviceType = "filesystem"
	DeviceInterface  DeviceType = "interface"
	DeviceInput      DeviceType = "input"
	DeviceGraphics   DeviceType = "graphics"
	DeviceSound      DeviceType = "sound"
	DeviceSerial     DeviceType = "serial"
	DeviceParallel   DeviceType = "parallel"
	DeviceVideo      DeviceType = "video"
)

// DeviceTypes lists all modelled device types.
var DeviceTypes = []DeviceType{
	DeviceDisk, DeviceFilesystem, DeviceInterface, DeviceInput, DeviceGraphics,
	DeviceSound, DeviceSerial, DeviceParallel, DeviceVideo,
}

// True is the value of set presence-only tags.
const True = "True"

type fieldKind int

const (
	fieldAttr fieldKind = iota
	// fieldText is the character data of tag
	fieldText
	// fieldPresence is an empty tag that is either there or not
	fieldPresence
	// fieldList is a comma separated list spread over repeated tags
	fieldList
)

// field maps a parameter to an XML location. Nested tags are addressed as
// "parent:tag", "" is the device element itself.
type field struct {
	tag  string
	attr string
	kind fieldKind
}

func attr(tag, name string) field { return field{tag: tag, attr: name} }

func text(tag string) field { return field{tag: tag, kind: fieldText} }

func presence(tag string) field { return field{tag: tag, kind: fieldPresence} }

func list(tag, name string) field { return field{tag: tag, attr: name, kind: fieldList} }

func (f field) path() []string {
	if f.tag == "" {
		return nil
	}
	return strings.Split(f.tag, ":")
}

type paramTable struct {
	// order keeps modification deterministic
	order  []string
	fields map[string]field
}

func newTable(entries ...any) paramTable {
	t := paramTable{fields: make(map[string]field)}
	for i := 0; i+1 < len(entries); i += 2 {
		name := entries[i].(string)
		t.order = append(t.order, name)
		t.fields[name] = entries[i+1].(field)
	}
	return t
}

// Disk parameters
const (
	DiskType           = "type"
	DiskDevice         = "device"
	DiskSourceFile     = "source_file"
	DiskSourceDev      = "source_dev"
	DiskSourceProtocol = "source_protocol"
	DiskSourceName     = "source_name"
	DiskSourceHostName = "source_host_name"
	DiskSourceHostPort = "source_host_port"
	DiskAuthUsername   = "auth_username"
	DiskAuthSecretType = "auth_secret_type"
	DiskAuthSecretUUID = "auth_secret_uuid"
	DiskTargetDev      = "target_dev"
	DiskTargetBus      = "target_bus"
	DiskDriverName     = "driver_name"
	DiskDriverType     = "driver_type"
	DiskDriverCache    = "driver_cache"
	DiskReadonly       = "readonly"
	DiskShareable      = "shareable"
)

// Filesystem parameters
const (
	FsType       = "type"
	FsAccessMode = "accessmode"
	FsSourceDir  = "source_dir"
	FsTargetDir  = "target_dir"
)

// Interface parameters
const (
	IfaceType          = "type"
	IfaceMacAddress    = "mac_address"
	IfaceSourceNetwork = "source_network"
	IfaceSourceBridge  = "source_bridge"
	IfaceModelType     = "model_type"
	IfaceScriptPath    = "script_path"
	IfaceTargetDev     = "target_dev"
)

// Input, graphics, sound, serial/parallel and video parameters
const (
	InputType        = "type"
	InputBus         = "bus"
	GraphicsType     = "type"
	GraphicsPort     = "port"
	GraphicsAutoport = "autoport"
	GraphicsListen   = "listen"
	GraphicsPasswd   = "passwd"
	GraphicsKeymap   = "keymap"
	GraphicsDisplay  = "display"
	GraphicsXauth    = "xauth"
	SoundModel       = "model"
	CharType         = "type"
	CharSourcePath   = "source_path"
	CharSourceMode   = "source_mode"
	CharSourceHost   = "source_host"
	CharSourcePort   = "source_service"
	CharProtocolType = "protocol_type"
	CharTargetPort   = "target_port"
	VideoModelType   = "model_type"
	VideoModelVram   = "model_vram"
	VideoModelHeads  = "model_heads"
)

var charTable = newTable(
	CharType, attr("", "type"),
	CharSourcePath, attr("source", "path"),
	CharSourceMode, attr("source", "mode"),
	CharSourceHost, attr("source", "host"),
	CharSourcePort, attr("source", "service"),
	CharProtocolType, attr("protocol", "type"),
	CharTargetPort, attr("target", "port"),
)

var deviceTables = map[DeviceType]paramTable{
	DeviceDisk: newTable(
		DiskType, attr("", "type"),
		DiskDevice, attr("", "device"),
		DiskDriverName, attr("driver", "name"),
		DiskDriverType, attr("driver", "type"),
		DiskDriverCache, attr("driver", "cache"),
		DiskSourceFile, attr("source", "file"),
		DiskSourceDev, attr("source", "dev"),
		DiskSourceProtocol, attr("source", "protocol"),
		DiskSourceName, attr("source", "name"),
		DiskSourceHostName, list("source:host", "name"),
		DiskSourceHostPort, list("source:host", "port"),
		DiskAuthUsername, attr("auth", "username"),
		DiskAuthSecretType, attr("auth:secret", "type"),
		DiskAuthSecretUUID, attr("auth:secret", "uuid"),
		DiskTargetDev, attr("target", "dev"),
		DiskTargetBus, attr("target", "bus"),
		DiskReadonly, presence("readonly"),
		DiskShareable, presence("shareable"),
	),
	DeviceFilesystem: newTable(
		FsType, attr("", "type"),
		FsAccessMode, attr("", "accessmode"),
		FsSourceDir, attr("source", "dir"),
		FsTargetDir, attr("target", "dir"),
	),
	DeviceInterface: newTable(
		IfaceType, attr("", "type"),
		IfaceMacAddress, attr("mac", "address"),
		IfaceSourceNetwork, attr("source", "network"),
		IfaceSourceBridge, attr("source", "bridge"),
		IfaceModelType, attr("model", "type"),
		IfaceScriptPath, attr("script", "path"),
		IfaceTargetDev, attr("target", "dev"),
	),
	DeviceInput: newTable(
		InputType, attr("", "type"),
		InputBus, attr("", "bus"),
	),
	DeviceGraphics: newTable(
		GraphicsType, attr("", "type"),
		GraphicsPort, attr("", "port"),
		GraphicsAutoport, attr("", "autoport"),
		GraphicsListen, attr("", "listen"),
		GraphicsPasswd, attr("", "passwd"),
		GraphicsKeymap, attr("", "keymap"),
		GraphicsDisplay, attr("", "display"),
		GraphicsXauth, attr("", "xauth"),
	),
	DeviceSound: newTable(
		SoundModel, attr("", "model"),
	),
	DeviceSerial:   charTable,
	DeviceParallel: charTable,
	DeviceVideo: newTable(
		VideoModelType, attr("model", "type"),
		VideoModelVram, attr("model", "vram"),
		VideoModelHeads, attr("model", "heads"),
	),
}

// DeviceKey returns the natural key of a device, "" if the parameters do
// not identify one.
func DeviceKey(t DeviceType, params map[string]string) string {
	switch t {
	case DeviceDisk:
		return params[DiskTargetDev]
	case DeviceFilesystem:
		return params[FsTargetDir]
	case DeviceInterface:
		return params[IfaceMacAddress]
	case DeviceInput:
		if params[InputType] == "" {
			return ""
		}
		return params[InputType] + ":" + params[InputBus]
	case DeviceGraphics:
		return params[GraphicsType]
	case DeviceSound:
		return params[SoundModel]
	case DeviceSerial, DeviceParallel:
		if params[CharType] == "" {
			return ""
		}
		return params[CharType] + ":" + params[CharTargetPort]
	case DeviceVideo:
		return params[VideoModelType]
	}
	return ""
}

// keyParams is the inverse of DeviceKey: it returns the parameters that
// make a new device of type t carry key.
func keyParams(t DeviceType, key string) map[string]string {
	if key == "" {
		return nil
	}
	switch t {
	case DeviceDisk:
		return map[string]string{DiskTargetDev: key}
	case DeviceFilesystem:
		return map[string]string{FsTargetDir: key}
	case DeviceInterface:
		return map[string]string{IfaceMacAddress: key}
	case DeviceInput:
		typ, bus, _ := strings.Cut(key, ":")
		return map[string]string{InputType: typ, InputBus: bus}
	case DeviceGraphics:
		return map[string]string{GraphicsType: key}
	case DeviceSound:
		return map[string]string{SoundModel: key}
	case DeviceSerial, DeviceParallel:
		typ, port, _ := strings.Cut(key, ":")
		return map[string]string{CharType: typ, CharTargetPort: port}
	case DeviceVideo:
		return map[string]string{VideoModelType: key}
	}
	return nil
}

// Domain parameters
const (
	DomainType      = "domain_type"
	Name            = "name"
	UUID            = "uuid"
	Memory          = "memory"
	CurrentMemory   = "currentMemory"
	VCPU            = "vcpu"
	OSArch          = "arch"
	OSMachine       = "machine"
	OSType          = "os_type"
	Boot            = "boot"
	Boot2           = "boot2"
	Loader          = "loader"
	OnPoweroff      = "on_poweroff"
	OnReboot        = "on_reboot"
	OnCrash         = "on_crash"
	Emulator        = "emulator"
	CPUMatch        = "cpu_match"
	CPUModel        = "cpu_model"
	CPUVendor       = "cpu_vendor"
	FeatureACPI     = "acpi"
	FeatureAPIC     = "apic"
	FeaturePAE      = "pae"
	FeatureHAP      = "hap"
	ClockOffset     = "clock_offset"
	defaultMemUnits = "KiB"
)

// Features lists the presence-only children of <features>.
var Features = []string{FeatureACPI, FeatureAPIC, FeaturePAE, FeatureHAP}

// domainTable holds the scalar domain parameters. Boot order, <cpu>,
// <features> and <clock> are handled separately.
var domainTable = newTable(
	DomainType, attr("", "type"),
	Name, text("name"),
	UUID, text("uuid"),
	Memory, text("memory"),
	CurrentMemory, text("currentMemory"),
	VCPU, text("vcpu"),
	OSType, text("os:type"),
	OSArch, attr("os:type", "arch"),
	OSMachine, attr("os:type", "machine"),
	Loader, text("os:loader"),
	OnPoweroff, text("on_poweroff"),
	OnReboot, text("on_reboot"),
	OnCrash, text("on_crash"),
	Emulator, text("devices:emulator"),
)

// Network parameters
const (
	NetName          = "name"
	NetUUID          = "uuid"
	NetForwardMode   = "forward_mode"
	NetBridgeName    = "bridge_name"
	NetBridgeSTP     = "bridge_stp"
	NetBridgeDelay   = "bridge_delay"
	NetMacAddress    = "mac_address"
	NetIPAddress     = "ip_address"
	NetIPNetmask     = "ip_netmask"
	NetDHCPStart     = "dhcp_range_start"
	NetDHCPEnd       = "dhcp_range_end"
	NetDomainName    = "domain_name"
	NetForwardDevice = "forward_dev"
)

var networkTable = newTable(
	NetName, text("name"),
	NetUUID, text("uuid"),
	NetForwardMode, attr("forward", "mode"),
	NetForwardDevice, attr("forward", "dev"),
	NetBridgeName, attr("bridge", "name"),
	NetBridgeSTP, attr("bridge", "stp"),
	NetBridgeDelay, attr("bridge", "delay"),
	NetMacAddress, attr("mac", "address"),
	NetDomainName, attr("domain", "name"),
	NetIPAddress, attr("ip", "address"),
	NetIPNetmask, attr("ip", "netmask"),
	NetDHCPStart, attr("ip:dhcp:range", "start"),
	NetDHCPEnd, attr("ip:dhcp:range", "end"),
)
