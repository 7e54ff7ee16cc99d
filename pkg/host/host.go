// Package host keeps the last known facts about a cluster host.
//
// A Host is created when the host is added to a cluster and lives until it is
// removed. Every info payload updates only the part of the facts it carries.
// Besides facts, a Host owns the two mutual exclusion domains that
// serialize DRBD status updates and VM status updates, and the gates initial
// connect code waits on.
package host

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
	"github.com/LINBIT/lcmc/pkg/version"
)

// BlockDevice is a block device found on a host.
type BlockDevice struct {
	Name        string `json:"name"`
	SizeKiB     uint64 `json:"size_kib"`
	MountPoint  string `json:"mount_point,omitempty"`
	FsType      string `json:"fs_type,omitempty"`
	VolumeGroup string `json:"volume_group,omitempty"`
	LogicalVol  string `json:"logical_volume,omitempty"`
	DiskID      string `json:"disk_id,omitempty"`
	DrbdMeta    bool   `json:"drbd_meta,omitempty"`
}

// NetInterface is a configured network interface.
type NetInterface struct {
	Name   string `json:"name"`
	Family string `json:"family"`
	IP     string `json:"ip"`
	Prefix int    `json:"prefix"`
	Bridge bool   `json:"bridge,omitempty"`
}

// VolumeGroup is an LVM volume group.
type VolumeGroup struct {
	Name    string `json:"name"`
	SizeKiB uint64 `json:"size_kib"`
	FreeKiB uint64 `json:"free_kib"`
}

// Installation holds distribution and software versions.
type Installation struct {
	Dist          string `json:"dist,omitempty"`
	DistVersion   string `json:"dist_version,omitempty"`
	KernelName    string `json:"kernel_name,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	Arch          string `json:"arch,omitempty"`
	DrbdVersion   string `json:"drbd_version,omitempty"`
	DrbdUtils     string `json:"drbd_utils_version,omitempty"`
	Pacemaker     string `json:"pacemaker_version,omitempty"`
	Corosync      string `json:"corosync_version,omitempty"`
	Heartbeat     string `json:"heartbeat_version,omitempty"`
	Libvirt       string `json:"libvirt_version,omitempty"`
}

// Daemons holds the running flags of the services the console cares about.
type Daemons struct {
	DrbdProxyRunning bool `json:"drbd_proxy_running"`
	PacemakerRunning bool `json:"pacemaker_running"`
	CorosyncRunning  bool `json:"corosync_running"`
	HeartbeatRunning bool `json:"heartbeat_running"`
	LibvirtRunning   bool `json:"libvirt_running"`
}

// Host is the shared mutable context of one cluster host.
type Host struct {
	name string

	mu            sync.RWMutex
	blockDevices  map[string]BlockDevice
	netInterfaces map[string]NetInterface
	volumeGroups  map[string]VolumeGroup
	cryptoModules []string
	drbdResProxy  map[string]bool
	installation  Installation
	daemons       Daemons
	drbdLoaded    bool
	drbdDevices   map[string]*DrbdDeviceState

	// eventsMu guards drbdEvents only. It is held while a stream starts, so
	// start functions may read the facts above.
	eventsMu   sync.Mutex
	drbdEvents *transport.Handle

	drbdStatusLock sync.Mutex
	vmStatusLock   sync.Mutex

	loadingDone *Gate
	firstStatus *Gate
}

// New creates a Host without any facts.
func New(name string) *Host {
	return &Host{
		name:          name,
		blockDevices:  make(map[string]BlockDevice),
		netInterfaces: make(map[string]NetInterface),
		volumeGroups:  make(map[string]VolumeGroup),
		drbdResProxy:  make(map[string]bool),
		drbdDevices:   make(map[string]*DrbdDeviceState),
		drbdLoaded:    true,
		loadingDone:   newGate(),
		firstStatus:   newGate(),
	}
}

func (h *Host) Name() string { return h.name }

func (h *Host) String() string { return h.name }

// DrbdStatusLock serializes DRBD status read/update sequences, so that a
// live event and a full reparse cannot interleave device by device.
func (h *Host) DrbdStatusLock() { h.drbdStatusLock.Lock() }

func (h *Host) DrbdStatusUnlock() { h.drbdStatusLock.Unlock() }

// DrbdStatusTryLock lets a poller skip a cycle if one is still running.
func (h *Host) DrbdStatusTryLock() bool { return h.drbdStatusLock.TryLock() }

// VMStatusLock serializes VM status read/update sequences.
func (h *Host) VMStatusLock() { h.vmStatusLock.Lock() }

func (h *Host) VMStatusUnlock() { h.vmStatusLock.Unlock() }

func (h *Host) VMStatusTryLock() bool { return h.vmStatusLock.TryLock() }

// LoadingDone is opened once the first full info fetch finished.
func (h *Host) LoadingDone() *Gate { return h.loadingDone }

// FirstStatus is opened once the first status payload arrived.
func (h *Host) FirstStatus() *Gate { return h.firstStatus }

// DrbdLoaded reports whether the DRBD kernel module answered last time.
func (h *Host) DrbdLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.drbdLoaded
}

// SetDrbdLoaded sets the DRBD loaded flag and reports whether it changed.
func (h *Host) SetDrbdLoaded(loaded bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.drbdLoaded == loaded {
		return false
	}
	h.drbdLoaded = loaded
	return true
}

func (h *Host) BlockDevices() map[string]BlockDevice {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]BlockDevice, len(h.blockDevices))
	for k, v := range h.blockDevices {
		out[k] = v
	}
	return out
}

func (h *Host) NetInterfaces() map[string]NetInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]NetInterface, len(h.netInterfaces))
	for k, v := range h.netInterfaces {
		out[k] = v
	}
	return out
}

func (h *Host) VolumeGroups() map[string]VolumeGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]VolumeGroup, len(h.volumeGroups))
	for k, v := range h.volumeGroups {
		out[k] = v
	}
	return out
}

// CryptoModules lists the kernel crypto algorithms usable for DRBD
// integrity and authentication options.
func (h *Host) CryptoModules() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.cryptoModules...)
}

// DrbdProxyUp reports whether the proxy connection of resource res is up on
// this host.
func (h *Host) DrbdProxyUp(res string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.drbdResProxy[res]
}

func (h *Host) Installation() Installation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.installation
}

func (h *Host) Daemons() Daemons {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.daemons
}

// IPs returns the addresses of all non-loopback interfaces, sorted.
func (h *Host) IPs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ips []string
	for _, iface := range h.netInterfaces {
		if iface.Name == "lo" {
			continue
		}
		ips = append(ips, iface.IP)
	}
	sort.Strings(ips)
	return ips
}

// DrbdVersionAtLeast compares the installed DRBD module version. An unknown
// or unparsable version counts as "no".
func (h *Host) DrbdVersionAtLeast(want string) bool {
	have := h.Installation().DrbdVersion
	if have == "" {
		return false
	}
	ok, err := version.AtLeast(have, want)
	if err != nil {
		log.WithFields(log.Fields{
			"host":    h.name,
			"version": have,
		}).Warnf("Could not compare DRBD version: %v", err)
		return false
	}
	return ok
}

// StartDrbdEvents starts the DRBD events stream through start unless one is
// already running. It reports whether a new stream was started.
func (h *Host) StartDrbdEvents(start func() (*transport.Handle, error)) (bool, error) {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	if h.drbdEvents != nil {
		select {
		case <-h.drbdEvents.Done():
			h.drbdEvents = nil
		default:
			return false, nil
		}
	}
	handle, err := start()
	if err != nil {
		return false, fmt.Errorf("failed to start drbd events on %s: %w", h.name, err)
	}
	h.drbdEvents = handle
	return true, nil
}

// StopDrbdEvents cancels the events stream. Stopping a stopped stream does
// nothing.
func (h *Host) StopDrbdEvents() {
	h.eventsMu.Lock()
	handle := h.drbdEvents
	h.drbdEvents = nil
	h.eventsMu.Unlock()

	handle.Cancel()
}

// DrbdEventsRunning reports whether an events stream is active.
func (h *Host) DrbdEventsRunning() bool {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	if h.drbdEvents == nil {
		return false
	}
	select {
	case <-h.drbdEvents.Done():
		return false
	default:
		return true
	}
}
