package host

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// Info payload section names, as printed by the helper script.
const (
	sectionNet          = "net-info"
	sectionDisk         = "disk-info"
	sectionVG           = "vg-info"
	sectionCrypto       = "crypto-info"
	sectionDrbdProxy    = "drbd-proxy-info"
	sectionInstallation = "installation-info"
	sectionDaemons      = "daemon-info"
)

var sectionHeaderRe = regexp.MustCompile(`^[a-z][a-z0-9-]*-info$`)

// keyValues splits "key:value" fields, skipping fields without a colon.
func keyValues(fields []string) map[string]string {
	kv := make(map[string]string, len(fields))
	for _, f := range fields {
		parts := strings.SplitN(f, ":", 2)
		if len(parts) != 2 {
			continue
		}
		kv[parts[0]] = parts[1]
	}
	return kv
}

func parseKiB(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.Debugf("Could not parse size %q: %v", s, err)
		return 0
	}
	return n
}

// ParseInfo applies an info payload. Only the sections present in the
// payload are replaced; all other facts stay as they are. It reports whether
// any fact changed.
func (h *Host) ParseInfo(payload string) bool {
	sections := make(map[string][]string)
	var order []string
	current := ""

	scanner := bufio.NewScanner(strings.NewReader(payload))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sectionHeaderRe.MatchString(line) {
			current = line
			if _, ok := sections[current]; !ok {
				order = append(order, current)
				sections[current] = []string{}
			}
			continue
		}
		if current == "" {
			log.WithFields(log.Fields{"host": h.name, "line": line}).Warn("Info line outside of any section, ignoring")
			continue
		}
		sections[current] = append(sections[current], line)
	}

	changed := false
	for _, name := range order {
		lines := sections[name]
		switch name {
		case sectionNet:
			changed = h.setNetInterfaces(parseNetInfo(lines)) || changed
		case sectionDisk:
			changed = h.setBlockDevices(parseDiskInfo(lines)) || changed
		case sectionVG:
			changed = h.setVolumeGroups(parseVGInfo(lines)) || changed
		case sectionCrypto:
			changed = h.setCryptoModules(lines) || changed
		case sectionDrbdProxy:
			changed = h.setDrbdResProxy(parseDrbdProxyInfo(lines)) || changed
		case sectionInstallation:
			changed = h.setInstallation(parseInstallation(lines)) || changed
		case sectionDaemons:
			changed = h.setDaemons(parseDaemons(lines)) || changed
		default:
			log.WithFields(log.Fields{"host": h.name, "section": name}).Warn("Unknown info section, ignoring")
		}
	}
	return changed
}

// net-info: <iface> <family> <ip> <prefix> [bridge]
func parseNetInfo(lines []string) map[string]NetInterface {
	ifaces := make(map[string]NetInterface)
	for _, l := range lines {
		f := strings.Fields(l)
		if len(f) < 4 {
			log.WithField("line", l).Warn("Malformed net-info line")
			continue
		}
		prefix, err := strconv.Atoi(f[3])
		if err != nil {
			log.WithField("line", l).Warnf("Malformed prefix length: %v", err)
			prefix = -1
		}
		ifaces[f[0]] = NetInterface{
			Name:   f[0],
			Family: f[1],
			IP:     f[2],
			Prefix: prefix,
			Bridge: len(f) > 4 && f[4] == "bridge",
		}
	}
	return ifaces
}

// disk-info: <device> size:<KiB> [mp:<dir>] [fs:<type>] [vg:<vg>] [lv:<lv>] [disk-id:<id>] [drbd-meta:yes]
func parseDiskInfo(lines []string) map[string]BlockDevice {
	devs := make(map[string]BlockDevice)
	for _, l := range lines {
		f := strings.Fields(l)
		if len(f) == 0 {
			continue
		}
		kv := keyValues(f[1:])
		devs[f[0]] = BlockDevice{
			Name:        f[0],
			SizeKiB:     parseKiB(kv["size"]),
			MountPoint:  kv["mp"],
			FsType:      kv["fs"],
			VolumeGroup: kv["vg"],
			LogicalVol:  kv["lv"],
			DiskID:      kv["disk-id"],
			DrbdMeta:    kv["drbd-meta"] == "yes",
		}
	}
	return devs
}

// vg-info: <vg> size:<KiB> free:<KiB>
func parseVGInfo(lines []string) map[string]VolumeGroup {
	vgs := make(map[string]VolumeGroup)
	for _, l := range lines {
		f := strings.Fields(l)
		if len(f) == 0 {
			continue
		}
		kv := keyValues(f[1:])
		vgs[f[0]] = VolumeGroup{
			Name:    f[0],
			SizeKiB: parseKiB(kv["size"]),
			FreeKiB: parseKiB(kv["free"]),
		}
	}
	return vgs
}

// drbd-proxy-info: <resource> up|down
func parseDrbdProxyInfo(lines []string) map[string]bool {
	res := make(map[string]bool)
	for _, l := range lines {
		f := strings.Fields(l)
		if len(f) != 2 {
			log.WithField("line", l).Warn("Malformed drbd-proxy-info line")
			continue
		}
		res[f[0]] = f[1] == "up"
	}
	return res
}

// lineValues splits "key:value" lines; values may contain spaces.
func lineValues(lines []string) map[string]string {
	kv := make(map[string]string, len(lines))
	for _, l := range lines {
		parts := strings.SplitN(l, ":", 2)
		if len(parts) != 2 {
			log.WithField("line", l).Warn("Malformed key:value line")
			continue
		}
		kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return kv
}

func parseInstallation(lines []string) Installation {
	var inst Installation
	fields := map[string]*string{
		"dist":           &inst.Dist,
		"dist-version":   &inst.DistVersion,
		"kernel-name":    &inst.KernelName,
		"kernel-version": &inst.KernelVersion,
		"arch":           &inst.Arch,
		"drbd":           &inst.DrbdVersion,
		"drbd-utils":     &inst.DrbdUtils,
		"pacemaker":      &inst.Pacemaker,
		"corosync":       &inst.Corosync,
		"heartbeat":      &inst.Heartbeat,
		"libvirt":        &inst.Libvirt,
	}
	for k, v := range lineValues(lines) {
		if p, ok := fields[k]; ok {
			*p = v
		} else {
			log.WithField("key", k).Debug("Ignoring unknown installation key")
		}
	}
	return inst
}

func parseDaemons(lines []string) (Daemons, *bool) {
	var d Daemons
	var drbdLoaded *bool
	fields := map[string]*bool{
		"drbd-proxy": &d.DrbdProxyRunning,
		"pacemaker":  &d.PacemakerRunning,
		"corosync":   &d.CorosyncRunning,
		"heartbeat":  &d.HeartbeatRunning,
		"libvirt":    &d.LibvirtRunning,
	}
	for k, v := range lineValues(lines) {
		if k == "drbd-loaded" {
			loaded := v == "yes"
			drbdLoaded = &loaded
			continue
		}
		if p, ok := fields[k]; ok {
			*p = v == "yes"
		}
	}
	return d, drbdLoaded
}

func (h *Host) setNetInterfaces(v map[string]NetInterface) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmp.Equal(h.netInterfaces, v) {
		return false
	}
	h.netInterfaces = v
	return true
}

func (h *Host) setBlockDevices(v map[string]BlockDevice) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmp.Equal(h.blockDevices, v) {
		return false
	}
	h.blockDevices = v
	return true
}

func (h *Host) setVolumeGroups(v map[string]VolumeGroup) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmp.Equal(h.volumeGroups, v) {
		return false
	}
	h.volumeGroups = v
	return true
}

func (h *Host) setCryptoModules(v []string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmp.Equal(h.cryptoModules, v) {
		return false
	}
	h.cryptoModules = append([]string(nil), v...)
	return true
}

func (h *Host) setDrbdResProxy(v map[string]bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmp.Equal(h.drbdResProxy, v) {
		return false
	}
	h.drbdResProxy = v
	return true
}

func (h *Host) setInstallation(v Installation) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installation == v {
		return false
	}
	h.installation = v
	return true
}

func (h *Host) setDaemons(v Daemons, drbdLoaded *bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	changed := false
	if h.daemons != v {
		h.daemons = v
		changed = true
	}
	if drbdLoaded != nil && h.drbdLoaded != *drbdLoaded {
		h.drbdLoaded = *drbdLoaded
		changed = true
	}
	return changed
}

// InfoCommand prints the info payload of a host. The helper is installed on
// every cluster node together with the DRBD and Pacemaker tools.
const InfoCommand = "/usr/local/bin/lcmc-helper host-info"

// FetchInfo runs InfoCommand on the host and applies its output.
func (h *Host) FetchInfo(ctx context.Context, exec transport.Executor) (bool, error) {
	res, err := exec.Execute(ctx, h.name, InfoCommand)
	if err != nil {
		return false, fmt.Errorf("failed to get host info from %s: %w", h.name, err)
	}
	return h.ParseInfo(res.Output), nil
}
