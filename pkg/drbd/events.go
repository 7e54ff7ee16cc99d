package drbd

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/host"
)

// DriverNotLoaded is printed by drbdsetup when the kernel module is missing.
const DriverNotLoaded = "No response from the DRBD driver! Is the module loaded?"

var (
	stateLineRe      = regexp.MustCompile(`^\d+ ST (\S+) \{ cs:(\S+) ro:(\S+)/(\S+) ds:(\S+)/(\S+)(?: (\S+))? \}`)
	syncLineRe       = regexp.MustCompile(`^\d+ SP (\S+) (\d+(?:\.\d+)?)%?$`)
	splitBrainLineRe = regexp.MustCompile(`^\d+ UH (\S+) split-brain`)
	deviceNumberRe   = regexp.MustCompile(`^(?:(\d+),)?([^\s,\[\]]+)\[(\d+)\]$`)
)

// DeviceNumber identifies a device in the events stream. Lines start with an
// event counter followed by the device: the bare minor before DRBD 8.4,
// "minor,resource[volume]" or "resource[volume]" later.
type DeviceNumber struct {
	Minor    string
	Resource string
	Volume   string
}

// Path is the block device of the minor, empty if the line named only the
// resource and volume.
func (d DeviceNumber) Path() string {
	if d.Minor == "" {
		return ""
	}
	return "/dev/drbd" + d.Minor
}

// ParseDeviceNumber decomposes a device number of the events stream.
func ParseDeviceNumber(s string) (DeviceNumber, error) {
	if m := deviceNumberRe.FindStringSubmatch(s); m != nil {
		return DeviceNumber{Minor: m[1], Resource: m[2], Volume: m[3]}, nil
	}
	if strings.ContainsAny(s, ",[]") {
		return DeviceNumber{}, fmt.Errorf("invalid drbd device number %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return DeviceNumber{}, fmt.Errorf("invalid drbd device number %q", s)
		}
	}
	if s == "" {
		return DeviceNumber{}, fmt.Errorf("empty drbd device number")
	}
	return DeviceNumber{Minor: s, Volume: DefaultVolume}, nil
}

// deviceKey returns the key the live state of a device is stored under on
// h: the block device, looked up in the topology if the line did not carry
// the minor. Volumes of unknown devices are keyed "resource/volume".
func (m *Manager) deviceKey(h *host.Host, token string) (string, error) {
	dev, err := ParseDeviceNumber(token)
	if err != nil {
		return "", err
	}
	if p := dev.Path(); p != "" {
		return p, nil
	}
	if p, ok := m.Topology().DevicePath(dev.Resource, dev.Volume, h.Name()); ok {
		return p, nil
	}
	return dev.Resource + "/" + dev.Volume, nil
}

// ParseDrbdEvent applies one line of the events stream of h. It reports
// whether the live state of h changed; callers only redraw if it did.
func (m *Manager) ParseDrbdEvent(h *host.Host, line string) bool {
	h.DrbdStatusLock()
	defer h.DrbdStatusUnlock()
	return m.parseDrbdEvent(h, line)
}

func (m *Manager) parseDrbdEvent(h *host.Host, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	logger := log.WithFields(log.Fields{"host": h.Name(), "line": line})

	if line == DriverNotLoaded {
		changed := h.SetDrbdLoaded(false)
		if changed {
			logger.Warn("DRBD driver not loaded")
		}
		return changed
	}

	if f := stateLineRe.FindStringSubmatch(line); f != nil {
		dev, err := m.deviceKey(h, f[1])
		if err != nil {
			logger.Warn(err)
			return false
		}
		changed := h.SetDrbdLoaded(true)
		next := host.DrbdDeviceState{
			ConnectionState: f[2],
			Role:            f[3],
			PeerRole:        f[4],
			DiskState:       f[5],
			PeerDiskState:   f[6],
			Flags:           f[7],
		}
		return h.UpdateDrbdDevice(dev, func(s *host.DrbdDeviceState) bool {
			if s.ConnectionState == next.ConnectionState &&
				s.Role == next.Role && s.PeerRole == next.PeerRole &&
				s.DiskState == next.DiskState && s.PeerDiskState == next.PeerDiskState &&
				s.Flags == next.Flags {
				return false
			}
			s.ConnectionState = next.ConnectionState
			s.Role = next.Role
			s.PeerRole = next.PeerRole
			s.DiskState = next.DiskState
			s.PeerDiskState = next.PeerDiskState
			s.Flags = next.Flags
			return true
		}) || changed
	}

	if !h.DrbdLoaded() {
		return false
	}

	if f := syncLineRe.FindStringSubmatch(line); f != nil {
		dev, err := m.deviceKey(h, f[1])
		if err != nil {
			logger.Warn(err)
			return false
		}
		return h.UpdateDrbdDevice(dev, func(s *host.DrbdDeviceState) bool {
			if s.SyncedPercent == f[2] {
				return false
			}
			s.SyncedPercent = f[2]
			return true
		})
	}

	if f := splitBrainLineRe.FindStringSubmatch(line); f != nil {
		dev, err := m.deviceKey(h, f[1])
		if err != nil {
			logger.Warn(err)
			return false
		}
		return h.UpdateDrbdDevice(dev, func(s *host.DrbdDeviceState) bool {
			if s.SplitBrain {
				return false
			}
			s.SplitBrain = true
			return true
		})
	}

	logger.Trace("Ignoring DRBD event line")
	return false
}
