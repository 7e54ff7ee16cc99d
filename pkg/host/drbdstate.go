package host

// DrbdDeviceState is the last known live state of one DRBD device on a host,
// as reported by the events stream.
type DrbdDeviceState struct {
	ConnectionState string `json:"connection_state"`
	Role            string `json:"role"`
	PeerRole        string `json:"peer_role"`
	DiskState       string `json:"disk_state"`
	PeerDiskState   string `json:"peer_disk_state"`
	Flags           string `json:"flags"`
	SyncedPercent   string `json:"synced_percent,omitempty"`
	SplitBrain      bool   `json:"split_brain"`
}

// IsConnected reports whether the replication link is up.
func (s DrbdDeviceState) IsConnected() bool {
	switch s.ConnectionState {
	case "Connected", "SyncSource", "SyncTarget", "VerifyS", "VerifyT",
		"PausedSyncS", "PausedSyncT", "Ahead", "Behind":
		return true
	}
	return false
}

// IsSyncing reports whether a resync is running.
func (s DrbdDeviceState) IsSyncing() bool {
	switch s.ConnectionState {
	case "SyncSource", "SyncTarget", "PausedSyncS", "PausedSyncT":
		return true
	}
	return false
}

// UpdateDrbdDevice applies fn to the state of device dev under the host's
// fact lock. fn reports whether it changed anything; a device seen for the
// first time is only stored if fn reports a change.
func (h *Host) UpdateDrbdDevice(dev string, fn func(s *DrbdDeviceState) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.drbdDevices[dev]
	if !ok {
		cur = &DrbdDeviceState{}
	}
	changed := fn(cur)
	if changed && !ok {
		h.drbdDevices[dev] = cur
	}
	return changed
}

// DrbdDevice returns a copy of the live state of dev.
func (h *Host) DrbdDevice(dev string) (DrbdDeviceState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.drbdDevices[dev]
	if !ok {
		return DrbdDeviceState{}, false
	}
	return *s, true
}

// DrbdDevices returns a copy of all live device states.
func (h *Host) DrbdDevices() map[string]DrbdDeviceState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]DrbdDeviceState, len(h.drbdDevices))
	for k, v := range h.drbdDevices {
		out[k] = *v
	}
	return out
}

// ForgetDrbdDevices drops live state for devices that no longer exist.
func (h *Host) ForgetDrbdDevices(devs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range devs {
		delete(h.drbdDevices, d)
	}
}
