package rest

import (
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
	"github.com/LINBIT/lcmc/pkg/drbd"
	"github.com/LINBIT/lcmc/pkg/host"
)

// Status is the answer of the status endpoint.
type Status struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// Cluster summarizes one configured cluster.
type Cluster struct {
	Name        string   `json:"name"`
	Hosts       []string `json:"hosts"`
	DC          string   `json:"dc,omitempty"`
	ControlHost string   `json:"control_host,omitempty"`
	StatusSeen  bool     `json:"status_seen"`
}

// Resource is a cluster resource with its status in one run mode.
type Resource struct {
	ID         string                    `json:"id"`
	Agent      string                    `json:"agent,omitempty"`
	Mode       string                    `json:"mode"`
	Status     crmcontrol.ResourceStatus `json:"status"`
	Parameters map[string]string         `json:"parameters,omitempty"`
	Meta       map[string]string         `json:"meta,omitempty"`
	Orphaned   bool                      `json:"orphaned,omitempty"`
}

// Node is the membership state of a cluster node.
type Node struct {
	Name      string `json:"name"`
	ID        string `json:"id,omitempty"`
	Online    bool   `json:"online"`
	Pending   bool   `json:"pending"`
	Fenced    bool   `json:"fenced"`
	DC        bool   `json:"dc"`
	PingCount string `json:"ping_count,omitempty"`
}

// Constraints lists the constraint graph of a cluster.
type Constraints struct {
	Connections []crmcontrol.Connection `json:"connections"`
	// Sets holds the resource sets of set based constraints by constraint id.
	Sets map[string][]crmcontrol.ResourceSet `json:"sets,omitempty"`
}

// ClusterConfig holds the cluster properties and the resource and operation
// defaults.
type ClusterConfig struct {
	Properties  map[string]string `json:"properties"`
	RscDefaults map[string]string `json:"rsc_defaults"`
	OpDefaults  map[string]string `json:"op_defaults"`
}

// RunState is the run state the LRM history of the CIB records for a resource.
type RunState struct {
	ID    string `json:"id"`
	Host  string `json:"host"`
	State string `json:"state"`
}

// TargetRole is the body of a target role change.
type TargetRole struct {
	Started bool `json:"started"`
}

// DrbdResource is a DRBD resource with the live state of its devices.
type DrbdResource struct {
	*drbd.Resource
	Hosts   []string                                   `json:"hosts"`
	Devices map[string]map[string]host.DrbdDeviceState `json:"device_states,omitempty"`
}

// Host is everything known about one host.
type Host struct {
	Name          string                          `json:"name"`
	Cluster       string                          `json:"cluster"`
	DrbdLoaded    bool                            `json:"drbd_loaded"`
	Installation  host.Installation               `json:"installation"`
	Daemons       host.Daemons                    `json:"daemons"`
	BlockDevices  map[string]host.BlockDevice     `json:"block_devices"`
	NetInterfaces map[string]host.NetInterface    `json:"net_interfaces"`
	VolumeGroups  map[string]host.VolumeGroup     `json:"volume_groups"`
	CryptoModules []string                        `json:"crypto_modules"`
	DrbdDevices   map[string]host.DrbdDeviceState `json:"drbd_devices"`
}
