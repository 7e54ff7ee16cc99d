package cmd

import (
	"github.com/fatih/color"

	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/rest"
)

var (
	colorHeader   = color.New(color.FgBlue, color.Bold).SprintFunc()
	colorOk       = color.New(color.FgGreen).SprintFunc()
	colorDegraded = color.New(color.FgYellow).SprintFunc()
	colorBad      = color.New(color.FgRed, color.Bold).SprintFunc()
)

const (
	statusOk       = "✓"
	statusBad      = "✗"
	statusDegraded = "!"
)

// ColorResourceState colors s by where the resource runs: stopped is bad,
// unmanaged is degraded.
func ColorResourceState(res rest.Resource, s string) string {
	switch {
	case !res.Status.Managed && len(res.Status.Running) > 0:
		return colorDegraded(s)
	case len(res.Status.Running) == 0:
		return colorBad(s)
	default:
		return colorOk(s)
	}
}

func ColorNodeState(node rest.Node, s string) string {
	switch {
	case node.Fenced:
		return colorBad(s)
	case node.Online:
		return colorOk(s)
	case node.Pending:
		return colorDegraded(s)
	default:
		return colorBad(s)
	}
}

// ColorDrbdState colors s by the replication state of a device.
func ColorDrbdState(st host.DrbdDeviceState, s string) string {
	switch {
	case st.SplitBrain:
		return colorBad(s)
	case st.IsSyncing():
		return colorDegraded(s)
	case st.IsConnected() && st.DiskState == "UpToDate":
		return colorOk(s)
	case st.IsConnected():
		return colorDegraded(s)
	default:
		return colorBad(s)
	}
}

func boolStatus(ok bool) string {
	if ok {
		return colorOk(statusOk)
	}
	return colorBad(statusBad)
}
