// Package healthcheck verifies that the tools and services the console
// relies on are present.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/LINBIT/lcmc/client"
	"github.com/LINBIT/lcmc/pkg/transport"
)

var bold = color.New(color.Bold).SprintfFunc()
var errNotFound = errors.New("not found")

// out receives the report.
var out io.Writer = os.Stdout

type checker interface {
	check(ctx context.Context, prevError bool) error
	format(err error) string
}

func category(ctx context.Context, name string, checks ...checker) error {
	var prevError bool
	var msgs []string
	for _, c := range checks {
		err := c.check(ctx, prevError)
		if err != nil {
			prevError = true
			msgs = append(msgs, c.format(err))
		}
	}

	if len(msgs) > 0 {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("[!]"), name)
		for _, m := range msgs {
			fmt.Fprint(out, m)
		}
		return fmt.Errorf("some checks failed")
	}
	fmt.Fprintf(out, "%s %s\n", color.GreenString("[✓]"), name)
	return nil
}

// report collects the lines printed for one failed check.
type report struct {
	strings.Builder
}

// failed adds the headline of a failed check.
func (r *report) failed(format string, a ...interface{}) *report {
	fmt.Fprintf(r, "    %s %s\n", color.RedString("✗"), fmt.Sprintf(format, a...))
	return r
}

// warned adds the headline of a check that passed with reservations.
func (r *report) warned(format string, a ...interface{}) *report {
	fmt.Fprintf(r, "    %s %s\n", color.YellowString("!"), fmt.Sprintf(format, a...))
	return r
}

// detail adds an indented line below the headline.
func (r *report) detail(format string, a ...interface{}) *report {
	fmt.Fprintf(r, "      %s\n", fmt.Sprintf(format, a...))
	return r
}

func (r *report) install(pkg string) *report {
	return r.detail("Please install the %s package", bold(pkg))
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// checkNode checks the local machine as a cluster node.
func checkNode(ctx context.Context) error {
	errs := 0
	err := category(ctx,
		"DRBD",
		&checkInPath{"drbdadm", "drbd-utils"},
		&checkInPath{"drbdsetup", "drbd-utils"},
		&checkKernelModuleLoaded{"drbd", "drbd-kmod"},
		&checkDrbdVersion{"8.4"},
	)
	if err != nil {
		errs++
	}
	err = category(ctx,
		"Pacemaker",
		&checkInPath{"crm_mon", "pacemaker-cli"},
		&checkInPath{"cibadmin", "pacemaker-cli"},
		&checkStartedAndEnabled{"corosync.service", "corosync"},
		&checkStartedAndEnabled{"pacemaker.service", "pacemaker"},
	)
	if err != nil {
		errs++
	}
	err = category(ctx,
		"Resource Agents",
		&checkFileExists{"/usr/lib/ocf/resource.d/heartbeat", "resource-agents", true},
	)
	if err != nil {
		errs++
	}
	err = category(ctx,
		"libvirt",
		&checkInPath{"virsh", "libvirt-client"},
		&checkStartedAndEnabled{"libvirtd.service", "libvirt-daemon"},
	)
	if err != nil {
		errs++
	}
	if errs > 0 {
		return fmt.Errorf("found %d issues", errs)
	}
	return nil
}

// checkHosts checks every host through exec, the way the poller reaches
// them.
func checkHosts(ctx context.Context, exec transport.Executor, hosts []string) error {
	errs := 0
	for _, h := range hosts {
		err := category(ctx,
			h,
			&checkReachable{exec, h},
			&checkRemoteInPath{exec, h, "drbdadm", "drbd-utils"},
			&checkRemoteInPath{exec, h, "crm_mon", "pacemaker-cli"},
			&checkRemoteInPath{exec, h, "cibadmin", "pacemaker-cli"},
			&checkRemoteInPath{exec, h, "virsh", "libvirt-client"},
			&checkRemoteHelper{exec, h},
			&checkRemoteService{exec, h, "pacemaker", "pacemaker"},
		)
		if err != nil {
			errs++
		}
	}
	if errs > 0 {
		return fmt.Errorf("found %d issues", errs)
	}
	return nil
}

func checkClient(ctx context.Context, cli *client.Client) error {
	errs := 0
	err := category(ctx,
		"Server Connection",
		&checkServerConnection{cli},
	)
	if err != nil {
		errs++
	}
	if errs > 0 {
		return fmt.Errorf("found %d issues", errs)
	}
	return nil
}

// Modes of CheckRequirements.
const (
	ModeNode   = "node"
	ModeHosts  = "hosts"
	ModeClient = "client"
)

// CheckRequirements runs the checks of mode and prints a report. hosts and
// exec are used by ModeHosts, cli by ModeClient.
func CheckRequirements(ctx context.Context, mode string, exec transport.Executor, hosts []string, cli *client.Client) error {
	doPrint := func() {
		fmt.Fprintf(out, "Checking %s requirements.\n\n", bold(mode))
	}
	switch mode {
	case ModeNode:
		doPrint()
		return checkNode(ctx)
	case ModeHosts:
		doPrint()
		return checkHosts(ctx, exec, hosts)
	case ModeClient:
		doPrint()
		return checkClient(ctx, cli)
	default:
		return fmt.Errorf("unknown mode %q. Expected %q, %q, or %q", mode, ModeNode, ModeHosts, ModeClient)
	}
}
