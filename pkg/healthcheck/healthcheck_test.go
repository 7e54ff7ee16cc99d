package healthcheck

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/rest"
	"github.com/LINBIT/lcmc/pkg/transport/fake"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := out
	out = &buf
	t.Cleanup(func() { out = old })
	return &buf
}

func TestParseModules(t *testing.T) {
	modules, err := parseModules(strings.NewReader(
		"drbd_transport_tcp 28672 1 - Live 0x0000000000000000 (O)\n" +
			"drbd 581632 3 drbd_transport_tcp, Live 0x0000000000000000 (O)\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"drbd_transport_tcp", "drbd"}, modules)
}

func TestParseDrbdVersion(t *testing.T) {
	v, err := parseDrbdVersion(strings.NewReader(
		"version: 9.2.8 (api:2/proto:86-122)\nGIT-hash: e163b05a76254c0f51f999970e861d72bb16409a\n"))
	require.NoError(t, err)
	assert.Equal(t, "9.2.8", v)

	_, err = parseDrbdVersion(strings.NewReader("GIT-hash: abc\n"))
	assert.Error(t, err)
}

func TestUnitProblem(t *testing.T) {
	tests := []struct {
		desc      string
		status    dbus.UnitStatus
		fileState string
		want      error
		wantMsg   string
	}{
		{desc: "running", status: dbus.UnitStatus{LoadState: "loaded", ActiveState: "active"}, fileState: "enabled"},
		{desc: "static", status: dbus.UnitStatus{LoadState: "loaded", ActiveState: "active"}, fileState: "static"},
		{desc: "missing", status: dbus.UnitStatus{LoadState: "not-found", ActiveState: "inactive"}, want: errNotFound},
		{desc: "stopped", status: dbus.UnitStatus{LoadState: "loaded", ActiveState: "inactive"}, fileState: "enabled", wantMsg: "unit is inactive and enabled"},
		{desc: "not enabled", status: dbus.UnitStatus{LoadState: "loaded", ActiveState: "active"}, fileState: "disabled", wantMsg: "unit is active and disabled"},
		{desc: "unknown file state", status: dbus.UnitStatus{LoadState: "loaded", ActiveState: "failed"}, wantMsg: "unit is failed and unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := unitProblem(tt.status, tt.fileState)
			switch {
			case tt.want != nil:
				assert.ErrorIs(t, err, tt.want)
			case tt.wantMsg != "":
				assert.EqualError(t, err, tt.wantMsg)
				assert.Contains(t, (&checkStartedAndEnabled{"pacemaker.service", "pacemaker"}).format(err), "systemctl enable --now pacemaker.service")
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestJudgeStatus(t *testing.T) {
	assert.Error(t, judgeStatus(nil))
	assert.ErrorContains(t, judgeStatus(&rest.Status{Status: "broken"}), "invalid status")
	assert.ErrorIs(t, judgeStatus(&rest.Status{Status: "ok"}), errNotReady)
	assert.NoError(t, judgeStatus(&rest.Status{Status: "ok", Ready: true}))
}

func TestCheckHosts(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Host: "bravo", Match: "true", Err: errors.New("connection refused")},
		fake.Response{Match: "command -v virsh", ExitCode: 1},
		fake.Response{Match: "command -v"},
		fake.Response{Match: host.InfoCommand, Output: "daemon-info\n"},
		fake.Response{Match: "systemctl is-active", Output: ""},
		fake.Response{Match: "true"},
	)
	buf := captureOutput(t)

	err := checkHosts(context.Background(), exec, []string{"alpha", "bravo"})
	assert.EqualError(t, err, "found 2 issues")

	report := buf.String()
	assert.Contains(t, report, "virsh")
	assert.Contains(t, report, "libvirt-client")
	assert.Contains(t, report, "connection refused")
	assert.NotContains(t, report, "drbdadm")

	for _, c := range exec.Calls() {
		if c.Host == "bravo" {
			assert.Equal(t, "true", c.Command, "unreachable host is not checked further")
		}
	}
}

func TestCheckRemoteInPath(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Match: "drbdadm"},
		fake.Response{Match: "virsh", ExitCode: 1},
		fake.Response{Match: "crm_mon", ExitCode: 255},
	)
	ctx := context.Background()

	assert.NoError(t, (&checkRemoteInPath{exec, "alpha", "drbdadm", "drbd-utils"}).check(ctx, false))
	assert.ErrorIs(t, (&checkRemoteInPath{exec, "alpha", "virsh", "libvirt-client"}).check(ctx, false), errNotFound)
	err := (&checkRemoteInPath{exec, "alpha", "crm_mon", "pacemaker-cli"}).check(ctx, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errNotFound)
	assert.NoError(t, (&checkRemoteInPath{exec, "alpha", "crm_mon", "pacemaker-cli"}).check(ctx, true))
}

func TestCheckRequirementsUnknownMode(t *testing.T) {
	captureOutput(t)
	err := CheckRequirements(context.Background(), "agent", nil, nil, nil)
	assert.ErrorContains(t, err, "unknown mode")
}
