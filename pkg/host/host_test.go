package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/transport"
	"github.com/LINBIT/lcmc/pkg/transport/fake"
)

const infoPayload = `net-info
lo ipv4 127.0.0.1 8
eth0 ipv4 192.168.122.10 24
br0 ipv4 10.0.0.1 16 bridge
disk-info
/dev/sda1 size:1048576 fs:ext4 mp:/boot
/dev/vg0/lv_r0 size:2097152 vg:vg0 lv:lv_r0
vg-info
vg0 size:10485760 free:5242880
crypto-info
sha1
md5
crc32c
drbd-proxy-info
r0 up
r1 down
installation-info
dist:Debian GNU/Linux
dist-version:12
kernel-version:6.1.0-13-amd64
drbd:9.2.5
pacemaker:2.1.5
daemon-info
drbd-loaded:yes
pacemaker:yes
corosync:yes
libvirt:no
`

func TestParseInfo(t *testing.T) {
	h := New("alpha")
	changed := h.ParseInfo(infoPayload)
	assert.True(t, changed)

	ifaces := h.NetInterfaces()
	require.Len(t, ifaces, 3)
	assert.Equal(t, NetInterface{Name: "br0", Family: "ipv4", IP: "10.0.0.1", Prefix: 16, Bridge: true}, ifaces["br0"])
	assert.Equal(t, []string{"10.0.0.1", "192.168.122.10"}, h.IPs())

	devs := h.BlockDevices()
	assert.Equal(t, uint64(2097152), devs["/dev/vg0/lv_r0"].SizeKiB)
	assert.Equal(t, "vg0", devs["/dev/vg0/lv_r0"].VolumeGroup)
	assert.Equal(t, "/boot", devs["/dev/sda1"].MountPoint)

	assert.Equal(t, uint64(5242880), h.VolumeGroups()["vg0"].FreeKiB)
	assert.Equal(t, []string{"sha1", "md5", "crc32c"}, h.CryptoModules())
	assert.True(t, h.DrbdProxyUp("r0"))
	assert.False(t, h.DrbdProxyUp("r1"))

	inst := h.Installation()
	assert.Equal(t, "Debian GNU/Linux", inst.Dist)
	assert.Equal(t, "9.2.5", inst.DrbdVersion)
	assert.True(t, h.DrbdVersionAtLeast("8.4"))
	assert.False(t, h.DrbdVersionAtLeast("10"))

	d := h.Daemons()
	assert.True(t, d.PacemakerRunning)
	assert.False(t, d.LibvirtRunning)

	assert.False(t, h.ParseInfo(infoPayload), "same payload must not report a change")
}

func TestParseInfoPartialUpdate(t *testing.T) {
	h := New("alpha")
	h.ParseInfo(infoPayload)

	changed := h.ParseInfo("vg-info\nvg0 size:10485760 free:1024\n")
	assert.True(t, changed)
	assert.Equal(t, uint64(1024), h.VolumeGroups()["vg0"].FreeKiB)

	// untouched sections keep their facts
	assert.Len(t, h.NetInterfaces(), 3)
	assert.Equal(t, []string{"sha1", "md5", "crc32c"}, h.CryptoModules())
	assert.Equal(t, "9.2.5", h.Installation().DrbdVersion)
}

func TestParseInfoUnknownSection(t *testing.T) {
	h := New("alpha")
	changed := h.ParseInfo("gpu-info\nnvidia0\nvg-info\nvg1 size:1 free:1\n")
	assert.True(t, changed)
	assert.Contains(t, h.VolumeGroups(), "vg1")
}

func TestDrbdVersionIllegal(t *testing.T) {
	h := New("alpha")
	h.ParseInfo("installation-info\ndrbd:unknown\n")
	assert.False(t, h.DrbdVersionAtLeast("8.4"))
}

func TestGates(t *testing.T) {
	h := New("alpha")
	assert.False(t, h.LoadingDone().IsOpen())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.LoadingDone().Wait(ctx), context.DeadlineExceeded)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.LoadingDone().Wait(context.Background()))
		}()
	}
	h.LoadingDone().Open()
	h.LoadingDone().Open()
	wg.Wait()
	assert.True(t, h.LoadingDone().IsOpen())
	assert.False(t, h.FirstStatus().IsOpen())
}

func TestLocksAreIndependent(t *testing.T) {
	h := New("alpha")
	require.True(t, h.DrbdStatusTryLock())
	assert.False(t, h.DrbdStatusTryLock())
	assert.True(t, h.VMStatusTryLock())
	h.VMStatusUnlock()
	h.DrbdStatusUnlock()
	assert.True(t, h.DrbdStatusTryLock())
	h.DrbdStatusUnlock()
}

func TestDrbdEventsStartStop(t *testing.T) {
	h := New("alpha")
	_, cancel := context.WithCancel(context.Background())
	handle := transport.NewHandle(cancel)

	started, err := h.StartDrbdEvents(func() (*transport.Handle, error) { return handle, nil })
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, h.DrbdEventsRunning())

	started, err = h.StartDrbdEvents(func() (*transport.Handle, error) {
		t.Fatal("must not start a second stream")
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, started)

	h.StopDrbdEvents()
	h.StopDrbdEvents()
	assert.False(t, h.DrbdEventsRunning())

	_, err = h.StartDrbdEvents(func() (*transport.Handle, error) { return nil, errors.New("no route to host") })
	assert.Error(t, err)
	assert.False(t, h.DrbdEventsRunning())
}

func TestStartDrbdEventsReadsFacts(t *testing.T) {
	h := New("alpha")
	h.ParseInfo("installation-info\ndrbd:8.4.11\n")
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	var newEnough bool
	started, err := h.StartDrbdEvents(func() (*transport.Handle, error) {
		newEnough = h.DrbdVersionAtLeast("8.4")
		h.UpdateDrbdDevice("/dev/drbd0", func(s *DrbdDeviceState) bool {
			s.Role = "Primary"
			return true
		})
		return transport.NewHandle(cancel), nil
	})
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, newEnough)
	assert.True(t, h.DrbdEventsRunning())
	h.StopDrbdEvents()
}

func TestUpdateDrbdDevice(t *testing.T) {
	h := New("alpha")
	changed := h.UpdateDrbdDevice("/dev/drbd0", func(s *DrbdDeviceState) bool { return false })
	assert.False(t, changed)
	_, ok := h.DrbdDevice("/dev/drbd0")
	assert.False(t, ok)

	changed = h.UpdateDrbdDevice("/dev/drbd0", func(s *DrbdDeviceState) bool {
		s.ConnectionState = "SyncSource"
		return true
	})
	assert.True(t, changed)
	s, ok := h.DrbdDevice("/dev/drbd0")
	assert.True(t, ok)
	assert.True(t, s.IsConnected())
	assert.True(t, s.IsSyncing())

	h.ForgetDrbdDevices("/dev/drbd0")
	assert.Empty(t, h.DrbdDevices())
}

func TestFetchInfo(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Host: "alpha", Match: InfoCommand, Output: "crypto-info\nsha256\n"},
		fake.Response{Host: "bravo", Match: InfoCommand, ExitCode: 127},
	)

	h := New("alpha")
	changed, err := h.FetchInfo(context.Background(), exec)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"sha256"}, h.CryptoModules())

	_, err = New("bravo").FetchInfo(context.Background(), exec)
	assert.True(t, transport.IsExitCode(err, 127))
}
