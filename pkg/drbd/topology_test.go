package drbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/value"
)

const dumpXML = `<config file="/etc/drbd.conf">
	<common>
		<section name="net">
			<option name="protocol" value="C"/>
			<option name="timeout" value="60"/>
		</section>
		<section name="startup">
			<option name="wfc-timeout" value="10"/>
		</section>
		proxy { memlimit 100M; plugin { zlib level 9; } }
	</common>
	<resource name="r0">
		<host name="alpha">
			<volume vnr="0">
				<device minor="0">/dev/drbd0</device>
				<disk>/dev/vg0/r0_0</disk>
				<meta-disk>internal</meta-disk>
			</volume>
			<volume vnr="1">
				<device minor="1"></device>
				<disk>/dev/vg0/r0_1</disk>
				<meta-disk index="3">/dev/sdb1</meta-disk>
			</volume>
			<address family="ipv4" port="7788">10.0.0.1</address>
			<proxy hostname="proxy-a">
				<inside family="ipv4" port="7789">127.0.0.1</inside>
				<outside family="ipv4" port="7790">192.168.0.1</outside>
			</proxy>
		</host>
		<host name="bravo">
			<volume vnr="0">
				<device minor="0">/dev/drbd0</device>
				<disk>/dev/vg0/r0_0</disk>
				<flexible-meta-disk index="7">/dev/sdc1</flexible-meta-disk>
			</volume>
			<address family="ipv4" port="7788">10.0.0.2</address>
		</host>
		<section name="net">
			<option name="timeout" value="90"/>
		</section>
	</resource>
	<resource name="r1">
		<host name="alpha">
			<device minor="10"/>
			<disk>/dev/sdd</disk>
			<meta-disk index="0">/dev/sde</meta-disk>
			<address family="ipv4" port="7790">10.0.0.1</address>
		</host>
		<section name="frobnicate">
			<option name="level" value="11"/>
		</section>
	</resource>
</config>
`

func testTopology(t *testing.T) (*Topology, ParseReport) {
	t.Helper()
	topo, report, err := ParseConfig(dumpXML, testSchema(t))
	require.NoError(t, err)
	return topo, report
}

func TestParseConfig(t *testing.T) {
	topo, report := testTopology(t)

	assert.Equal(t, []string{"r0", "r1"}, topo.Resources())
	assert.Equal(t, []string{"0", "1"}, topo.Volumes("r0"))
	assert.Equal(t, []string{"alpha", "bravo"}, topo.Hosts("r0"))
	assert.Equal(t, []string{"frobnicate"}, report.UnknownSections)

	dev, ok := topo.DevicePath("r0", "1", "alpha")
	assert.True(t, ok)
	assert.Equal(t, "/dev/drbd1", dev)

	dev, ok = topo.DevicePath("r1", DefaultVolume, "alpha")
	assert.True(t, ok)
	assert.Equal(t, "/dev/drbd10", dev)

	res, ok := topo.ResourceByDevice("/dev/drbd1")
	assert.True(t, ok)
	assert.Equal(t, "r0", res)
	vol, ok := topo.VolumeByDevice("/dev/drbd1")
	assert.True(t, ok)
	assert.Equal(t, "1", vol)

	r, ok := topo.Resource("r0")
	require.True(t, ok)
	assert.Equal(t, Address{Family: "ipv4", IP: "10.0.0.2", Port: "7788"}, r.Addresses["bravo"])
	assert.Equal(t, HostProxyEndpoint{
		ProxyHost:   "proxy-a",
		InsideIP:    "127.0.0.1",
		InsidePort:  "7789",
		OutsideIP:   "192.168.0.1",
		OutsidePort: "7790",
	}, r.Proxies["alpha"])
	_, ok = r.Proxies["bravo"]
	assert.False(t, ok)
}

func TestMetaDiskIndex(t *testing.T) {
	topo, _ := testTopology(t)
	r0, _ := topo.Resource("r0")
	r1, _ := topo.Resource("r1")

	tests := []struct {
		name string
		got  MetaDisk
		want MetaDisk
	}{
		{name: "no index", got: r0.Volumes["0"].MetaDisks["alpha"], want: MetaDisk{Path: "internal"}},
		{name: "explicit index", got: r0.Volumes["1"].MetaDisks["alpha"], want: MetaDisk{Path: "/dev/sdb1", Index: "3"}},
		{name: "flexible wins over index", got: r0.Volumes["0"].MetaDisks["bravo"], want: MetaDisk{Path: "/dev/sdc1", Index: MetaDiskFlexible}},
		{name: "pre-volume layout", got: r1.Volumes[DefaultVolume].MetaDisks["alpha"], want: MetaDisk{Path: "/dev/sde", Index: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigValueInheritance(t *testing.T) {
	topo, _ := testTopology(t)

	v, ok := topo.ConfigValue("r0", SectionNet, "timeout")
	assert.True(t, ok)
	assert.Equal(t, "90", v.Raw(), "resource overrides common")

	v, ok = topo.ConfigValue("r1", SectionNet, "timeout")
	assert.True(t, ok)
	assert.Equal(t, "60", v.Raw())

	v, ok = topo.ConfigValue("r1", SectionNet, ParamProtocol)
	assert.True(t, ok)
	assert.Equal(t, "C", v.Raw())

	v, ok = topo.ConfigValue("r0", SectionProxy, "plugin-zlib")
	assert.True(t, ok)
	assert.Equal(t, "level 9", v.Raw())
	v, _ = topo.ConfigValue("r0", SectionProxy, "memlimit")
	assert.Equal(t, "100M", v.Raw())
	assert.Equal(t, value.KindUnit, v.Kind())
	assert.Equal(t, "M", v.Unit())

	v, ok = topo.ConfigValue("r0", SectionDisk, "c-max-rate")
	assert.False(t, ok)
	assert.True(t, v.IsNothingSelected())
}

func TestParseConfigBrokenProxyText(t *testing.T) {
	xml := `<config><common>proxy { memlimit 100M; <section name="net"><option name="protocol" value="A"/></section></common></config>`
	topo, report, err := ParseConfig(xml, testSchema(t))
	require.NoError(t, err)
	assert.Empty(t, report.UnknownSections)

	_, ok := topo.ConfigValue("r0", SectionProxy, "memlimit")
	assert.False(t, ok)
	assert.Len(t, topo.CommonSections(), 1)
}

func TestParseConfigErrors(t *testing.T) {
	_, _, err := ParseConfig(`<config><resource name=></config>`, nil)
	assert.Error(t, err)

	_, _, err = ParseConfig("<cib/>", nil)
	assert.Error(t, err)
}

func TestTopologyRemove(t *testing.T) {
	topo, _ := testTopology(t)

	removed := topo.Remove("r0")
	assert.Equal(t, []string{"r1"}, removed.Resources())
	assert.Equal(t, []string{"/dev/drbd10"}, removed.Devices())
	_, ok := removed.ResourceByDevice("/dev/drbd0")
	assert.False(t, ok)
	_, ok = removed.VolumeByDevice("/dev/drbd1")
	assert.False(t, ok)

	// the original snapshot is untouched
	assert.Equal(t, []string{"r0", "r1"}, topo.Resources())
	_, ok = topo.ResourceByDevice("/dev/drbd0")
	assert.True(t, ok)

	v, _ := removed.ConfigValue("r1", SectionNet, "timeout")
	assert.Equal(t, "60", v.Raw())
}
