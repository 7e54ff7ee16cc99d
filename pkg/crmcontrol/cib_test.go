package crmcontrol

import (
	"testing"

	xmltree "github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCib = `<?xml version="1.0" ?>
<cib epoch="42" num_updates="3" admin_epoch="0" dc-uuid="2">
  <configuration>
    <crm_config>
      <cluster_property_set id="cib-bootstrap-options">
        <nvpair id="opt-stonith" name="stonith-enabled" value="false"/>
        <nvpair id="opt-quorum" name="no-quorum-policy" value="ignore"/>
      </cluster_property_set>
    </crm_config>
    <nodes>
      <node id="1" uname="alpha">
        <instance_attributes id="nodes-1"><nvpair id="nodes-1-standby" name="standby" value="off"/></instance_attributes>
      </node>
      <node id="2" uname="bravo"/>
      <node id="3" uname="charlie"/>
      <node id="4" uname="delta"/>
    </nodes>
    <resources>
      <group id="g_web">
        <meta_attributes id="g_web-meta"><nvpair id="g_web-meta-target-role" name="target-role" value="Started"/></meta_attributes>
        <primitive id="p_web_ip" class="ocf" provider="heartbeat" type="IPaddr2">
          <instance_attributes id="p_web_ip-instance_attributes">
            <nvpair id="p_web_ip-ip" name="ip" value="10.0.0.100"/>
            <nvpair id="p_web_ip-cidr" name="cidr_netmask" value="24"/>
          </instance_attributes>
          <operations>
            <op id="p_web_ip-monitor-10s" name="monitor" interval="10s" timeout="20s"/>
            <op id="p_web_ip-start" name="start" interval="0" timeout="20s"/>
          </operations>
        </primitive>
        <primitive id="p_web_srv" class="ocf" provider="heartbeat" type="apache"/>
      </group>
      <clone id="ms_drbd">
        <meta_attributes id="ms_drbd-meta"><nvpair id="ms_drbd-meta-promotable" name="promotable" value="true"/></meta_attributes>
        <primitive id="p_drbd" class="ocf" provider="linbit" type="drbd">
          <operations>
            <op id="p_drbd-monitor-m" name="monitor" interval="15s" role="Master"/>
            <op id="p_drbd-monitor-s" name="monitor" interval="30s" role="Slave"/>
          </operations>
        </primitive>
      </clone>
      <clone id="cl_ping">
        <primitive id="p_ping" class="ocf" provider="pacemaker" type="ping"/>
      </clone>
      <primitive id="p_mail" class="systemd" type="postfix"/>
      <unknown_thing id="x"/>
    </resources>
    <constraints>
      <rsc_colocation id="co_web_drbd" score="INFINITY" rsc="g_web" with-rsc="ms_drbd" with-rsc-role="Master"/>
      <rsc_order id="o_drbd_web" score="INFINITY" first="ms_drbd" first-action="promote" then="g_web" then-action="start"/>
      <rsc_order id="o_set" symmetrical="false">
        <resource_set id="o_set-0" sequential="false"><resource_ref id="p_ping"/><resource_ref id="p_mail"/></resource_set>
        <resource_set id="o_set-1"><resource_ref id="g_web"/></resource_set>
      </rsc_order>
      <rsc_location id="lo_web_alpha" rsc="g_web" node="alpha" score="100"/>
      <rsc_location id="lo_web_rule" rsc="g_web">
        <rule id="lo_web_rule-r" score="-INFINITY" role="Started">
          <expression id="lo_web_rule-e" attribute="#uname" operation="ne" value="charlie"/>
        </rule>
      </rsc_location>
      <rsc_location id="lo_web_ping" rsc="g_web">
        <rule id="lo_web_ping-r" score="-INFINITY" boolean-op="or">
          <expression id="lo_web_ping-e" attribute="pingd" operation="not_defined"/>
        </rule>
      </rsc_location>
      <rsc_frobnicate id="bogus"/>
    </constraints>
    <rsc_defaults><meta_attributes id="rsc-options"><nvpair id="rsc-stickiness" name="resource-stickiness" value="200"/></meta_attributes></rsc_defaults>
    <op_defaults><meta_attributes id="op-options"><nvpair id="op-timeout" name="timeout" value="60s"/></meta_attributes></op_defaults>
  </configuration>
  <status>
    <node_state id="1" uname="alpha" in_ccm="true" crmd="online" join="member" expected="member">
      <transient_attributes id="1">
        <instance_attributes id="status-1">
          <nvpair id="status-1-pingd" name="pingd" value="1000"/>
          <nvpair id="status-1-fc1" name="fail-count-p_web_srv#start_0" value="2"/>
          <nvpair id="status-1-fc2" name="fail-count-p_web_srv#monitor_10000" value="1"/>
          <nvpair id="status-1-fc3" name="fail-count-p_drbd:0" value="INFINITY"/>
        </instance_attributes>
      </transient_attributes>
      <lrm id="1">
        <lrm_resources>
          <lrm_resource id="p_web_ip" type="IPaddr2" class="ocf" provider="heartbeat">
            <lrm_rsc_op id="p_web_ip_last_0" operation="start" rc-code="0" call-id="5"/>
            <lrm_rsc_op id="p_web_ip_monitor_10000" operation="monitor" rc-code="0" call-id="6"/>
          </lrm_resource>
          <lrm_resource id="p_drbd:0" type="drbd" class="ocf" provider="linbit">
            <lrm_rsc_op id="p_drbd_last_0" operation="promote" rc-code="0" call-id="9"/>
            <lrm_rsc_op id="p_drbd_monitor_15000" operation="monitor" rc-code="8" call-id="10"/>
          </lrm_resource>
          <lrm_resource id="p_old" type="Dummy" class="ocf" provider="heartbeat">
            <lrm_rsc_op id="p_old_last_0" operation="start" rc-code="0" call-id="3"/>
          </lrm_resource>
        </lrm_resources>
      </lrm>
    </node_state>
    <node_state id="2" uname="bravo" in_ccm="1700000000" crmd="1700000000" join="member" expected="member">
      <lrm id="2">
        <lrm_resources>
          <lrm_resource id="p_drbd:1" type="drbd" class="ocf" provider="linbit">
            <lrm_rsc_op id="p_drbd_last_0" operation="start" rc-code="0" call-id="4"/>
            <lrm_rsc_op id="p_drbd_monitor_30000" operation="monitor" rc-code="0" call-id="5"/>
          </lrm_resource>
          <lrm_resource id="p_web_ip" type="IPaddr2" class="ocf" provider="heartbeat">
            <lrm_rsc_op id="p_web_ip_last_0" operation="stop" rc-code="0" call-id="7"/>
          </lrm_resource>
        </lrm_resources>
      </lrm>
    </node_state>
    <node_state id="3" uname="charlie" in_ccm="true" crmd="online" join="pending" expected="member"/>
    <node_state id="4" uname="delta" in_ccm="false" crmd="offline" join="down" expected="down">
      <lrm id="4">
        <lrm_resources>
          <lrm_resource id="p_mail" type="postfix" class="systemd">
            <lrm_rsc_op id="p_mail_last_0" operation="stop" rc-code="0" call-id="2"/>
          </lrm_resource>
        </lrm_resources>
      </lrm>
    </node_state>
  </status>
</cib>`

func TestParseCibQueryConfiguration(t *testing.T) {
	q := ParseCibQuery(testCib)

	assert.Equal(t, map[string]string{"stonith-enabled": "false", "no-quorum-policy": "ignore"}, q.GlobalConfig())
	assert.Equal(t, "200", q.RscDefaults()["resource-stickiness"])
	assert.Equal(t, "60s", q.OpDefaults()["timeout"])

	assert.Equal(t, []string{"p_drbd", "p_mail", "p_ping", "p_web_ip", "p_web_srv"}, q.Resources())
	assert.Equal(t, map[string]string{"ip": "10.0.0.100", "cidr_netmask": "24"}, q.Parameters("p_web_ip"))
	assert.Equal(t, "p_web_ip-cidr", q.ParameterNvpairID("p_web_ip", "cidr_netmask"))
	assert.Equal(t, "Started", q.MetaAttributes("g_web")["target-role"])
	assert.Equal(t, "g_web-meta", q.MetaAttributesID("g_web"))
	assert.Equal(t, []string{"monitor", "start"}, q.Operations("p_web_ip"))
	assert.Equal(t, map[string]string{"interval": "10s", "timeout": "20s"}, q.Operation("p_web_ip", "monitor"))
	assert.Equal(t, "Master", q.Operation("p_drbd", "monitor")["role"], "first monitor wins")

	ra, ok := q.ResourceAgent("p_web_ip")
	require.True(t, ok)
	assert.Equal(t, "ocf:heartbeat:IPaddr2", ra.String())
	ra, _ = q.ResourceAgent("p_mail")
	assert.Equal(t, "systemd:postfix", ra.String())

	assert.Equal(t, []string{"g_web", "ms_drbd", "cl_ping", "p_mail"}, q.GroupMembers(GroupNone))
	assert.Equal(t, []string{"p_web_ip", "p_web_srv"}, q.GroupMembers("g_web"))
	assert.Empty(t, q.GroupMembers("ms_drbd"), "clones are not groups")
	rsc, ok := q.CloneResource("ms_drbd")
	assert.True(t, ok)
	assert.Equal(t, "p_drbd", rsc)
	assert.True(t, q.IsMaster("ms_drbd"))
	assert.False(t, q.IsMaster("cl_ping"))

	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, q.Nodes())
	assert.Equal(t, "1", q.NodeID("alpha"))
	assert.Equal(t, "off", q.NodeParameter("alpha", "standby"))
	assert.Equal(t, "bravo", q.DC())
}

func TestParseCibQueryConstraints(t *testing.T) {
	q := ParseCibQuery(testCib)

	col, ok := q.Colocation("co_web_drbd")
	require.True(t, ok)
	assert.Equal(t, Colocation{ID: "co_web_drbd", Rsc: "g_web", WithRsc: "ms_drbd", Score: "INFINITY", WithRscRole: "Master"}, col)
	assert.Equal(t, []string{"co_web_drbd"}, q.ColocationIDs("ms_drbd"))

	ord, ok := q.Order("o_drbd_web")
	require.True(t, ok)
	assert.Equal(t, "promote", ord.FirstAction)
	assert.Equal(t, []string{"o_drbd_web", "o_set"}, q.OrderIDs("g_web"))
	assert.Equal(t, []string{"o_set"}, q.OrderIDs("p_mail"))
	_, ok = q.Order("o_set")
	assert.False(t, ok, "set constraints only have resource sets")

	sets := q.ResourceSets("o_set")
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"p_ping", "p_mail"}, sets[0].Resources)
	assert.Equal(t, "false", sets[0].Sequential)

	assert.ElementsMatch(t, []Connection{
		{ConstraintID: "co_web_drbd", Kind: ConnectionColocation, Rsc1: "g_web", Rsc2: "ms_drbd"},
		{ConstraintID: "o_drbd_web", Kind: ConnectionOrder, Rsc1: "ms_drbd", Rsc2: "g_web"},
		{ConstraintID: "o_set", Kind: ConnectionOrder, Rsc1: "p_ping", Rsc2: "g_web"},
		{ConstraintID: "o_set", Kind: ConnectionOrder, Rsc1: "p_mail", Rsc2: "g_web"},
	}, q.Connections())

	assert.Equal(t, &HostLocation{Score: "100"}, q.Location("g_web", "alpha"))
	assert.Equal(t, "lo_web_alpha", q.LocationID("g_web", "alpha"))
	assert.Equal(t, &HostLocation{Score: "-INFINITY", Op: "ne", Role: "Started"}, q.Location("g_web", "charlie"))
	assert.Equal(t, "lo_web_rule", q.LocationID("g_web", "charlie"))
	assert.Nil(t, q.Location("g_web", "bravo"))
	assert.Equal(t, &HostLocation{Score: "-INFINITY", Op: "not_defined"}, q.PingLocation("g_web"))
	assert.Equal(t, []string{"lo_web_alpha", "lo_web_rule", "lo_web_ping"}, q.LocationIDs("g_web"))

	// returned locations are copies
	q.Location("g_web", "alpha").Score = "0"
	assert.Equal(t, "100", q.Location("g_web", "alpha").Score)
}

func TestParseCibQueryStatus(t *testing.T) {
	q := ParseCibQuery(testCib)

	tests := []struct {
		node                    string
		online, pending, fenced bool
	}{
		{node: "alpha", online: true},
		{node: "bravo", online: true},
		{node: "charlie", pending: true},
		{node: "delta", fenced: true},
	}
	for _, tt := range tests {
		t.Run(tt.node, func(t *testing.T) {
			assert.Equal(t, tt.online, q.IsOnline(tt.node), "online")
			assert.Equal(t, tt.pending, q.IsPending(tt.node), "pending")
			assert.Equal(t, tt.fenced, q.IsFenced(tt.node), "fenced")
		})
	}

	assert.Equal(t, "3", q.FailCount("alpha", "p_web_srv"))
	assert.Equal(t, Infinity, q.FailCount("alpha", "p_drbd"))
	assert.Equal(t, "", q.FailCount("bravo", "p_web_srv"))
	assert.Equal(t, "1000", q.PingCount("alpha"))

	p, ok := q.Placement("p_web_ip")
	require.True(t, ok)
	assert.Equal(t, Placement{Running: []string{"alpha"}}, p)

	p, ok = q.Placement("p_drbd")
	require.True(t, ok)
	assert.Equal(t, Placement{Running: []string{"alpha", "bravo"}, Master: []string{"alpha"}, Slave: []string{"bravo"}}, p)

	_, ok = q.Placement("p_mail")
	assert.False(t, ok)

	assert.True(t, q.IsOrphaned("p_old"))
	_, ok = q.Placement("p_old")
	assert.True(t, ok, "orphans are kept in advanced mode")
	_, ok = parseCibQuery(testCib, false).Placement("p_old")
	assert.False(t, ok)
}

func TestParseCibQueryBroken(t *testing.T) {
	for _, in := range []string{"", "not xml <", "<crm_mon/>"} {
		q := ParseCibQuery(in)
		require.NotNil(t, q, in)
		assert.Empty(t, q.Resources(), in)
		assert.Empty(t, q.DC(), in)
	}
}

func TestParseCibQueryMultipleDocuments(t *testing.T) {
	q := ParseCibQuery(`<?xml version="1.0"?><crm_mon/><?xml version="1.0"?>` + testCib[len(`<?xml version="1.0" ?>`):])
	assert.Equal(t, "bravo", q.DC())
}

func TestPlacementOutsidePromotableClone(t *testing.T) {
	q := ParseCibQuery(`<cib><status><node_state uname="alpha" in_ccm="true" crmd="online" join="member">
		<lrm><lrm_resources>
			<lrm_resource id="p_x">
				<lrm_rsc_op operation="monitor" rc-code="8" call-id="7"/>
			</lrm_resource>
		</lrm_resources></lrm></node_state></status></cib>`)
	p, ok := q.Placement("p_x")
	require.True(t, ok)
	assert.Equal(t, []string{"alpha"}, p.Running)
	assert.Empty(t, p.Master)
	assert.Empty(t, p.Slave)
}

func TestLrmRcCode(t *testing.T) {
	doc := xmltree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<r><lrm_rsc_op operation="start" rc-code="7"/><lrm_rsc_op operation="stop"/></r>`))
	ops := doc.Root().SelectElements("lrm_rsc_op")

	rc, err := lrmRcCode(ops[0])
	require.NoError(t, err)
	assert.Equal(t, ocfNotRunning, rc)

	_, err = lrmRcCode(ops[1])
	assert.ErrorContains(t, err, "stop operation")
}

func TestIsMaster(t *testing.T) {
	tests := []struct {
		desc string
		ops  string
		want bool
	}{
		{desc: "monitor running master", ops: `<lrm_rsc_op operation="monitor" rc-code="8"/>`, want: true},
		{desc: "monitor running", ops: `<lrm_rsc_op operation="monitor" rc-code="0"/>`},
		{desc: "promoted", ops: `<lrm_rsc_op operation="promote" rc-code="0" call-id="4"/>`, want: true},
		{desc: "promoted then demoted", ops: `<lrm_rsc_op operation="promote" rc-code="0" call-id="4"/><lrm_rsc_op operation="demote" rc-code="0" call-id="6"/>`},
		{desc: "failed promote", ops: `<lrm_rsc_op operation="promote" rc-code="1" call-id="4"/>`},
		{desc: "unparsable rc-code is skipped", ops: `<lrm_rsc_op operation="monitor" rc-code="x"/><lrm_rsc_op operation="promote" rc-code="0" call-id="2"/>`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			doc := xmltree.NewDocument()
			require.NoError(t, doc.ReadFromString(`<lrm_resource id="p_x">`+tt.ops+`</lrm_resource>`))
			assert.Equal(t, tt.want, isMaster("p_x", doc.Root()))
		})
	}
}
