package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/config"
	"github.com/LINBIT/lcmc/pkg/crmcontrol"
	"github.com/LINBIT/lcmc/pkg/drbd"
	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport/fake"
	"github.com/LINBIT/lcmc/pkg/vm"
)

const testCib = `<cib dc-uuid="2">
<configuration>
<crm_config><cluster_property_set id="cib-bootstrap-options">
<nvpair id="cib-bootstrap-options-stonith-enabled" name="stonith-enabled" value="false"/>
</cluster_property_set></crm_config>
<rsc_defaults><meta_attributes id="rsc-options"><nvpair id="rsc-options-stickiness" name="resource-stickiness" value="100"/></meta_attributes></rsc_defaults>
<nodes><node id="1" uname="alpha"/><node id="2" uname="bravo"/></nodes>
<resources>
<primitive id="p_web_ip" class="ocf" provider="heartbeat" type="IPaddr2">
<instance_attributes id="p_web_ip-ia"><nvpair id="p_web_ip-ia-ip" name="ip" value="10.0.0.10"/></instance_attributes>
<meta_attributes id="p_web_ip-meta"><nvpair id="p_web_ip-meta-tr" name="target-role" value="Started"/></meta_attributes>
</primitive>
<primitive id="p_web" class="systemd" type="nginx"/>
</resources>
<constraints>
<rsc_colocation id="col_web" rsc="p_web" with-rsc="p_web_ip" score="INFINITY"/>
<rsc_order id="ord_web">
<resource_set id="ord_web-0"><resource_ref id="p_web_ip"/></resource_set>
<resource_set id="ord_web-1"><resource_ref id="p_web"/></resource_set>
</rsc_order>
</constraints>
</configuration>
<status>
<node_state id="1" uname="alpha" crmd="online" in_ccm="true" join="member" expected="member"/>
<node_state id="2" uname="bravo" crmd="online" in_ccm="true" join="pending" expected="member"/>
</status>
</cib>`

const testResStatus = `<resource_status>
<resource id="p_web_ip" running="running" managed="managed"><host>alpha</host></resource>
</resource_status>`

const testDrbdConfig = `<config>
<resource name="r0">
<host name="alpha"><volume vnr="0"><device minor="0"/><disk>/dev/sdb</disk><meta-disk>internal</meta-disk></volume><address family="ipv4" port="7789">10.0.0.1</address></host>
<host name="bravo"><volume vnr="0"><device minor="0"/><disk>/dev/sdb</disk><meta-disk>internal</meta-disk></volume><address family="ipv4" port="7789">10.0.0.2</address></host>
</resource>
</config>`

func statusFrame() string {
	return "---start---\n" +
		"res_status\nok\n" + testResStatus + "\n>>>res_status\n" +
		"cibadmin\nok\n" + testCib + "\n>>>cibadmin\n" +
		"---done---\n"
}

func testRegistry(t *testing.T) *cluster.Registry {
	t.Helper()
	cfg := config.Default()
	cfg.Clusters = []config.Cluster{{Name: "web", Hosts: []string{"alpha", "bravo"}}}
	reg := cluster.NewRegistry(cfg)

	c, ok := reg.Cluster("web")
	require.True(t, ok)
	require.True(t, c.Status.ParseStatus(statusFrame()))
	_, err := c.Drbd.UpdateConfig(testDrbdConfig)
	require.NoError(t, err)

	alpha, _ := c.Host("alpha")
	alpha.FirstStatus().Open()
	alpha.ParseInfo("daemon-info\ndrbd-loaded:yes\nlibvirt:yes\ncrypto-info\nsha1\n")
	alpha.UpdateDrbdDevice("/dev/drbd0", func(s *host.DrbdDeviceState) bool {
		s.Role = "Primary"
		s.ConnectionState = "Connected"
		return true
	})
	require.True(t, c.VMs("alpha").SetDomain("web1", `<domain type="kvm"><name>web1</name><memory unit="KiB">1048576</memory><devices/></domain>`))
	c.VMs("alpha").SetNetwork("default", `<network><name>default</name><bridge name="virbr0"/></network>`, true)
	return reg
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestAPIStatus(t *testing.T) {
	reg := testRegistry(t)
	h := Handler(reg, &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	decode(t, w, &st)
	assert.Equal(t, Status{Status: "ok", Ready: true}, st)

	reg.Add(cluster.New("db", []string{"charlie"}))
	w = serve(t, h, "GET", "/api/v1/status", "")
	decode(t, w, &st)
	assert.False(t, st.Ready)
}

func TestClusters(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/clusters", "")
	require.Equal(t, http.StatusOK, w.Code)
	var clusters []Cluster
	decode(t, w, &clusters)
	assert.Equal(t, []Cluster{{
		Name:        "web",
		Hosts:       []string{"alpha", "bravo"},
		DC:          "bravo",
		ControlHost: "bravo",
		StatusSeen:  true,
	}}, clusters)

	w = serve(t, h, "GET", "/api/v1/clusters/db", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var e Error
	decode(t, w, &e)
	assert.Equal(t, "Not Found", e.Code)
	assert.Contains(t, e.Message, "db")
}

func TestNodesAndConstraints(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/clusters/web/nodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var nodes []Node
	decode(t, w, &nodes)
	assert.Equal(t, []Node{
		{Name: "alpha", ID: "1", Online: true},
		{Name: "bravo", ID: "2", Pending: true, DC: true},
	}, nodes)

	w = serve(t, h, "GET", "/api/v1/clusters/web/constraints", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cons Constraints
	decode(t, w, &cons)
	assert.Equal(t, []crmcontrol.Connection{
		{ConstraintID: "col_web", Kind: crmcontrol.ConnectionColocation, Rsc1: "p_web", Rsc2: "p_web_ip"},
		{ConstraintID: "ord_web", Kind: crmcontrol.ConnectionOrder, Rsc1: "p_web_ip", Rsc2: "p_web"},
	}, cons.Connections)
	require.Contains(t, cons.Sets, "ord_web")
	assert.NotContains(t, cons.Sets, "col_web")
	sets := cons.Sets["ord_web"]
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"p_web"}, sets[1].Resources)
}

func TestClusterConfig(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/clusters/web/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg ClusterConfig
	decode(t, w, &cfg)
	assert.Equal(t, ClusterConfig{
		Properties:  map[string]string{"stonith-enabled": "false"},
		RscDefaults: map[string]string{"resource-stickiness": "100"},
		OpDefaults:  map[string]string{},
	}, cfg)

	w = serve(t, h, "GET", "/api/v1/clusters/db/config", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResources(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/clusters/web/resources", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resources []Resource
	decode(t, w, &resources)
	require.Len(t, resources, 2)
	assert.Equal(t, "p_web", resources[0].ID)
	assert.Equal(t, "p_web_ip", resources[1].ID)
	assert.Equal(t, "ocf:heartbeat:IPaddr2", resources[1].Agent)
	assert.Equal(t, []string{"alpha"}, resources[1].Status.Running)
	assert.Equal(t, map[string]string{"ip": "10.0.0.10"}, resources[1].Parameters)
	assert.Equal(t, "Started", resources[1].Meta["target-role"])

	w = serve(t, h, "GET", "/api/v1/clusters/web/resources/p_web_ip?mode=test", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res Resource
	decode(t, w, &res)
	assert.Equal(t, "test", res.Mode)
	assert.Equal(t, []string{"alpha"}, res.Status.Running, "no dry-run yet, live placement")

	w = serve(t, h, "GET", "/api/v1/clusters/web/resources/p_web_ip?mode=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(t, h, "GET", "/api/v1/clusters/web/resources/p_nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceTargetRole(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Match: "--replace"},
		fake.Response{Match: "cibadmin --query", Output: testCib},
	)
	h := Handler(testRegistry(t), exec)

	w := serve(t, h, "PUT", "/api/v1/clusters/web/resources/p_web_ip/target-role", `{"started": false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "bravo", calls[0].Host, "runs on the DC")
	assert.Contains(t, calls[1].Input, `value="Stopped"`)

	w = serve(t, h, "PUT", "/api/v1/clusters/web/resources/p_nope/target-role", `{"started": true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, "PUT", "/api/v1/clusters/web/resources/p_web_ip/target-role", `{"started": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResourceDelete(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Match: "--replace"},
		fake.Response{Match: "cibadmin --query", Output: testCib},
	)
	h := Handler(testRegistry(t), exec)

	w := serve(t, h, "DELETE", "/api/v1/clusters/web/resources/p_web_ip", "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].Input, `id="p_web_ip"`)
	assert.NotContains(t, calls[1].Input, "col_web")
	assert.NotContains(t, calls[1].Input, "ord_web")
	assert.Contains(t, calls[1].Input, `id="p_web"`)

	w = serve(t, h, "DELETE", "/api/v1/clusters/web/resources/p_nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceRunState(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(fake.Response{Match: "cibadmin --query", Output: `<cib><status>
<node_state uname="alpha"><lrm><lrm_resources>
<lrm_resource id="p_web_ip"><lrm_rsc_op operation="monitor" rc-code="7"/></lrm_resource>
</lrm_resources></lrm></node_state>
</status></cib>`})
	h := Handler(testRegistry(t), exec)

	w := serve(t, h, "GET", "/api/v1/clusters/web/resources/p_web_ip/run-state", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var state RunState
	decode(t, w, &state)
	assert.Equal(t, RunState{ID: "p_web_ip", Host: "bravo", State: "Stopped"}, state)

	w = serve(t, h, "GET", "/api/v1/clusters/db/resources/p_web_ip/run-state", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPtest(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(fake.Response{Match: "crm_simulate", Output: testCib})
	reg := testRegistry(t)
	h := Handler(reg, exec)

	w := serve(t, h, "POST", "/api/v1/clusters/web/ptest", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resources []Resource
	decode(t, w, &resources)
	require.Len(t, resources, 2)
	assert.Equal(t, "test", resources[0].Mode)

	c, _ := reg.Cluster("web")
	assert.NotNil(t, c.Status.PtestData())

	w = serve(t, h, "DELETE", "/api/v1/clusters/web/ptest", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, c.Status.PtestData())
}

func TestDrbd(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/clusters/web/drbd", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resources []struct {
		Name      string                                      `json:"name"`
		Hosts     []string                                    `json:"hosts"`
		Addresses map[string]drbd.Address                     `json:"addresses"`
		Devices   map[string]map[string]host.DrbdDeviceState `json:"device_states"`
	}
	decode(t, w, &resources)
	require.Len(t, resources, 1)
	assert.Equal(t, "r0", resources[0].Name)
	assert.Equal(t, []string{"alpha", "bravo"}, resources[0].Hosts)
	assert.Equal(t, "10.0.0.2", resources[0].Addresses["bravo"].IP)
	assert.Equal(t, "Primary", resources[0].Devices["alpha"]["/dev/drbd0"].Role)
	assert.NotContains(t, resources[0].Devices, "bravo")

	w = serve(t, h, "GET", "/api/v1/clusters/web/drbd/r1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, "GET", "/api/v1/clusters/web/drbd/schema", "")
	require.Equal(t, http.StatusOK, w.Code)
	var params []drbd.Param
	decode(t, w, &params)
	assert.NotEmpty(t, params)
}

func TestHosts(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/hosts/alpha", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info Host
	decode(t, w, &info)
	assert.Equal(t, "web", info.Cluster)
	assert.True(t, info.DrbdLoaded)
	assert.True(t, info.Daemons.LibvirtRunning)
	assert.Equal(t, []string{"sha1"}, info.CryptoModules)

	w = serve(t, h, "GET", "/api/v1/hosts/zulu", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVMs(t *testing.T) {
	h := Handler(testRegistry(t), &fake.Exec{})

	w := serve(t, h, "GET", "/api/v1/hosts/alpha/vms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var domains []vm.DomainData
	decode(t, w, &domains)
	require.Len(t, domains, 1)
	assert.Equal(t, "web1", domains[0].Name)
	assert.Equal(t, "1048576", domains[0].Params[vm.Memory])

	w = serve(t, h, "GET", "/api/v1/hosts/alpha/vms/web1/xml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<name>web1</name>")

	w = serve(t, h, "GET", "/api/v1/hosts/bravo/vms/web1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, "GET", "/api/v1/hosts/alpha/networks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var networks []vm.NetworkData
	decode(t, w, &networks)
	require.Len(t, networks, 1)
	assert.True(t, networks[0].Autostart)
}
