package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/config"
)

func cibFrame(dcUUID string) string {
	return "---start---\ncibadmin\nok\n" +
		`<cib dc-uuid="` + dcUUID + `"><configuration><nodes>` +
		`<node id="1" uname="alpha"/><node id="2" uname="bravo"/><node id="9" uname="zulu"/>` +
		`</nodes></configuration><status/></cib>` +
		"\n>>>cibadmin\n---done---\n"
}

func TestControlHost(t *testing.T) {
	tests := []struct {
		desc  string
		frame string
		want  string
	}{
		{desc: "no status", want: "alpha"},
		{desc: "dc is ours", frame: cibFrame("2"), want: "bravo"},
		{desc: "dc is not ours", frame: cibFrame("9"), want: "alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			c := New("web", []string{"alpha", "bravo"})
			if tt.frame != "" {
				require.True(t, c.Status.ParseStatus(tt.frame))
			}
			assert.Equal(t, tt.want, c.ControlHost())
		})
	}
	assert.Empty(t, New("empty", nil).ControlHost())
}

func TestCluster(t *testing.T) {
	c := New("web", []string{"alpha", "bravo"})
	assert.Equal(t, []string{"alpha", "bravo"}, c.HostNames())

	h, ok := c.Host("bravo")
	require.True(t, ok)
	assert.Equal(t, "bravo", h.Name())
	_, ok = c.Host("charlie")
	assert.False(t, ok)

	require.NotNil(t, c.VMs("alpha"))
	assert.Equal(t, "alpha", c.VMs("alpha").Host())
	assert.Nil(t, c.VMs("charlie"))

	assert.True(t, h.ParseInfo("crypto-info\nsha1\nmd5\n"))
	sctx := c.SchemaContext()
	assert.Equal(t, []string{"alpha", "bravo"}, sctx.HostNames)
	assert.Equal(t, []string{"sha1", "md5"}, sctx.CryptoModules)

	c.SetAdvancedMode(true)
	assert.True(t, c.Drbd.AdvancedMode())
}

func TestRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.AdvancedMode = true
	cfg.Clusters = []config.Cluster{
		{Name: "web", Hosts: []string{"alpha", "bravo"}},
		{Name: "db", Hosts: []string{"charlie"}},
	}
	r := NewRegistry(cfg)

	var names []string
	for _, c := range r.Clusters() {
		names = append(names, c.Name)
		assert.True(t, c.Drbd.AdvancedMode())
	}
	assert.Equal(t, []string{"db", "web"}, names)

	c, h, ok := r.FindHost("bravo")
	require.True(t, ok)
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, "bravo", h.Name())
	_, _, ok = r.FindHost("delta")
	assert.False(t, ok)

	r.Add(New("db", []string{"delta"}))
	db, ok := r.Cluster("db")
	require.True(t, ok)
	assert.Equal(t, []string{"delta"}, db.HostNames())
}
