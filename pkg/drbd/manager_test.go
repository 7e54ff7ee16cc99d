package drbd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport/fake"
)

const cleanConfig = `<config>
	<resource name="r2">
		<host name="alpha"><volume vnr="0"><device minor="2"/><disk>/dev/sdf</disk><meta-disk>internal</meta-disk></volume></host>
	</resource>
</config>`

func TestUnknownSectionsAreSticky(t *testing.T) {
	m := NewManager()
	m.SetSchema(testSchema(t))
	assert.False(t, m.IsDrbdDisabled())

	report, err := m.UpdateConfig(dumpXML)
	require.NoError(t, err)
	assert.NotEmpty(t, report.UnknownSections)
	assert.True(t, m.HasUnknownSections())
	assert.True(t, m.IsDrbdDisabled())

	report, err = m.UpdateConfig(cleanConfig)
	require.NoError(t, err)
	assert.Empty(t, report.UnknownSections)
	assert.True(t, m.IsDrbdDisabled(), "flag survives a clean parse")
	assert.Equal(t, []string{"r2"}, m.Topology().Resources())

	m.SetAdvancedMode(true)
	assert.False(t, m.IsDrbdDisabled())
	assert.True(t, m.HasUnknownSections())
}

func TestUpdateConfigKeepsTopologyOnError(t *testing.T) {
	m := NewManager()
	_, err := m.UpdateConfig(cleanConfig)
	require.NoError(t, err)
	old := m.Topology()

	_, err = m.UpdateConfig(`<config><resource name=></config>`)
	assert.Error(t, err)
	assert.Same(t, old, m.Topology())
}

func TestRemoveResource(t *testing.T) {
	m := NewManager()
	_, err := m.UpdateConfig(dumpXML)
	require.NoError(t, err)
	old := m.Topology()

	m.RemoveResource("r1")
	assert.Equal(t, []string{"r0"}, m.Topology().Resources())
	assert.Equal(t, []string{"r0", "r1"}, old.Resources())
}

func TestFetchSchemaAndConfig(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(
		fake.Response{Match: "xml-help disk-options", Output: xmlHelp},
		fake.Response{Match: "xml-help", Err: errors.New("unknown command")},
		fake.Response{Match: "dump-xml", Output: cleanConfig},
	)

	m := NewManager()
	ctx := context.Background()
	require.NoError(t, m.FetchSchema(ctx, exec, "alpha", SchemaContext{HostNames: []string{"alpha"}}))
	assert.Equal(t, TypeNumeric, m.Schema().ParamType("c-max-rate"))

	_, err := m.FetchConfig(ctx, exec, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, m.Topology().Resources())

	empty := &fake.Exec{}
	empty.Expect(fake.Response{Match: "", Err: errors.New("connection refused")})
	assert.Error(t, m.FetchSchema(ctx, empty, "alpha", SchemaContext{}))
	_, err = m.FetchConfig(ctx, empty, "alpha")
	assert.Error(t, err)
	assert.Equal(t, TypeNumeric, m.Schema().ParamType("c-max-rate"), "old schema is kept")
}

func TestStartEvents(t *testing.T) {
	exec := &fake.Exec{}
	exec.Expect(fake.Response{Match: "events", Lines: []string{
		"1 ST 1 { cs:Connected ro:Primary/Secondary ds:UpToDate/UpToDate }",
		"2 ST 1 { cs:Connected ro:Primary/Secondary ds:UpToDate/UpToDate }",
		"3 UH 1 split-brain",
	}})

	m := NewManager()
	h := host.New("alpha")
	var changes atomic.Int32

	started, err := m.StartEvents(context.Background(), exec, h, func() { changes.Add(1) })
	require.NoError(t, err)
	assert.True(t, started)
	assert.Eventually(t, func() bool { return changes.Load() == 2 }, time.Second, 5*time.Millisecond)

	s, ok := h.DrbdDevice("/dev/drbd1")
	require.True(t, ok)
	assert.Equal(t, "Connected", s.ConnectionState)
	assert.Contains(t, exec.Calls()[0].Command, "/dev/drbd0 events")

	h.StopDrbdEvents()
	assert.False(t, h.DrbdEventsRunning())
}
