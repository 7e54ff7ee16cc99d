package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   Kind
		number string
		unit   string
	}{
		{name: "plain number", raw: "100", kind: KindString},
		{name: "with unit", raw: "100M", kind: KindUnit, number: "100", unit: "M"},
		{name: "seconds", raw: "5s", kind: KindUnit, number: "5", unit: "s"},
		{name: "negative", raw: "-1K", kind: KindUnit, number: "-1", unit: "K"},
		{name: "word", raw: "yes", kind: KindString},
		{name: "empty", raw: "", kind: KindString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Parse(tt.raw)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.raw, v.Raw())
			assert.Equal(t, tt.number, v.Number())
			assert.Equal(t, tt.unit, v.Unit())
		})
	}
}

func TestNothingSelected(t *testing.T) {
	assert.True(t, NothingSelected.IsNothingSelected())
	assert.True(t, NothingSelected.IsEmpty())
	assert.NotEmpty(t, NothingSelected.Display())
	assert.Equal(t, "", NothingSelected.Raw())
	assert.False(t, NothingSelected.Equal(String("")))

	m := map[string]Value{"after": NothingSelected}
	v, ok := m["after"]
	assert.True(t, ok)
	assert.True(t, v.IsNothingSelected())
}

func TestStringWithDisplay(t *testing.T) {
	v := StringWithDisplay("/usr/lib/drbd/crm-fence-peer.9.sh", "crm-fence-peer.9")
	assert.Equal(t, "crm-fence-peer.9", v.Display())
	assert.True(t, v.Equal(String("/usr/lib/drbd/crm-fence-peer.9.sh")))
	assert.Equal(t, "x", StringWithDisplay("x", "").Display())
}
