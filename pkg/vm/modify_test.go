package vm

import (
	"strings"
	"testing"

	xmltree "github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDoc(t *testing.T, xml string) *xmltree.Document {
	t.Helper()
	doc := xmltree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc
}

func reparse(t *testing.T, doc *xmltree.Document) (string, *DomainData) {
	t.Helper()
	out, err := doc.WriteToString()
	require.NoError(t, err)
	d, ok := ParseDomain("web1", out)
	require.True(t, ok)
	return out, d
}

func TestModifyXMLRoundTrip(t *testing.T) {
	doc := readDoc(t, testDomain)
	_, err := ModifyXML(doc, DeviceDisk, "vda", map[string]string{DiskDriverCache: "writeback"})
	require.NoError(t, err)

	out, d := reparse(t, doc)
	want := strings.Replace(testDomain, `cache="none"`, `cache="writeback"`, 1)
	assert.Equal(t, want, out)
	assert.Equal(t, 3, strings.Count(out, "<disk "))
	assert.Len(t, d.DeviceKeys(DeviceDisk), 3)
}

func TestModifyXMLDropsAddress(t *testing.T) {
	doc := readDoc(t, testDomain)
	_, err := ModifyXML(doc, DeviceDisk, "vdb", map[string]string{DiskDriverCache: "none"})
	require.NoError(t, err)

	out, d := reparse(t, doc)
	assert.NotContains(t, out, "<address")
	assert.Contains(t, out, "<shareable/>\n    </disk>")
	vdb, _ := d.Device(DeviceDisk, "vdb")
	assert.Equal(t, "none", vdb[DiskDriverCache])
}

func TestModifyXML(t *testing.T) {
	tests := []struct {
		desc   string
		key    string
		params map[string]string
		check  func(t *testing.T, d *DomainData)
	}{{
		desc:   "empty values remove attributes and empty tags",
		key:    "vda",
		params: map[string]string{DiskDriverName: "", DiskDriverType: "", DiskDriverCache: ""},
		check: func(t *testing.T, d *DomainData) {
			vda, _ := d.Device(DeviceDisk, "vda")
			assert.NotContains(t, vda, DiskDriverName)
			assert.NotContains(t, vda, DiskDriverCache)
			assert.Equal(t, "/var/lib/libvirt/images/web1.qcow2", vda[DiskSourceFile])
		},
	}, {
		desc:   "presence tag set",
		key:    "vda",
		params: map[string]string{DiskReadonly: True},
		check: func(t *testing.T, d *DomainData) {
			vda, _ := d.Device(DeviceDisk, "vda")
			assert.Equal(t, True, vda[DiskReadonly])
		},
	}, {
		desc:   "presence tag cleared",
		key:    "vdb",
		params: map[string]string{DiskShareable: ""},
		check: func(t *testing.T, d *DomainData) {
			vdb, _ := d.Device(DeviceDisk, "vdb")
			assert.NotContains(t, vdb, DiskShareable)
		},
	}, {
		desc:   "list shrinks",
		key:    "vdc",
		params: map[string]string{DiskSourceHostName: "mon1", DiskSourceHostPort: "6789"},
		check: func(t *testing.T, d *DomainData) {
			vdc, _ := d.Device(DeviceDisk, "vdc")
			assert.Equal(t, "mon1", vdc[DiskSourceHostName])
			assert.Equal(t, "6789", vdc[DiskSourceHostPort])
			assert.Equal(t, "pool/img", vdc[DiskSourceName])
		},
	}, {
		desc:   "list grows",
		key:    "vdc",
		params: map[string]string{DiskSourceHostName: "a,b,c", DiskSourceHostPort: "1,2,3"},
		check: func(t *testing.T, d *DomainData) {
			vdc, _ := d.Device(DeviceDisk, "vdc")
			assert.Equal(t, "a,b,c", vdc[DiskSourceHostName])
			assert.Equal(t, "1,2,3", vdc[DiskSourceHostPort])
		},
	}, {
		desc: "unknown key adds a device",
		key:  "vdd",
		params: map[string]string{
			DiskType:      "block",
			DiskDevice:    "disk",
			DiskSourceDev: "/dev/drbd1",
			DiskTargetDev: "vdd",
			DiskTargetBus: "virtio",
		},
		check: func(t *testing.T, d *DomainData) {
			assert.Equal(t, []string{"vda", "vdb", "vdc", "vdd"}, d.DeviceKeys(DeviceDisk))
			vdd, _ := d.Device(DeviceDisk, "vdd")
			assert.Equal(t, "/dev/drbd1", vdd[DiskSourceDev])
		},
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			doc := readDoc(t, testDomain)
			_, err := ModifyXML(doc, DeviceDisk, tt.key, tt.params)
			require.NoError(t, err)
			_, d := reparse(t, doc)
			tt.check(t, d)
		})
	}
}

func TestModifyXMLNewDeviceCarriesKey(t *testing.T) {
	tests := []struct {
		desc   string
		typ    DeviceType
		key    string
		params map[string]string
		want   string
	}{{
		desc:   "disk",
		typ:    DeviceDisk,
		key:    "vdd",
		params: map[string]string{DiskSourceDev: "/dev/drbd1", DiskTargetBus: "virtio"},
		want:   `<target dev="vdd" bus="virtio"/>`,
	}, {
		desc:   "serial",
		typ:    DeviceSerial,
		key:    "pty:1",
		params: map[string]string{CharSourcePath: "/dev/pts/5"},
		want:   `<target port="1"/>`,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			doc := readDoc(t, testDomain)
			before, _ := reparse(t, doc)
			_, err := ModifyXML(doc, tt.typ, tt.key, tt.params)
			require.NoError(t, err)
			_, err = ModifyXML(doc, tt.typ, tt.key, tt.params)
			require.NoError(t, err)

			out, d := reparse(t, doc)
			assert.Contains(t, out, tt.want)
			assert.Equal(t, strings.Count(before, "<"+string(tt.typ)+" ")+1, strings.Count(out, "<"+string(tt.typ)+" "))
			dev, ok := d.Device(tt.typ, tt.key)
			require.True(t, ok)
			for k, v := range tt.params {
				assert.Equal(t, v, dev[k], k)
			}
		})
	}
}

func TestModifyXMLOtherDevices(t *testing.T) {
	doc := readDoc(t, testDomain)
	_, err := ModifyXML(doc, DeviceInterface, "52:54:00:aa:bb:01", map[string]string{IfaceModelType: "e1000"})
	require.NoError(t, err)
	_, err = ModifyXML(doc, DeviceSerial, "pty:0", map[string]string{CharSourcePath: "/dev/pts/4"})
	require.NoError(t, err)

	_, d := reparse(t, doc)
	iface, _ := d.Device(DeviceInterface, "52:54:00:aa:bb:01")
	assert.Equal(t, "e1000", iface[IfaceModelType])
	serial, _ := d.Device(DeviceSerial, "pty:0")
	assert.Equal(t, "/dev/pts/4", serial[CharSourcePath])
}

func TestModifyXMLErrors(t *testing.T) {
	_, err := ModifyXML(readDoc(t, testDomain), DeviceType("hostdev"), "x", nil)
	assert.Error(t, err)
	_, err = ModifyXML(readDoc(t, testNetwork), DeviceDisk, "vda", nil)
	assert.ErrorIs(t, err, ErrNoDomain)
}

func TestRemoveDevice(t *testing.T) {
	doc := readDoc(t, testDomain)
	assert.True(t, RemoveDevice(doc, DeviceInterface, "52:54:00:aa:bb:01"))
	assert.False(t, RemoveDevice(doc, DeviceInterface, "52:54:00:aa:bb:01"))
	assert.False(t, RemoveDevice(doc, DeviceDisk, "vdz"))

	out, d := reparse(t, doc)
	assert.Empty(t, d.DeviceKeys(DeviceInterface))
	assert.NotContains(t, out, "<interface")
	assert.Contains(t, out, "<controller type=\"usb\" index=\"0\" model=\"qemu-xhci\"/>\n    <filesystem")
}

func TestModifyDomainOptions(t *testing.T) {
	doc := readDoc(t, testDomain)
	err := ModifyDomainOptions(doc, map[string]string{
		Memory:      "4194304",
		VCPU:        "4",
		Boot:        "network",
		Boot2:       "",
		CPUMatch:    "",
		CPUModel:    "",
		CPUVendor:   "",
		FeatureACPI: "",
		FeatureAPIC: True,
		FeaturePAE:  True,
		ClockOffset: "localtime",
	})
	require.NoError(t, err)

	out, d := reparse(t, doc)
	assert.Equal(t, "4194304", d.Param(Memory))
	assert.Contains(t, out, `<memory unit="KiB">4194304</memory>`)
	assert.Equal(t, "4", d.Param(VCPU))
	assert.Equal(t, "network", d.Param(Boot))
	assert.Empty(t, d.Param(Boot2))
	assert.NotContains(t, out, "<cpu")
	assert.Empty(t, d.Param(FeatureACPI))
	assert.Equal(t, True, d.Param(FeatureAPIC))
	assert.Equal(t, True, d.Param(FeaturePAE))
	assert.Contains(t, out, `<vmport state="off"/>`)
	assert.Equal(t, "localtime", d.Param(ClockOffset))
	// untouched
	assert.Equal(t, "1048576", d.Param(CurrentMemory))
	assert.Equal(t, "/usr/share/OVMF/OVMF_CODE.fd", d.Param(Loader))
}

func TestModifyDomainOptionsPartial(t *testing.T) {
	tests := []struct {
		desc   string
		params map[string]string
		want   map[string]string
	}{{
		desc:   "one feature keeps the others",
		params: map[string]string{FeaturePAE: True},
		want:   map[string]string{FeatureACPI: True, FeatureAPIC: True, FeaturePAE: True},
	}, {
		desc:   "cpu match keeps model and vendor",
		params: map[string]string{CPUMatch: "strict"},
		want:   map[string]string{CPUMatch: "strict", CPUModel: "Skylake-Client", CPUVendor: "Intel"},
	}, {
		desc:   "second boot device keeps the first",
		params: map[string]string{Boot2: "network"},
		want:   map[string]string{Boot: "hd", Boot2: "network"},
	}, {
		desc:   "empty value still removes",
		params: map[string]string{FeatureAPIC: ""},
		want:   map[string]string{FeatureACPI: True, FeatureAPIC: ""},
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			doc := readDoc(t, testDomain)
			require.NoError(t, ModifyDomainOptions(doc, tt.params))
			_, d := reparse(t, doc)
			for k, v := range tt.want {
				assert.Equal(t, v, d.Param(k), k)
			}
			// other groups are not touched
			assert.Equal(t, "utc", d.Param(ClockOffset))
		})
	}

	doc := readDoc(t, testDomain)
	require.NoError(t, ModifyDomainOptions(doc, map[string]string{FeatureACPI: True}))
	require.NoError(t, ModifyDomainOptions(doc, map[string]string{CPUMatch: "strict"}))
	require.NoError(t, ModifyDomainOptions(doc, map[string]string{Boot2: "network"}))
	_, d := reparse(t, doc)
	assert.Equal(t, "hd", d.Param(Boot))
	assert.Equal(t, "network", d.Param(Boot2))
	assert.Equal(t, "Skylake-Client", d.Param(CPUModel))
	assert.Equal(t, True, d.Param(FeatureAPIC))
}

func TestNewDomainXML(t *testing.T) {
	doc, err := NewDomainXML("db1", map[string]string{
		Memory:      "1048576",
		VCPU:        "2",
		Boot:        "hd",
		FeatureACPI: True,
		CPUMatch:    "exact",
		CPUModel:    "host",
	})
	require.NoError(t, err)
	_, err = ModifyXML(doc, DeviceDisk, "", map[string]string{
		DiskType:      "block",
		DiskSourceDev: "/dev/drbd7",
		DiskTargetDev: "vda",
	})
	require.NoError(t, err)

	out, err := doc.WriteToString()
	require.NoError(t, err)
	d, ok := ParseDomain("db1", out)
	require.True(t, ok)

	assert.Equal(t, "kvm", d.Param(DomainType))
	assert.Equal(t, "hvm", d.Param(OSType))
	assert.Equal(t, "1048576", d.Param(Memory))
	assert.Equal(t, "hd", d.Param(Boot))
	assert.Equal(t, True, d.Param(FeatureACPI))
	assert.Equal(t, "host", d.Param(CPUModel))
	_, err = uuid.Parse(d.Param(UUID))
	assert.NoError(t, err)
	assert.Equal(t, []string{"vda"}, d.DeviceKeys(DeviceDisk))

	_, err = NewDomainXML("", nil)
	assert.Error(t, err)
}
