package libvirt

import (
	"strings"
	"testing"
)

func testSpec() DomainSpec {
	return DomainSpec{
		Name:       "web01",
		MemoryMB:   4096,
		VCPUs:      2,
		Pool:       "thoth-vms",
		BootVolume: "web01_boot.qcow2",
		SeedVolume: "web01_cloudinit.iso",
		Network:    "default",
	}
}

func TestGenerateDomainXML(t *testing.T) {
	xml, err := GenerateDomainXML(testSpec())
	if err != nil {
		t.Fatalf("GenerateDomainXML failed: %v", err)
	}

	for _, want := range []string{
		`<domain type="kvm">`,
		`<name>web01</name>`,
		`<memory unit="MiB">4096</memory>`,
		`<vcpu placement="static">2</vcpu>`,
		`<source pool="thoth-vms" volume="web01_boot.qcow2"`,
		`<target dev="vda" bus="virtio"`,
		`<target dev="sda" bus="sata"`,
		`<source network="default"`,
		`autoport="yes"`,
		GuestAgentChannel,
		`<serial type="pty">`,
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("expected domain XML to contain %q\n%s", want, xml)
		}
	}
}

func TestGenerateDomainXML_NoSeed(t *testing.T) {
	spec := testSpec()
	spec.SeedVolume = ""

	xml, err := GenerateDomainXML(spec)
	if err != nil {
		t.Fatalf("GenerateDomainXML failed: %v", err)
	}
	if strings.Contains(xml, "cdrom") {
		t.Errorf("expected no cdrom without a seed volume\n%s", xml)
	}
}

func TestGenerateDomainXML_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DomainSpec)
	}{
		{"no name", func(s *DomainSpec) { s.Name = "" }},
		{"zero memory", func(s *DomainSpec) { s.MemoryMB = 0 }},
		{"zero vcpus", func(s *DomainSpec) { s.VCPUs = 0 }},
		{"no boot volume", func(s *DomainSpec) { s.BootVolume = "" }},
		{"no network", func(s *DomainSpec) { s.Network = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			if _, err := GenerateDomainXML(spec); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParseDomain_RoundTrip(t *testing.T) {
	xml, err := GenerateDomainXML(testSpec())
	if err != nil {
		t.Fatalf("GenerateDomainXML failed: %v", err)
	}

	d, err := ParseDomain(xml)
	if err != nil {
		t.Fatalf("ParseDomain failed: %v", err)
	}

	if d.Name != "web01" {
		t.Errorf("expected name web01, got %s", d.Name)
	}
	if d.MemoryKB != 4096*1024 {
		t.Errorf("expected %d KiB, got %d", 4096*1024, d.MemoryKB)
	}
	if d.VCPUs != 2 {
		t.Errorf("expected 2 vcpus, got %d", d.VCPUs)
	}
	if len(d.Disks) != 2 {
		t.Fatalf("expected 2 disks, got %d", len(d.Disks))
	}
	boot, ok := d.PrimaryDisk()
	if !ok {
		t.Fatal("expected a primary disk")
	}
	if boot.Target != "vda" || boot.Pool != "thoth-vms" || boot.Volume != "web01_boot.qcow2" {
		t.Errorf("unexpected primary disk: %+v", boot)
	}
	if d.Disks[1].Device != "cdrom" {
		t.Errorf("expected second disk to be the cdrom, got %+v", d.Disks[1])
	}
	if len(d.NICs) != 1 || d.NICs[0].Network != "default" {
		t.Errorf("unexpected NICs: %+v", d.NICs)
	}
	if d.VNCPort != 0 {
		t.Errorf("expected no assigned VNC port on generated XML, got %d", d.VNCPort)
	}
}

const liveXML = `<domain type='kvm' id='7'>
  <name>web01</name>
  <uuid>0f8d5e7a-1111-2222-3333-444455556666</uuid>
  <memory unit='KiB'>2097152</memory>
  <vcpu placement='static'>1</vcpu>
  <os><type arch='x86_64'>hvm</type></os>
  <devices>
    <disk type='file' device='disk'>
      <driver name='qemu' type='qcow2'/>
      <source file='/var/lib/libvirt/images/thoth/vms/web01_boot.qcow2'/>
      <target dev='vda' bus='virtio'/>
    </disk>
    <disk type='volume' device='disk'>
      <driver name='qemu' type='qcow2'/>
      <source pool='thoth-vms' volume='web01_data.qcow2'/>
      <target dev='vdb' bus='virtio'/>
    </disk>
    <disk type='volume' device='cdrom'>
      <source pool='thoth-vms' volume='web01_cloudinit.iso'/>
      <target dev='sda' bus='sata'/>
      <readonly/>
    </disk>
    <interface type='network'>
      <mac address='52:54:00:aa:bb:cc'/>
      <source network='default'/>
      <target dev='vnet3'/>
      <model type='virtio'/>
    </interface>
    <graphics type='vnc' port='5903' autoport='yes' listen='0.0.0.0'/>
  </devices>
</domain>`

func TestParseDomain_LiveXML(t *testing.T) {
	d, err := ParseDomain(liveXML)
	if err != nil {
		t.Fatalf("ParseDomain failed: %v", err)
	}
	if d.VNCPort != 5903 {
		t.Errorf("expected VNC port 5903, got %d", d.VNCPort)
	}
	if d.NICs[0].Target != "vnet3" || d.NICs[0].MAC != "52:54:00:aa:bb:cc" {
		t.Errorf("unexpected NIC: %+v", d.NICs[0])
	}
	if d.Disks[0].File != "/var/lib/libvirt/images/thoth/vms/web01_boot.qcow2" {
		t.Errorf("unexpected file disk: %+v", d.Disks[0])
	}
	if d.MemoryKB != 2097152 {
		t.Errorf("expected 2097152 KiB, got %d", d.MemoryKB)
	}
	if !strings.Contains(d.Summary(), "VNC: 0.0.0.0:5903") {
		t.Errorf("expected summary to mention VNC, got:\n%s", d.Summary())
	}
}

func TestParseDomain_Invalid(t *testing.T) {
	if _, err := ParseDomain("<not-xml"); err == nil {
		t.Fatal("expected error for malformed XML, got nil")
	}
}

func TestRewriteForClone(t *testing.T) {
	xml, err := RewriteForClone(liveXML, "web02", map[string]ClonedDisk{
		"vda": {Path: "/var/lib/libvirt/images/thoth/vms/web02_boot.qcow2"},
		"vdb": {Pool: "thoth-vms", Volume: "web02_data.qcow2"},
	})
	if err != nil {
		t.Fatalf("RewriteForClone failed: %v", err)
	}

	d, err := ParseDomain(xml)
	if err != nil {
		t.Fatalf("ParseDomain on clone failed: %v", err)
	}
	if d.Name != "web02" {
		t.Errorf("expected name web02, got %s", d.Name)
	}
	if d.UUID != "" {
		t.Errorf("expected UUID cleared, got %s", d.UUID)
	}
	if len(d.Disks) != 2 {
		t.Fatalf("expected cdrom dropped leaving 2 disks, got %+v", d.Disks)
	}
	if d.Disks[0].File != "/var/lib/libvirt/images/thoth/vms/web02_boot.qcow2" {
		t.Errorf("unexpected vda source: %+v", d.Disks[0])
	}
	if d.Disks[1].Volume != "web02_data.qcow2" {
		t.Errorf("unexpected vdb source: %+v", d.Disks[1])
	}
	if d.NICs[0].MAC != "" || d.NICs[0].Target != "" {
		t.Errorf("expected MAC and tap cleared, got %+v", d.NICs[0])
	}
	if d.VNCPort != 0 {
		t.Errorf("expected VNC port reset, got %d", d.VNCPort)
	}
	if strings.Contains(xml, "id=\"7\"") {
		t.Errorf("expected live domain id dropped\n%s", xml)
	}
}

func TestRewriteForClone_RequiresName(t *testing.T) {
	if _, err := RewriteForClone(liveXML, "", nil); err == nil {
		t.Fatal("expected error for empty clone name, got nil")
	}
}

func TestSnapshotXML(t *testing.T) {
	xml, err := GenerateSnapshotXML("clean", "before upgrade")
	if err != nil {
		t.Fatalf("GenerateSnapshotXML failed: %v", err)
	}
	if !strings.Contains(xml, "<name>clean</name>") || !strings.Contains(xml, "<description>before upgrade</description>") {
		t.Errorf("unexpected snapshot XML: %s", xml)
	}

	info, err := ParseSnapshotXML(`<domainsnapshot>
  <name>clean</name>
  <description>before upgrade</description>
  <state>running</state>
  <creationTime>1700000000</creationTime>
</domainsnapshot>`)
	if err != nil {
		t.Fatalf("ParseSnapshotXML failed: %v", err)
	}
	if info.Name != "clean" || info.Description != "before upgrade" || info.State != "running" {
		t.Errorf("unexpected snapshot info: %+v", info)
	}
	if info.CreationTime.Unix() != 1700000000 {
		t.Errorf("expected creation time 1700000000, got %d", info.CreationTime.Unix())
	}

	if _, err := GenerateSnapshotXML("", ""); err == nil {
		t.Error("expected error for empty snapshot name")
	}
	if _, err := ParseSnapshotXML(`<domainsnapshot><name>x</name><creationTime>soon</creationTime></domainsnapshot>`); err == nil {
		t.Error("expected error for non-numeric creationTime")
	}
}
