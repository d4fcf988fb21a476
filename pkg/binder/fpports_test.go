package binder

import (
	"testing"

	"github.com/testbed-tools/vmtopo/pkg/topo"
)

// linkParams describes two VMs joined by a direct link and an OVS link.
func linkParams() Params {
	p := testParams()
	p.Topo = &topo.Topology{
		VMs: map[string]topo.VM{
			"ARISTA01T1": {VMOffset: 0, Vlans: []topo.PortRef{topo.PortRefFromInt(0)}},
			"ARISTA02T1": {VMOffset: 1, Vlans: []topo.PortRef{topo.PortRefFromInt(1)}},
		},
		VMLinks: map[string]topo.VMLink{
			"LINK1": {StartVMOffset: 0, StartVMPortIdx: 1, EndVMOffset: 1, EndVMPortIdx: 1},
		},
		OVSLinks: map[string]topo.OVSLink{
			"OL1": {StartVMOffset: 0, StartVMPortIdx: 2, EndVMOffset: 1, EndVMPortIdx: 2,
				Vlans: []topo.PortRef{topo.PortRefFromInt(6)}},
		},
	}
	p.Hosts = &topo.Hosts{
		VMNames:  []string{"VM0100", "VM0101"},
		DUTNames: []string{"dut-01"},
		DUTFPPorts: map[string]map[string]string{
			"dut-01": {"0": "enp0s1", "1": "enp0s2"},
		},
	}
	return p
}

const vm0101OfctlShow = "OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddee01\n" +
	" 1(enp0s2): addr:aa:bb:cc:dd:ee:11\n" +
	" 2(inje-vms1-1-1): addr:aa:bb:cc:dd:ee:12\n" +
	" 3(VM0101-t0): addr:aa:bb:cc:dd:ee:13\n"

const ovsLinkOfctlShow = "OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddee02\n" +
	" 1(VM0100-t2): addr:aa:bb:cc:dd:ee:21\n" +
	" 2(inje-vms1-1-6): addr:aa:bb:cc:dd:ee:22\n" +
	" 3(VM0101-t2): addr:aa:bb:cc:dd:ee:23\n"

func TestBindVMLinksAndOVSLinks(t *testing.T) {
	b, sh := newTestBinder(t, linkParams())
	b.sysClassNet = writeSysClassNet(t, "br-VM0100-0", "br-VM0101-0")
	sh.Output["ovs-ofctl show br-VM0101-0"] = vm0101OfctlShow
	sh.Output["ovs-ofctl show br_ol1"] = ovsLinkOfctlShow

	if err := b.Bind(); err != nil {
		t.Fatal(err)
	}

	// Direct link on a learning bridge.
	for _, tap := range []string{"VM0100-t1", "VM0101-t1"} {
		if !sh.Issued("brctl addif br_link1 " + tap) {
			t.Errorf("tap %s not enrolled in the link bridge", tap)
		}
	}

	// OVS link bridge carries jumbo frames and full flow programming.
	if !sh.Issued("ovs-vsctl --may-exist add-br br_ol1") {
		t.Error("ovs link bridge not created")
	}
	if !sh.Issued("ifconfig br_ol1 mtu 9000") {
		t.Error("ovs link bridge mtu not set")
	}
	if got := sh.IssuedCount("ovs-ofctl add-flow br_ol1"); got != 28 {
		t.Errorf("issued %d add-flow commands on the link bridge, want 28", got)
	}

	// Both injected port sets reach the container.
	for _, inj := range []string{"inje-vms1-1-0", "inje-vms1-1-1", "inje-vms1-1-6"} {
		if !sh.Issued("ip link set " + inj + " up") {
			t.Errorf("injected port %s not brought up", inj)
		}
	}
}

func TestBindVMLinkOverOVS(t *testing.T) {
	p := linkParams()
	p.Topo.VMLinks["LINK1"] = topo.VMLink{
		StartVMOffset: 0, StartVMPortIdx: 1, EndVMOffset: 1, EndVMPortIdx: 1, UseOVS: true,
	}
	b, sh := newTestBinder(t, p)
	b.sysClassNet = writeSysClassNet(t, "br-VM0100-0", "br-VM0101-0")
	sh.Output["ovs-ofctl show br-VM0101-0"] = vm0101OfctlShow
	sh.Output["ovs-ofctl show br_ol1"] = ovsLinkOfctlShow
	sh.Output["ovs-ofctl show br_link1"] = "OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddee05\n" +
		" 1(VM0100-t1): addr:aa:bb:cc:dd:ee:51\n" +
		" 2(VM0101-t1): addr:aa:bb:cc:dd:ee:52\n"

	if err := b.Bind(); err != nil {
		t.Fatal(err)
	}

	if !sh.Issued("ovs-vsctl --may-exist add-br br_link1") {
		t.Error("ovs-backed link bridge not created")
	}
	if !sh.Issued("ovs-ofctl add-flow br_link1 table=0,in_port=1,action=output:2") {
		t.Error("link cross flow missing")
	}
	if sh.Issued("brctl addif br_link1") {
		t.Error("ovs-backed link must not use a learning bridge")
	}
}

func TestUnbindVMLink(t *testing.T) {
	b, sh := newTestBinder(t, linkParams())
	b.sysClassNet = writeSysClassNet(t, "br-VM0100-0", "br-VM0101-0")

	if err := b.Unbind(); err != nil {
		t.Fatal(err)
	}

	if !sh.Issued("brctl delbr br_link1") {
		t.Error("link bridge not removed")
	}
}

func TestUnbindVMLinkOverOVS(t *testing.T) {
	p := linkParams()
	p.Topo.VMLinks["LINK1"] = topo.VMLink{
		StartVMOffset: 0, StartVMPortIdx: 1, EndVMOffset: 1, EndVMPortIdx: 1, UseOVS: true,
	}
	b, sh := newTestBinder(t, p)
	b.sysClassNet = writeSysClassNet(t, "br-VM0100-0", "br-VM0101-0")
	sh.Output["ovs-vsctl list-ports br_link1"] = "VM0100-t1\nVM0101-t1\n"

	if err := b.Unbind(); err != nil {
		t.Fatal(err)
	}

	for _, tap := range []string{"VM0100-t1", "VM0101-t1"} {
		if !sh.Issued("ovs-vsctl --if-exists del-port br_link1 " + tap) {
			t.Errorf("tap %s not removed from the ovs link bridge", tap)
		}
	}
	if !sh.Issued("ovs-vsctl --if-exists del-br br_link1") {
		t.Error("ovs link bridge not destroyed")
	}
	if sh.Issued("brctl delbr br_link1") {
		t.Error("ovs-backed link must not be removed as a learning bridge")
	}
}

func TestBindSkipsDUTWithoutFPPorts(t *testing.T) {
	p := testParams()
	p.Hosts.DUTFPPorts = map[string]map[string]string{"dut-01": {}}
	p.Topo.HostInterfaces = nil
	b, sh := newTestBinder(t, p)

	if err := b.Bind(); err != nil {
		t.Fatal(err)
	}

	if sh.Issued("ovs-ofctl add-flow br-VM0100-0") {
		t.Error("fp bridge programmed for a DUT without front-panel ports")
	}
}
