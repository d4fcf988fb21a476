package fabric

import (
	"io"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/internal/testutil"
)

func newTestFabric() (*Fabric, *testutil.RecordingRunner) {
	sh := testutil.NewRunner()
	log := logrus.New()
	log.SetOutput(io.Discard)
	f := New(sh, log)
	f.VMSetName = "vms1-1"
	f.PID = "4242"
	f.Netns = "ns-vms1-1"
	return f, sh
}

func TestScoped(t *testing.T) {
	tests := []struct {
		name string
		sc   Scope
		want string
	}{
		{"host", Host, "ip link show"},
		{"docker", Scope{PID: "4242"}, "nsenter -t 4242 -n ip link show"},
		{"netns", Scope{Netns: "ns-vms1-1"}, "ip netns exec ns-vms1-1 ip link show"},
		{"pid wins", Scope{PID: "4242", Netns: "ns-vms1-1"}, "nsenter -t 4242 -n ip link show"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoped(tt.sc, "ip link show"); got != tt.want {
				t.Errorf("scoped() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIfaceExists(t *testing.T) {
	f, sh := newTestFabric()

	if !f.IfaceExists("eth0", Host) {
		t.Error("eth0 should exist by default")
	}
	if f.IfaceNotExists("eth0", Host) {
		t.Error("eth0 should not report absent")
	}

	sh.MarkAbsent("inje-vms1-1-0", "")
	if f.IfaceExists("inje-vms1-1-0", Host) {
		t.Error("marked interface should be absent")
	}
	if !f.IfaceNotExists("inje-vms1-1-0", Host) {
		t.Error("marked interface should report absent")
	}

	sh.MarkAbsent("eth1", "nsenter -t 4242 -n")
	if f.IfaceExists("eth1", f.Docker()) {
		t.Error("docker-scoped absence not honored")
	}
	if !f.IfaceExists("eth1", Host) {
		t.Error("host eth1 should be unaffected by docker-scoped absence")
	}
}

func TestIfaceUpDown(t *testing.T) {
	f, sh := newTestFabric()

	sh.Failing["ip link set br-gone up"] = true
	if err := f.IfaceUp("br-gone", Host); err != nil {
		t.Errorf("host IfaceUp should tolerate failure, got %v", err)
	}

	sh.Failing["nsenter -t 4242 -n ip link set eth0 down"] = true
	if err := f.IfaceDown("eth0", f.Docker()); err == nil {
		t.Error("docker IfaceDown should propagate failure")
	}
}

func TestIPExists(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["nsenter -t 4242 -n ip addr show dev mgmt"] =
		"4: mgmt: <UP> mtu 1500\n    inet 10.0.0.5/24 scope global mgmt\n"

	if !f.IPExists("mgmt", "10.0.0.5/24", f.Docker(), false) {
		t.Error("configured address not found")
	}
	if f.IPExists("mgmt", "10.0.0.9/24", f.Docker(), false) {
		t.Error("unconfigured address reported present")
	}
	if f.IPExists("mgmt", "", f.Docker(), false) {
		t.Error("empty address must not match")
	}
}

func TestRouteExists(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["ip netns exec ns-vms1-1 ip route show default"] = "default via 10.0.0.1 dev eth0\n"

	if !f.RouteExists("10.0.0.1", f.NetnsScope(), false) {
		t.Error("default route not found")
	}
	if f.RouteExists("10.0.0.2", f.NetnsScope(), false) {
		t.Error("absent gateway reported present")
	}
}

func TestBrctlShow(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["brctl show"] = "bridge name\tbridge id\t\tSTP enabled\tinterfaces\n" +
		"br-b-vms1-1\t\t8000.000000000000\tno\t\tVM0100-back\n" +
		"\t\t\t\t\t\tVM0101-back\n" +
		"br1\t\t8000.000000000000\tno\n"

	brToIfs, ifToBr := f.BrctlShow("")
	wantIfs := []string{"VM0100-back", "VM0101-back"}
	if !reflect.DeepEqual(brToIfs["br-b-vms1-1"], wantIfs) {
		t.Errorf("br-b-vms1-1 interfaces = %v, want %v", brToIfs["br-b-vms1-1"], wantIfs)
	}
	if len(brToIfs["br1"]) != 0 {
		t.Errorf("br1 should have no interfaces, got %v", brToIfs["br1"])
	}
	if ifToBr["VM0101-back"] != "br-b-vms1-1" {
		t.Errorf("VM0101-back bridge = %q", ifToBr["VM0101-back"])
	}
}

func TestBrctlShowFailure(t *testing.T) {
	f, sh := newTestFabric()
	sh.Failing["brctl show br-gone"] = true

	brToIfs, ifToBr := f.BrctlShow("br-gone")
	if len(brToIfs) != 0 || len(ifToBr) != 0 {
		t.Error("brctl failure should yield empty maps")
	}
}

func TestOVSBridgePorts(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["ovs-vsctl list-ports br-vms1-1-0"] = "enp0s1\ninje-vms1-1-0\nVM0100-t0\n"

	ports, err := f.OVSBridgePorts("br-vms1-1-0")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"enp0s1", "inje-vms1-1-0", "VM0100-t0"} {
		if !ports[want] {
			t.Errorf("port %s missing", want)
		}
	}
	if len(ports) != 3 {
		t.Errorf("got %d ports, want 3", len(ports))
	}

	// a missing bridge degrades to an empty set
	sh.Failing["ovs-vsctl list-ports br-gone"] = true
	ports, err = f.OVSBridgePorts("br-gone")
	if err != nil {
		t.Fatal(err)
	}
	if len(ports) != 0 {
		t.Errorf("missing bridge should have no ports, got %v", ports)
	}
}

func TestOVSBridgeByPort(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["ovs-vsctl port-to-br enp0s1"] = "br-vms1-1-0\n"
	sh.Failing["ovs-vsctl port-to-br unenrolled"] = true

	if got := f.OVSBridgeByPort("enp0s1"); got != "br-vms1-1-0" {
		t.Errorf("OVSBridgeByPort = %q", got)
	}
	if got := f.OVSBridgeByPort("unenrolled"); got != "" {
		t.Errorf("unenrolled port should map to empty bridge, got %q", got)
	}
}

func TestOVSPortBindings(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["ovs-ofctl show br-vms1-1-0"] = "OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddeeff\n" +
		" 1(enp0s1): addr:aa:bb:cc:dd:ee:01\n" +
		" 2(inje-vms1-1-0): addr:aa:bb:cc:dd:ee:02\n" +
		" 3(VM0100-t0): addr:aa:bb:cc:dd:ee:03\n" +
		" LOCAL(br-vms1-1-0): addr:aa:bb:cc:dd:ee:04\n"

	bindings, err := f.OVSPortBindings("br-vms1-1-0", []string{"enp0s1", "VM0100-t0"})
	if err != nil {
		t.Fatal(err)
	}
	if bindings["enp0s1"] != "1" || bindings["inje-vms1-1-0"] != "2" || bindings["VM0100-t0"] != "3" {
		t.Errorf("unexpected bindings %v", bindings)
	}
	if bindings["br-vms1-1-0"] != "LOCAL" {
		t.Errorf("LOCAL binding = %q", bindings["br-vms1-1-0"])
	}
}

func TestDisableTxOffload(t *testing.T) {
	f, sh := newTestFabric()
	if err := f.DisableTxOffload("mgmt", f.Docker()); err != nil {
		t.Fatal(err)
	}
	if !sh.Issued("nsenter -t 4242 -n ethtool -K mgmt tx off") {
		t.Errorf("ethtool command not issued, got %v", sh.Cmds())
	}
}
