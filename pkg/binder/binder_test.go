package binder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/internal/testutil"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/util"
	"github.com/testbed-tools/vmtopo/pkg/worker"
)

const fpOfctlShow = "OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddeeff\n" +
	" 1(enp0s1): addr:aa:bb:cc:dd:ee:01\n" +
	" 2(inje-vms1-1-0): addr:aa:bb:cc:dd:ee:02\n" +
	" 3(VM0100-t0): addr:aa:bb:cc:dd:ee:03\n"

// testParams describes a single-DUT run: one VM terminating vlan 0, the
// host owning vlan 1.
func testParams() Params {
	return Params{
		VMSetName: "vms1-1",
		VMBase:    "VM0100",
		Topo: &topo.Topology{
			VMs: map[string]topo.VM{
				"ARISTA01T1": {VMOffset: 0, Vlans: []topo.PortRef{topo.PortRefFromInt(0)}},
			},
			HostInterfaces: []topo.HostPort{
				{Legs: []topo.PortRef{topo.PortRefFromInt(1)}},
			},
		},
		Hosts: &topo.Hosts{
			VMNames:  []string{"VM0100"},
			DUTNames: []string{"dut-01"},
			DUTFPPorts: map[string]map[string]string{
				"dut-01": {"0": "enp0s1", "1": "enp0s2"},
			},
		},
		MgmtBridge: "br1",
		PTFMgmtIP:  "10.250.0.102/24",
		PTFMgmtGW:  "10.250.0.1",
		PTFBPIP:    "10.10.246.254/24",
		FPMTU:      9216,
		MaxFPNum:   1,
	}
}

func writeSysClassNet(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestBinder(t *testing.T, p Params) (*Binder, *testutil.RecordingRunner) {
	t.Helper()
	sh := testutil.NewRunner()
	sh.Output["docker inspect --format {{.State.Running}} ptf_vms1-1"] = "true\n"
	sh.Output["docker inspect --format {{.State.Pid}} ptf_vms1-1"] = "4242\n"
	sh.Output["ovs-ofctl show br-VM0100-0"] = fpOfctlShow

	log := logrus.New()
	log.SetOutput(io.Discard)
	w := worker.New(false, 1)
	w.SetOutput(io.Discard)

	b := New(p, sh, log, w)
	b.sysClassNet = writeSysClassNet(t, "lo", "br-VM0100-0")
	return b, sh
}

func TestCreate(t *testing.T) {
	b, sh := newTestBinder(t, testParams())

	if err := b.Create(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"ovs-vsctl --may-exist add-br br-VM0100-0",
		"ifconfig br-VM0100-0 mtu 9216",
		"ifconfig br-VM0100-0 up",
	}
	if got := sh.Cmds(); !reflect.DeepEqual(got, want) {
		t.Errorf("create commands = %v, want %v", got, want)
	}
}

func TestCreateBridgeGrid(t *testing.T) {
	p := testParams()
	p.Hosts.VMNames = []string{"VM0100", "VM0101"}
	p.MaxFPNum = 2
	b, sh := newTestBinder(t, p)

	if err := b.Create(); err != nil {
		t.Fatal(err)
	}

	for _, br := range []string{"br-VM0100-0", "br-VM0100-1", "br-VM0101-0", "br-VM0101-1"} {
		if !sh.Issued("ovs-vsctl --may-exist add-br " + br) {
			t.Errorf("bridge %s not created", br)
		}
	}
}

func TestCreateVMOrder(t *testing.T) {
	p := testParams()
	p.Hosts.VMNames = []string{"VM0101", "VM0100"}
	b, sh := newTestBinder(t, p)

	if err := b.Create(); err != nil {
		t.Fatal(err)
	}

	var created []string
	for _, cmd := range sh.Cmds() {
		if rest, ok := strings.CutPrefix(cmd, "ovs-vsctl --may-exist add-br "); ok {
			created = append(created, rest)
		}
	}
	want := []string{"br-VM0100-0", "br-VM0101-0"}
	if !reflect.DeepEqual(created, want) {
		t.Errorf("bridges created in order %v, want %v", created, want)
	}
}

func TestDestroy(t *testing.T) {
	b, sh := newTestBinder(t, testParams())

	if err := b.Destroy(); err != nil {
		t.Fatal(err)
	}

	want := []string{"ovs-vsctl --if-exists del-br br-VM0100-0"}
	if got := sh.Cmds(); !reflect.DeepEqual(got, want) {
		t.Errorf("destroy commands = %v, want %v", got, want)
	}
}

func TestBindRejectsLongVMSetName(t *testing.T) {
	p := testParams()
	p.VMSetName = "vms1-long-name"
	b, _ := newTestBinder(t, p)

	if err := b.Bind(); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("bind with long vm set name = %v, want ErrInvalidConfig", err)
	}
}

func TestBindRequiresVMBase(t *testing.T) {
	p := testParams()
	p.VMBase = ""
	b, _ := newTestBinder(t, p)

	if err := b.Bind(); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("bind without vm base = %v, want ErrInvalidConfig", err)
	}
}

func TestBindRequiresRunningPTF(t *testing.T) {
	b, sh := newTestBinder(t, testParams())
	sh.Output["docker inspect --format {{.State.Running}} ptf_vms1-1"] = "false\n"

	if err := b.Bind(); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("bind without ptf container = %v, want ErrNotFound", err)
	}
}

func TestBindChecksBridgeCount(t *testing.T) {
	b, _ := newTestBinder(t, testParams())
	b.sysClassNet = writeSysClassNet(t, "lo")

	if err := b.Bind(); !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("bind without fp bridges = %v, want ErrValidationFailed", err)
	}
}

func TestUnbindSkipsBridgeCheck(t *testing.T) {
	b, sh := newTestBinder(t, testParams())
	b.sysClassNet = writeSysClassNet(t, "lo")
	sh.Output["ovs-vsctl list-ports br-VM0100-0"] = "enp0s1\ninje-vms1-1-0\nVM0100-t0\n"

	if err := b.Unbind(); err != nil {
		t.Fatal(err)
	}
}
