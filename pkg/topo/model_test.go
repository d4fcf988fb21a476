package topo

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

func testHosts() *Hosts {
	return &Hosts{
		VMNames: []string{"VM0100", "VM0101", "VM0102"},
		VMProperties: map[string]VMProperties{
			"ARISTA01T1": {DutType: "ToRRouter"},
		},
		DUTNames: []string{"dut-01"},
		DUTFPPorts: map[string]map[string]string{
			"dut-01": {"28": "Ethernet112", "29": "Ethernet116"},
		},
		MgmtBridge: "br1",
	}
}

func testModel(t *testing.T, topoYAML string, h *Hosts, p ModelParams) *Model {
	t.Helper()
	var topo Topology
	if err := yaml.Unmarshal([]byte(topoYAML), &topo); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, err := NewModel(&topo, h, p)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestNewModelResolvesVMs(t *testing.T) {
	m := testModel(t, t0TopoYAML, testHosts(), ModelParams{
		VMSetName: "vms1-1", VMBase: "VM0100", FPMTU: 9216, MaxFPNum: 4,
	})
	if m.VMBaseIndex != 0 {
		t.Errorf("vm base index = %d", m.VMBaseIndex)
	}
	if len(m.VMs) != 2 {
		t.Fatalf("expected both VMs, got %v", m.VMs)
	}
	name, err := m.VMName("ARISTA02T1")
	if err != nil {
		t.Fatalf("VMName: %v", err)
	}
	if name != "VM0101" {
		t.Errorf("VMName = %s, want VM0101", name)
	}
	if m.IsMultiDUT || m.IsCable {
		t.Errorf("single dut topo flagged multi=%v cable=%v", m.IsMultiDUT, m.IsCable)
	}
	if m.BPBridge != "br-b-vms1-1" {
		t.Errorf("backplane bridge = %s", m.BPBridge)
	}
	if m.Netns != "" {
		t.Errorf("unexpected netns %s", m.Netns)
	}
}

func TestNewModelUnknownVMBase(t *testing.T) {
	var topo Topology
	if err := yaml.Unmarshal([]byte(t0TopoYAML), &topo); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	_, err := NewModel(&topo, testHosts(), ModelParams{VMSetName: "vms1-1", VMBase: "VM9999"})
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewModelFiltersByAvailability(t *testing.T) {
	h := testHosts()
	h.VMNames = []string{"VM0100"}
	m := testModel(t, t0TopoYAML, h, ModelParams{VMSetName: "vms1-1", VMBase: "VM0100"})
	if len(m.VMs) != 1 {
		t.Fatalf("expected offset 1 filtered out, got %v", m.VMs)
	}
	if _, ok := m.VMs["ARISTA01T1"]; !ok {
		t.Error("ARISTA01T1 should survive filtering")
	}
}

func TestNewModelCurrentVMName(t *testing.T) {
	m := testModel(t, t0TopoYAML, testHosts(), ModelParams{
		VMSetName: "vms1-1", VMBase: "VM0100", CurrentVMName: "VM0101",
	})
	if len(m.VMs) != 1 {
		t.Fatalf("expected a single VM, got %v", m.VMs)
	}
	if _, ok := m.VMs["ARISTA02T1"]; !ok {
		t.Error("current vm name should select ARISTA02T1")
	}
}

func TestNewModelDualTor(t *testing.T) {
	h := testHosts()
	h.DUTNames = []string{"dut-01", "dut-02"}
	h.DUTFPPorts = map[string]map[string]string{
		"dut-01": {"25": "Ethernet100"},
		"dut-02": {"25": "Ethernet100"},
	}
	m := testModel(t, dualTorTopoYAML, h, ModelParams{VMSetName: "vms1-1", VMBase: "VM0100"})
	if !m.IsMultiDUT {
		t.Error("two duts should flag multi dut")
	}
	if m.IsCable {
		t.Error("topology with VMs is not a cable")
	}
	if m.Netns != "ns-vms1-1" {
		t.Errorf("netns = %s", m.Netns)
	}
	port, err := m.DUTFPPort(PortRef{DUTIndex: 1, VlanIndex: 25, PTFIndex: 29})
	if err != nil {
		t.Fatalf("DUTFPPort: %v", err)
	}
	if port != "Ethernet100" {
		t.Errorf("port = %s", port)
	}
}

func TestNewModelCable(t *testing.T) {
	h := testHosts()
	h.DUTNames = []string{"dut-01", "dut-02"}
	m := testModel(t, "host_interfaces: [\"0.1@1,1.1@1\"]", h, ModelParams{VMSetName: "vms1-1"})
	if !m.IsCable {
		t.Error("multi dut topo without VMs should be a cable")
	}
}

func TestNewModelBackendVlanIDs(t *testing.T) {
	h := testHosts()
	h.VMProperties = map[string]VMProperties{
		"VM1": {DutType: BackendTorType},
	}
	m := testModel(t, backendTopoYAML, h, ModelParams{VMSetName: "vms1-1"})
	if m.VlanIDs == nil {
		t.Fatal("backend tor should resolve vlan ids")
	}
	if m.VlanIDs[2] != "2000" {
		t.Errorf("vlan id for intf 2 = %s", m.VlanIDs[2])
	}
}

func TestSubIfaceDefaults(t *testing.T) {
	h := testHosts()
	h.VMProperties = map[string]VMProperties{
		"ARISTA01T1": {DeviceType: BackendLeafType},
		"ARISTA02T1": {DeviceType: "LeafRouter", SubIfaceSeparator: "_"},
	}
	m := testModel(t, t0TopoYAML, h, ModelParams{VMSetName: "vms1-1", VMBase: "VM0100"})
	if !m.NeedsVlanSubIface("ARISTA01T1") {
		t.Error("backend leaf should need a vlan sub-interface")
	}
	if m.NeedsVlanSubIface("ARISTA02T1") {
		t.Error("plain leaf should not need a vlan sub-interface")
	}
	if sep := m.SubIfaceSeparator("ARISTA01T1"); sep != "." {
		t.Errorf("separator = %q", sep)
	}
	if sep := m.SubIfaceSeparator("ARISTA02T1"); sep != "_" {
		t.Errorf("separator = %q", sep)
	}
	if id := m.SubIfaceVlanID("ARISTA01T1"); id != "10" {
		t.Errorf("vlan id = %q", id)
	}
}
