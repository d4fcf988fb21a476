package topo

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device types that require VLAN sub-interfaces on injected ports.
const (
	BackendTorType  = "BackEndToRRouter"
	BackendLeafType = "BackEndLeafRouter"
)

// Sub-interface defaults for back-end router topologies.
const (
	DefaultSubIfaceSeparator = "."
	DefaultSubIfaceVlanID    = "10"
)

// VM describes one emulated neighbor: which device slot it occupies relative
// to vm_base and which front-panel vlans it terminates.
type VM struct {
	VMOffset int       `yaml:"vm_offset"`
	Vlans    []PortRef `yaml:"vlans"`
}

// VMLink is a direct VM-to-VM wire between two VM ports. UseOVS selects an
// OVS bridge with explicit cross flows instead of a plain learning bridge.
type VMLink struct {
	StartVMOffset  int  `yaml:"start_vm_offset"`
	StartVMPortIdx int  `yaml:"start_vm_port_idx"`
	EndVMOffset    int  `yaml:"end_vm_offset"`
	EndVMPortIdx   int  `yaml:"end_vm_port_idx"`
	UseOVS         bool `yaml:"use_ovs"`
}

// OVSLink is a VM-to-VM wire carried over an OVS bridge which also injects
// the member vlans into the PTF container.
type OVSLink struct {
	StartVMOffset  int       `yaml:"start_vm_offset"`
	StartVMPortIdx int       `yaml:"start_vm_port_idx"`
	EndVMOffset    int       `yaml:"end_vm_offset"`
	EndVMPortIdx   int       `yaml:"end_vm_port_idx"`
	Vlans          []PortRef `yaml:"vlans"`
}

// HostPort is one host-facing interface. Single-leg ports connect one DUT
// port; dual-leg ports (dual-ToR) connect the same logical host interface to
// one port on each ToR.
//
// Wire forms: a bare integer, a "<dut>.<vlan>@<ptf>" string, or a
// comma-separated pair of those strings.
type HostPort struct {
	Legs []PortRef
}

// Dual reports whether this host port has legs to two DUTs.
func (h HostPort) Dual() bool { return len(h.Legs) > 1 }

func (h HostPort) String() string {
	parts := make([]string, len(h.Legs))
	for i, leg := range h.Legs {
		parts[i] = leg.String()
	}
	return strings.Join(parts, ",")
}

// UnmarshalYAML accepts the integer, string, and comma-pair forms.
func (h *HostPort) UnmarshalYAML(node *yaml.Node) error {
	var asInt int
	if err := node.Decode(&asInt); err == nil {
		if asInt < 0 {
			return fmt.Errorf("host interface must be a positive integer, got %d", asInt)
		}
		h.Legs = []PortRef{PortRefFromInt(asInt)}
		return nil
	}
	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("host interface must be an integer or a string")
	}
	for _, part := range strings.Split(asString, ",") {
		ref, err := ParsePortRef(strings.TrimSpace(part))
		if err != nil {
			return err
		}
		h.Legs = append(h.Legs, ref)
	}
	return nil
}

// VlanConfig names the vlan membership map of a back-end DUT.
type VlanConfig struct {
	ID    int   `yaml:"id"`
	Intfs []int `yaml:"intfs"`
}

// DUTConfig carries per-DUT topology knobs used by back-end router setups.
type DUTConfig struct {
	VlanConfigs          map[string]yaml.Node `yaml:"vlan_configs"`
	SubIfaceSeparator    string               `yaml:"sub_interface_separator"`
	defaultVlanConfigKey string
}

// Topology is the declarative description of one vm set: the VMs, their
// direct links, and the host-facing ports.
type Topology struct {
	VMs                        map[string]VM        `yaml:"VMs"`
	VMLinks                    map[string]VMLink    `yaml:"VM_LINKs"`
	OVSLinks                   map[string]OVSLink   `yaml:"OVS_LINKs"`
	HostInterfaces             []HostPort           `yaml:"host_interfaces"`
	DisabledHostInterfaces     []HostPort           `yaml:"disabled_host_interfaces"`
	HostInterfacesActiveActive []HostPort           `yaml:"host_interfaces_active_active"`
	DevicesInterconnect        map[string][]PortRef `yaml:"devices_interconnect_interfaces"`
	DUT                        *DUTConfig           `yaml:"DUT"`
}

// LoadTopology reads and parses a topology YAML file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	return &t, nil
}

// ActiveActive reports whether the host port belongs to the active-active
// subset of the topology.
func (t *Topology) ActiveActive(h HostPort) bool {
	want := h.String()
	for _, aa := range t.HostInterfacesActiveActive {
		if aa.String() == want {
			return true
		}
	}
	return false
}

// Disabled reports whether the host port is administratively disabled.
func (t *Topology) Disabled(h HostPort) bool {
	want := h.String()
	for _, d := range t.DisabledHostInterfaces {
		if d.String() == want {
			return true
		}
	}
	return false
}

// DefaultVlanIDs resolves the back-end DUT's default vlan config into a map
// of host interface index to vlan id string.
func (t *Topology) DefaultVlanIDs() (map[int]string, error) {
	if t.DUT == nil {
		return nil, fmt.Errorf("topology has no DUT section")
	}
	defNode, ok := t.DUT.VlanConfigs["default_vlan_config"]
	if !ok {
		return nil, fmt.Errorf("topology has no default vlan config")
	}
	var defName string
	if err := defNode.Decode(&defName); err != nil {
		return nil, fmt.Errorf("default_vlan_config should name a vlan config")
	}
	cfgNode, ok := t.DUT.VlanConfigs[defName]
	if !ok {
		return nil, fmt.Errorf("topology has no definition for default vlan config %s", defName)
	}
	var cfg map[string]VlanConfig
	if err := cfgNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse vlan config %s: %w", defName, err)
	}
	ids := make(map[int]string)
	for _, vlan := range cfg {
		for _, intf := range vlan.Intfs {
			ids[intf] = fmt.Sprintf("%d", vlan.ID)
		}
	}
	return ids, nil
}

// SubIfaceSeparator returns the DUT sub-interface separator, defaulted.
func (t *Topology) SubIfaceSeparator() string {
	if t.DUT != nil && t.DUT.SubIfaceSeparator != "" {
		return t.DUT.SubIfaceSeparator
	}
	return DefaultSubIfaceSeparator
}
