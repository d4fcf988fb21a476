package topo

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// VMProperties carries per-VM facts supplied by the testbed inventory.
type VMProperties struct {
	DutType           string `yaml:"dut_type"`
	DeviceType        string `yaml:"device_type"`
	SubIfaceSeparator string `yaml:"sub_interface_separator"`
	SubIfaceVlanID    string `yaml:"sub_interface_vlan_id"`
}

// Hosts is the environment side of a binding run: which VMs exist on this
// server, which DUTs the topology targets, and how the DUT front-panel ports
// map onto host interfaces.
type Hosts struct {
	VMNames          []string                     `yaml:"vm_names"`
	VMProperties     map[string]VMProperties      `yaml:"vm_properties"`
	DUTNames         []string                     `yaml:"duts_name"`
	DUTFPPorts       map[string]map[string]string `yaml:"duts_fp_ports"`
	DUTMgmtPorts     []string                     `yaml:"duts_mgmt_port"`
	DUTMidplanePorts map[string][]string          `yaml:"duts_midplane_ports"`
	DUTInbandPorts   map[string][]string          `yaml:"duts_inband_ports"`
	MgmtBridge       string                       `yaml:"mgmt_bridge"`
}

// LoadHosts reads and parses a hosts facts YAML file.
func LoadHosts(path string) (*Hosts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts: %w", err)
	}
	var h Hosts
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse hosts %s: %w", path, err)
	}
	return &h, nil
}

// SortedVMNames returns the server's VM names in sorted order, for
// deterministic iteration. vm_base offsets resolve against the declared
// VMNames order, not this one.
func (h *Hosts) SortedVMNames() []string {
	names := append([]string(nil), h.VMNames...)
	sort.Strings(names)
	return names
}

// FPPort resolves the host interface backing a DUT front-panel port index.
func (h *Hosts) FPPort(dutName string, vlanIndex int) (string, bool) {
	ports, ok := h.DUTFPPorts[dutName]
	if !ok {
		return "", false
	}
	port, ok := ports[fmt.Sprintf("%d", vlanIndex)]
	return port, ok
}
