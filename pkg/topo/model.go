package topo

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// Model is a topology resolved against the server facts: VM names bound to
// offsets, injected port maps extracted, and derived flags computed. It is
// the read-only input that fabric operations work from.
type Model struct {
	Topo  *Topology
	Hosts *Hosts

	VMSetName     string
	VMBase        string
	VMBaseIndex   int
	CurrentVMName string

	// VMs holds only the VMs this run operates on: filtered down to one
	// entry when CurrentVMName targets a single VM, and restricted to
	// offsets the server actually hosts otherwise.
	VMs map[string]VM

	VMLinks  map[string]VMLink
	OVSLinks map[string]OVSLink

	IsMultiDUT bool
	IsCable    bool

	// Netns is the vm set's network namespace; empty unless the topology
	// has active-active host interfaces.
	Netns    string
	MuxFacts MuxFacts

	// InjectedFPPorts maps a VM hostname to the front-panel vlans injected
	// into the PTF for it. InjectedOVSPorts does the same for OVS link
	// vlans, keyed by the resolved VM name.
	InjectedFPPorts  map[string][]PortRef
	InjectedOVSPorts map[string][]PortRef

	BPBridge string

	// VlanIDs maps host interface index to vlan id for back-end ToR
	// topologies; nil otherwise.
	VlanIDs map[int]string

	DutType string

	FPMTU    int
	MaxFPNum int
}

// ModelParams carries the inputs needed to resolve a Model.
type ModelParams struct {
	VMSetName     string
	VMBase        string
	CurrentVMName string
	FPMTU         int
	MaxFPNum      int
	MuxFacts      MuxFacts
}

// NewModel resolves a topology against the server facts.
func NewModel(t *Topology, h *Hosts, p ModelParams) (*Model, error) {
	m := &Model{
		Topo:          t,
		Hosts:         h,
		VMSetName:     p.VMSetName,
		VMBase:        p.VMBase,
		CurrentVMName: p.CurrentVMName,
		VMs:           map[string]VM{},
		VMLinks:       t.VMLinks,
		OVSLinks:      t.OVSLinks,
		MuxFacts:      p.MuxFacts,
		FPMTU:         p.FPMTU,
		MaxFPNum:      p.MaxFPNum,
	}
	if m.MuxFacts == nil {
		m.MuxFacts = MuxFacts{}
	}

	if len(t.VMs) > 0 {
		idx := -1
		for i, name := range h.VMNames {
			if name == p.VMBase {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("vm base %q should be present in current vm names %v: %w",
				p.VMBase, h.VMNames, util.ErrInvalidConfig)
		}
		m.VMBaseIndex = idx

		if p.CurrentVMName != "" {
			for hostname, vm := range t.VMs {
				off := m.VMBaseIndex + vm.VMOffset
				if off < len(h.VMNames) && h.VMNames[off] == p.CurrentVMName {
					m.VMs[hostname] = vm
					break
				}
			}
		} else {
			for hostname, vm := range t.VMs {
				if m.VMBaseIndex+vm.VMOffset < len(h.VMNames) {
					m.VMs[hostname] = vm
				}
			}
		}
	}

	m.IsMultiDUT = len(h.DUTNames) > 1
	m.IsCable = m.IsMultiDUT && t.VMs == nil

	if len(t.HostInterfacesActiveActive) > 0 {
		m.Netns = NetnsName(p.VMSetName)
	}

	m.InjectedFPPorts = make(map[string][]PortRef, len(m.VMs))
	for hostname, vm := range m.VMs {
		m.InjectedFPPorts[hostname] = append([]PortRef(nil), vm.Vlans...)
	}

	m.InjectedOVSPorts = make(map[string][]PortRef, len(t.OVSLinks))
	for _, link := range t.OVSLinks {
		vmName, err := m.VMNameAt(link.StartVMOffset)
		if err != nil {
			return nil, err
		}
		m.InjectedOVSPorts[vmName] = append([]PortRef(nil), link.Vlans...)
	}

	m.BPBridge = fmt.Sprintf(RootBackBridgeTemplate, p.VMSetName)

	for _, props := range h.VMProperties {
		if props.DutType != "" {
			m.DutType = props.DutType
			break
		}
	}

	if m.DutType == BackendTorType {
		ids, err := t.DefaultVlanIDs()
		if err != nil {
			return nil, err
		}
		m.VlanIDs = ids
	}

	return m, nil
}

// VMNameAt resolves the server VM name at a vm_base relative offset.
func (m *Model) VMNameAt(offset int) (string, error) {
	idx := m.VMBaseIndex + offset
	if idx < 0 || idx >= len(m.Hosts.VMNames) {
		return "", fmt.Errorf("vm offset %d is outside the server's vm names: %w",
			offset, util.ErrInvalidConfig)
	}
	return m.Hosts.VMNames[idx], nil
}

// VMName resolves the server VM name backing a topology VM entry.
func (m *Model) VMName(hostname string) (string, error) {
	vm, ok := m.VMs[hostname]
	if !ok {
		return "", fmt.Errorf("vm %s: %w", hostname, util.ErrNotFound)
	}
	return m.VMNameAt(vm.VMOffset)
}

// VMProperties returns the inventory facts for a topology VM, zero valued
// when the inventory has none.
func (m *Model) VMProperties(hostname string) VMProperties {
	return m.Hosts.VMProperties[hostname]
}

// NeedsVlanSubIface reports whether injected ports of this VM carry a VLAN
// sub-interface into the PTF. Back-end routers tag their host traffic.
func (m *Model) NeedsVlanSubIface(hostname string) bool {
	dt := m.VMProperties(hostname).DeviceType
	return dt == BackendTorType || dt == BackendLeafType
}

// SubIfaceSeparator returns the sub-interface separator for a VM's injected
// ports, defaulted.
func (m *Model) SubIfaceSeparator(hostname string) string {
	if sep := m.VMProperties(hostname).SubIfaceSeparator; sep != "" {
		return sep
	}
	return DefaultSubIfaceSeparator
}

// SubIfaceVlanID returns the sub-interface vlan id for a VM's injected
// ports, defaulted.
func (m *Model) SubIfaceVlanID(hostname string) string {
	if id := m.VMProperties(hostname).SubIfaceVlanID; id != "" {
		return id
	}
	return DefaultSubIfaceVlanID
}

// DUTFPPort resolves the host interface backing a port reference.
func (m *Model) DUTFPPort(ref PortRef) (string, error) {
	if ref.DUTIndex < 0 || ref.DUTIndex >= len(m.Hosts.DUTNames) {
		return "", fmt.Errorf("dut index %d is outside duts_name: %w", ref.DUTIndex, util.ErrInvalidConfig)
	}
	dut := m.Hosts.DUTNames[ref.DUTIndex]
	port, ok := m.Hosts.FPPort(dut, ref.VlanIndex)
	if !ok {
		return "", fmt.Errorf("dut %s has no front-panel port %d: %w", dut, ref.VlanIndex, util.ErrNotFound)
	}
	return port, nil
}

// ActiveActive reports whether the host port is in the active-active set.
func (m *Model) ActiveActive(h HostPort) bool { return m.Topo.ActiveActive(h) }

// Disabled reports whether the host port is administratively disabled.
func (m *Model) Disabled(h HostPort) bool { return m.Topo.Disabled(h) }
