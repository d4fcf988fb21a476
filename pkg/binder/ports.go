package binder

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/fabric"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/util"
)

// addMgmtPortToDocker attaches the PTF container to the management bridge
// and configures its addressing.
func (b *Binder) addMgmtPortToDocker() error {
	if b.fab.IfaceNotExists(topo.MgmtPortName, b.fab.Docker()) {
		ext := fmt.Sprintf(topo.PTFMgmtIfTemplate, b.p.VMSetName)
		if err := b.fab.AddBrIfToDocker(b.p.MgmtBridge, ext, topo.MgmtPortName); err != nil {
			return err
		}
	}
	return b.fab.AddIPToDockerIf(topo.MgmtPortName, fabric.DockerAddrSpec{
		IPv4:    b.p.PTFMgmtIP,
		IPv6:    b.p.PTFMgmtIPv6,
		GWv4:    b.p.PTFMgmtGW,
		GWv6:    b.p.PTFMgmtGWv6,
		ExtraIP: b.p.PTFExtraMgmtIP,
	})
}

// addMgmtPortToNetns attaches the vm set netns to the management bridge. The
// netns shares the PTF management gateway.
func (b *Binder) addMgmtPortToNetns() error {
	if b.fab.IfaceNotExists(topo.MgmtPortName, b.fab.NetnsScope()) {
		ext := fmt.Sprintf(topo.NetnsMgmtIfTemplate, b.p.VMSetName)
		if err := b.fab.AddBrIfToNetns(b.p.MgmtBridge, ext, topo.MgmtPortName); err != nil {
			return err
		}
	}
	return b.fab.AddIPToNetnsIf(topo.MgmtPortName, b.p.NetnsMgmtIP, "", b.p.PTFMgmtGW, "")
}

// addBPPortToDocker attaches the PTF container to the vm set backplane
// bridge, addresses it, and disables TX checksum offload on it.
func (b *Binder) addBPPortToDocker() error {
	ext := fmt.Sprintf(topo.PTFBPIfTemplate, b.p.VMSetName)
	if err := b.fab.AddBrIfToDocker(b.m.BPBridge, ext, topo.BPPortName); err != nil {
		return err
	}
	if err := b.fab.AddIPToDockerIf(topo.BPPortName, fabric.DockerAddrSpec{
		IPv4: b.p.PTFBPIP,
		IPv6: b.p.PTFBPIPv6,
	}); err != nil {
		return err
	}
	return b.fab.DisableTxOffload(topo.BPPortName, b.fab.Docker())
}

// removePTFMgmtPort removes the management veth pair of the PTF container.
func (b *Binder) removePTFMgmtPort() error {
	ext := fmt.Sprintf(topo.PTFMgmtIfTemplate, b.p.VMSetName)
	tmp := topo.MgmtPortName + util.Fingerprint(ext, util.MaxIfaceLen-len(topo.MgmtPortName))
	return b.fab.RemoveVethFromDocker(ext, topo.MgmtPortName, tmp)
}

// removePTFBackplanePort removes the backplane veth pair of the PTF
// container.
func (b *Binder) removePTFBackplanePort() error {
	ext := fmt.Sprintf(topo.PTFBPIfTemplate, b.p.VMSetName)
	tmp := topo.BPPortName + util.Fingerprint(ext, util.MaxIfaceLen-len(topo.BPPortName))
	return b.fab.RemoveVethFromDocker(ext, topo.BPPortName, tmp)
}

// addInjectedFPPorts creates the injected veth pairs that mirror each VM's
// front-panel vlans into the PTF container. Back-end VMs get a tagged VLAN
// sub-interface on the container side.
func (b *Binder) addInjectedFPPorts() error {
	for _, hostname := range sortedKeys(b.m.InjectedFPPorts) {
		var sub *fabric.VlanSubIface
		if b.m.NeedsVlanSubIface(hostname) {
			sub = &fabric.VlanSubIface{
				Separator: b.m.SubIfaceSeparator(hostname),
				VlanID:    b.m.SubIfaceVlanID(hostname),
			}
		}
		for _, vlan := range b.m.InjectedFPPorts[hostname] {
			ext := topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex)
			intIf := fmt.Sprintf(topo.PTFFPIfaceTemplate, vlan.PTFIndex)
			if err := b.fab.AddVethToDocker(ext, intIf, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// addInjectedOVSPorts creates the injected veth pairs for vlans carried on
// VM-to-VM OVS links.
func (b *Binder) addInjectedOVSPorts() error {
	for _, vmName := range sortedKeys(b.m.InjectedOVSPorts) {
		for _, vlan := range b.m.InjectedOVSPorts[vmName] {
			ext := topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex)
			intIf := fmt.Sprintf(topo.PTFFPIfaceTemplate, vlan.PTFIndex)
			if err := b.fab.AddVethToDocker(ext, intIf, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// removeInjectedFPPorts removes the injected veth pairs. Sub-interface VMs
// are skipped: their container-side interface carries the vlan tag and goes
// away with the veth peer.
func (b *Binder) removeInjectedFPPorts() error {
	for _, hostname := range sortedKeys(b.m.InjectedFPPorts) {
		if b.m.NeedsVlanSubIface(hostname) {
			continue
		}
		for _, vlan := range b.m.InjectedFPPorts[hostname] {
			ext := topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex)
			intIf := fmt.Sprintf(topo.PTFFPIfaceTemplate, vlan.PTFIndex)
			tmp := intIf + util.Fingerprint(ext, util.MaxIfaceLen-len(intIf))
			if err := b.fab.RemoveVethFromDocker(ext, intIf, tmp); err != nil {
				return err
			}
		}
	}
	return nil
}
