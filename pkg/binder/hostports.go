package binder

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/pkg/fabric"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/worker"
)

// hostPortTask carries one host interface with its positional index; the
// index numbers the PTF interface when the topology gives no explicit "@ptf".
type hostPortTask struct {
	idx  int
	port topo.HostPort
}

func (b *Binder) hostPortTasks() []hostPortTask {
	tasks := make([]hostPortTask, 0, len(b.p.Topo.HostInterfaces))
	for i, hp := range b.p.Topo.HostInterfaces {
		tasks = append(tasks, hostPortTask{idx: i, port: hp})
	}
	return tasks
}

// hostIfIndex resolves the PTF interface index of a host port: the explicit
// "@ptf" of its first leg when present, the positional index otherwise.
func hostIfIndex(t hostPortTask) int {
	if t.port.Legs[0].ExplicitPTF {
		return t.port.Legs[0].PTFIndex
	}
	return t.idx
}

// addHostPorts attaches the host-facing ports to the PTF container: DUT
// ports moved straight into the container for single-DUT and cable
// topologies, mux cables for dual-ToR ports.
func (b *Binder) addHostPorts() error {
	return worker.Map(b.w, b.hostPortTasks(), func(log *logrus.Logger, t hostPortTask) error {
		return b.addHostPort(b.taskFabric(log), t)
	})
}

func (b *Binder) addHostPort(fab *fabric.Fabric, t hostPortTask) error {
	switch {
	case b.m.IsMultiDUT && !b.m.IsCable:
		if t.port.Dual() {
			return b.addDualHostPort(fab, t)
		}
		leg := t.port.Legs[0]
		idx := t.idx
		if leg.ExplicitPTF {
			idx = leg.PTFIndex
		}
		fpPort, err := b.m.DUTFPPort(leg)
		if err != nil {
			return err
		}
		return fab.AddDutIfToDocker(fmt.Sprintf(topo.PTFFPIfaceTemplate, idx), fpPort)

	case b.m.IsCable:
		// Not every cable port is wired on every ToR; legs whose DUT has
		// no matching front-panel port are skipped. Cable topologies
		// number PTF interfaces explicitly.
		for _, leg := range t.port.Legs {
			if leg.DUTIndex < 0 || leg.DUTIndex >= len(b.p.Hosts.DUTNames) {
				continue
			}
			fpPort, ok := b.p.Hosts.FPPort(b.p.Hosts.DUTNames[leg.DUTIndex], leg.VlanIndex)
			if !ok {
				continue
			}
			if err := fab.AddDutIfToDocker(fmt.Sprintf(topo.PTFFPIfaceTemplate, leg.PTFIndex), fpPort); err != nil {
				return err
			}
		}
		return nil

	default:
		leg := t.port.Legs[0]
		fpPort, err := b.m.DUTFPPort(leg)
		if err != nil {
			return err
		}
		ptfIf := fmt.Sprintf(topo.PTFFPIfaceTemplate, leg.PTFIndex)
		if err := fab.AddDutIfToDocker(ptfIf, fpPort); err != nil {
			return err
		}
		// Back-end ToRs tag host traffic; enabled ports get a vlan
		// sub-interface in the container.
		if b.m.DutType == topo.BackendTorType && !b.m.Disabled(t.port) {
			sub := fabric.VlanSubIface{
				Separator: b.p.Topo.SubIfaceSeparator(),
				VlanID:    b.m.VlanIDs[leg.VlanIndex],
			}
			return fab.AddDutVlanSubIfToDocker(ptfIf, sub)
		}
		return nil
	}
}

// addDualHostPort builds a dual-ToR port: the PTF-side veth, the netns NIC
// veth for active-active ports, and the mux cable bridge joining them to
// both ToR legs.
func (b *Binder) addDualHostPort(fab *fabric.Fabric, t hostPortTask) error {
	idx := hostIfIndex(t)
	activeActive := b.m.ActiveActive(t.port)

	dualIf := topo.MuxyIfaceName(b.p.VMSetName, idx)
	if activeActive {
		dualIf = topo.ActiveActiveIfaceName(b.p.VMSetName, idx)
	}
	if err := fab.AddVethToDocker(dualIf, fmt.Sprintf(topo.PTFFPIfaceTemplate, idx), nil); err != nil {
		return err
	}

	nicIf := ""
	if activeActive {
		nicIf = topo.ServerNICIfaceName(b.p.VMSetName, idx)
		nsIf := fmt.Sprintf(topo.NetnsIfaceTemplate, idx)
		if err := fab.AddVethToNetns(nicIf, nsIf); err != nil {
			return err
		}
		if err := fab.AddIPToNetnsIf(nsIf, b.m.MuxFacts[idx].SocIPv4, "", "", ""); err != nil {
			return err
		}
	}

	upperIf, err := b.m.DUTFPPort(t.port.Legs[0])
	if err != nil {
		return err
	}
	lowerIf, err := b.m.DUTFPPort(t.port.Legs[1])
	if err != nil {
		return err
	}
	return fab.CreateDualtorCable(idx, dualIf, upperIf, lowerIf, 0, nicIf)
}

// removeHostPorts detaches the host-facing ports.
func (b *Binder) removeHostPorts() error {
	return worker.Map(b.w, b.hostPortTasks(), func(log *logrus.Logger, t hostPortTask) error {
		return b.removeHostPort(b.taskFabric(log), t)
	})
}

func (b *Binder) removeHostPort(fab *fabric.Fabric, t hostPortTask) error {
	if b.m.IsMultiDUT {
		if t.port.Dual() {
			return fab.RemoveDualtorCable(hostIfIndex(t), b.m.ActiveActive(t.port))
		}
		leg := t.port.Legs[0]
		idx := t.idx
		if leg.ExplicitPTF {
			idx = leg.PTFIndex
		}
		fpPort, err := b.m.DUTFPPort(leg)
		if err != nil {
			return err
		}
		return fab.RemoveDutIfFromDocker(fmt.Sprintf(topo.PTFFPIfaceTemplate, idx), fpPort)
	}

	leg := t.port.Legs[0]
	fpPort, err := b.m.DUTFPPort(leg)
	if err != nil {
		return err
	}
	ptfIf := fmt.Sprintf(topo.PTFFPIfaceTemplate, leg.PTFIndex)
	if err := fab.RemoveDutIfFromDocker(ptfIf, fpPort); err != nil {
		return err
	}
	if b.m.DutType == topo.BackendTorType {
		sub := fabric.VlanSubIface{
			Separator: b.p.Topo.SubIfaceSeparator(),
			VlanID:    b.m.VlanIDs[leg.VlanIndex],
		}
		return fab.RemoveDutVlanSubIfFromDocker(ptfIf, sub)
	}
	return nil
}

// setupNetnsSourceRouting installs policy source routing in the netns for
// every active-active port, so replies leave through the interface their
// flow entered on.
func (b *Binder) setupNetnsSourceRouting() error {
	for i, hp := range b.p.Topo.HostInterfaces {
		if !b.m.IsMultiDUT || b.m.IsCable || !hp.Dual() || !b.m.ActiveActive(hp) {
			continue
		}
		idx := hostIfIndex(hostPortTask{idx: i, port: hp})
		if err := b.fab.SetupNetnsSourceRouting(idx, b.m.MuxFacts[idx].SocIPv4); err != nil {
			return err
		}
	}
	return nil
}
