package binder

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/worker"
)

// fpBind is one front-panel binding task: wire a DUT port, the matching
// injected PTF port and the VM tap together on one OVS bridge.
type fpBind struct {
	bridge   string
	dutIface string
	injected string
	vmIface  string
}

// bindFPPorts programs every VM front-panel bridge, then the VM-to-VM links.
// disconnectVM leaves the VM leg dropped; batchMode defers the flow
// programming to background add-flows processes joined at the end.
func (b *Binder) bindFPPorts(disconnectVM, batchMode bool) error {
	var args []fpBind
	for _, hostname := range sortedKeys(b.m.VMs) {
		vm := b.m.VMs[hostname]
		vmName, err := b.m.VMName(hostname)
		if err != nil {
			return err
		}
		for idx, vlan := range vm.Vlans {
			// A DUT with an empty front-panel port map contributes no
			// bindings; its vlans stay unwired.
			if b.dutHasNoFPPorts(vlan) {
				continue
			}
			dutIface, err := b.m.DUTFPPort(vlan)
			if err != nil {
				return err
			}
			args = append(args, fpBind{
				bridge:   topo.FPBridgeName(vmName, idx),
				dutIface: dutIface,
				injected: topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex),
				vmIface:  topo.FPTapName(vmName, idx),
			})
		}
	}

	var batch *shell.Batch
	if batchMode {
		var err error
		batch, err = shell.NewBatch(shell.DefaultBatchTimeout)
		if err != nil {
			return err
		}
	}
	mapErr := worker.Map(b.w, args, func(log *logrus.Logger, a fpBind) error {
		return b.taskFabric(log).BindOVSPorts(a.bridge, a.dutIface, a.injected, a.vmIface, disconnectVM, batch)
	})
	if batch != nil {
		if err := batch.Join(); err != nil && mapErr == nil {
			mapErr = err
		}
	}
	if mapErr != nil {
		return mapErr
	}

	for _, key := range sortedKeys(b.m.VMLinks) {
		link := b.m.VMLinks[key]
		brName := linkBridgeName(key)
		port1, port2, err := b.linkTaps(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if link.UseOVS {
			if err := b.fab.CreateOVSBridge(brName, vmLinkMTU); err != nil {
				return err
			}
			if err := b.fab.BindInterconnectPorts(brName, port1, port2); err != nil {
				return err
			}
		} else {
			if err := b.fab.BindVMLink(brName, port1, port2); err != nil {
				return err
			}
		}
	}

	for _, key := range sortedKeys(b.m.OVSLinks) {
		link := b.m.OVSLinks[key]
		brName := linkBridgeName(key)
		port1, port2, err := b.linkTaps(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if err := b.fab.CreateOVSBridge(brName, vmLinkMTU); err != nil {
			return err
		}
		for _, vlan := range link.Vlans {
			injected := topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex)
			if err := b.fab.BindOVSPorts(brName, port1, injected, port2, disconnectVM, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// fpUnbind is one front-panel teardown task: strip a bridge down to its VM
// tap and clear its flows.
type fpUnbind struct {
	bridge  string
	vmIface string
}

// unbindFPPorts strips every VM front-panel bridge and removes the VM-to-VM
// link bridges.
func (b *Binder) unbindFPPorts(batchMode bool) error {
	var args []fpUnbind
	for _, hostname := range sortedKeys(b.m.VMs) {
		vm := b.m.VMs[hostname]
		vmName, err := b.m.VMName(hostname)
		if err != nil {
			return err
		}
		for idx := range vm.Vlans {
			args = append(args, fpUnbind{
				bridge:  topo.FPBridgeName(vmName, idx),
				vmIface: topo.FPTapName(vmName, idx),
			})
		}
	}

	var batch *shell.Batch
	if batchMode {
		var err error
		batch, err = shell.NewBatch(shell.DefaultBatchTimeout)
		if err != nil {
			return err
		}
	}
	mapErr := worker.Map(b.w, args, func(log *logrus.Logger, a fpUnbind) error {
		return b.taskFabric(log).UnbindOVSPorts(a.bridge, a.vmIface, batch)
	})
	if batch != nil {
		if err := batch.Join(); err != nil && mapErr == nil {
			mapErr = err
		}
	}
	if mapErr != nil {
		return mapErr
	}

	for _, key := range sortedKeys(b.m.VMLinks) {
		link := b.m.VMLinks[key]
		brName := linkBridgeName(key)
		port1, port2, err := b.linkTaps(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if link.UseOVS {
			if err := b.fab.UnbindOVSPort(brName, port1); err != nil {
				return err
			}
			if err := b.fab.UnbindOVSPort(brName, port2); err != nil {
				return err
			}
			if err := b.fab.DestroyOVSBridge(brName); err != nil {
				return err
			}
		} else {
			if err := b.fab.UnbindVMLink(brName, port1, port2); err != nil {
				return err
			}
		}
	}

	for _, key := range sortedKeys(b.m.OVSLinks) {
		link := b.m.OVSLinks[key]
		brName := linkBridgeName(key)
		port1, port2, err := b.linkTaps(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if err := b.fab.CreateOVSBridge(brName, vmLinkMTU); err != nil {
			return err
		}
		for _, vlan := range link.Vlans {
			injected := topo.InjectedIfaceName(b.p.VMSetName, vlan.PTFIndex)
			if err := b.fab.UnbindOVSPorts(brName, port1, nil); err != nil {
				return err
			}
			if err := b.fab.UnbindOVSPorts(brName, port2, nil); err != nil {
				return err
			}
			if err := b.fab.UnbindOVSPorts(brName, injected, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// linkTaps resolves the two VM tap names of a VM-to-VM link.
func (b *Binder) linkTaps(startOffset, startPort, endOffset, endPort int) (string, string, error) {
	startVM, err := b.m.VMNameAt(startOffset)
	if err != nil {
		return "", "", err
	}
	endVM, err := b.m.VMNameAt(endOffset)
	if err != nil {
		return "", "", err
	}
	return topo.FPTapName(startVM, startPort), topo.FPTapName(endVM, endPort), nil
}

// linkBridgeName derives the bridge of a VM-to-VM link from its topology key.
func linkBridgeName(key string) string {
	return "br_" + strings.ToLower(key)
}

// dutHasNoFPPorts reports whether the DUT a port reference points at has an
// empty front-panel port map.
func (b *Binder) dutHasNoFPPorts(ref topo.PortRef) bool {
	if ref.DUTIndex < 0 || ref.DUTIndex >= len(b.p.Hosts.DUTNames) {
		return false
	}
	return len(b.p.Hosts.DUTFPPorts[b.p.Hosts.DUTNames[ref.DUTIndex]]) == 0
}

// backplanePorts lists the backplane tap of every VM in the run.
func (b *Binder) backplanePorts() []string {
	var ports []string
	for _, hostname := range sortedKeys(b.m.VMs) {
		vmName, err := b.m.VMName(hostname)
		if err != nil {
			continue
		}
		ports = append(ports, topo.BPTapName(vmName))
	}
	return ports
}
