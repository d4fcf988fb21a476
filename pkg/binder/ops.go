package binder

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/topo"
)

// Bind attaches the vm set to the OS: the PTF management port, the DUT
// management ports, the VM front-panel and backplane fabric, the host-facing
// ports, and the netns plumbing for active-active topologies.
func (b *Binder) Bind() error {
	if err := b.resolve(true, true); err != nil {
		return err
	}

	if err := b.addMgmtPortToDocker(); err != nil {
		return err
	}

	for _, port := range b.p.Hosts.DUTMgmtPorts {
		if port == "" {
			continue
		}
		if err := b.fab.BindMgmtPort(b.p.MgmtBridge, port); err != nil {
			return err
		}
	}

	if b.check.VMsExist {
		if err := b.addInjectedFPPorts(); err != nil {
			return err
		}
		if err := b.addInjectedOVSPorts(); err != nil {
			return err
		}
		if err := b.bindFPPorts(false, b.p.Batch); err != nil {
			return err
		}
		if err := b.fab.BindVMBackplane(b.m.BPBridge, b.backplanePorts()); err != nil {
			return err
		}
		if err := b.addBPPortToDocker(); err != nil {
			return err
		}
		if b.p.VSChassis {
			if err := b.fab.BindChassisPorts(b.midplaneBridge(), b.inbandBridge(),
				b.p.Hosts.DUTMidplanePorts, b.p.Hosts.DUTInbandPorts); err != nil {
				return err
			}
		}
	}

	if b.m.Netns != "" {
		if err := b.bindNetns(); err != nil {
			return err
		}
	}

	if b.check.HostIfExists {
		if err := b.addHostPorts(); err != nil {
			return err
		}
	}

	if b.m.Netns != "" {
		if err := b.setupNetnsSourceRouting(); err != nil {
			return err
		}
	}

	if b.check.DevicesInterconnectExists {
		return b.bindDevicesInterconnect()
	}
	return nil
}

// Unbind detaches the vm set. A stopped PTF container is tolerated: the
// container-side teardown degrades to host-side cleanup only.
func (b *Binder) Unbind() error {
	if err := b.resolve(false, false); err != nil {
		return err
	}

	for _, port := range b.p.Hosts.DUTMgmtPorts {
		if port == "" {
			continue
		}
		if err := b.fab.UnbindMgmtPort(port); err != nil {
			return err
		}
	}

	if b.check.VMsExist {
		if err := b.fab.UnbindVMBackplane(b.m.BPBridge); err != nil {
			return err
		}
		if err := b.unbindFPPorts(b.p.Batch); err != nil {
			return err
		}
		if err := b.removeInjectedFPPorts(); err != nil {
			return err
		}
		if b.p.VSChassis {
			if err := b.fab.UnbindChassisPorts(b.midplaneBridge(), b.inbandBridge(),
				b.p.Hosts.DUTMidplanePorts, b.p.Hosts.DUTInbandPorts); err != nil {
				return err
			}
		}
	}

	if b.check.HostIfExists {
		if err := b.removeHostPorts(); err != nil {
			return err
		}
	}

	if err := b.removePTFMgmtPort(); err != nil {
		return err
	}
	if err := b.removePTFBackplanePort(); err != nil {
		return err
	}

	if b.m.Netns != "" {
		if err := b.fab.UnbindMgmtPort(fmt.Sprintf(topo.NetnsMgmtIfTemplate, b.p.VMSetName)); err != nil {
			return err
		}
		if err := b.fab.DeleteNetns(); err != nil {
			return err
		}
	}

	if b.check.DevicesInterconnectExists {
		return b.unbindDevicesInterconnect()
	}
	return nil
}

// Renumber rebuilds the vm set's bindings in place after the PTF container
// was recreated: front-panel and netns plumbing are torn down and bound
// again while the VMs keep running.
func (b *Binder) Renumber() error {
	if err := b.resolve(true, true); err != nil {
		return err
	}

	if err := b.addMgmtPortToDocker(); err != nil {
		return err
	}

	if b.m.Netns != "" {
		if err := b.fab.UnbindMgmtPort(fmt.Sprintf(topo.NetnsMgmtIfTemplate, b.p.VMSetName)); err != nil {
			return err
		}
		if err := b.fab.DeleteNetns(); err != nil {
			return err
		}
	}

	if b.check.VMsExist {
		if err := b.unbindFPPorts(b.p.Batch); err != nil {
			return err
		}
		if b.p.VSChassis {
			if err := b.fab.UnbindChassisPorts(b.midplaneBridge(), b.inbandBridge(),
				b.p.Hosts.DUTMidplanePorts, b.p.Hosts.DUTInbandPorts); err != nil {
				return err
			}
		}
		if err := b.addInjectedFPPorts(); err != nil {
			return err
		}
		if err := b.addInjectedOVSPorts(); err != nil {
			return err
		}
		if err := b.bindFPPorts(false, b.p.Batch); err != nil {
			return err
		}
		if err := b.fab.BindVMBackplane(b.m.BPBridge, b.backplanePorts()); err != nil {
			return err
		}
		if err := b.addBPPortToDocker(); err != nil {
			return err
		}
		if b.p.VSChassis {
			if err := b.fab.BindChassisPorts(b.midplaneBridge(), b.inbandBridge(),
				b.p.Hosts.DUTMidplanePorts, b.p.Hosts.DUTInbandPorts); err != nil {
				return err
			}
		}
	}

	if b.m.Netns != "" {
		if err := b.bindNetns(); err != nil {
			return err
		}
	}

	if b.check.HostIfExists {
		if err := b.addHostPorts(); err != nil {
			return err
		}
	}

	if b.m.Netns != "" {
		if err := b.setupNetnsSourceRouting(); err != nil {
			return err
		}
	}

	if b.check.DevicesInterconnectExists {
		return b.bindDevicesInterconnect()
	}
	return nil
}

// ConnectVMs reprograms the front-panel flows so VM traffic forwards again.
func (b *Binder) ConnectVMs() error {
	return b.reconnect(false)
}

// DisconnectVMs reprograms the front-panel flows so the VM leg drops while
// DUT-to-PTF injection keeps working.
func (b *Binder) DisconnectVMs() error {
	return b.reconnect(true)
}

func (b *Binder) reconnect(disconnect bool) error {
	if err := b.resolve(false, true); err != nil {
		return err
	}
	if !b.check.VMsExist {
		return nil
	}
	return b.bindFPPorts(disconnect, false)
}

// bindNetns creates and plumbs the vm set's network namespace.
func (b *Binder) bindNetns() error {
	if err := b.fab.AddNetns(); err != nil {
		return err
	}
	// arp_filter prevents arp flux between the netns interfaces.
	if err := b.fab.EnableNetnsArpFilter(); err != nil {
		return err
	}
	if err := b.addMgmtPortToNetns(); err != nil {
		return err
	}
	return b.fab.EnableNetnsLoopback()
}

func (b *Binder) midplaneBridge() string {
	return fmt.Sprintf(topo.VSChassisMidplaneBridgeTemplate, b.p.VMSetName)
}

func (b *Binder) inbandBridge() string {
	return fmt.Sprintf(topo.VSChassisInbandBridgeTemplate, b.p.VMSetName)
}
