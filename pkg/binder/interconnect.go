package binder

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/util"
)

// interconnectLink resolves one devices-interconnect entry: the bic- bridge
// and the two DUT ports it joins, taken from the first and last listed vlan.
func (b *Binder) interconnectLink(key string) (brName, iface1, iface2 string, err error) {
	vlans := b.p.Topo.DevicesInterconnect[key]
	if len(vlans) == 0 {
		return "", "", "", fmt.Errorf("devices interconnect %s lists no ports: %w", key, util.ErrInvalidConfig)
	}
	brName = fmt.Sprintf(topo.InterconnectBridgeTemplate, b.p.VMSetName, key)
	iface1, err = b.m.DUTFPPort(vlans[0])
	if err != nil {
		return "", "", "", err
	}
	iface2, err = b.m.DUTFPPort(vlans[len(vlans)-1])
	if err != nil {
		return "", "", "", err
	}
	return brName, iface1, iface2, nil
}

// bindDevicesInterconnect wires DUT-to-DUT links over dedicated OVS bridges
// with symmetric flows.
func (b *Binder) bindDevicesInterconnect() error {
	for _, key := range sortedKeys(b.p.Topo.DevicesInterconnect) {
		brName, iface1, iface2, err := b.interconnectLink(key)
		if err != nil {
			return err
		}
		if err := b.fab.CreateOVSBridge(brName, b.p.FPMTU); err != nil {
			return err
		}
		if err := b.fab.BindInterconnectPorts(brName, iface1, iface2); err != nil {
			return err
		}
	}
	return nil
}

// unbindDevicesInterconnect removes the DUT-to-DUT link bridges.
func (b *Binder) unbindDevicesInterconnect() error {
	for _, key := range sortedKeys(b.p.Topo.DevicesInterconnect) {
		brName, iface1, iface2, err := b.interconnectLink(key)
		if err != nil {
			return err
		}
		if err := b.fab.UnbindOVSPort(brName, iface1); err != nil {
			return err
		}
		if err := b.fab.UnbindOVSPort(brName, iface2); err != nil {
			return err
		}
		if err := b.fab.DestroyOVSBridge(brName); err != nil {
			return err
		}
	}
	return nil
}
