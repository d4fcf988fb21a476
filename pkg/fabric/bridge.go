package fabric

import (
	"fmt"
	"strings"

	"github.com/testbed-tools/vmtopo/pkg/shell"
)

// CreateOVSBridge creates an OVS bridge if absent, applies the MTU and
// brings it up.
func (f *Fabric) CreateOVSBridge(bridge string, mtu int) error {
	f.Log.Infof("=== Create bridge %s with mtu %d ===", bridge, mtu)
	if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --may-exist add-br %s", bridge)); err != nil {
		return err
	}
	if mtu != DefaultMTU {
		if _, err := f.Shell.Run(fmt.Sprintf("ifconfig %s mtu %d", bridge, mtu)); err != nil {
			return err
		}
	}
	if _, err := f.Shell.Run(fmt.Sprintf("ifconfig %s up", bridge)); err != nil {
		return err
	}
	return nil
}

// DestroyOVSBridge removes an OVS bridge if present.
func (f *Fabric) DestroyOVSBridge(bridge string) error {
	f.Log.Infof("=== Destroy bridge %s ===", bridge)
	_, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-br %s", bridge))
	return err
}

// BrctlShow parses the Linux bridge table into bridge-to-interfaces and
// interface-to-bridge maps. Errors degrade to empty maps so callers can
// treat "no bridges" and "brctl failed" alike.
func (f *Fabric) BrctlShow(bridge string) (map[string][]string, map[string]string) {
	brToIfs := make(map[string][]string)
	ifToBr := make(map[string]string)

	cmdline := "brctl show"
	if bridge != "" {
		cmdline += " " + bridge
	}
	out, err := f.Shell.Run(cmdline)
	if err != nil {
		f.Log.Errorf("failed to run %s: %v", cmdline, err)
		return brToIfs, ifToBr
	}

	rows := strings.Split(out, "\n")
	if len(rows) > 0 {
		rows = rows[1:]
	}
	var cur string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		terms := strings.Fields(row)
		if row[0] != ' ' && row[0] != '\t' {
			cur = terms[0]
			brToIfs[cur] = []string{}
			if len(terms) > 3 {
				brToIfs[cur] = append(brToIfs[cur], terms[3])
				ifToBr[terms[3]] = cur
			}
		} else if cur != "" && len(terms) > 0 {
			brToIfs[cur] = append(brToIfs[cur], terms[0])
			ifToBr[terms[0]] = cur
		}
	}
	return brToIfs, ifToBr
}

// BindMgmtPort enrolls the server's management port into the mgmt bridge.
func (f *Fabric) BindMgmtPort(bridge, mgmtPort string) error {
	f.Log.Infof("=== Bind mgmt port %s to bridge %s ===", mgmtPort, bridge)
	_, ifToBr := f.BrctlShow(bridge)
	if _, ok := ifToBr[mgmtPort]; !ok {
		if _, err := f.Shell.Run(fmt.Sprintf("brctl addif %s %s", bridge, mgmtPort)); err != nil {
			return err
		}
	}
	return nil
}

// UnbindMgmtPort removes the management port from whichever bridge holds it.
func (f *Fabric) UnbindMgmtPort(mgmtPort string) error {
	_, ifToBr := f.BrctlShow("")
	if br, ok := ifToBr[mgmtPort]; ok {
		if _, err := f.Shell.Run(fmt.Sprintf("brctl delif %s %s", br, mgmtPort)); err != nil {
			return err
		}
	}
	return nil
}

// BindVMLink wires two VM taps together over a plain Linux bridge, pulling
// either tap off any OVS bridge it may still be enrolled in.
func (f *Fabric) BindVMLink(bridge, port1, port2 string) error {
	if f.IfaceNotExists(bridge, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("brctl addbr %s", bridge)); err != nil {
			return err
		}
	}
	if err := f.IfaceUp(bridge, Host); err != nil {
		return err
	}

	for _, port := range []string{port1, port2} {
		if br := f.OVSBridgeByPort(port); br != "" {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-port %s %s", br, port)); err != nil {
				return err
			}
		}
	}

	brToIfs, _ := f.BrctlShow("")
	enrolled := make(map[string]bool)
	for _, iface := range brToIfs[bridge] {
		enrolled[iface] = true
	}
	for _, port := range []string{port1, port2} {
		if !enrolled[port] {
			if _, err := f.Shell.Run(fmt.Sprintf("brctl addif %s %s", bridge, port)); err != nil {
				return err
			}
		}
	}
	if err := f.IfaceUp(port1, Host); err != nil {
		return err
	}
	return f.IfaceUp(port2, Host)
}

// UnbindVMLink detaches both taps and deletes the link bridge. A bridge
// already gone is fine.
func (f *Fabric) UnbindVMLink(bridge, port1, port2 string) error {
	_, ifToBr := f.BrctlShow("")
	for _, port := range []string{port1, port2} {
		if _, ok := ifToBr[port]; ok {
			if _, err := f.Shell.Run(fmt.Sprintf("brctl delif %s %s", bridge, port)); err != nil {
				return err
			}
		}
	}
	_, err := f.Shell.Run(fmt.Sprintf("brctl delbr %s", bridge), shell.IgnoreErrors())
	return err
}

// BindVMBackplane enrolls every VM's backplane tap into the vm set's
// backplane bridge.
func (f *Fabric) BindVMBackplane(bpBridge string, bpPorts []string) error {
	if f.IfaceNotExists(bpBridge, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("brctl addbr %s", bpBridge)); err != nil {
			return err
		}
	}
	if err := f.IfaceUp(bpBridge, Host); err != nil {
		return err
	}
	for _, port := range bpPorts {
		brToIfs, _ := f.BrctlShow("")
		enrolled := false
		for _, iface := range brToIfs[bpBridge] {
			if iface == port {
				enrolled = true
				break
			}
		}
		if !enrolled {
			if _, err := f.Shell.Run(fmt.Sprintf("brctl addif %s %s", bpBridge, port)); err != nil {
				return err
			}
		}
		if err := f.IfaceUp(port, Host); err != nil {
			return err
		}
	}
	return nil
}

// UnbindVMBackplane tears the backplane bridge down.
func (f *Fabric) UnbindVMBackplane(bpBridge string) error {
	if f.IfaceExists(bpBridge, Host) {
		if err := f.IfaceDown(bpBridge, Host); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("brctl delbr %s", bpBridge), shell.IgnoreErrors()); err != nil {
			return err
		}
	}
	return nil
}
