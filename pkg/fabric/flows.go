package fabric

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/shell"
)

// BindOVSPorts enrolls the DUT port, injected PTF port and VM tap under one
// OVS front-panel bridge and programs its flow table:
//
//	                           +----------------------+
//	                           |                      +---- dutIface
//	    PTF (injectedIface) ---+ OVS bridge (brName)  |
//	                           |                      +---- vmIface
//	                           +----------------------+
//
// Control-plane traffic from the DUT reaches both the VM and the PTF; bulk
// traffic goes to the PTF only, which keeps the emulated NOS stable. With
// disconnectVM set the VM leg drops instead.
//
// When batch is non-nil the DUT-to-VM/PTF rules are written to a rule file
// and loaded by a single backgrounded ovs-ofctl add-flows, joined later.
func (f *Fabric) BindOVSPorts(brName, dutIface, injectedIface, vmIface string, disconnectVM bool, batch *shell.Batch) error {
	for _, iface := range []string{injectedIface, dutIface, vmIface} {
		if br := f.OVSBridgeByPort(iface); br != "" && br != brName {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-port %s %s", br, iface)); err != nil {
				return err
			}
		}
	}

	ports, err := f.OVSBridgePorts(brName)
	if err != nil {
		return err
	}
	for _, iface := range []string{injectedIface, dutIface, vmIface} {
		if !ports[iface] {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --may-exist add-port %s %s", brName, iface)); err != nil {
				return err
			}
		}
	}

	bindings, err := f.OVSPortBindings(brName, []string{dutIface})
	if err != nil {
		return err
	}
	dutID := bindings[dutIface]
	injectedID := bindings[injectedIface]
	vmID := bindings[vmIface]

	// clear old bindings
	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl del-flows %s", brName)); err != nil {
		return err
	}

	if disconnectVM {
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=drop", brName, vmID)); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s",
			brName, dutID, injectedID)); err != nil {
			return err
		}
		return nil
	}

	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s",
		brName, vmID, dutID)); err != nil {
		return err
	}

	rules := dutIngressRules(dutID, vmID, injectedID)

	if batch != nil {
		ruleFile, err := batch.WriteRuleFile(rules)
		if err != nil {
			return err
		}
		proc, err := f.Shell.Start(fmt.Sprintf("ovs-ofctl add-flows %s %s", brName, ruleFile))
		if err != nil {
			return err
		}
		batch.Add(proc)
		return nil
	}

	for _, rule := range rules {
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s %s", brName, rule)); err != nil {
			return err
		}
	}
	return nil
}

// dutIngressRules is the flow rule set applied to traffic arriving from the
// DUT, plus the PTF-to-DUT forward. Priorities: 10 protocol allows toward
// VM and PTF, 8 fragments/ICMP/SNMP/DNS, 6 BFD echo to PTF only, 5 bulk IP
// to PTF only (IPv6 also to the VM), 3 catch-all layer2.
func dutIngressRules(dutID, vmID, injectedID string) []string {
	both := vmID + "," + injectedID
	return []string{
		fmt.Sprintf("table=0,priority=10,tcp,in_port=%s,tp_src=179,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp,in_port=%s,tp_dst=179,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp,in_port=%s,tp_dst=22,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp,in_port=%s,tp_src=22,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp6,in_port=%s,tp_src=179,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp6,in_port=%s,tp_dst=179,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp6,in_port=%s,tp_dst=22,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,tcp6,in_port=%s,tp_src=22,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,ip,in_port=%s,nw_proto=4,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,ip,in_port=%s,nw_frag=yes,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,ipv6,in_port=%s,nw_frag=yes,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,icmp,in_port=%s,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,icmp6,in_port=%s,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,udp,in_port=%s,udp_src=161,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=8,udp,in_port=%s,udp_src=53,action=output:%s", dutID, vmID),
		fmt.Sprintf("table=0,priority=8,udp6,in_port=%s,udp_src=161,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=6,udp6,in_port=%s,udp_dst=4784,action=output:%s", dutID, injectedID),
		fmt.Sprintf("table=0,priority=5,ip,in_port=%s,action=output:%s", dutID, injectedID),
		fmt.Sprintf("table=0,priority=5,ipv6,in_port=%s,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=3,in_port=%s,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,ip,in_port=%s,nw_proto=89,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,ipv6,in_port=%s,nw_proto=89,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,udp,in_port=%s,udp_dst=3784,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,udp6,in_port=%s,udp_dst=3784,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,udp,in_port=%s,udp_src=49152,udp_dst=3784,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,priority=10,udp6,in_port=%s,udp_src=49152,udp_dst=3784,action=output:%s", dutID, both),
		fmt.Sprintf("table=0,in_port=%s,action=output:%s", injectedID, dutID),
	}
}

// UnbindOVSPorts removes every port except the VM tap from a bridge. With a
// batch the deletions collapse into one backgrounded ovs-vsctl invocation.
func (f *Fabric) UnbindOVSPorts(brName, vmPort string, batch *shell.Batch) error {
	if !f.IfaceExists(brName, Host) {
		return nil
	}
	ports, err := f.OVSBridgePorts(brName)
	if err != nil {
		return err
	}

	if batch != nil {
		var parts []string
		for port := range ports {
			if port != vmPort {
				parts = append(parts, fmt.Sprintf("--if-exists del-port %s %s", brName, port))
			}
		}
		if len(parts) == 0 {
			return nil
		}
		cmdline := "ovs-vsctl"
		for _, part := range parts {
			cmdline += " -- " + part
		}
		proc, err := f.Shell.Start(cmdline)
		if err != nil {
			return err
		}
		batch.Add(proc)
		return nil
	}

	for port := range ports {
		if port != vmPort {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-port %s %s", brName, port)); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnbindOVSPort removes a single port from a bridge if enrolled.
func (f *Fabric) UnbindOVSPort(brName, port string) error {
	if !f.IfaceExists(brName, Host) {
		return nil
	}
	ports, err := f.OVSBridgePorts(brName)
	if err != nil {
		return err
	}
	if ports[port] {
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-port %s %s", brName, port)); err != nil {
			return err
		}
	}
	return nil
}

// BindInterconnectPorts wires two DUT ports together over an OVS bridge
// with symmetric forward rules.
func (f *Fabric) BindInterconnectPorts(brName, iface1, iface2 string) error {
	ports, err := f.OVSBridgePorts(brName)
	if err != nil {
		return err
	}
	for _, iface := range []string{iface1, iface2} {
		if !ports[iface] {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --may-exist add-port %s %s", brName, iface)); err != nil {
				return err
			}
		}
	}
	bindings, err := f.OVSPortBindings(brName, nil)
	if err != nil {
		return err
	}
	id1 := bindings[iface1]
	id2 := bindings[iface2]

	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl del-flows %s", brName)); err != nil {
		return err
	}
	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s", brName, id1, id2)); err != nil {
		return err
	}
	_, err = f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s", brName, id2, id1))
	return err
}
