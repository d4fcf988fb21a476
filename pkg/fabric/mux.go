package fabric

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/topo"
)

// CreateDualtorCable builds the OVS bridge emulating the cable of one
// dual-ToR host port.
//
// Active/standby (mux y-cable), nicIf empty:
//
//	                    +--------------+
//	                    |              +----- upperIf
//	    PTF (hostIf) ---+  OVS bridge  |
//	                    |              +----- lowerIf
//	                    +--------------+
//
// Active/active (server smart NIC), nicIf set:
//
//	                    +--------------+
//	    PTF (hostIf) ---+              +----- upperIf
//	                    |  OVS bridge  |
//	  netns (nicIf) ----+              +----- lowerIf
//	                    +--------------+
//
// Host traffic floods both ToR legs; only the active leg forwards back to
// the host. activeIfIndex picks the upper (0) or lower leg.
func (f *Fabric) CreateDualtorCable(hostIfIndex int, hostIf, upperIf, lowerIf string, activeIfIndex int, nicIf string) error {
	brName := topo.MuxyBridgeName(f.VMSetName, hostIfIndex)
	if nicIf != "" {
		brName = topo.ActiveActiveBridgeName(f.VMSetName, hostIfIndex)
	}

	if err := f.CreateOVSBridge(brName, f.MTU); err != nil {
		return err
	}

	for _, iface := range []string{hostIf, upperIf, lowerIf} {
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
	attach := []string{hostIf, upperIf, lowerIf}
	if nicIf != "" {
		attach = append(attach, nicIf)
	}
	for _, iface := range attach {
		if !ports[iface] {
			if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --may-exist add-port %s %s", brName, iface)); err != nil {
				return err
			}
		}
	}

	want := []string{upperIf, lowerIf}
	if nicIf != "" {
		want = append(want, nicIf)
	}
	bindings, err := f.OVSPortBindings(brName, want)
	if err != nil {
		return err
	}
	hostID := bindings[hostIf]
	upperID := bindings[upperIf]
	lowerID := bindings[lowerIf]

	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl del-flows %s", brName)); err != nil {
		return err
	}

	if nicIf != "" {
		// active-active NIC forwarding is left to the mux simulator
		return nil
	}

	if _, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s,%s",
		brName, hostID, upperID, lowerID)); err != nil {
		return err
	}
	activeID := upperID
	if activeIfIndex != 0 {
		activeID = lowerID
	}
	_, err = f.Shell.Run(fmt.Sprintf("ovs-ofctl add-flow %s table=0,in_port=%s,action=output:%s",
		brName, activeID, hostID))
	return err
}

// RemoveDualtorCable deletes the cable bridge of one dual-ToR host port.
func (f *Fabric) RemoveDualtorCable(hostIfIndex int, activeActive bool) error {
	brName := topo.MuxyBridgeName(f.VMSetName, hostIfIndex)
	if activeActive {
		brName = topo.ActiveActiveBridgeName(f.VMSetName, hostIfIndex)
	}
	return f.DestroyOVSBridge(brName)
}
