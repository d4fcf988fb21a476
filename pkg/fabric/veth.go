package fabric

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/util"
)

// VlanSubIface describes the VLAN sub-interface some injected ports carry
// into the PTF container.
type VlanSubIface struct {
	Separator string
	VlanID    string
}

// Name renders the sub-interface name for a parent interface.
func (v VlanSubIface) Name(parent string) string {
	return parent + v.Separator + v.VlanID
}

// reserved returns the name-budget space the sub-interface suffix consumes.
func (v VlanSubIface) reserved() int {
	return len(v.Separator + v.VlanID)
}

// AddVethToDocker creates the extIf/intIf veth pair and moves intIf into
// the PTF container. The container end is created under a fingerprinted
// temporary name first so concurrent tasks cannot collide, then migrated
// and renamed. Passing sub non-nil also carries a VLAN sub-interface of the
// container end across.
func (f *Fabric) AddVethToDocker(extIf, intIf string, sub *VlanSubIface) error {
	f.Log.Infof("=== Create veth pair %s/%s, set %s to PTF docker namespace ===", extIf, intIf, intIf)

	reserved := 0
	if sub != nil {
		reserved = sub.reserved()
	}
	tmpIntIf, err := util.TempIfaceName(f.VMSetName, intIf, reserved)
	if err != nil {
		return err
	}
	var intSubIf, tmpIntSubIf string
	if sub != nil {
		intSubIf = sub.Name(intIf)
		tmpIntSubIf = sub.Name(tmpIntIf)
	}

	// a temporary end left behind by an aborted run is stale
	if f.IfaceExists(tmpIntIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link del dev %s", tmpIntIf)); err != nil {
			return err
		}
	}

	if f.IfaceNotExists(extIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link add %s type veth peer name %s", extIf, tmpIntIf)); err != nil {
			return err
		}
		if sub != nil {
			if _, err := f.Shell.Run(fmt.Sprintf("vconfig add %s %s", tmpIntIf, sub.VlanID)); err != nil {
				return err
			}
		}
	}

	if f.MTU != DefaultMTU {
		if err := f.applyVethMTU(extIf, tmpIntIf, intIf, f.Docker()); err != nil {
			return err
		}
		if sub != nil {
			if err := f.applySubIfMTU(tmpIntSubIf, intSubIf, f.Docker()); err != nil {
				return err
			}
		}
	}

	if err := f.IfaceUp(extIf, Host); err != nil {
		return err
	}

	if f.IfaceExists(tmpIntIf, Host) &&
		f.IfaceNotExists(tmpIntIf, f.Docker()) &&
		f.IfaceNotExists(intIf, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s netns %s", tmpIntIf, f.PID)); err != nil {
			return err
		}
	}
	if sub != nil &&
		f.IfaceExists(tmpIntSubIf, Host) &&
		f.IfaceNotExists(tmpIntSubIf, f.Docker()) &&
		f.IfaceNotExists(intSubIf, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s netns %s", tmpIntSubIf, f.PID)); err != nil {
			return err
		}
	}

	if f.IfaceExists(tmpIntIf, f.Docker()) && f.IfaceNotExists(intIf, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s name %s", f.PID, tmpIntIf, intIf)); err != nil {
			return err
		}
	}
	if sub != nil && f.IfaceExists(tmpIntSubIf, f.Docker()) && f.IfaceNotExists(intSubIf, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s name %s", f.PID, tmpIntSubIf, intSubIf)); err != nil {
			return err
		}
	}

	if err := f.IfaceUp(intIf, f.Docker()); err != nil {
		return err
	}
	if sub != nil {
		return f.IfaceUp(intSubIf, f.Docker())
	}
	return nil
}

// AddVethToNetns creates the extIf/intIf veth pair and moves intIf into the
// vm set's network namespace, through the same temporary-name migration.
func (f *Fabric) AddVethToNetns(extIf, intIf string) error {
	f.Log.Infof("=== Create veth pair %s/%s, set %s to netns %s ===", extIf, intIf, intIf, f.Netns)

	tmpIntIf, err := util.TempIfaceName(f.VMSetName, intIf, 0)
	if err != nil {
		return err
	}

	if f.IfaceExists(tmpIntIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link del dev %s", tmpIntIf)); err != nil {
			return err
		}
	}

	if f.IfaceNotExists(extIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link add %s type veth peer name %s", extIf, tmpIntIf)); err != nil {
			return err
		}
	}

	if f.MTU != DefaultMTU {
		if err := f.applyVethMTU(extIf, tmpIntIf, intIf, f.NetnsScope()); err != nil {
			return err
		}
	}

	if err := f.IfaceUp(extIf, Host); err != nil {
		return err
	}

	if f.IfaceExists(tmpIntIf, Host) &&
		f.IfaceNotExists(tmpIntIf, f.NetnsScope()) &&
		f.IfaceNotExists(intIf, f.NetnsScope()) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s netns %s", tmpIntIf, f.Netns)); err != nil {
			return err
		}
	}

	if f.IfaceExists(tmpIntIf, f.NetnsScope()) && f.IfaceNotExists(intIf, f.NetnsScope()) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip link set dev %s name %s", f.Netns, tmpIntIf, intIf)); err != nil {
			return err
		}
	}

	return f.IfaceUp(intIf, f.NetnsScope())
}

// applyVethMTU sets the MTU on the external end and on whichever of the
// temporary or final internal ends currently exists, wherever it lives.
func (f *Fabric) applyVethMTU(extIf, tmpIntIf, intIf string, inner Scope) error {
	if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s mtu %d", extIf, f.MTU)); err != nil {
		return err
	}
	switch {
	case f.IfaceExists(tmpIntIf, Host):
		_, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s mtu %d", tmpIntIf, f.MTU))
		return err
	case f.IfaceExists(tmpIntIf, inner):
		_, err := f.Shell.Run(scoped(inner, fmt.Sprintf("ip link set dev %s mtu %d", tmpIntIf, f.MTU)))
		return err
	case f.IfaceExists(intIf, inner):
		_, err := f.Shell.Run(scoped(inner, fmt.Sprintf("ip link set dev %s mtu %d", intIf, f.MTU)))
		return err
	}
	return nil
}

func (f *Fabric) applySubIfMTU(tmpSubIf, subIf string, inner Scope) error {
	switch {
	case f.IfaceExists(tmpSubIf, Host):
		_, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s mtu %d", tmpSubIf, f.MTU))
		return err
	case f.IfaceExists(tmpSubIf, inner):
		_, err := f.Shell.Run(scoped(inner, fmt.Sprintf("ip link set dev %s mtu %d", tmpSubIf, f.MTU)))
		return err
	case f.IfaceExists(subIf, inner):
		_, err := f.Shell.Run(scoped(inner, fmt.Sprintf("ip link set dev %s mtu %d", subIf, f.MTU)))
		return err
	}
	return nil
}

// AddBrIfToDocker grows a veth pair from a Linux bridge into the PTF
// container. The container end carries a fingerprint suffix until it lands
// inside, so several vm sets can share one bridge concurrently.
func (f *Fabric) AddBrIfToDocker(bridge, extIf, intIf string) error {
	tmpIntIf := intIf + util.Fingerprint(extIf, util.MaxIfaceLen-len(intIf))
	f.Log.Infof("=== For veth pair, add %s to bridge %s, set %s to PTF docker, tmp intf %s ===",
		extIf, bridge, intIf, tmpIntIf)
	return f.addBrIf(bridge, extIf, intIf, tmpIntIf, f.Docker())
}

// AddBrIfToNetns grows a veth pair from a Linux bridge into the netns.
func (f *Fabric) AddBrIfToNetns(bridge, extIf, intIf string) error {
	tmpIntIf := intIf + util.Fingerprint(extIf, util.MaxIfaceLen-len(intIf))
	f.Log.Infof("=== For veth pair, add %s to bridge %s, set %s to netns, tmp intf %s ===",
		extIf, bridge, intIf, tmpIntIf)
	return f.addBrIf(bridge, extIf, intIf, tmpIntIf, f.NetnsScope())
}

func (f *Fabric) addBrIf(bridge, extIf, intIf, tmpIntIf string, inner Scope) error {
	if f.IfaceNotExists(extIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link add %s type veth peer name %s", extIf, tmpIntIf)); err != nil {
			return err
		}
	}

	_, ifToBr := f.BrctlShow(bridge)
	if _, ok := ifToBr[extIf]; !ok {
		if _, err := f.Shell.Run(fmt.Sprintf("brctl addif %s %s", bridge, extIf)); err != nil {
			return err
		}
	}

	if err := f.IfaceUp(extIf, Host); err != nil {
		return err
	}

	if f.IfaceExists(tmpIntIf, Host) && f.IfaceNotExists(tmpIntIf, inner) {
		target := inner.Netns
		if inner.PID != "" {
			target = inner.PID
		}
		if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s netns %s", tmpIntIf, target)); err != nil {
			return err
		}
		if _, err := f.Shell.Run(scoped(inner, fmt.Sprintf("ip link set dev %s name %s", tmpIntIf, intIf))); err != nil {
			return err
		}
	}

	return f.IfaceUp(intIf, inner)
}

// RemoveVethFromDocker renames the container end back to a temporary name,
// returns it to the root namespace and deletes its host peer.
func (f *Fabric) RemoveVethFromDocker(extIf, intIf, tmpName string) error {
	f.Log.Infof("=== Cleanup port, int_if: %s, ext_if: %s, tmp_name: %s ===", intIf, extIf, tmpName)
	if f.PID != "" && f.IfaceExists(intIf, f.Docker()) {
		if err := f.IfaceDown(intIf, f.Docker()); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s name %s", f.PID, intIf, tmpName)); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s netns 1", f.PID, tmpName)); err != nil {
			return err
		}
	}

	if f.IfaceExists(extIf, Host) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link delete dev %s", extIf), shell.IgnoreErrors()); err != nil {
			return err
		}
	}
	return nil
}

// AddDutIfToDocker moves a DUT front-panel port into the PTF container
// under the PTF interface name.
func (f *Fabric) AddDutIfToDocker(ifaceName, dutIface string) error {
	f.Log.Infof("=== Add DUT interface %s to PTF docker as %s ===", dutIface, ifaceName)
	if f.IfaceExists(dutIface, Host) &&
		f.IfaceNotExists(dutIface, f.Docker()) &&
		f.IfaceNotExists(ifaceName, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("ip link set dev %s netns %s", dutIface, f.PID)); err != nil {
			return err
		}
	}

	if f.IfaceExists(dutIface, f.Docker()) && f.IfaceNotExists(ifaceName, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s name %s", f.PID, dutIface, ifaceName)); err != nil {
			return err
		}
	}

	return f.IfaceUp(ifaceName, f.Docker())
}

// RemoveDutIfFromDocker renames the PTF interface back to the DUT port name
// and returns it to the root namespace. Without a container pid there is
// nothing to restore.
func (f *Fabric) RemoveDutIfFromDocker(ifaceName, dutIface string) error {
	f.Log.Infof("=== Restore docker interface %s as dut interface %s ===", ifaceName, dutIface)
	if f.PID == "" {
		return nil
	}

	if f.IfaceExists(ifaceName, f.Docker()) {
		if err := f.IfaceDown(ifaceName, f.Docker()); err != nil {
			return err
		}
		if f.IfaceNotExists(dutIface, f.Docker()) {
			if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s name %s", f.PID, ifaceName, dutIface)); err != nil {
				return err
			}
		}
	}

	if f.IfaceNotExists(dutIface, Host) && f.IfaceExists(dutIface, f.Docker()) {
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set dev %s netns 1", f.PID, dutIface)); err != nil {
			return err
		}
	}
	return nil
}

// AddDutVlanSubIfToDocker creates a VLAN sub-interface on a PTF interface
// inside the container.
func (f *Fabric) AddDutVlanSubIfToDocker(ifaceName string, sub VlanSubIface) error {
	if f.IfaceNotExists(ifaceName, f.Docker()) {
		return fmt.Errorf("interface %s not present in docker: %w", ifaceName, util.ErrNotFound)
	}
	subName := sub.Name(ifaceName)
	if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link add link %s name %s type vlan id %s",
		f.PID, ifaceName, subName, sub.VlanID)); err != nil {
		return err
	}
	_, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link set %s up", f.PID, subName))
	return err
}

// RemoveDutVlanSubIfFromDocker deletes the VLAN sub-interface.
func (f *Fabric) RemoveDutVlanSubIfFromDocker(ifaceName string, sub VlanSubIface) error {
	if f.PID == "" {
		return nil
	}
	subName := sub.Name(ifaceName)
	if f.IfaceExists(subName, f.Docker()) {
		if err := f.IfaceDown(subName, f.Docker()); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip link del %s", f.PID, subName)); err != nil {
			return err
		}
	}
	return nil
}
