package fabric

import (
	"fmt"
)

// BindChassisPorts builds the midplane and inband OVS bridges of a virtual
// chassis and enrolls every line card's ports into them.
func (f *Fabric) BindChassisPorts(midplaneBr, inbandBr string, midplanePorts, inbandPorts map[string][]string) error {
	if err := f.CreateOVSBridge(inbandBr, f.MTU); err != nil {
		return err
	}
	if err := f.CreateOVSBridge(midplaneBr, f.MTU); err != nil {
		return err
	}
	for _, ports := range midplanePorts {
		for _, port := range ports {
			if err := f.bindChassisPort(midplaneBr, port); err != nil {
				return err
			}
		}
	}
	for _, ports := range inbandPorts {
		for _, port := range ports {
			if err := f.bindChassisPort(inbandBr, port); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnbindChassisPorts tears the chassis bridges down after detaching the
// line card ports.
func (f *Fabric) UnbindChassisPorts(midplaneBr, inbandBr string, midplanePorts, inbandPorts map[string][]string) error {
	for _, ports := range midplanePorts {
		for _, port := range ports {
			if err := f.unbindChassisPort(midplaneBr, port); err != nil {
				return err
			}
		}
	}
	for _, ports := range inbandPorts {
		for _, port := range ports {
			if err := f.unbindChassisPort(inbandBr, port); err != nil {
				return err
			}
		}
	}
	if err := f.DestroyOVSBridge(inbandBr); err != nil {
		return err
	}
	return f.DestroyOVSBridge(midplaneBr)
}

func (f *Fabric) bindChassisPort(brName, port string) error {
	if br := f.OVSBridgeByPort(port); br != "" && br != brName {
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --if-exists del-port %s %s", br, port)); err != nil {
			return err
		}
	}
	ports, err := f.OVSBridgePorts(brName)
	if err != nil {
		return err
	}
	if !ports[port] {
		if _, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl --may-exist add-port %s %s", brName, port)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fabric) unbindChassisPort(brName, port string) error {
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
