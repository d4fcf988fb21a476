package topo

import (
	"github.com/testbed-tools/vmtopo/pkg/util"
)

// CheckResult reports which sections a validated topology carries.
type CheckResult struct {
	HostIfExists              bool
	VMsExist                  bool
	DevicesInterconnectExists bool
}

// Check validates the topology sections and global vlan uniqueness. Every
// front-panel port may appear at most once across host interfaces, VM vlans
// and interconnect links.
func (t *Topology) Check() (CheckResult, error) {
	var v util.ValidationBuilder
	var res CheckResult

	seen := make(map[string]bool)
	use := func(ref PortRef, where string) {
		key := ref.Key()
		if seen[key] {
			v.AddErrorf("%s double use of vlan: %s", where, key)
			return
		}
		seen[key] = true
	}

	if len(t.HostInterfaces) > 0 {
		for _, hif := range t.HostInterfaces {
			if len(hif.Legs) == 0 {
				v.AddError("host_interfaces entry has no port")
				continue
			}
			for _, leg := range hif.Legs {
				use(leg, "host_interfaces")
			}
		}
		res.HostIfExists = true
	}

	if len(t.VMs) > 0 {
		for hostname, vm := range t.VMs {
			if vm.Vlans == nil {
				v.AddErrorf("VMs[%s] should contain 'vlans' with a list of vlans", hostname)
				continue
			}
			if vm.VMOffset < 0 {
				v.AddErrorf("VMs[%s] should contain 'vm_offset' with a number", hostname)
			}
			for _, vlan := range vm.Vlans {
				use(vlan, "VMs["+hostname+"]")
			}
		}
		res.VMsExist = true
	}

	if len(t.DevicesInterconnect) > 0 {
		for key, vlans := range t.DevicesInterconnect {
			if len(vlans) == 0 {
				v.AddErrorf("devices_interconnect_interfaces[%s] should list the connected ports", key)
			}
			for _, vlan := range vlans {
				use(vlan, "devices_interconnect_interfaces["+key+"]")
			}
		}
		res.DevicesInterconnectExists = true
	}

	if v.HasErrors() {
		return res, v.Build()
	}
	return res, nil
}
