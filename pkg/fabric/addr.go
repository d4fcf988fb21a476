package fabric

import (
	"fmt"
)

// DockerAddrSpec carries the addressing applied to a container interface.
type DockerAddrSpec struct {
	IPv4    string
	IPv6    string
	GWv4    string
	GWv6    string
	ExtraIP []string
	// ReplaceDefaultRoute drops the container's existing default route
	// before installing the gateway. Used when re-homing a management port.
	ReplaceDefaultRoute bool
}

// AddIPToDockerIf configures addresses and default routes on a container
// interface. Each address and route is applied only if absent.
func (f *Fabric) AddIPToDockerIf(intIf string, spec DockerAddrSpec) error {
	if !f.IfaceExists(intIf, f.Docker()) {
		return nil
	}

	if !f.IPExists(intIf, spec.IPv4, f.Docker(), false) {
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip addr add %s dev %s", f.PID, spec.IPv4, intIf)); err != nil {
			return err
		}
	}
	for _, addr := range spec.ExtraIP {
		if addr == "" {
			continue
		}
		if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip addr add %s dev %s", f.PID, addr, intIf)); err != nil {
			return err
		}
	}
	if spec.GWv4 != "" {
		if spec.ReplaceDefaultRoute {
			if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip route del default", f.PID)); err != nil {
				return err
			}
		}
		if !f.RouteExists(spec.GWv4, f.Docker(), false) {
			if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip route add default via %s dev %s",
				f.PID, spec.GWv4, intIf)); err != nil {
				return err
			}
		}
	}
	if spec.IPv6 != "" {
		if !f.IPExists(intIf, spec.IPv6, f.Docker(), true) {
			if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip -6 addr add %s dev %s", f.PID, spec.IPv6, intIf)); err != nil {
				return err
			}
		}
		if spec.GWv6 != "" && !f.RouteExists(spec.GWv6, f.Docker(), true) {
			if _, err := f.Shell.Run(fmt.Sprintf("nsenter -t %s -n ip -6 route add default via %s dev %s",
				f.PID, spec.GWv6, intIf)); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddIPToNetnsIf configures an address on a netns interface. Unlike the
// container path, existing addresses and default routes are flushed first.
func (f *Fabric) AddIPToNetnsIf(intIf, ipAddr, ipv6Addr, gw, gwV6 string) error {
	if !f.IfaceExists(intIf, f.NetnsScope()) {
		return nil
	}

	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip addr flush dev %s", f.Netns, intIf)); err != nil {
		return err
	}
	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip addr add %s dev %s", f.Netns, ipAddr, intIf)); err != nil {
		return err
	}
	if gw != "" {
		if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip route flush default", f.Netns)); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip route add default via %s dev %s",
			f.Netns, gw, intIf)); err != nil {
			return err
		}
	}
	if ipv6Addr != "" {
		if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip -6 addr flush dev %s", f.Netns, intIf)); err != nil {
			return err
		}
		if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip -6 addr add %s dev %s", f.Netns, ipv6Addr, intIf)); err != nil {
			return err
		}
		if gwV6 != "" {
			if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip -6 route flush default", f.Netns)); err != nil {
				return err
			}
			if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip -6 route add default via %s dev %s",
				f.Netns, gwV6, intIf)); err != nil {
				return err
			}
		}
	}
	return nil
}
