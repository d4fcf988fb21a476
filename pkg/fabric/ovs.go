package fabric

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/util"
)

const bindingRetries = 10

var portBindingRe = regexp.MustCompile(`^\s+(\S+)\((\S+)\):\s+addr:.+$`)

// OVSBridgePorts lists the ports attached to an OVS bridge. A missing
// bridge yields an empty set.
func (f *Fabric) OVSBridgePorts(bridge string) (map[string]bool, error) {
	out, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl list-ports %s", bridge), shell.IgnoreErrors())
	if err != nil {
		return nil, err
	}
	ports := make(map[string]bool)
	for _, port := range strings.Split(out, "\n") {
		if port != "" {
			ports[port] = true
		}
	}
	return ports, nil
}

// OVSBridgeByPort returns the bridge a port is attached to, empty when the
// port is on no bridge.
func (f *Fabric) OVSBridgeByPort(port string) string {
	out, err := f.Shell.Run(fmt.Sprintf("ovs-vsctl port-to-br %s", port))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// OVSPortBindings maps interface names to OpenFlow port ids on a bridge.
// Port additions take a moment to show up in ovs-ofctl, so when wantIfaces
// is non-empty the query retries with linear backoff until all of them are
// bound.
func (f *Fabric) OVSPortBindings(bridge string, wantIfaces []string) (map[string]string, error) {
	for attempt := 0; attempt < bindingRetries; attempt++ {
		out, err := f.Shell.Run(fmt.Sprintf("ovs-ofctl show %s", bridge))
		if err != nil {
			return nil, err
		}
		result := make(map[string]string)
		for _, line := range strings.Split(out, "\n") {
			if m := portBindingRe.FindStringSubmatch(line); m != nil {
				result[m[2]] = m[1]
			}
		}
		complete := true
		for _, iface := range wantIfaces {
			if _, ok := result[iface]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return result, nil
		}
		time.Sleep(time.Duration(2*attempt+1) * time.Second)
	}
	return nil, fmt.Errorf("ports %v not bound on bridge %s: %w", wantIfaces, bridge, util.ErrNotFound)
}
