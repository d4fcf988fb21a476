// Package fabric issues the link, bridge, address and flow programming
// commands that attach DUT ports, VM taps and PTF interfaces to each other.
// Every interface mutation is expressed as a shell command through the
// gateway so the full OS interaction of a run can be observed and tested.
package fabric

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/pkg/shell"
)

// DefaultMTU means "leave the kernel default alone".
const DefaultMTU = 0

const existsRetry = 3

// Scope selects the network namespace a command runs in: the host when
// empty, a container's namespace via nsenter when PID is set, or a named
// namespace via ip netns otherwise. PID wins when both are set.
type Scope struct {
	PID   string
	Netns string
}

// Host is the root network namespace.
var Host = Scope{}

// Fabric carries the per-run context fabric operations need: the command
// gateway, the task logger, and where the PTF container and netns live.
type Fabric struct {
	Shell shell.Runner
	Log   *logrus.Logger

	VMSetName string
	// PID is the PTF container's init pid, empty when the container is
	// absent. Container-side operations become no-ops then.
	PID   string
	Netns string
	MTU   int

	// RTTablesPath is the routing table registry consulted by source
	// routing setup. Overridden in tests.
	RTTablesPath string
}

// New returns a Fabric bound to a gateway and logger.
func New(sh shell.Runner, log *logrus.Logger) *Fabric {
	return &Fabric{Shell: sh, Log: log, RTTablesPath: "/etc/iproute2/rt_tables"}
}

// Docker is the PTF container scope.
func (f *Fabric) Docker() Scope { return Scope{PID: f.PID} }

// NetnsScope is the vm set's network namespace scope.
func (f *Fabric) NetnsScope() Scope { return Scope{Netns: f.Netns} }

// scoped wraps a command line for execution inside sc.
func scoped(sc Scope, cmdline string) string {
	if sc.PID != "" {
		return fmt.Sprintf("nsenter -t %s -n %s", sc.PID, cmdline)
	}
	if sc.Netns != "" {
		return fmt.Sprintf("ip netns exec %s %s", sc.Netns, cmdline)
	}
	return cmdline
}

// IfaceExists checks interface presence in the given scope.
func (f *Fabric) IfaceExists(iface string, sc Scope) bool {
	cmdline := scoped(sc, fmt.Sprintf("ifconfig -a %s", iface))
	_, err := f.Shell.Run(cmdline, shell.Retry(existsRetry))
	return err == nil
}

// IfaceNotExists checks interface absence in the given scope. The command
// is expected to fail; retries cover eventually consistent teardown.
func (f *Fabric) IfaceNotExists(iface string, sc Scope) bool {
	cmdline := scoped(sc, fmt.Sprintf("ifconfig -a %s", iface))
	_, err := f.Shell.Run(cmdline, shell.Retry(existsRetry), shell.Negative())
	return err == nil
}

// IPExists checks whether addr is configured on iface in the given scope.
func (f *Fabric) IPExists(iface, addr string, sc Scope, ipv6 bool) bool {
	addrCmd := "ip addr show"
	if ipv6 {
		addrCmd = "ip -6 addr show"
	}
	out, err := f.Shell.Run(scoped(sc, fmt.Sprintf("%s dev %s", addrCmd, iface)), shell.Retry(existsRetry))
	if err != nil {
		return false
	}
	return contains(out, addr)
}

// RouteExists checks whether gw appears in the scope's default routes.
func (f *Fabric) RouteExists(gw string, sc Scope, ipv6 bool) bool {
	routeCmd := "ip route show default"
	if ipv6 {
		routeCmd = "ip -6 route show default"
	}
	out, err := f.Shell.Run(scoped(sc, routeCmd), shell.Retry(existsRetry))
	if err != nil {
		return false
	}
	return contains(out, gw)
}

// IfaceUp brings an interface up in the given scope. On the host a missing
// interface is tolerated.
func (f *Fabric) IfaceUp(iface string, sc Scope) error {
	return f.ifaceUpDown(iface, "up", sc)
}

// IfaceDown brings an interface down in the given scope.
func (f *Fabric) IfaceDown(iface string, sc Scope) error {
	return f.ifaceUpDown(iface, "down", sc)
}

func (f *Fabric) ifaceUpDown(iface, state string, sc Scope) error {
	cmdline := scoped(sc, fmt.Sprintf("ip link set %s %s", iface, state))
	if sc == Host {
		_, err := f.Shell.Run(cmdline, shell.IgnoreErrors())
		return err
	}
	_, err := f.Shell.Run(cmdline)
	return err
}

// DisableTxOffload turns TX checksum offload off so the kernel does not
// hand partially checksummed frames to the sniffing side.
func (f *Fabric) DisableTxOffload(iface string, sc Scope) error {
	_, err := f.Shell.Run(scoped(sc, fmt.Sprintf("ethtool -K %s tx off", iface)))
	return err
}

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
