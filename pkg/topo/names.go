package topo

import (
	"fmt"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// Interface and bridge name templates. Names derived from these must fit
// the 15 byte kernel interface name limit, so the derivations that embed a
// VM or vm set name go through util.AdaptiveName.
const (
	OVSFPBridgeTemplate        = "br-%s-%d"
	OVSFPBridgeRegex           = `br-%s-[0-9]+`
	OVSFPTapTemplate           = "%s-t%d"
	OVSBPTapTemplate           = "%s-back"
	InjectedIfaceTemplate      = "inje-%s-%d"
	MuxyIfaceTemplate          = "muxy-%s-%d"
	ActiveActiveIfaceTemplate  = "iaa-%s-%d"
	ServerNICIfaceTemplate     = "nic-%s-%d"
	MuxyBridgeTemplate         = "mbr-%s-%d"
	ActiveActiveBridgeTemplate = "baa-%s-%d"
	NetnsNameTemplate          = "ns-%s"
	NetnsIfaceTemplate         = "eth%d"
	PTFNameTemplate            = "ptf_%s"
	PTFMgmtIfTemplate          = "ptf-%s-m"
	NetnsMgmtIfTemplate        = "ns-%s-m"
	PTFBPIfTemplate            = "ptf-%s-b"
	RootBackBridgeTemplate     = "br-b-%s"
	PTFFPIfaceTemplate         = "eth%d"
	InterconnectBridgeTemplate = "bic-%s-%s"

	VSChassisInbandBridgeTemplate   = "br-%s-inb"
	VSChassisMidplaneBridgeTemplate = "br-%s-mid"
)

const (
	MgmtPortName = "mgmt"
	BPPortName   = "backplane"
)

// VMSetNameMaxLen bounds vm set names because they are embedded in
// interface names.
const VMSetNameMaxLen = 8

// FPBridgeName returns the OVS front-panel bridge for a VM port.
func FPBridgeName(vmName string, fpIndex int) string {
	return util.AdaptiveName(OVSFPBridgeTemplate, vmName, fpIndex)
}

// FPTapName returns the VM-side tap attached to a front-panel bridge. The
// tap name leads with the VM name itself, so it renders straight from the
// template rather than through AdaptiveName.
func FPTapName(vmName string, fpIndex int) string {
	return fmt.Sprintf(OVSFPTapTemplate, vmName, fpIndex)
}

// InjectedIfaceName returns the PTF injected interface for a host port.
func InjectedIfaceName(vmSetName string, ptfIndex int) string {
	return util.AdaptiveName(InjectedIfaceTemplate, vmSetName, ptfIndex)
}

// MuxyBridgeName returns the dual-ToR mux bridge for a host port.
func MuxyBridgeName(vmSetName string, hostIfIndex int) string {
	return util.AdaptiveName(MuxyBridgeTemplate, vmSetName, hostIfIndex)
}

// MuxyIfaceName returns the PTF-side mux interface for a host port.
func MuxyIfaceName(vmSetName string, hostIfIndex int) string {
	return util.AdaptiveName(MuxyIfaceTemplate, vmSetName, hostIfIndex)
}

// ActiveActiveBridgeName returns the active-active bridge for a host port.
func ActiveActiveBridgeName(vmSetName string, hostIfIndex int) string {
	return util.AdaptiveName(ActiveActiveBridgeTemplate, vmSetName, hostIfIndex)
}

// ActiveActiveIfaceName returns the PTF-side active-active interface.
func ActiveActiveIfaceName(vmSetName string, hostIfIndex int) string {
	return util.AdaptiveName(ActiveActiveIfaceTemplate, vmSetName, hostIfIndex)
}

// ServerNICIfaceName returns the netns-side active-active interface.
func ServerNICIfaceName(vmSetName string, hostIfIndex int) string {
	return util.AdaptiveName(ServerNICIfaceTemplate, vmSetName, hostIfIndex)
}

// BPTapName returns the backplane tap of a VM.
func BPTapName(vmName string) string {
	return fmt.Sprintf(OVSBPTapTemplate, vmName)
}

// PTFName returns the PTF container name of a vm set.
func PTFName(vmSetName string) string {
	return fmt.Sprintf(PTFNameTemplate, vmSetName)
}

// NetnsName returns the network namespace of a vm set.
func NetnsName(vmSetName string) string {
	return fmt.Sprintf(NetnsNameTemplate, vmSetName)
}
