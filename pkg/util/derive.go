package util

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxIfaceLen is the Linux limit on network interface name length (IFNAMSIZ-1).
const MaxIfaceLen = 15

// tempSuffix marks a temporary veth end awaiting migration into its target
// namespace.
const tempSuffix = "_t"

// fingerprintLen is the number of hex characters kept from the md5 digest
// when deriving temporary names.
const fingerprintLen = 6

// AdaptiveName renders an interface or bridge name from a template such as
// "inje-%s-%d" so that the result fits within MaxIfaceLen. The "-<host>-<index>"
// tail is kept intact and the template's leading token is truncated to whatever
// space remains.
//
//	AdaptiveName("inje-%s-%d", "vms7-6", 21)    -> "inje-vms7-6-21"
//	AdaptiveName("inje-%s-%d", "vms121-1", 121) -> "in-vms121-1-121"
func AdaptiveName(template, host string, index int) string {
	tail := fmt.Sprintf("-%s-%d", host, index)
	leading := strings.SplitN(template, "-", 2)[0]
	if keep := MaxIfaceLen - len(tail); len(leading) > keep {
		if keep < 0 {
			keep = 0
		}
		leading = leading[:keep]
	}
	return leading + tail
}

// Fingerprint returns the first digits hex characters of the md5 digest of
// name, e.g. Fingerprint("ptf-vms1-1-m", 6) -> "1ab3fe". Used to build
// collision-resistant temporary names that concurrent invocations on a shared
// host cannot clash on.
func Fingerprint(name string, digits int) string {
	sum := md5.Sum([]byte(name))
	digest := hex.EncodeToString(sum[:])
	if digits > len(digest) {
		digits = len(digest)
	}
	return digest[:digits]
}

// TempIfaceName derives a temporary name for an interface that is about to be
// created in the root namespace and later migrated into the vm set's PTF
// container. The name embeds a fingerprint of the owning container's name so
// that concurrent invocations for different vm sets never pick the same
// temporary name even for identical final names. reserved leaves headroom for
// a suffix appended later (e.g. a VLAN sub-interface tail like ".10").
func TempIfaceName(vmSetName, ifaceName string, reserved int) (string, error) {
	budget := MaxIfaceLen - reserved
	if budget < fingerprintLen+len(tempSuffix) {
		return "", fmt.Errorf("%w: no room for temporary name of %q (reserved %d)",
			ErrInvalidConfig, ifaceName, reserved)
	}
	ptfName := "ptf_" + vmSetName
	if len(ifaceName) <= budget-len(tempSuffix)-fingerprintLen {
		return Fingerprint(ptfName, fingerprintLen) + ifaceName + tempSuffix, nil
	}
	return Fingerprint(ptfName+ifaceName, fingerprintLen) + tempSuffix, nil
}
