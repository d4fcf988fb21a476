// Package topo holds the declarative topology model: the vm/host/link
// descriptions bound by the fabric, the environment facts about the execution
// host, and the validation run before any OS state is touched.
package topo

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var portRefRegexp = regexp.MustCompile(`^(\d+)\.(\d+)(?:@(\d+))?$`)

// PortRef addresses one logical port: vlan index VlanIndex on DUT DUTIndex,
// appearing in the PTF container as port PTFIndex.
//
// Two wire forms exist: a bare integer (single-DUT legacy, dut 0 and ptf =
// vlan) and the compact string "<dut>.<vlan>@<ptf>", where "@<ptf>" defaults
// to the vlan index.
type PortRef struct {
	DUTIndex  int
	VlanIndex int
	PTFIndex  int

	// ExplicitPTF records whether the wire form carried "@<ptf>". Host
	// interface numbering falls back to positional order when it did not.
	ExplicitPTF bool
}

// ParsePortRef parses the compact string form.
func ParsePortRef(s string) (PortRef, error) {
	m := portRefRegexp.FindStringSubmatch(s)
	if m == nil {
		return PortRef{}, fmt.Errorf("malformed port reference %q, want \"<dut>.<vlan>\" or \"<dut>.<vlan>@<ptf>\"", s)
	}
	dut, _ := strconv.Atoi(m[1])
	vlan, _ := strconv.Atoi(m[2])
	ptf := vlan
	explicit := m[3] != ""
	if explicit {
		ptf, _ = strconv.Atoi(m[3])
	}
	return PortRef{DUTIndex: dut, VlanIndex: vlan, PTFIndex: ptf, ExplicitPTF: explicit}, nil
}

// PortRefFromInt builds the legacy single-DUT form: dut 0, ptf index equal to
// the vlan index.
func PortRefFromInt(vlan int) PortRef {
	return PortRef{DUTIndex: 0, VlanIndex: vlan, PTFIndex: vlan}
}

func (p PortRef) String() string {
	return fmt.Sprintf("%d.%d@%d", p.DUTIndex, p.VlanIndex, p.PTFIndex)
}

// UnmarshalYAML accepts either the integer or the string form.
func (p *PortRef) UnmarshalYAML(node *yaml.Node) error {
	var asInt int
	if err := node.Decode(&asInt); err == nil {
		if asInt < 0 {
			return fmt.Errorf("port reference must be a positive integer, got %d", asInt)
		}
		*p = PortRefFromInt(asInt)
		return nil
	}
	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("port reference must be an integer or a string")
	}
	ref, err := ParsePortRef(asString)
	if err != nil {
		return err
	}
	*p = ref
	return nil
}

// Key identifies the physical port (dut, vlan) irrespective of ptf numbering;
// duplicate-use validation is keyed on it.
func (p PortRef) Key() string {
	return fmt.Sprintf("%d.%d", p.DUTIndex, p.VlanIndex)
}
