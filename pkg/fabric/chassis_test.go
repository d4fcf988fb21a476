package fabric

import (
	"testing"
)

func TestBindChassisPorts(t *testing.T) {
	f, sh := newTestFabric()
	sh.Failing["ovs-vsctl port-to-br lc1-mid"] = true
	sh.Output["ovs-vsctl port-to-br lc1-inb"] = "br-stale\n"

	midplane := map[string][]string{"lc1": {"lc1-mid"}}
	inband := map[string][]string{"lc1": {"lc1-inb"}}
	if err := f.BindChassisPorts("br-chassis-mid", "br-chassis-inb", midplane, inband); err != nil {
		t.Fatal(err)
	}

	if !sh.Issued("ovs-vsctl --may-exist add-br br-chassis-mid") ||
		!sh.Issued("ovs-vsctl --may-exist add-br br-chassis-inb") {
		t.Error("chassis bridges not created")
	}
	if !sh.Issued("ovs-vsctl --may-exist add-port br-chassis-mid lc1-mid") {
		t.Errorf("midplane port not enrolled, got %v", sh.Cmds())
	}
	if !sh.Issued("ovs-vsctl --if-exists del-port br-stale lc1-inb") {
		t.Error("stale inband enrollment not cleared")
	}
	if !sh.Issued("ovs-vsctl --may-exist add-port br-chassis-inb lc1-inb") {
		t.Error("inband port not enrolled")
	}
}

func TestUnbindChassisPorts(t *testing.T) {
	f, sh := newTestFabric()
	sh.Output["ovs-vsctl list-ports br-chassis-mid"] = "lc1-mid\n"
	sh.Output["ovs-vsctl list-ports br-chassis-inb"] = "lc1-inb\n"

	midplane := map[string][]string{"lc1": {"lc1-mid"}}
	inband := map[string][]string{"lc1": {"lc1-inb"}}
	if err := f.UnbindChassisPorts("br-chassis-mid", "br-chassis-inb", midplane, inband); err != nil {
		t.Fatal(err)
	}

	if !sh.Issued("ovs-vsctl --if-exists del-port br-chassis-mid lc1-mid") ||
		!sh.Issued("ovs-vsctl --if-exists del-port br-chassis-inb lc1-inb") {
		t.Errorf("ports not detached, got %v", sh.Cmds())
	}
	if !sh.Issued("ovs-vsctl --if-exists del-br br-chassis-mid") ||
		!sh.Issued("ovs-vsctl --if-exists del-br br-chassis-inb") {
		t.Error("chassis bridges not deleted")
	}
}
