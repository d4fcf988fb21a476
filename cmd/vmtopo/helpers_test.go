package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/testbed-tools/vmtopo/pkg/topo"
)

const testTopoYAML = `
VMs:
  ARISTA01T1:
    vm_offset: 0
    vlans: [0]
host_interfaces: [1]
`

const testHostsYAML = `
vm_names: [VM0100]
duts_name: [dut-01]
duts_fp_ports:
  dut-01:
    "0": enp0s1
    "1": enp0s2
mgmt_bridge: br1
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRequireHostsFile(t *testing.T) {
	defer func(old string) { hostsFile = old }(hostsFile)

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("VMTOPO_HOSTS", "/env/hosts.yml")
		hostsFile = "/flag/hosts.yml"
		got, err := requireHostsFile()
		if err != nil {
			t.Fatal(err)
		}
		if got != "/flag/hosts.yml" {
			t.Errorf("got %q, want flag value", got)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("VMTOPO_HOSTS", "/env/hosts.yml")
		hostsFile = ""
		got, err := requireHostsFile()
		if err != nil {
			t.Fatal(err)
		}
		if got != "/env/hosts.yml" {
			t.Errorf("got %q, want env value", got)
		}
	})

	t.Run("nothing set errors", func(t *testing.T) {
		t.Setenv("VMTOPO_HOSTS", "")
		os.Unsetenv("VMTOPO_HOSTS")
		t.Setenv("HOME", t.TempDir())
		hostsFile = ""
		if _, err := requireHostsFile(); err == nil {
			t.Error("expected error with no hosts file source")
		}
	})
}

func TestMissingPortMapDUTs(t *testing.T) {
	h := &topo.Hosts{
		DUTNames: []string{"dut-01", "dut-02", "dut-03"},
		DUTFPPorts: map[string]map[string]string{
			"dut-02": {"0": "enp0s1"},
		},
	}
	got := missingPortMapDUTs(h)
	want := []string{"dut-01", "dut-03"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("missingPortMapDUTs() = %v, want %v", got, want)
	}
}

func TestDiscoverPortMapsNoSpecs(t *testing.T) {
	h := &topo.Hosts{DUTNames: []string{"dut-01"}}
	if err := discoverPortMaps(context.Background(), h, nil); err != nil {
		t.Fatalf("no specs should be a no-op: %v", err)
	}
	if len(h.DUTFPPorts) != 0 {
		t.Error("no specs should leave port maps untouched")
	}
}

func TestDiscoverPortMapsTooFewSpecs(t *testing.T) {
	h := &topo.Hosts{DUTNames: []string{"dut-01", "dut-02"}}
	err := discoverPortMaps(context.Background(), h, []string{"admin:pw@10.0.0.1"})
	if err == nil {
		t.Error("expected error with fewer specs than missing DUTs")
	}
}

func TestDiscoverPortMapsBadSpec(t *testing.T) {
	h := &topo.Hosts{DUTNames: []string{"dut-01"}}
	err := discoverPortMaps(context.Background(), h, []string{"not-a-spec"})
	if err == nil {
		t.Error("expected error for malformed --dut-ssh spec")
	}
}

func TestBindFlagsParams(t *testing.T) {
	defer func(old string) { hostsFile = old }(hostsFile)
	t.Setenv("HOME", t.TempDir())
	hostsFile = writeTestFile(t, "hosts.yml", testHostsYAML)

	f := bindFlags{
		vmSet:    "vms1-1",
		topoFile: writeTestFile(t, "topo.yml", testTopoYAML),
		vmBase:   "VM0100",
	}
	p, w, err := f.params(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if p.VMSetName != "vms1-1" || p.VMBase != "VM0100" {
		t.Errorf("vm set fields not carried: %+v", p)
	}
	if p.MgmtBridge != "br1" {
		t.Errorf("MgmtBridge = %q, want hosts file value br1", p.MgmtBridge)
	}
	if p.FPMTU != 9216 {
		t.Errorf("FPMTU = %d, want settings fallback 9216", p.FPMTU)
	}
	if p.MaxFPNum != 4 {
		t.Errorf("MaxFPNum = %d, want settings fallback 4", p.MaxFPNum)
	}
	if len(p.Topo.VMs) != 1 || len(p.Hosts.VMNames) != 1 {
		t.Errorf("input files not loaded: %+v", p)
	}
	if !w.Parallel() {
		t.Error("default worker pool should be parallel")
	}
}

func TestBindFlagsParamsSerial(t *testing.T) {
	defer func(old string) { hostsFile = old }(hostsFile)
	t.Setenv("HOME", t.TempDir())
	hostsFile = writeTestFile(t, "hosts.yml", testHostsYAML)

	f := bindFlags{
		vmSet:    "vms1-1",
		topoFile: writeTestFile(t, "topo.yml", testTopoYAML),
		workers:  1,
	}
	_, w, err := f.params(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if w.Parallel() {
		t.Error("one worker should run serial")
	}

	f.workers = 0
	f.serial = true
	_, w, err = f.params(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if w.Parallel() {
		t.Error("--serial should force serial execution")
	}
}

func TestBindFlagsParamsOverrides(t *testing.T) {
	defer func(old string) { hostsFile = old }(hostsFile)
	t.Setenv("HOME", t.TempDir())
	hostsFile = writeTestFile(t, "hosts.yml", testHostsYAML)

	f := bindFlags{
		vmSet:      "vms1-1",
		topoFile:   writeTestFile(t, "topo.yml", testTopoYAML),
		fpMTU:      9000,
		maxFP:      2,
		mgmtBridge: "br-mgmt",
	}
	p, _, err := f.params(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.FPMTU != 9000 || p.MaxFPNum != 2 {
		t.Errorf("flag overrides not applied: FPMTU=%d MaxFPNum=%d", p.FPMTU, p.MaxFPNum)
	}
	if p.MgmtBridge != "br-mgmt" {
		t.Errorf("MgmtBridge = %q, want flag override", p.MgmtBridge)
	}
}
