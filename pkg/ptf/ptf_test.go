package ptf

import (
	"testing"

	"github.com/testbed-tools/vmtopo/internal/testutil"
)

func TestContainerPID(t *testing.T) {
	sh := testutil.NewRunner()
	sh.Output["docker inspect --format {{.State.Running}} ptf_vms1-1"] = "true\n"
	sh.Output["docker inspect --format {{.State.Pid}} ptf_vms1-1"] = "4242\n"

	pid, err := ContainerPID(sh, "vms1-1")
	if err != nil {
		t.Fatal(err)
	}
	if pid != "4242" {
		t.Errorf("pid = %q, want 4242", pid)
	}
}

func TestContainerPIDStopped(t *testing.T) {
	sh := testutil.NewRunner()
	sh.Output["docker inspect --format {{.State.Running}} ptf_vms1-1"] = "false\n"

	pid, err := ContainerPID(sh, "vms1-1")
	if err != nil {
		t.Fatal(err)
	}
	if pid != "" {
		t.Errorf("stopped container must yield empty pid, got %q", pid)
	}
	if sh.Issued("{{.State.Pid}}") {
		t.Error("pid query must be skipped for a stopped container")
	}
}

func TestContainerPIDAbsent(t *testing.T) {
	sh := testutil.NewRunner()
	sh.Failing["docker inspect --format {{.State.Running}} ptf_vms1-1"] = true

	pid, err := ContainerPID(sh, "vms1-1")
	if err != nil {
		t.Fatal(err)
	}
	if pid != "" {
		t.Errorf("absent container must yield empty pid, got %q", pid)
	}
}
