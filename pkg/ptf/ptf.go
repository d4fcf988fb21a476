// Package ptf resolves the PTF docker container of a vm set. The binder
// works against the container's init pid and enters its network namespace
// with nsenter, so all it needs from docker is that single number.
package ptf

import (
	"fmt"
	"strings"

	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/topo"
)

// ContainerPID returns the init pid of the vm set's PTF container, or an
// empty string when the container is absent or stopped. Lifecycle commands
// treat an empty pid as "no container side to touch".
func ContainerPID(sh shell.Runner, vmSetName string) (string, error) {
	name := topo.PTFName(vmSetName)

	out, err := sh.Run(fmt.Sprintf("docker inspect --format {{.State.Running}} %s", name),
		shell.IgnoreErrors())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) != "true" {
		return "", nil
	}

	out, err = sh.Run(fmt.Sprintf("docker inspect --format {{.State.Pid}} %s", name))
	if err != nil {
		return "", err
	}
	pid := strings.TrimSpace(out)
	if pid == "" || pid == "0" {
		return "", nil
	}
	return pid, nil
}
