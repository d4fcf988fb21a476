// Package binder sequences full topology runs. It resolves the declarative
// topology against the server facts, derives the fabric context for the vm
// set, and drives the fabric operations each verb requires, fanning
// per-port work out through the task executor.
package binder

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/pkg/fabric"
	"github.com/testbed-tools/vmtopo/pkg/ptf"
	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/util"
	"github.com/testbed-tools/vmtopo/pkg/worker"
)

// VM-to-VM link bridges are created with a fixed jumbo MTU.
const vmLinkMTU = 9000

// Params carries the inputs of one binder run. Topo and Hosts are always
// required; the PTF addressing fields only matter for the verbs that
// configure the container.
type Params struct {
	VMSetName     string
	VMBase        string
	CurrentVMName string

	Topo     *topo.Topology
	Hosts    *topo.Hosts
	MuxFacts topo.MuxFacts

	PTFMgmtIP      string
	PTFMgmtIPv6    string
	PTFMgmtGW      string
	PTFMgmtGWv6    string
	PTFExtraMgmtIP []string
	PTFBPIP        string
	PTFBPIPv6      string
	NetnsMgmtIP    string

	MgmtBridge string

	FPMTU    int
	MaxFPNum int

	VSChassis bool
	Batch     bool
}

// Binder executes topology verbs against one vm set.
type Binder struct {
	p   Params
	sh  shell.Runner
	log *logrus.Logger
	w   *worker.Worker

	m     *topo.Model
	check topo.CheckResult
	fab   *fabric.Fabric

	// sysClassNet is the interface listing consulted by the bridge
	// precondition check. Overridden in tests.
	sysClassNet string
}

// New returns a Binder. A nil shell runs commands on the host, a nil worker
// means serial execution, a nil logger uses the global one.
func New(p Params, sh shell.Runner, log *logrus.Logger, w *worker.Worker) *Binder {
	if sh == nil {
		sh = shell.Exec{}
	}
	if log == nil {
		log = util.Logger
	}
	if w == nil {
		w = worker.New(false, 1)
	}
	b := &Binder{p: p, sh: sh, log: log, w: w, sysClassNet: "/sys/class/net"}
	b.fab = fabric.New(sh, log)
	b.fab.VMSetName = p.VMSetName
	b.fab.MTU = p.FPMTU
	return b
}

// resolve validates the topology, builds the model and the fabric context.
// requirePTF makes a stopped PTF container an error; teardown verbs pass
// false so container-side operations degrade to no-ops instead.
func (b *Binder) resolve(requirePTF, checkBridge bool) error {
	if len(b.p.VMSetName) > topo.VMSetNameMaxLen {
		return fmt.Errorf("vm set name %q is longer than %d characters: %w",
			b.p.VMSetName, topo.VMSetNameMaxLen, util.ErrInvalidConfig)
	}

	check, err := b.p.Topo.Check()
	if err != nil {
		return err
	}
	b.check = check

	if check.VMsExist && b.p.VMBase == "" {
		return fmt.Errorf("vm base is required when the topology has VMs: %w", util.ErrInvalidConfig)
	}

	m, err := topo.NewModel(b.p.Topo, b.p.Hosts, topo.ModelParams{
		VMSetName:     b.p.VMSetName,
		VMBase:        b.p.VMBase,
		CurrentVMName: b.p.CurrentVMName,
		FPMTU:         b.p.FPMTU,
		MaxFPNum:      b.p.MaxFPNum,
		MuxFacts:      b.p.MuxFacts,
	})
	if err != nil {
		return err
	}
	b.m = m
	b.fab.Netns = m.Netns

	pid, err := ptf.ContainerPID(b.sh, b.p.VMSetName)
	if err != nil {
		return err
	}
	if pid == "" && requirePTF {
		return fmt.Errorf("ptf container %s is not running: %w", topo.PTFName(b.p.VMSetName), util.ErrNotFound)
	}
	b.fab.PID = pid

	if checkBridge {
		return b.checkBridges()
	}
	return nil
}

// checkBridges verifies that every VM exposes at least as many front-panel
// bridges as the topology asks it to terminate.
func (b *Binder) checkBridges() error {
	entries, err := os.ReadDir(b.sysClassNet)
	if err != nil {
		return fmt.Errorf("list %s: %w", b.sysClassNet, err)
	}
	for _, hostname := range sortedKeys(b.m.VMs) {
		vm := b.m.VMs[hostname]
		vmName, err := b.m.VMName(hostname)
		if err != nil {
			return err
		}
		re, err := regexp.Compile(fmt.Sprintf(topo.OVSFPBridgeRegex, regexp.QuoteMeta(vmName)))
		if err != nil {
			return err
		}
		count := 0
		for _, e := range entries {
			if re.MatchString(e.Name()) {
				count++
			}
		}
		if len(vm.Vlans) > count {
			return fmt.Errorf("vm %s (%s) terminates %d vlans but has only %d front-panel bridges: %w",
				hostname, vmName, len(vm.Vlans), count, util.ErrValidationFailed)
		}
	}
	return nil
}

// taskFabric clones the fabric context with a per-task logger so parallel
// tasks keep their log output contiguous.
func (b *Binder) taskFabric(log *logrus.Logger) *fabric.Fabric {
	f := *b.fab
	f.Log = log
	return &f
}

// Create builds the per-VM front-panel bridge grid. It touches only OVS
// state, so it needs neither the model nor the PTF container.
func (b *Binder) Create() error {
	for _, vm := range b.p.Hosts.SortedVMNames() {
		for fp := 0; fp < b.p.MaxFPNum; fp++ {
			if err := b.fab.CreateOVSBridge(topo.FPBridgeName(vm, fp), b.p.FPMTU); err != nil {
				return err
			}
		}
	}
	return nil
}

// Destroy removes the per-VM front-panel bridge grid.
func (b *Binder) Destroy() error {
	for _, vm := range b.p.Hosts.SortedVMNames() {
		for fp := 0; fp < b.p.MaxFPNum; fp++ {
			if err := b.fab.DestroyOVSBridge(topo.FPBridgeName(vm, fp)); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
