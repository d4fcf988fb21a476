package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testbed-tools/vmtopo/pkg/binder"
	"github.com/testbed-tools/vmtopo/pkg/dutdb"
	"github.com/testbed-tools/vmtopo/pkg/settings"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/worker"
)

// bindFlags is the flag set shared by the verbs that resolve a full
// topology model (bind, renumber, unbind, connect-vms, disconnect-vms).
type bindFlags struct {
	vmSet     string
	topoFile  string
	vmBase    string
	currentVM string

	muxFactsFile string
	dutSSH       []string
	mgmtBridge   string

	ptfMgmtIP      string
	ptfMgmtIPv6    string
	ptfMgmtGW      string
	ptfMgmtGWv6    string
	ptfExtraMgmtIP []string
	ptfBPIP        string
	ptfBPIPv6      string
	netnsMgmtIP    string

	fpMTU     int
	maxFP     int
	vsChassis bool
	batch     bool
	workers   int
	serial    bool
}

// register wires the shared flags onto cmd. addressing adds the PTF
// container addressing flags, which teardown verbs do not take.
func (f *bindFlags) register(cmd *cobra.Command, addressing bool) {
	cmd.Flags().StringVarP(&f.vmSet, "vm-set", "s", "", "vm set name (at most 8 characters)")
	cmd.Flags().StringVarP(&f.topoFile, "topo", "t", "", "topology file")
	cmd.Flags().StringVar(&f.vmBase, "vm-base", "", "first VM of the set (anchors vm_offset)")
	cmd.Flags().StringVar(&f.currentVM, "current-vm", "", "restrict front-panel binding to this VM")
	cmd.Flags().StringVar(&f.muxFactsFile, "mux-facts", "", "mux cable facts file (dual-ToR)")
	cmd.Flags().StringArrayVar(&f.dutSSH, "dut-ssh", nil, "user:pass@host for DUTs whose port map is omitted")
	cmd.Flags().StringVar(&f.mgmtBridge, "mgmt-bridge", "", "management bridge (default from hosts file)")
	cmd.Flags().IntVar(&f.fpMTU, "fp-mtu", 0, "front-panel MTU (default from settings)")
	cmd.Flags().IntVar(&f.maxFP, "max-fp", 0, "front-panel bridges per VM (default from settings)")
	cmd.Flags().BoolVar(&f.vsChassis, "vs-chassis", false, "bind virtual-chassis midplane/inband bridges")
	cmd.Flags().BoolVar(&f.batch, "batch", false, "batch flow programming through temp files")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "front-panel binding concurrency (default from settings)")
	cmd.Flags().BoolVar(&f.serial, "serial", false, "force serial front-panel binding")

	cmd.MarkFlagRequired("vm-set")
	cmd.MarkFlagRequired("topo")

	if !addressing {
		return
	}
	cmd.Flags().StringVar(&f.ptfMgmtIP, "ptf-mgmt-ip", "", "PTF mgmt address (CIDR)")
	cmd.Flags().StringVar(&f.ptfMgmtIPv6, "ptf-mgmt-ipv6", "", "PTF mgmt IPv6 address (CIDR)")
	cmd.Flags().StringVar(&f.ptfMgmtGW, "ptf-mgmt-gw", "", "PTF mgmt gateway")
	cmd.Flags().StringVar(&f.ptfMgmtGWv6, "ptf-mgmt-gw-v6", "", "PTF mgmt IPv6 gateway")
	cmd.Flags().StringArrayVar(&f.ptfExtraMgmtIP, "ptf-extra-mgmt-ip", nil, "extra PTF mgmt addresses (CIDR)")
	cmd.Flags().StringVar(&f.ptfBPIP, "ptf-bp-ip", "", "PTF backplane address (CIDR)")
	cmd.Flags().StringVar(&f.ptfBPIPv6, "ptf-bp-ipv6", "", "PTF backplane IPv6 address (CIDR)")
	cmd.Flags().StringVar(&f.netnsMgmtIP, "netns-mgmt-ip", "", "netns mgmt address for active-active (CIDR)")
}

// params loads the input files and builds the binder inputs.
func (f *bindFlags) params(ctx context.Context) (binder.Params, *worker.Worker, error) {
	hostsPath, err := requireHostsFile()
	if err != nil {
		return binder.Params{}, nil, err
	}
	hosts, err := topo.LoadHosts(hostsPath)
	if err != nil {
		return binder.Params{}, nil, err
	}
	t, err := topo.LoadTopology(f.topoFile)
	if err != nil {
		return binder.Params{}, nil, err
	}

	var muxFacts topo.MuxFacts
	if f.muxFactsFile != "" {
		muxFacts, err = topo.LoadMuxFacts(f.muxFactsFile)
		if err != nil {
			return binder.Params{}, nil, err
		}
	}

	if err := discoverPortMaps(ctx, hosts, f.dutSSH); err != nil {
		return binder.Params{}, nil, err
	}

	s, err := settings.Load()
	if err != nil {
		s = &settings.Settings{}
	}
	fpMTU := f.fpMTU
	if fpMTU == 0 {
		fpMTU = s.GetFPMTU()
	}
	maxFP := f.maxFP
	if maxFP == 0 {
		maxFP = s.GetMaxFPNum()
	}
	workers := f.workers
	if workers == 0 {
		workers = s.Workers
	}
	if workers == 0 {
		workers = worker.DefaultCount()
	}
	batch := f.batch || s.Batch

	mgmtBridge := f.mgmtBridge
	if mgmtBridge == "" {
		mgmtBridge = hosts.MgmtBridge
	}

	p := binder.Params{
		VMSetName:     f.vmSet,
		VMBase:        f.vmBase,
		CurrentVMName: f.currentVM,

		Topo:     t,
		Hosts:    hosts,
		MuxFacts: muxFacts,

		PTFMgmtIP:      f.ptfMgmtIP,
		PTFMgmtIPv6:    f.ptfMgmtIPv6,
		PTFMgmtGW:      f.ptfMgmtGW,
		PTFMgmtGWv6:    f.ptfMgmtGWv6,
		PTFExtraMgmtIP: f.ptfExtraMgmtIP,
		PTFBPIP:        f.ptfBPIP,
		PTFBPIPv6:      f.ptfBPIPv6,
		NetnsMgmtIP:    f.netnsMgmtIP,

		MgmtBridge: mgmtBridge,

		FPMTU:    fpMTU,
		MaxFPNum: maxFP,

		VSChassis: f.vsChassis,
		Batch:     batch,
	}
	w := worker.New(!f.serial && workers > 1, workers)
	return p, w, nil
}

// binder builds a ready-to-run Binder from the flag set.
func (f *bindFlags) binder(ctx context.Context) (*binder.Binder, error) {
	p, w, err := f.params(ctx)
	if err != nil {
		return nil, err
	}
	return binder.New(p, nil, nil, w), nil
}

// missingPortMapDUTs returns the DUTs whose front-panel port map is absent
// from the hosts file, in duts_name order.
func missingPortMapDUTs(h *topo.Hosts) []string {
	var missing []string
	for _, name := range h.DUTNames {
		if len(h.DUTFPPorts[name]) == 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

// discoverPortMaps fills in missing DUT port maps from CONFIG_DB, one
// --dut-ssh spec per missing DUT in duts_name order. With no specs the
// port maps stay absent and per-leg binding skips those legs.
func discoverPortMaps(ctx context.Context, h *topo.Hosts, specs []string) error {
	missing := missingPortMapDUTs(h)
	if len(specs) == 0 {
		return nil
	}
	if len(specs) < len(missing) {
		return fmt.Errorf("%d DUTs lack a port map but only %d --dut-ssh specs given", len(missing), len(specs))
	}
	if h.DUTFPPorts == nil {
		h.DUTFPPorts = make(map[string]map[string]string, len(missing))
	}
	for i, dut := range missing {
		creds, err := dutdb.ParseCredentials(specs[i])
		if err != nil {
			return err
		}
		ports, err := dutdb.FrontPanelPorts(ctx, creds)
		if err != nil {
			return fmt.Errorf("discover front-panel ports of %s: %w", dut, err)
		}
		h.DUTFPPorts[dut] = ports
	}
	return nil
}
