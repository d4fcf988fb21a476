package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testbed-tools/vmtopo/pkg/binder"
	"github.com/testbed-tools/vmtopo/pkg/settings"
	"github.com/testbed-tools/vmtopo/pkg/topo"
)

func newCreateCmd() *cobra.Command {
	var fpMTU int
	var maxFP int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the per-VM front-panel bridge grid",
		Long: `Create max-fp OVS bridges per VM listed in the hosts file.

The grid is created once per server; topologies are then bound and
unbound against it without touching the bridges themselves.

  vmtopo create --hosts hosts.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, fpMTU, maxFP, err := gridInputs(fpMTU, maxFP)
			if err != nil {
				return err
			}
			b := binder.New(binder.Params{Hosts: hosts, FPMTU: fpMTU, MaxFPNum: maxFP}, nil, nil, nil)
			if err := b.Create(); err != nil {
				return err
			}
			fmt.Printf("%s Created %d bridges (%d VMs x %d)\n",
				green("✓"), len(hosts.VMNames)*maxFP, len(hosts.VMNames), maxFP)
			return nil
		},
	}

	cmd.Flags().IntVar(&fpMTU, "fp-mtu", 0, "front-panel MTU (default from settings)")
	cmd.Flags().IntVar(&maxFP, "max-fp", 0, "front-panel bridges per VM (default from settings)")
	return cmd
}

// gridInputs loads the hosts file and applies settings fallbacks for the
// bridge-grid verbs.
func gridInputs(fpMTU, maxFP int) (*topo.Hosts, int, int, error) {
	hostsPath, err := requireHostsFile()
	if err != nil {
		return nil, 0, 0, err
	}
	hosts, err := topo.LoadHosts(hostsPath)
	if err != nil {
		return nil, 0, 0, err
	}
	s, err := settings.Load()
	if err != nil {
		s = &settings.Settings{}
	}
	if fpMTU == 0 {
		fpMTU = s.GetFPMTU()
	}
	if maxFP == 0 {
		maxFP = s.GetMaxFPNum()
	}
	return hosts, fpMTU, maxFP, nil
}
