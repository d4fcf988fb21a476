package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testbed-tools/vmtopo/pkg/binder"
)

func newDestroyCmd() *cobra.Command {
	var maxFP int

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove the per-VM front-panel bridge grid",
		Long: `Remove the OVS bridges created by 'vmtopo create'.

Bound topologies should be unbound first; bridge removal does not
clean up ports that other vm sets still use.

  vmtopo destroy --hosts hosts.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, _, maxFP, err := gridInputs(0, maxFP)
			if err != nil {
				return err
			}
			b := binder.New(binder.Params{Hosts: hosts, MaxFPNum: maxFP}, nil, nil, nil)
			if err := b.Destroy(); err != nil {
				return err
			}
			fmt.Printf("%s Destroyed %d bridges (%d VMs x %d)\n",
				green("✓"), len(hosts.VMNames)*maxFP, len(hosts.VMNames), maxFP)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxFP, "max-fp", 0, "front-panel bridges per VM (default from settings)")
	return cmd
}
