package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBindCmd() *cobra.Command {
	var f bindFlags

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind a topology to a vm set",
		Long: `Bind a topology onto the host: enroll VM front-panel taps and
injected PTF ports into the bridge grid, program the OVS flow tables,
wire DUT ports, management and backplane networks, dual-ToR cables,
and device interconnects.

  vmtopo bind -t topo.yml -s vms1-1 --vm-base VM0100 \
      --ptf-mgmt-ip 10.250.0.102/24 --ptf-mgmt-gw 10.250.0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := f.binder(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.Bind(); err != nil {
				return err
			}
			fmt.Printf("%s Bound %s to vm set %s\n", green("✓"), f.topoFile, f.vmSet)
			return nil
		},
	}

	f.register(cmd, true)
	return cmd
}
