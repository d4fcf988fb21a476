package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnbindCmd() *cobra.Command {
	var f bindFlags

	cmd := &cobra.Command{
		Use:   "unbind",
		Short: "Tear a bound topology down",
		Long: `Remove everything 'vmtopo bind' created for a vm set: flows,
injected ports, DUT port bindings, cables, and the netns. The bridge
grid itself stays for the next binding.

A stopped PTF container is tolerated; container-side cleanup then
degrades to no-ops.

  vmtopo unbind -t topo.yml -s vms1-1 --vm-base VM0100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := f.binder(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.Unbind(); err != nil {
				return err
			}
			fmt.Printf("%s Unbound %s from vm set %s\n", green("✓"), f.topoFile, f.vmSet)
			return nil
		},
	}

	f.register(cmd, false)
	return cmd
}
