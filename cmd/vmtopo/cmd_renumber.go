package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRenumberCmd() *cobra.Command {
	var f bindFlags

	cmd := &cobra.Command{
		Use:   "renumber",
		Short: "Re-point a bound topology at a different vm set",
		Long: `Rebind the front-panel side of a running topology without touching
the existing PTF container plumbing. Used when a testbed switches the
vm set serving a topology in place.

  vmtopo renumber -t topo.yml -s vms1-1 --vm-base VM0200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := f.binder(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.Renumber(); err != nil {
				return err
			}
			fmt.Printf("%s Renumbered %s on vm set %s\n", green("✓"), f.topoFile, f.vmSet)
			return nil
		},
	}

	f.register(cmd, true)
	return cmd
}
