package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectVMsCmd() *cobra.Command {
	var f bindFlags

	cmd := &cobra.Command{
		Use:   "connect-vms",
		Short: "Restore VM traffic on the front-panel bridges",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := f.binder(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.ConnectVMs(); err != nil {
				return err
			}
			fmt.Printf("%s Connected VMs of vm set %s\n", green("✓"), f.vmSet)
			return nil
		},
	}

	f.register(cmd, false)
	return cmd
}

func newDisconnectVMsCmd() *cobra.Command {
	var f bindFlags

	cmd := &cobra.Command{
		Use:   "disconnect-vms",
		Short: "Drop VM traffic on the front-panel bridges",
		Long: `Reprogram the front-panel flow tables so VM ports drop instead of
forward, isolating the neighbors while the PTF/DUT path keeps working.
'connect-vms' reverses this.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := f.binder(cmd.Context())
			if err != nil {
				return err
			}
			if err := b.DisconnectVMs(); err != nil {
				return err
			}
			fmt.Printf("%s Disconnected VMs of vm set %s\n", yellow("!"), f.vmSet)
			return nil
		},
	}

	f.register(cmd, false)
	return cmd
}
