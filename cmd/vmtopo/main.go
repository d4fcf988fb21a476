// vmtopo: virtual network wiring for SONiC testbed servers
//
// vmtopo binds a declarative topology onto a testbed host: OVS bridges in
// front of neighbor VMs, veth pairs into the PTF container, DUT front-panel
// port injection, dual-ToR cables, and the management/backplane plumbing
// around them.
//
// Usage:
//
//	vmtopo create --hosts hosts.yml          Create the per-VM bridge grid
//	vmtopo bind -t topo.yml -s vms1-1 ...    Bind a topology to a vm set
//	vmtopo renumber ...                      Re-point a bound topology
//	vmtopo unbind ...                        Tear a bound topology down
//	vmtopo destroy --hosts hosts.yml         Remove the bridge grid
//	vmtopo connect-vms / disconnect-vms      Toggle VM traffic on FP bridges
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/testbed-tools/vmtopo/pkg/cli"
	"github.com/testbed-tools/vmtopo/pkg/settings"
	"github.com/testbed-tools/vmtopo/pkg/util"
	"github.com/testbed-tools/vmtopo/pkg/version"
)

var (
	hostsFile string
	verbose   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "vmtopo",
	Short:             "Virtual network wiring for SONiC testbed servers",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `vmtopo wires emulated neighbor VMs, DUT front-panel ports, and a PTF
test container together with OVS bridges and veth pairs.

It reads a topology file and a hosts facts file, then mutates host
network state through ip/ovs-vsctl/ovs-ofctl/brctl:

  vmtopo bind -t topo.yml -s vms1-1 --vm-base VM0100`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return util.SetLogLevel("debug")
		}
		return util.SetLogLevel("warn")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostsFile, "hosts", "", "hosts facts file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newCreateCmd(),
		newBindCmd(),
		newRenumberCmd(),
		newUnbindCmd(),
		newDestroyCmd(),
		newConnectVMsCmd(),
		newDisconnectVMsCmd(),
		newSettingsCmd(),
		newVersionCmd(),
	)
}

// requireHostsFile resolves the hosts facts file from: --hosts flag >
// VMTOPO_HOSTS env > settings > error.
func requireHostsFile() (string, error) {
	if hostsFile != "" {
		return hostsFile, nil
	}
	if v := os.Getenv("VMTOPO_HOSTS"); v != "" {
		return v, nil
	}
	if s, err := settings.Load(); err == nil && s.HostsFile != "" {
		return s.HostsFile, nil
	}
	return "", fmt.Errorf("hosts file required: use --hosts <file>, set VMTOPO_HOSTS, or run 'vmtopo settings set hosts <file>'")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version.Version == "dev" {
				fmt.Println("vmtopo dev build (use 'make build' for version info)")
			} else {
				fmt.Printf("vmtopo %s (%s)\n", version.Version, version.GitCommit)
			}
		},
	}
}

// Color helpers, delegating to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
