package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/testbed-tools/vmtopo/pkg/cli"
	"github.com/testbed-tools/vmtopo/pkg/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage persistent host defaults",
		Long: `Manage persistent defaults stored in ~/.vmtopo/settings.json.

Settings provide per-server defaults for repeated invocations:
  - hosts_file: Used when --hosts is not specified
  - fp_mtu:     Default front-panel MTU
  - max_fp:     Default bridges per VM
  - workers:    Default binding concurrency
  - batch:      Default to batched flow programming

Examples:
  vmtopo settings show
  vmtopo settings set hosts /etc/vmtopo/hosts.yml
  vmtopo settings set workers 8
  vmtopo settings clear`,
	}

	cmd.AddCommand(
		newSettingsShowCmd(),
		newSettingsSetCmd(),
		newSettingsClearCmd(),
		newSettingsPathCmd(),
	)
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}

			fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

			t := cli.NewTable("SETTING", "VALUE")
			printSetting := func(name, value string) {
				if value == "" {
					value = "(not set)"
				}
				t.Row(name, value)
			}
			printInt := func(name string, value int) {
				if value == 0 {
					printSetting(name, "")
					return
				}
				t.Row(name, strconv.Itoa(value))
			}

			printSetting("hosts_file", s.HostsFile)
			printInt("fp_mtu", s.FPMTU)
			printInt("max_fp", s.MaxFPNum)
			printInt("workers", s.Workers)
			printSetting("batch", strconv.FormatBool(s.Batch))

			t.Flush()
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <setting> <value>",
		Short: "Set a setting value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setting, value := args[0], args[1]

			s, err := settings.Load()
			if err != nil {
				s = &settings.Settings{}
			}

			switch setting {
			case "hosts", "hosts_file":
				s.HostsFile = value
				fmt.Printf("Hosts file set to: %s\n", value)
			case "fp_mtu":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("fp_mtu must be an integer: %q", value)
				}
				s.FPMTU = n
				fmt.Printf("Front-panel MTU set to: %d\n", n)
			case "max_fp":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("max_fp must be an integer: %q", value)
				}
				s.MaxFPNum = n
				fmt.Printf("Bridges per VM set to: %d\n", n)
			case "workers":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("workers must be an integer: %q", value)
				}
				s.Workers = n
				fmt.Printf("Workers set to: %d\n", n)
			case "batch":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("batch must be a boolean: %q", value)
				}
				s.Batch = b
				fmt.Printf("Batch mode set to: %t\n", b)
			default:
				return fmt.Errorf("unknown setting: %s (valid: hosts, fp_mtu, max_fp, workers, batch)", setting)
			}

			if err := s.Save(); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			return nil
		},
	}
}

func newSettingsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &settings.Settings{}
			if err := s.Save(); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			fmt.Println("All settings cleared.")
			return nil
		},
	}
}

func newSettingsPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show settings file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(settings.DefaultSettingsPath())
		},
	}
}
