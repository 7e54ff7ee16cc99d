package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LINBIT/lcmc/pkg/prompt"
	"github.com/LINBIT/lcmc/pkg/vm"
)

func vmCommands() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "vm",
		Short: "Shows and edits libvirt domains of cluster hosts",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(vmListCommand())
	rootCmd.AddCommand(vmShowCommand())
	rootCmd.AddCommand(vmSetCommand())
	rootCmd.AddCommand(vmCreateCommand())
	rootCmd.AddCommand(vmNetworksCommand())
	return rootCmd
}

// loadVMs fetches the domains of a host.
func loadVMs(ctx context.Context, d *direct, hostName string) *vm.Model {
	c, h, err := d.host(hostName)
	if err != nil {
		log.Fatal(err)
	}
	model := c.VMs(h.Name())
	if _, err := model.Update(ctx, d.exec); err != nil {
		log.Fatalf("Failed to read domains of %s: %v", hostName, err)
	}
	return model
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func vmListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list HOST",
		Short: "Lists the domains defined on a host",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			model := loadVMs(context.Background(), d, args[0])

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Domain", "Memory (KiB)", "vCPUs", "Disks", "Interfaces"})
			whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
			table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)
			for _, name := range model.DomainNames() {
				dom, _ := model.Domain(name)
				table.Append([]string{
					name,
					dom.Param(vm.Memory),
					dom.Param(vm.VCPU),
					strings.Join(dom.DeviceKeys(vm.DeviceDisk), ", "),
					strings.Join(dom.DeviceKeys(vm.DeviceInterface), ", "),
				})
			}
			table.SetAutoFormatHeaders(false)
			table.Render()
		},
	}
}

func vmShowCommand() *cobra.Command {
	var raw bool
	var showCmd = &cobra.Command{
		Use:   "show HOST DOMAIN",
		Short: "Shows the options and devices of a domain",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			model := loadVMs(context.Background(), d, args[0])
			if raw {
				xml, ok := model.DomainXML(args[1])
				if !ok {
					log.Fatalf("No domain %s on %s", args[1], args[0])
				}
				fmt.Print(xml)
				return
			}
			dom, ok := model.Domain(args[1])
			if !ok {
				log.Fatalf("No domain %s on %s", args[1], args[0])
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Device", "Key", "Parameter", "Value"})
			whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
			table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold)
			for _, p := range sortedKeys(dom.Params) {
				table.Append([]string{"domain", dom.Name, p, dom.Params[p]})
			}
			for _, t := range vm.DeviceTypes {
				for _, key := range dom.DeviceKeys(t) {
					params, _ := dom.Device(t, key)
					for _, p := range sortedKeys(params) {
						table.Append([]string{string(t), key, p, params[p]})
					}
				}
			}
			table.SetAutoFormatHeaders(false)
			table.SetAutoMergeCells(true)
			table.Render()
		},
	}
	showCmd.Flags().BoolVar(&raw, "xml", false, "Print the definition as libvirt stores it")
	return showCmd
}

// parseDevice splits "type:key", e.g. "disk:vda".
func parseDevice(s string) (vm.DeviceType, string, error) {
	t, key, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid device %q, expected TYPE:KEY", s)
	}
	for _, known := range vm.DeviceTypes {
		if vm.DeviceType(t) == known {
			return known, key, nil
		}
	}
	return "", "", fmt.Errorf("unknown device type %q", t)
}

// normalizeOptions converts memory sizes with units to KiB.
func normalizeOptions(options map[string]string) error {
	for _, p := range []string{vm.Memory, vm.CurrentMemory} {
		if v, ok := options[p]; ok {
			kib, err := vm.ParseMemory(v)
			if err != nil {
				return err
			}
			options[p] = kib
		}
	}
	return nil
}

func vmSetCommand() *cobra.Command {
	var options, params map[string]string
	var device string
	var remove, dryRun, yes bool
	var setCmd = &cobra.Command{
		Use:   "set HOST DOMAIN",
		Short: "Changes the options or a device of a domain",
		Long: `Changes the options or a device of a domain and defines the result on
the host. The change is shown as a diff and applied after confirmation.

For example:
lcmc vm set alpha web1 --option memory=4GiB --option vcpu=4
lcmc vm set alpha web1 --device disk:vdb --param source_dev=/dev/drbd1 --param target_bus=virtio
lcmc vm set alpha web1 --device interface:52:54:00:aa:bb:01 --remove`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			hostName, name := args[0], args[1]
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()
			model := loadVMs(ctx, d, hostName)

			oldXML, ok := model.DomainXML(name)
			if !ok {
				log.Fatalf("No domain %s on %s", name, hostName)
			}
			doc, err := model.Document(name)
			if err != nil {
				log.Fatal(err)
			}

			if len(options) > 0 {
				if err := normalizeOptions(options); err != nil {
					log.Fatal(err)
				}
				if err := vm.ModifyDomainOptions(doc, options); err != nil {
					log.Fatal(err)
				}
			}
			if device != "" {
				t, key, err := parseDevice(device)
				if err != nil {
					log.Fatal(err)
				}
				if remove {
					if !vm.RemoveDevice(doc, t, key) {
						log.Fatalf("No %s %s in domain %s", t, key, name)
					}
				} else if _, err := vm.ModifyXML(doc, t, key, params); err != nil {
					log.Fatal(err)
				}
			}

			newXML, err := doc.WriteToString()
			if err != nil {
				log.Fatal(err)
			}
			if newXML == oldXML {
				log.Info("Nothing to change")
				return
			}
			fmt.Println(vm.Diff(oldXML, newXML))
			if dryRun {
				return
			}
			if !yes && !prompt.Confirm(fmt.Sprintf("Define domain %s on %s?", name, hostName)) {
				log.Info("Aborted")
				return
			}
			if err := vm.SaveDomain(ctx, d.exec, hostName, vm.DomainPath(name), doc); err != nil {
				log.Fatal(err)
			}
			log.Infof("Defined domain %s on %s", name, hostName)
		},
	}
	setCmd.Flags().StringToStringVar(&options, "option", nil, "Domain option to set, e.g. vcpu=2")
	setCmd.Flags().StringVar(&device, "device", "", "Device to change as TYPE:KEY, e.g. disk:vda")
	setCmd.Flags().StringToStringVar(&params, "param", nil, "Device parameter to set, e.g. driver_cache=none")
	setCmd.Flags().BoolVar(&remove, "remove", false, "Remove the device instead of changing it")
	setCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only show the diff")
	setCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return setCmd
}

func vmCreateCommand() *cobra.Command {
	var options map[string]string
	var dryRun bool
	var createCmd = &cobra.Command{
		Use:   "create HOST DOMAIN",
		Short: "Defines a new domain",
		Long: `Defines a new KVM domain with the given options. Devices are added
with "lcmc vm set" afterwards.

For example:
lcmc vm create alpha web2 --option memory=2GiB --option vcpu=2 --option boot=hd`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			hostName, name := args[0], args[1]
			if err := normalizeOptions(options); err != nil {
				log.Fatal(err)
			}
			doc, err := vm.NewDomainXML(name, options)
			if err != nil {
				log.Fatal(err)
			}
			if dryRun {
				xml, err := doc.WriteToString()
				if err != nil {
					log.Fatal(err)
				}
				fmt.Println(xml)
				return
			}

			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()
			if _, ok := loadVMs(ctx, d, hostName).Domain(name); ok {
				log.Fatalf("Domain %s already exists on %s", name, hostName)
			}
			if err := vm.SaveDomain(ctx, d.exec, hostName, vm.DomainPath(name), doc); err != nil {
				log.Fatal(err)
			}
			log.Infof("Defined domain %s on %s", name, hostName)
		},
	}
	createCmd.Flags().StringToStringVar(&options, "option", nil, "Domain option to set, e.g. vcpu=2")
	createCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only print the definition")
	return createCmd
}

func vmNetworksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "networks HOST",
		Short: "Lists the libvirt networks of a host",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			model := loadVMs(context.Background(), d, args[0])

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Network", "Forward", "Bridge", "Address", "Autostart"})
			whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
			table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)
			for _, name := range model.NetworkNames() {
				n, _ := model.Network(name)
				table.Append([]string{
					name,
					n.Params[vm.NetForwardMode],
					n.Params[vm.NetBridgeName],
					n.Params[vm.NetIPAddress],
					boolStatus(n.Autostart),
				})
			}
			table.SetAutoFormatHeaders(false)
			table.Render()
		},
	}
}
