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
)

func drbdCommands() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "drbd",
		Short: "Shows DRBD resources and their live state",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(drbdShowCommand())
	rootCmd.AddCommand(drbdEventsCommand())
	rootCmd.AddCommand(drbdSchemaCommand())
	return rootCmd
}

func drbdShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show CLUSTER",
		Short: "Lists the DRBD resources of a cluster",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			resources, err := cli.Drbd.GetAll(context.Background(), args[0])
			if err != nil {
				log.Fatalf("Failed to list DRBD resources: %v", err)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Resource", "Volume", "Host", "Device", "Disk", "Address", "State"})
			whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
			table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)

			for _, r := range resources {
				vols := make([]string, 0, len(r.Volumes))
				for nr := range r.Volumes {
					vols = append(vols, nr)
				}
				sort.Strings(vols)
				for _, nr := range vols {
					vol := r.Volumes[nr]
					for _, h := range r.Hosts {
						dev := vol.Devices[h]
						state := "unknown"
						if st, ok := r.Devices[h][dev]; ok {
							state = ColorDrbdState(st, fmt.Sprintf("%s %s/%s", st.ConnectionState, st.Role, st.DiskState))
						}
						table.Append([]string{r.Name, nr, h, dev, vol.Disks[h], r.Addresses[h].String(), state})
					}
				}
			}

			table.SetAutoFormatHeaders(false)
			table.SetAutoMergeCells(true)
			table.Render()
		},
	}
}

func drbdEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events HOST",
		Short: "Follows the DRBD events of a host",
		Long: `Follows the DRBD events of a host and prints every device whose
state changed. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			c, h, err := d.host(args[0])
			if err != nil {
				log.Fatal(err)
			}
			ctx, cancel := signalContext()
			defer cancel()

			if _, err := h.FetchInfo(ctx, d.exec); err != nil {
				log.Fatal(err)
			}
			if _, err := c.Drbd.FetchConfig(ctx, d.exec, h.Name()); err != nil {
				log.Warn(err)
			}

			printed := make(map[string]string)
			_, err = c.Drbd.StartEvents(ctx, d.exec, h, func() {
				for dev, st := range h.DrbdDevices() {
					line := fmt.Sprintf("%s %s/%s %s/%s", st.ConnectionState, st.Role, st.PeerRole, st.DiskState, st.PeerDiskState)
					if st.SyncedPercent != "" {
						line += " " + st.SyncedPercent + "%"
					}
					if printed[dev] == line {
						continue
					}
					printed[dev] = line
					name := dev
					topo := c.Drbd.Topology()
					if res, ok := topo.ResourceByDevice(dev); ok {
						if vol, ok := topo.VolumeByDevice(dev); ok {
							res += "/" + vol
						}
						name = fmt.Sprintf("%s (%s)", dev, res)
					}
					fmt.Printf("%s %s\n", name, ColorDrbdState(st, line))
				}
			})
			if err != nil {
				log.Fatalf("Failed to start DRBD events: %v", err)
			}
			<-ctx.Done()
			h.StopDrbdEvents()
		},
	}
}

func drbdSchemaCommand() *cobra.Command {
	var section string
	var schemaCmd = &cobra.Command{
		Use:   "schema HOST",
		Short: "Lists the DRBD parameters the utilities of a host support",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := newDirect()
			if err != nil {
				log.Fatal(err)
			}
			c, h, err := d.host(args[0])
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()
			if _, err := h.FetchInfo(ctx, d.exec); err != nil {
				log.Warn(err)
			}
			if err := c.Drbd.FetchSchema(ctx, d.exec, h.Name(), c.SchemaContext()); err != nil {
				log.Fatal(err)
			}

			schema := c.Drbd.Schema()
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Section", "Parameter", "Type", "Default", "Range", "Unit"})
			whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
			table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)

			sections := schema.Sections()
			if section != "" {
				if !schema.HasSection(section) {
					log.Fatalf("Unknown section %q, known sections: %s", section, strings.Join(sections, ", "))
				}
				sections = []string{section}
			}
			for _, sec := range sections {
				for _, name := range schema.SectionParams(sec) {
					p, _ := schema.Param(name)
					rng := ""
					if p.Min != "" || p.Max != "" {
						rng = p.Min + ".." + p.Max
					} else if choices := schema.PossibleChoices(name); len(choices) > 0 {
						rng = strings.Join(choices, "|")
					}
					secCol, nameCol := sec, name
					if schema.IsGlobal(name) {
						secCol = colorDegraded(sec)
					}
					if p.Required {
						nameCol = colorHeader(name)
					}
					table.Append([]string{secCol, nameCol, schema.ParamType(name), p.Default, rng, p.UnitPrefix + p.Unit})
				}
			}
			table.SetAutoFormatHeaders(false)
			table.Render()
		},
	}
	schemaCmd.Flags().StringVar(&section, "section", "", "Only show parameters of this section")
	return schemaCmd
}
