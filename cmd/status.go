package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LINBIT/lcmc/pkg/rest"
)

func statusCommand() *cobra.Command {
	var test, properties, constraints bool
	var statusCmd = &cobra.Command{
		Use:   "status [CLUSTER]...",
		Short: "Shows nodes and resources of clusters",
		Long: `Shows the nodes and the resources of the given clusters, or of all
clusters the server knows about.

For example:
lcmc status
lcmc status web --test
lcmc status web --properties --constraints`,
		Run: func(cmd *cobra.Command, args []string) {
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()

			names := args
			if len(names) == 0 {
				clusters, err := cli.Clusters.GetAll(ctx)
				if err != nil {
					log.Fatalf("Failed to list clusters: %v", err)
				}
				for _, c := range clusters {
					names = append(names, c.Name)
				}
			}

			for i, name := range names {
				if i > 0 {
					fmt.Println()
				}
				c, err := cli.Clusters.Get(ctx, name)
				if err != nil {
					log.Fatalf("Failed to get cluster %s: %v", name, err)
				}
				fmt.Printf("%s %s (DC: %s)\n", colorHeader("Cluster"), c.Name, dcOrUnknown(c.DC))

				nodes, err := cli.Clusters.Nodes(ctx, name)
				if err != nil {
					log.Fatalf("Failed to get nodes of %s: %v", name, err)
				}
				printNodes(nodes)

				resources, err := cli.Resources.GetAll(ctx, name, test)
				if err != nil {
					log.Fatalf("Failed to get resources of %s: %v", name, err)
				}
				printResources(resources)

				if properties {
					cfg, err := cli.Clusters.Config(ctx, name)
					if err != nil {
						log.Fatalf("Failed to get properties of %s: %v", name, err)
					}
					printProperties(cfg)
				}
				if constraints {
					cons, err := cli.Clusters.Constraints(ctx, name)
					if err != nil {
						log.Fatalf("Failed to get constraints of %s: %v", name, err)
					}
					printConstraints(cons)
				}
			}
		},
	}
	statusCmd.Flags().BoolVar(&test, "test", false, "Show placements of the last policy engine dry-run")
	statusCmd.Flags().BoolVar(&properties, "properties", false, "Also show cluster properties and defaults")
	statusCmd.Flags().BoolVar(&constraints, "constraints", false, "Also show colocation and order constraints")
	return statusCmd
}

func dcOrUnknown(dc string) string {
	if dc == "" {
		return colorDegraded("unknown")
	}
	return dc
}

func printNodes(nodes []rest.Node) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node", "ID", "State", "DC", "Ping"})
	whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
	table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)

	for _, n := range nodes {
		state := "offline"
		switch {
		case n.Fenced:
			state = "fenced"
		case n.Online:
			state = "online"
		case n.Pending:
			state = "pending"
		}
		dc := ""
		if n.DC {
			dc = colorOk(statusOk)
		}
		table.Append([]string{n.Name, n.ID, ColorNodeState(n, state), dc, n.PingCount})
	}

	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_RIGHT})
	table.Render()
}

func printResources(resources []rest.Resource) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Resource", "Agent", "Running on", "Master", "Managed"})
	whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
	table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)

	for _, r := range resources {
		running := strings.Join(r.Status.Running, ", ")
		if running == "" {
			running = "stopped"
		}
		table.Append([]string{
			r.ID,
			r.Agent,
			ColorResourceState(r, running),
			strings.Join(r.Status.Master, ", "),
			boolStatus(r.Status.Managed),
		})
	}

	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})
	table.Render()
}

func printProperties(cfg *rest.ClusterConfig) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Scope", "Name", "Value"})
	whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
	table.SetHeaderColor(whiteBold, whiteBold, whiteBold)

	for _, scope := range []struct {
		name   string
		values map[string]string
	}{
		{"property", cfg.Properties},
		{"rsc_defaults", cfg.RscDefaults},
		{"op_defaults", cfg.OpDefaults},
	} {
		for _, k := range sortedKeys(scope.values) {
			table.Append([]string{scope.name, k, scope.values[k]})
		}
	}

	table.SetAutoFormatHeaders(false)
	table.Render()
}

func printConstraints(cons *rest.Constraints) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Constraint", "Kind", "From", "To", "Sets"})
	whiteBold := tablewriter.Colors{tablewriter.FgBlueColor, tablewriter.Bold}
	table.SetHeaderColor(whiteBold, whiteBold, whiteBold, whiteBold, whiteBold)

	for _, c := range cons.Connections {
		var sets []string
		for _, s := range cons.Sets[c.ConstraintID] {
			sets = append(sets, s.ID)
		}
		table.Append([]string{c.ConstraintID, string(c.Kind), c.Rsc1, c.Rsc2, strings.Join(sets, ", ")})
	}

	table.SetAutoFormatHeaders(false)
	table.Render()
}
