package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LINBIT/lcmc/pkg/prompt"
)

func resourceCommands() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "resource",
		Short: "Starts, stops and simulates cluster resources",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(targetRoleCommand("start", true))
	rootCmd.AddCommand(targetRoleCommand("stop", false))
	rootCmd.AddCommand(ptestCommand())
	rootCmd.AddCommand(runStateCommand())
	rootCmd.AddCommand(deleteResourceCommand())
	return rootCmd
}

func targetRoleCommand(use string, started bool) *cobra.Command {
	role := "Stopped"
	if started {
		role = "Started"
	}
	return &cobra.Command{
		Use:   use + " CLUSTER RESOURCE",
		Short: fmt.Sprintf("Sets the target-role of a resource to %s", role),
		Long: fmt.Sprintf(`Sets the target-role of a resource to %s. The change is made on the
designated controller of the cluster.

For example:
lcmc resource %s web p_web_ip`, role, use),
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()
			if started {
				_, err = cli.Resources.Start(ctx, args[0], args[1])
			} else {
				_, err = cli.Resources.Stop(ctx, args[0], args[1])
			}
			if err != nil {
				log.Fatalf("Failed to %s %s: %v", use, args[1], err)
			}
			log.Infof("Set target-role of %s to %s", args[1], role)
		},
	}
}

func ptestCommand() *cobra.Command {
	var drop bool
	var ptestCmd = &cobra.Command{
		Use:   "ptest CLUSTER",
		Short: "Shows where the policy engine would place the resources",
		Long: `Runs the policy engine against the live CIB and shows the resulting
placements. The result stays available as the test view of "lcmc status --test"
until it is cleared.

For example:
lcmc resource ptest web
lcmc resource ptest web --clear`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			ctx := context.Background()
			if drop {
				if err := cli.Resources.ClearPtest(ctx, args[0]); err != nil {
					log.Fatalf("Failed to clear dry-run: %v", err)
				}
				return
			}
			resources, err := cli.Resources.Ptest(ctx, args[0])
			if err != nil {
				log.Fatalf("Failed to run the policy engine: %v", err)
			}
			printResources(resources)
		},
	}
	ptestCmd.Flags().BoolVar(&drop, "clear", false, "Drop the dry-run result")
	return ptestCmd
}

func runStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-state CLUSTER RESOURCE",
		Short: "Reads the run state of a resource from the current CIB",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			state, err := cli.Resources.RunState(context.Background(), args[0], args[1])
			if err != nil {
				log.Fatalf("Failed to read the run state of %s: %v", args[1], err)
			}
			fmt.Printf("%s: %s (as recorded on %s)\n", state.ID, state.State, state.Host)
		},
	}
}

func deleteResourceCommand() *cobra.Command {
	var yes bool
	var deleteCmd = &cobra.Command{
		Use:   "delete CLUSTER RESOURCE",
		Short: "Deletes a resource and every constraint referring to it",
		Long: `Deletes a resource from the CIB together with the location, colocation
and order constraints that name it and its LRM history.

For example:
lcmc resource delete web p_web_ip`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if !yes && !prompt.Confirm(fmt.Sprintf("Delete %s and its constraints from cluster %s?", args[1], args[0])) {
				log.Info("Aborted")
				return
			}
			cli, err := newClient()
			if err != nil {
				log.Fatal(err)
			}
			if err := cli.Resources.Delete(context.Background(), args[0], args[1]); err != nil {
				log.Fatalf("Failed to delete %s: %v", args[1], err)
			}
			log.Infof("Deleted %s", args[1])
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return deleteCmd
}
