package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/registry"
	"github.com/dyluth/drey/pkg/blackboard"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <service>",
	Short: "Remove a service from the registry",
	Long: `Remove a service's description and segment files. Processes that still
have the segment mapped keep working on it until they detach; new opens
fail once the files are gone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return printer.Error("Failed to load configuration", err.Error(), nil)
		}
		return runDestroy(root, args[0])
	},
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(root, name string) error {
	if _, err := registry.Load(root, name); err != nil {
		return printer.Error(fmt.Sprintf("Service '%s' not found", name), err.Error(),
			[]string{"Run 'drey list' to see known services"})
	}

	if insp, err := blackboard.Inspect(name, root); err == nil && insp.NodesInUse > 0 {
		printer.Warning("Service '%s' still has %d attached node(s); their mappings survive until they detach\n",
			name, insp.NodesInUse)
	}

	if err := blackboard.Destroy(name, root); err != nil {
		return printer.Error(fmt.Sprintf("Failed to destroy service '%s'", name), err.Error(), nil)
	}
	printer.Success("Service '%s' destroyed\n", name)
	return nil
}
