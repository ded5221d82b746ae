package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/registry"
	"github.com/dyluth/drey/pkg/blackboard"
)

var describeCmd = &cobra.Command{
	Use:   "describe <service>",
	Short: "Show a service's entries, types and port occupancy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return printer.Error("Failed to load configuration", err.Error(), nil)
		}
		return runDescribe(os.Stdout, root, args[0])
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(w io.Writer, root, name string) error {
	desc, err := registry.Load(root, name)
	if err != nil {
		return printer.Error(fmt.Sprintf("Service '%s' not found", name), err.Error(),
			[]string{"Run 'drey list' to see known services"})
	}

	fmt.Fprintf(w, "Service:     %s\n", desc.Name)
	fmt.Fprintf(w, "Service ID:  %s\n", desc.ServiceID)
	fmt.Fprintf(w, "Key type:    %s (size: %d, alignment: %d)\n",
		desc.KeyType.Name, desc.KeyType.Size, desc.KeyType.Alignment)
	fmt.Fprintf(w, "Max readers: %d\n", desc.MaxReaders)
	fmt.Fprintf(w, "Max nodes:   %d\n", desc.MaxNodes)

	// Occupancy comes from the live segment; a removed or unreachable
	// segment degrades describe to the static view.
	if insp, err := blackboard.Inspect(name, root); err == nil {
		writer := "free"
		if insp.WriterInUse {
			writer = "in use"
		}
		fmt.Fprintf(w, "Writer slot: %s\n", writer)
		fmt.Fprintf(w, "Readers:     %d/%d\n", insp.ReadersInUse, insp.MaxReaders)
		fmt.Fprintf(w, "Nodes:       %d/%d\n", insp.NodesInUse, insp.MaxNodes)
	}

	fmt.Fprintf(w, "\nEntries:\n")
	fmt.Fprintf(w, "  %-4s %-20s %s\n", "ID", "KEY (hex)", "VALUE TYPE")
	for i, e := range desc.Entries {
		fmt.Fprintf(w, "  %-4d %-20s %s (size: %d, alignment: %d)\n",
			i, e.Key, e.Type.Name, e.Type.Size, e.Type.Alignment)
	}
	return nil
}
