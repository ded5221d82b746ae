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

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List blackboard services in the registry",
	Long: `List all blackboard services known to the registry, with their entry
counts and current port occupancy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return printer.Error("Failed to load configuration", err.Error(), nil)
		}
		return runList(os.Stdout, root)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// runList writes the service table for one registry root.
func runList(w io.Writer, root string) error {
	descs, err := registry.List(root)
	if err != nil {
		return printer.Error("Failed to read registry", err.Error(),
			[]string{fmt.Sprintf("Check that '%s' is readable", root)})
	}
	if len(descs) == 0 {
		fmt.Fprintf(w, "No services found in '%s'\n", root)
		return nil
	}

	fmt.Fprintf(w, "Services in '%s':\n\n", root)
	fmt.Fprintf(w, "%-24s %-10s %-8s %-10s %s\n",
		"NAME", "KEY TYPE", "ENTRIES", "READERS", "WRITER")
	fmt.Fprintf(w, "%-24s %-10s %-8s %-10s %s\n",
		"------------------------", "----------", "--------", "----------", "------")

	for _, d := range descs {
		readers := "-"
		writer := "-"
		// The segment, not the description file, knows the live occupancy.
		if insp, err := blackboard.Inspect(d.Name, root); err == nil {
			readers = fmt.Sprintf("%d/%d", insp.ReadersInUse, insp.MaxReaders)
			if insp.WriterInUse {
				writer = "yes"
			} else {
				writer = "no"
			}
		}
		fmt.Fprintf(w, "%-24s %-10s %-8d %-10s %s\n",
			d.Name, d.KeyType.Name, len(d.Entries), readers, writer)
	}

	countMsg := "service"
	if len(descs) != 1 {
		countMsg = "services"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(descs), countMsg)
	return nil
}
