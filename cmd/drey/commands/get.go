package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/registry"
	"github.com/dyluth/drey/pkg/blackboard"
)

var getCmd = &cobra.Command{
	Use:   "get <service> <key-hex>",
	Short: "Read the current value of one entry",
	Long: `Attach to a service as a reader, print the entry's current committed
value (hex) and version, and detach. The key is given as hex-encoded
key bytes, as shown by 'drey describe'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return printer.Error("Failed to load configuration", err.Error(), nil)
		}
		return runGet(os.Stdout, root, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(w io.Writer, root, name, keyHex string) error {
	desc, err := registry.Load(root, name)
	if err != nil {
		return printer.Error(fmt.Sprintf("Service '%s' not found", name), err.Error(),
			[]string{"Run 'drey list' to see known services"})
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return printer.Error("Invalid key", fmt.Sprintf("'%s' is not valid hex: %v", keyHex, err),
			[]string{fmt.Sprintf("Run 'drey describe %s' to see the service's keys", name)})
	}

	// The description file tells us which value type the entry holds; the
	// segment re-validates both descriptors during Open and Entry.
	var valueType *registry.TypeInfo
	for _, e := range desc.Entries {
		if e.Key == keyHex {
			t := e.Type
			valueType = &t
			break
		}
	}
	if valueType == nil {
		return printer.Error(fmt.Sprintf("No entry with key '%s'", keyHex), "",
			[]string{fmt.Sprintf("Run 'drey describe %s' to see the service's keys", name)})
	}

	store, err := blackboard.Open(blackboard.OpenConfig{
		Name: name,
		KeyType: blackboard.KeyDescriptor{Type: blackboard.TypeDescriptor{
			Name:      desc.KeyType.Name,
			Size:      desc.KeyType.Size,
			Alignment: desc.KeyType.Alignment,
		}},
		RegistryRoot: root,
	})
	if err != nil {
		return printer.Error(fmt.Sprintf("Failed to open service '%s'", name), err.Error(), nil)
	}
	defer store.Close()

	reader, err := store.NewReader()
	if err != nil {
		return printer.Error("Failed to create reader port", err.Error(),
			[]string{"All reader slots may be in use; try again later"})
	}
	defer reader.Close()

	handle, err := reader.Entry(key, blackboard.TypeDescriptor{
		Name:      valueType.Name,
		Size:      valueType.Size,
		Alignment: valueType.Alignment,
	})
	if err != nil {
		return printer.Error("Failed to acquire entry handle", err.Error(), nil)
	}
	defer handle.Close()

	snapshot := handle.Get()
	fmt.Fprintf(w, "service: %s\n", name)
	fmt.Fprintf(w, "key:     %s\n", keyHex)
	fmt.Fprintf(w, "type:    %s\n", valueType.Name)
	fmt.Fprintf(w, "version: %d\n", snapshot.Version())
	fmt.Fprintf(w, "value:   %s\n", hex.EncodeToString(snapshot.Bytes()))
	return nil
}
