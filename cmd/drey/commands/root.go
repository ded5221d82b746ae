package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/internal/registry"
)

var (
	version string
	commit  string
	date    string

	// Global flags
	configPath   string
	registryRoot string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "drey",
	Short: "Drey - Shared-memory blackboard services for same-machine IPC",
	Long: `Drey manages shared-memory blackboard services: named sets of typed
value slots that one writer process updates and many reader processes
observe without locks.

The CLI discovers services through the registry directory, inspects
their static shape and port occupancy, reads entry values and can
mirror committed updates onto Redis Pub/Sub for remote observers.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing; the printer package
	// prints formatted colored errors directly.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to drey.yml (optional)")
	rootCmd.PersistentFlags().StringVar(&registryRoot, "root", "", "registry root directory (overrides config and DREY_REGISTRY_ROOT)")
}

// resolveRoot returns the registry root for the current invocation:
// --root flag first, then the config file, then environment/default.
func resolveRoot() (string, error) {
	if registryRoot != "" {
		return registryRoot, nil
	}
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return "", err
		}
		cfg = loaded
	}
	return registry.Root(cfg.RegistryRoot), nil
}
