package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/registry"
	"github.com/dyluth/drey/pkg/blackboard"
	"github.com/dyluth/drey/pkg/mirror"
)

var (
	mirrorRedisAddr string
	mirrorInterval  time.Duration
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror <service>",
	Short: "Mirror a service's committed values onto Redis Pub/Sub",
	Long: `Attach to a service as a reader and republish every committed value
change on Redis Pub/Sub, until interrupted. Remote observers subscribe
to drey:{service}:updates or the per-entry channels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return printer.Error("Failed to load configuration", err.Error(), nil)
		}
		return runMirror(root, args[0])
	},
}

func init() {
	mirrorCmd.Flags().StringVar(&mirrorRedisAddr, "redis", "localhost:6379", "Redis address to publish to")
	mirrorCmd.Flags().DurationVar(&mirrorInterval, "interval", 100*time.Millisecond, "polling interval")
	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(root, name string) error {
	desc, err := registry.Load(root, name)
	if err != nil {
		return printer.Error(fmt.Sprintf("Service '%s' not found", name), err.Error(),
			[]string{"Run 'drey list' to see known services"})
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

	printer.Step("Connecting to Redis at %s\n", mirrorRedisAddr)
	rdb := redis.NewClient(&redis.Options{Addr: mirrorRedisAddr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return printer.Error("Redis is not reachable", err.Error(),
			[]string{fmt.Sprintf("Check that Redis is running at %s", mirrorRedisAddr)})
	}

	m, err := mirror.New(rdb, store)
	if err != nil {
		return printer.Error("Failed to start mirror", err.Error(), nil)
	}
	defer m.Close()

	printer.Info("Mirroring service '%s' (%d entries) every %s; press Ctrl+C to stop\n",
		name, store.EntryCount(), mirrorInterval)

	if err := m.Run(ctx, mirrorInterval); err != nil {
		return printer.Error("Mirror stopped with an error", err.Error(), nil)
	}
	printer.Success("Mirror stopped cleanly\n")
	return nil
}
