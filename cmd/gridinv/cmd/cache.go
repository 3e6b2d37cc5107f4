package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/config"
	"github.com/marmos91/gridinv/pkg/inventory"
	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

var (
	showDepth int
	showIDs   bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect inventory snapshots in the configured cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [owner-id]",
	Short: "Print the cached inventory tree",
	Long: `Load an owner's snapshot and print it as a tree, folders first.

Examples:
  gridinv cache show 0f3c2a8e-9c1d-4f7b-8a51-3b8e2f6d9a10
  gridinv cache show --depth 1 --ids`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadSnapshot(cmd.Context(), args)
		if err != nil {
			return err
		}
		printTree(cmd.OutOrStdout(), store, showDepth, showIDs)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [owner-id]",
	Short: "Print node counts of a cached inventory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadSnapshot(cmd.Context(), args)
		if err != nil {
			return err
		}

		stats := store.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "owner:          %s\n", store.Owner())
		fmt.Fprintf(out, "inventory root: %s\n", store.InventoryRoot())
		fmt.Fprintf(out, "library root:   %s\n", store.LibraryRoot())
		fmt.Fprintf(out, "folders:        %d\n", stats.Folders)
		fmt.Fprintf(out, "items:          %d\n", stats.Items)
		fmt.Fprintf(out, "unresolved:     %d\n", stats.Unresolved)
		return nil
	},
}

var cacheFindCmd = &cobra.Command{
	Use:   "find <path> [owner-id]",
	Short: "Resolve a slash-separated path in a cached inventory",
	Long: `Resolve a path such as "Clothes/Shirts/Red Shirt" against the cached
inventory root and print the matching node id.

Example:
  gridinv cache find "Objects/Boxes"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadSnapshot(cmd.Context(), args[1:])
		if err != nil {
			return err
		}

		id, ok := resolvePath(store, store.InventoryRoot(), args[0])
		if !ok {
			return fmt.Errorf("%q not found in cached inventory", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [owner-id]",
	Short: "Delete an owner's cached snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := ownerFromArgs(args)
		if err != nil {
			return err
		}

		backend, err := config.CreateCacheStore(cmd.Context(), &cfg.Cache)
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		if err := backend.Delete(cmd.Context(), owner); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted cached inventory for %s\n", owner)
		return nil
	},
}

// ownerLister is implemented by backends that can enumerate their snapshots.
type ownerLister interface {
	Owners(ctx context.Context) ([]uuid.UUID, error)
}

var cacheOwnersCmd = &cobra.Command{
	Use:   "owners",
	Short: "List owners with a cached snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := config.CreateCacheStore(cmd.Context(), &cfg.Cache)
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		lister, ok := backend.(ownerLister)
		if !ok {
			return fmt.Errorf("cache type %q cannot list owners", cfg.Cache.Type)
		}
		owners, err := lister.Owners(cmd.Context())
		if err != nil {
			return err
		}
		for _, owner := range owners {
			fmt.Fprintln(cmd.OutOrStdout(), owner)
		}
		return nil
	},
}

func init() {
	cacheShowCmd.Flags().IntVarP(&showDepth, "depth", "d", -1, "maximum folder depth to print (-1 for all)")
	cacheShowCmd.Flags().BoolVar(&showIDs, "ids", false, "print node ids")

	cacheCmd.AddCommand(cacheShowCmd, cacheStatsCmd, cacheFindCmd, cacheDeleteCmd, cacheOwnersCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadSnapshot restores the snapshot of the owner named by args into a new store.
func loadSnapshot(ctx context.Context, args []string) (*inventory.Store, error) {
	return loadInstrumentedSnapshot(ctx, args, nil)
}

// loadInstrumentedSnapshot is loadSnapshot reporting backend calls to m.
func loadInstrumentedSnapshot(ctx context.Context, args []string, m metrics.CacheMetrics) (*inventory.Store, error) {
	owner, err := ownerFromArgs(args)
	if err != nil {
		return nil, err
	}

	backend, err := config.CreateInstrumentedCacheStore(ctx, &cfg.Cache, m)
	if err != nil {
		return nil, err
	}
	defer closeBackend(backend)

	data, err := backend.Load(ctx, owner)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("no cached inventory for %s in %s cache", owner, cfg.Cache.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	store := inventory.NewStore(owner)
	if err := store.Restore(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}

	logger.Debug("Restored %d bytes for %s", len(data), owner)
	return store, nil
}

func closeBackend(backend cache.Store) {
	if err := backend.Close(); err != nil {
		logger.Warn("Closing cache backend: %v", err)
	}
}

func printTree(w io.Writer, store *inventory.Store, maxDepth int, ids bool) {
	store.Walk(func(node inventory.Node, depth int) bool {
		indent := strings.Repeat("  ", depth)
		suffix := ""
		if ids {
			suffix = "  " + inventory.IDOf(node).String()
		}

		switch n := node.(type) {
		case *inventory.Folder:
			label := n.Name + "/"
			if n.PreferredType != inventory.FolderTypeNone {
				label += " [" + n.PreferredType.String() + "]"
			}
			fmt.Fprintf(w, "%s%s%s\n", indent, label, suffix)
			return maxDepth < 0 || depth < maxDepth
		case *inventory.Item:
			fmt.Fprintf(w, "%s%s (%s)%s\n", indent, n.Name, n.Kind, suffix)
		}
		return true
	})
}

// resolvePath walks path from base using only cached contents. Intermediate
// segments match folders; the last segment matches any node.
func resolvePath(store *inventory.Store, base uuid.UUID, path string) (uuid.UUID, bool) {
	current := base
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	for i, segment := range segments {
		children, err := store.Contents(current)
		if err != nil {
			return uuid.Nil, false
		}

		last := i == len(segments)-1
		found := false
		for _, child := range children {
			if inventory.NameOf(child) != segment {
				continue
			}
			if _, isFolder := child.(*inventory.Folder); !isFolder && !last {
				continue
			}
			current = inventory.IDOf(child)
			found = true
			break
		}
		if !found {
			return uuid.Nil, false
		}
	}
	return current, true
}
